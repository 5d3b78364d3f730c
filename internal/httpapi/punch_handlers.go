package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"punchclock.org/internal/ledger"
	"punchclock.org/internal/obs"
	"punchclock.org/internal/policy"
	"punchclock.org/internal/timesheet"
)

type punchResponse struct {
	GroupID   string    `json:"group_id"`
	MemberID  string    `json:"member_id"`
	Direction string    `json:"direction"`
	At        time.Time `json:"at"`
	Sequence  uint64    `json:"sequence"`
	ClockedIn bool      `json:"clocked_in"`
}

type dayTotalResponse struct {
	Date          string  `json:"date"`
	WorkedSeconds float64 `json:"worked_seconds"`
	Open          bool    `json:"open,omitempty"`
}

type anomalyResponse struct {
	At     time.Time `json:"at"`
	Reason string    `json:"reason"`
}

type sheetResponse struct {
	GroupID      string             `json:"group_id"`
	MemberID     string             `json:"member_id"`
	From         time.Time          `json:"from"`
	To           time.Time          `json:"to"`
	Days         []dayTotalResponse `json:"days"`
	TotalSeconds float64            `json:"total_seconds"`
	Open         bool               `json:"open"`
	Anomalies    []anomalyResponse  `json:"anomalies,omitempty"`
}

type memberTotalResponse struct {
	MemberID     string  `json:"member_id"`
	TotalSeconds float64 `json:"total_seconds"`
	ClockedIn    bool    `json:"clocked_in"`
}

type groupSheetResponse struct {
	GroupID string                `json:"group_id"`
	Days    int                   `json:"days"`
	AsOf    time.Time             `json:"as_of"`
	Members []memberTotalResponse `json:"members"`
}

type roleBindingRequest struct {
	RoleID   string `json:"role_id"`
	IsMod    bool   `json:"is_mod"`
	CanPunch bool   `json:"can_punch"`
}

type roleBindingResponse struct {
	GroupID   string    `json:"group_id"`
	RoleID    string    `json:"role_id"`
	IsMod     bool      `json:"is_mod"`
	CanPunch  bool      `json:"can_punch"`
	UpdatedAt time.Time `json:"updated_at"`
}

// handleGroups routes everything under /v1/groups/{group}/...
func (a *API) handleGroups(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/groups/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	groupID := parts[0]

	switch {
	case len(parts) == 2 && parts[1] == "punch":
		a.handlePunch(w, r, groupID)
	case len(parts) == 2 && parts[1] == "timesheet":
		a.handleGroupTimesheet(w, r, groupID)
	case len(parts) == 4 && parts[1] == "members" && parts[3] == "timesheet":
		a.handleMemberTimesheet(w, r, groupID, parts[2])
	case len(parts) == 2 && parts[1] == "roles":
		a.handleRoles(w, r, groupID)
	case len(parts) == 3 && parts[1] == "roles":
		a.handleRoleResource(w, r, groupID, parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handlePunch(w http.ResponseWriter, r *http.Request, groupID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := a.requireActor(w, r)
	if !ok {
		return
	}

	ev, err := a.punch.Toggle(r.Context(), groupID, actor, a.clk.Now())
	if err != nil {
		handleCoreError(w, r, err)
		return
	}

	obs.ObservePunch(string(ev.Direction))
	_ = a.audit(r.Context(), "punch.toggle", map[string]any{
		"group_id":  groupID,
		"direction": string(ev.Direction),
		"sequence":  ev.Sequence,
	})

	writeJSON(w, http.StatusCreated, punchResponse{
		GroupID:   ev.GroupID,
		MemberID:  ev.MemberID,
		Direction: string(ev.Direction),
		At:        ev.At,
		Sequence:  ev.Sequence,
		ClockedIn: ev.Direction == ledger.In,
	})
}

func (a *API) handleMemberTimesheet(w http.ResponseWriter, r *http.Request, groupID, memberID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, ok := a.requireActor(w, r)
	if !ok {
		return
	}

	allowed, err := a.policy.CanViewMember(r.Context(), groupID, actor, memberID)
	if err != nil {
		handleCoreError(w, r, err)
		return
	}
	if !allowed {
		writeError(w, r, http.StatusForbidden, "viewing another member's timesheet requires a moderator role")
		return
	}

	days, err := parseDays(r.URL.Query().Get("days"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	sheet, err := a.sheets.Summarize(r.Context(), groupID, memberID, days, a.clk.Now())
	if err != nil {
		handleCoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSheetResponse(sheet))
}

func (a *API) handleGroupTimesheet(w http.ResponseWriter, r *http.Request, groupID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, ok := a.requireActor(w, r)
	if !ok {
		return
	}

	allowed, err := a.policy.CanModerate(r.Context(), groupID, actor)
	if err != nil {
		handleCoreError(w, r, err)
		return
	}
	if !allowed {
		writeError(w, r, http.StatusForbidden, "group timesheet requires a moderator role")
		return
	}

	days, err := parseDays(r.URL.Query().Get("days"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	asOf := a.clk.Now()
	totals, err := a.sheets.SummarizeGroup(r.Context(), groupID, days, asOf)
	if err != nil {
		handleCoreError(w, r, err)
		return
	}

	members := make([]memberTotalResponse, 0, len(totals))
	for _, mt := range totals {
		members = append(members, memberTotalResponse{
			MemberID:     mt.MemberID,
			TotalSeconds: mt.Total.Seconds(),
			ClockedIn:    mt.ClockedIn,
		})
	}
	writeJSON(w, http.StatusOK, groupSheetResponse{
		GroupID: groupID,
		Days:    days,
		AsOf:    asOf.UTC(),
		Members: members,
	})
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request, groupID string) {
	actor, ok := a.requireActor(w, r)
	if !ok {
		return
	}
	allowed, err := a.policy.CanModerate(r.Context(), groupID, actor)
	if err != nil {
		handleCoreError(w, r, err)
		return
	}
	if !allowed {
		writeError(w, r, http.StatusForbidden, "role management requires a moderator role")
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.listRoles(w, r, groupID)
	case http.MethodPost:
		a.addRole(w, r, groupID)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listRoles(w http.ResponseWriter, r *http.Request, groupID string) {
	bindings, err := a.policy.Bindings(r.Context(), groupID)
	if err != nil {
		handleCoreError(w, r, err)
		return
	}
	items := make([]roleBindingResponse, 0, len(bindings))
	for _, b := range bindings {
		items = append(items, toBindingResponse(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"group_id": groupID,
		"items":    items,
	})
}

func (a *API) addRole(w http.ResponseWriter, r *http.Request, groupID string) {
	var req roleBindingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.RoleID = strings.TrimSpace(req.RoleID)
	if req.RoleID == "" {
		writeError(w, r, http.StatusBadRequest, "role_id is required")
		return
	}

	b, err := a.policy.AddBinding(r.Context(), groupID, req.RoleID, req.IsMod, req.CanPunch)
	if err != nil {
		handleCoreError(w, r, err)
		return
	}

	_ = a.audit(r.Context(), "policy.role.add", map[string]any{
		"group_id":  groupID,
		"role_id":   b.RoleID,
		"is_mod":    b.IsMod,
		"can_punch": b.CanPunch,
	})
	writeJSON(w, http.StatusCreated, toBindingResponse(b))
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request, groupID, roleID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	actor, ok := a.requireActor(w, r)
	if !ok {
		return
	}
	allowed, err := a.policy.CanModerate(r.Context(), groupID, actor)
	if err != nil {
		handleCoreError(w, r, err)
		return
	}
	if !allowed {
		writeError(w, r, http.StatusForbidden, "role management requires a moderator role")
		return
	}

	if err := a.policy.RemoveBinding(r.Context(), groupID, roleID); err != nil {
		handleCoreError(w, r, err)
		return
	}

	_ = a.audit(r.Context(), "policy.role.remove", map[string]any{
		"group_id": groupID,
		"role_id":  roleID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func toSheetResponse(s timesheet.Sheet) sheetResponse {
	days := make([]dayTotalResponse, 0, len(s.Days))
	for _, d := range s.Days {
		days = append(days, dayTotalResponse{
			Date:          d.Date,
			WorkedSeconds: d.Worked.Seconds(),
			Open:          d.Open,
		})
	}
	anomalies := make([]anomalyResponse, 0, len(s.Anomalies))
	for _, an := range s.Anomalies {
		anomalies = append(anomalies, anomalyResponse{At: an.At, Reason: an.Reason})
	}
	return sheetResponse{
		GroupID:      s.GroupID,
		MemberID:     s.MemberID,
		From:         s.From,
		To:           s.To,
		Days:         days,
		TotalSeconds: s.Total.Seconds(),
		Open:         s.Open,
		Anomalies:    anomalies,
	}
}

func toBindingResponse(b policy.Binding) roleBindingResponse {
	return roleBindingResponse{
		GroupID:   b.GroupID,
		RoleID:    b.RoleID,
		IsMod:     b.IsMod,
		CanPunch:  b.CanPunch,
		UpdatedAt: b.UpdatedAt,
	}
}

func parseDays(raw string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return timesheet.DefaultDays, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("days must be an integer")
	}
	return val, nil
}
