package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"punchclock.org/internal/auth"
	"punchclock.org/internal/clock"
	"punchclock.org/internal/ledger"
	"punchclock.org/internal/policy"
	"punchclock.org/internal/punch"
	"punchclock.org/internal/timesheet"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
	clk     *clock.Fixed
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	t.Setenv("PUNCHCLOCK_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()

	store := ledger.NewInMemory()
	pol, err := policy.NewService(policy.NewInMemoryStore())
	if err != nil {
		t.Fatalf("policy service: %v", err)
	}
	punchSvc, err := punch.NewService(store, pol)
	if err != nil {
		t.Fatalf("punch service: %v", err)
	}
	sheets, err := timesheet.NewAggregator(store, clock.StaticLocations{Loc: time.UTC})
	if err != nil {
		t.Fatalf("aggregator: %v", err)
	}
	clk := clock.NewFixed(time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC))

	api := New(ReadyProbe{}, "test", punchSvc, sheets, pol, clk)
	api.rateBurst = 100
	api.ratePerSec = 100

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
		clk:     clk,
	}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	if params != nil {
		path += "?" + params.Encode()
	}
	return c.do(http.MethodGet, path, nil, headers)
}

func (c *apiClient) obtainToken(member string, roles []string, admin bool) string {
	c.t.Helper()
	resp := c.post("/v1/auth/token", map[string]any{
		"member": member,
		"roles":  roles,
		"admin":  admin,
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected token status: %d", resp.StatusCode)
	}
	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.t.Fatalf("decode token response: %v", err)
	}
	if payload.Token == "" {
		c.t.Fatalf("empty token issued")
	}
	return payload.Token
}

func bearerHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestPunchToggleFlow(t *testing.T) {
	api := newTestAPI(t)
	headers := bearerHeader(api.obtainToken("amy", nil, false))

	// First punch clocks in.
	resp := api.post("/v1/groups/shop/punch", nil, headers)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	in := decode[punchResponse](t, resp)
	if in.Direction != "in" || !in.ClockedIn {
		t.Fatalf("expected in punch, got %+v", in)
	}
	if in.Sequence == 0 {
		t.Fatalf("expected assigned sequence")
	}

	// Second punch two hours later clocks out.
	api.clk.Advance(2 * time.Hour)
	resp = api.post("/v1/groups/shop/punch", nil, headers)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	out := decode[punchResponse](t, resp)
	if out.Direction != "out" || out.ClockedIn {
		t.Fatalf("expected out punch, got %+v", out)
	}
	if out.Sequence <= in.Sequence {
		t.Fatalf("sequence did not advance: %d -> %d", in.Sequence, out.Sequence)
	}

	// Own timesheet shows the closed interval.
	resp = api.get("/v1/groups/shop/members/amy/timesheet", nil, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	sheet := decode[sheetResponse](t, resp)
	if sheet.TotalSeconds != (2 * time.Hour).Seconds() {
		t.Fatalf("unexpected total: %v", sheet.TotalSeconds)
	}
	if sheet.Open {
		t.Fatalf("expected closed sheet")
	}
	if len(sheet.Days) != timesheet.DefaultDays {
		t.Fatalf("expected %d day buckets, got %d", timesheet.DefaultDays, len(sheet.Days))
	}
}

func TestPunchRequiresAuth(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/v1/groups/shop/punch", nil, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	var errBody map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&errBody); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errBody["error"] == "" {
		t.Fatalf("expected error message")
	}
}

func TestPunchDeniedWhenPolicyRestricts(t *testing.T) {
	api := newTestAPI(t)
	modHeaders := bearerHeader(api.obtainToken("mod", []string{"managers"}, false))

	// Managers become moderators with punch rights; the policy is now
	// configured, so members without a granting role are shut out.
	resp := api.post("/v1/groups/shop/roles", map[string]any{
		"role_id":   "managers",
		"is_mod":    true,
		"can_punch": true,
	}, bearerHeader(api.obtainToken("admin", nil, true)))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	outsider := bearerHeader(api.obtainToken("amy", nil, false))
	resp = api.post("/v1/groups/shop/punch", nil, outsider)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}

	resp2 := api.post("/v1/groups/shop/punch", nil, modHeaders)
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusCreated {
		t.Fatalf("expected granted role to punch, got %d", resp2.StatusCode)
	}
}

func TestGroupTimesheetRequiresModerator(t *testing.T) {
	api := newTestAPI(t)
	member := bearerHeader(api.obtainToken("amy", nil, false))
	admin := bearerHeader(api.obtainToken("boss", nil, true))

	resp := api.post("/v1/groups/shop/punch", nil, member)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	resp.Body.Close()
	api.clk.Advance(30 * time.Minute)

	// Plain member is rejected.
	resp = api.get("/v1/groups/shop/timesheet", nil, member)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Admin sees the open interval counted up to now.
	resp = api.get("/v1/groups/shop/timesheet", nil, admin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	group := decode[groupSheetResponse](t, resp)
	if len(group.Members) != 1 {
		t.Fatalf("expected one member, got %d", len(group.Members))
	}
	row := group.Members[0]
	if row.MemberID != "amy" || !row.ClockedIn {
		t.Fatalf("unexpected row: %+v", row)
	}
	if row.TotalSeconds != (30 * time.Minute).Seconds() {
		t.Fatalf("unexpected total: %v", row.TotalSeconds)
	}
	if group.Days != timesheet.DefaultDays {
		t.Fatalf("expected default window, got %d", group.Days)
	}
}

func TestMemberTimesheetVisibility(t *testing.T) {
	api := newTestAPI(t)
	amy := bearerHeader(api.obtainToken("amy", nil, false))
	bob := bearerHeader(api.obtainToken("bob", nil, false))

	// A member may not read another member's sheet.
	resp := api.get("/v1/groups/shop/members/amy/timesheet", nil, bob)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Self access is always allowed.
	resp = api.get("/v1/groups/shop/members/amy/timesheet", nil, amy)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestTimesheetDayWindowValidation(t *testing.T) {
	api := newTestAPI(t)
	headers := bearerHeader(api.obtainToken("amy", nil, false))

	for _, days := range []string{"0", "32", "-1"} {
		resp := api.get("/v1/groups/shop/members/amy/timesheet", url.Values{"days": []string{days}}, headers)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("days=%s: expected 400, got %d", days, resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp := api.get("/v1/groups/shop/members/amy/timesheet", url.Values{"days": []string{"abc"}}, headers)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-integer days, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.get("/v1/groups/shop/members/amy/timesheet", url.Values{"days": []string{"31"}}, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for max window, got %d", resp.StatusCode)
	}
	sheet := decode[sheetResponse](t, resp)
	if len(sheet.Days) != 31 {
		t.Fatalf("expected 31 buckets, got %d", len(sheet.Days))
	}
}

func TestRoleLifecycle(t *testing.T) {
	api := newTestAPI(t)
	admin := bearerHeader(api.obtainToken("boss", nil, true))

	resp := api.post("/v1/groups/shop/roles", map[string]any{
		"role_id":   "staff",
		"can_punch": true,
	}, admin)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	created := decode[roleBindingResponse](t, resp)
	if created.RoleID != "staff" || !created.CanPunch || created.IsMod {
		t.Fatalf("unexpected binding: %+v", created)
	}

	// Re-posting the same role updates flags in place.
	resp = api.post("/v1/groups/shop/roles", map[string]any{
		"role_id": "staff",
		"is_mod":  true,
	}, admin)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.get("/v1/groups/shop/roles", nil, admin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	listing := decode[struct {
		Items []roleBindingResponse `json:"items"`
	}](t, resp)
	if len(listing.Items) != 1 {
		t.Fatalf("expected single binding, got %d", len(listing.Items))
	}
	if !listing.Items[0].IsMod || listing.Items[0].CanPunch {
		t.Fatalf("upsert did not replace flags: %+v", listing.Items[0])
	}

	resp = api.do(http.MethodDelete, "/v1/groups/shop/roles/staff", nil, admin)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.do(http.MethodDelete, "/v1/groups/shop/roles/staff", nil, admin)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for removed binding, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestTokenEndpointValidation(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/v1/auth/token", map[string]any{"member": ""}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	if body["service"] != "punchclock-api" {
		t.Fatalf("unexpected service name: %v", body["service"])
	}

	resp = api.get("/readyz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	resp.Body.Close()
}
