package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"punchclock.org/internal/audit"
	"punchclock.org/internal/clock"
	"punchclock.org/internal/ledger"
	"punchclock.org/internal/obs"
	"punchclock.org/internal/policy"
	"punchclock.org/internal/punch"
	"punchclock.org/internal/timesheet"
)

// ReadyProbe checks downstream readiness (ping the database when one is
// configured; the in-memory stores are always ready).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the punch, timesheet and policy services.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	punch  *punch.Service
	sheets *timesheet.Aggregator
	policy *policy.Service
	clk    clock.Clock

	tokenTTL   time.Duration
	rateBurst  int
	ratePerSec int
}

func New(rp ReadyProbe, version string, punchSvc *punch.Service, sheets *timesheet.Aggregator, pol *policy.Service, clk clock.Clock) *API {
	if clk == nil {
		clk = clock.System{}
	}
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		punch:      punchSvc,
		sheets:     sheets,
		policy:     pol,
		clk:        clk,
		tokenTTL:   12 * time.Hour,
		rateBurst:  20,
		ratePerSec: 10,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)
	a.mux.HandleFunc("/v1/groups/", a.handleGroups)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Tune overrides the token TTL and rate limits from configuration. Call
// before Handler.
func (a *API) Tune(tokenTTL time.Duration, burst, perSec int) {
	if tokenTTL > 0 {
		a.tokenTTL = tokenTTL
	}
	if burst > 0 {
		a.rateBurst = burst
	}
	if perSec > 0 {
		a.ratePerSec = perSec
	}
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "punchclock-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "punchclock-api",
		"time":    a.clk.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func (a *API) audit(ctx context.Context, event string, fields map[string]any) error {
	return audit.LogEvent(ctx, event, fields)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleCoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, punch.ErrInvalidInput),
		errors.Is(err, timesheet.ErrInvalidDayCount),
		errors.Is(err, timesheet.ErrInvalidInput),
		errors.Is(err, policy.ErrInvalidInput),
		errors.Is(err, ledger.ErrInvalidEvent):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, policy.ErrDenied):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, policy.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, punch.ErrClockSkew):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrOutOfOrder):
		// Should be unreachable through Toggle; if the store reports it the
		// ledger and the state machine disagree, so surface loudly.
		obs.Logger().Printf(`{"level":"error","msg":"ledger ordering violation","error":%q}`, err.Error())
		writeError(w, r, http.StatusInternalServerError, "internal error")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
