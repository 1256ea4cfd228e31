package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"siteguard/features/engine"
	"siteguard/features/messaging"
	"siteguard/features/ruletable"
	"siteguard/features/settings"
	"siteguard/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newTestApp(t *testing.T) *Application {
	t.Helper()
	cfg := config.Default()
	cfg.Store.InMemory = true
	cfg.RuleTable.InMemory = true
	ctx := context.Background()

	store, err := settings.Open(cfg.Store)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	table, err := ruletable.Open(ctx, cfg.RuleTable)
	require.NoError(t, err)
	t.Cleanup(func() { _ = table.Close() })

	hub := messaging.NewHub(cfg.Notify)
	t.Cleanup(hub.Close)

	eng := engine.New(cfg, store, table, hub)
	t.Cleanup(func() { _ = eng.Stop() })

	app, err := NewApplication(&cfg.Server, eng)
	require.NoError(t, err)
	return app
}

func do(t *testing.T, app *Application, method, target, body string) (int, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	app.Echo.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func TestNewApplicationRequiresEngine(t *testing.T) {
	_, err := NewApplication(&config.ServerConfig{}, nil)
	assert.ErrorIs(t, err, ErrMissingEngine)
}

func TestSiteRoutes(t *testing.T) {
	app := newTestApp(t)

	code, env := do(t, app, http.MethodGet, "/sites", "")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
	assert.Contains(t, string(env.Data), `"site":"twitter.com"`)

	code, env = do(t, app, http.MethodPost, "/sites", `{"site":"https://www.Reddit.com/r/all"}`)
	require.Equal(t, http.StatusCreated, code)
	assert.JSONEq(t, `{"site":"reddit.com"}`, string(env.Data))

	code, env = do(t, app, http.MethodPost, "/sites", `{"site":"reddit.com"}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.False(t, env.Success)

	code, _ = do(t, app, http.MethodPost, "/sites", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = do(t, app, http.MethodPut, "/sites/x.com/state", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"site":"x.com","enabled":false,"wakeAt"`)

	code, _ = do(t, app, http.MethodPut, "/sites/nope.com/state", `{"enabled":false}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, app, http.MethodDelete, "/sites/twitter.com", "")
	assert.Equal(t, http.StatusOK, code)
	code, _ = do(t, app, http.MethodDelete, "/sites/twitter.com", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestBlockingAndSnoozeRoutes(t *testing.T) {
	app := newTestApp(t)

	code, env := do(t, app, http.MethodPut, "/blocking", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"blockingEnabled":false}`, string(env.Data))

	code, _ = do(t, app, http.MethodPut, "/snooze/duration", `{"minutes":0}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = do(t, app, http.MethodPut, "/snooze/duration", `{"minutes":10}`)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"autoToggleTime":10}`, string(env.Data))

	code, env = do(t, app, http.MethodGet, "/rules/compiled", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestElementRoutes(t *testing.T) {
	app := newTestApp(t)

	code, _ := do(t, app, http.MethodPost, "/elements", `{"domain":"youtube.com","selector":"#related"}`)
	require.Equal(t, http.StatusCreated, code)
	code, _ = do(t, app, http.MethodPost, "/elements", `{"domain":"youtube.com","selector":"broken(no quotes"}`)
	require.Equal(t, http.StatusCreated, code)
	code, _ = do(t, app, http.MethodPost, "/elements", `{"domain":"youtube.com","selector":"#related"}`)
	assert.Equal(t, http.StatusConflict, code)

	code, env := do(t, app, http.MethodGet, "/elements/plan?host=www.youtube.com", "")
	require.Equal(t, http.StatusOK, code)
	var plan struct {
		Targets []struct {
			Selector string `json:"selector"`
		} `json:"targets"`
		Errors []string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &plan))
	require.Len(t, plan.Targets, 1)
	assert.Equal(t, "#related", plan.Targets[0].Selector)
	assert.Len(t, plan.Errors, 1)

	code, _ = do(t, app, http.MethodPut, "/elements/state", `{"domain":"youtube.com","selector":"#related","enabled":false}`)
	require.Equal(t, http.StatusOK, code)

	code, env = do(t, app, http.MethodGet, "/elements", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"selector":"#related","enabled":false`)

	code, _ = do(t, app, http.MethodDelete, "/elements", `{"domain":"youtube.com","selector":"#related"}`)
	assert.Equal(t, http.StatusOK, code)
	code, _ = do(t, app, http.MethodDelete, "/elements", `{"domain":"youtube.com","selector":"#related"}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, app, http.MethodGet, "/elements/plan", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRuleAndMessageRoutes(t *testing.T) {
	app := newTestApp(t)

	code, env := do(t, app, http.MethodPost, "/rules/apply", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"removed":0,"installed":2}`, string(env.Data))

	code, env = do(t, app, http.MethodGet, "/rules", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"urlFilter":"x.com"`)

	code, env = do(t, app, http.MethodGet, "/rules/match?url=https://x.com/home", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"blocked":true`)

	code, env = do(t, app, http.MethodPost, "/messages", `{"action":"simulateTimePassing","minutes":3}`)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"action":"simulateTimePassing"`)

	code, _ = do(t, app, http.MethodPost, "/messages", `{"action":"simulateTimePassing","minutes":-5}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = do(t, app, http.MethodPost, "/messages", `{"action":"reboot"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Error, "unknown action")

	code, env = do(t, app, http.MethodPost, "/messages", `{"action":"updateRules"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"status":"queued"`)

	assert.Eventually(t, func() bool {
		return app.engine.Applier().State().String() == "idle"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHealthAndNotFound(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/health/status", nil)
	rec := httptest.NewRecorder()
	app.Echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"applier":"idle"`)

	code, env := do(t, app, http.MethodGet, "/no/such/route", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, env.Success)

	code, env = do(t, app, http.MethodPatch, "/sites", "")
	assert.Equal(t, http.StatusMethodNotAllowed, code)
	assert.Equal(t, "Method Not Allowed", env.Error)
}
