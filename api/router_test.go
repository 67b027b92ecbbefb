package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clickweave/clickweave/api"
	"github.com/clickweave/clickweave/config"
	"github.com/clickweave/clickweave/input"
	"github.com/clickweave/clickweave/models"
	"github.com/clickweave/clickweave/services/automation"
	"github.com/clickweave/clickweave/services/coordinator"
	"github.com/clickweave/clickweave/services/scheduler"
	"github.com/clickweave/clickweave/storage"
)

type testServer struct {
	router http.Handler
	coord  *coordinator.Coordinator
	dry    *input.DryRun
	cfg    *config.Config
}

func newTestServer(t *testing.T, auth bool) *testServer {
	t.Helper()
	db, err := storage.NewBoltDB(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Auth.Enabled = auth
	cfg.Auth.Secret = "test-secret"

	dry := input.NewDryRun(1920, 1080)
	coord := coordinator.New(db, dry, coordinator.Options{
		Controller: automation.Options{
			StopGrace:  time.Second,
			MoveSettle: time.Millisecond,
			LoopGap:    time.Millisecond,
			Failsafe:   automation.DefaultFailsafe(),
		},
		MaxLogEntries: 100,
	})
	require.NoError(t, coord.Init(context.Background()))
	t.Cleanup(func() {
		coord.Shutdown(context.Background())
		db.Close()
	})

	h := api.NewHandler(coord, cfg)
	return &testServer{
		router: api.SetupRouter(h, nil, "", false),
		coord:  coord,
		dry:    dry,
		cfg:    cfg,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func delayProfile(t *testing.T, id string) *models.Profile {
	t.Helper()
	step, err := models.NewDelayStep("d1", 5*time.Second)
	require.NoError(t, err)
	p := models.NewProfile(id, "long delay")
	p.Steps = []models.Step{step}
	return p
}

func TestHealthAndTraceID(t *testing.T) {
	s := newTestServer(t, false)
	w := s.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))
}

func TestAuthRequiresValidToken(t *testing.T) {
	s := newTestServer(t, true)

	w := s.do(t, http.MethodGet, "/api/v1/profiles", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/profiles", nil, "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	other := config.AuthConfig{Enabled: true, Secret: "someone-else"}
	forged, err := api.IssueToken(other, "mallory", time.Hour)
	require.NoError(t, err)
	w = s.do(t, http.MethodGet, "/api/v1/profiles", nil, forged)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	expired, err := api.IssueToken(s.cfg.Auth, "cli", -time.Minute)
	require.NoError(t, err)
	w = s.do(t, http.MethodGet, "/api/v1/profiles", nil, expired)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := api.IssueToken(s.cfg.Auth, "cli", time.Hour)
	require.NoError(t, err)
	w = s.do(t, http.MethodGet, "/api/v1/profiles", nil, token)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/auth/check", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"auth_enabled":true`)
}

func TestProfileEndpoints(t *testing.T) {
	s := newTestServer(t, false)

	w := s.do(t, http.MethodPost, "/api/v1/profiles", map[string]interface{}{"name": "clicker"}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.Profile
	decode(t, w, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.ClickLeft, created.Click.Kind, "omitted fields keep defaults")

	w = s.do(t, http.MethodPost, "/api/v1/profiles", map[string]interface{}{"id": created.ID, "name": "dup"}, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPut, "/api/v1/profiles/"+created.ID, map[string]interface{}{"description": "updated"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated models.Profile
	decode(t, w, &updated)
	assert.Equal(t, "clicker", updated.Name)
	assert.Equal(t, "updated", updated.Description)

	w = s.do(t, http.MethodPut, "/api/v1/profiles/"+created.ID, map[string]interface{}{
		"timing": map[string]interface{}{"interval_ms": 1},
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/profiles", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":1`)

	w = s.do(t, http.MethodDelete, "/api/v1/profiles/"+created.ID, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodGet, "/api/v1/profiles/"+created.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionControlEndpoints(t *testing.T) {
	s := newTestServer(t, false)
	require.NoError(t, s.coord.SaveProfile(context.Background(), delayProfile(t, "slow")))

	w := s.do(t, http.MethodPost, "/api/v1/profiles/missing/start", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/automation/pause", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code, "nothing to pause while idle")

	w = s.do(t, http.MethodPost, "/api/v1/profiles/slow/start", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/profiles/slow/start", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/automation/pause", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, automation.StatePaused, s.coord.Controller().State())

	w = s.do(t, http.MethodPost, "/api/v1/automation/toggle-pause", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, automation.StateRunning, s.coord.Controller().State())

	w = s.do(t, http.MethodPost, "/api/v1/automation/emergency-stop", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, automation.StateIdle, s.coord.Controller().State())

	// Stopping while idle is not an error.
	w = s.do(t, http.MethodPost, "/api/v1/automation/stop", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "success.automationStopped")
	assert.Equal(t, automation.StateIdle, s.coord.Controller().State())

	w = s.do(t, http.MethodGet, "/api/v1/automation/status", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"last_profile_id":"slow"`)
}

func TestFailsafeEndpoint(t *testing.T) {
	s := newTestServer(t, false)

	w := s.do(t, http.MethodPut, "/api/v1/automation/failsafe", map[string]interface{}{"corner": "middle"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, "/api/v1/automation/failsafe", map[string]interface{}{"corner": "bottom-right", "size": 20}, "")
	require.Equal(t, http.StatusOK, w.Code)
	f := s.coord.Controller().Failsafe()
	assert.Equal(t, automation.CornerBottomRight, f.Corner)
	assert.Equal(t, 20, f.Size)
	assert.True(t, f.Enabled, "fields left out of the body are kept")
}

func TestScheduleEndpoints(t *testing.T) {
	s := newTestServer(t, false)

	w := s.do(t, http.MethodPost, "/api/v1/schedules/validate", map[string]string{"cron_expression": "*/5 * * * *"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"valid":true`)

	w = s.do(t, http.MethodPost, "/api/v1/schedules/validate", map[string]string{"cron_expression": "every day"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"valid":false`)

	trigger := models.ScheduleTrigger{Enabled: true, Start: time.Now().Add(time.Hour), RepeatInterval: time.Hour}
	w = s.do(t, http.MethodPost, "/api/v1/schedules/preview", map[string]interface{}{"schedule_trigger": trigger, "count": 3}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var preview struct {
		NextRuns []time.Time `json:"next_runs"`
	}
	decode(t, w, &preview)
	require.Len(t, preview.NextRuns, 3)
	assert.Equal(t, time.Hour, preview.NextRuns[1].Sub(preview.NextRuns[0]))

	short := models.ScheduleTrigger{Enabled: true, Start: time.Now(), RepeatInterval: time.Millisecond}
	w = s.do(t, http.MethodPost, "/api/v1/schedules/preview", map[string]interface{}{"schedule_trigger": short}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/schedules/nope/pause", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	p := delayProfile(t, "nightly")
	p.Trigger = models.TriggerScheduled
	p.Schedule = &trigger
	require.NoError(t, s.coord.SaveProfile(context.Background(), p))

	w = s.do(t, http.MethodPost, "/api/v1/schedules/pause-all", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)

	w = s.do(t, http.MethodGet, "/api/v1/schedules/stats", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats scheduler.Stats
	decode(t, w, &stats)
	assert.Equal(t, 1, stats.TotalJobs)
	assert.Equal(t, 1, stats.PausedJobs)
	assert.Nil(t, stats.NextRun)

	// Editing the profile keeps its schedule paused.
	p.Name = "nightly run"
	require.NoError(t, s.coord.SaveProfile(context.Background(), p))
	job := s.coord.Schedules()
	require.Len(t, job, 1)
	assert.True(t, job[0].Paused)
	assert.Equal(t, "nightly run", job[0].ProfileName)

	w = s.do(t, http.MethodPost, "/api/v1/schedules/resume-all", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
	decode(t, s.do(t, http.MethodGet, "/api/v1/schedules/stats", nil, ""), &stats)
	assert.Equal(t, 1, stats.ActiveJobs)
	assert.Equal(t, "nightly", stats.NextProfile)
}

func TestPixelEndpoints(t *testing.T) {
	s := newTestServer(t, false)
	s.dry.SetPixel(models.Point{X: 10, Y: 20}, models.RGB{R: 255, G: 128})

	w := s.do(t, http.MethodGet, "/api/v1/pixel/color?x=10&y=20", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"hex":"ff8000"`)

	w = s.do(t, http.MethodGet, "/api/v1/pixel/color?x=ten&y=20", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	probe := models.PixelTrigger{
		Enabled:         true,
		Point:           models.Point{X: 10, Y: 20},
		Color:           models.RGB{R: 250, G: 130},
		Tolerance:       10,
		Condition:       models.ConditionExact,
		CheckIntervalMS: 100,
	}
	w = s.do(t, http.MethodPost, "/api/v1/pixel/probe", probe, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"matches":true`)
}

func TestLogEndpoints(t *testing.T) {
	s := newTestServer(t, false)
	require.NoError(t, s.coord.SaveProfile(context.Background(), delayProfile(t, "slow")))
	require.NoError(t, s.coord.StartProfile(context.Background(), "slow"))
	require.True(t, s.coord.Stop())

	require.Eventually(t, func() bool {
		logs, err := s.coord.Logs("slow", 0)
		return err == nil && len(logs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	w := s.do(t, http.MethodGet, "/api/v1/logs?profile_id=slow", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":1`)

	w = s.do(t, http.MethodGet, "/api/v1/logs/export", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".csv")
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	assert.Len(t, lines, 2)
	assert.Equal(t, strings.Join(models.CSVHeader, ","), lines[0])

	w = s.do(t, http.MethodDelete, "/api/v1/logs", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	logs, err := s.coord.Logs("", 0)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

// closeNotifyRecorder satisfies the CloseNotifier gin's Stream expects.
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *closeNotifyRecorder) CloseNotify() <-chan bool { return r.closed }

func TestEventStream(t *testing.T) {
	s := newTestServer(t, false)
	require.NoError(t, s.coord.SaveProfile(context.Background(), delayProfile(t, "slow")))

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil).WithContext(ctx)
	w := &closeNotifyRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.router.ServeHTTP(w, req)
	}()

	require.Eventually(t, func() bool { return s.coord.Hub().Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.coord.StartProfile(context.Background(), "slow"))
	require.True(t, s.coord.Stop())
	time.Sleep(100 * time.Millisecond)
	cancel()
	wg.Wait()

	body := w.Body.String()
	assert.Contains(t, body, "event:started")
	assert.Contains(t, body, "event:stopped")
	assert.Equal(t, 0, s.coord.Hub().Subscribers(), "subscription released on disconnect")
}
