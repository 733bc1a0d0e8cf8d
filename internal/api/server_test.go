package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/tracker-core/internal/apperror"
	"github.com/nerrad567/tracker-core/internal/device"
	"github.com/nerrad567/tracker-core/internal/firmware"
	"github.com/nerrad567/tracker-core/internal/infrastructure/config"
	"github.com/nerrad567/tracker-core/internal/infrastructure/logging"
	"github.com/nerrad567/tracker-core/internal/paging"
	"github.com/nerrad567/tracker-core/internal/reconcile"
)

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

type fakeDevices struct {
	totals map[device.AssignStatus]int
	err    error
}

func (f fakeDevices) List(_ context.Context, flt device.Filter, _ paging.Page) (paging.Result[device.Device], error) {
	if f.err != nil {
		return paging.Result[device.Device]{}, f.err
	}
	return paging.Result[device.Device]{Total: f.totals[flt.AssignStatus]}, nil
}

type fakeFirmware struct {
	fw  *firmware.Firmware
	err error
}

func (f fakeFirmware) Latest(context.Context) (*firmware.Firmware, error) { return f.fw, f.err }

type fakeReconciler struct {
	mu      sync.Mutex
	calls   int
	block   chan struct{}
	started chan struct{}
	err     error
}

func (f *fakeReconciler) Run(context.Context) (reconcile.Report, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		<-f.block
	}
	return reconcile.Report{LinksAdded: 1}, f.err
}

type fakeQueue struct{}

func (fakeQueue) Len() int { return 3 }
func (fakeQueue) Cap() int { return 256 }

func testLogger() *logging.Logger {
	return logging.NewWithWriter(config.LoggingConfig{Level: "error", Format: "text"}, "test", io.Discard)
}

func newTestServer(t *testing.T, mutate func(*Deps)) *Server {
	t.Helper()
	deps := Deps{
		Listen:  "127.0.0.1:0",
		Logger:  testLogger(),
		Version: "1.2.3",
		Checks: []Check{
			{Name: "database", Checker: checkFunc(func(context.Context) error { return nil })},
		},
		Devices: fakeDevices{totals: map[device.AssignStatus]int{
			device.NotAssigned: 4, device.PendingApproval: 1, device.Assigned: 7,
		}},
		Firmware:   fakeFirmware{fw: &firmware.Firmware{ID: "fw-1", Version: "v2.0.0", IsLatest: true}},
		Reconciler: &fakeReconciler{},
		Outbox:     fakeQueue{},
	}
	if mutate != nil {
		mutate(&deps)
	}
	s, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	return v
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New(Deps{}) returned no error")
	}
	if _, err := New(Deps{Logger: testLogger()}); err == nil {
		t.Error("New() without collaborators returned no error")
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
	if got := decode[HealthResponse](t, rec); got.Status != "ok" || got.Checks["database"] != "ok" {
		t.Errorf("body = %+v", got)
	}

	failing := newTestServer(t, func(d *Deps) {
		d.Checks = append(d.Checks, Check{Name: "mqtt", Checker: checkFunc(func(context.Context) error {
			return errors.New("not connected")
		})})
	})
	rec = do(t, failing.Handler(), http.MethodGet, "/health")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	got := decode[HealthResponse](t, rec)
	if got.Status != "degraded" || got.Checks["mqtt"] != "not connected" || got.Checks["database"] != "ok" {
		t.Errorf("body = %+v", got)
	}
}

func TestSystem(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/api/v1/system")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := decode[SystemSnapshot](t, rec)
	if got.Version != "1.2.3" || got.Devices["assigned"] != 7 || got.Devices["pending_approval"] != 1 {
		t.Errorf("snapshot = %+v", got)
	}
	if got.Notifications == nil || got.Notifications.Queued != 3 || got.Notifications.Capacity != 256 {
		t.Errorf("notifications = %+v", got.Notifications)
	}
	if got.Database != nil {
		t.Errorf("database stats without a DB: %+v", got.Database)
	}

	broken := newTestServer(t, func(d *Deps) { d.Devices = fakeDevices{err: errors.New("disk I/O error")} })
	rec = do(t, broken.Handler(), http.MethodGet, "/api/v1/system")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if body := decode[apperror.Body](t, rec); body.Message == "disk I/O error" {
		t.Error("internal error detail leaked to the client")
	}
}

func TestLatestFirmware(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/api/v1/firmware/latest")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := decode[firmware.Firmware](t, rec); got.Version != "v2.0.0" {
		t.Errorf("firmware = %+v", got)
	}

	none := newTestServer(t, func(d *Deps) {
		d.Firmware = fakeFirmware{err: apperror.NewNotFound("Firmware not found", firmware.ErrFirmwareNotFound)}
	})
	rec = do(t, none.Handler(), http.MethodGet, "/api/v1/firmware/latest")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if body := decode[apperror.Body](t, rec); body.Code != string(apperror.NotFound) || body.Message != "Firmware not found" {
		t.Errorf("body = %+v", body)
	}
}

func TestReconcile(t *testing.T) {
	r := &fakeReconciler{}
	s := newTestServer(t, func(d *Deps) { d.Reconciler = r })
	h := s.Handler()

	if rec := do(t, h, http.MethodGet, "/api/v1/reconcile"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", rec.Code)
	}

	rec := do(t, h, http.MethodPost, "/api/v1/reconcile")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := decode[reconcile.Report](t, rec); got.LinksAdded != 1 {
		t.Errorf("report = %+v", got)
	}
	if r.calls != 1 {
		t.Errorf("reconciler called %d times", r.calls)
	}
}

func TestReconcile_RejectsOverlap(t *testing.T) {
	r := &fakeReconciler{block: make(chan struct{}), started: make(chan struct{})}
	s := newTestServer(t, func(d *Deps) { d.Reconciler = r })
	h := s.Handler()

	first := make(chan int, 1)
	go func() {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/reconcile", nil))
		first <- rec.Code
	}()
	<-r.started

	if rec := do(t, h, http.MethodPost, "/api/v1/reconcile"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("overlapping status = %d, want 503", rec.Code)
	}
	close(r.block)
	if code := <-first; code != http.StatusOK {
		t.Errorf("first status = %d, want 200", code)
	}
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/api/v1/nope")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if body := decode[apperror.Body](t, rec); body.Code != errCodeNotFound {
		t.Errorf("body = %+v", body)
	}
}

func TestStartServesMetricsAndClose(t *testing.T) {
	s := newTestServer(t, nil)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + s.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/metrics status = %d", resp.StatusCode)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := client.Get("http://" + s.Addr() + "/health"); err == nil {
		t.Error("server still answering after Close")
	}
}
