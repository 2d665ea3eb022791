package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/featherwatch/featherwatch/app/accounts"
	"github.com/featherwatch/featherwatch/app/database"
	"github.com/featherwatch/featherwatch/app/tasks"
)

type fakeProber struct {
	err error
}

func (p *fakeProber) Probe(ctx context.Context) error { return p.err }

type fakeScheduler struct {
	runs int
}

func (s *fakeScheduler) Start()                                {}
func (s *fakeScheduler) Stop()                                 {}
func (s *fakeScheduler) EnqueueTask(tasks.TaskInterface) error { return nil }
func (s *fakeScheduler) EnqueueRun()                           { s.runs++ }

type testServer struct {
	engine    *gin.Engine
	scoreRepo *database.ScoreRepositoryImpl
	postRepo  *database.PostRepositoryImpl
	scheduler *fakeScheduler
}

func newTestServer(t *testing.T, prober Prober, apiKey string) *testServer {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	postRepo := database.NewPostRepository(db)
	scoreRepo := database.NewScoreRepository(db)
	scheduler := &fakeScheduler{}
	accountList := []accounts.Account{{Handle: "tester"}}

	handler := NewHandler(db, postRepo, scoreRepo, accountList, prober, scheduler)
	return &testServer{
		engine:    NewServer(handler, apiKey),
		scoreRepo: scoreRepo,
		postRepo:  postRepo,
		scheduler: scheduler,
	}
}

func (s *testServer) request(method, path string, headers map[string]string) *httptest.ResponseRecorder {
	return s.requestJSON(method, path, "", headers)
}

func (s *testServer) requestJSON(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeProber{}, "")

	w := srv.request(http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if body["database"] != "ok" {
		t.Errorf("Expected database ok, got %v", body["database"])
	}
	if body["federated_bridge"] != "ok" {
		t.Errorf("Expected bridge ok, got %v", body["federated_bridge"])
	}
}

func TestHealthReportsUnreachableBridge(t *testing.T) {
	srv := newTestServer(t, &fakeProber{err: errors.New("connection refused")}, "")

	w := srv.request(http.MethodGet, "/health", nil)
	// A dead bridge degrades the health payload, not the status: the
	// live fallback can still collect.
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"federated_bridge":"unreachable"`) {
		t.Errorf("Expected unreachable bridge in payload: %s", w.Body.String())
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeProber{}, "")

	srv.postRepo.UpsertPost(database.StoredPost{
		Account: "tester", PostID: "1", Text: "x",
		CreatedAt: time.Now().UTC(), Source: "federated", CollectedAt: time.Now().UTC(),
	})

	w := srv.request(http.MethodGet, "/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if body["posts"] != float64(1) {
		t.Errorf("Expected 1 post, got %v", body["posts"])
	}
	if body["accounts"] != float64(1) {
		t.Errorf("Expected 1 account, got %v", body["accounts"])
	}
}

func TestLatestReportEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeProber{}, "")

	w := srv.request(http.MethodGet, "/report", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 before any run, got %d", w.Code)
	}

	if _, err := srv.scoreRepo.StoreReport(database.Report{
		RunDate: "2024-06-02", HTML: "<html>the report</html>",
	}); err != nil {
		t.Fatalf("StoreReport failed: %v", err)
	}

	w = srv.request(http.MethodGet, "/report", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "the report") {
		t.Error("Expected the stored report body")
	}
	if w.Header().Get("X-Report-Date") != "2024-06-02" {
		t.Errorf("Unexpected report date header: %s", w.Header().Get("X-Report-Date"))
	}
}

func TestScoresEndpointValidatesDate(t *testing.T) {
	srv := newTestServer(t, &fakeProber{}, "")

	if w := srv.request(http.MethodGet, "/scores?date=junk", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a malformed date, got %d", w.Code)
	}
	if w := srv.request(http.MethodGet, "/scores?date=2024-06-02", nil); w.Code != http.StatusOK {
		t.Errorf("Expected 200 for a valid date, got %d", w.Code)
	}
}

func TestTriggerRunRequiresAPIKey(t *testing.T) {
	srv := newTestServer(t, &fakeProber{}, "secret")

	if w := srv.request(http.MethodPost, "/api/run", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without a key, got %d", w.Code)
	}
	if srv.scheduler.runs != 0 {
		t.Error("Unauthorized request must not enqueue a run")
	}

	w := srv.request(http.MethodPost, "/api/run", map[string]string{"X-API-Key": "secret"})
	if w.Code != http.StatusAccepted {
		t.Errorf("Expected 202 with a valid key, got %d", w.Code)
	}
	if srv.scheduler.runs != 1 {
		t.Errorf("Expected one enqueued run, got %d", srv.scheduler.runs)
	}

	w = srv.request(http.MethodPost, "/api/run", map[string]string{"Authorization": "Bearer secret"})
	if w.Code != http.StatusAccepted {
		t.Errorf("Expected 202 with a bearer token, got %d", w.Code)
	}
}

func TestStorePricesEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeProber{}, "secret")
	auth := map[string]string{"X-API-Key": "secret"}

	body := `[{"series":"oil","date":"2024-06-10","value":81.4},{"series":"oil","date":"2024-06-11","value":82.0}]`
	if w := srv.requestJSON(http.MethodPost, "/api/prices", body, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without a key, got %d", w.Code)
	}

	w := srv.requestJSON(http.MethodPost, "/api/prices", body, auth)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	points, err := srv.postRepo.GetPriceSeries("oil", 30)
	if err != nil {
		t.Fatalf("GetPriceSeries failed: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("Expected 2 stored price points, got %d", len(points))
	}
	if points[0].PriceDate != "2024-06-10" || points[0].Value != 81.4 {
		t.Errorf("Unexpected first point: %+v", points[0])
	}

	// Re-posting a day replaces its value.
	w = srv.requestJSON(http.MethodPost, "/api/prices", `[{"series":"oil","date":"2024-06-11","value":83.5}]`, auth)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 on upsert, got %d", w.Code)
	}
	points, _ = srv.postRepo.GetPriceSeries("oil", 30)
	if len(points) != 2 || points[1].Value != 83.5 {
		t.Errorf("Expected the day's value replaced, got %+v", points)
	}
}

func TestStorePricesEndpointRejectsBadInput(t *testing.T) {
	srv := newTestServer(t, &fakeProber{}, "secret")
	auth := map[string]string{"X-API-Key": "secret"}

	cases := []struct {
		name string
		body string
	}{
		{"unknown series", `[{"series":"gold","date":"2024-06-10","value":1}]`},
		{"malformed date", `[{"series":"oil","date":"junk","value":1}]`},
		{"empty batch", `[]`},
		{"not json", `nope`},
	}
	for _, tc := range cases {
		if w := srv.requestJSON(http.MethodPost, "/api/prices", tc.body, auth); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tc.name, w.Code)
		}
	}

	if points, _ := srv.postRepo.GetPriceSeries("oil", 30); len(points) != 0 {
		t.Errorf("Rejected batches must not be stored, got %+v", points)
	}
}
