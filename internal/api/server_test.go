package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hearth-home/hearth-core/internal/audit"
	"github.com/hearth-home/hearth-core/internal/auth"
	"github.com/hearth-home/hearth-core/internal/entity"
	"github.com/hearth-home/hearth-core/internal/infrastructure/config"
	"github.com/hearth-home/hearth-core/internal/infrastructure/logging"
	"github.com/hearth-home/hearth-core/internal/room"
	"github.com/hearth-home/hearth-core/internal/schedule"
)

// Compile-time check that the real engine satisfies the API's view of it.
var _ Engine = (*room.Manager)(nil)

const (
	testJWTSecret = "test-secret-key-at-least-32-characters-long"
	testPassword  = "correct horse battery staple"
)

// Argon2id hashing is deliberately slow, so all test users share one hash.
var (
	testHashOnce sync.Once
	testHash     string
)

func testPasswordHash(t *testing.T) string {
	t.Helper()
	testHashOnce.Do(func() {
		var err error
		testHash, err = auth.HashPassword(testPassword)
		if err != nil {
			t.Fatalf("HashPassword: %v", err)
		}
	})
	return testHash
}

// recordedOverride captures one SetValueManually call.
type recordedOverride struct {
	Room     string
	Override room.Override
	Source   string
}

// recordedReschedule captures one Reschedule call.
type recordedReschedule struct {
	Room   string
	Cancel bool
}

// mockEngine is a test double for the scheduling engine.
type mockEngine struct {
	mu                 sync.Mutex
	statuses           []room.Status
	evalOutcome        schedule.Outcome
	evalErr            error
	setValueErr        error
	overrides          []recordedOverride
	reschedules        []recordedReschedule
	rescheduleAllCalls []bool
}

var _ Engine = (*mockEngine)(nil)

func newMockEngine() *mockEngine {
	return &mockEngine{
		statuses: []room.Status{
			{Name: "bedroom", FriendlyName: "Bedroom", ScheduledValue: 17.0},
			{
				Name:           "living",
				FriendlyName:   "Living Room",
				ScheduledValue: 21.0,
				Actors:         []room.ActorStatus{{ID: "climate.living", Type: "thermostat"}},
			},
		},
	}
}

func (m *mockEngine) Rooms() []room.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]room.Status, len(m.statuses))
	copy(out, m.statuses)
	return out
}

func (m *mockEngine) RoomStatus(name string) (room.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range m.statuses {
		if st.Name == name {
			return st, nil
		}
	}
	return room.Status{}, fmt.Errorf("%w: %q", room.ErrRoomNotFound, name)
}

func (m *mockEngine) EvaluateRoomAt(name string, _ time.Time) (schedule.Outcome, error) {
	if _, err := m.RoomStatus(name); err != nil {
		return schedule.Outcome{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evalOutcome, m.evalErr
}

func (m *mockEngine) SetValueManually(ctx context.Context, name string, req room.Override) error {
	if _, err := m.RoomStatus(name); err != nil {
		return err
	}
	source, _ := audit.SourceFromContext(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setValueErr != nil {
		return m.setValueErr
	}
	m.overrides = append(m.overrides, recordedOverride{Room: name, Override: req, Source: source})
	return nil
}

func (m *mockEngine) Reschedule(_ context.Context, name string, cancelRunning bool) error {
	if _, err := m.RoomStatus(name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reschedules = append(m.reschedules, recordedReschedule{Room: name, Cancel: cancelRunning})
	return nil
}

func (m *mockEngine) RescheduleAll(_ context.Context, cancelRunning bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rescheduleAllCalls = append(m.rescheduleAllCalls, cancelRunning)
}

func (m *mockEngine) GetOverrides() []recordedOverride {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]recordedOverride, len(m.overrides))
	copy(out, m.overrides)
	return out
}

func (m *mockEngine) GetReschedules() []recordedReschedule {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]recordedReschedule, len(m.reschedules))
	copy(out, m.reschedules)
	return out
}

// fakeAuditRepo records List calls and serves canned entries.
type fakeAuditRepo struct {
	mu         sync.Mutex
	entries    []audit.AuditLog
	lastFilter audit.Filter
}

func (f *fakeAuditRepo) Create(_ context.Context, log *audit.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *log)
	return nil
}

func (f *fakeAuditRepo) List(_ context.Context, filter audit.Filter) (*audit.ListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter
	logs := make([]audit.AuditLog, len(f.entries))
	copy(logs, f.entries)
	return &audit.ListResult{Logs: logs, Total: len(logs), Limit: filter.Limit, Offset: filter.Offset}, nil
}

// testServer creates a Server wired to a mock engine and a real
// authenticator with three users, one per role.
func testServer(t *testing.T, eng *mockEngine) *Server {
	t.Helper()

	hash := testPasswordHash(t)
	authenticator, err := auth.NewAuthenticator([]auth.Credentials{
		{Username: "vera", PasswordHash: hash, Role: auth.RoleViewer},
		{Username: "oscar", PasswordHash: hash, Role: auth.RoleOperator},
		{Username: "alice", PasswordHash: hash, Role: auth.RoleAdmin},
	}, testJWTSecret, 15*time.Minute)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:    log,
		Engine:    eng,
		Entities:  entity.NewRegistry(),
		Snippets:  schedule.NewSnippetRegistry(nil),
		Auth:      authenticator,
		AuditRepo: &fakeAuditRepo{},
		Version:   "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Run the hub directly; Start would bind a listener.
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Hub().Run(ctx)

	return srv
}

// startTestAPI serves the router over httptest.
func startTestAPI(t *testing.T, eng *mockEngine) (*httptest.Server, *Server) {
	t.Helper()
	srv := testServer(t, eng)
	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)
	return ts, srv
}

// login authenticates against the test server and returns the access token.
func login(t *testing.T, baseURL, username string) string {
	t.Helper()

	body, _ := json.Marshal(loginRequest{Username: username, Password: testPassword}) //nolint:errcheck // static struct
	resp, err := http.Post(baseURL+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		t.Fatalf("decoding login response: %v", err)
	}
	return lr.AccessToken
}

// doRequest performs an HTTP request with optional Bearer token and JSON body.
func doRequest(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshalling body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

// decodeJSON decodes a response body and closes it.
func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	authenticator, err := auth.NewAuthenticator(nil, testJWTSecret, 0)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}

	base := Deps{
		Logger:   log,
		Engine:   newMockEngine(),
		Entities: entity.NewRegistry(),
		Auth:     authenticator,
	}

	tests := []struct {
		name   string
		mutate func(*Deps)
	}{
		{"missing logger", func(d *Deps) { d.Logger = nil }},
		{"missing engine", func(d *Deps) { d.Engine = nil }},
		{"missing entities", func(d *Deps) { d.Entities = nil }},
		{"missing auth", func(d *Deps) { d.Auth = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := base
			tt.mutate(&deps)
			if _, err := New(deps); err == nil {
				t.Fatal("New() accepted incomplete dependencies")
			}
		})
	}

	if _, err := New(base); err != nil {
		t.Fatalf("New() with complete deps: %v", err)
	}
}

func TestHealth(t *testing.T) {
	ts, _ := startTestAPI(t, newMockEngine())

	resp, err := http.Get(ts.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]any
	decodeJSON(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
	if body["version"] != "test" {
		t.Errorf("version = %v, want test", body["version"])
	}
}

func TestLogin(t *testing.T) {
	ts, _ := startTestAPI(t, newMockEngine())

	token := login(t, ts.URL, "oscar")
	if token == "" {
		t.Fatal("empty access token")
	}

	// The token must verify against the same authenticator config.
	claims, err := auth.ParseToken(token, testJWTSecret)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Subject != "oscar" {
		t.Errorf("subject = %q, want oscar", claims.Subject)
	}
	if claims.Role != auth.RoleOperator {
		t.Errorf("role = %q, want operator", claims.Role)
	}
}

func TestLoginRejected(t *testing.T) {
	ts, _ := startTestAPI(t, newMockEngine())

	tests := []struct {
		name string
		body string
		want int
	}{
		{"wrong password", `{"username":"alice","password":"nope"}`, http.StatusUnauthorized},
		{"unknown user", `{"username":"mallory","password":"whatever"}`, http.StatusUnauthorized},
		{"malformed body", `{broken`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/api/v1/auth/login", "application/json", bytes.NewReader([]byte(tt.body)))
			if err != nil {
				t.Fatalf("POST /auth/login: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestAuthRequired(t *testing.T) {
	ts, _ := startTestAPI(t, newMockEngine())

	tests := []struct {
		name  string
		token string
	}{
		{"no token", ""},
		{"garbage token", "not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, http.MethodGet, ts.URL+"/api/v1/rooms", tt.token, nil)
			resp.Body.Close()
			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", resp.StatusCode)
			}
		})
	}
}

func TestWrongSecretTokenRejected(t *testing.T) {
	ts, _ := startTestAPI(t, newMockEngine())

	token, err := auth.GenerateAccessToken("alice", auth.RoleAdmin, "some-other-secret-entirely-here", time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/v1/rooms", token, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestRoleEnforcement(t *testing.T) {
	ts, _ := startTestAPI(t, newMockEngine())

	viewer := login(t, ts.URL, "vera")
	operator := login(t, ts.URL, "oscar")
	admin := login(t, ts.URL, "alice")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		token  string
		want   int
	}{
		{"viewer reads rooms", http.MethodGet, "/api/v1/rooms", nil, viewer, http.StatusOK},
		{"viewer cannot override", http.MethodPut, "/api/v1/rooms/living/value", setValueRequest{Expression: "Off()"}, viewer, http.StatusForbidden},
		{"viewer cannot reschedule", http.MethodPost, "/api/v1/reschedule", nil, viewer, http.StatusForbidden},
		{"viewer cannot read audit", http.MethodGet, "/api/v1/audit", nil, viewer, http.StatusForbidden},
		{"operator can override", http.MethodPut, "/api/v1/rooms/living/value", setValueRequest{Expression: "Off()"}, operator, http.StatusOK},
		{"operator cannot read audit", http.MethodGet, "/api/v1/audit", nil, operator, http.StatusForbidden},
		{"admin can override", http.MethodPut, "/api/v1/rooms/living/value", setValueRequest{Expression: "Off()"}, admin, http.StatusOK},
		{"admin can read audit", http.MethodGet, "/api/v1/audit", nil, admin, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, tt.method, ts.URL+tt.path, tt.token, tt.body)
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	ts, _ := startTestAPI(t, newMockEngine())

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/rooms", nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Origin", "http://panel.local")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS /rooms: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	// Empty allowed-origins list admits any origin.
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://panel.local" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	ts, _ := startTestAPI(t, newMockEngine())

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/health", nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("X-Request-ID", "req-42")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()

	if got := resp.Header.Get("X-Request-ID"); got != "req-42" {
		t.Errorf("X-Request-ID = %q, want req-42", got)
	}
}

func TestErrorEnvelope(t *testing.T) {
	ts, _ := startTestAPI(t, newMockEngine())
	token := login(t, ts.URL, "vera")

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/v1/rooms/attic", token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}

	var e Error
	decodeJSON(t, resp, &e)
	if e.Status != http.StatusNotFound || e.Code != ErrCodeNotFound || e.Message == "" {
		t.Errorf("error envelope = %+v", e)
	}
}
