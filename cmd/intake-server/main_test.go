package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/redmonddental/intake/internal/config"
	"github.com/redmonddental/intake/internal/domain/intake"
	"github.com/redmonddental/intake/internal/platform/auth"
	"github.com/redmonddental/intake/internal/platform/db"
)

const testPassword = "front-desk-password"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	hash, err := auth.HashPassword(testPassword, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &config.Config{
		Port:              "0",
		Env:               "test",
		StoreBackend:      "memory",
		SheetName:         "Submissions",
		AdminPasswordHash: hash,
		SessionSecret:     "0123456789abcdef0123456789abcdef",
		SessionTTL:        24 * time.Hour,
		OutboxWorkers:     1,
		OutboxQueueSize:   8,
		CORSOrigins:       []string{"http://localhost:3000"},
		BodyLimit:         "10M",
	}
}

func startTestServer(t *testing.T, cfg *config.Config) *server {
	t.Helper()
	srv, err := newServer(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

func do(t *testing.T, srv *server, method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func login(t *testing.T, srv *server) *http.Cookie {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/api/admin/login", `{"password":"`+testPassword+`"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	t.Fatal("login set no session cookie")
	return nil
}

func TestServer_Health(t *testing.T) {
	srv := startTestServer(t, testConfig(t))

	rec := do(t, srv, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode(t, rec)
	if body["status"] != "ok" || body["version"] != version {
		t.Errorf("unexpected body %v", body)
	}

	rec = do(t, srv, http.MethodGet, "/health/ready", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("ready: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
}

func TestServer_AdminRoutesRequireSession(t *testing.T) {
	srv := startTestServer(t, testConfig(t))

	for _, path := range []string{"/api/submissions", "/api/admin/dashboard", "/api/submission/2", "/api/admin/outbox"} {
		rec := do(t, srv, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", path, rec.Code)
			continue
		}
		body := decode(t, rec)
		if body["success"] != false || body["error"] == "" {
			t.Errorf("%s: unexpected error body %v", path, body)
		}
	}
}

func TestServer_LoginErrors(t *testing.T) {
	srv := startTestServer(t, testConfig(t))

	if rec := do(t, srv, http.MethodPost, "/api/admin/login", `{}`, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("missing password: expected 400, got %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodPost, "/api/admin/login", `{"password":"nope"}`, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password: expected 401, got %d", rec.Code)
	}

	cfg := testConfig(t)
	cfg.AdminPasswordHash = ""
	unset := startTestServer(t, cfg)
	rec := do(t, unset, http.MethodPost, "/api/admin/login", `{"password":"anything"}`, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unset hash: expected 500, got %d", rec.Code)
	}
	if !strings.Contains(decode(t, rec)["error"].(string), "ADMIN_PASSWORD_HASH") {
		t.Error("expected the error to name ADMIN_PASSWORD_HASH")
	}
}

func TestServer_SubmitAndReview(t *testing.T) {
	srv := startTestServer(t, testConfig(t))

	resp := do(t, srv, http.MethodPost, "/api/submit-form", seedJSON(t), nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("submit: expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	receipt := decode(t, resp)
	if receipt["rowIndex"] != float64(2) {
		t.Errorf("expected row 2, got %v", receipt["rowIndex"])
	}
	id, _ := receipt["submissionId"].(string)

	cookie := login(t, srv)

	got := do(t, srv, http.MethodGet, "/api/submission/"+id, "", cookie)
	if got.Code != http.StatusOK {
		t.Fatalf("get by id: expected 200, got %d", got.Code)
	}

	patch := do(t, srv, http.MethodPatch, "/api/submission/2", `{"status":"In Progress"}`, cookie)
	if patch.Code != http.StatusOK {
		t.Fatalf("patch: expected 200, got %d: %s", patch.Code, patch.Body.String())
	}

	dash := decode(t, do(t, srv, http.MethodGet, "/api/admin/dashboard?status=in%20progress", "", cookie))
	if dash["total"] != float64(1) {
		t.Errorf("dashboard filter: expected 1 match, got %v", dash["total"])
	}

	pdf := do(t, srv, http.MethodGet, "/api/submission/2/pdf", "", cookie)
	if pdf.Code != http.StatusOK || !bytes.HasPrefix(pdf.Body.Bytes(), []byte("%PDF")) {
		t.Errorf("pdf: got %d with %q", pdf.Code, pdf.Header().Get("Content-Type"))
	}

	sig := do(t, srv, http.MethodGet, "/api/view-signature?row=2&type=hipaa", "", cookie)
	if sig.Code != http.StatusOK || sig.Header().Get("Cache-Control") != "no-cache" {
		t.Errorf("signature: got %d, Cache-Control %q", sig.Code, sig.Header().Get("Cache-Control"))
	}

	if rec := do(t, srv, http.MethodGet, "/api/admin/outbox/stats", "", cookie); rec.Code != http.StatusOK {
		t.Errorf("outbox stats: expected 200, got %d", rec.Code)
	}

	if rec := do(t, srv, http.MethodDelete, "/api/submission/1", "", cookie); rec.Code != http.StatusBadRequest {
		t.Errorf("delete header row: expected 400, got %d", rec.Code)
	}

	if rec := do(t, srv, http.MethodPost, "/api/admin/logout", "", cookie); rec.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/api/submissions", "", cookie); rec.Code != http.StatusUnauthorized {
		t.Errorf("after logout: expected 401, got %d", rec.Code)
	}
}

func TestServer_SubmitValidation(t *testing.T) {
	srv := startTestServer(t, testConfig(t))

	rec := do(t, srv, http.MethodPost, "/api/submit-form", `{"patientInfo":{"patientName":"X"}}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decode(t, rec)
	if body["success"] != false {
		t.Errorf("unexpected body %v", body)
	}
	if _, ok := body["fields"].(map[string]interface{}); !ok {
		t.Error("expected per-field messages")
	}
}

// seedJSON encodes an uninsured demo registration.
func seedJSON(t *testing.T) string {
	t.Helper()
	recs := intake.SeedRecords("2024-05-14")
	raw, err := json.Marshal(recs[1])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(raw)
}

func TestOpenStore_Unknown(t *testing.T) {
	cfg := testConfig(t)
	cfg.StoreBackend = "dbase"
	if _, err := openStore(context.Background(), cfg); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestOpenStore_SheetsNeedsCredentials(t *testing.T) {
	cfg := testConfig(t)
	cfg.StoreBackend = "sheets"
	if _, err := openStore(context.Background(), cfg); err == nil {
		t.Error("expected error without google credentials")
	}
}

func TestOpenStore_XLSX(t *testing.T) {
	cfg := testConfig(t)
	cfg.StoreBackend = "xlsx"
	cfg.XLSXPath = t.TempDir() + "/submissions.xlsx"
	store, err := openStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer store.Close()
	if _, err := store.Header(context.Background()); err != nil {
		t.Errorf("Header: %v", err)
	}
}

func TestResolveSessionSecret_Configured(t *testing.T) {
	key, generated, err := resolveSessionSecret("a-configured-secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if generated || string(key) != "a-configured-secret" {
		t.Errorf("got %q generated=%v", key, generated)
	}
}

func TestResolveSessionSecret_Generated(t *testing.T) {
	k1, generated, err := resolveSessionSecret("")
	if err != nil || !generated || len(k1) != 32 {
		t.Fatalf("got %d bytes generated=%v err=%v", len(k1), generated, err)
	}
	k2, _, _ := resolveSessionSecret("")
	if bytes.Equal(k1, k2) {
		t.Error("generated secrets should differ")
	}
}

func TestHashPasswordCmd(t *testing.T) {
	for _, tc := range []struct {
		name  string
		args  []string
		stdin string
	}{
		{"argument", []string{"hash-password", "s3cret", "--cost", "4"}, ""},
		{"stdin", []string{"hash-password", "--cost", "4"}, "s3cret\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			cmd := rootCmd()
			cmd.SetArgs(tc.args)
			cmd.SetIn(strings.NewReader(tc.stdin))
			cmd.SetOut(&out)
			if err := cmd.Execute(); err != nil {
				t.Fatalf("execute: %v", err)
			}
			hash := strings.TrimSpace(out.String())
			if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")); err != nil {
				t.Errorf("printed hash does not match: %v", err)
			}
		})
	}
}

func TestHashPasswordCmd_Empty(t *testing.T) {
	cmd := rootCmd()
	cmd.SetArgs([]string{"hash-password"})
	cmd.SetIn(strings.NewReader("\n"))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil {
		t.Error("expected error for empty password")
	}
}

func TestPrintStatuses(t *testing.T) {
	at := time.Date(2024, 5, 14, 9, 0, 0, 0, time.UTC)
	var out bytes.Buffer
	printStatuses(&out, []db.MigrationStatus{
		{Version: 1, Name: "intake_outbox", Applied: true, AppliedAt: &at},
		{Version: 2, Name: "next", Applied: false},
	})
	got := out.String()
	for _, want := range []string{"VERSION", "intake_outbox", "applied", "2024-05-14 09:00:00", "pending"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}
