package notification

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// ---------------------------------------------------------------------------
// Template Engine Tests
// ---------------------------------------------------------------------------

func TestTemplateEngine_RegisterAndRender(t *testing.T) {
	eng := NewTemplateEngine()
	eng.RegisterTemplate(Template{
		ID:      "test-tpl",
		Subject: "Hello {{name}}",
		Body:    "Dear {{name}}, your code is {{code}}.",
	})

	subject, body, err := eng.Render("test-tpl", map[string]string{
		"name": "Alice",
		"code": "1234",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "Hello Alice" {
		t.Errorf("subject = %q, want %q", subject, "Hello Alice")
	}
	if body != "Dear Alice, your code is 1234." {
		t.Errorf("body = %q", body)
	}
}

func TestTemplateEngine_RenderMissing(t *testing.T) {
	eng := NewTemplateEngine()
	if _, _, err := eng.Render("nonexistent", nil); err == nil {
		t.Fatal("expected error for missing template, got nil")
	}
}

func TestTemplateEngine_SubmissionReceived(t *testing.T) {
	eng := NewTemplateEngine()
	subject, body, err := eng.Render(TemplateSubmissionReceived, map[string]string{
		"patient_name":    "Jane Doe",
		"submitted_at":    "May 14, 2024 4:30 PM UTC",
		"detail_url":      "https://example.com/admin/submission/5",
		"practice_name":   "Redmond Dental Smiles",
		"practice_street": "16710 NE 79th ST-Suite 100",
		"practice_city":   "Redmond, WA 98052",
		"practice_phone":  "425.867.1484",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "New Patient Registration: Jane Doe" {
		t.Errorf("subject = %q", subject)
	}
	for _, want := range []string{
		"Patient Name: Jane Doe\n",
		"https://example.com/admin/submission/5",
		"attached as a PDF",
		"---\nRedmond Dental Smiles\n",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "{{") {
		t.Errorf("unrendered placeholder in body:\n%s", body)
	}
}

func TestTemplateEngine_LeavesUnknownPlaceholders(t *testing.T) {
	eng := NewTemplateEngine()
	eng.RegisterTemplate(Template{ID: "x", Subject: "{{a}} {{b}}"})
	subject, _, _ := eng.Render("x", map[string]string{"a": "1"})
	if subject != "1 {{b}}" {
		t.Errorf("subject = %q", subject)
	}
}

// ---------------------------------------------------------------------------
// SendGrid Tests
// ---------------------------------------------------------------------------

type sendGridCapture struct {
	mu     sync.Mutex
	auth   string
	path   string
	body   map[string]any
	status int
}

func (c *sendGridCapture) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.auth = r.Header.Get("Authorization")
	c.path = r.URL.Path
	raw, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(raw, &c.body)
	w.WriteHeader(c.status)
	if c.status >= 400 {
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad"}]}`))
	}
}

func TestSendGridSender_Send(t *testing.T) {
	capture := &sendGridCapture{status: http.StatusAccepted}
	srv := httptest.NewServer(capture)
	defer srv.Close()

	s := NewSendGridSender("SG.key", "info@example.com", "Front Desk").WithHost(srv.URL)
	err := s.SendEmail(context.Background(), Message{
		To:      "staff@example.com",
		Subject: "New Patient Registration: Jane",
		Body:    "hello",
		Attachments: []Attachment{{
			Filename:    "patient-form-Jane-5.pdf",
			ContentType: "application/pdf",
			Data:        []byte("%PDF-1.3"),
		}},
	})
	if err != nil {
		t.Fatalf("SendEmail: %v", err)
	}

	capture.mu.Lock()
	defer capture.mu.Unlock()
	if capture.auth != "Bearer SG.key" {
		t.Errorf("Authorization = %q", capture.auth)
	}
	if capture.path != "/v3/mail/send" {
		t.Errorf("path = %q", capture.path)
	}
	if capture.body["subject"] != "New Patient Registration: Jane" {
		t.Errorf("subject = %v", capture.body["subject"])
	}
	atts, _ := capture.body["attachments"].([]any)
	if len(atts) != 1 {
		t.Fatalf("attachments = %v", capture.body["attachments"])
	}
	att := atts[0].(map[string]any)
	if att["filename"] != "patient-form-Jane-5.pdf" || att["type"] != "application/pdf" {
		t.Errorf("attachment = %v", att)
	}
	if att["content"] != base64.StdEncoding.EncodeToString([]byte("%PDF-1.3")) {
		t.Errorf("attachment content not base64 of payload")
	}
}

func TestSendGridSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(&sendGridCapture{status: http.StatusBadRequest})
	defer srv.Close()

	s := NewSendGridSender("SG.key", "info@example.com", "").WithHost(srv.URL)
	err := s.SendEmail(context.Background(), Message{To: "a@example.com", Subject: "s", Body: "b"})
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Errorf("expected 400 error, got %v", err)
	}
}

func TestSendGridSender_NotConfigured(t *testing.T) {
	s := NewSendGridSender("", "info@example.com", "")
	if err := s.SendEmail(context.Background(), Message{To: "a@example.com"}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Mock Sender Tests
// ---------------------------------------------------------------------------

func TestMockEmailSender(t *testing.T) {
	m := &MockEmailSender{}
	_ = m.SendEmail(context.Background(), Message{To: "a@example.com", Subject: "one"})
	m.SetFail(true, "smtp down")
	err := m.SendEmail(context.Background(), Message{To: "b@example.com", Subject: "two"})
	if err == nil || err.Error() != "smtp down" {
		t.Errorf("expected failure, got %v", err)
	}
	calls := m.Calls()
	if len(calls) != 2 || calls[1].Subject != "two" {
		t.Errorf("calls = %+v", calls)
	}
}
