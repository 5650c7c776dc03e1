package intake

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redmonddental/intake/internal/platform/notification"
	"github.com/redmonddental/intake/internal/platform/outbox"
)

// Enqueuer accepts outbox work.
type Enqueuer interface {
	Enqueue(ctx context.Context, p outbox.Payload) (*outbox.Task, error)
}

// OutboxNotifier turns stored submissions into outbox tasks.
type OutboxNotifier struct {
	q Enqueuer
}

func NewOutboxNotifier(q Enqueuer) *OutboxNotifier {
	return &OutboxNotifier{q: q}
}

func (n *OutboxNotifier) Notify(ctx context.Context, notice Notice) error {
	_, err := n.q.Enqueue(ctx, outbox.Payload{
		SubmissionID: notice.SubmissionID,
		RowIndex:     notice.RowIndex,
		PatientName:  notice.PatientName,
	})
	return err
}

// Recipient is where staff notifications go.
type Recipient struct {
	To      string
	SiteURL string
}

// Delivery renders the transcript for a stored submission and emails it to
// staff. It is the outbox processor for new submissions.
type Delivery struct {
	svc       *Service
	sender    notification.EmailSender
	templates *notification.TemplateEngine
	rcpt      Recipient
}

// NewDelivery builds the processor. A nil sender means email is not
// configured and every task is skipped.
func NewDelivery(svc *Service, sender notification.EmailSender, templates *notification.TemplateEngine, rcpt Recipient) *Delivery {
	if templates == nil {
		templates = notification.NewTemplateEngine()
	}
	return &Delivery{svc: svc, sender: sender, templates: templates, rcpt: rcpt}
}

func (d *Delivery) Process(ctx context.Context, t outbox.Task) error {
	if d.sender == nil || d.rcpt.To == "" {
		return outbox.Skip("email is not configured")
	}

	ref := t.Payload.SubmissionID
	if ref == "" {
		ref = strconv.Itoa(t.Payload.RowIndex)
	}
	row, v, err := d.svc.View(ctx, ref)
	if errors.Is(err, ErrNotFound) {
		return outbox.Skip("submission %s no longer exists", ref)
	}
	if err != nil {
		return fmt.Errorf("load submission: %w", err)
	}

	transcript, err := RenderTranscript(v)
	if err != nil {
		return fmt.Errorf("render transcript: %w", err)
	}

	subject, body, err := d.templates.Render(notification.TemplateSubmissionReceived, d.templateData(v, row))
	if err != nil {
		return err
	}

	id := v.Meta.SubmissionID
	if id == "" {
		id = strconv.Itoa(row)
	}
	err = d.sender.SendEmail(ctx, notification.Message{
		To:      d.rcpt.To,
		Subject: subject,
		Body:    body,
		Attachments: []notification.Attachment{{
			Filename:    PDFFilename(v.PatientName(), id),
			ContentType: "application/pdf",
			Data:        transcript.PDF,
		}},
	})
	if errors.Is(err, notification.ErrNotConfigured) {
		return outbox.Skip("%v", err)
	}
	return err
}

func (d *Delivery) templateData(v View, row int) map[string]string {
	ref := v.Meta.SubmissionID
	if ref == "" {
		ref = strconv.Itoa(row)
	}
	submitted := v.Text(KeyTimestamp)
	if !v.Meta.Timestamp.IsZero() {
		submitted = v.Meta.Timestamp.UTC().Format("Jan 2, 2006 3:04 PM MST")
	}
	return map[string]string{
		"patient_name":    v.PatientName(),
		"submitted_at":    submitted,
		"detail_url":      d.rcpt.SiteURL + "/admin/submission/" + ref,
		"practice_name":   Practice.Name,
		"practice_street": Practice.Street,
		"practice_city":   Practice.City,
		"practice_phone":  Practice.Phone,
	}
}
