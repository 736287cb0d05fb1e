package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"hireline_backend/internal/notification/email"
	"hireline_backend/internal/notification/outbox"
	"hireline_backend/platform/config"
	"hireline_backend/platform/logger"
)

// maxDeliveryAttempts bounds how often a row is retried before it is parked
// as failed.
const maxDeliveryAttempts = 5

// DeliveryStore is the outbox surface the deliverer drives.
type DeliveryStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (outbox.Record, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkPending(ctx context.Context, id uuid.UUID, lastError *string) error
	MarkSucceeded(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
}

// Deliverer executes one outbox row end to end: load, render, send, record
// the outcome. Retry scheduling lives in the outbox row itself; a transient
// send error puts the row back to pending for the dispatcher to re-claim.
type Deliverer struct {
	outbox DeliveryStore
	sender email.Sender
	cfg    config.NotificationConfig
	log    *logger.Logger
}

// NewDeliverer creates a new outbox deliverer.
func NewDeliverer(ob DeliveryStore, sender email.Sender, cfg config.NotificationConfig, log *logger.Logger) *Deliverer {
	return &Deliverer{outbox: ob, sender: sender, cfg: cfg, log: log}
}

// Deliver sends the notification behind one outbox row. Rows already
// delivered are skipped, making redelivery of the same task id harmless.
func (d *Deliverer) Deliver(ctx context.Context, id uuid.UUID) error {
	rec, err := d.outbox.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load outbox row %s: %w", id, err)
	}

	switch rec.Status {
	case outbox.StatusSucceeded:
		return nil
	case outbox.StatusFailed:
		d.log.Warn("skipping parked outbox row", "outboxId", id)
		return nil
	}

	if err := d.outbox.MarkProcessing(ctx, id); err != nil {
		return fmt.Errorf("mark outbox row processing: %w", err)
	}
	attempt := rec.Attempts + 1

	if rec.Kind != KindEmail {
		d.park(ctx, id, fmt.Sprintf("unknown outbox kind %q", rec.Kind))
		return fmt.Errorf("unknown outbox kind %q", rec.Kind)
	}
	switch rec.Template {
	case TemplateRecommendationsReady, TemplateBookingConfirmed, TemplateRequestFailed:
	default:
		d.park(ctx, id, fmt.Sprintf("unknown email template %q", rec.Template))
		return fmt.Errorf("unknown email template %q", rec.Template)
	}

	var payload EmailPayload
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		d.park(ctx, id, "payload does not decode: "+err.Error())
		return fmt.Errorf("decode outbox payload %s: %w", id, err)
	}

	if err := d.sendEmail(ctx, rec.Template, payload); err != nil {
		if attempt >= maxDeliveryAttempts {
			d.park(ctx, id, err.Error())
			return fmt.Errorf("deliver %s after %d attempts: %w", id, attempt, err)
		}
		msg := err.Error()
		if markErr := d.outbox.MarkPending(ctx, id, &msg); markErr != nil {
			d.log.Error("failed to reschedule outbox row", "outboxId", id, "error", markErr)
		}
		return fmt.Errorf("deliver %s (attempt %d): %w", id, attempt, err)
	}

	if err := d.outbox.MarkSucceeded(ctx, id); err != nil {
		d.log.Error("notification sent but row not marked succeeded", "outboxId", id, "error", err)
	}
	d.log.Info("notification delivered", "outboxId", id, "template", rec.Template, "attempt", attempt)
	return nil
}

func (d *Deliverer) sendEmail(ctx context.Context, template string, p EmailPayload) error {
	statusURL := d.statusURL(p.RequestID)
	attachments := d.statusAttachments(statusURL)

	switch template {
	case TemplateRecommendationsReady:
		return d.sender.SendRecommendationsEmail(ctx, p.To, p.ServiceType, statusURL, p.ProviderCount, attachments...)
	case TemplateBookingConfirmed:
		return d.sender.SendBookingConfirmedEmail(ctx, p.To, p.ProviderName, p.AppointmentDay, p.AppointmentTime, statusURL, attachments...)
	case TemplateRequestFailed:
		return d.sender.SendRequestFailedEmail(ctx, p.To, p.ServiceType, p.Outcome, statusURL, attachments...)
	default:
		return fmt.Errorf("unknown email template %q", template)
	}
}

// park marks a row permanently failed. Used for poison rows and exhausted
// retries.
func (d *Deliverer) park(ctx context.Context, id uuid.UUID, reason string) {
	if err := d.outbox.MarkFailed(ctx, id, reason); err != nil {
		d.log.Error("failed to park outbox row", "outboxId", id, "error", err)
	}
}

func (d *Deliverer) statusURL(requestID string) string {
	base := strings.TrimRight(d.cfg.GetAppBaseURL(), "/")
	if base == "" || requestID == "" {
		return ""
	}
	return base + "/requests/" + requestID
}

// statusAttachments builds the QR attachment for the status link. A QR
// failure only drops the attachment, never the email.
func (d *Deliverer) statusAttachments(statusURL string) []email.Attachment {
	if statusURL == "" {
		return nil
	}
	qr, err := email.StatusQR(statusURL)
	if err != nil {
		d.log.Warn("status qr generation failed", "error", err)
		return nil
	}
	return []email.Attachment{qr}
}

// Compile-time check.
var _ DeliveryStore = (*outbox.Repository)(nil)
