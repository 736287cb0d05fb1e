// Package email delivers notification emails over SMTP. Templates live in
// the package; callers pass the values and optional attachments (the status
// QR code, typically).
package email

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"time"

	gomail "github.com/wneessen/go-mail"

	"hireline_backend/platform/config"
)

// Attachment is a file attached to an outgoing email.
type Attachment struct {
	FileName string
	Content  []byte
}

// Sender delivers the notification emails of the request lifecycle.
type Sender interface {
	SendRecommendationsEmail(ctx context.Context, toEmail, serviceType, statusURL string, providerCount int, attachments ...Attachment) error
	SendBookingConfirmedEmail(ctx context.Context, toEmail, providerName, appointmentDay, appointmentTime, statusURL string, attachments ...Attachment) error
	SendRequestFailedEmail(ctx context.Context, toEmail, serviceType, outcome, statusURL string, attachments ...Attachment) error
}

const (
	subjectRecommendations  = "Your provider recommendations are ready"
	subjectBookingConfirmed = "Your appointment is booked"
	subjectRequestFailed    = "We could not complete your request"
)

// NewSender returns the SMTP sender, or the noop sender when email delivery
// is disabled.
func NewSender(cfg config.SMTPConfig) Sender {
	if !cfg.IsEmailEnabled() {
		return NoopSender{}
	}
	return NewSMTPSender(
		cfg.GetSMTPHost(),
		cfg.GetSMTPPort(),
		cfg.GetSMTPUsername(),
		cfg.GetSMTPPassword(),
		cfg.GetEmailFromAddress(),
		cfg.GetEmailFromName(),
	)
}

// NoopSender silently drops every email. Used when delivery is disabled.
type NoopSender struct{}

func (NoopSender) SendRecommendationsEmail(ctx context.Context, toEmail, serviceType, statusURL string, providerCount int, attachments ...Attachment) error {
	return nil
}

func (NoopSender) SendBookingConfirmedEmail(ctx context.Context, toEmail, providerName, appointmentDay, appointmentTime, statusURL string, attachments ...Attachment) error {
	return nil
}

func (NoopSender) SendRequestFailedEmail(ctx context.Context, toEmail, serviceType, outcome, statusURL string, attachments ...Attachment) error {
	return nil
}

// SMTPSender delivers via a direct SMTP connection using go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewSMTPSender creates a new SMTPSender with the given SMTP credentials.
func NewSMTPSender(host string, port int, username, password, fromEmail, fromName string) *SMTPSender {
	return &SMTPSender{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromName:  fromName,
		fromEmail: fromEmail,
	}
}

func (s *SMTPSender) send(ctx context.Context, toEmail, subject, htmlContent string, attachments ...Attachment) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlContent)

	for _, att := range attachments {
		msg.AttachReader(att.FileName, bytes.NewReader(att.Content))
	}

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

func (s *SMTPSender) SendRecommendationsEmail(ctx context.Context, toEmail, serviceType, statusURL string, providerCount int, attachments ...Attachment) error {
	content, err := renderEmailTemplate("recommendations_ready.html", recommendationsEmailData{
		baseEmailData: baseEmailData{
			Title:    subjectRecommendations,
			Heading:  "Recommendations ready",
			CTALabel: "Choose a provider",
			CTAURL:   statusURL,
		},
		ServiceType:   serviceType,
		ProviderCount: providerCount,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subjectRecommendations, content, attachments...)
}

func (s *SMTPSender) SendBookingConfirmedEmail(ctx context.Context, toEmail, providerName, appointmentDay, appointmentTime, statusURL string, attachments ...Attachment) error {
	content, err := renderEmailTemplate("booking_confirmed.html", bookingConfirmedEmailData{
		baseEmailData: baseEmailData{
			Title:    subjectBookingConfirmed,
			Heading:  "Appointment booked",
			CTALabel: "View details",
			CTAURL:   statusURL,
		},
		ProviderName:    providerName,
		AppointmentDay:  appointmentDay,
		AppointmentTime: appointmentTime,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subjectBookingConfirmed, content, attachments...)
}

func (s *SMTPSender) SendRequestFailedEmail(ctx context.Context, toEmail, serviceType, outcome, statusURL string, attachments ...Attachment) error {
	content, err := renderEmailTemplate("request_failed.html", requestFailedEmailData{
		baseEmailData: baseEmailData{
			Title:    subjectRequestFailed,
			Heading:  "Request not completed",
			CTALabel: "View request",
			CTAURL:   statusURL,
		},
		ServiceType: serviceType,
		Outcome:     outcome,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subjectRequestFailed, content, attachments...)
}

// Compile-time checks.
var (
	_ Sender = (*SMTPSender)(nil)
	_ Sender = NoopSender{}
)
