// Package replies ingests provider selections sent as email replies. A
// config-gated poller drains unseen messages from an IMAP mailbox, parses
// the selection instruction and submits it through the same service path as
// the API's selection endpoint.
package replies

import (
	"context"
	"fmt"
	"sort"
	"time"

	imap "github.com/BrianLeishman/go-imap"
	"github.com/google/uuid"

	"hireline_backend/internal/requests/domain"
	"hireline_backend/internal/requests/service"
	"hireline_backend/platform/apperr"
	"hireline_backend/platform/config"
	"hireline_backend/platform/logger"
)

// Mailbox is the slice of the IMAP connection the poller uses. Satisfied by
// *imap.Dialer.
type Mailbox interface {
	SelectFolder(folder string) error
	GetUIDs(search string) ([]int, error)
	GetEmails(uids ...int) (map[int]*imap.Email, error)
	MarkSeen(uid int) error
	Close() error
}

// Selector submits the parsed choice. Satisfied by the requests service.
type Selector interface {
	Select(ctx context.Context, requestID uuid.UUID, sel service.SelectionParams) (domain.ServiceRequest, error)
}

// Poller drains selection replies from the configured mailbox. Messages
// that cannot carry a valid selection are marked seen and dropped; messages
// whose submission failed transiently stay unseen for the next cycle.
type Poller struct {
	cfg      config.IMAPConfig
	selector Selector
	dial     func() (Mailbox, error)
	log      *logger.Logger
}

// NewPoller creates a new reply-channel poller.
func NewPoller(cfg config.IMAPConfig, selector Selector, log *logger.Logger) *Poller {
	p := &Poller{cfg: cfg, selector: selector, log: log}
	p.dial = func() (Mailbox, error) {
		return imap.New(cfg.GetIMAPUsername(), cfg.GetIMAPPassword(), cfg.GetIMAPHost(), cfg.GetIMAPPort())
	}
	return p
}

// Run polls the mailbox at the given interval until the context ends. A
// no-op when the reply channel is disabled.
func (p *Poller) Run(ctx context.Context, interval time.Duration) {
	if !p.cfg.IsRepliesEnabled() {
		p.log.Info("reply channel disabled, poller not starting")
		return
	}

	p.log.Info("reply-channel poller started", "folder", p.cfg.GetIMAPFolder(), "interval", interval.String())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("reply-channel poller stopped")
			return
		case <-ticker.C:
			if err := p.PollOnce(ctx); err != nil {
				p.log.Error("reply poll failed", "error", err)
			}
		}
	}
}

// PollOnce connects, drains unseen messages and disconnects. Exported so the
// worker can trigger an immediate drain and tests can drive the poller
// without the ticker.
func (p *Poller) PollOnce(ctx context.Context) error {
	if !p.cfg.IsRepliesEnabled() {
		return nil
	}

	mbox, err := p.dial()
	if err != nil {
		return fmt.Errorf("imap connect: %w", err)
	}
	defer func() {
		if err := mbox.Close(); err != nil {
			p.log.Warn("imap close failed", "error", err)
		}
	}()

	if err := mbox.SelectFolder(p.cfg.GetIMAPFolder()); err != nil {
		return fmt.Errorf("select folder %s: %w", p.cfg.GetIMAPFolder(), err)
	}

	uids, err := mbox.GetUIDs("UNSEEN")
	if err != nil {
		return fmt.Errorf("list unseen: %w", err)
	}
	if len(uids) == 0 {
		return nil
	}

	emails, err := mbox.GetEmails(uids...)
	if err != nil {
		return fmt.Errorf("fetch emails: %w", err)
	}

	ordered := make([]int, 0, len(emails))
	for uid := range emails {
		ordered = append(ordered, uid)
	}
	sort.Ints(ordered)

	for _, uid := range ordered {
		p.handleEmail(ctx, mbox, uid, emails[uid])
	}
	return nil
}

func (p *Poller) handleEmail(ctx context.Context, mbox Mailbox, uid int, em *imap.Email) {
	requestID, option, ok := ParseSelection(em.Subject + "\n" + em.Text)
	if !ok {
		p.log.Debug("reply without selection instruction", "uid", uid, "subject", em.Subject)
		p.markSeen(mbox, uid)
		return
	}

	_, err := p.selector.Select(ctx, requestID, service.SelectionParams{Option: option})
	switch {
	case err == nil:
		p.log.Info("selection accepted from reply channel", "requestId", requestID, "option", option, "uid", uid)
		p.markSeen(mbox, uid)
	case apperr.Is(err, apperr.KindValidation), apperr.Is(err, apperr.KindConflict), apperr.Is(err, apperr.KindNotFound):
		// The selection itself is bad; retrying the same email cannot fix it.
		p.log.Warn("selection rejected", "requestId", requestID, "option", option, "error", err)
		p.markSeen(mbox, uid)
	default:
		// Transient failure; leave unseen so the next cycle retries.
		p.log.Error("selection submission failed", "requestId", requestID, "option", option, "error", err)
	}
}

func (p *Poller) markSeen(mbox Mailbox, uid int) {
	if err := mbox.MarkSeen(uid); err != nil {
		p.log.Warn("failed to mark reply seen", "uid", uid, "error", err)
	}
}

// Compile-time check.
var _ Mailbox = (*imap.Dialer)(nil)
