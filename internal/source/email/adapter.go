// Package email reads verification mail from an IMAP mailbox.
package email

import (
	"context"
	"fmt"
	"strconv"

	"github.com/emersion/go-imap/v2"

	"github.com/nhle/otp-autofill/internal/model"
	"github.com/nhle/otp-autofill/internal/source"
)

// Adapter implements source.MailSource for IMAP.
type Adapter struct {
	imapClient *IMAPClient
	mailbox    string
}

var _ source.MailSource = (*Adapter)(nil)

// NewAdapter creates a new IMAP mail source. The password comes from the
// keyring, never from cfg.
func NewAdapter(cfg model.IMAPConfig, password string) *Adapter {
	mailbox := cfg.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	return &Adapter{
		imapClient: NewIMAPClient(cfg.Host, cfg.Port, cfg.Username, password, cfg.TLS),
		mailbox:    mailbox,
	}
}

// Provider returns model.ProviderIMAP.
func (a *Adapter) Provider() model.ProviderType {
	return model.ProviderIMAP
}

// ValidateConnection verifies the credentials by logging in and
// selecting the mailbox.
func (a *Adapter) ValidateConnection(ctx context.Context) error {
	client, done, err := a.imapClient.Connect(ctx)
	if err != nil {
		return fmt.Errorf("validating IMAP connection: %w", err)
	}
	defer done()

	if _, err := client.Select(a.mailbox, nil).Wait(); err != nil {
		return fmt.Errorf("selecting %s: %w", a.mailbox, err)
	}
	return nil
}

// List returns UIDs newest first. IMAP SINCE has day granularity, so the
// window is wider than opts.Since; callers only read the first id.
func (a *Adapter) List(ctx context.Context, opts source.ListOptions) ([]string, error) {
	uids, err := a.imapClient.SearchUIDs(ctx, a.mailbox, opts.Since)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", a.mailbox, err)
	}
	return newestFirst(uids, opts.MaxResults), nil
}

// Fetch returns the message with the given UID.
func (a *Adapter) Fetch(ctx context.Context, id string) (*model.RawMessage, error) {
	uid, err := parseUID(id)
	if err != nil {
		return nil, err
	}
	return a.imapClient.FetchMessage(ctx, a.mailbox, uid)
}

func newestFirst(uids []imap.UID, limit int) []string {
	if limit > 0 && len(uids) > limit {
		uids = uids[len(uids)-limit:]
	}
	ids := make([]string, 0, len(uids))
	for i := len(uids) - 1; i >= 0; i-- {
		ids = append(ids, strconv.FormatUint(uint64(uids[i]), 10))
	}
	return ids
}

// parseUID converts a message id to an IMAP UID.
func parseUID(id string) (imap.UID, error) {
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil || uid == 0 {
		return 0, fmt.Errorf("invalid IMAP UID %q: %w", id, source.ErrNotFound)
	}
	return imap.UID(uid), nil
}
