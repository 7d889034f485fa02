package email

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/otp-autofill/internal/model"
	"github.com/nhle/otp-autofill/internal/source"
)

// IMAPClient wraps go-imap v2 for connecting to and querying IMAP servers.
type IMAPClient struct {
	host     string
	port     string
	username string
	password string
	tls      bool
}

// NewIMAPClient creates a new IMAP client configuration.
func NewIMAPClient(
	host, port, username, password string, tls bool,
) *IMAPClient {
	return &IMAPClient{
		host:     host,
		port:     port,
		username: username,
		password: password,
		tls:      tls,
	}
}

// Connect establishes a connection to the IMAP server, authenticates,
// and returns the connected client. The caller is responsible for
// calling Logout/Close on the returned client. Cancelling ctx closes
// the connection.
func (c *IMAPClient) Connect(
	ctx context.Context,
) (*imapclient.Client, func(), error) {
	addr := c.host + ":" + c.port

	var client *imapclient.Client
	var err error

	if c.tls {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })

	if err := client.Login(c.username, c.password).Wait(); err != nil {
		stop()
		_ = client.Close()
		return nil, nil, &source.AuthError{
			Provider: model.ProviderIMAP,
			Message: fmt.Sprintf(
				"authentication failed for %s: %v",
				c.username, err,
			),
		}
	}

	done := func() {
		stop()
		_ = client.Logout().Wait()
	}
	return client, done, nil
}

// SearchUIDs selects mailbox and returns the UIDs of messages received
// since the given day or still unread, oldest first.
func (c *IMAPClient) SearchUIDs(
	ctx context.Context, mailbox string, since time.Time,
) ([]imap.UID, error) {
	client, done, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	if _, err := client.Select(mailbox, nil).Wait(); err != nil {
		return nil, fmt.Errorf("selecting %s: %w", mailbox, err)
	}

	criteria := &imap.SearchCriteria{
		Or: [][2]imap.SearchCriteria{{
			{Since: since},
			{NotFlag: []imap.Flag{imap.FlagSeen}},
		}},
	}

	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}
	return searchData.AllUIDs(), nil
}

// FetchMessage selects mailbox and fetches the full message for uid
// without marking it seen.
func (c *IMAPClient) FetchMessage(
	ctx context.Context, mailbox string, uid imap.UID,
) (*model.RawMessage, error) {
	client, done, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	if _, err := client.Select(mailbox, nil).Wait(); err != nil {
		return nil, fmt.Errorf("selecting %s: %w", mailbox, err)
	}

	bodySection := &imap.FetchItemBodySection{
		Peek: true,
	}

	fetchOpts := &imap.FetchOptions{
		UID:          true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(uid), fetchOpts)
	defer fetchCmd.Close()

	msg := fetchCmd.Next()
	if msg == nil {
		return nil, fmt.Errorf("message UID %d: %w", uid, source.ErrNotFound)
	}

	buf, err := msg.Collect()
	if err != nil {
		return nil, fmt.Errorf("collecting message data: %w", err)
	}

	raw := buf.FindBodySection(bodySection)
	if raw == nil {
		return nil, fmt.Errorf("message UID %d has no body", uid)
	}

	parsed, err := ParseMessage(fmt.Sprint(uint32(uid)), bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	if !buf.InternalDate.IsZero() {
		parsed.InternalDate = buf.InternalDate
	}

	if err := fetchCmd.Close(); err != nil {
		return parsed, fmt.Errorf("closing fetch: %w", err)
	}

	return parsed, nil
}
