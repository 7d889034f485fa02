// Package gmail reads verification mail through the Gmail API.
package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/nhle/otp-autofill/internal/model"
	"github.com/nhle/otp-autofill/internal/source"
)

const user = "me"

// Adapter implements source.MailSource for Gmail.
type Adapter struct {
	svc *gmail.Service
}

var _ source.MailSource = (*Adapter)(nil)

// NewAdapter creates a Gmail source that authenticates with ts.
func NewAdapter(ctx context.Context, ts oauth2.TokenSource) (*Adapter, error) {
	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}
	return &Adapter{svc: svc}, nil
}

// NewAdapterWithClient creates a Gmail source over an already
// authenticated HTTP client, pointed at endpoint when it is not empty.
func NewAdapterWithClient(ctx context.Context, client *http.Client, endpoint string) (*Adapter, error) {
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}
	return &Adapter{svc: svc}, nil
}

// Provider returns model.ProviderGmail.
func (a *Adapter) Provider() model.ProviderType {
	return model.ProviderGmail
}

// List returns message ids newest first.
func (a *Adapter) List(ctx context.Context, opts source.ListOptions) ([]string, error) {
	call := a.svc.Users.Messages.List(user).Q(Query(opts.Since)).Context(ctx)
	if opts.MaxResults > 0 {
		call = call.MaxResults(int64(opts.MaxResults))
	}
	resp, err := call.Do()
	if err != nil {
		return nil, mapError(err)
	}
	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

// Fetch returns the full message.
func (a *Adapter) Fetch(ctx context.Context, id string) (*model.RawMessage, error) {
	m, err := a.svc.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, mapError(err)
	}
	return toRawMessage(m), nil
}

// Query builds the search: recent messages plus anything unread.
func Query(since time.Time) string {
	if since.IsZero() {
		return "is:unread"
	}
	return fmt.Sprintf("after:%d OR is:unread", since.Unix())
}

// mapError turns rejected credentials into source.AuthError and missing
// messages into source.ErrNotFound.
func mapError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized:
			return &source.AuthError{Provider: model.ProviderGmail, Message: apiErr.Message}
		case http.StatusNotFound:
			return fmt.Errorf("gmail: %w", source.ErrNotFound)
		}
		return fmt.Errorf("gmail: %w", err)
	}
	var tokenErr *oauth2.RetrieveError
	if errors.As(err, &tokenErr) {
		msg := tokenErr.ErrorCode
		if msg == "" {
			msg = "token refresh failed"
		}
		return &source.AuthError{Provider: model.ProviderGmail, Message: msg}
	}
	if errors.Is(err, ErrNoToken) {
		return &source.AuthError{Provider: model.ProviderGmail, Message: err.Error()}
	}
	return fmt.Errorf("gmail: %w", err)
}

func toRawMessage(m *gmail.Message) *model.RawMessage {
	msg := &model.RawMessage{
		ID:       m.Id,
		Provider: model.ProviderGmail,
		Snippet:  m.Snippet,
		Payload:  toPart(m.Payload),
	}
	if m.InternalDate > 0 {
		msg.InternalDate = time.UnixMilli(m.InternalDate)
	}
	return msg
}

func toPart(p *gmail.MessagePart) *model.Part {
	if p == nil {
		return nil
	}
	part := &model.Part{MimeType: p.MimeType}
	for _, h := range p.Headers {
		part.Headers = append(part.Headers, model.Header{Name: h.Name, Value: h.Value})
	}
	if p.Body != nil && p.Body.Data != "" {
		part.Body = &model.Body{Data: p.Body.Data}
	}
	for _, child := range p.Parts {
		part.Parts = append(part.Parts, toPart(child))
	}
	return part
}
