package gmail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/nhle/otp-autofill/internal/credential"
	"github.com/nhle/otp-autofill/internal/extract"
	"github.com/nhle/otp-autofill/internal/model"
	"github.com/nhle/otp-autofill/internal/source"
)

func fakeGmail(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	a, err := NewAdapterWithClient(context.Background(), ts.Client(), ts.URL+"/")
	require.NoError(t, err)
	return a
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestListSendsQuery(t *testing.T) {
	var query url.Values
	a := fakeGmail(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/gmail/v1/users/me/messages", r.URL.Path)
		query = r.URL.Query()
		writeJSON(w, map[string]any{
			"messages": []map[string]string{{"id": "m2"}, {"id": "m1"}},
		})
	})

	since := time.Unix(1700000000, 0)
	ids, err := a.List(context.Background(), source.ListOptions{Since: since, MaxResults: 5})
	require.NoError(t, err)

	assert.Equal(t, []string{"m2", "m1"}, ids)
	assert.Equal(t, "after:1700000000 OR is:unread", query.Get("q"))
	assert.Equal(t, "5", query.Get("maxResults"))
}

func TestFetchConvertsMessage(t *testing.T) {
	a := fakeGmail(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/gmail/v1/users/me/messages/m1", r.URL.Path)
		assert.Equal(t, "full", r.URL.Query().Get("format"))
		writeJSON(w, map[string]any{
			"id":           "m1",
			"internalDate": "1700000000000",
			"snippet":      "Your code is 482913",
			"payload": map[string]any{
				"mimeType": "multipart/alternative",
				"headers": []map[string]string{
					{"name": "Subject", "value": "Verify your email"},
					{"name": "From", "value": "Acme <no-reply@acme.test>"},
				},
				"parts": []map[string]any{{
					"mimeType": "text/plain",
					"body":     map[string]string{"data": extract.EncodeBody("Your code is 482913.")},
				}},
			},
		})
	})

	msg, err := a.Fetch(context.Background(), "m1")
	require.NoError(t, err)

	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, model.ProviderGmail, msg.Provider)
	assert.Equal(t, time.UnixMilli(1700000000000), msg.InternalDate)
	assert.Equal(t, "Verify your email", msg.Subject())
	require.Len(t, msg.Payload.Parts, 1)
	assert.Nil(t, msg.Payload.Body)

	code, ok := extract.New().ExtractMessage(msg, time.Now())
	require.True(t, ok)
	assert.Equal(t, "482913", code.Value)
}

func TestUnauthorizedIsAuthError(t *testing.T) {
	a := fakeGmail(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":401,"message":"Invalid Credentials"}}`))
	})

	_, err := a.List(context.Background(), source.ListOptions{})
	require.Error(t, err)
	assert.True(t, source.IsAuthError(err))
}

func TestMissingMessageIsNotFound(t *testing.T) {
	a := fakeGmail(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Not Found"}}`))
	})

	_, err := a.Fetch(context.Background(), "gone")
	assert.ErrorIs(t, err, source.ErrNotFound)
	assert.False(t, source.IsAuthError(err))
}

func TestMapErrorTokenFailures(t *testing.T) {
	err := mapError(&oauth2.RetrieveError{ErrorCode: "invalid_grant"})
	assert.True(t, source.IsAuthError(err))
	assert.Contains(t, err.Error(), "invalid_grant")

	assert.True(t, source.IsAuthError(mapError(ErrNoToken)))
}

func TestQuery(t *testing.T) {
	assert.Equal(t, "is:unread", Query(time.Time{}))
	assert.Equal(t, "after:60 OR is:unread", Query(time.Unix(60, 0)))
}

type memStore struct {
	tokens map[string]*oauth2.Token
	sets   int
}

func (m *memStore) GetJSON(key string, out any) error {
	tok, ok := m.tokens[key]
	if !ok {
		return credential.ErrNotFound
	}
	*out.(*oauth2.Token) = *tok
	return nil
}

func (m *memStore) SetJSON(key string, value any) error {
	m.sets++
	m.tokens[key] = value.(*oauth2.Token)
	return nil
}

func (m *memStore) Delete(key string) error {
	delete(m.tokens, key)
	return nil
}

func TestTokenMissing(t *testing.T) {
	a := NewAuth(model.GmailConfig{}, &memStore{tokens: map[string]*oauth2.Token{}}, nil)
	_, err := a.Token()
	assert.ErrorIs(t, err, ErrNoToken)

	_, err = a.TokenSource(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)

	assert.NoError(t, a.Revoke(context.Background()))
}

func TestPersistingSourceSavesNewTokens(t *testing.T) {
	store := &memStore{tokens: map[string]*oauth2.Token{}}
	tok := &oauth2.Token{AccessToken: "fresh"}
	ps := &persistingSource{base: oauth2.StaticTokenSource(tok), store: store, last: "stale"}

	got, err := ps.Token()
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.AccessToken)
	assert.Equal(t, 1, store.sets)

	_, err = ps.Token()
	require.NoError(t, err)
	assert.Equal(t, 1, store.sets, "unchanged token is not rewritten")
	assert.Equal(t, "fresh", store.tokens[credential.KeyGmailToken].AccessToken)
}

func TestCallbackResult(t *testing.T) {
	ok := callbackResult(url.Values{"state": {"s"}, "code": {"c"}}, "s")
	require.NoError(t, ok.err)
	assert.Equal(t, "c", ok.code)

	assert.Error(t, callbackResult(url.Values{"state": {"x"}, "code": {"c"}}, "s").err)
	assert.Error(t, callbackResult(url.Values{"state": {"s"}}, "s").err)
	assert.Error(t, callbackResult(url.Values{"error": {"access_denied"}}, "s").err)
}

func TestAuthCodeURL(t *testing.T) {
	a := NewAuth(model.GmailConfig{ClientID: "cid", RedirectURL: "http://127.0.0.1:1/callback"}, nil, nil)
	raw := a.AuthCodeURL("st", oauth2.GenerateVerifier())

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "cid", q.Get("client_id"))
	assert.Equal(t, "st", q.Get("state"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Contains(t, q.Get("scope"), "gmail.readonly")
}
