package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/otp-autofill/internal/model"
	"github.com/nhle/otp-autofill/internal/store"
	"github.com/nhle/otp-autofill/tests/testutil"
)

func TestSettingsBool(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	got, err := s.GetBool(ctx, store.KeyAuthenticated)
	require.NoError(t, err)
	assert.False(t, got, "unset flag reads false")

	require.NoError(t, s.SetBool(ctx, store.KeyAuthenticated, true))
	got, err = s.GetBool(ctx, store.KeyAuthenticated)
	require.NoError(t, err)
	assert.True(t, got)

	require.NoError(t, s.SetBool(ctx, store.KeyAuthenticated, false))
	got, err = s.GetBool(ctx, store.KeyAuthenticated)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestCodesHistory(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	last, err := s.LastCode(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, v := range []string{"482913", "K7QX2M", "5821"} {
		require.NoError(t, s.RecordCode(ctx, model.Code{
			Value:     v,
			MessageID: "msg-" + v,
			Provider:  model.ProviderGmail,
			FoundAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}

	last, err = s.LastCode(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "5821", last.Value)
	assert.Equal(t, "msg-5821", last.MessageID)
	assert.Equal(t, model.ProviderGmail, last.Provider)
	assert.True(t, last.FoundAt.Equal(base.Add(2*time.Minute)))

	codes, err := s.RecentCodes(ctx, 2)
	require.NoError(t, err)
	require.Len(t, codes, 2)
	assert.Equal(t, "5821", codes[0].Value)
	assert.Equal(t, "K7QX2M", codes[1].Value)
}

func TestChecksHistory(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordCheck(ctx, model.CheckRecord{
		Status:     model.CheckNoEmails,
		StartedAt:  start,
		FinishedAt: start.Add(time.Second),
	}))
	require.NoError(t, s.RecordCheck(ctx, model.CheckRecord{
		ID:         "fixed",
		Status:     model.CheckError,
		Detail:     "listing messages: timeout",
		StartedAt:  start.Add(time.Minute),
		FinishedAt: start.Add(time.Minute + time.Second),
	}))

	checks, err := s.RecentChecks(ctx, 0)
	require.NoError(t, err)
	require.Len(t, checks, 2)
	assert.Equal(t, "fixed", checks[0].ID)
	assert.Equal(t, model.CheckError, checks[0].Status)
	assert.Equal(t, "listing messages: timeout", checks[0].Detail)
	assert.NotEmpty(t, checks[1].ID)
	assert.Equal(t, model.CheckNoEmails, checks[1].Status)
}

func TestRecordCheckRejectsNonTerminalStatus(t *testing.T) {
	s := testutil.NewTestStore(t)

	err := s.RecordCheck(context.Background(), model.CheckRecord{
		Status:    model.CheckChecking,
		StartedAt: time.Now(),
	})
	assert.Error(t, err)
}

func TestReopenKeepsData(t *testing.T) {
	path := t.TempDir() + "/otpfill.db"
	ctx := context.Background()

	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SetBool(ctx, store.KeyAuthenticated, true))
	require.NoError(t, s.Close())

	s, err = store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetBool(ctx, store.KeyAuthenticated)
	require.NoError(t, err)
	assert.True(t, got)
}
