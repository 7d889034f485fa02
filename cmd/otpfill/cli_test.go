package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nhle/otp-autofill/internal/model"
	"github.com/nhle/otp-autofill/tests/testutil"
)

func setupGlobals(t *testing.T) {
	t.Helper()
	logger = zap.NewNop()
	var err error
	cfg, err = model.LoadConfig(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	t.Cleanup(func() {
		extractEML = false
		planOut = ""
	})
}

func newTestCmd(stdin string) (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{}
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetContext(context.Background())
	return cmd, out
}

func TestExtractFromStdin(t *testing.T) {
	setupGlobals(t)

	cmd, out := newTestCmd("Your verification code is 482913. Do not share it.")
	require.NoError(t, runExtract(cmd, nil))
	assert.Equal(t, "482913\n", out.String())
}

func TestExtractWithoutContext(t *testing.T) {
	setupGlobals(t)

	cmd, out := newTestCmd("Order 482913 has shipped.")
	require.NoError(t, runExtract(cmd, []string{"-"}))
	assert.Contains(t, out.String(), "no code found")
}

func TestExtractEMLFile(t *testing.T) {
	setupGlobals(t)

	path := filepath.Join(t.TempDir(), "mail.eml")
	raw := "Subject: Your sign-in code\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Your verification code is 7731\r\n"
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	cmd, out := newTestCmd("")
	require.NoError(t, runExtract(cmd, []string{path}))
	assert.Equal(t, "7731\n", out.String())
}

const otpPage = `<html><body>
<input type="text" name="q" placeholder="Search">
<label for="otp">One-time code</label>
<input id="otp" maxlength="6" autocomplete="one-time-code">
</body></html>`

func TestPlanPrintsAndFills(t *testing.T) {
	setupGlobals(t)

	dir := t.TempDir()
	page := filepath.Join(dir, "page.html")
	require.NoError(t, os.WriteFile(page, []byte(otpPage), 0o600))
	planOut = filepath.Join(dir, "filled.html")

	cmd, out := newTestCmd("")
	require.NoError(t, runPlan(cmd, []string{page, "482913"}))

	assert.Contains(t, out.String(), "mode: whole-field (2 candidates)")
	assert.Contains(t, out.String(), `id="otp"`)
	assert.NotContains(t, out.String(), "mirror")

	filled, err := os.ReadFile(planOut)
	require.NoError(t, err)
	assert.Contains(t, string(filled), `value="482913"`)
}

func TestPlanNoFields(t *testing.T) {
	setupGlobals(t)

	page := filepath.Join(t.TempDir(), "empty.html")
	require.NoError(t, os.WriteFile(page, []byte(`<p>nothing here</p>`), 0o600))

	cmd, out := newTestCmd("")
	require.NoError(t, runPlan(cmd, []string{page, "482913"}))
	assert.Contains(t, out.String(), "mode: none")
	assert.Contains(t, out.String(), "no field would be filled")
}

func TestHistoryAndStatus(t *testing.T) {
	setupGlobals(t)
	st := testutil.NewTestStore(t)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, printHistory(ctx, &out, st, 5))
	assert.Equal(t, "Checks:\n  none\nCodes:\n  none\n", out.String())

	now := time.Now()
	require.NoError(t, st.RecordCode(ctx, model.Code{
		Value: "482913", MessageID: "m1", Provider: model.ProviderGmail, FoundAt: now,
	}))
	require.NoError(t, st.RecordCheck(ctx, model.CheckRecord{
		Status: model.CheckCodeFound, StartedAt: now, FinishedAt: now,
	}))

	out.Reset()
	require.NoError(t, printHistory(ctx, &out, st, 5))
	assert.Contains(t, out.String(), "codeFound")
	assert.Contains(t, out.String(), "482913")

	out.Reset()
	require.NoError(t, printStatus(ctx, &out, st))
	assert.Contains(t, out.String(), "Provider:      gmail")
	assert.Contains(t, out.String(), "Authenticated: false")
	assert.Contains(t, out.String(), "Last code:     482913")
	assert.Contains(t, out.String(), "Last check:    codeFound")
}
