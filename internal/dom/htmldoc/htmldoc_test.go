package htmldoc_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/otp-autofill/internal/dom/htmldoc"
	"github.com/nhle/otp-autofill/internal/target"
)

const segmentedPage = `<!doctype html>
<html><body>
<form>
  <p>Enter the 6-digit code we sent you</p>
  <div class="otp">
    <input maxlength="1" name="d1" inputmode="numeric">
    <input maxlength="1" name="d2" inputmode="numeric">
    <input maxlength="1" name="d3" inputmode="numeric">
    <input maxlength="1" name="d4" inputmode="numeric">
    <input maxlength="1" name="d5" inputmode="numeric">
    <input maxlength="1" name="d6" inputmode="numeric">
  </div>
  <button type="submit">Verify</button>
</form>
</body></html>`

const loginPage = `<!doctype html>
<html><body>
<header><input type="text" name="q" placeholder="Search"></header>
<main>
  <label for="otp">One-time code</label>
  <input id="otp" type="text" maxlength="6" placeholder="Enter code" autocomplete="one-time-code">
  <input type="hidden" name="csrf" value="abc">
  <input type="checkbox" name="remember">
</main>
</body></html>`

func parse(t *testing.T, page string) *htmldoc.Document {
	t.Helper()
	doc, err := htmldoc.ParseString(page)
	require.NoError(t, err)
	return doc
}

func TestCandidatesRecord(t *testing.T) {
	doc := parse(t, loginPage)

	records, err := doc.Candidates(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 4)

	search, otp, csrf := records[0], records[1], records[2]
	assert.Equal(t, "q", search.Name)
	assert.Equal(t, "otp", otp.ID)
	assert.Equal(t, "One-time code", otp.LabelText)
	assert.Equal(t, 6, otp.MaxLength)
	assert.Equal(t, "one-time-code", otp.Autocomplete)
	assert.True(t, otp.Visible)
	assert.False(t, csrf.Visible)
	assert.Less(t, search.Rect.Left, otp.Rect.Left)
}

func TestVisibilityRules(t *testing.T) {
	doc := parse(t, `<body>
		<input name="a" style="display: none">
		<div style="visibility:hidden"><input name="b"></div>
		<div hidden><input name="c"></div>
		<input name="d" style="opacity: 0 !important">
		<input name="e" disabled>
		<input name="f" readonly>
		<div contenteditable="true">notes</div>
		<input name="g">
	</body>`)

	records, err := doc.Candidates(context.Background())
	require.NoError(t, err)

	var eligible []string
	for _, r := range records {
		if target.Eligible(r) {
			eligible = append(eligible, firstNonEmpty(r.Name, r.Tag))
		}
	}
	assert.Equal(t, []string{"div", "g"}, eligible)
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func TestSegmentedFill(t *testing.T) {
	doc := parse(t, segmentedPage)
	engine := target.NewEngine(nil)

	out, err := engine.SelectAndFill(context.Background(), doc, "482913")
	require.NoError(t, err)
	assert.Equal(t, target.StatusFilled, out.Status)
	assert.Equal(t, target.ModeSegmented, out.Plan.Mode)

	var got strings.Builder
	for _, ref := range out.Plan.Refs() {
		got.WriteString(doc.Value(ref))
		assert.Equal(t, string(target.IndicateFilled), doc.State(ref))
	}
	assert.Equal(t, "482913", got.String())

	events := doc.Events()
	require.Len(t, events, 6*7)
	want := []string{"focus", "input", "change", "keydown", "keypress", "keyup", "blur"}
	for i, typ := range want {
		assert.Equal(t, typ, events[i].Type)
	}
}

func TestWholeFieldFillSkipsSearchBox(t *testing.T) {
	doc := parse(t, loginPage)
	engine := target.NewEngine(nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		out, err := engine.SelectAndFill(ctx, doc, "482913")
		require.NoError(t, err)
		assert.Equal(t, target.ModeWhole, out.Plan.Mode)
		assert.Equal(t, []string{"el-1"}, out.Plan.Refs())
		assert.Equal(t, "482913", doc.Value("el-1"))
		assert.Equal(t, "", doc.Value("el-0"))
	}

	var buf strings.Builder
	require.NoError(t, doc.Render(&buf))
	assert.Contains(t, buf.String(), `value="482913"`)
}

func TestTextareaFill(t *testing.T) {
	doc := parse(t, `<body><textarea name="token">old</textarea></body>`)

	out, err := target.NewEngine(nil).SelectAndFill(context.Background(), doc, "K7QX2M")
	require.NoError(t, err)
	require.Equal(t, target.StatusFilled, out.Status)
	assert.Equal(t, "K7QX2M", doc.Value("el-0"))
}

func TestNoCandidatesAndToast(t *testing.T) {
	doc := parse(t, `<body><p>Thanks for signing in.</p><input type="hidden" name="x"></body>`)
	engine := target.NewEngine(nil)
	ctx := context.Background()

	out, err := engine.FillOrDefer(ctx, doc, "482913")
	require.NoError(t, err)
	assert.Equal(t, target.StatusNoCandidates, out.Status)
	assert.Equal(t, "482913", engine.Pending())

	n, err := engine.ShowNoCode(ctx, doc)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Contains(t, doc.Toast(), "No verification code found")

	// A second toast replaces the first.
	_, err = engine.ShowNoCode(ctx, doc)
	require.NoError(t, err)
	var buf strings.Builder
	require.NoError(t, doc.Render(&buf))
	assert.Equal(t, 1, strings.Count(buf.String(), "otpfill-toast"))
}

func TestShowNoCodeMarksFields(t *testing.T) {
	doc := parse(t, loginPage)

	n, err := target.NewEngine(nil).ShowNoCode(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, string(target.IndicateNotFound), doc.State("el-1"))
	assert.Equal(t, string(target.IndicateNotFound), doc.State("el-0"))
	assert.Empty(t, doc.State("el-2"))
	assert.Empty(t, doc.Toast())
}

func TestFillUnknownRef(t *testing.T) {
	doc := parse(t, loginPage)
	err := doc.Fill(context.Background(), "el-99", "1234", target.FillOptions{})
	assert.Error(t, err)
}
