package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nhle/otp-autofill/internal/dom/htmldoc"
	"github.com/nhle/otp-autofill/internal/notify"
	"github.com/nhle/otp-autofill/internal/target"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const codePage = `<body><label for="c">Verification code</label><input id="c" maxlength="6"></body>`

type fakeTab struct {
	id  string
	url string

	mu  sync.Mutex
	doc target.Document

	watchFn  func()
	watching bool
}

func (t *fakeTab) ID() string  { return t.id }
func (t *fakeTab) URL() string { return t.url }

func (t *fakeTab) Document() target.Document {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.doc
}

func (t *fakeTab) setDoc(doc target.Document) {
	t.mu.Lock()
	t.doc = doc
	t.mu.Unlock()
}

func (t *fakeTab) Watch(_ context.Context, fn func()) (func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.watchFn = fn
	t.watching = true
	return func() {
		t.mu.Lock()
		t.watching = false
		t.mu.Unlock()
	}, nil
}

func (t *fakeTab) mutate() {
	t.mu.Lock()
	fn := t.watchFn
	t.mu.Unlock()
	fn()
}

func (t *fakeTab) isWatching() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.watching
}

type tabList struct {
	tabs []Tab
	err  error
}

func (l *tabList) Tabs(context.Context) ([]Tab, error) { return l.tabs, l.err }

func page(t *testing.T, src string) *htmldoc.Document {
	t.Helper()
	doc, err := htmldoc.ParseString(src)
	require.NoError(t, err)
	return doc
}

func TestRestricted(t *testing.T) {
	for _, url := range []string{
		"",
		"chrome://settings",
		"chrome-extension://abc/popup.html",
		"devtools://devtools/bundled/inspector.html",
		"https://chrome.google.com/webstore/detail/x",
		"https://chromewebstore.google.com/detail/x",
	} {
		assert.True(t, Restricted(url), url)
	}
	assert.False(t, Restricted("https://accounts.example.com/verify"))
	assert.False(t, Restricted("about:blank"))
}

func TestFillCodeAcrossTabs(t *testing.T) {
	login := &fakeTab{id: "1", url: "https://example.com/verify", doc: page(t, codePage)}
	settings := &fakeTab{id: "2", url: "chrome://settings", doc: page(t, codePage)}
	blank := &fakeTab{id: "3", url: "https://example.com/blog", doc: page(t, `<body><p>hi</p></body>`)}

	d := New(&tabList{tabs: []Tab{login, settings, blank}}, 10*time.Millisecond, nil)
	defer d.Close()

	rep, err := d.FillCode(context.Background(), "482913")
	require.NoError(t, err)
	assert.Equal(t, Report{Tabs: 3, Skipped: 1, Filled: 1, Pending: 1}, rep)

	assert.Equal(t, "482913", login.doc.(*htmldoc.Document).Value("el-0"))
	assert.Empty(t, settings.doc.(*htmldoc.Document).Events(), "restricted tabs are untouched")
	assert.Equal(t, "482913", d.Engine("3").Pending())
	assert.True(t, d.Watching("3"))
	assert.False(t, d.Watching("1"))
}

func TestPendingCodeRetriedOnMutation(t *testing.T) {
	tab := &fakeTab{id: "1", url: "https://example.com", doc: page(t, `<body></body>`)}
	d := New(&tabList{tabs: []Tab{tab}}, 10*time.Millisecond, nil)
	defer d.Close()

	rep, err := d.FillCode(context.Background(), "482913")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Pending)
	assert.Equal(t, 1, d.PendingTabs())
	require.True(t, tab.isWatching())

	late := page(t, codePage)
	tab.setDoc(late)
	for i := 0; i < 5; i++ {
		tab.mutate()
	}

	require.Eventually(t, func() bool {
		return late.Value("el-0") == "482913"
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !tab.isWatching() }, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, d.Engine("1").Pending())
	assert.Zero(t, d.PendingTabs())

	// One coalesced retry means one fill: focus, input, change, blur.
	assert.Len(t, late.Events(), 4)
}

// gatedDoc holds Candidates until gate is closed.
type gatedDoc struct {
	target.Document
	gate    chan struct{}
	entered chan struct{}
}

func (g *gatedDoc) Candidates(ctx context.Context) ([]target.Record, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	select {
	case <-g.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.Document.Candidates(ctx)
}

func TestNewCodeDuringRetryWins(t *testing.T) {
	tab := &fakeTab{id: "1", url: "https://example.com", doc: page(t, `<body></body>`)}
	d := New(&tabList{tabs: []Tab{tab}}, 10*time.Millisecond, nil)
	defer d.Close()

	_, err := d.FillCode(context.Background(), "482913")
	require.NoError(t, err)
	require.True(t, tab.isWatching())

	late := page(t, codePage)
	gated := &gatedDoc{Document: late, gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	tab.setDoc(gated)
	tab.mutate()
	<-gated.entered

	rep, err := d.FillCode(context.Background(), "739104")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Busy)
	assert.Equal(t, "739104", d.Engine("1").Pending())
	assert.True(t, d.Watching("1"))

	close(gated.gate)
	require.Eventually(t, func() bool {
		return late.Value("el-0") == "739104"
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !tab.isWatching() }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, d.PendingTabs())
}

func TestNoCode(t *testing.T) {
	login := &fakeTab{id: "1", url: "https://example.com", doc: page(t, codePage)}
	empty := &fakeTab{id: "2", url: "https://example.org", doc: page(t, `<body></body>`)}
	d := New(&tabList{tabs: []Tab{login, empty}}, 0, nil)
	defer d.Close()

	require.NoError(t, d.Handle(context.Background(), notify.NoCodeFound("")))

	assert.Equal(t, string(target.IndicateNotFound), login.doc.(*htmldoc.Document).State("el-0"))
	assert.Contains(t, empty.doc.(*htmldoc.Document).Toast(), "No verification code")
}

func TestListError(t *testing.T) {
	d := New(&tabList{err: errors.New("browser gone")}, 0, nil)
	_, err := d.FillCode(context.Background(), "482913")
	assert.ErrorContains(t, err, "browser gone")
}

func TestPruneForgetsClosedTabs(t *testing.T) {
	tab := &fakeTab{id: "1", url: "https://example.com", doc: page(t, `<body></body>`)}
	list := &tabList{tabs: []Tab{tab}}
	d := New(list, time.Minute, nil)
	defer d.Close()

	_, err := d.FillCode(context.Background(), "482913")
	require.NoError(t, err)
	require.True(t, tab.isWatching())

	list.tabs = nil
	_, err = d.NoCode(context.Background())
	require.NoError(t, err)
	assert.False(t, tab.isWatching())
}

func TestRunStopsOnClosedChannel(t *testing.T) {
	login := &fakeTab{id: "1", url: "https://example.com", doc: page(t, codePage)}
	d := New(&tabList{tabs: []Tab{login}}, 0, nil)
	defer d.Close()

	bus := notify.NewBus()
	msgs, unsub := bus.Subscribe(4)

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background(), msgs) }()

	bus.Publish(notify.Status("checking", ""))
	bus.Publish(notify.FillCode("K7QX2M"))
	require.Eventually(t, func() bool {
		return login.doc.(*htmldoc.Document).Value("el-0") == "K7QX2M"
	}, 2*time.Second, 5*time.Millisecond)

	unsub()
	assert.NoError(t, <-done)
}
