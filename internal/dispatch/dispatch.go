// Package dispatch delivers check results to every open tab.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/otp-autofill/internal/notify"
	"github.com/nhle/otp-autofill/internal/target"
	"github.com/nhle/otp-autofill/internal/watch"
)

// Tab is one open page.
type Tab interface {
	ID() string
	URL() string
	Document() target.Document
}

// Watcher is implemented by tabs that report DOM mutations. fn may be
// called from any goroutine.
type Watcher interface {
	Watch(ctx context.Context, fn func()) (stop func(), err error)
}

// TabLister enumerates open tabs.
type TabLister interface {
	Tabs(ctx context.Context) ([]Tab, error)
}

// maxParallel bounds concurrent page evaluations.
const maxParallel = 4

// retryTimeout bounds one mutation-driven retry.
const retryTimeout = 10 * time.Second

var restrictedPrefixes = []string{
	"chrome://",
	"chrome-extension://",
	"chrome-untrusted://",
	"devtools://",
}

var restrictedHosts = []string{
	"chrome.google.com/webstore",
	"chrome.google.com/extensions",
	"chromewebstore.google.com",
}

// Restricted reports whether pages at url must not be touched.
func Restricted(url string) bool {
	if url == "" {
		return true
	}
	for _, p := range restrictedPrefixes {
		if strings.HasPrefix(url, p) {
			return true
		}
	}
	for _, h := range restrictedHosts {
		if strings.Contains(url, h) {
			return true
		}
	}
	return false
}

// Report counts what happened across tabs.
type Report struct {
	Tabs    int
	Skipped int
	Filled  int
	Pending int
	Busy    int
	Failed  int
}

func (r *Report) add(o Report) {
	r.Tabs += o.Tabs
	r.Skipped += o.Skipped
	r.Filled += o.Filled
	r.Pending += o.Pending
	r.Busy += o.Busy
	r.Failed += o.Failed
}

type tabState struct {
	engine *target.Engine

	mu        sync.Mutex
	debouncer *watch.Debouncer
	stop      func()
}

// Dispatcher owns one targeting engine per tab.
type Dispatcher struct {
	tabs     TabLister
	logger   *zap.Logger
	debounce time.Duration

	mu    sync.Mutex
	state map[string]*tabState
}

// New creates a Dispatcher. debounce is the mutation quiet period before a
// pending code is retried.
func New(tabs TabLister, debounce time.Duration, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		tabs:     tabs,
		logger:   logger,
		debounce: debounce,
		state:    make(map[string]*tabState),
	}
}

// Engine returns the engine for a tab id, creating it on first use.
func (d *Dispatcher) Engine(tabID string) *target.Engine {
	return d.tabState(tabID).engine
}

func (d *Dispatcher) tabState(id string) *tabState {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.state[id]
	if !ok {
		st = &tabState{engine: target.NewEngine(d.logger.With(zap.String("tab", id)))}
		d.state[id] = st
	}
	return st
}

// prune forgets tabs that are no longer open.
func (d *Dispatcher) prune(open []Tab) {
	ids := make(map[string]bool, len(open))
	for _, t := range open {
		ids[t.ID()] = true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, st := range d.state {
		if !ids[id] {
			st.unwatch()
			delete(d.state, id)
		}
	}
}

// FillCode sends code to every eligible tab. Tabs without fields keep the
// code pending and retry it when their DOM changes.
func (d *Dispatcher) FillCode(ctx context.Context, code string) (Report, error) {
	return d.each(ctx, func(ctx context.Context, tab Tab, st *tabState) Report {
		out, err := st.engine.FillOrDefer(ctx, tab.Document(), code)
		switch {
		case errors.Is(err, target.ErrFillInProgress):
			d.watch(ctx, tab, st)
			return Report{Busy: 1}
		case err != nil:
			d.logger.Warn("filling tab", zap.String("url", tab.URL()), zap.Error(err))
			return Report{Failed: 1}
		case out.Status == target.StatusFilled:
			st.unwatch()
			return Report{Filled: 1}
		default:
			d.watch(ctx, tab, st)
			return Report{Pending: 1}
		}
	})
}

// NoCode shows the "not found" indication on every eligible tab.
func (d *Dispatcher) NoCode(ctx context.Context) (Report, error) {
	return d.each(ctx, func(ctx context.Context, tab Tab, st *tabState) Report {
		if _, err := st.engine.ShowNoCode(ctx, tab.Document()); err != nil {
			d.logger.Warn("showing no-code indication", zap.String("url", tab.URL()), zap.Error(err))
			return Report{Failed: 1}
		}
		return Report{}
	})
}

func (d *Dispatcher) each(
	ctx context.Context,
	fn func(context.Context, Tab, *tabState) Report,
) (Report, error) {
	tabs, err := d.tabs.Tabs(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("listing tabs: %w", err)
	}
	d.prune(tabs)

	var (
		mu  sync.Mutex
		rep = Report{Tabs: len(tabs)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)
	for _, tab := range tabs {
		if Restricted(tab.URL()) {
			d.logger.Debug("skipping restricted tab", zap.String("url", tab.URL()))
			rep.Skipped++
			continue
		}
		st := d.tabState(tab.ID())
		g.Go(func() error {
			r := fn(gctx, tab, st)
			mu.Lock()
			rep.add(r)
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()
	return rep, err
}

// watch arms mutation-driven retries for a tab holding a pending code.
func (d *Dispatcher) watch(ctx context.Context, tab Tab, st *tabState) {
	w, ok := tab.(Watcher)
	if !ok {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.debouncer != nil {
		return
	}

	log := d.logger.With(zap.String("tab", tab.ID()))
	var (
		stopped atomic.Bool
		deb     *watch.Debouncer
	)
	deb = watch.NewDebouncer(d.debounce, func() {
		if stopped.Load() {
			return
		}
		rctx, cancel := context.WithTimeout(context.Background(), retryTimeout)
		defer cancel()
		out, err := st.engine.Retry(rctx, tab.Document())
		if err != nil && !errors.Is(err, target.ErrFillInProgress) {
			log.Debug("retry after mutation", zap.Error(err))
			return
		}
		if st.engine.Pending() != "" {
			// A newer code arrived while this retry ran.
			if out.Status == target.StatusFilled {
				deb.Trigger()
			}
			return
		}
		if out.Status == target.StatusFilled || out.Status == target.StatusNoPending {
			stopped.Store(true)
			st.unwatch()
		}
	})
	stop, err := w.Watch(ctx, deb.Trigger)
	if err != nil {
		deb.Stop()
		log.Warn("watching page mutations", zap.Error(err))
		return
	}
	st.debouncer = deb
	st.stop = stop
}

func (st *tabState) unwatch() {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.debouncer != nil {
		st.debouncer.Stop()
		st.debouncer = nil
	}
	if st.stop != nil {
		st.stop()
		st.stop = nil
	}
}

// Watching reports whether a tab has an armed mutation watch.
func (d *Dispatcher) Watching(tabID string) bool {
	st := d.tabState(tabID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.debouncer != nil
}

// PendingTabs counts tabs still holding a code they could not fill.
func (d *Dispatcher) PendingTabs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, st := range d.state {
		if st.engine.Pending() != "" {
			n++
		}
	}
	return n
}

// Handle applies one notification.
func (d *Dispatcher) Handle(ctx context.Context, msg notify.Message) error {
	switch msg.Action {
	case notify.ActionFillCode:
		rep, err := d.FillCode(ctx, msg.Code)
		if err != nil {
			return err
		}
		d.logger.Info("code dispatched",
			zap.Int("tabs", rep.Tabs),
			zap.Int("filled", rep.Filled),
			zap.Int("pending", rep.Pending),
			zap.Int("failed", rep.Failed),
		)
	case notify.ActionNoCodeFound:
		if _, err := d.NoCode(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Run applies notifications until ctx is done or msgs is closed.
func (d *Dispatcher) Run(ctx context.Context, msgs <-chan notify.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := d.Handle(ctx, msg); err != nil {
				d.logger.Warn("dispatching notification",
					zap.String("action", string(msg.Action)), zap.Error(err))
			}
		}
	}
}

// Close stops every mutation watch.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, st := range d.state {
		st.unwatch()
		delete(d.state, id)
	}
}
