// Package rodpage implements target.Document on a live browser tab driven
// over the DevTools protocol.
package rodpage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/ysmood/gson"
	"go.uber.org/zap"

	"github.com/nhle/otp-autofill/internal/target"
)

// bindingName is the page-side function the mutation observer calls.
const bindingName = "__otpfillMutated"

// Page wraps one tab.
type Page struct {
	page   *rod.Page
	logger *zap.Logger

	mu      sync.Mutex
	url     string
	unwatch func()
}

var _ target.Document = (*Page)(nil)

// New wraps a rod page. url is the tab URL at listing time.
func New(page *rod.Page, url string, logger *zap.Logger) *Page {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Page{page: page, url: url, logger: logger}
}

// ID returns the DevTools target id.
func (p *Page) ID() string {
	return string(p.page.TargetID)
}

// URL returns the tab URL.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// SetURL records the tab's current URL.
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
}

// Document returns p; a Page is its own Document.
func (p *Page) Document() target.Document {
	return p
}

// eval runs a function expression in the page and returns its JSON result,
// or nil for undefined and null.
func (p *Page) eval(ctx context.Context, js string, args ...interface{}) ([]byte, error) {
	res, err := p.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, err
	}
	if res == nil || res.Value.Nil() {
		return nil, nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encoding eval result: %w", err)
	}
	return raw, nil
}

// Candidates snapshots the page's fillable elements.
func (p *Page) Candidates(ctx context.Context) ([]target.Record, error) {
	raw, err := p.eval(ctx, snapshotJS, refAttr)
	if err != nil {
		return nil, fmt.Errorf("snapshotting %s: %w", p.URL(), err)
	}
	if raw == nil {
		return nil, nil
	}
	var records []target.Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return records, nil
}

// Fill writes value into the element tagged ref.
func (p *Page) Fill(ctx context.Context, ref, value string, opts target.FillOptions) error {
	raw, err := p.eval(ctx, fillJS, refAttr, ref, value, opts.KeyEvents)
	if err != nil {
		return fmt.Errorf("filling %s: %w", ref, err)
	}
	var ok bool
	if err := json.Unmarshal(raw, &ok); err != nil || !ok {
		return fmt.Errorf("element %s is no longer in the page", ref)
	}
	return nil
}

// Indicate flashes the given fields or shows a toast.
func (p *Page) Indicate(ctx context.Context, refs []string, ind target.Indication) error {
	if refs == nil {
		refs = []string{}
	}
	if _, err := p.eval(ctx, indicateJS, refAttr, refs, string(ind)); err != nil {
		return fmt.Errorf("indicating %s: %w", ind, err)
	}
	return nil
}

// Watch calls fn whenever the page's DOM changes, including after
// navigations. The returned stop function removes every hook.
func (p *Page) Watch(ctx context.Context, fn func()) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unwatch != nil {
		p.unwatch()
		p.unwatch = nil
	}

	stopExpose, err := p.page.Expose(bindingName, func(gson.JSON) (interface{}, error) {
		fn()
		return nil, nil
	})
	if err != nil {
		return nil, fmt.Errorf("exposing mutation binding: %w", err)
	}

	install := fmt.Sprintf(observerJS, bindingName)
	removeScript, err := p.page.EvalOnNewDocument("(" + install + ")()")
	if err != nil {
		_ = stopExpose()
		return nil, fmt.Errorf("registering observer script: %w", err)
	}
	if _, err := p.eval(ctx, install); err != nil {
		_ = removeScript()
		_ = stopExpose()
		return nil, fmt.Errorf("installing observer: %w", err)
	}

	var once sync.Once
	stop := func() {
		once.Do(func() {
			if _, err := p.eval(context.Background(), disconnectJS); err != nil {
				p.logger.Debug("disconnecting observer", zap.Error(err))
			}
			if err := removeScript(); err != nil {
				p.logger.Debug("removing observer script", zap.Error(err))
			}
			if err := stopExpose(); err != nil {
				p.logger.Debug("removing binding", zap.Error(err))
			}
		})
	}
	p.unwatch = stop
	return stop, nil
}
