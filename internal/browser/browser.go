// Package browser connects to Chrome over DevTools and lists its tabs.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/nhle/otp-autofill/internal/dispatch"
	"github.com/nhle/otp-autofill/internal/dom/rodpage"
	"github.com/nhle/otp-autofill/internal/model"
)

// ErrNoBrowser is returned when no control URL is configured and
// launching is disabled.
var ErrNoBrowser = errors.New("no browser: set browser.control_url or enable browser.launch")

// Browser is a DevTools connection. Tabs are wrapped once and reused so
// each keeps its mutation hooks.
type Browser struct {
	rod      *rod.Browser
	launcher *launcher.Launcher
	cancel   context.CancelFunc
	logger   *zap.Logger

	mu    sync.Mutex
	pages map[proto.TargetTargetID]*rodpage.Page
}

var _ dispatch.TabLister = (*Browser)(nil)

// Connect attaches to cfg.ControlURL, or launches a browser when it is
// empty and cfg.Launch is set.
func Connect(ctx context.Context, cfg model.BrowserConfig, logger *zap.Logger) (*Browser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Browser{logger: logger, pages: make(map[proto.TargetTargetID]*rodpage.Page)}

	controlURL := strings.TrimSpace(cfg.ControlURL)
	switch {
	case controlURL != "":
		// Accept http://host:port as well as the ws:// debugger URL.
		if !strings.HasPrefix(controlURL, "ws") {
			resolved, err := launcher.ResolveURL(controlURL)
			if err != nil {
				return nil, fmt.Errorf("resolving control url %s: %w", controlURL, err)
			}
			controlURL = resolved
		}
	case cfg.Launch:
		b.launcher = launcher.New().Headless(cfg.Headless)
		u, err := b.launcher.Launch()
		if err != nil {
			return nil, fmt.Errorf("launching browser: %w", err)
		}
		controlURL = u
	default:
		return nil, ErrNoBrowser
	}

	connCtx, cancel := context.WithCancel(ctx)
	r := rod.New().ControlURL(controlURL).Context(connCtx)
	if err := r.Connect(); err != nil {
		cancel()
		b.killLauncher()
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}
	b.rod = r
	b.cancel = cancel

	logger.Info("browser connected",
		zap.Bool("launched", b.launcher != nil),
		zap.String("control_url", controlURL),
	)
	return b, nil
}

// Tabs returns every page target.
func (b *Browser) Tabs(ctx context.Context) ([]dispatch.Tab, error) {
	pages, err := b.rod.Context(ctx).Pages()
	if err != nil {
		return nil, fmt.Errorf("listing pages: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[proto.TargetTargetID]bool, len(pages))
	tabs := make([]dispatch.Tab, 0, len(pages))
	for _, pg := range pages {
		info, err := pg.Info()
		if err != nil {
			b.logger.Debug("reading page info", zap.Error(err))
			continue
		}
		seen[pg.TargetID] = true
		wrapped, ok := b.pages[pg.TargetID]
		if ok {
			wrapped.SetURL(info.URL)
		} else {
			wrapped = rodpage.New(pg, info.URL, b.logger.With(zap.String("tab", string(pg.TargetID))))
			b.pages[pg.TargetID] = wrapped
		}
		tabs = append(tabs, wrapped)
	}
	for id := range b.pages {
		if !seen[id] {
			delete(b.pages, id)
		}
	}
	return tabs, nil
}

// Open creates a new tab at url. It is used by the watch command's
// --open flag and by tests.
func (b *Browser) Open(ctx context.Context, url string) (*rodpage.Page, error) {
	pg, err := b.rod.Context(ctx).Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", url, err)
	}
	if err := pg.WaitLoad(); err != nil {
		return nil, fmt.Errorf("loading %s: %w", url, err)
	}
	wrapped := rodpage.New(pg, url, b.logger)
	b.mu.Lock()
	b.pages[pg.TargetID] = wrapped
	b.mu.Unlock()
	return wrapped, nil
}

// Close closes a launched browser, or only detaches from an attached one.
func (b *Browser) Close() error {
	var err error
	if b.launcher != nil && b.rod != nil {
		err = b.rod.Close()
	}
	if b.cancel != nil {
		b.cancel()
	}
	b.killLauncher()
	return err
}

func (b *Browser) killLauncher() {
	if b.launcher != nil {
		b.launcher.Kill()
	}
}
