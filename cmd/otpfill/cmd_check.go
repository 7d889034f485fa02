package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/otp-autofill/internal/app"
	"github.com/nhle/otp-autofill/internal/browser"
	"github.com/nhle/otp-autofill/internal/checker"
	"github.com/nhle/otp-autofill/internal/dispatch"
	"github.com/nhle/otp-autofill/internal/logging"
	"github.com/nhle/otp-autofill/internal/model"
	"github.com/nhle/otp-autofill/internal/notify"
	"github.com/nhle/otp-autofill/internal/store"
	appsync "github.com/nhle/otp-autofill/internal/sync"
)

var (
	checkOpen   string
	checkLinger time.Duration
	checkNoFill bool
	watchNoUI   bool
	watchOpen   string
	watchEvery  time.Duration
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check mail once and fill the code into the open tabs",
	Long: `Runs one check cycle: reads the newest recent message, extracts its
verification code and sends it to every eligible tab of the connected
browser. Without a browser (no browser.control_url and no --open) the
code is only printed.`,
	RunE: runCheck,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep checking mail and filling codes until interrupted",
	RunE:  runWatch,
}

func init() {
	checkCmd.Flags().StringVar(&checkOpen, "open", "", "Open this URL in the browser before checking")
	checkCmd.Flags().DurationVar(&checkLinger, "linger", 10*time.Second,
		"How long to keep retrying tabs that have no code field yet")
	checkCmd.Flags().BoolVar(&checkNoFill, "no-fill", false, "Only print the code")

	watchCmd.Flags().BoolVar(&watchNoUI, "no-ui", false, "Log results instead of showing the dashboard")
	watchCmd.Flags().StringVar(&watchOpen, "open", "", "Open this URL in the browser on start")
	watchCmd.Flags().DurationVar(&watchEvery, "interval", 0, "Poll interval (overrides poll.interval_sec)")
}

// session holds everything a check needs.
type session struct {
	store      *store.SQLiteStore
	bus        *notify.Bus
	checker    *checker.Checker
	browser    *browser.Browser
	dispatcher *dispatch.Dispatcher
	done       chan struct{}
}

// newSession wires store, source, checker and, when wantBrowser is set,
// the browser and dispatcher.
func newSession(ctx context.Context, wantBrowser bool, openURL string) (*session, error) {
	st, err := openStore()
	if err != nil {
		return nil, err
	}
	s := &session{store: st, bus: notify.NewBus()}

	src, err := newSource(ctx)
	if err != nil {
		s.close()
		return nil, err
	}
	s.checker = checker.New(src, st, s.bus, cfg.Mail, logger)

	if !wantBrowser {
		return s, nil
	}
	b, err := browser.Connect(ctx, cfg.Browser, logger)
	if err != nil {
		s.close()
		return nil, err
	}
	s.browser = b
	if openURL != "" {
		if _, err := b.Open(ctx, openURL); err != nil {
			s.close()
			return nil, err
		}
		// Let the page's scripts render their fields.
		time.Sleep(cfg.Fill.Settle())
	}

	s.dispatcher = dispatch.New(b, cfg.Fill.Debounce(), logger)
	msgs, _ := s.bus.Subscribe(16)
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		_ = s.dispatcher.Run(ctx, msgs)
	}()
	return s, nil
}

// drain closes the bus and waits until every queued message is applied.
func (s *session) drain() {
	s.bus.Close()
	if s.done != nil {
		<-s.done
	}
}

func (s *session) close() {
	s.drain()
	if s.dispatcher != nil {
		s.dispatcher.Close()
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			logger.Debug("closing browser", zap.Error(err))
		}
	}
	if err := s.store.Close(); err != nil {
		logger.Debug("closing store", zap.Error(err))
	}
}

func wantsBrowser(noFill bool, openURL string) bool {
	if noFill {
		return false
	}
	return openURL != "" || cfg.Browser.ControlURL != ""
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	s, err := newSession(ctx, wantsBrowser(checkNoFill, checkOpen), checkOpen)
	if err != nil {
		return err
	}
	defer s.close()

	res, err := s.checker.Check(ctx)
	if err != nil {
		return err
	}
	printResult(cmd.OutOrStdout(), res)

	if s.dispatcher != nil && res.Status == model.CheckCodeFound && checkLinger > 0 {
		s.drain()
		lingerForPending(ctx, s.dispatcher, checkLinger)
	}
	return nil
}

// lingerForPending keeps the process alive while tabs still wait for a
// code field to appear.
func lingerForPending(ctx context.Context, d *dispatch.Dispatcher, limit time.Duration) {
	deadline := time.NewTimer(limit)
	defer deadline.Stop()
	tick := time.NewTicker(250 * time.Millisecond)
	defer tick.Stop()
	for {
		if d.PendingTabs() == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			logger.Info("gave up waiting for code fields", zap.Int("tabs", d.PendingTabs()))
			return
		case <-tick.C:
		}
	}
}

func printResult(w io.Writer, res checker.Result) {
	switch res.Status {
	case model.CheckCodeFound:
		fmt.Fprintln(w, res.Code.Value)
		if res.Stale {
			fmt.Fprintln(w, "warning: the message is older than mail.max_age_min")
		}
	case model.CheckNoEmails:
		fmt.Fprintln(w, "no recent messages")
	default:
		fmt.Fprintln(w, "no code found")
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	if !watchNoUI {
		// The dashboard owns the terminal; logs go to a file.
		f, err := os.OpenFile(filepath.Join(model.ConfigDir(), "otpfill.log"),
			os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer f.Close()
		if logger, err = logging.New(cfg.Log.Level, verbose, f); err != nil {
			return err
		}
	}

	s, err := newSession(ctx, true, watchOpen)
	if err != nil {
		return err
	}
	defer s.close()

	interval := cfg.Poll.Interval()
	if watchEvery > 0 {
		interval = watchEvery
	}
	poller := appsync.New(s.checker, interval, logger)
	defer poller.Stop()

	if watchNoUI {
		return watchPlain(ctx, cmd.OutOrStdout(), poller)
	}

	dash := app.New(poller, s.dispatcher, s.store, model.ProviderType(cfg.Mail.Provider))
	_, err = tea.NewProgram(dash, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func watchPlain(ctx context.Context, w io.Writer, p *appsync.Poller) error {
	p.Start()
	p.Trigger()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-p.Results():
			if msg.AuthError != nil {
				fmt.Fprintln(w, msg.AuthError.Message)
				continue
			}
			if msg.Error != nil {
				fmt.Fprintln(w, "check failed:", msg.Error)
				continue
			}
			printResult(w, msg.Result)
		}
	}
}
