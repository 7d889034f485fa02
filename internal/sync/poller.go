package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/nhle/otp-autofill/internal/checker"
	"github.com/nhle/otp-autofill/internal/source"
)

// CheckState represents the current state of the poller.
type CheckState int

const (
	CheckIdle CheckState = iota
	CheckRunning
	CheckError
)

func (s CheckState) String() string {
	switch s {
	case CheckRunning:
		return "checking"
	case CheckError:
		return "error"
	default:
		return "idle"
	}
}

// Status holds the poller's state.
type Status struct {
	State     CheckState
	LastCheck time.Time
	Error     error
	Cycles    int64
}

// ResultMsg is a tea.Msg sent when a check cycle completes.
type ResultMsg struct {
	Result    checker.Result
	Error     error
	AuthError *AuthErrorMsg
}

// AuthErrorMsg is a tea.Msg sent when the mail provider rejects the
// stored credentials.
type AuthErrorMsg struct {
	Message string
}

// checkTimeout is the maximum time allowed for a single check cycle.
const checkTimeout = 30 * time.Second

// Checker runs one check cycle.
type Checker interface {
	Check(ctx context.Context) (checker.Result, error)
	Cycles() int64
}

// Poller runs check cycles on a ticker and on demand.
type Poller struct {
	checker   Checker
	interval  time.Duration
	logger    *zap.Logger
	resultCh  chan ResultMsg
	triggerCh chan struct{}
	stopCh    chan struct{}
	wg        gosync.WaitGroup
	mu        gosync.Mutex
	running   bool
	status    Status
}

// New creates a Poller. A zero interval disables periodic checks; Trigger
// still works.
func New(c Checker, interval time.Duration, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		checker:   c,
		interval:  interval,
		logger:    logger,
		resultCh:  make(chan ResultMsg, 16),
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the polling goroutine and returns a tea.Cmd that waits
// for the first result.
func (p *Poller) Start() tea.Cmd {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.mu.Unlock()

	p.wg.Add(1)
	go p.loop()

	return p.waitForResult()
}

// Stop halts the polling goroutine and waits for an in-flight cycle.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	close(p.stopCh)
	p.running = false
	p.mu.Unlock()

	p.wg.Wait()
}

// Trigger requests an immediate check. Requests made while one is
// already pending are coalesced.
func (p *Poller) Trigger() tea.Cmd {
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
	return nil
}

// Results exposes completed cycles to callers that are not Bubble Tea
// programs.
func (p *Poller) Results() <-chan ResultMsg {
	return p.resultCh
}

// Status returns a snapshot of the poller's state.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.status
	st.Cycles = p.checker.Cycles()
	return st
}

func (p *Poller) loop() {
	defer p.wg.Done()

	var tick <-chan time.Time
	if p.interval > 0 {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-p.stopCh:
			return
		case <-tick:
			p.check()
		case <-p.triggerCh:
			p.check()
		}
	}
}

// check runs one cycle and sends a ResultMsg on the result channel.
func (p *Poller) check() {
	p.setStatus(CheckRunning, nil)

	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	res, err := p.checker.Check(ctx)
	if errors.Is(err, checker.ErrCheckInProgress) {
		p.setStatus(CheckIdle, nil)
		return
	}
	if err != nil {
		p.setStatus(CheckError, err)
		msg := ResultMsg{Result: res, Error: err}
		if source.IsAuthError(err) {
			msg.AuthError = &AuthErrorMsg{
				Message: fmt.Sprintf("%v. Run 'otpfill auth' to sign in again.", err),
			}
		}
		p.sendResult(msg)
		return
	}

	p.setStatus(CheckIdle, nil)
	p.sendResult(ResultMsg{Result: res})
}

func (p *Poller) setStatus(state CheckState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.State = state
	p.status.Error = err
	if state != CheckRunning {
		p.status.LastCheck = time.Now()
	}
}

// sendResult sends a ResultMsg without blocking.
func (p *Poller) sendResult(msg ResultMsg) {
	select {
	case p.resultCh <- msg:
	default:
		p.logger.Warn("dropping check result, nobody is listening")
	}
}

func (p *Poller) waitForResult() tea.Cmd {
	return func() tea.Msg {
		result, ok := <-p.resultCh
		if !ok {
			return nil
		}
		return result
	}
}

// WaitForNextResult returns a tea.Cmd that waits for the next result.
// Call it after handling each ResultMsg to keep listening.
func (p *Poller) WaitForNextResult() tea.Cmd {
	return p.waitForResult()
}
