package target

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrFillInProgress is returned when a fill is requested on an engine that
// is already filling.
var ErrFillInProgress = errors.New("fill already in progress")

// Status is the result kind of a fill attempt.
type Status int

const (
	// StatusFilled means at least one field received the code.
	StatusFilled Status = iota + 1
	// StatusNoCandidates means the page had nowhere to put the code yet.
	StatusNoCandidates
	// StatusNoPending means Retry was called without a pending code.
	StatusNoPending
)

func (s Status) String() string {
	switch s {
	case StatusFilled:
		return "filled"
	case StatusNoCandidates:
		return "no candidates"
	case StatusNoPending:
		return "no pending code"
	default:
		return "unknown"
	}
}

// Outcome reports what a fill attempt did.
type Outcome struct {
	Status Status
	Plan   Plan
}

// Engine fills codes into one page. Use one Engine per tab.
type Engine struct {
	logger  *zap.Logger
	filling atomic.Bool

	mu      sync.Mutex
	pending string
}

// NewEngine creates an Engine. A nil logger disables logging.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// SelectAndFill snapshots doc, selects targets for code and writes them.
// Finding no candidates is a normal outcome, not an error. Overlapping
// calls fail fast with ErrFillInProgress.
func (e *Engine) SelectAndFill(ctx context.Context, doc Document, code string) (Outcome, error) {
	if !e.filling.CompareAndSwap(false, true) {
		return Outcome{}, ErrFillInProgress
	}
	defer e.filling.Store(false)

	records, err := doc.Candidates(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("collecting candidates: %w", err)
	}

	plan := Select(records, code)
	if plan.Empty() {
		e.logger.Debug("no fillable fields", zap.Int("elements", len(records)))
		return Outcome{Status: StatusNoCandidates, Plan: plan}, nil
	}

	opts := FillOptions{KeyEvents: plan.Mode == ModeSegmented}
	for _, a := range plan.Assignments {
		if err := doc.Fill(ctx, a.Ref, a.Value, opts); err != nil {
			return Outcome{}, fmt.Errorf("filling %s: %w", a.Ref, err)
		}
	}

	if err := doc.Indicate(ctx, plan.Refs(), IndicateFilled); err != nil {
		e.logger.Warn("showing fill indication", zap.Error(err))
	}

	e.logger.Info("code filled",
		zap.Stringer("mode", plan.Mode),
		zap.Int("fields", len(plan.Assignments)),
	)
	return Outcome{Status: StatusFilled, Plan: plan}, nil
}

// FillOrDefer fills code and, when the page has no candidates yet, keeps
// it pending for Retry. A successful fill clears any pending code. When
// another fill is running the code still becomes pending, replacing any
// older one, and ErrFillInProgress is returned.
func (e *Engine) FillOrDefer(ctx context.Context, doc Document, code string) (Outcome, error) {
	out, err := e.SelectAndFill(ctx, doc, code)
	if errors.Is(err, ErrFillInProgress) {
		e.SetPending(code)
		return out, err
	}
	if err != nil {
		return out, err
	}
	switch out.Status {
	case StatusFilled:
		e.clearPending(code)
	case StatusNoCandidates:
		e.SetPending(code)
	}
	return out, nil
}

// ShowNoCode marks the fields a code would have gone to as "not found".
// It returns how many fields were marked; with none the page still gets a
// toast.
func (e *Engine) ShowNoCode(ctx context.Context, doc Document) (int, error) {
	records, err := doc.Candidates(ctx)
	if err != nil {
		// Still tell the user something, even without fields.
		if indErr := doc.Indicate(ctx, nil, IndicateNotFound); indErr != nil {
			e.logger.Warn("showing no-code toast", zap.Error(indErr))
		}
		return 0, fmt.Errorf("collecting candidates: %w", err)
	}

	refs := Select(records, "").Candidates
	if err := doc.Indicate(ctx, refs, IndicateNotFound); err != nil {
		return 0, fmt.Errorf("showing no-code indication: %w", err)
	}
	return len(refs), nil
}

// SetPending stores code for a later Retry.
func (e *Engine) SetPending(code string) {
	e.mu.Lock()
	e.pending = code
	e.mu.Unlock()
}

// Pending returns the code waiting for a fillable field, if any.
func (e *Engine) Pending() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending
}

// ClearPending drops any pending code.
func (e *Engine) ClearPending() {
	e.SetPending("")
}

func (e *Engine) clearPending(code string) {
	e.mu.Lock()
	if e.pending == code {
		e.pending = ""
	}
	e.mu.Unlock()
}

// Retry fills the pending code, clearing it on success. It is meant to be
// called after page mutations.
func (e *Engine) Retry(ctx context.Context, doc Document) (Outcome, error) {
	code := e.Pending()
	if code == "" {
		return Outcome{Status: StatusNoPending}, nil
	}
	out, err := e.SelectAndFill(ctx, doc, code)
	if err != nil {
		return out, err
	}
	if out.Status == StatusFilled {
		e.clearPending(code)
	}
	return out, nil
}
