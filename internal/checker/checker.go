// Package checker runs one mail check cycle: list, fetch the newest
// message, extract, record and notify.
package checker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/otp-autofill/internal/extract"
	"github.com/nhle/otp-autofill/internal/model"
	"github.com/nhle/otp-autofill/internal/notify"
	"github.com/nhle/otp-autofill/internal/source"
	"github.com/nhle/otp-autofill/internal/store"
)

// ErrCheckInProgress is returned when Check is called while another cycle
// runs. The call is dropped, not queued.
var ErrCheckInProgress = errors.New("check already in progress")

// Recorder is the subset of store.Store the checker writes to.
type Recorder interface {
	SetBool(ctx context.Context, key string, value bool) error
	RecordCode(ctx context.Context, code model.Code) error
	RecordCheck(ctx context.Context, rec model.CheckRecord) error
}

// Result summarizes a finished cycle.
type Result struct {
	Status  model.CheckStatus
	Code    model.Code
	Message *model.RawMessage
	Stale   bool // the message is older than the configured max age
}

// Checker runs check cycles against one mail source.
type Checker struct {
	src       source.MailSource
	extractor *extract.Extractor
	rec       Recorder
	pub       notify.Publisher
	cfg       model.MailConfig
	logger    *zap.Logger
	now       func() time.Time

	running atomic.Bool
	cycles  atomic.Int64
}

// Option configures a Checker.
type Option func(*Checker)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Checker) { c.now = now }
}

// WithExtractor overrides the default extractor.
func WithExtractor(e *extract.Extractor) Option {
	return func(c *Checker) { c.extractor = e }
}

// New creates a Checker.
func New(
	src source.MailSource,
	rec Recorder,
	pub notify.Publisher,
	cfg model.MailConfig,
	logger *zap.Logger,
	opts ...Option,
) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Checker{
		src:    src,
		rec:    rec,
		pub:    pub,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.extractor == nil {
		c.extractor = extract.New(extract.WithLogger(logger))
	}
	return c
}

// Cycles returns how many check cycles have completed.
func (c *Checker) Cycles() int64 {
	return c.cycles.Load()
}

// Running reports whether a cycle is in flight.
func (c *Checker) Running() bool {
	return c.running.Load()
}

// Check runs one cycle. Every outcome other than a found code also
// publishes noCodeFound, so pages always get feedback.
func (c *Checker) Check(ctx context.Context) (Result, error) {
	if !c.running.CompareAndSwap(false, true) {
		c.logger.Debug("check dropped, another is running")
		return Result{}, ErrCheckInProgress
	}
	defer c.running.Store(false)
	defer c.cycles.Add(1)

	started := c.now()
	c.pub.Publish(notify.Status(model.CheckChecking, ""))

	res, err := c.run(ctx)
	detail := ""
	if err != nil {
		res.Status = model.CheckError
		detail = err.Error()
		if source.IsAuthError(err) {
			c.logger.Warn("mail provider rejected credentials", zap.Error(err))
			if setErr := c.rec.SetBool(ctx, store.KeyAuthenticated, false); setErr != nil {
				c.logger.Error("clearing authenticated flag", zap.Error(setErr))
			}
		} else {
			c.logger.Error("check failed", zap.Error(err))
		}
	}

	switch res.Status {
	case model.CheckCodeFound:
		c.pub.Publish(notify.FillCode(res.Code.Value))
	default:
		c.pub.Publish(notify.NoCodeFound(detail))
	}
	c.pub.Publish(notify.Status(res.Status, detail))

	if recErr := c.rec.RecordCheck(ctx, model.CheckRecord{
		Status:     res.Status,
		Detail:     detail,
		StartedAt:  started,
		FinishedAt: c.now(),
	}); recErr != nil {
		c.logger.Error("recording check", zap.Error(recErr))
	}

	return res, err
}

func (c *Checker) run(ctx context.Context) (Result, error) {
	now := c.now()
	ids, err := c.src.List(ctx, source.ListOptions{
		Since:      now.Add(-c.cfg.Lookback()),
		MaxResults: c.cfg.MaxResults,
	})
	if err != nil {
		return Result{}, fmt.Errorf("listing messages: %w", err)
	}
	if len(ids) == 0 {
		c.logger.Info("no recent messages")
		return Result{Status: model.CheckNoEmails}, nil
	}

	msg, err := c.src.Fetch(ctx, ids[0])
	if err != nil {
		return Result{}, fmt.Errorf("fetching message %s: %w", ids[0], err)
	}

	age := msg.Age(now)
	stale := c.cfg.MaxAge() > 0 && age > c.cfg.MaxAge()
	log := c.logger.With(
		zap.String("id", msg.ID),
		zap.String("subject", msg.Subject()),
		zap.String("from", msg.From()),
		zap.Duration("age", age.Round(time.Second)),
	)
	if stale {
		log.Warn("newest message is older than the freshness window",
			zap.Duration("max_age", c.cfg.MaxAge()))
	} else {
		log.Info("checking newest message")
	}

	code, ok := c.extractor.ExtractMessage(msg, now)
	if !ok {
		log.Info("no verification code in message")
		return Result{Status: model.CheckNoCodeFound, Message: msg, Stale: stale}, nil
	}
	if code.Provider == "" {
		code.Provider = c.src.Provider()
	}

	if err := c.rec.RecordCode(ctx, code); err != nil {
		log.Error("recording code", zap.Error(err))
	}
	log.Info("verification code found", zap.Int("length", len(code.Value)))

	return Result{Status: model.CheckCodeFound, Code: code, Message: msg, Stale: stale}, nil
}
