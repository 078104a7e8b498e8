package budget

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/verdict/ai/openai"
	"github.com/teranos/verdict/errors"
)

const (
	// DefaultFloor is the number of in-flight remote jobs at which new submissions stop
	DefaultFloor = 10
	// DefaultPageSize is the page size used when listing remote jobs
	DefaultPageSize = openai.DefaultListLimit
	// DefaultMaxPages bounds a single listing walk
	DefaultMaxPages = 1000
)

// BatchLister lists remote jobs one page at a time
type BatchLister interface {
	ListBatches(ctx context.Context, params openai.ListParams) (*openai.BatchList, error)
}

// AdmissionConfig contains admission limits
type AdmissionConfig struct {
	Floor    int // admit while in-flight count is below this
	PageSize int
	MaxPages int
}

// DefaultAdmissionConfig returns the standard admission limits
func DefaultAdmissionConfig() AdmissionConfig {
	return AdmissionConfig{
		Floor:    DefaultFloor,
		PageSize: DefaultPageSize,
		MaxPages: DefaultMaxPages,
	}
}

// Decision is the outcome of one admission check
type Decision struct {
	Inflight  int
	Listed    int
	Pages     int
	Floor     int
	Admit     bool
	CheckedAt time.Time
}

// Remaining returns how many more remote jobs fit under the floor.
// A decision that does not admit leaves none.
func (d Decision) Remaining() int {
	if !d.Admit {
		return 0
	}
	if r := d.Floor - d.Inflight; r > 0 {
		return r
	}
	return 0
}

// Admission gates new remote submissions on the number of jobs already in flight
type Admission struct {
	lister  BatchLister
	config  AdmissionConfig
	logger  *zap.SugaredLogger
	timeNow func() time.Time // Injectable for testing
}

// NewAdmission creates an admission controller with real time
func NewAdmission(lister BatchLister, config AdmissionConfig, logger *zap.SugaredLogger) *Admission {
	return NewAdmissionWithClock(lister, config, logger, time.Now)
}

// NewAdmissionWithClock creates an admission controller with injectable clock (for testing)
func NewAdmissionWithClock(lister BatchLister, config AdmissionConfig, logger *zap.SugaredLogger, timeNow func() time.Time) *Admission {
	if config.Floor <= 0 {
		config.Floor = DefaultFloor
	}
	if config.PageSize <= 0 {
		config.PageSize = DefaultPageSize
	}
	if config.MaxPages <= 0 {
		config.MaxPages = DefaultMaxPages
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Admission{
		lister:  lister,
		config:  config,
		logger:  logger,
		timeNow: timeNow,
	}
}

// Check counts in-flight remote jobs across all pages and decides whether new
// submissions are admitted. A listing failure is returned with Admit=false.
func (a *Admission) Check(ctx context.Context) (Decision, error) {
	d := Decision{Floor: a.config.Floor, CheckedAt: a.timeNow()}

	seen := make(map[string]bool)
	after := ""
	for d.Pages < a.config.MaxPages {
		page, err := a.lister.ListBatches(ctx, openai.ListParams{Limit: a.config.PageSize, After: after})
		if err != nil {
			err = errors.Wrap(err, "failed to list remote jobs")
			err = errors.WithDetail(err, fmt.Sprintf("Pages read before failure: %d", d.Pages))
			err = errors.WithDetail(err, fmt.Sprintf("In-flight counted so far: %d", d.Inflight))
			a.logger.Warnw("Admission check failed, not admitting new submissions", "error", err)
			d.Admit = false
			return d, err
		}
		d.Pages++

		for _, b := range page.Data {
			d.Listed++
			if openai.IsInFlight(b.Status) {
				d.Inflight++
			}
		}

		if !page.HasMore || len(page.Data) == 0 {
			break
		}
		next := page.LastID
		if next == "" {
			next = page.Data[len(page.Data)-1].ID
		}
		// A cursor that repeats would page forever
		if next == "" || seen[next] {
			a.logger.Warnw("Remote listing cursor did not advance, stopping", "cursor", next)
			break
		}
		seen[next] = true
		after = next
	}

	d.Admit = d.Inflight < d.Floor
	a.logger.Infow("Admission checked",
		"inflight", d.Inflight,
		"listed", d.Listed,
		"pages", d.Pages,
		"floor", d.Floor,
		"admit", d.Admit)

	return d, nil
}
