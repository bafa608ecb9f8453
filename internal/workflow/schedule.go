// Package workflow parses workflow schedules and validates step lists.
package workflow

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/roomclaw/internal/apperr"
	"github.com/nextlevelbuilder/roomclaw/internal/store"
)

// Schedule is a validated schedule expression.
type Schedule struct {
	Expression string
	Recurring  bool
	Next       time.Time
}

// Accepted one-off instant layouts. Layouts without a zone are read as UTC.
var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Parse validates expr at workflow creation time. A cron expression
// (evaluated in UTC) yields a recurring schedule; otherwise expr must be an
// ISO-8601 instant strictly after now.
func Parse(expr string, now time.Time) (Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Schedule{}, apperr.ScheduleParse("schedule expression is empty")
	}

	if isCron(expr) {
		next, err := NextAfter(expr, now)
		if err != nil {
			return Schedule{}, err
		}
		return Schedule{Expression: expr, Recurring: true, Next: next}, nil
	}

	at, ok := parseInstant(expr)
	if !ok {
		return Schedule{}, apperr.ScheduleParse("invalid schedule expression %q: not a cron expression or ISO-8601 time", expr)
	}
	if !at.After(now) {
		return Schedule{}, apperr.ScheduleParse("scheduled time %s must be in the future", at.UTC().Format(time.RFC3339))
	}
	return Schedule{Expression: expr, Recurring: false, Next: at.UTC()}, nil
}

// NextAfter returns the first cron occurrence strictly after t, in UTC.
func NextAfter(expr string, t time.Time) (time.Time, error) {
	if !isCron(expr) {
		return time.Time{}, apperr.ScheduleParse("invalid cron expression %q", expr)
	}
	ref := t.UTC()
	for range 3 {
		next, err := gronx.NextTickAfter(expr, ref, false)
		if err != nil {
			return time.Time{}, apperr.ScheduleParse("cron expression %q has no next occurrence: %v", expr, err)
		}
		if next.After(t) {
			return next.UTC(), nil
		}
		ref = next.Add(time.Second)
	}
	return time.Time{}, apperr.ScheduleParse("cron expression %q did not advance", expr)
}

func isCron(expr string) bool {
	g := gronx.New()
	return g.IsValid(expr)
}

func parseInstant(s string) (time.Time, bool) {
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ValidateSteps checks a model-supplied step list and normalizes it into the
// versioned envelope, ordering steps by Order.
func ValidateSteps(steps []store.WorkflowStep) (store.WorkflowSteps, error) {
	if len(steps) == 0 {
		return store.WorkflowSteps{}, apperr.Invalid("workflow needs at least one step")
	}
	seen := make(map[int]bool, len(steps))
	out := make([]store.WorkflowStep, len(steps))
	copy(out, steps)
	for i, s := range out {
		if strings.TrimSpace(s.Instruction) == "" {
			return store.WorkflowSteps{}, apperr.Invalid("step %d has no instruction", i+1)
		}
		if s.Order <= 0 {
			out[i].Order = i + 1
		}
		if seen[out[i].Order] {
			return store.WorkflowSteps{}, apperr.Invalid("duplicate step order %d", out[i].Order)
		}
		seen[out[i].Order] = true
	}
	slices.SortStableFunc(out, func(a, b store.WorkflowStep) int { return cmp.Compare(a.Order, b.Order) })
	return store.WorkflowSteps{
		Version: store.WorkflowStepsVersion,
		Type:    store.WorkflowStepsType,
		Steps:   out,
	}, nil
}

// Describe renders a one-line human summary, used by the CLI.
func (s Schedule) Describe() string {
	if s.Recurring {
		return fmt.Sprintf("recurring %q, next run %s", s.Expression, s.Next.Format(time.RFC3339))
	}
	return fmt.Sprintf("one-off at %s", s.Next.Format(time.RFC3339))
}
