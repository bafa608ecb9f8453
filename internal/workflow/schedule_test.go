package workflow

import (
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/roomclaw/internal/apperr"
	"github.com/nextlevelbuilder/roomclaw/internal/store"
)

var now = time.Date(2026, 3, 10, 8, 30, 15, 0, time.UTC)

func TestParseCron(t *testing.T) {
	s, err := Parse("0 9 * * *", now)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !s.Recurring {
		t.Error("cron should be recurring")
	}
	want := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	if !s.Next.Equal(want) {
		t.Errorf("next = %s, want %s", s.Next, want)
	}
}

func TestParseInstant(t *testing.T) {
	tests := []struct {
		expr string
		want time.Time
	}{
		{"2026-03-11T10:00:00Z", time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)},
		{"2026-03-11T12:00:00+02:00", time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)},
		{"2026-03-11T10:00:00", time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)},
		{"2026-04-01", time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		s, err := Parse(tt.expr, now)
		if err != nil {
			t.Errorf("Parse(%q): %v", tt.expr, err)
			continue
		}
		if s.Recurring || !s.Next.Equal(tt.want) {
			t.Errorf("Parse(%q) = %+v, want one-off at %s", tt.expr, s, tt.want)
		}
	}
}

func TestParseRejects(t *testing.T) {
	for _, expr := range []string{"", "tomorrow at nine", "2026-03-10T08:00:00Z", "61 * * * *"} {
		if _, err := Parse(expr, now); !apperr.IsScheduleParse(err) {
			t.Errorf("Parse(%q) err = %v, want schedule parse error", expr, err)
		}
	}
}

func TestNextAfterIsStrictlyLater(t *testing.T) {
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	next, err := NextAfter("0 9 * * *", at)
	if err != nil {
		t.Fatalf("NextAfter: %v", err)
	}
	want := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %s, want %s", next, want)
	}

	every, err := NextAfter("*/5 * * * *", at)
	if err != nil {
		t.Fatalf("NextAfter: %v", err)
	}
	if !every.After(at) || every.Sub(at) > 5*time.Minute {
		t.Errorf("every-5 next = %s", every)
	}
}

func TestValidateSteps(t *testing.T) {
	steps, err := ValidateSteps([]store.WorkflowStep{
		{Order: 2, Instruction: "post summary"},
		{Order: 1, Instruction: "collect news", ToolName: "search"},
	})
	if err != nil {
		t.Fatalf("ValidateSteps: %v", err)
	}
	if steps.Version != 1 || steps.Type != "workflowSteps" {
		t.Errorf("envelope = %+v", steps)
	}
	if steps.Steps[0].Order != 1 || steps.Steps[1].Order != 2 {
		t.Errorf("steps not ordered: %+v", steps.Steps)
	}

	steps, err = ValidateSteps([]store.WorkflowStep{
		{Order: 30, Instruction: "publish"},
		{Order: 10, Instruction: "draft"},
		{Order: 20, Instruction: "review"},
	})
	if err != nil {
		t.Fatalf("ValidateSteps: %v", err)
	}
	var got []string
	for _, s := range steps.Steps {
		got = append(got, s.Instruction)
	}
	if strings.Join(got, ",") != "draft,review,publish" {
		t.Errorf("step order = %v", got)
	}

	if _, err := ValidateSteps(nil); err == nil {
		t.Error("empty steps should fail")
	}
	if _, err := ValidateSteps([]store.WorkflowStep{{Order: 1, Instruction: " "}}); err == nil {
		t.Error("blank instruction should fail")
	}
	if _, err := ValidateSteps([]store.WorkflowStep{{Order: 1, Instruction: "a"}, {Order: 1, Instruction: "b"}}); err == nil {
		t.Error("duplicate order should fail")
	}
}
