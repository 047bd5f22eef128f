// Package plan defines the domain model: user profile, goal, daily plans,
// tasks, and reflections, keyed by YYYY-MM-DD calendar dates.
package plan

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the calendar-day key format. Lexicographic order of these
// keys coincides with chronological order, so they double as range-query
// bounds in the store.
const DateLayout = "2006-01-02"

// TaskKind distinguishes actionable tasks from the quote entry that rides
// along in a plan's task list.
type TaskKind string

const (
	KindAction TaskKind = "action"
	KindQuote  TaskKind = "quote"
)

// Task is a single entry in a daily plan. At most one task per plan carries
// IsGIA (by construction of the generator, not a runtime check).
type Task struct {
	ID          string   `json:"id"`
	Text        string   `json:"text"`
	IsCompleted bool     `json:"isCompleted"`
	IsGIA       bool     `json:"isGIA"`
	Kind        TaskKind `json:"kind"`
}

// DailyPlan is the set of tasks generated for one user for one calendar day.
// Created by the generator, mutated in place as completion toggles, never
// deleted.
type DailyPlan struct {
	Date              string `json:"date"` // YYYY-MM-DD
	Tasks             []Task `json:"tasks"`
	MotivationalQuote string `json:"motivationalQuote"`
}

// DailyReflection pairs the user's free-text reflection with the generated
// coach response for one calendar day.
type DailyReflection struct {
	Reflection string `json:"reflection"`
	Response   string `json:"response"`
}

// UserProfile is long-lived user-declared configuration, read by every
// plan-generation call.
type UserProfile struct {
	Identity string `json:"identity"`
	Context  string `json:"context"`
}

// Goal is the user's declared goal.
type Goal struct {
	Title string `json:"title"`
}

// NewTaskID returns a fresh task identifier.
func NewTaskID() string {
	return uuid.NewString()
}

// NewQuoteTaskID returns the identifier for a plan's quote entry. The
// "-quote" suffix is kept so exported data stays recognizable to older
// consumers; in-process code should rely on Task.Kind.
func NewQuoteTaskID() string {
	return uuid.NewString() + "-quote"
}

// DateKey formats t as a calendar-day key.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDateKey validates and parses a calendar-day key.
func ParseDateKey(key string) (time.Time, error) {
	t, err := time.Parse(DateLayout, key)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date key %q: %w", key, err)
	}
	return t, nil
}

// GIA returns the plan's Greatest Impact Activity task, if present.
func (p *DailyPlan) GIA() (Task, bool) {
	for i := range p.Tasks {
		if p.Tasks[i].IsGIA {
			return p.Tasks[i], true
		}
	}
	return Task{}, false
}

// ActionTasks returns the plan's actionable tasks, excluding the quote entry.
func (p *DailyPlan) ActionTasks() []Task {
	out := make([]Task, 0, len(p.Tasks))
	for i := range p.Tasks {
		if p.Tasks[i].Kind != KindQuote {
			out = append(out, p.Tasks[i])
		}
	}
	return out
}

// Summary renders completed and incomplete task text for prompt context.
func (p *DailyPlan) Summary() string {
	var completed, incomplete []string
	for _, t := range p.ActionTasks() {
		if t.IsCompleted {
			completed = append(completed, t.Text)
		} else {
			incomplete = append(incomplete, t.Text)
		}
	}

	var b strings.Builder
	if len(completed) > 0 {
		b.WriteString("Completed: ")
		b.WriteString(strings.Join(completed, "; "))
	}
	if len(incomplete) > 0 {
		if b.Len() > 0 {
			b.WriteString(". ")
		}
		b.WriteString("Not completed: ")
		b.WriteString(strings.Join(incomplete, "; "))
	}
	if b.Len() == 0 {
		return "No tasks recorded."
	}
	return b.String()
}
