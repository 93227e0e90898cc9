// Package task defines the task entity and its deadline arithmetic.
package task

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lllypuk/teamboard/internal/domain/errs"
)

const (
	// DefaultDeadlineDays is applied when a task is created without an
	// explicit deadline.
	DefaultDeadlineDays = 7

	// Unassigned marks a task without an assignee.
	Unassigned = -1

	hoursPerDay = 24
)

// Task is a tracked work item. Tasks are created and mutated only through the
// store; values handed out of the store are copies.
type Task struct {
	ID          int
	Title       string
	Description string
	Status      Status
	Priority    Priority
	AssigneeID  int
	ReporterID  int
	ProjectKey  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Deadline    time.Time
	AssignedAt  time.Time
	Comments    []string
}

// New creates a task with the default status and priority. The deadline is
// now + deadlineDays; deadlineDays <= 0 selects the default of 7 days.
func New(id int, title, description string, reporterID int, projectKey string, deadlineDays int, now time.Time) (*Task, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("task title cannot be empty: %w", errs.ErrValidation)
	}
	if deadlineDays <= 0 {
		deadlineDays = DefaultDeadlineDays
	}

	return &Task{
		ID:          id,
		Title:       title,
		Description: description,
		Status:      StatusTodo,
		Priority:    PriorityMedium,
		AssigneeID:  Unassigned,
		ReporterID:  reporterID,
		ProjectKey:  projectKey,
		CreatedAt:   now,
		UpdatedAt:   now,
		Deadline:    now.Add(time.Duration(deadlineDays) * hoursPerDay * time.Hour),
	}, nil
}

// SetStatus updates the status and stamps the update time.
func (t *Task) SetStatus(s Status, now time.Time) {
	t.Status = s
	t.UpdatedAt = now
}

// SetPriority updates the priority and stamps the update time.
func (t *Task) SetPriority(p Priority, now time.Time) {
	t.Priority = p
	t.UpdatedAt = now
}

// Assign sets the assignee and stamps both the update and assignment times.
func (t *Task) Assign(assigneeID int, now time.Time) {
	t.AssigneeID = assigneeID
	t.AssignedAt = now
	t.UpdatedAt = now
}

// AddComment appends a comment and stamps the update time. Comments are
// append-only.
func (t *Task) AddComment(comment string, now time.Time) {
	t.Comments = append(t.Comments, comment)
	t.UpdatedAt = now
}

// IsAssigned reports whether the task has an assignee.
func (t *Task) IsAssigned() bool {
	return t.AssigneeID != Unassigned
}

// IsActive reports whether the task counts toward a user's workload.
func (t *Task) IsActive() bool {
	return t.Status == StatusTodo || t.Status == StatusInProgress
}

// IsOverdue reports whether the deadline has passed at the given instant.
func (t *Task) IsOverdue(now time.Time) bool {
	return now.After(t.Deadline)
}

// DaysUntilDeadline returns the floor of the remaining time in whole days.
// It is negative for overdue tasks.
func (t *Task) DaysUntilDeadline(now time.Time) int {
	return int(math.Floor(t.Deadline.Sub(now).Hours() / hoursPerDay))
}

// Key returns the project-scoped task key, e.g. "PROJ-42".
func (t *Task) Key() string {
	return t.ProjectKey + "-" + strconv.Itoa(t.ID)
}

// String renders the one-line task summary used by list output and broadcasts.
func (t *Task) String() string {
	assignee := "Unassigned"
	if t.IsAssigned() {
		assignee = strconv.Itoa(t.AssigneeID)
	}
	return fmt.Sprintf("[%s] %s | Status: %s | Priority: %s | Assignee: %s",
		t.Key(), t.Title, t.Status, t.Priority, assignee)
}

// Clone returns a deep copy, detaching the comments slice.
func (t *Task) Clone() Task {
	c := *t
	c.Comments = append([]string(nil), t.Comments...)
	return c
}
