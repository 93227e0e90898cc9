package task_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/teamboard/internal/domain/errs"
	"github.com/lllypuk/teamboard/internal/domain/task"
)

var baseTime = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func TestNew(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		created, err := task.New(1, "Fix login", "", 2, "PROJ", 0, baseTime)
		require.NoError(t, err)

		assert.Equal(t, task.StatusTodo, created.Status)
		assert.Equal(t, task.PriorityMedium, created.Priority)
		assert.Equal(t, task.Unassigned, created.AssigneeID)
		assert.False(t, created.IsAssigned())
		assert.Equal(t, baseTime.AddDate(0, 0, task.DefaultDeadlineDays), created.Deadline)
	})

	t.Run("honors explicit deadline", func(t *testing.T) {
		created, err := task.New(1, "Fix login", "", 2, "PROJ", 2, baseTime)
		require.NoError(t, err)

		assert.Equal(t, baseTime.AddDate(0, 0, 2), created.Deadline)
	})

	t.Run("rejects empty title", func(t *testing.T) {
		_, err := task.New(1, "   ", "", 2, "PROJ", 0, baseTime)
		require.ErrorIs(t, err, errs.ErrValidation)
	})
}

func TestTask_DeadlineArithmetic(t *testing.T) {
	created, err := task.New(1, "Fix login", "", 2, "PROJ", 7, baseTime)
	require.NoError(t, err)

	t.Run("not overdue before the deadline", func(t *testing.T) {
		now := baseTime.AddDate(0, 0, 6)
		assert.False(t, created.IsOverdue(now))
		assert.Equal(t, 1, created.DaysUntilDeadline(now))
	})

	t.Run("zero days left inside the last day", func(t *testing.T) {
		now := created.Deadline.Add(-time.Hour)
		assert.False(t, created.IsOverdue(now))
		assert.Equal(t, 0, created.DaysUntilDeadline(now))
	})

	t.Run("overdue after the deadline", func(t *testing.T) {
		now := created.Deadline.Add(25 * time.Hour)
		assert.True(t, created.IsOverdue(now))
		assert.Equal(t, -2, created.DaysUntilDeadline(now))
	})
}

func TestTask_Mutations(t *testing.T) {
	created, err := task.New(4, "Write docs", "user guide", 2, "PROJ", 0, baseTime)
	require.NoError(t, err)

	later := baseTime.Add(time.Hour)

	t.Run("assign stamps both timestamps", func(t *testing.T) {
		created.Assign(3, later)
		assert.Equal(t, 3, created.AssigneeID)
		assert.True(t, created.IsAssigned())
		assert.Equal(t, later, created.AssignedAt)
		assert.Equal(t, later, created.UpdatedAt)
	})

	t.Run("status drives activity", func(t *testing.T) {
		created.SetStatus(task.StatusInProgress, later)
		assert.True(t, created.IsActive())

		created.SetStatus(task.StatusDone, later)
		assert.False(t, created.IsActive())

		created.SetStatus(task.StatusBlocked, later)
		assert.False(t, created.IsActive())
	})

	t.Run("comments are append-only", func(t *testing.T) {
		created.AddComment("first", later)
		created.AddComment("second", later)
		assert.Equal(t, []string{"first", "second"}, created.Comments)
	})
}

func TestTask_String(t *testing.T) {
	created, err := task.New(42, "Fix login", "", 2, "PROJ", 0, baseTime)
	require.NoError(t, err)

	assert.Equal(t, "PROJ-42", created.Key())
	assert.Equal(t,
		"[PROJ-42] Fix login | Status: To Do | Priority: Medium | Assignee: Unassigned",
		created.String())

	created.Assign(3, baseTime)
	assert.Contains(t, created.String(), "Assignee: 3")
}

func TestTask_Clone(t *testing.T) {
	created, err := task.New(1, "Fix login", "", 2, "PROJ", 0, baseTime)
	require.NoError(t, err)
	created.AddComment("original", baseTime)

	clone := created.Clone()
	clone.Comments[0] = "mutated"

	assert.Equal(t, "original", created.Comments[0])
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		token string
		want  task.Status
		ok    bool
	}{
		{"TODO", task.StatusTodo, true},
		{"PROGRESS", task.StatusInProgress, true},
		{"REVIEW", task.StatusInReview, true},
		{"DONE", task.StatusDone, true},
		{"BLOCKED", task.StatusBlocked, true},
		{"SHIPPED", 0, false},
	}
	for _, tt := range tests {
		got, ok := task.ParseStatus(tt.token)
		assert.Equal(t, tt.ok, ok, tt.token)
		if tt.ok {
			assert.Equal(t, tt.want, got, tt.token)
		}
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		token string
		want  task.Priority
		ok    bool
	}{
		{"LOW", task.PriorityLow, true},
		{"MEDIUM", task.PriorityMedium, true},
		{"HIGH", task.PriorityHigh, true},
		{"CRITICAL", task.PriorityCritical, true},
		{"URGENT", 0, false},
	}
	for _, tt := range tests {
		got, ok := task.ParsePriority(tt.token)
		assert.Equal(t, tt.ok, ok, tt.token)
		if tt.ok {
			assert.Equal(t, tt.want, got, tt.token)
		}
	}
}
