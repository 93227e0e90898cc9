package store

import (
	"fmt"
	"strconv"

	"github.com/lllypuk/teamboard/internal/domain/chat"
	"github.com/lllypuk/teamboard/internal/domain/errs"
	"github.com/lllypuk/teamboard/internal/domain/task"
	"github.com/lllypuk/teamboard/internal/domain/user"
)

// CreateTask creates a task reported by the given user, records a task-update
// chat entry and persists both. deadlineDays <= 0 selects the 7-day default.
func (s *Store) CreateTask(reporterID int, reporterName, title, description string, deadlineDays int) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := task.New(s.nextTaskID, title, description, reporterID, DefaultProjectKey, deadlineDays, s.now())
	if err != nil {
		return task.Task{}, err
	}
	s.nextTaskID++
	s.tasks = append(s.tasks, t)
	s.tasksByID[t.ID] = t

	s.recordTaskUpdateLocked(reporterID, reporterName, t.ID, "Task created: "+t.Title)
	s.persistTasksLocked()
	return t.Clone(), nil
}

// AssignTask sets the task's assignee. The assignee must be a known user.
// Role enforcement happens at the dispatch layer; the store only guarantees
// referential integrity.
func (s *Store) AssignTask(actorID int, actorName string, taskID, assigneeID int) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.taskLocked(taskID)
	if err != nil {
		return task.Task{}, err
	}
	assignee, ok := s.usersByID[assigneeID]
	if !ok {
		return task.Task{}, fmt.Errorf("assignee %d: %w", assigneeID, errs.ErrNotFound)
	}

	t.Assign(assigneeID, s.now())

	s.recordTaskUpdateLocked(actorID, actorName, t.ID,
		"Task "+strconv.Itoa(t.ID)+" assigned to "+assignee.Username)
	s.persistTasksLocked()
	return t.Clone(), nil
}

// UpdateStatus sets the task's status. Any status may follow any other; there
// is deliberately no transition state machine.
func (s *Store) UpdateStatus(actorID int, actorName string, taskID int, status task.Status) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.taskLocked(taskID)
	if err != nil {
		return task.Task{}, err
	}
	t.SetStatus(status, s.now())

	s.recordTaskUpdateLocked(actorID, actorName, t.ID,
		"Task "+strconv.Itoa(t.ID)+" status changed to "+status.String())
	s.persistTasksLocked()
	return t.Clone(), nil
}

// UpdatePriority sets the task's priority.
func (s *Store) UpdatePriority(actorID int, actorName string, taskID int, priority task.Priority) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.taskLocked(taskID)
	if err != nil {
		return task.Task{}, err
	}
	t.SetPriority(priority, s.now())

	s.recordTaskUpdateLocked(actorID, actorName, t.ID,
		"Task "+strconv.Itoa(t.ID)+" priority changed to "+priority.String())
	s.persistTasksLocked()
	return t.Clone(), nil
}

// CommentTask appends a comment to the task.
func (s *Store) CommentTask(actorID int, actorName string, taskID int, text string) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.taskLocked(taskID)
	if err != nil {
		return task.Task{}, err
	}
	t.AddComment(text, s.now())

	s.recordTaskUpdateLocked(actorID, actorName, t.ID, "Comment on task "+strconv.Itoa(t.ID)+": "+text)
	s.persistTasksLocked()
	return t.Clone(), nil
}

// TaskByID returns a copy of the task.
func (s *Store) TaskByID(taskID int) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.taskLocked(taskID)
	if err != nil {
		return task.Task{}, err
	}
	return t.Clone(), nil
}

// Tasks returns copies of all tasks in creation order.
func (s *Store) Tasks() []task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneTasks(s.tasks)
}

// TasksByProject returns the tasks filed under the project key.
func (s *Store) TasksByProject(projectKey string) []task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []task.Task
	for _, t := range s.tasks {
		if t.ProjectKey == projectKey {
			out = append(out, t.Clone())
		}
	}
	return out
}

// TasksByAssignee returns the tasks assigned to the user.
func (s *Store) TasksByAssignee(userID int) []task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneTasks(s.tasksByAssigneeLocked(userID))
}

// TasksByStatus returns the tasks in the given status.
func (s *Store) TasksByStatus(status task.Status) []task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []task.Task
	for _, t := range s.tasks {
		if t.Status == status {
			out = append(out, t.Clone())
		}
	}
	return out
}

// OverdueTasks returns tasks past their deadline that are not done.
func (s *Store) OverdueTasks() []task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneTasks(s.overdueLocked())
}

// DueSoonTasks returns tasks due within the next N days that are not done.
func (s *Store) DueSoonTasks(days int) []task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneTasks(s.dueSoonLocked(days))
}

// StatusCounts returns the task count per status.
func (s *Store) StatusCounts() map[task.Status]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[task.Status]int)
	for _, t := range s.tasks {
		counts[t.Status]++
	}
	return counts
}

// ActiveTaskCount returns the user's workload: assigned tasks in To Do or In
// Progress.
func (s *Store) ActiveTaskCount(userID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeCountLocked(userID)
}

// RecommendAssignee picks the developer with the lowest workload. Ties break
// toward the lowest user id. Returns false when no developer is registered.
func (s *Store) RecommendAssignee() (user.User, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recommendLocked()
}

// taskLocked finds a task by id. Lock must be held.
func (s *Store) taskLocked(taskID int) (*task.Task, error) {
	t, ok := s.tasksByID[taskID]
	if !ok {
		return nil, fmt.Errorf("task %d: %w", taskID, errs.ErrNotFound)
	}
	return t, nil
}

// recordTaskUpdateLocked appends a task-update chat entry. Lock must be held.
func (s *Store) recordTaskUpdateLocked(senderID int, senderName string, taskID int, update string) {
	m := chat.New(0, senderID, senderName, update, chat.TypeTaskUpdate, s.now())
	m.RelatedTaskID = taskID
	s.appendMessageLocked(m)
}

// overdueLocked collects overdue, not-done tasks. Lock must be held.
func (s *Store) overdueLocked() []*task.Task {
	now := s.now()
	var out []*task.Task
	for _, t := range s.tasks {
		if t.IsOverdue(now) && t.Status != task.StatusDone {
			out = append(out, t)
		}
	}
	return out
}

// dueSoonLocked collects tasks with 0..days remaining that are not done.
// Lock must be held.
func (s *Store) dueSoonLocked(days int) []*task.Task {
	now := s.now()
	var out []*task.Task
	for _, t := range s.tasks {
		left := t.DaysUntilDeadline(now)
		if left >= 0 && left <= days && t.Status != task.StatusDone {
			out = append(out, t)
		}
	}
	return out
}

// tasksByAssigneeLocked collects the user's tasks. Lock must be held.
func (s *Store) tasksByAssigneeLocked(userID int) []*task.Task {
	var out []*task.Task
	for _, t := range s.tasks {
		if t.AssigneeID == userID {
			out = append(out, t)
		}
	}
	return out
}

// activeCountLocked counts the user's To Do / In Progress tasks. Lock must be
// held.
func (s *Store) activeCountLocked(userID int) int {
	count := 0
	for _, t := range s.tasks {
		if t.AssigneeID == userID && t.IsActive() {
			count++
		}
	}
	return count
}

// recommendLocked scans developers in ascending user-id order and keeps the
// first minimum, which makes the tie-break deterministic. Lock must be held.
func (s *Store) recommendLocked() (user.User, int, bool) {
	var best *user.User
	bestLoad := 0
	for _, id := range s.userIDs {
		u := s.usersByID[id]
		if u.Role != user.RoleDeveloper {
			continue
		}
		load := s.activeCountLocked(u.ID)
		if best == nil || load < bestLoad {
			best = u
			bestLoad = load
		}
	}
	if best == nil {
		return user.User{}, 0, false
	}
	return *best, bestLoad, true
}

func cloneTasks(tasks []*task.Task) []task.Task {
	out := make([]task.Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Clone())
	}
	return out
}
