package store

import (
	"fmt"
	"strings"
	"time"
)

// dueSoonWindowDays is the dashboard's "due soon" horizon.
const dueSoonWindowDays = 3

// Dashboard renders the project overview. The lock is taken once here and
// every aggregation below runs on the Locked helper variants; calling the
// exported query methods from inside would self-deadlock.
func (s *Store) Dashboard() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	b.WriteString("=== PROJECT DASHBOARD ===\n")
	fmt.Fprintf(&b, "Total Tasks: %d\n", len(s.tasks))

	b.WriteString("\nTASKS BY USER:\n")
	for _, id := range s.userIDs {
		u := s.usersByID[id]
		userTasks := s.tasksByAssigneeLocked(u.ID)
		if len(userTasks) == 0 {
			continue
		}
		fmt.Fprintf(&b, "  %s (%s): %d tasks\n", u.Username, u.Role, len(userTasks))
		for _, t := range userTasks {
			fmt.Fprintf(&b, "    - [%s] %s (%s, Due: %s)\n",
				t.Key(), t.Title, t.Status, t.Deadline.Format(time.DateOnly))
		}
	}

	if overdue := s.overdueLocked(); len(overdue) > 0 {
		fmt.Fprintf(&b, "\nOVERDUE TASKS (%d):\n", len(overdue))
		for _, t := range overdue {
			fmt.Fprintf(&b, "  - %s\n", t)
		}
	}

	if dueSoon := s.dueSoonLocked(dueSoonWindowDays); len(dueSoon) > 0 {
		fmt.Fprintf(&b, "\nDUE SOON (Next %d days, %d):\n", dueSoonWindowDays, len(dueSoon))
		for _, t := range dueSoon {
			fmt.Fprintf(&b, "  - %s\n", t)
		}
	}

	return b.String()
}
