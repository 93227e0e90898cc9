package persist

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lllypuk/teamboard/internal/domain/chat"
	"github.com/lllypuk/teamboard/internal/domain/task"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id          INTEGER PRIMARY KEY,
	title       TEXT    NOT NULL,
	description TEXT    NOT NULL DEFAULT '',
	status      INTEGER NOT NULL,
	priority    INTEGER NOT NULL,
	assignee_id INTEGER NOT NULL,
	reporter_id INTEGER NOT NULL,
	project_key TEXT    NOT NULL,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL,
	deadline    INTEGER NOT NULL,
	assigned_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS task_comments (
	task_id INTEGER NOT NULL,
	seq     INTEGER NOT NULL,
	body    TEXT    NOT NULL,
	PRIMARY KEY (task_id, seq)
);

CREATE TABLE IF NOT EXISTS messages (
	id              INTEGER PRIMARY KEY,
	sender_id       INTEGER NOT NULL,
	sender_name     TEXT    NOT NULL,
	content         TEXT    NOT NULL,
	type            INTEGER NOT NULL,
	sent_at         INTEGER NOT NULL,
	target_user_id  INTEGER NOT NULL,
	related_task_id INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS counters (
	name  TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);
`

const nextTaskIDCounter = "next_task_id"

// SQLiteStore persists tasks and chat history in a SQLite database. Unlike
// the flat files, messages round-trip all fields.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the
// schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, dirMode); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", "file:"+path+"?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// LoadTasks reads the task snapshot including comments.
func (s *SQLiteStore) LoadTasks() ([]task.Task, int, error) {
	rows, err := s.db.Query(`SELECT id, title, description, status, priority, assignee_id,
		reporter_id, project_key, created_at, updated_at, deadline, assigned_at
		FROM tasks ORDER BY id`)
	if err != nil {
		return nil, 0, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		var t task.Task
		var created, updated, deadline, assigned int64
		var status, priority int
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &status, &priority,
			&t.AssigneeID, &t.ReporterID, &t.ProjectKey, &created, &updated, &deadline, &assigned); err != nil {
			return nil, 0, fmt.Errorf("scan task: %w", err)
		}
		t.Status = task.Status(status)
		t.Priority = task.Priority(priority)
		t.CreatedAt = time.Unix(created, 0)
		t.UpdatedAt = time.Unix(updated, 0)
		t.Deadline = time.Unix(deadline, 0)
		if assigned != 0 {
			t.AssignedAt = time.Unix(assigned, 0)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate tasks: %w", err)
	}

	for i := range tasks {
		comments, err := s.loadComments(tasks[i].ID)
		if err != nil {
			return nil, 0, err
		}
		tasks[i].Comments = comments
	}

	nextID := 1
	err = s.db.QueryRow(`SELECT value FROM counters WHERE name = ?`, nextTaskIDCounter).Scan(&nextID)
	if err != nil && err != sql.ErrNoRows {
		return nil, 0, fmt.Errorf("read task counter: %w", err)
	}
	return tasks, nextID, nil
}

func (s *SQLiteStore) loadComments(taskID int) ([]string, error) {
	rows, err := s.db.Query(`SELECT body FROM task_comments WHERE task_id = ? ORDER BY seq`, taskID)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	var comments []string
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, body)
	}
	return comments, rows.Err()
}

// SaveTasks rewrites the full task snapshot in one transaction.
func (s *SQLiteStore) SaveTasks(nextID int, tasks []task.Task) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM tasks`); err != nil {
		return fmt.Errorf("clear tasks: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM task_comments`); err != nil {
		return fmt.Errorf("clear comments: %w", err)
	}

	for i := range tasks {
		t := &tasks[i]
		var assigned int64
		if !t.AssignedAt.IsZero() {
			assigned = t.AssignedAt.Unix()
		}
		_, err := tx.Exec(`INSERT INTO tasks (id, title, description, status, priority,
			assignee_id, reporter_id, project_key, created_at, updated_at, deadline, assigned_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
			t.ID, t.Title, t.Description, int(t.Status), int(t.Priority),
			t.AssigneeID, t.ReporterID, t.ProjectKey,
			t.CreatedAt.Unix(), t.UpdatedAt.Unix(), t.Deadline.Unix(), assigned)
		if err != nil {
			return fmt.Errorf("insert task %d: %w", t.ID, err)
		}
		for seq, body := range t.Comments {
			if _, err := tx.Exec(`INSERT INTO task_comments (task_id, seq, body) VALUES (?,?,?)`,
				t.ID, seq, body); err != nil {
				return fmt.Errorf("insert comment for task %d: %w", t.ID, err)
			}
		}
	}

	if _, err := tx.Exec(`INSERT INTO counters (name, value) VALUES (?,?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`, nextTaskIDCounter, nextID); err != nil {
		return fmt.Errorf("update task counter: %w", err)
	}
	return tx.Commit()
}

// LoadMessages reads the full chat history.
func (s *SQLiteStore) LoadMessages() ([]chat.Message, int, error) {
	rows, err := s.db.Query(`SELECT id, sender_id, sender_name, content, type, sent_at,
		target_user_id, related_task_id FROM messages ORDER BY id`)
	if err != nil {
		return nil, 0, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []chat.Message
	nextID := 1
	for rows.Next() {
		var m chat.Message
		var typ int
		var sentAt int64
		if err := rows.Scan(&m.ID, &m.SenderID, &m.SenderName, &m.Content, &typ,
			&sentAt, &m.TargetUserID, &m.RelatedTaskID); err != nil {
			return nil, 0, fmt.Errorf("scan message: %w", err)
		}
		m.Type = chat.Type(typ)
		m.SentAt = time.Unix(sentAt, 0)
		messages = append(messages, m)
		if m.ID >= nextID {
			nextID = m.ID + 1
		}
	}
	return messages, nextID, rows.Err()
}

// AppendMessage inserts one chat message.
func (s *SQLiteStore) AppendMessage(m chat.Message) error {
	_, err := s.db.Exec(`INSERT INTO messages (id, sender_id, sender_name, content, type,
		sent_at, target_user_id, related_task_id) VALUES (?,?,?,?,?,?,?,?)`,
		m.ID, m.SenderID, m.SenderName, m.Content, int(m.Type),
		m.SentAt.Unix(), m.TargetUserID, m.RelatedTaskID)
	if err != nil {
		return fmt.Errorf("insert message %d: %w", m.ID, err)
	}
	return nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }
