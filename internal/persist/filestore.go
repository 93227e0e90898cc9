package persist

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lllypuk/teamboard/internal/domain/chat"
	"github.com/lllypuk/teamboard/internal/domain/task"
)

// Flat-file record layout:
//
//	tasks.db   first line is the next task id, then one task per line:
//	           id|title|description|status|priority|assignee|reporter|project|deadlineEpoch|assignedEpoch
//	chatlog.txt one appended line per message: "2006-01-02 15:04:05 [sender] content"
const (
	tasksFileName = "tasks.db"
	chatFileName  = "chatlog.txt"

	taskFieldCount = 10
	fileMode       = 0o644
	dirMode        = 0o755
)

// FileStore persists tasks and chat history as flat files in a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the data directory if missing and returns a file-based
// store.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) tasksPath() string { return filepath.Join(s.dir, tasksFileName) }
func (s *FileStore) chatPath() string  { return filepath.Join(s.dir, chatFileName) }

// LoadTasks reads the task snapshot. A missing file yields an empty snapshot.
func (s *FileStore) LoadTasks() ([]task.Task, int, error) {
	f, err := os.Open(s.tasksPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 1, nil
		}
		return nil, 0, fmt.Errorf("open %s: %w", tasksFileName, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return nil, 1, nil
	}
	nextID, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return nil, 0, fmt.Errorf("parse next task id: %w", err)
	}

	var tasks []task.Task
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		t, parseErr := parseTaskRecord(line)
		if parseErr != nil {
			return nil, 0, fmt.Errorf("parse task record %q: %w", line, parseErr)
		}
		tasks = append(tasks, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", tasksFileName, err)
	}
	return tasks, nextID, nil
}

// SaveTasks rewrites the full task snapshot atomically via a temp file.
func (s *FileStore) SaveTasks(nextID int, tasks []task.Task) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%d\n", nextID)
	for i := range tasks {
		b.WriteString(formatTaskRecord(&tasks[i]))
		b.WriteByte('\n')
	}

	tmp := s.tasksPath() + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), fileMode); err != nil {
		return fmt.Errorf("write %s: %w", tasksFileName, err)
	}
	if err := os.Rename(tmp, s.tasksPath()); err != nil {
		return fmt.Errorf("replace %s: %w", tasksFileName, err)
	}
	return nil
}

// LoadMessages reads the chat history. The flat format only records
// timestamp, sender and content, so history loads back as general messages.
func (s *FileStore) LoadMessages() ([]chat.Message, int, error) {
	f, err := os.Open(s.chatPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 1, nil
		}
		return nil, 0, fmt.Errorf("open %s: %w", chatFileName, err)
	}
	defer f.Close()

	var messages []chat.Message
	nextID := 1
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		m, ok := parseChatRecord(line, nextID)
		if !ok {
			continue
		}
		messages = append(messages, m)
		nextID++
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", chatFileName, err)
	}
	return messages, nextID, nil
}

// AppendMessage appends one formatted line to the chat log.
func (s *FileStore) AppendMessage(m chat.Message) error {
	f, err := os.OpenFile(s.chatPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, fileMode)
	if err != nil {
		return fmt.Errorf("open %s: %w", chatFileName, err)
	}
	defer f.Close()

	if _, err := f.WriteString(m.Format() + "\n"); err != nil {
		return fmt.Errorf("append to %s: %w", chatFileName, err)
	}
	return nil
}

// Close is a no-op; files are opened per operation.
func (s *FileStore) Close() error { return nil }

func formatTaskRecord(t *task.Task) string {
	var assigned int64
	if !t.AssignedAt.IsZero() {
		assigned = t.AssignedAt.Unix()
	}
	return fmt.Sprintf("%d|%s|%s|%d|%d|%d|%d|%s|%d|%d",
		t.ID,
		sanitizeField(t.Title),
		sanitizeField(t.Description),
		int(t.Status),
		int(t.Priority),
		t.AssigneeID,
		t.ReporterID,
		t.ProjectKey,
		t.Deadline.Unix(),
		assigned,
	)
}

// sanitizeField keeps the pipe-delimited format parseable.
func sanitizeField(s string) string {
	return strings.ReplaceAll(s, "|", "/")
}

func parseTaskRecord(line string) (task.Task, error) {
	parts := strings.Split(line, "|")
	if len(parts) != taskFieldCount {
		return task.Task{}, fmt.Errorf("expected %d fields, got %d", taskFieldCount, len(parts))
	}

	nums := make([]int64, taskFieldCount)
	for _, i := range []int{0, 3, 4, 5, 6, 8, 9} {
		v, err := strconv.ParseInt(parts[i], 10, 64)
		if err != nil {
			return task.Task{}, fmt.Errorf("field %d: %w", i, err)
		}
		nums[i] = v
	}

	t := task.Task{
		ID:          int(nums[0]),
		Title:       parts[1],
		Description: parts[2],
		Status:      task.Status(nums[3]),
		Priority:    task.Priority(nums[4]),
		AssigneeID:  int(nums[5]),
		ReporterID:  int(nums[6]),
		ProjectKey:  parts[7],
		Deadline:    time.Unix(nums[8], 0),
	}
	if nums[9] != 0 {
		t.AssignedAt = time.Unix(nums[9], 0)
	}
	// Creation and update times are not part of the flat format and are
	// left zero rather than guessed from the deadline.
	return t, nil
}

func parseChatRecord(line string, id int) (chat.Message, bool) {
	// "2006-01-02 15:04:05 [sender] content"
	const tsLen = len(time.DateTime)
	if len(line) < tsLen+2 {
		return chat.Message{}, false
	}
	ts, err := time.Parse(time.DateTime, line[:tsLen])
	if err != nil {
		return chat.Message{}, false
	}
	rest := line[tsLen+1:]
	if !strings.HasPrefix(rest, "[") {
		return chat.Message{}, false
	}
	end := strings.Index(rest, "] ")
	if end < 0 {
		return chat.Message{}, false
	}
	sender := rest[1:end]
	content := rest[end+2:]

	m := chat.New(id, chat.None, sender, content, chat.TypeGeneral, ts)
	if sender == chat.SystemSenderName {
		m.Type = chat.TypeSystem
		m.SenderID = chat.SystemSenderID
	}
	return m, true
}
