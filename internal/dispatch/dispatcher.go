// Package dispatch parses command lines, enforces the authentication gate and
// role checks, invokes the store and decides the fan-out.
package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"strings"

	"github.com/lllypuk/teamboard/internal/domain/errs"
	"github.com/lllypuk/teamboard/internal/domain/task"
	"github.com/lllypuk/teamboard/internal/hub"
	"github.com/lllypuk/teamboard/internal/metrics"
	"github.com/lllypuk/teamboard/internal/store"
	"github.com/lllypuk/teamboard/internal/wire"
)

const panicStackSize = 4 << 10

// WelcomeLine is sent to every connection on accept.
const WelcomeLine = "[SYSTEM] Connected to TeamBoard. Please login with /login <username> <password>"

// Dispatcher routes command lines from clients to the store and fans results
// out through the hub.
type Dispatcher struct {
	store   *store.Store
	hub     *hub.Hub
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures the Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// New creates a dispatcher.
func New(st *store.Store, h *hub.Hub, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:   st,
		hub:     h,
		logger:  slog.Default(),
		metrics: metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle processes one inbound line from a client. It is the hub.Handler for
// every transport. A panic in a command handler is isolated: it is logged
// with a stack, answered with a generic error, and the connection keeps
// processing subsequent commands.
func (d *Dispatcher) Handle(c *hub.Client, raw string) {
	frame := wire.Parse(raw)
	line := strings.TrimSpace(frame.Payload)
	if line == "" {
		return
	}

	name := strings.Fields(line)[0]

	defer func() {
		if r := recover(); r != nil {
			stack := make([]byte, panicStackSize)
			stack = stack[:runtime.Stack(stack, false)]
			d.logger.Error("panic while processing command",
				slog.String("command", name),
				slog.String("conn_id", c.ID()),
				slog.Any("panic", r),
				slog.String("stack", string(stack)),
			)
			c.Send("[ERROR] Internal server error, please try again")
			d.metrics.CommandsTotal.WithLabelValues(name, "error").Inc()
		}
	}()

	err := d.route(c, name, line)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		c.Send(errorLine(err))
	}
	d.metrics.CommandsTotal.WithLabelValues(name, outcome).Inc()
}

// HandleDisconnect runs ordinary cleanup for a departed connection: release
// the session, mark the user offline and announce the departure. Installed as
// the hub's disconnect handler.
func (d *Dispatcher) HandleDisconnect(c *hub.Client) {
	u, wasAuthenticated := d.store.Disconnect(c.ID())
	if !wasAuthenticated {
		return
	}
	if !d.store.IsOnline(u.ID) {
		d.hub.BroadcastAll("[SYSTEM] " + u.Username + " disconnected")
	}
}

// route validates and executes a single command. Errors are reported to the
// sender only; the mapping to [ERROR] lines happens in the caller.
func (d *Dispatcher) route(c *hub.Client, name, line string) error {
	if name == "/login" {
		return d.handleLogin(c, line)
	}
	if !c.IsAuthenticated() {
		return errs.ErrAuthRequired
	}

	switch name {
	case "/create":
		return d.handleCreate(c, line)
	case "/assign":
		return d.handleAssign(c, line)
	case "/status":
		return d.handleStatus(c, line)
	case "/priority":
		return d.handlePriority(c, line)
	case "/comment":
		return d.handleComment(c, line)
	case "/list":
		return d.handleList(c)
	case "/mytasks":
		return d.handleMyTasks(c)
	case "/chat":
		return d.handleChat(c, line)
	case "/pm":
		return d.handlePM(c, line)
	case "/online":
		return d.handleOnline(c)
	case "/dashboard":
		c.Send("[DASHBOARD]\n" + d.store.Dashboard())
		return nil
	case "/recommend":
		return d.handleRecommend(c)
	case "/overdue":
		return d.handleOverdue(c)
	case "/help":
		c.Send(helpText)
		return nil
	default:
		return fmt.Errorf("unknown command %s: %w", name, errs.ErrMalformedCommand)
	}
}

func (d *Dispatcher) handleLogin(c *hub.Client, line string) error {
	parts := strings.Fields(line)
	if len(parts) < 3 {
		return fmt.Errorf("usage: /login <username> <password>: %w", errs.ErrMalformedCommand)
	}

	u, err := d.store.Login(c.ID(), parts[1], parts[2])
	if err != nil {
		return err
	}
	d.hub.Bind(c, u)

	c.Send("[SYSTEM] Welcome " + u.Username + "! You are now logged in.")
	d.hub.BroadcastAll("[SYSTEM] " + u.Username + " is now online")
	return nil
}

func (d *Dispatcher) handleCreate(c *hub.Client, line string) error {
	payload := strings.TrimSpace(strings.TrimPrefix(line, "/create"))
	if payload == "" {
		return fmt.Errorf("usage: /create <title> | <description> [deadline:<days>]: %w", errs.ErrMalformedCommand)
	}

	title, description, deadlineDays, err := parseCreateArgs(payload)
	if err != nil {
		return err
	}

	u := c.User()
	t, err := d.store.CreateTask(u.ID, u.Username, title, description, deadlineDays)
	if err != nil {
		return err
	}

	d.hub.BroadcastAll(fmt.Sprintf("[TASK] Created task %s: %s (due %s)",
		t.Key(), t.Title, t.Deadline.Format("2006-01-02")))
	return nil
}

func (d *Dispatcher) handleAssign(c *hub.Client, line string) error {
	if !c.User().Role.CanAssignTasks() {
		return fmt.Errorf("only project managers and admins can assign tasks: %w", errs.ErrPermissionDenied)
	}

	taskID, assigneeID, err := twoIntArgs(line, "/assign <taskId> <assigneeId>")
	if err != nil {
		return err
	}

	u := c.User()
	t, err := d.store.AssignTask(u.ID, u.Username, taskID, assigneeID)
	if err != nil {
		return err
	}

	d.hub.BroadcastAll(fmt.Sprintf("[TASK] Task %d assigned to user %d", t.ID, t.AssigneeID))
	return nil
}

func (d *Dispatcher) handleStatus(c *hub.Client, line string) error {
	parts := strings.Fields(line)
	if len(parts) != 3 {
		return fmt.Errorf("usage: /status <taskId> <TODO|PROGRESS|REVIEW|DONE|BLOCKED>: %w", errs.ErrMalformedCommand)
	}
	taskID, err := strconv.Atoi(parts[1])
	if err != nil {
		return fmt.Errorf("task id must be a number: %w", errs.ErrMalformedCommand)
	}
	status, ok := task.ParseStatus(parts[2])
	if !ok {
		return fmt.Errorf("unknown status %s: %w", parts[2], errs.ErrMalformedCommand)
	}

	u := c.User()
	t, err := d.store.UpdateStatus(u.ID, u.Username, taskID, status)
	if err != nil {
		return err
	}

	d.hub.BroadcastAll(fmt.Sprintf("[TASK] Task %d status updated to %s", t.ID, t.Status))
	return nil
}

func (d *Dispatcher) handlePriority(c *hub.Client, line string) error {
	parts := strings.Fields(line)
	if len(parts) != 3 {
		return fmt.Errorf("usage: /priority <taskId> <LOW|MEDIUM|HIGH|CRITICAL>: %w", errs.ErrMalformedCommand)
	}
	taskID, err := strconv.Atoi(parts[1])
	if err != nil {
		return fmt.Errorf("task id must be a number: %w", errs.ErrMalformedCommand)
	}
	priority, ok := task.ParsePriority(parts[2])
	if !ok {
		return fmt.Errorf("unknown priority %s: %w", parts[2], errs.ErrMalformedCommand)
	}

	u := c.User()
	t, err := d.store.UpdatePriority(u.ID, u.Username, taskID, priority)
	if err != nil {
		return err
	}

	d.hub.BroadcastAll(fmt.Sprintf("[TASK] Task %d priority updated to %s", t.ID, t.Priority))
	return nil
}

func (d *Dispatcher) handleComment(c *hub.Client, line string) error {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 3 || strings.TrimSpace(parts[2]) == "" {
		return fmt.Errorf("usage: /comment <taskId> <text>: %w", errs.ErrMalformedCommand)
	}
	taskID, err := strconv.Atoi(parts[1])
	if err != nil {
		return fmt.Errorf("task id must be a number: %w", errs.ErrMalformedCommand)
	}
	text := strings.TrimSpace(parts[2])

	u := c.User()
	t, err := d.store.CommentTask(u.ID, u.Username, taskID, text)
	if err != nil {
		return err
	}

	d.hub.BroadcastAll(fmt.Sprintf("[TASK] %s commented on task %d: %s", u.Username, t.ID, text))
	return nil
}

func (d *Dispatcher) handleList(c *hub.Client) error {
	tasks := d.store.Tasks()
	if len(tasks) == 0 {
		c.Send("[TASKS] No tasks yet")
		return nil
	}

	lines := make([]string, 0, len(tasks)+1)
	lines = append(lines, "[TASKS] Current Tasks:")
	for i := range tasks {
		lines = append(lines, tasks[i].String())
	}
	c.Send(strings.Join(lines, "\n"))
	return nil
}

func (d *Dispatcher) handleMyTasks(c *hub.Client) error {
	tasks := d.store.TasksByAssignee(c.User().ID)
	if len(tasks) == 0 {
		c.Send("[TASKS] No tasks assigned to you")
		return nil
	}

	lines := make([]string, 0, len(tasks)+1)
	lines = append(lines, "[TASKS] Your Tasks:")
	for i := range tasks {
		lines = append(lines, tasks[i].String())
	}
	c.Send(strings.Join(lines, "\n"))
	return nil
}

func (d *Dispatcher) handleChat(c *hub.Client, line string) error {
	text := strings.TrimSpace(strings.TrimPrefix(line, "/chat"))
	if text == "" {
		return fmt.Errorf("usage: /chat <message>: %w", errs.ErrMalformedCommand)
	}

	u := c.User()
	d.store.PostChat(u.ID, u.Username, text)
	d.hub.BroadcastAll("[" + u.Username + "] " + text)
	return nil
}

func (d *Dispatcher) handlePM(c *hub.Client, line string) error {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 3 || strings.TrimSpace(parts[2]) == "" {
		return fmt.Errorf("usage: /pm <username-or-id> <message>: %w", errs.ErrMalformedCommand)
	}
	target := parts[1]
	text := strings.TrimSpace(parts[2])

	u := c.User()
	_, to, err := d.store.PostPrivate(u.ID, u.Username, target, text)
	if err != nil {
		return err
	}

	// Private messages go to the target's connections only, never broadcast.
	d.hub.SendToUser(to.ID, "[PM from "+u.Username+"] "+text)
	c.Send("[PM sent to " + to.Username + "]")
	return nil
}

func (d *Dispatcher) handleOnline(c *hub.Client) error {
	online := d.store.OnlineUsers()
	lines := make([]string, 0, len(online)+1)
	lines = append(lines, "[ONLINE] Online users:")
	for _, p := range online {
		lines = append(lines, fmt.Sprintf("  - %s (%s)", p.Username, p.Role))
	}
	c.Send(strings.Join(lines, "\n"))
	return nil
}

func (d *Dispatcher) handleRecommend(c *hub.Client) error {
	u, load, ok := d.store.RecommendAssignee()
	if !ok {
		c.Send("[RECOMMEND] No suitable assignee available")
		return nil
	}
	c.Send(fmt.Sprintf("[RECOMMEND] Suggested assignee: %s (user %d, %d active tasks)",
		u.Username, u.ID, load))
	return nil
}

func (d *Dispatcher) handleOverdue(c *hub.Client) error {
	tasks := d.store.OverdueTasks()
	if len(tasks) == 0 {
		c.Send("[OVERDUE] No overdue tasks")
		return nil
	}

	lines := make([]string, 0, len(tasks)+1)
	lines = append(lines, fmt.Sprintf("[OVERDUE] Overdue tasks (%d):", len(tasks)))
	for i := range tasks {
		lines = append(lines, tasks[i].String())
	}
	c.Send(strings.Join(lines, "\n"))
	return nil
}

// parseCreateArgs splits "<title> | <description> [deadline:<days>]".
func parseCreateArgs(payload string) (title, description string, deadlineDays int, err error) {
	title = payload
	if idx := strings.Index(payload, " | "); idx >= 0 {
		title = payload[:idx]
		description = strings.TrimSpace(payload[idx+3:])
	}

	// An optional trailing deadline:<days> token overrides the default.
	tail := &title
	if description != "" {
		tail = &description
	}
	fields := strings.Fields(*tail)
	if len(fields) > 0 {
		if days, ok := strings.CutPrefix(fields[len(fields)-1], "deadline:"); ok {
			n, convErr := strconv.Atoi(days)
			if convErr != nil || n <= 0 {
				return "", "", 0, fmt.Errorf("deadline must be a positive number of days: %w", errs.ErrMalformedCommand)
			}
			deadlineDays = n
			*tail = strings.TrimSpace(strings.Join(fields[:len(fields)-1], " "))
		}
	}

	if strings.TrimSpace(title) == "" {
		return "", "", 0, fmt.Errorf("task title cannot be empty: %w", errs.ErrValidation)
	}
	return title, description, deadlineDays, nil
}

// twoIntArgs parses commands of the shape "<cmd> <int> <int>".
func twoIntArgs(line, usage string) (int, int, error) {
	parts := strings.Fields(line)
	if len(parts) != 3 {
		return 0, 0, fmt.Errorf("usage: %s: %w", usage, errs.ErrMalformedCommand)
	}
	a, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("arguments must be numbers: %w", errs.ErrMalformedCommand)
	}
	b, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, fmt.Errorf("arguments must be numbers: %w", errs.ErrMalformedCommand)
	}
	return a, b, nil
}

// errorLine maps an error to the [ERROR] line sent to the offending client.
func errorLine(err error) string {
	switch {
	case errors.Is(err, errs.ErrAuthRequired):
		return "[ERROR] Please login first with /login <username> <password>"
	case errors.Is(err, errs.ErrInvalidCredentials):
		return "[ERROR] Invalid credentials"
	case errors.Is(err, errs.ErrPermissionDenied):
		return "[ERROR] Permission denied: " + rootMessage(err)
	case errors.Is(err, errs.ErrNotFound):
		return "[ERROR] Not found: " + rootMessage(err)
	case errors.Is(err, errs.ErrUnknownUser):
		return "[ERROR] Unknown user: " + rootMessage(err)
	case errors.Is(err, errs.ErrMalformedCommand), errors.Is(err, errs.ErrValidation):
		return "[ERROR] " + rootMessage(err)
	default:
		return "[ERROR] Internal server error, please try again"
	}
}

// rootMessage strips the trailing sentinel text from a wrapped error.
func rootMessage(err error) string {
	msg := err.Error()
	if idx := strings.LastIndex(msg, ": "); idx >= 0 {
		return msg[:idx]
	}
	return msg
}

const helpText = `[HELP] Available commands:
  /login <username> <password>            authenticate
  /create <title> | <desc> [deadline:<d>] create a task (default deadline 7 days)
  /assign <taskId> <assigneeId>           assign a task (PM/Admin only)
  /status <taskId> <TODO|PROGRESS|REVIEW|DONE|BLOCKED>
  /priority <taskId> <LOW|MEDIUM|HIGH|CRITICAL>
  /comment <taskId> <text>                comment on a task
  /list                                   list all tasks
  /mytasks                                list your tasks
  /chat <message>                         send a message to everyone
  /pm <username-or-id> <message>          send a private message
  /online                                 list online users
  /dashboard                              project dashboard
  /recommend                              suggest the least-loaded developer
  /overdue                                list overdue tasks
  /help                                   this help`
