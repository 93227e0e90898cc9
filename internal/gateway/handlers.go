package gateway

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lllypuk/teamboard/internal/domain/chat"
	"github.com/lllypuk/teamboard/internal/domain/errs"
	"github.com/lllypuk/teamboard/internal/domain/task"
)

// LoginRequest is the request body for POST /api/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the issued access token.
type LoginResponse struct {
	Token    string `json:"token"`
	UserID   int    `json:"userId"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// CreateTaskRequest is the request body for POST /api/tasks.
type CreateTaskRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	DeadlineDays int    `json:"deadlineDays"`
}

// AssignTaskRequest is the request body for PUT /api/tasks/:id/assign.
type AssignTaskRequest struct {
	AssigneeID int `json:"assigneeId"`
}

// ChangeStatusRequest is the request body for PUT /api/tasks/:id/status.
type ChangeStatusRequest struct {
	Status string `json:"status"`
}

// ChangePriorityRequest is the request body for PUT /api/tasks/:id/priority.
type ChangePriorityRequest struct {
	Priority string `json:"priority"`
}

// AddCommentRequest is the request body for POST /api/tasks/:id/comments.
type AddCommentRequest struct {
	Text string `json:"text"`
}

// SendMessageRequest is the request body for POST /api/chat.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// SendPrivateRequest is the request body for POST /api/chat/private. The
// target may be given as a username or a numeric user id.
type SendPrivateRequest struct {
	Target       string `json:"target"`
	TargetUserID int    `json:"targetUserId"`
	Content      string `json:"content"`
}

// TaskResponse represents a task in API responses.
type TaskResponse struct {
	ID                int      `json:"id"`
	Key               string   `json:"key"`
	Title             string   `json:"title"`
	Description       string   `json:"description,omitempty"`
	Status            string   `json:"status"`
	Priority          string   `json:"priority"`
	AssigneeID        int      `json:"assigneeId"`
	ReporterID        int      `json:"reporterId"`
	ProjectKey        string   `json:"projectKey"`
	Deadline          string   `json:"deadline"`
	IsOverdue         bool     `json:"isOverdue"`
	DaysUntilDeadline int      `json:"daysUntilDeadline"`
	Comments          []string `json:"comments,omitempty"`
}

// UserResponse represents a user in API responses.
type UserResponse struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Online   bool   `json:"online"`
}

// MessageResponse represents a chat message in API responses.
type MessageResponse struct {
	ID         int    `json:"id"`
	Type       string `json:"type"`
	SenderID   int    `json:"senderId"`
	SenderName string `json:"senderName"`
	Content    string `json:"content"`
	Timestamp  string `json:"timestamp"`
}

func (g *Gateway) taskToResponse(t task.Task) TaskResponse {
	now := time.Now()
	return TaskResponse{
		ID:                t.ID,
		Key:               t.Key(),
		Title:             t.Title,
		Description:       t.Description,
		Status:            t.Status.String(),
		Priority:          t.Priority.String(),
		AssigneeID:        t.AssigneeID,
		ReporterID:        t.ReporterID,
		ProjectKey:        t.ProjectKey,
		Deadline:          t.Deadline.Format(time.RFC3339),
		IsOverdue:         t.IsOverdue(now),
		DaysUntilDeadline: t.DaysUntilDeadline(now),
		Comments:          t.Comments,
	}
}

func messageToResponse(m chat.Message) MessageResponse {
	return MessageResponse{
		ID:         m.ID,
		Type:       m.Type.String(),
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Content:    m.Content,
		Timestamp:  m.SentAt.Format(time.RFC3339),
	}
}

func (g *Gateway) handleLogin(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return RespondErrorWithCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
	}

	u, err := g.store.Authenticate(req.Username, req.Password)
	if err != nil {
		return RespondError(c, err)
	}

	token, err := g.tokens.Issue(u)
	if err != nil {
		g.logger.Error("token issue failed", "error", err)
		return RespondErrorWithCode(c, http.StatusInternalServerError, "INTERNAL_ERROR", "could not issue token")
	}

	return RespondOK(c, LoginResponse{
		Token:    token,
		UserID:   u.ID,
		Username: u.Username,
		Role:     u.Role.String(),
	})
}

func (g *Gateway) handleLogout(c echo.Context) error {
	tokenString, err := bearerToken(c)
	if err != nil {
		return RespondError(c, err)
	}
	claims, err := g.tokens.Verify(tokenString)
	if err != nil {
		return RespondError(c, err)
	}
	g.tokens.Revoke(claims)
	return RespondOK(c, map[string]string{"status": "logged out"})
}

func (g *Gateway) listTasks(c echo.Context) error {
	var tasks []task.Task
	switch {
	case c.QueryParam("assignee") != "":
		assigneeID, err := strconv.Atoi(c.QueryParam("assignee"))
		if err != nil {
			return RespondErrorWithCode(c, http.StatusBadRequest, "INVALID_REQUEST", "assignee must be a number")
		}
		tasks = g.store.TasksByAssignee(assigneeID)
	case c.QueryParam("status") != "":
		status, ok := task.ParseStatus(c.QueryParam("status"))
		if !ok {
			return RespondErrorWithCode(c, http.StatusBadRequest, "INVALID_REQUEST", "unknown status")
		}
		tasks = g.store.TasksByStatus(status)
	default:
		tasks = g.store.Tasks()
	}

	resp := make([]TaskResponse, 0, len(tasks))
	for i := range tasks {
		resp = append(resp, g.taskToResponse(tasks[i]))
	}
	return RespondOK(c, resp)
}

func (g *Gateway) createTask(c echo.Context) error {
	u, ok := currentUser(c)
	if !ok {
		return RespondError(c, errs.ErrAuthRequired)
	}

	var req CreateTaskRequest
	if err := c.Bind(&req); err != nil {
		return RespondErrorWithCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
	}

	t, err := g.store.CreateTask(u.ID, u.Username, req.Title, req.Description, req.DeadlineDays)
	if err != nil {
		return RespondError(c, err)
	}

	g.hub.BroadcastAll("[TASK] Created task " + t.Key() + ": " + t.Title)
	return RespondCreated(c, g.taskToResponse(t))
}

func (g *Gateway) getTask(c echo.Context) error {
	id, err := taskIDParam(c)
	if err != nil {
		return err
	}
	t, err := g.store.TaskByID(id)
	if err != nil {
		return RespondError(c, err)
	}
	return RespondOK(c, g.taskToResponse(t))
}

func (g *Gateway) assignTask(c echo.Context) error {
	u, ok := currentUser(c)
	if !ok {
		return RespondError(c, errs.ErrAuthRequired)
	}
	if !u.Role.CanAssignTasks() {
		return RespondErrorWithCode(c, http.StatusForbidden, "FORBIDDEN", "only project managers and admins can assign tasks")
	}

	id, err := taskIDParam(c)
	if err != nil {
		return err
	}

	var req AssignTaskRequest
	if err := c.Bind(&req); err != nil {
		return RespondErrorWithCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
	}

	t, err := g.store.AssignTask(u.ID, u.Username, id, req.AssigneeID)
	if err != nil {
		return RespondError(c, err)
	}

	g.hub.BroadcastAll("[TASK] Task " + strconv.Itoa(t.ID) + " assigned to user " + strconv.Itoa(t.AssigneeID))
	return RespondOK(c, g.taskToResponse(t))
}

func (g *Gateway) changeStatus(c echo.Context) error {
	u, ok := currentUser(c)
	if !ok {
		return RespondError(c, errs.ErrAuthRequired)
	}

	id, err := taskIDParam(c)
	if err != nil {
		return err
	}

	var req ChangeStatusRequest
	if err := c.Bind(&req); err != nil {
		return RespondErrorWithCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
	}
	status, valid := task.ParseStatus(req.Status)
	if !valid {
		return RespondErrorWithCode(c, http.StatusBadRequest, "INVALID_REQUEST", "unknown status")
	}

	t, err := g.store.UpdateStatus(u.ID, u.Username, id, status)
	if err != nil {
		return RespondError(c, err)
	}

	g.hub.BroadcastAll("[TASK] Task " + strconv.Itoa(t.ID) + " status updated to " + t.Status.String())
	return RespondOK(c, g.taskToResponse(t))
}

func (g *Gateway) changePriority(c echo.Context) error {
	u, ok := currentUser(c)
	if !ok {
		return RespondError(c, errs.ErrAuthRequired)
	}

	id, err := taskIDParam(c)
	if err != nil {
		return err
	}

	var req ChangePriorityRequest
	if err := c.Bind(&req); err != nil {
		return RespondErrorWithCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
	}
	priority, valid := task.ParsePriority(req.Priority)
	if !valid {
		return RespondErrorWithCode(c, http.StatusBadRequest, "INVALID_REQUEST", "unknown priority")
	}

	t, err := g.store.UpdatePriority(u.ID, u.Username, id, priority)
	if err != nil {
		return RespondError(c, err)
	}

	g.hub.BroadcastAll("[TASK] Task " + strconv.Itoa(t.ID) + " priority updated to " + t.Priority.String())
	return RespondOK(c, g.taskToResponse(t))
}

func (g *Gateway) addComment(c echo.Context) error {
	u, ok := currentUser(c)
	if !ok {
		return RespondError(c, errs.ErrAuthRequired)
	}

	id, err := taskIDParam(c)
	if err != nil {
		return err
	}

	var req AddCommentRequest
	if err := c.Bind(&req); err != nil {
		return RespondErrorWithCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
	}
	if req.Text == "" {
		return RespondErrorWithCode(c, http.StatusBadRequest, "VALIDATION_ERROR", "comment text is required")
	}

	t, err := g.store.CommentTask(u.ID, u.Username, id, req.Text)
	if err != nil {
		return RespondError(c, err)
	}

	g.hub.BroadcastAll("[TASK] " + u.Username + " commented on task " + strconv.Itoa(t.ID) + ": " + req.Text)
	return RespondCreated(c, g.taskToResponse(t))
}

func (g *Gateway) getComments(c echo.Context) error {
	id, err := taskIDParam(c)
	if err != nil {
		return err
	}
	t, err := g.store.TaskByID(id)
	if err != nil {
		return RespondError(c, err)
	}
	comments := t.Comments
	if comments == nil {
		comments = []string{}
	}
	return RespondOK(c, comments)
}

func (g *Gateway) listOverdue(c echo.Context) error {
	tasks := g.store.OverdueTasks()
	resp := make([]TaskResponse, 0, len(tasks))
	for i := range tasks {
		resp = append(resp, g.taskToResponse(tasks[i]))
	}
	return RespondOK(c, resp)
}

func (g *Gateway) listDueSoon(c echo.Context) error {
	days := 3
	if raw := c.QueryParam("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return RespondErrorWithCode(c, http.StatusBadRequest, "INVALID_REQUEST", "days must be a non-negative number")
		}
		days = n
	}

	tasks := g.store.DueSoonTasks(days)
	resp := make([]TaskResponse, 0, len(tasks))
	for i := range tasks {
		resp = append(resp, g.taskToResponse(tasks[i]))
	}
	return RespondOK(c, resp)
}

func (g *Gateway) listUsers(c echo.Context) error {
	users := g.store.Users()
	resp := make([]UserResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, UserResponse{
			ID:       u.ID,
			Username: u.Username,
			Email:    u.Email,
			Role:     u.Role.String(),
			Online:   g.store.IsOnline(u.ID),
		})
	}
	return RespondOK(c, resp)
}

func (g *Gateway) listOnline(c echo.Context) error {
	online := g.store.OnlineUsers()
	resp := make([]UserResponse, 0, len(online))
	for _, p := range online {
		resp = append(resp, UserResponse{
			ID:       p.UserID,
			Username: p.Username,
			Role:     p.Role.String(),
			Online:   true,
		})
	}
	return RespondOK(c, resp)
}

func (g *Gateway) listMessages(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return RespondErrorWithCode(c, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive number")
		}
		limit = n
	}

	messages := g.store.RecentMessages(limit)
	resp := make([]MessageResponse, 0, len(messages))
	for i := range messages {
		resp = append(resp, messageToResponse(messages[i]))
	}
	return RespondOK(c, resp)
}

func (g *Gateway) postChat(c echo.Context) error {
	u, ok := currentUser(c)
	if !ok {
		return RespondError(c, errs.ErrAuthRequired)
	}

	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return RespondErrorWithCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
	}
	if strings.TrimSpace(req.Content) == "" {
		return RespondErrorWithCode(c, http.StatusBadRequest, "VALIDATION_ERROR", "content is required")
	}

	m := g.store.PostChat(u.ID, u.Username, req.Content)
	g.hub.BroadcastAll("[" + u.Username + "] " + req.Content)
	return RespondCreated(c, messageToResponse(m))
}

func (g *Gateway) postPrivate(c echo.Context) error {
	u, ok := currentUser(c)
	if !ok {
		return RespondError(c, errs.ErrAuthRequired)
	}

	var req SendPrivateRequest
	if err := c.Bind(&req); err != nil {
		return RespondErrorWithCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
	}
	if strings.TrimSpace(req.Content) == "" {
		return RespondErrorWithCode(c, http.StatusBadRequest, "VALIDATION_ERROR", "content is required")
	}
	target := req.Target
	if target == "" && req.TargetUserID != 0 {
		target = strconv.Itoa(req.TargetUserID)
	}
	if target == "" {
		return RespondErrorWithCode(c, http.StatusBadRequest, "VALIDATION_ERROR", "target is required")
	}

	m, to, err := g.store.PostPrivate(u.ID, u.Username, target, req.Content)
	if err != nil {
		return RespondError(c, err)
	}

	// Same fan-out as the command layer: target's connections only.
	g.hub.SendToUser(to.ID, "[PM from "+u.Username+"] "+req.Content)
	return RespondCreated(c, messageToResponse(m))
}

func (g *Gateway) getPrivateConversation(c echo.Context) error {
	u, ok := currentUser(c)
	if !ok {
		return RespondError(c, errs.ErrAuthRequired)
	}
	otherID, err := strconv.Atoi(c.Param("userId"))
	if err != nil {
		return RespondErrorWithCode(c, http.StatusBadRequest, "INVALID_REQUEST", "userId must be a number")
	}

	messages := g.store.PrivateConversation(u.ID, otherID)
	resp := make([]MessageResponse, 0, len(messages))
	for i := range messages {
		resp = append(resp, messageToResponse(messages[i]))
	}
	return RespondOK(c, resp)
}

func (g *Gateway) getDashboard(c echo.Context) error {
	counts := g.store.StatusCounts()
	byStatus := make(map[string]int, len(counts))
	for status, n := range counts {
		byStatus[status.String()] = n
	}

	return RespondOK(c, map[string]any{
		"text":     g.store.Dashboard(),
		"byStatus": byStatus,
	})
}

func (g *Gateway) getRecommendation(c echo.Context) error {
	u, load, ok := g.store.RecommendAssignee()
	if !ok {
		return RespondOK(c, map[string]any{"available": false})
	}
	return RespondOK(c, map[string]any{
		"available":   true,
		"userId":      u.ID,
		"username":    u.Username,
		"activeTasks": load,
	})
}

func taskIDParam(c echo.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return 0, RespondErrorWithCode(c, http.StatusBadRequest, "INVALID_REQUEST", "task id must be a number")
	}
	return id, nil
}
