package taskdecksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Taskdeck HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	// UserID is sent as the legacy X-User-Id header when no bearer
	// token is set. The server must allow legacy auth for it to work.
	UserID     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Project represents the API project model.
type Project struct {
	ID          string `json:"id"`
	CreatorID   string `json:"creator_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// Member represents a project membership.
type Member struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	JoinedAt  string `json:"joined_at"`
}

// Task represents the API task model.
type Task struct {
	ID             string  `json:"id"`
	UseCaseID      string  `json:"usecase_id"`
	CreatorID      string  `json:"creator_id"`
	Title          string  `json:"title"`
	Type           string  `json:"type"`
	State          string  `json:"state"`
	AssigneeID     *string `json:"assignee_id,omitempty"`
	DueDate        *string `json:"due_date,omitempty"`
	StartedAt      *string `json:"started_at,omitempty"`
	CompletedAt    *string `json:"completed_at,omitempty"`
	CompletionNote string  `json:"completion_note,omitempty"`
}

// Relation represents a typed link between two tasks.
type Relation struct {
	ID           string `json:"id"`
	SourceTaskID string `json:"source_task_id"`
	TargetTaskID string `json:"target_task_id"`
	RelationType string `json:"relation_type"`
	CreatedAt    string `json:"created_at"`
}

// Event represents a log entry. Payload is the raw JSON the event was
// recorded with.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id"`
	EntityID   string `json:"entity_id"`
	EntityKind string `json:"entity_kind"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateProject creates a project owned by the caller.
func (c *Client) CreateProject(ctx context.Context, title, description string) (Project, error) {
	body := map[string]any{"title": title}
	if description != "" {
		body["description"] = description
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "projects", body, &resp)
	return resp, err
}

// ListProjects returns the projects visible to the caller.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var resp []Project
	err := c.do(ctx, http.MethodGet, "projects", nil, &resp)
	return resp, err
}

// AddMember grants a role in a project.
func (c *Client) AddMember(ctx context.Context, projectID, userID, role string) (Member, error) {
	body := map[string]any{"user_id": userID, "role": role}
	var resp Member
	endpoint := fmt.Sprintf("projects/%s/members", url.PathEscape(projectID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// CreateTask creates a task under a use case.
func (c *Client) CreateTask(ctx context.Context, usecaseID, title, taskType string) (Task, error) {
	body := map[string]any{
		"title": title,
		"type":  taskType,
	}
	var resp Task
	endpoint := fmt.Sprintf("usecases/%s/tasks", url.PathEscape(usecaseID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// GetTask fetches a task by id.
func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// AssignTask sets or clears a task's assignee.
func (c *Client) AssignTask(ctx context.Context, taskID, assigneeID string) (Task, error) {
	body := map[string]any{"assignee_id": assigneeID}
	var resp Task
	endpoint := fmt.Sprintf("tasks/%s/assign", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// AssignAndStart assigns a task and starts it in one call.
func (c *Client) AssignAndStart(ctx context.Context, taskID, assigneeID string) (Task, error) {
	body := map[string]any{"assignee_id": assigneeID}
	var resp Task
	endpoint := fmt.Sprintf("tasks/%s/assign-and-start", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// ChangeTaskState moves a task through its workflow.
func (c *Client) ChangeTaskState(ctx context.Context, taskID, state, completionNote string) (Task, error) {
	body := map[string]any{"state": state}
	if completionNote != "" {
		body["completion_note"] = completionNote
	}
	var resp Task
	endpoint := fmt.Sprintf("tasks/%s/state", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// CreateRelation links a task to another.
func (c *Client) CreateRelation(ctx context.Context, sourceTaskID, targetTaskID, relationType string) (Relation, error) {
	body := map[string]any{
		"target_task_id": targetTaskID,
		"relation_type":  relationType,
	}
	var resp Relation
	endpoint := fmt.Sprintf("tasks/%s/relations", url.PathEscape(sourceTaskID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// ListRelations returns a task's outgoing and incoming relations.
func (c *Client) ListRelations(ctx context.Context, taskID string) ([]Relation, error) {
	var resp []Relation
	endpoint := fmt.Sprintf("tasks/%s/relations", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// DeleteRelation removes a relation. Deleting an already removed
// relation is not an error.
func (c *Client) DeleteRelation(ctx context.Context, taskID, relationID string) error {
	endpoint := fmt.Sprintf("tasks/%s/relations/%s", url.PathEscape(taskID), url.PathEscape(relationID))
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// Events returns recent project events, newest first.
func (c *Client) Events(ctx context.Context, projectID string, limit int) ([]Event, error) {
	endpoint := fmt.Sprintf("projects/%s/events", url.PathEscape(projectID))
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.UserID != "":
		req.Header.Set("X-User-Id", c.UserID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base
}
