// Package googletasks implements service.Backend using the Google Tasks API.
package googletasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	tasks "google.golang.org/api/tasks/v1"

	"tasksync/internal/config"
	"tasksync/internal/service"
)

const (
	// ServiceName keys the shadow rows of this backend.
	ServiceName = "googletasks"

	// PageSize is the number of items per page.
	PageSize = 100

	// DefaultTimeout bounds every API call.
	DefaultTimeout = 10 * time.Second

	statusCompleted   = "completed"
	statusNeedsAction = "needsAction"
)

// Client implements service.Backend using Google Tasks API.
type Client struct {
	svc     *tasks.Service
	account string
	timeout time.Duration
	logger  *slog.Logger

	// configErr is set when credentials could not be loaded. It is reported
	// by Configured so that no pass starts without them.
	configErr error
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithAccount sets the account name used to key shadow rows.
func WithAccount(account string) Option {
	return func(c *Client) {
		if account != "" {
			c.account = account
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func newClient(opts []Option) *Client {
	c := &Client{
		account: "default",
		timeout: DefaultTimeout,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// New creates a Google Tasks client from oauth_client.json and token.json
// in the config directory. Missing or invalid credentials do not fail here;
// Configured reports them.
func New(ctx context.Context, cfg *config.Config, opts ...Option) *Client {
	c := newClient(opts)

	oauthConfig, err := LoadOAuthConfig(cfg.OAuthClientPath())
	if err != nil {
		c.configErr = err
		return c
	}
	token, err := LoadToken(cfg.TokenPath())
	if err != nil {
		c.configErr = fmt.Errorf("%w (run: tasksync login)", err)
		return c
	}

	// Token source that auto-refreshes
	httpClient := oauth2.NewClient(ctx, oauthConfig.TokenSource(ctx, token))

	svc, err := tasks.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		c.configErr = fmt.Errorf("failed to create tasks service: %w", err)
		return c
	}
	c.svc = svc
	return c
}

// NewWithHTTPClient creates a client with a custom HTTP client and, when
// endpoint is non-empty, a custom API endpoint (for testing).
func NewWithHTTPClient(ctx context.Context, httpClient *http.Client, endpoint string, opts ...Option) (*Client, error) {
	clientOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(endpoint))
	}
	svc, err := tasks.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, err
	}
	c := newClient(opts)
	c.svc = svc
	return c, nil
}

// Service implements service.Backend.
func (c *Client) Service() string { return ServiceName }

// Account implements service.Backend.
func (c *Client) Account() string { return c.account }

// Configured implements service.Backend. It makes no network call.
func (c *Client) Configured(ctx context.Context) error {
	if c.configErr != nil {
		return service.NewError(service.Configuration, "load credentials", c.configErr)
	}
	if c.svc == nil {
		return service.NewError(service.Configuration, "load credentials", errors.New("client not initialized"))
	}
	return nil
}

// ListAllLists implements service.Backend.
func (c *Client) ListAllLists(ctx context.Context) ([]service.RemoteList, error) {
	const op = "list lists"
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var result []service.RemoteList
	err := c.svc.Tasklists.List().MaxResults(PageSize).Pages(ctx, func(resp *tasks.TaskLists) error {
		for _, list := range resp.Items {
			r, err := fromTaskList(list)
			if err != nil {
				return err
			}
			result = append(result, r)
		}
		return nil
	})
	if err != nil {
		return nil, wrapError(op, err)
	}

	c.logger.Debug("fetched lists", "count", len(result))
	return result, nil
}

// ListChangedTasks implements service.Backend. The full list is fetched,
// including deleted, hidden and completed tasks.
func (c *Client) ListChangedTasks(ctx context.Context, list service.RemoteList) ([]service.RemoteTask, error) {
	const op = "list tasks"
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var result []service.RemoteTask
	err := c.svc.Tasks.List(list.RemoteID).
		MaxResults(PageSize).
		ShowCompleted(true).
		ShowDeleted(true).
		ShowHidden(true).
		Pages(ctx, func(resp *tasks.Tasks) error {
			for _, task := range resp.Items {
				r, err := fromTask(task)
				if err != nil {
					return err
				}
				r.ListRemoteID = list.RemoteID
				result = append(result, r)
			}
			return nil
		})
	if err != nil {
		return nil, wrapError(op, err)
	}

	c.logger.Debug("fetched tasks", "list", list.RemoteID, "count", len(result))
	return result, nil
}

// CreateList implements service.Backend.
func (c *Client) CreateList(ctx context.Context, local service.LocalList) (service.RemoteList, error) {
	const op = "create list"
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	list, err := c.svc.Tasklists.Insert(&tasks.TaskList{Title: local.Title}).Context(ctx).Do()
	if err != nil {
		return service.RemoteList{}, wrapError(op, err)
	}
	r, err := fromTaskList(list)
	return r, wrapError(op, err)
}

// UpdateList implements service.Backend.
func (c *Client) UpdateList(ctx context.Context, list service.RemoteList) (service.RemoteList, error) {
	const op = "update list"
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	updated, err := c.svc.Tasklists.Update(list.RemoteID, &tasks.TaskList{
		Id:    list.RemoteID,
		Title: list.Title,
	}).Context(ctx).Do()
	if err != nil {
		return service.RemoteList{}, wrapError(op, err)
	}
	r, err := fromTaskList(updated)
	return r, wrapError(op, err)
}

// DeleteList implements service.Backend.
func (c *Client) DeleteList(ctx context.Context, list service.RemoteList) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.svc.Tasklists.Delete(list.RemoteID).Context(ctx).Do()
	return wrapError("delete list", err)
}

// CreateTask implements service.Backend.
func (c *Client) CreateTask(ctx context.Context, list service.RemoteList, local service.LocalTask) (service.RemoteTask, error) {
	const op = "create task"
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := &tasks.Task{
		Title:  local.Title,
		Notes:  local.Note,
		Status: statusNeedsAction,
	}
	if local.Completed != nil {
		body.Status = statusCompleted
	}
	if local.Due != nil {
		body.Due = dueToAPI(local.Due.Format(service.DateLayout))
	}

	task, err := c.svc.Tasks.Insert(list.RemoteID, body).Context(ctx).Do()
	if err != nil {
		return service.RemoteTask{}, wrapError(op, err)
	}
	r, err := fromTask(task)
	r.ListRemoteID = list.RemoteID
	return r, wrapError(op, err)
}

// UpdateTask implements service.Backend. The whole resource is replaced so
// that a cleared due date or completion reaches the service.
func (c *Client) UpdateTask(ctx context.Context, list service.RemoteList, task service.RemoteTask) (service.RemoteTask, error) {
	const op = "update task"
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := &tasks.Task{
		Id:     task.RemoteID,
		Title:  task.Title,
		Notes:  task.Notes,
		Status: statusNeedsAction,
	}
	if task.Completed {
		body.Status = statusCompleted
	} else {
		body.NullFields = append(body.NullFields, "Completed")
	}
	if task.Due != "" {
		body.Due = dueToAPI(task.Due)
	} else {
		body.NullFields = append(body.NullFields, "Due")
	}

	updated, err := c.svc.Tasks.Update(list.RemoteID, task.RemoteID, body).Context(ctx).Do()
	if err != nil {
		return service.RemoteTask{}, wrapError(op, err)
	}
	r, err := fromTask(updated)
	r.ListRemoteID = list.RemoteID
	return r, wrapError(op, err)
}

// DeleteTask implements service.Backend.
func (c *Client) DeleteTask(ctx context.Context, list service.RemoteList, task service.RemoteTask) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.svc.Tasks.Delete(list.RemoteID, task.RemoteID).Context(ctx).Do()
	return wrapError("delete task", err)
}

func fromTaskList(list *tasks.TaskList) (service.RemoteList, error) {
	updated, err := parseUpdated(list.Updated)
	if err != nil {
		return service.RemoteList{}, fmt.Errorf("list %s: %w", list.Id, err)
	}
	return service.RemoteList{
		RemoteID: list.Id,
		Service:  ServiceName,
		Title:    list.Title,
		Updated:  updated,
	}, nil
}

func fromTask(task *tasks.Task) (service.RemoteTask, error) {
	updated, err := parseUpdated(task.Updated)
	if err != nil {
		return service.RemoteTask{}, fmt.Errorf("task %s: %w", task.Id, err)
	}
	return service.RemoteTask{
		RemoteID:        task.Id,
		Service:         ServiceName,
		Title:           task.Title,
		Notes:           task.Notes,
		Due:             dueFromAPI(task.Due),
		Completed:       task.Status == statusCompleted,
		Updated:         updated,
		RemotelyDeleted: task.Deleted,
	}, nil
}

func parseUpdated(s string) (int64, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, fmt.Errorf("invalid updated time %q: %w", s, err)
	}
	return t.UnixMilli(), nil
}

// dueFromAPI keeps the date part of an RFC3339 due value. The API discards
// the time of day.
func dueFromAPI(s string) string {
	if len(s) < len(service.DateLayout) {
		return ""
	}
	return s[:len(service.DateLayout)]
}

func dueToAPI(date string) string {
	return date + "T00:00:00.000Z"
}

// wrapError maps API and transport failures onto the transport taxonomy.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return service.NewError(service.Unauthorized, op,
			fmt.Errorf("token expired or revoked (run: tasksync login): %w", err))
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized:
			return service.NewError(service.Unauthorized, op,
				fmt.Errorf("token expired or revoked (run: tasksync login): %w", err))
		case apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone:
			return service.NewError(service.NotFound, op, err)
		case apiErr.Code == http.StatusTooManyRequests:
			return service.NewError(service.RateLimited, op, err)
		case apiErr.Code == http.StatusForbidden && isRateLimit(apiErr):
			return service.NewError(service.RateLimited, op, err)
		case apiErr.Code >= 500:
			return service.NewError(service.Network, op, err)
		default:
			return service.NewError(service.Protocol, op, err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return service.NewError(service.Network, op, fmt.Errorf("request timed out: %w", err))
	}
	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return service.NewError(service.Network, op, err)
	}

	return service.NewError(service.Protocol, op, err)
}

func isRateLimit(err *googleapi.Error) bool {
	for _, item := range err.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded":
			return true
		}
	}
	return false
}
