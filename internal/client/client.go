// Package client is a REST client for a running application manager.
package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"

	apihttp "github.com/GriffinCanCode/AgentOS/appmgr/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/domain/app"
	"github.com/GriffinCanCode/AgentOS/appmgr/internal/shared/types"
)

// DefaultAddr is the manager's default REST address
const DefaultAddr = "http://127.0.0.1:8100"

// APIError is a non-2xx response from the manager
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("appmgr: %s (status %d)", e.Message, e.StatusCode)
}

// Client talks to the manager's REST API
type Client struct {
	resty *resty.Client
}

// New creates a client for the manager at addr
func New(addr string) *Client {
	r := resty.New().
		SetBaseURL(addr).
		SetTimeout(10*time.Second).
		SetHeader("User-Agent", "appmgr-cli/"+apihttp.Version).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)
	return &Client{resty: r}
}

// Processes lists process records, filtered by state when it is not empty
func (c *Client) Processes(ctx context.Context, state string) ([]types.ProcessInfo, error) {
	var out struct {
		Processes []types.ProcessInfo `json:"processes"`
	}
	req := c.resty.R()
	if state != "" {
		req.SetQueryParam("state", state)
	}
	if err := c.send(ctx, req, http.MethodGet, "/processes", nil, &out); err != nil {
		return nil, err
	}
	return out.Processes, nil
}

// Kill terminates a process by record id
func (c *Client) Kill(ctx context.Context, id string) error {
	return c.send(ctx, c.resty.R(), http.MethodPost, "/processes/"+id+"/kill", nil, nil)
}

// Launch starts an ability
func (c *Client) Launch(ctx context.Context, req app.LaunchRequest) (*app.LaunchResult, error) {
	var out app.LaunchResult
	if err := c.send(ctx, c.resty.R(), http.MethodPost, "/abilities", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Terminate ends an ability
func (c *Client) Terminate(ctx context.Context, token string) (*app.TerminateResult, error) {
	var out app.TerminateResult
	if err := c.send(ctx, c.resty.R(), http.MethodDelete, "/abilities/"+token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cache returns the process cache state
func (c *Client) Cache(ctx context.Context) (*apihttp.CacheStatus, error) {
	var out apihttp.CacheStatus
	if err := c.send(ctx, c.resty.R(), http.MethodGet, "/cache", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RefreshCache makes the manager re-read the cache capacity
func (c *Client) RefreshCache(ctx context.Context) (*apihttp.CacheStatus, error) {
	var out apihttp.CacheStatus
	if err := c.send(ctx, c.resty.R(), http.MethodPost, "/cache/refresh", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) send(ctx context.Context, req *resty.Request, method, path string, body, out any) error {
	apiErr := &APIError{}
	req.SetContext(ctx).SetError(apiErr)
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		apiErr.StatusCode = resp.StatusCode()
		if apiErr.Message == "" {
			apiErr.Message = resp.Status()
		}
		return apiErr
	}
	return nil
}
