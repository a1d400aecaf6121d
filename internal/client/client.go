// Package client talks to a tree server over HTTP. A Client is bound to one
// tree and satisfies branch.Backend, so a session can be driven against a
// remote store exactly as against an in-process one.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cleantree/internal/branch"
	"cleantree/internal/domain"
	"cleantree/internal/domain/models/tree"
	"cleantree/internal/handler"
)

var _ branch.Backend = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithToken sends a bearer token with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for feed diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// Client is a remote tree.
type Client struct {
	baseURL *url.URL
	treeID  string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a client for treeID on the server at baseURL.
func New(baseURL, treeID string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		baseURL: u,
		treeID:  treeID,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TreeID returns the tree this client is bound to.
func (c *Client) TreeID() string { return c.treeID }

func (c *Client) treePath(parts ...string) string {
	p := "/api/trees/" + url.PathEscape(c.treeID)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

func branchPath(b tree.BranchID) string {
	return "branches/" + url.PathEscape(handler.BranchSegment(b))
}

// LoadChildren fetches the ordered children of a branch.
func (c *Client) LoadChildren(ctx context.Context, id tree.BranchID) ([]tree.Node, error) {
	var items []tree.Node
	err := c.do(ctx, http.MethodGet, c.treePath(branchPath(id), "children"), nil, nil, &items)
	return items, err
}

// MoveItem confirms a move with the server.
func (c *Client) MoveItem(ctx context.Context, args tree.MoveArgs) (tree.MoveResult, error) {
	var result tree.MoveResult
	err := c.do(ctx, http.MethodPost, c.treePath("moves"), nil, args, &result)
	return result, err
}

// CreateItem appends a plain item to parent.
func (c *Client) CreateItem(ctx context.Context, parent tree.BranchID, item tree.Node) ([]tree.Node, error) {
	return c.create(ctx, parent, item, false)
}

// CreateFolder appends a folder to parent.
func (c *Client) CreateFolder(ctx context.Context, parent tree.BranchID, folder tree.Node) ([]tree.Node, error) {
	return c.create(ctx, parent, folder, true)
}

func (c *Client) create(ctx context.Context, parent tree.BranchID, node tree.Node, folder bool) ([]tree.Node, error) {
	var items []tree.Node
	err := c.do(ctx, http.MethodPost, c.treePath(branchPath(parent), "items"), folderQuery(folder), node, &items)
	return items, err
}

// DeleteItem removes a plain item from branch.
func (c *Client) DeleteItem(ctx context.Context, itemID string, b tree.BranchID) ([]tree.Node, error) {
	return c.delete(ctx, itemID, b, false)
}

// DeleteFolder removes a folder and its subtree from branch.
func (c *Client) DeleteFolder(ctx context.Context, folderID string, b tree.BranchID) ([]tree.Node, error) {
	return c.delete(ctx, folderID, b, true)
}

func (c *Client) delete(ctx context.Context, itemID string, b tree.BranchID, folder bool) ([]tree.Node, error) {
	var items []tree.Node
	p := c.treePath(branchPath(b), "items", url.PathEscape(itemID))
	err := c.do(ctx, http.MethodDelete, p, folderQuery(folder), nil, &items)
	return items, err
}

// SetOpenState persists expand/collapse of an item.
func (c *Client) SetOpenState(ctx context.Context, itemID string, isOpen bool) error {
	body := handler.OpenStateRequest{IsOpen: isOpen}
	return c.do(ctx, http.MethodPut, c.treePath("items", url.PathEscape(itemID), "open"), nil, body, nil)
}

// GetTree fetches the whole tree in nested form.
func (c *Client) GetTree(ctx context.Context) ([]tree.NodeData, error) {
	var data []tree.NodeData
	err := c.do(ctx, http.MethodGet, c.treePath(), nil, nil, &data)
	return data, err
}

// Seed replaces the tree with data.
func (c *Client) Seed(ctx context.Context, data []tree.NodeData) error {
	return c.do(ctx, http.MethodPut, c.treePath(), nil, data, nil)
}

// ListTrees returns the ids of every non-empty tree on the server.
func (c *Client) ListTrees(ctx context.Context) ([]string, error) {
	var resp struct {
		Trees []string `json:"trees"`
	}
	err := c.do(ctx, http.MethodGet, "/api/trees", nil, nil, &resp)
	return resp.Trees, err
}

func folderQuery(folder bool) url.Values {
	if !folder {
		return nil
	}
	return url.Values{"folder": {"true"}}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, dest any) error {
	u := *c.baseURL
	u.Path += path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeProblem(resp)
	}
	if dest == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func deadlineSoon() time.Time { return time.Now().Add(time.Second) }
