package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"cleantree/internal/domain"
	"cleantree/internal/event"
)

// Watch follows the tree's change feed, calling fn for every committed
// change in order. It blocks until ctx is cancelled or the server drops the
// connection. A gap in sequence numbers is reported as an error since the
// caller has missed changes and should reload.
func (c *Client) Watch(ctx context.Context, fn func(event.Event)) error {
	u := *c.baseURL
	u.Path += c.treePath("ws")
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			defer resp.Body.Close()
			return decodeProblem(resp)
		}
		return fmt.Errorf("%w: dial feed: %v", domain.ErrUnavailable, err)
	}
	defer conn.Close()

	// Unblock the read loop on cancellation
	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadlineSoon())
		conn.Close()
	})
	defer stop()

	c.logger.Debug("watching tree feed", "tree_id", c.treeID)

	var last uint64
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseTryAgainLater {
				return fmt.Errorf("%w: feed closed: %s", domain.ErrUnavailable, closeErr.Text)
			}
			return fmt.Errorf("read feed: %w", err)
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		seq, e, err := event.DecodeFrame(data)
		if err != nil {
			c.logger.Warn("skipping undecodable feed frame", "error", err)
			continue
		}
		if last != 0 && seq != last+1 {
			return fmt.Errorf("feed gap: expected seq %d, got %d", last+1, seq)
		}
		last = seq
		fn(e)
	}
}
