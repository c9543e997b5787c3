package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/ButyrinIA/blogsync/internal/apperr"
	"github.com/ButyrinIA/blogsync/internal/endpoint"
	"github.com/ButyrinIA/blogsync/internal/models"
)

// Subscribe opens the comment event stream of a post. The returned channel is
// closed when ctx ends or the connection drops.
func (c *Client) Subscribe(ctx context.Context, postID string) (<-chan models.CommentEvent, error) {
	u, err := url.Parse(c.baseURL + endpoint.Path(endpoint.PostEvents, postID))
	if err != nil {
		return nil, apperr.Normalize(0, nil, err)
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}

	header := http.Header{}
	if token := c.token(ctx); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
			if status == http.StatusUnauthorized {
				c.signalUnauthorized()
			}
		}
		return nil, apperr.Normalize(status, nil, err)
	}

	events := make(chan models.CommentEvent, 16)
	done := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		conn.Close()
	}()

	go func() {
		defer close(events)
		defer close(done)
		for {
			var ev models.CommentEvent
			if err := conn.ReadJSON(&ev); err != nil {
				if ctx.Err() == nil {
					c.log.Debug("Event stream closed", "post_id", postID, "error", err)
				}
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}
