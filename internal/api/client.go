package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"partner-portal/internal/gateway"
)

// Client exposes one method per backend operation. Every call goes through the gateway.
type Client struct {
	gw           *gateway.Gateway
	loginTimeout time.Duration
}

type Option func(*Client)

// WithLoginTimeout bounds the sign-in and authenticator enrollment calls. Non-positive
// values keep DefaultLoginTimeout.
func WithLoginTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.loginTimeout = d
		}
	}
}

func New(gw *gateway.Gateway, opts ...Option) *Client {
	c := &Client{gw: gw, loginTimeout: DefaultLoginTimeout}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) raw(ctx context.Context, req gateway.Request) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.gw.Do(ctx, req, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	return c.raw(ctx, gateway.Request{Method: http.MethodGet, Path: path, Query: query})
}

func (c *Client) send(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	req := gateway.Request{Method: method, Path: path}
	if body != nil {
		req.JSON = body
	}
	return c.raw(ctx, req)
}

// ok decodes the {"ok": bool} acknowledgement. A missing body counts as success.
func ok(entity string, raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var ack struct {
		OK *bool `json:"ok"`
	}
	if err := json.Unmarshal(raw, &ack); err != nil {
		return &DecodeError{Entity: entity, Err: err}
	}
	if ack.OK != nil && !*ack.OK {
		return ErrRejected
	}
	return nil
}

// emptyOnMissing applies the list convention: 401 and 404 mean the feed is unavailable, not broken.
func emptyOnMissing(err error) bool {
	return gateway.IsStatus(err, http.StatusUnauthorized, http.StatusNotFound)
}
