// Package remote implements the list and mutation collaborators over the
// garage REST API using fasthttp.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"

	"github.com/goliatone/go-garage-sync/listsync"
)

// ActorHeader carries the acting user so pushed events can be matched to
// the client that caused them.
const ActorHeader = "X-Actor-Id"

// TokenSource returns the bearer token for a request. An empty token sends
// no Authorization header.
type TokenSource func(ctx context.Context) (string, error)

// Doer is the subset of *fasthttp.Client the REST client needs.
type Doer interface {
	DoTimeout(req *fasthttp.Request, resp *fasthttp.Response, timeout time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithDoer replaces the default fasthttp client.
func WithDoer(d Doer) Option {
	return func(c *Client) { c.doer = d }
}

// WithTokenSource sets the bearer token source.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) { c.logger = l }
}

// Client talks to the REST API. It is safe for concurrent use.
type Client struct {
	cfg    Config
	base   string
	doer   Doer
	tokens TokenSource
	logger logrus.FieldLogger
}

// NewClient validates cfg and returns a client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Client{
		cfg:  cfg,
		base: strings.TrimRight(cfg.BaseURL, "/"),
		doer: &fasthttp.Client{
			Name:                     cfg.UserAgent,
			NoDefaultUserAgentHeader: cfg.UserAgent == "",
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logrus.StandardLogger()
	}
	return c, nil
}

// Resource returns the collaborator for the collection at path.
func (c *Client) Resource(path string) *Resource {
	return &Resource{client: c, path: "/" + strings.Trim(path, "/")}
}

// result is a decoded API envelope.
type result struct {
	ok      bool
	message string
	body    gjson.Result
}

func (c *Client) do(ctx context.Context, method, path string, query func(*fasthttp.Args), payload any) (result, error) {
	if err := ctx.Err(); err != nil {
		return result{}, err
	}

	timeout := c.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return result{}, context.DeadlineExceeded
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(method)
	req.SetRequestURI(c.base + path)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	if query != nil {
		query(req.URI().QueryArgs())
	}

	if c.tokens != nil {
		token, err := c.tokens(ctx)
		if err != nil {
			return result{}, fmt.Errorf("acquire token: %w", err)
		}
		if token != "" {
			req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+token)
		}
	}
	if actor, ok := listsync.ActorFromContext(ctx); ok {
		req.Header.Set(ActorHeader, actor)
	}

	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return result{}, fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		req.Header.SetContentType("application/json")
		req.SetBodyRaw(body)
	}

	logger := c.logger.WithFields(logrus.Fields{"method": method, "path": path})
	started := time.Now()

	if err := c.doer.DoTimeout(req, resp, timeout); err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) {
			return result{}, errors.New("timeout")
		}
		return result{}, err
	}

	status := resp.StatusCode()
	logger.WithFields(logrus.Fields{"status": status, "elapsed": time.Since(started)}).Debug("api call")

	return decodeEnvelope(status, resp.Body())
}

// decodeEnvelope maps a response to a result. Responses the server flags as
// failed (non-2xx or success=false) become business failures carrying the
// server message; unreadable 2xx bodies are errors.
func decodeEnvelope(status int, body []byte) (result, error) {
	failed := status < 200 || status >= 300

	if !gjson.ValidBytes(body) {
		if failed {
			return result{message: statusMessage(status)}, nil
		}
		return result{}, fmt.Errorf("malformed response (status %d)", status)
	}

	doc := gjson.ParseBytes(body)
	if s := doc.Get("success"); s.Exists() && !s.Bool() {
		failed = true
	}
	if failed {
		msg := firstString(doc, "message", "error.message", "error")
		if msg == "" {
			msg = statusMessage(status)
		}
		return result{message: msg, body: doc}, nil
	}
	return result{ok: true, body: doc}, nil
}

func statusMessage(status int) string {
	return strconv.Itoa(status) + " " + fasthttp.StatusMessage(status)
}

func firstString(doc gjson.Result, paths ...string) string {
	for _, p := range paths {
		if r := doc.Get(p); r.Exists() && r.Type == gjson.String && r.String() != "" {
			return r.String()
		}
	}
	return ""
}

func firstExisting(doc gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if r := doc.Get(p); r.Exists() {
			return r
		}
	}
	return gjson.Result{}
}
