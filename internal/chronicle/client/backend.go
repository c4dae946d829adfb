package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/coerce"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/schema"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/service"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/types"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/wirelog"
)

// LocalBackend runs submissions in process.
type LocalBackend struct {
	Executor *service.Executor
}

func (b LocalBackend) Submit(ctx context.Context, sub types.Submission) ([]types.WireEvent, error) {
	return b.Executor.Submit(ctx, sub)
}

// maxResponseBody caps how much of a reply is read.
const maxResponseBody = 4 << 20

// HTTPBackend submits over the HTTP API. Transient failures (transport
// errors and 502, 503, 504 replies) are retried for idempotent operations
// only; any other operation is attempted once, since a lost reply does not
// tell whether it ran.
type HTTPBackend struct {
	baseURL     string
	httpClient  *http.Client
	registry    *schema.Registry
	maxTries    uint
	maxInterval time.Duration
}

type HTTPOption func(*HTTPBackend)

func WithHTTPClient(c *http.Client) HTTPOption { return func(b *HTTPBackend) { b.httpClient = c } }

// WithRetries sets the attempt limit and the longest wait between attempts.
func WithRetries(maxTries uint, maxInterval time.Duration) HTTPOption {
	return func(b *HTTPBackend) { b.maxTries, b.maxInterval = maxTries, maxInterval }
}

func WithRegistry(r *schema.Registry) HTTPOption { return func(b *HTTPBackend) { b.registry = r } }

func NewHTTPBackend(baseURL string, opts ...HTTPOption) *HTTPBackend {
	b := &HTTPBackend{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		registry:    schema.Default(),
		maxTries:    4,
		maxInterval: 2 * time.Second,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// transientError marks a failure worth retrying.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func (b *HTTPBackend) Submit(ctx context.Context, sub types.Submission) ([]types.WireEvent, error) {
	body, err := json.Marshal(jsonSubmission(sub))
	if err != nil {
		return nil, fmt.Errorf("encode submission: %w", err)
	}

	attempt := func() ([]types.WireEvent, error) {
		out, err := b.post(ctx, body)
		var transient *transientError
		if err != nil && !errors.As(err, &transient) {
			return nil, backoff.Permanent(err)
		}
		return out, err
	}

	if !sub.Op.Idempotent() {
		out, err := b.post(ctx, body)
		return out, unwrapTransient(err)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 50 * time.Millisecond
	eb.MaxInterval = b.maxInterval
	out, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(b.maxTries),
	)
	return out, unwrapTransient(err)
}

func unwrapTransient(err error) error {
	var transient *transientError
	if errors.As(err, &transient) {
		return transient.err
	}
	return err
}

func jsonSubmission(sub types.Submission) types.Submission {
	out := sub
	out.Args = jsonArgs(sub.Args)
	out.Properties = make([]map[string]any, len(sub.Properties))
	for i, p := range sub.Properties {
		out.Properties[i] = jsonArgs(p)
	}
	return out
}

func jsonArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = coerce.WireJSON(v)
	}
	return out
}

func (b *HTTPBackend) post(ctx context.Context, body []byte) ([]types.WireEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/submit", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", wirelog.ContentType)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &transientError{err: fmt.Errorf("submit: %w", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, &transientError{err: fmt.Errorf("read reply: %w", err)}
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return b.decode(resp.Header.Get("Content-Type"), data)
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return nil, &transientError{err: replyError(resp.StatusCode, data)}
	default:
		return nil, replyError(resp.StatusCode, data)
	}
}

func (b *HTTPBackend) decode(contentType string, data []byte) ([]types.WireEvent, error) {
	mt, _, _ := mime.ParseMediaType(contentType)
	if mt == wirelog.ContentType {
		return wirelog.Unmarshal(data, b.registry)
	}
	var out types.SubmitResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	return out.Events, nil
}

// replyError rebuilds the sentinel named by an error body.
func replyError(status int, data []byte) error {
	var body types.ErrorResponse
	if err := json.Unmarshal(data, &body); err != nil || body.Error.Code == "" {
		return fmt.Errorf("submit: HTTP %d", status)
	}
	return service.FromCode(body.Error.Code, body.Error.Message)
}
