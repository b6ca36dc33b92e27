package engine

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

	"github.com/google/uuid"
	"github.com/impairlab/impairctl/internal/version"
	"github.com/impairlab/impairctl/pkg/impairment"
	"github.com/impairlab/impairctl/pkg/stats"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultBaseURL is the address of the control API of a local engine
	DefaultBaseURL = "http://127.0.0.1:5000/api"
	// DefaultTimeout bounds the duration of every request
	DefaultTimeout = 2 * time.Second

	// RequestIDHeader carries the id assigned to each request
	RequestIDHeader = "X-Request-ID"

	maxResponseSize = 1 << 20
	tracerName      = "github.com/impairlab/impairctl/pkg/engine"
)

// statsFields lists the keys every stats response must have
var statsFields = []string{
	"processed",
	"dropped",
	"delayed",
	"duplicated",
	"tampered",
	"out_of_order",
	"queue_size",
	"running",
}

// HTTPClient defines the method for executing HTTP requests. It is used to allow mocking
// the client in tests
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig configures the Client
type ClientConfig struct {
	// BaseURL of the control API. Defaults to DefaultBaseURL
	BaseURL string
	// Timeout of each request. Defaults to DefaultTimeout
	Timeout    time.Duration
	HTTPClient HTTPClient
	Logger     logrus.FieldLogger
}

// Client is a Transport that uses the engine's HTTP control API
type Client struct {
	base    *url.URL
	timeout time.Duration
	http    HTTPClient
	logger  logrus.FieldLogger
	tracer  trace.Tracer
}

// NewClient returns a Client for the engine at config.BaseURL
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}

	base, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid engine url %q: %w", config.BaseURL, err)
	}

	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid engine url %q: scheme must be http or https", config.BaseURL)
	}

	if config.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be non-negative: %s", config.Timeout)
	}

	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}

	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}

	return &Client{
		base:    base,
		timeout: config.Timeout,
		http:    config.HTTPClient,
		logger:  config.Logger,
		tracer:  otel.Tracer(tracerName),
	}, nil
}

// FetchConfig implements Transport's FetchConfig method
func (c *Client) FetchConfig(ctx context.Context) (impairment.Config, error) {
	data, err := c.do(ctx, OpFetchConfig, http.MethodGet, "config", nil)
	if err != nil {
		return impairment.Config{}, err
	}

	if err = requireFields(OpFetchConfig, data, impairment.WireFields); err != nil {
		return impairment.Config{}, err
	}

	wire := impairment.Wire{}
	if err = json.Unmarshal(data, &wire); err != nil {
		return impairment.Config{}, &TransportError{Op: OpFetchConfig, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}

	return wire.Config(), nil
}

// SubmitConfig implements Transport's SubmitConfig method
func (c *Client) SubmitConfig(ctx context.Context, config impairment.Config) error {
	data, err := c.do(ctx, OpSubmitConfig, http.MethodPost, "config", config.ToWire())
	if err != nil {
		return err
	}

	return expectStatus(OpSubmitConfig, data, StatusOK)
}

// SubmitStart implements Transport's SubmitStart method
func (c *Client) SubmitStart(ctx context.Context, config impairment.Config) error {
	data, err := c.do(ctx, OpStart, http.MethodPost, "start", config.ToWire())
	if err != nil {
		return err
	}

	return expectStatus(OpStart, data, StatusRunning)
}

// SubmitStop implements Transport's SubmitStop method
func (c *Client) SubmitStop(ctx context.Context) error {
	data, err := c.do(ctx, OpStop, http.MethodPost, "stop", nil)
	if err != nil {
		return err
	}

	return expectStatus(OpStop, data, StatusStopped)
}

// statsResponse is the body of the stats response
type statsResponse struct {
	Processed  uint64 `json:"processed"`
	Dropped    uint64 `json:"dropped"`
	Delayed    uint64 `json:"delayed"`
	Duplicated uint64 `json:"duplicated"`
	Tampered   uint64 `json:"tampered"`
	OutOfOrder uint64 `json:"out_of_order"`
	QueueSize  uint64 `json:"queue_size"`
	Running    bool   `json:"running"`
}

// FetchStats implements Transport's FetchStats method
func (c *Client) FetchStats(ctx context.Context) (stats.Snapshot, error) {
	data, err := c.do(ctx, OpFetchStats, http.MethodGet, "stats", nil)
	if err != nil {
		return stats.Snapshot{}, err
	}

	if err = requireFields(OpFetchStats, data, statsFields); err != nil {
		return stats.Snapshot{}, err
	}

	resp := statsResponse{}
	if err = json.Unmarshal(data, &resp); err != nil {
		return stats.Snapshot{}, &TransportError{Op: OpFetchStats, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}

	return stats.Snapshot{
		Processed:  resp.Processed,
		Dropped:    resp.Dropped,
		Delayed:    resp.Delayed,
		Duplicated: resp.Duplicated,
		Tampered:   resp.Tampered,
		OutOfOrder: resp.OutOfOrder,
		QueueSize:  resp.QueueSize,
		Running:    resp.Running,
	}, nil
}

// ResetStats implements Transport's ResetStats method
func (c *Client) ResetStats(ctx context.Context) error {
	data, err := c.do(ctx, OpResetStats, http.MethodPost, "reset-stats", nil)
	if err != nil {
		return err
	}

	return expectStatus(OpResetStats, data, StatusOK)
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + path
	return u.String()
}

// do executes a request and returns the body of a successful (2xx) response.
// The body is guaranteed to be valid JSON.
func (c *Client) do(ctx context.Context, op string, method string, path string, body interface{}) ([]byte, error) {
	requestID := uuid.NewString()
	log := c.logger.WithFields(logrus.Fields{"op": op, "request_id": requestID})

	ctx, span := c.tracer.Start(
		ctx,
		"engine."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("engine.request_id", requestID),
		),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	data, err := c.exchange(ctx, op, method, path, body, requestID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.WithError(err).Debug("engine request failed")
		return nil, err
	}

	log.Debug("engine request completed")

	return data, nil
}

func (c *Client) exchange(
	ctx context.Context,
	op string,
	method string,
	path string,
	body interface{},
	requestID string,
) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, &TransportError{Op: op, Err: fmt.Errorf("encoding request: %w", err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProtocolError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Status:     gjson.GetBytes(data, "status").String(),
			Message:    errorMessage(data),
		}
	}

	if !gjson.ValidBytes(data) {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("%w: invalid json", ErrMalformedResponse)}
	}

	return data, nil
}

// errorMessage extracts the error reported by the engine, falling back to the raw body
func errorMessage(data []byte) string {
	if gjson.ValidBytes(data) {
		return gjson.GetBytes(data, "error").String()
	}

	return strings.TrimSpace(string(data))
}

func expectStatus(op string, data []byte, expected string) error {
	status := gjson.GetBytes(data, "status")
	if status.Exists() && status.String() == expected {
		return nil
	}

	return &ProtocolError{
		Op:         op,
		StatusCode: http.StatusOK,
		Status:     status.String(),
		Message:    gjson.GetBytes(data, "error").String(),
	}
}

func requireFields(op string, data []byte, fields []string) error {
	missing := []string{}
	for _, f := range fields {
		if !gjson.GetBytes(data, f).Exists() {
			missing = append(missing, f)
		}
	}

	if len(missing) > 0 {
		return &TransportError{
			Op:  op,
			Err: fmt.Errorf("%w: missing fields %s", ErrMalformedResponse, strings.Join(missing, ", ")),
		}
	}

	return nil
}

// compile time check
var _ Transport = (*Client)(nil)
