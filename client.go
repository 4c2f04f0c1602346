package chronodex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultRetryMax = 3
)

// HTTPDoer executes HTTP requests. Satisfied by *http.Client and by the
// retryablehttp standard client wrapper.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is the chronodex SDK entry point: it registers datasource schemas
// with the ingest gateway and pushes event batches into them.
type Client struct {
	baseURL string
	apiKey  string
	http    HTTPDoer
	logger  *zap.Logger
}

// IngestResult reports the outcome of an event batch submission.
type IngestResult struct {
	BatchID  string `json:"batchId"`
	Received int    `json:"received"`
	Dropped  int    `json:"dropped"`
}

// New creates a chronodex Client.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		timeout:  defaultTimeout,
		retryMax: defaultRetryMax,
	}
	for _, o := range opts {
		o(cfg)
	}

	if cfg.baseURL == "" {
		return nil, errors.New("chronodex: gateway base URL required (use WithBaseURL)")
	}
	logger := cfg.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	doer := cfg.httpClient
	if doer == nil {
		rc := retryablehttp.NewClient()
		rc.RetryMax = cfg.retryMax
		rc.HTTPClient.Timeout = cfg.timeout
		rc.Logger = nil
		doer = rc.StandardClient()
	}

	return &Client{
		baseURL: cfg.baseURL,
		apiKey:  cfg.apiKey,
		http:    doer,
		logger:  logger,
	}, nil
}

// CreateDataSource registers a datasource schema with the gateway.
func (c *Client) CreateDataSource(ctx context.Context, ds DataSource) error {
	return c.do(ctx, http.MethodPost, "/v1/datasources", ds, nil)
}

// GetDataSource fetches a registered datasource schema by name.
func (c *Client) GetDataSource(ctx context.Context, name string) (DataSource, error) {
	var ds DataSource
	if err := c.do(ctx, http.MethodGet, "/v1/datasources/"+name, nil, &ds); err != nil {
		return DataSource{}, err
	}
	return ds, nil
}

// ListDataSources returns the names of all registered datasources.
func (c *Client) ListDataSources(ctx context.Context) ([]string, error) {
	var out struct {
		DataSources []string `json:"dataSources"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/datasources", nil, &out); err != nil {
		return nil, err
	}
	return out.DataSources, nil
}

// DeleteDataSource removes a registered datasource schema.
func (c *Client) DeleteDataSource(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/v1/datasources/"+name, nil, nil)
}

// Ingest pushes a batch of raw events into a datasource.
func (c *Client) Ingest(ctx context.Context, dataSource string, events []map[string]any) (IngestResult, error) {
	var res IngestResult
	err := c.do(ctx, http.MethodPost, "/v1/datasources/"+dataSource+"/events", events, &res)
	if err != nil {
		return IngestResult{}, err
	}
	c.logger.Debug("ingested batch",
		zap.String("datasource", dataSource),
		zap.String("batch_id", res.BatchID),
		zap.Int("received", res.Received),
		zap.Int("dropped", res.Dropped),
	)
	return res, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("chronodex: encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("chronodex: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("chronodex: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apiError(method, path, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("chronodex: decode response: %w", err)
	}
	return nil
}

// apiError maps gateway error responses back to the package sentinels.
func apiError(method, path string, resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	msg := body.Error
	if msg == "" {
		msg = resp.Status
	}

	var sentinel error
	switch resp.StatusCode {
	case http.StatusNotFound:
		sentinel = ErrNotFound
	case http.StatusConflict:
		sentinel = ErrAlreadyExists
	case http.StatusBadRequest:
		sentinel = ErrInvalidSpec
	}
	if sentinel != nil {
		return fmt.Errorf("chronodex: %s %s: %w: %s", method, path, sentinel, msg)
	}
	return fmt.Errorf("chronodex: %s %s: %s", method, path, msg)
}
