// Package client calls a running model server.
package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"isamples-modelserver/internal/server"
	"isamples-modelserver/internal/taxonomy"
)

// APIError is a non-2xx response from the model server.
type APIError struct {
	StatusCode int
	// Exception is set for refused records (409).
	Exception string
	Message   string
}

func (e *APIError) Error() string {
	if e.Exception != "" {
		return fmt.Sprintf("model server: %d %s: %s", e.StatusCode, e.Exception, e.Message)
	}
	return fmt.Sprintf("model server: %d %s", e.StatusCode, e.Message)
}

// Refused reports whether the server refused the record rather than failing.
func (e *APIError) Refused() bool {
	return e.StatusCode == http.StatusConflict
}

type errorBody struct {
	Detail    string `json:"detail"`
	Exception string `json:"exception"`
	Message   string `json:"message"`
}

type Client struct {
	base string
	rest *resty.Client
}

func New(base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(60 * time.Second) // model loads can be slow
	}
	r.SetHeader("Accept", "application/json")
	return &Client{base: strings.TrimRight(base, "/"), rest: r}
}

func (c *Client) OpenContextMaterial(ctx context.Context, record map[string]any) ([]taxonomy.PredictionResult, error) {
	return c.predict(ctx, "/opencontext", record, taxonomy.ModelTypeMaterial)
}

func (c *Client) OpenContextSample(ctx context.Context, record map[string]any) ([]taxonomy.PredictionResult, error) {
	return c.predict(ctx, "/opencontext", record, taxonomy.ModelTypeSample)
}

func (c *Client) SESARMaterial(ctx context.Context, record map[string]any) ([]taxonomy.PredictionResult, error) {
	return c.predict(ctx, "/sesar", record, taxonomy.ModelTypeMaterial)
}

// Smithsonian returns the sampled-feature label for input.
func (c *Client) Smithsonian(ctx context.Context, input []string) (string, error) {
	var label string
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(server.SampledFeatureParams{Input: input, Type: taxonomy.ModelTypeContext}).
		SetResult(&label).
		SetError(&errorBody{}).
		Post(c.base + "/smithsonian")
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	if err := apiError(resp); err != nil {
		return "", err
	}
	return label, nil
}

// Health returns the server's health report. A server still warming up
// answers 503, reported as an *APIError.
func (c *Client) Health(ctx context.Context) (server.HealthResponse, error) {
	var health server.HealthResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&health).
		Get(c.base + "/health")
	if err != nil {
		return health, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return health, &APIError{StatusCode: resp.StatusCode(), Message: resp.String()}
	}
	return health, nil
}

func (c *Client) predict(ctx context.Context, path string, record map[string]any, modelType taxonomy.ModelType) ([]taxonomy.PredictionResult, error) {
	var results []taxonomy.PredictionResult
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(server.PredictParams{SourceRecord: record, Type: modelType}).
		SetResult(&results).
		SetError(&errorBody{}).
		Post(c.base + path)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if err := apiError(resp); err != nil {
		return nil, err
	}
	return results, nil
}

func apiError(resp *resty.Response) error {
	if !resp.IsError() && resp.StatusCode() < 300 {
		return nil
	}
	e := &APIError{StatusCode: resp.StatusCode(), Message: resp.String()}
	if body, ok := resp.Error().(*errorBody); ok && body != nil {
		switch {
		case body.Exception != "":
			e.Exception, e.Message = body.Exception, body.Message
		case body.Detail != "":
			e.Message = body.Detail
		}
	}
	return e
}
