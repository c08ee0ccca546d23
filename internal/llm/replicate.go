package llm

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

	app_errors "beru/backend/internal/errors"
)

// Provider defines the interface for interacting with a language model.
type Provider interface {
	// Predict runs prompt to completion and returns the raw model output.
	Predict(ctx context.Context, prompt string) (string, error)
}

// PredictionStatus is the lifecycle state reported by Replicate.
type PredictionStatus string

const (
	StatusStarting   PredictionStatus = "starting"
	StatusProcessing PredictionStatus = "processing"
	StatusSucceeded  PredictionStatus = "succeeded"
	StatusFailed     PredictionStatus = "failed"
	StatusCanceled   PredictionStatus = "canceled"
)

// Terminal reports whether polling should stop. Only success and failure end
// a job; every other status, canceled included, is treated as still pending.
func (s PredictionStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

type PredictionInput struct {
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens"`
}

type CreatePredictionRequest struct {
	Version string          `json:"version"`
	Input   PredictionInput `json:"input"`
}

// Prediction is one in-flight inference job. It lives only for the duration
// of a single Predict call.
type Prediction struct {
	ID     string           `json:"id"`
	Status PredictionStatus `json:"status"`
	Output OutputFragments  `json:"output"`
	Error  any              `json:"error,omitempty"`
}

// OutputFragments is the ordered token list of a finished prediction. Some
// models return a single string instead of a list; both decode here.
type OutputFragments []string

func (o *OutputFragments) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = nil
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*o = OutputFragments{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("unexpected prediction output %s: %w", string(data), err)
	}
	*o = list
	return nil
}

// Text concatenates the fragments in order.
func (o OutputFragments) Text() string {
	return strings.Join(o, "")
}

type ReplicateOptions struct {
	BaseURL      string
	Token        string
	Model        string
	MaxTokens    int
	PollInterval time.Duration
	// PollTimeout bounds a whole Predict call. Zero means no bound.
	PollTimeout time.Duration
	HTTPClient  *http.Client
}

type replicateProvider struct {
	client       *http.Client
	baseURL      string
	token        string
	model        string
	maxTokens    int
	pollInterval time.Duration
	pollTimeout  time.Duration
}

func NewReplicateProvider(opts ReplicateOptions) Provider {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &replicateProvider{
		client:       client,
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		token:        opts.Token,
		model:        opts.Model,
		maxTokens:    opts.MaxTokens,
		pollInterval: pollInterval,
		pollTimeout:  opts.PollTimeout,
	}
}

func (p *replicateProvider) Predict(ctx context.Context, prompt string) (string, error) {
	if p.token == "" {
		return "", app_errors.New(app_errors.ErrConfiguration, "Replicate API token not found.")
	}

	if p.pollTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.pollTimeout)
		defer cancel()
	}

	prediction, err := p.createPrediction(ctx, prompt)
	if err != nil {
		return "", err
	}
	slog.Info("Prediction created", "prediction_id", prediction.ID, "model", p.model)

	return p.awaitPrediction(ctx, prediction.ID)
}

func (p *replicateProvider) createPrediction(ctx context.Context, prompt string) (*Prediction, error) {
	body, err := json.Marshal(CreatePredictionRequest{
		Version: p.model,
		Input:   PredictionInput{Prompt: prompt, MaxTokens: p.maxTokens},
	})
	if err != nil {
		return nil, fmt.Errorf("could not marshal request: %w", err)
	}

	respBody, status, err := p.do(ctx, http.MethodPost, p.baseURL+"/predictions", body)
	if err != nil {
		return nil, app_errors.Wrap(app_errors.ErrUpstream, "Error calling Replicate API", err)
	}
	if status != http.StatusCreated {
		return nil, app_errors.New(app_errors.ErrUpstream, "Error calling Replicate API: "+string(respBody))
	}

	var prediction Prediction
	if err := json.Unmarshal(respBody, &prediction); err != nil || prediction.ID == "" {
		return nil, app_errors.New(app_errors.ErrUpstream, "Unexpected response from Replicate API: "+string(respBody))
	}
	return &prediction, nil
}

// awaitPrediction polls until the job reaches a terminal status. There is no
// attempt limit; only ctx can stop it early.
func (p *replicateProvider) awaitPrediction(ctx context.Context, id string) (string, error) {
	for attempt := 1; ; attempt++ {
		prediction, err := p.getPrediction(ctx, id)
		if err != nil {
			return "", err
		}

		if prediction.Status.Terminal() {
			if prediction.Status == StatusFailed {
				detail := "Replicate API prediction failed"
				if prediction.Error != nil {
					detail = fmt.Sprintf("%s: %v", detail, prediction.Error)
				}
				slog.Warn("Prediction failed", "prediction_id", id, "error", prediction.Error)
				return "", app_errors.New(app_errors.ErrUpstream, detail)
			}
			slog.Info("Prediction succeeded", "prediction_id", id, "polls", attempt)
			return prediction.Output.Text(), nil
		}

		slog.Debug("Prediction not finished yet", "prediction_id", id, "status", prediction.Status, "poll", attempt)

		timer := time.NewTimer(p.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", app_errors.Wrap(app_errors.ErrUpstream, "Replicate API prediction was abandoned", ctx.Err())
		case <-timer.C:
		}
	}
}

func (p *replicateProvider) getPrediction(ctx context.Context, id string) (*Prediction, error) {
	respBody, status, err := p.do(ctx, http.MethodGet, p.baseURL+"/predictions/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, app_errors.Wrap(app_errors.ErrUpstream, "Error polling Replicate API", err)
	}
	if status < 200 || status > 299 {
		return nil, app_errors.New(app_errors.ErrUpstream, "Error polling Replicate API: "+string(respBody))
	}

	var prediction Prediction
	if err := json.Unmarshal(respBody, &prediction); err != nil {
		return nil, app_errors.Wrap(app_errors.ErrUpstream, "Unexpected response from Replicate API: "+string(respBody), err)
	}
	return &prediction, nil
}

func (p *replicateProvider) do(ctx context.Context, method, endpoint string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("could not create http request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("could not read response body: %w", err)
	}
	return respBody, resp.StatusCode, nil
}
