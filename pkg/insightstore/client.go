package insightstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-behavior-insights/internal/models"
	appErrors "github.com/noah-isme/sma-behavior-insights/pkg/errors"
	"github.com/noah-isme/sma-behavior-insights/pkg/middleware/requestid"
)

// Config configures the HTTP client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Retries applies to transport errors and 5xx answers only.
	Retries int
}

type envelope struct {
	Data       json.RawMessage    `json:"data"`
	Error      *appErrors.Error   `json:"error"`
	Pagination *models.Pagination `json:"pagination"`
}

// Client talks to the artifact store API with the caller's bearer token.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

// New builds a client for the store rooted at cfg.BaseURL.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || (resp != nil && resp.StatusCode() >= http.StatusInternalServerError)
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &Client{http: httpClient, logger: logger}
}

// Save stores an artifact and returns it with the store-issued id.
func (c *Client) Save(ctx context.Context, token string, insight models.Insight) (*models.Insight, error) {
	var saved models.Insight
	if err := c.do(ctx, token, http.MethodPost, "/insights", insight, nil, &saved); err != nil {
		return nil, err
	}
	return &saved, nil
}

// Get fetches a stored artifact.
func (c *Client) Get(ctx context.Context, token, id string) (*models.Insight, error) {
	var insight models.Insight
	if err := c.do(ctx, token, http.MethodGet, "/insights/"+id, nil, nil, &insight); err != nil {
		return nil, err
	}
	return &insight, nil
}

// List returns one page of stored artifacts.
func (c *Client) List(ctx context.Context, token string, filter models.InsightFilter) ([]models.Insight, error) {
	query := map[string]string{}
	if filter.Kind != "" {
		query["kind"] = string(filter.Kind)
	}
	if filter.Active != nil {
		query["active"] = strconv.FormatBool(*filter.Active)
	}
	if filter.Page > 0 {
		query["page"] = strconv.Itoa(filter.Page)
	}
	if filter.PageSize > 0 {
		query["page_size"] = strconv.Itoa(filter.PageSize)
	}
	var insights []models.Insight
	if err := c.do(ctx, token, http.MethodGet, "/insights", nil, query, &insights); err != nil {
		return nil, err
	}
	return insights, nil
}

// Apply records the chosen action for an artifact.
func (c *Client) Apply(ctx context.Context, token, id string, req models.ApplyInsightRequest) (*models.ApplyInsightResponse, error) {
	var resp models.ApplyInsightResponse
	if err := c.do(ctx, token, http.MethodPost, "/insights/"+id+"/apply", req, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RecordOutcome stores the outcome of an applied action.
func (c *Client) RecordOutcome(ctx context.Context, token, recordID string, req models.RecordOutcomeRequest) (*models.ActionRecord, error) {
	var record models.ActionRecord
	if err := c.do(ctx, token, http.MethodPatch, "/insights/actions/"+recordID+"/outcome", req, nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (c *Client) do(ctx context.Context, token, method, path string, body interface{}, query map[string]string, dest interface{}) error {
	if token == "" {
		return appErrors.Clone(appErrors.ErrMissingCredential, "")
	}
	var env envelope
	req := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&env).
		SetError(&env)
	if id := requestid.FromContext(ctx); id != "" {
		req.SetHeader(requestid.HeaderKey, id)
	}
	if body != nil {
		req.SetBody(body)
	}
	if len(query) > 0 {
		req.SetQueryParams(query)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Warn("insight store request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}
	if resp.IsError() {
		return statusError(resp.StatusCode(), env.Error)
	}
	if dest == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, "malformed insight store response")
	}
	return nil
}

func statusError(status int, remote *appErrors.Error) error {
	message := ""
	if remote != nil {
		message = remote.Message
	}
	switch status {
	case http.StatusUnauthorized:
		return appErrors.Clone(appErrors.ErrSessionInvalid, "")
	case http.StatusForbidden:
		return appErrors.Clone(appErrors.ErrForbidden, message)
	case http.StatusNotFound:
		return appErrors.Clone(appErrors.ErrNotFound, message)
	case http.StatusBadRequest:
		return appErrors.Clone(appErrors.ErrValidation, message)
	case http.StatusConflict:
		return appErrors.Clone(appErrors.ErrConflict, message)
	default:
		return appErrors.Wrap(fmt.Errorf("insight store answered %d: %s", status, message),
			appErrors.ErrStoreUnavailable.Code, appErrors.ErrStoreUnavailable.Status, appErrors.ErrStoreUnavailable.Message)
	}
}
