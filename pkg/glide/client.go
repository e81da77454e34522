package glide

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "tgmedia/internal/errors"
	"tgmedia/internal/retry"
	"tgmedia/pkg/circuitbreaker"
	"tgmedia/pkg/constants"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// API is the Glide surface used by the sync jobs.
type API interface {
	QueryTable(ctx context.Context, appID, token, tableID string) ([]Row, error)
	MutateTables(ctx context.Context, appID, token string, mutations []Mutation) ([]MutationResult, error)
}

// Config configures a Client.
type Config struct {
	BaseURL              string
	Timeout              time.Duration
	RequestsPerSecond    float64
	MaxFailures          uint32
	ResetTimeout         time.Duration
	Backoff              *retry.Backoff
	OnBreakerStateChange func(name string, from, to circuitbreaker.State)
}

// Client calls the Glide tables API. Requests are throttled, retried on
// transient failures and guarded by a circuit breaker.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	breaker *circuitbreaker.CircuitBreaker
	backoff *retry.Backoff
	logger  *logrus.Logger
}

func NewClient(cfg Config, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = constants.GlideAPIBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = constants.DefaultGlideTimeoutSec * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = retry.NewBackoff(retry.DefaultBackoffConfig())
	}

	breakerOpts := []circuitbreaker.Option{
		circuitbreaker.WithLogger(logger),
		circuitbreaker.WithFailurePredicate(apperrors.IsRetryable),
	}
	if cfg.OnBreakerStateChange != nil {
		breakerOpts = append(breakerOpts, circuitbreaker.WithStateChangeHook(cfg.OnBreakerStateChange))
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		breaker: circuitbreaker.New("glide", cfg.MaxFailures, cfg.ResetTimeout, breakerOpts...),
		backoff: backoff.With(retry.WithLogger(logger, "glide")),
		logger:  logger,
	}
}

// Breaker exposes the circuit breaker for health reporting.
func (c *Client) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}

// QueryTable returns every row of tableID, following continuation tokens.
func (c *Client) QueryTable(ctx context.Context, appID, token, tableID string) ([]Row, error) {
	var rows []Row
	startAt := ""

	for {
		req := queryRequest{
			AppID:   appID,
			Queries: []query{{TableName: tableID, UTC: true, StartAt: startAt}},
		}

		var results []queryResult
		if err := c.post(ctx, "/queryTables", token, req, &results); err != nil {
			return nil, err
		}
		if len(results) == 0 {
			break
		}

		rows = append(rows, results[0].Rows...)
		if results[0].Next == "" {
			break
		}
		startAt = results[0].Next
	}

	c.logger.WithFields(logrus.Fields{
		"table_id": tableID,
		"rows":     len(rows),
	}).Debug("Queried Glide table")
	return rows, nil
}

// MutateTables applies mutations in chunks of the API's per-request limit.
// Results are returned in the same order as mutations.
func (c *Client) MutateTables(ctx context.Context, appID, token string, mutations []Mutation) ([]MutationResult, error) {
	results := make([]MutationResult, 0, len(mutations))

	for start := 0; start < len(mutations); start += constants.GlideMaxMutationsPerReq {
		end := start + constants.GlideMaxMutationsPerReq
		if end > len(mutations) {
			end = len(mutations)
		}

		var chunk []MutationResult
		req := mutateRequest{AppID: appID, Mutations: mutations[start:end]}
		if err := c.post(ctx, "/mutateTables", token, req, &chunk); err != nil {
			return results, err
		}
		if len(chunk) != end-start {
			return results, apperrors.NewAPIError("glide", "/mutateTables", http.StatusOK,
				fmt.Errorf("expected %d results, got %d", end-start, len(chunk)))
		}
		results = append(results, chunk...)
	}
	return results, nil
}

func (c *Client) post(ctx context.Context, path, token string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal glide request: %w", err)
	}

	return c.backoff.RetryWithPredicate(ctx, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		return c.breaker.Execute(ctx, func(ctx context.Context) error {
			return c.do(ctx, path, token, body, out)
		})
	}, apperrors.IsRetryable)
}

func (c *Client) do(ctx context.Context, path, token string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.NewAPIError("glide", path, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, constants.MaxErrorBodyBytes))
		return apperrors.NewAPIError("glide", path, resp.StatusCode,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.NewAPIError("glide", path, resp.StatusCode, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}
