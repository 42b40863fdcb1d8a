// Package dashboard is the HTTP client for the operations dashboard that owns
// jobs, timesheets, rate cards and the services catalog.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fieldbill/internal/models"

	"github.com/redis/go-redis/v9"
)

var (
	ErrJobNotFound      = errors.New("job not found")
	ErrRateCardNotFound = errors.New("rate card not found")
)

// StatusError is a non-2xx dashboard response.
type StatusError struct {
	Method string
	Path   string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("dashboard %s %s: http %d", e.Method, e.Path, e.Code)
}

// Client fetches job snapshots and rate data from the dashboard API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	redis    *redis.Client
	cacheTTL time.Duration
}

// NewClient constructs a client with baseURL, API key and request timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// UseRedisCache configures optional Redis caching for rate cards and the services catalog.
// Jobs are never cached: their timesheets keep changing until approval.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// GetJob fetches a job snapshot with its workers, vehicles and timesheets.
func (c *Client) GetJob(ctx context.Context, id models.ID) (*models.Job, error) {
	endpoint := fmt.Sprintf("%s/api/v1/jobs/%s", c.baseURL, url.PathEscape(id.String()))
	var job models.Job
	if err := c.doGet(ctx, endpoint, &job); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("job %s: %w", id, ErrJobNotFound)
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return &job, nil
}

// GetRateCard fetches every rate card row negotiated with a customer.
func (c *Client) GetRateCard(ctx context.Context, customerID models.ID) (*models.RateCard, error) {
	endpoint := fmt.Sprintf("%s/api/v1/customers/%s/rate-card", c.baseURL, url.PathEscape(customerID.String()))
	cacheKey := rateCardKey(customerID)
	var card models.RateCard

	if c.readCache(ctx, cacheKey, &card) {
		return &card, nil
	}

	if err := c.doGet(ctx, endpoint, &card); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("customer %s: %w", customerID, ErrRateCardNotFound)
		}
		return nil, fmt.Errorf("get rate card %s: %w", customerID, err)
	}
	if card.CustomerID == "" {
		card.CustomerID = customerID
	}
	c.writeCache(ctx, cacheKey, card)
	return &card, nil
}

// InvalidateRateCard drops a cached rate card so the next read hits the dashboard.
func (c *Client) InvalidateRateCard(ctx context.Context, customerID models.ID) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Del(ctx, rateCardKey(customerID)).Err()
}

// ListServices returns the services catalog used for tax-code fallback.
func (c *Client) ListServices(ctx context.Context) ([]models.Service, error) {
	endpoint := fmt.Sprintf("%s/api/v1/services", c.baseURL)
	cacheKey := "fieldbill:services"
	var wrap struct {
		Services []models.Service `json:"services"`
	}

	if c.readCache(ctx, cacheKey, &wrap) {
		return wrap.Services, nil
	}

	if err := c.doGet(ctx, endpoint, &wrap); err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	c.writeCache(ctx, cacheKey, wrap)
	return wrap.Services, nil
}

// HealthCheck checks if the dashboard API is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %d", resp.StatusCode)
	}
	return nil
}

func rateCardKey(customerID models.ID) string {
	return "fieldbill:ratecard:" + customerID.String()
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *Client) doGet(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return &StatusError{Method: req.Method, Path: req.URL.Path, Code: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}
