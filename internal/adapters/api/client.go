// Package api implements ApiClient: the retrying, rate-limited request
// primitive every mission funnels its upstream calls through. Every call
// acquires exactly one scheduler token before it sends a request.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/andrescamacho/fleetcmd/internal/domain/shared"
	"github.com/andrescamacho/fleetcmd/internal/fleet"
)

// backoffSchedule is the indexed retry backoff: 5,10,20,40,60s, max 5
// attempts.
var backoffSchedule = []time.Duration{
	5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second, 60 * time.Second,
}

const maxAttempts = 5

// TokenAcquirer is the scheduler capability the client gates every request
// through. Satisfied by *scheduler.Scheduler.
type TokenAcquirer interface {
	Acquire(ctx context.Context, priority fleet.Priority) error
}

// Metrics is the optional Prometheus sink for request counters/latency.
type Metrics interface {
	RecordRequest(method, path string, statusCode int, duration time.Duration)
	RecordRetry(method, path, reason string)
}

// Client is the single per-process ApiClient implementation.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	scheduler  TokenAcquirer
	breaker    *CircuitBreaker
	clock      shared.Clock
	metrics    Metrics
}

// Config configures a Client.
type Config struct {
	BaseURL          string
	Token            string
	Timeout          time.Duration
	CircuitThreshold int
	CircuitCooldown  time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL:          "https://api.spacetraders.io/v2",
		Timeout:          30 * time.Second,
		CircuitThreshold: 10,
		CircuitCooldown:  120 * time.Second,
	}
}

// New creates a Client. clock and metrics may be nil; a nil clock uses
// shared.RealClock and nil metrics skips recording.
func New(cfg Config, scheduler TokenAcquirer, clock shared.Clock, metrics Metrics) *Client {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		scheduler:  scheduler,
		breaker:    NewCircuitBreaker(cfg.CircuitThreshold, cfg.CircuitCooldown, clock),
		clock:      clock,
		metrics:    metrics,
	}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Meta  *PageMeta       `json:"meta"`
	Error json.RawMessage `json:"error"`
}

// do performs one logical call: acquire a token, retry per the indexed
// backoff schedule, and surface a typed ApiError on terminal failure.
func (c *Client) do(ctx context.Context, method, path string, priority fleet.Priority, body, out interface{}) (*PageMeta, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := c.breaker.BeforeAttempt(ctx); err != nil {
			return nil, err
		}
		if err := c.scheduler.Acquire(ctx, priority); err != nil {
			return nil, err
		}

		start := c.clock.Now()
		meta, apiErr, transportErr := c.attempt(ctx, method, path, body, out)
		duration := c.clock.Now().Sub(start)
		statusCode := 0
		if apiErr != nil {
			statusCode = apiErr.Code
		}
		if c.metrics != nil {
			c.metrics.RecordRequest(method, path, statusCode, duration)
		}

		if transportErr != nil {
			lastErr = transportErr
			c.breaker.RecordFailure()
			if !c.sleepBeforeRetry(ctx, attempt, 0, "transport") {
				return nil, transportErr
			}
			continue
		}

		if apiErr == nil {
			c.breaker.RecordSuccess()
			return meta, nil
		}

		if apiErr.IsRateLimited() {
			lastErr = apiErr
			retryAfter := retryAfterFromData(apiErr.Data)
			if !c.sleepBeforeRetry(ctx, attempt, retryAfter, "rate_limited") {
				return nil, apiErr
			}
			continue
		}

		if apiErr.IsServerTransient() {
			lastErr = apiErr
			c.breaker.RecordFailure()
			if !c.sleepBeforeRetry(ctx, attempt, 0, "server_transient") {
				return nil, apiErr
			}
			continue
		}

		// Client-operational 4xx outside the 429 class: not retried.
		return nil, apiErr
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("max retries exceeded")
}

// sleepBeforeRetry waits the scheduled (or server-supplied) backoff,
// respecting ctx cancellation, and reports whether another attempt remains.
func (c *Client) sleepBeforeRetry(ctx context.Context, attempt int, retryAfter time.Duration, reason string) bool {
	if attempt >= maxAttempts-1 {
		return false
	}
	if c.metrics != nil {
		c.metrics.RecordRetry("", "", reason)
	}
	delay := backoffSchedule[attempt]
	if retryAfter > 0 {
		delay = retryAfter
	}
	select {
	case <-ctx.Done():
		return false
	default:
	}
	c.clock.Sleep(delay)
	return true
}

func retryAfterFromData(data map[string]interface{}) time.Duration {
	if data == nil {
		return 0
	}
	if v, ok := data["retryAfter"].(float64); ok {
		return time.Duration(v) * time.Second
	}
	return 0
}

// attempt performs exactly one HTTP round trip and classifies the result.
func (c *Client) attempt(ctx context.Context, method, path string, body, out interface{}) (*PageMeta, *ApiError, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("transport: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil, nil
	}

	var env envelope
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &env)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseApiError(resp.StatusCode, env.Error), nil
	}

	if len(env.Error) > 0 {
		return nil, parseApiError(resp.StatusCode, env.Error), nil
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, nil, fmt.Errorf("unmarshal response data: %w", err)
		}
	}

	return env.Meta, nil, nil
}

// parseApiError normalizes an upstream error payload, which is either an
// {code,message,data} object or a bare string, into ApiError.
func parseApiError(httpStatus int, raw json.RawMessage) *ApiError {
	if len(raw) == 0 {
		return &ApiError{Code: httpStatus, Message: fmt.Sprintf("http status %d", httpStatus)}
	}

	var structured struct {
		Code    int                    `json:"code"`
		Message string                 `json:"message"`
		Data    map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(raw, &structured); err == nil && structured.Code != 0 {
		return &ApiError{Code: structured.Code, Message: structured.Message, Data: structured.Data}
	}

	var bare string
	if err := json.Unmarshal(raw, &bare); err == nil {
		return &ApiError{Code: httpStatus, Message: bare, Data: map[string]interface{}{}}
	}

	return &ApiError{Code: httpStatus, Message: string(raw), Data: map[string]interface{}{}}
}

// GetPaginated iterates page=1,2,... until returned items cover the
// reported total or a page comes back empty, returning the concatenated
// items. fetchPage performs one page's GET and returns its raw items array
// plus the page meta.
func (c *Client) GetPaginated(ctx context.Context, fetchPage func(page int) (json.RawMessage, *PageMeta, error)) ([]json.RawMessage, error) {
	var all []json.RawMessage
	for page := 1; ; page++ {
		items, meta, err := fetchPage(page)
		if err != nil {
			return nil, err
		}
		var pageItems []json.RawMessage
		if err := json.Unmarshal(items, &pageItems); err != nil {
			return nil, fmt.Errorf("unmarshal page items: %w", err)
		}
		if len(pageItems) == 0 {
			break
		}
		all = append(all, pageItems...)
		if meta != nil && len(all) >= meta.Total {
			break
		}
	}
	return all, nil
}

// --- Call-site operations (spec §6) ---

func (c *Client) GetAgent(ctx context.Context) (*Agent, error) {
	var agent Agent
	_, err := c.do(ctx, http.MethodGet, "/my/agent", fleet.PriorityNormal, nil, &agent)
	return &agent, err
}

func (c *Client) ListShips(ctx context.Context) ([]Ship, error) {
	var ships []Ship
	_, err := c.do(ctx, http.MethodGet, "/my/ships?limit=20", fleet.PriorityNormal, nil, &ships)
	return ships, err
}

func (c *Client) GetShip(ctx context.Context, symbol string) (*Ship, error) {
	var ship Ship
	_, err := c.do(ctx, http.MethodGet, "/my/ships/"+symbol, fleet.PriorityNormal, nil, &ship)
	return &ship, err
}

func (c *Client) Orbit(ctx context.Context, symbol string) error {
	_, err := c.do(ctx, http.MethodPost, "/my/ships/"+symbol+"/orbit", fleet.PriorityHigh, nil, nil)
	return err
}

func (c *Client) Dock(ctx context.Context, symbol string) error {
	_, err := c.do(ctx, http.MethodPost, "/my/ships/"+symbol+"/dock", fleet.PriorityHigh, nil, nil)
	return err
}

func (c *Client) Navigate(ctx context.Context, symbol, to string) (*ShipNav, error) {
	var result struct {
		Nav ShipNav `json:"nav"`
	}
	_, err := c.do(ctx, http.MethodPost, "/my/ships/"+symbol+"/navigate", fleet.PriorityHigh,
		map[string]string{"waypointSymbol": to}, &result)
	return &result.Nav, err
}

func (c *Client) SetFlightMode(ctx context.Context, symbol, mode string) error {
	_, err := c.do(ctx, http.MethodPatch, "/my/ships/"+symbol+"/nav", fleet.PriorityHigh,
		map[string]string{"flightMode": mode}, nil)
	return err
}

func (c *Client) Refuel(ctx context.Context, symbol string, fromCargo bool) error {
	body := map[string]interface{}{}
	if fromCargo {
		body["fromCargo"] = true
	}
	_, err := c.do(ctx, http.MethodPost, "/my/ships/"+symbol+"/refuel", fleet.PriorityNormal, body, nil)
	return err
}

func (c *Client) PurchaseCargo(ctx context.Context, symbol, good string, units int) error {
	_, err := c.do(ctx, http.MethodPost, "/my/ships/"+symbol+"/purchase", fleet.PriorityHigh,
		map[string]interface{}{"symbol": good, "units": units}, nil)
	return err
}

func (c *Client) SellCargo(ctx context.Context, symbol, good string, units int) error {
	_, err := c.do(ctx, http.MethodPost, "/my/ships/"+symbol+"/sell", fleet.PriorityHigh,
		map[string]interface{}{"symbol": good, "units": units}, nil)
	return err
}

func (c *Client) Jettison(ctx context.Context, symbol, good string, units int) error {
	_, err := c.do(ctx, http.MethodPost, "/my/ships/"+symbol+"/jettison", fleet.PriorityNormal,
		map[string]interface{}{"symbol": good, "units": units}, nil)
	return err
}

func (c *Client) Transfer(ctx context.Context, fromShip, toShip, good string, units int) error {
	_, err := c.do(ctx, http.MethodPost, "/my/ships/"+fromShip+"/transfer", fleet.PriorityNormal,
		map[string]interface{}{"tradeSymbol": good, "units": units, "shipSymbol": toShip}, nil)
	return err
}

func (c *Client) GetCargo(ctx context.Context, symbol string) (*Cargo, error) {
	var cargo Cargo
	_, err := c.do(ctx, http.MethodGet, "/my/ships/"+symbol+"/cargo", fleet.PriorityLow, nil, &cargo)
	return &cargo, err
}

func (c *Client) GetCooldown(ctx context.Context, symbol string) (*Cooldown, error) {
	var cd Cooldown
	_, err := c.do(ctx, http.MethodGet, "/my/ships/"+symbol+"/cooldown", fleet.PriorityLow, nil, &cd)
	return &cd, err
}

func (c *Client) GetSystem(ctx context.Context, symbol string) (json.RawMessage, error) {
	var raw json.RawMessage
	_, err := c.do(ctx, http.MethodGet, "/systems/"+symbol, fleet.PriorityLow, nil, &raw)
	return raw, err
}

func (c *Client) ListWaypoints(ctx context.Context, system string) ([]Waypoint, error) {
	var waypoints []Waypoint
	_, err := c.do(ctx, http.MethodGet, "/systems/"+system+"/waypoints?limit=20", fleet.PriorityLow, nil, &waypoints)
	return waypoints, err
}

func (c *Client) GetWaypoint(ctx context.Context, system, waypoint string) (*Waypoint, error) {
	var wp Waypoint
	_, err := c.do(ctx, http.MethodGet, "/systems/"+system+"/waypoints/"+waypoint, fleet.PriorityLow, nil, &wp)
	return &wp, err
}

func (c *Client) GetMarket(ctx context.Context, system, waypoint string) (*Market, error) {
	var m Market
	_, err := c.do(ctx, http.MethodGet, "/systems/"+system+"/waypoints/"+waypoint+"/market", fleet.PriorityNormal, nil, &m)
	return &m, err
}

func (c *Client) GetShipyard(ctx context.Context, system, waypoint string) (json.RawMessage, error) {
	var raw json.RawMessage
	_, err := c.do(ctx, http.MethodGet, "/systems/"+system+"/waypoints/"+waypoint+"/shipyard", fleet.PriorityLow, nil, &raw)
	return raw, err
}

func (c *Client) Extract(ctx context.Context, symbol string, survey *Survey) (json.RawMessage, error) {
	var raw json.RawMessage
	_, err := c.do(ctx, http.MethodPost, "/my/ships/"+symbol+"/extract", fleet.PriorityNormal, survey, &raw)
	return raw, err
}

func (c *Client) SurveyWaypoint(ctx context.Context, symbol string) ([]Survey, error) {
	var result struct {
		Surveys []Survey `json:"surveys"`
	}
	_, err := c.do(ctx, http.MethodPost, "/my/ships/"+symbol+"/survey", fleet.PriorityNormal, nil, &result)
	return result.Surveys, err
}

func (c *Client) ListContracts(ctx context.Context) ([]Contract, error) {
	var contracts []Contract
	_, err := c.do(ctx, http.MethodGet, "/my/contracts?limit=20", fleet.PriorityNormal, nil, &contracts)
	return contracts, err
}

func (c *Client) GetContract(ctx context.Context, id string) (*Contract, error) {
	var contract Contract
	_, err := c.do(ctx, http.MethodGet, "/my/contracts/"+id, fleet.PriorityNormal, nil, &contract)
	return &contract, err
}

func (c *Client) AcceptContract(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodPost, "/my/contracts/"+id+"/accept", fleet.PriorityHigh, nil, nil)
	return err
}

func (c *Client) DeliverContract(ctx context.Context, contractID, shipSymbol, good string, units int) error {
	_, err := c.do(ctx, http.MethodPost, "/my/contracts/"+contractID+"/deliver", fleet.PriorityHigh,
		map[string]interface{}{"shipSymbol": shipSymbol, "tradeSymbol": good, "units": units}, nil)
	return err
}

func (c *Client) FulfillContract(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodPost, "/my/contracts/"+id+"/fulfill", fleet.PriorityHigh, nil, nil)
	return err
}

func (c *Client) NegotiateContract(ctx context.Context, shipSymbol string) (*Contract, error) {
	var result struct {
		Contract Contract `json:"contract"`
	}
	_, err := c.do(ctx, http.MethodPost, "/my/ships/"+shipSymbol+"/negotiate/contract", fleet.PriorityHigh, nil, &result)
	return &result.Contract, err
}

func (c *Client) GetConstruction(ctx context.Context, system, waypoint string) (*Construction, error) {
	var con Construction
	_, err := c.do(ctx, http.MethodGet, "/systems/"+system+"/waypoints/"+waypoint+"/construction", fleet.PriorityNormal, nil, &con)
	return &con, err
}

func (c *Client) SupplyConstruction(ctx context.Context, system, waypoint, shipSymbol, good string, units int) (*Construction, error) {
	var con Construction
	_, err := c.do(ctx, http.MethodPost, "/systems/"+system+"/waypoints/"+waypoint+"/construction/supply", fleet.PriorityHigh,
		map[string]interface{}{"shipSymbol": shipSymbol, "tradeSymbol": good, "units": units}, &con)
	return &con, err
}
