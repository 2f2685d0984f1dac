package gridstats

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"
	"github.com/valyala/fasthttp"

	"github.com/pricelab/cfb-market/internal/platform/logging"
	"github.com/pricelab/cfb-market/internal/platform/resilience"
	"github.com/pricelab/cfb-market/internal/usecase"
)

const (
	defaultBaseURL = "https://api.gridstats.io/v1"
	defaultTimeout = 20 * time.Second
	maxBodyBytes   = 6 << 20
)

var (
	// ErrRateLimited marks 429 responses that survived every retry.
	ErrRateLimited = crerr.New("gridstats rate limited")
	// ErrNotFound marks 404 responses; these are never retried.
	ErrNotFound = crerr.New("gridstats resource not found")

	errTransient = crerr.New("gridstats transient failure")
)

type ClientConfig struct {
	BaseURL        string
	Token          string
	Timeout        time.Duration
	MaxRetries     int
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
}

// Client implements usecase.MarketDataProvider against the GridStats HTTP API.
type Client struct {
	http           *fasthttp.Client
	baseURL        string
	token          string
	timeout        time.Duration
	maxRetries     int
	logger         *logging.Logger
	breaker        *resilience.CircuitBreaker
	circuitEnabled bool
	flight         resilience.SingleFlight
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	breakerCfg := resilience.NormalizeCircuitBreakerConfig(cfg.CircuitBreaker)

	return &Client{
		http: &fasthttp.Client{
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
		baseURL:        baseURL,
		token:          strings.TrimSpace(cfg.Token),
		timeout:        timeout,
		maxRetries:     max(cfg.MaxRetries, 0),
		logger:         logger,
		breaker:        resilience.NewCircuitBreaker(breakerCfg),
		circuitEnabled: breakerCfg.Enabled,
	}
}

func (c *Client) FetchTeams(ctx context.Context, season int) ([]usecase.ExternalTeam, error) {
	var payload []teamPayload
	if err := c.doJSON(ctx, "/teams", map[string]string{"year": strconv.Itoa(season)}, &payload); err != nil {
		return nil, fmt.Errorf("fetch teams season=%d: %w", season, err)
	}

	out := make([]usecase.ExternalTeam, 0, len(payload))
	for _, item := range payload {
		if item.ID <= 0 || strings.TrimSpace(item.School) == "" {
			continue
		}
		out = append(out, usecase.ExternalTeam{
			ProviderID:          item.ID,
			School:              strings.TrimSpace(item.School),
			Conference:          strings.TrimSpace(item.Conference),
			Classification:      strings.ToLower(strings.TrimSpace(item.Classification)),
			ReturningProduction: item.ReturningProduction,
		})
	}
	return out, nil
}

func (c *Client) FetchTalent(ctx context.Context, season int) ([]usecase.ExternalTalent, error) {
	var payload []talentPayload
	if err := c.doJSON(ctx, "/talent", map[string]string{"year": strconv.Itoa(season)}, &payload); err != nil {
		return nil, fmt.Errorf("fetch talent season=%d: %w", season, err)
	}

	out := make([]usecase.ExternalTalent, 0, len(payload))
	for _, item := range payload {
		if strings.TrimSpace(item.School) == "" {
			continue
		}
		out = append(out, usecase.ExternalTalent{
			School: strings.TrimSpace(item.School),
			Talent: item.Talent,
		})
	}
	return out, nil
}

func (c *Client) FetchGames(ctx context.Context, season int, weeks []int) ([]usecase.ExternalGame, error) {
	var out []usecase.ExternalGame
	err := c.forWeeks(weeks, func(week *int) error {
		query := map[string]string{"year": strconv.Itoa(season)}
		if week != nil {
			query["week"] = strconv.Itoa(*week)
		}

		var payload []gamePayload
		if err := c.doJSON(ctx, "/games", query, &payload); err != nil {
			return fmt.Errorf("fetch games season=%d: %w", season, err)
		}
		for _, item := range payload {
			if item.ID <= 0 {
				continue
			}
			status := "scheduled"
			if item.Completed {
				status = "completed"
			}
			out = append(out, usecase.ExternalGame{
				ProviderID:         item.ID,
				Season:             item.Season,
				Week:               item.Week,
				SeasonType:         strings.TrimSpace(item.SeasonType),
				StartAt:            parseProviderTimestamp(item.StartDate),
				NeutralSite:        item.NeutralSite,
				ConferenceGame:     item.ConferenceGame,
				HomeSchool:         strings.TrimSpace(item.HomeTeam),
				AwaySchool:         strings.TrimSpace(item.AwayTeam),
				HomeClassification: strings.ToLower(strings.TrimSpace(item.HomeClassification)),
				AwayClassification: strings.ToLower(strings.TrimSpace(item.AwayClassification)),
				HomePoints:         item.HomePoints,
				AwayPoints:         item.AwayPoints,
				Status:             status,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FetchGameLines(ctx context.Context, season int, weeks []int) ([]usecase.ExternalGameLines, error) {
	var out []usecase.ExternalGameLines
	err := c.forWeeks(weeks, func(week *int) error {
		query := map[string]string{"year": strconv.Itoa(season)}
		if week != nil {
			query["week"] = strconv.Itoa(*week)
		}

		var payload []gameLinesPayload
		if err := c.doJSON(ctx, "/lines", query, &payload); err != nil {
			return fmt.Errorf("fetch lines season=%d: %w", season, err)
		}
		for _, item := range payload {
			if item.ID <= 0 {
				continue
			}
			set := usecase.ExternalGameLines{ProviderGameID: item.ID}
			for _, line := range item.Lines {
				observedAt := parseProviderTimestamp(line.LastUpdated)
				if line.Spread != nil || line.SpreadClose != nil {
					set.Quotes = append(set.Quotes, usecase.ExternalLineQuote{
						Book:       strings.TrimSpace(line.Provider),
						Market:     "spread",
						Value:      line.Spread,
						Closing:    line.SpreadClose,
						ObservedAt: observedAt,
					})
				}
				if line.OverUnder != nil || line.OverUnderClose != nil {
					set.Quotes = append(set.Quotes, usecase.ExternalLineQuote{
						Book:       strings.TrimSpace(line.Provider),
						Market:     "total",
						Value:      line.OverUnder,
						Closing:    line.OverUnderClose,
						ObservedAt: observedAt,
					})
				}
				// Books publish one price per side; each becomes its own
				// moneyline quote so favorite/dog dedup sees both.
				for _, price := range []*float64{line.HomeMoneyline, line.AwayMoneyline} {
					if price == nil {
						continue
					}
					set.Quotes = append(set.Quotes, usecase.ExternalLineQuote{
						Book:       strings.TrimSpace(line.Provider),
						Market:     "moneyline",
						Value:      price,
						ObservedAt: observedAt,
					})
				}
			}
			if len(set.Quotes) == 0 {
				continue
			}
			out = append(out, set)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FetchAdvancedStats(ctx context.Context, season int, weeks []int) ([]usecase.ExternalTeamGameStats, error) {
	var out []usecase.ExternalTeamGameStats
	err := c.forWeeks(weeks, func(week *int) error {
		query := map[string]string{"year": strconv.Itoa(season)}
		if week != nil {
			query["week"] = strconv.Itoa(*week)
		}

		var payload []advancedStatsPayload
		if err := c.doJSON(ctx, "/stats/game/advanced", query, &payload); err != nil {
			return fmt.Errorf("fetch advanced stats season=%d: %w", season, err)
		}
		for _, item := range payload {
			if item.GameID <= 0 || strings.TrimSpace(item.Team) == "" {
				continue
			}
			out = append(out, usecase.ExternalTeamGameStats{
				ProviderGameID:   item.GameID,
				School:           strings.TrimSpace(item.Team),
				OpponentSchool:   strings.TrimSpace(item.Opponent),
				Season:           item.Season,
				Week:             item.Week,
				OffEPA:           item.Offense.PPA,
				DefEPA:           item.Defense.PPA,
				OffSuccessRate:   item.Offense.SuccessRate,
				DefSuccessRate:   item.Defense.SuccessRate,
				OffExplosiveness: item.Offense.Explosiveness,
				DefExplosiveness: item.Defense.Explosiveness,
				OffPointsPerOpp:  item.Offense.PointsPerOpp,
				DefPointsPerOpp:  item.Defense.PointsPerOpp,
				// Havoc created lives on the defensive unit; the offensive
				// unit's havoc is what the team allowed.
				Havoc:        item.Defense.Havoc.Total,
				HavocAllowed: item.Offense.Havoc.Total,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// forWeeks runs fn once per requested week, or once with no week filter when
// the caller wants the whole season.
func (c *Client) forWeeks(weeks []int, fn func(week *int) error) error {
	if len(weeks) == 0 {
		return fn(nil)
	}
	for _, week := range weeks {
		w := week
		if err := fn(&w); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, path string, query map[string]string, target any) error {
	if c.circuitEnabled {
		if err := c.breaker.Allow(); err != nil {
			c.logger.WarnContext(ctx, "gridstats circuit breaker rejected request", "state", c.breaker.State())
			return fmt.Errorf("%w: market data provider is temporarily unavailable", usecase.ErrDependencyUnavailable)
		}
	}

	values := url.Values{}
	for key, value := range query {
		values.Set(key, value)
	}
	fullURL := c.baseURL + path
	if encoded := values.Encode(); encoded != "" {
		fullURL += "?" + encoded
	}

	out, err, _ := c.flight.Do(fullURL, func() (any, error) {
		raw, reqErr := c.executeRequest(ctx, fullURL)
		if c.circuitEnabled {
			if reqErr != nil && isCircuitFailure(reqErr) {
				c.breaker.RecordFailure()
			} else {
				c.breaker.RecordSuccess()
			}
		}
		return raw, reqErr
	})
	if err != nil {
		return err
	}

	raw, ok := out.([]byte)
	if !ok {
		return fmt.Errorf("unexpected response payload type %T", out)
	}
	if err := sonic.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode provider payload: %w", err)
	}
	return nil
}

func (c *Client) executeRequest(ctx context.Context, fullURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, retryable, err := c.doOnce(fullURL)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if !retryable || attempt == c.maxRetries {
			break
		}

		backoff := time.Duration(attempt+1) * 500 * time.Millisecond
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("provider request failed")
	}
	c.logger.WarnContext(ctx, "gridstats request failed", "url", fullURL, "error", lastErr)
	return nil, lastErr
}

func (c *Client) doOnce(fullURL string) ([]byte, bool, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(fullURL)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	if c.token != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+c.token)
	}

	if err := c.http.DoTimeout(req, resp, c.timeout); err != nil {
		return nil, true, fmt.Errorf("%w: send request: %s", errTransient, c.sanitize(err.Error()))
	}

	status := resp.StatusCode()
	body := resp.Body()
	if len(body) > maxBodyBytes {
		body = body[:maxBodyBytes]
	}
	// The response object goes back to the pool, so the body must be copied.
	raw := append([]byte(nil), body...)

	switch {
	case status >= 200 && status < 300:
		return raw, false, nil
	case status == fasthttp.StatusTooManyRequests:
		return nil, true, fmt.Errorf("%w: status=%d", ErrRateLimited, status)
	case status == fasthttp.StatusNotFound:
		return nil, false, fmt.Errorf("%w: status=%d", ErrNotFound, status)
	case status >= 500:
		return nil, true, fmt.Errorf("%w: provider status=%d body=%s", errTransient, status, abbreviateBody(raw))
	default:
		return nil, false, fmt.Errorf("provider status=%d body=%s", status, abbreviateBody(raw))
	}
}

func (c *Client) sanitize(value string) string {
	if c.token == "" {
		return value
	}
	return strings.ReplaceAll(value, c.token, "REDACTED")
}

func isCircuitFailure(err error) bool {
	return crerr.Is(err, errTransient) || crerr.Is(err, ErrRateLimited)
}

func abbreviateBody(raw []byte) string {
	const limit = 256
	value := strings.TrimSpace(string(raw))
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
