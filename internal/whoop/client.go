package whoop

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"whoopsync/internal/etl"
	"whoopsync/internal/schema"
)

// ── Whoop API client ───────────────────────────────────────
// Wire client for the token-authenticated paginated REST API. Owns
// pagination-loop termination and raw-JSON flattening into a batch.

// apiTimeLayout is the timestamp format the API expects for the
// start/end query parameters (ISO-8601, UTC, millisecond precision).
const apiTimeLayout = "2006-01-02T15:04:05.000Z"

// DefaultPageSize is the per-request record limit when none is configured.
const DefaultPageSize = 25

// endpoints maps record types to API paths. The cycle endpoint lives
// on a distinct base URL from the other three.
var endpoints = map[schema.RecordType]string{
	schema.RecordCycle:    "cycle",
	schema.RecordSleep:    "activity/sleep",
	schema.RecordRecovery: "recovery",
	schema.RecordWorkout:  "activity/workout",
}

// TokenProvider supplies a live bearer token for each request.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// FetchError reports a non-2xx response or transport failure. No
// partial batch is salvaged when it occurs.
type FetchError struct {
	RecordType schema.RecordType
	StatusCode int
	Body       string
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.RecordType, e.Err)
	}
	return fmt.Sprintf("fetch %s: http %d: %s", e.RecordType, e.StatusCode, e.Body)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Client fetches records from the Whoop API.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	cyclesBaseURL string
	tokens        TokenProvider
	limiter       *rate.Limiter
	pageSize      int
}

// Options configures a Client.
type Options struct {
	BaseURL       string
	CyclesBaseURL string
	PageSize      int
	// RateLimitRPS caps requests per second against the API. <=0 disables.
	RateLimitRPS float64
}

// NewClient creates a Client using the given token provider.
func NewClient(tokens TokenProvider, opts Options) *Client {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	var limiter *rate.Limiter
	if opts.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), 1)
	}
	return &Client{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		baseURL:       strings.TrimSuffix(opts.BaseURL, "/") + "/",
		cyclesBaseURL: strings.TrimSuffix(opts.CyclesBaseURL, "/") + "/",
		tokens:        tokens,
		limiter:       limiter,
		pageSize:      pageSize,
	}
}

type pageResponse struct {
	Records   []map[string]any `json:"records"`
	NextToken *string          `json:"next_token"`
}

// FetchAll retrieves every record of a type within the window,
// following the next_token chain to exhaustion. Page order is
// preserved; records are flattened to dotted paths. Workout records
// whose score is absent are dropped before flattening (unscored
// activities such as stretching are not valid workout facts).
func (c *Client) FetchAll(ctx context.Context, rt schema.RecordType, window etl.Window) (etl.Batch, error) {
	endpoint, ok := endpoints[rt]
	if !ok {
		return nil, &FetchError{RecordType: rt, Err: fmt.Errorf("no endpoint for record type")}
	}

	base := c.baseURL
	if rt == schema.RecordCycle {
		base = c.cyclesBaseURL
	}

	var raw []map[string]any
	nextToken := ""
	for {
		page, err := c.getPage(ctx, rt, base+endpoint, window, nextToken)
		if err != nil {
			return nil, err
		}
		raw = append(raw, page.Records...)
		if page.NextToken == nil || *page.NextToken == "" {
			break
		}
		nextToken = *page.NextToken
	}

	if rt == schema.RecordWorkout {
		raw = dropUnscored(raw)
	}

	batch := make(etl.Batch, 0, len(raw))
	for _, rec := range raw {
		batch = append(batch, etl.Record{Data: flatten(rec, "")})
	}
	return batch, nil
}

func (c *Client) getPage(ctx context.Context, rt schema.RecordType, endpointURL string, window etl.Window, nextToken string) (*pageResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &FetchError{RecordType: rt, Err: err}
		}
	}

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("start", window.Start.UTC().Format(apiTimeLayout))
	params.Set("end", window.End.UTC().Format(apiTimeLayout))
	params.Set("limit", fmt.Sprint(c.pageSize))
	if nextToken != "" {
		params.Set("nextToken", nextToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &FetchError{RecordType: rt, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{RecordType: rt, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &FetchError{RecordType: rt, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var page pageResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, &FetchError{RecordType: rt, Err: fmt.Errorf("decode response: %w", err)}
	}
	return &page, nil
}

// dropUnscored removes records whose "score" object is absent or null.
func dropUnscored(records []map[string]any) []map[string]any {
	kept := records[:0]
	for _, rec := range records {
		if score, ok := rec["score"]; ok && score != nil {
			kept = append(kept, rec)
		}
	}
	return kept
}

// flatten joins nested object keys into dotted paths. Array values are
// serialized in place; the API does not nest arrays within a record in
// paths consumed downstream.
func flatten(m map[string]any, prefix string) map[string]any {
	flat := make(map[string]any, len(m))
	for k, v := range m {
		key := prefix + k
		switch nested := v.(type) {
		case map[string]any:
			for nk, nv := range flatten(nested, key+".") {
				flat[nk] = nv
			}
		case []any:
			b, _ := json.Marshal(nested)
			flat[key] = string(b)
		default:
			flat[key] = v
		}
	}
	return flat
}
