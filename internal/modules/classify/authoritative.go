package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/custodian/internal/domain"
)

// LookupResult is the authoritative service's answer for one ticker. The
// service reports instrument-kind flags rather than our enum; SecurityType
// folds them into a canonical type.
type LookupResult struct {
	Ticker       string `json:"ticker"`
	IsFund       bool   `json:"isFund"`
	IsEtf        bool   `json:"isEtf"`
	IsEtc        bool   `json:"isEtc"`
	IsBond       bool   `json:"isBond"`
	IsCashMarker bool   `json:"isCashEquivalent"`
}

// SecurityType folds the result flags into a canonical security type.
// Flags are checked most-specific first; a result with no flags set is an
// ordinary equity.
func (r LookupResult) SecurityType() domain.SecurityType {
	switch {
	case r.IsCashMarker:
		return domain.SecurityTypeCash
	case r.IsEtc:
		return domain.SecurityTypeETC
	case r.IsEtf:
		return domain.SecurityTypeETF
	case r.IsFund:
		return domain.SecurityTypeMutualFund
	case r.IsBond:
		return domain.SecurityTypeBond
	default:
		return domain.SecurityTypeEquity
	}
}

// AuthoritativeClient is the resolver's view of the external classification
// lookup. Implementations must honor ctx cancellation.
type AuthoritativeClient interface {
	Lookup(ctx context.Context, ticker string) (*LookupResult, error)
}

// Client is the HTTP client for the authoritative classification service.
type Client struct {
	baseURL    string
	apiKey     string // optional - raises rate limits when set
	httpClient *http.Client
	retry      RetryPolicy
	timeout    time.Duration // per-call budget, applied per attempt
	log        zerolog.Logger
}

// NewClient creates an authoritative lookup client.
func NewClient(baseURL, apiKey string, timeout time.Duration, retry RetryPolicy, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			// The transport-level timeout is a backstop; per-attempt deadlines
			// come from the retry policy's attempt context.
			Timeout: 30 * time.Second,
		},
		retry:   retry,
		timeout: timeout,
		log:     log.With().Str("component", "classifier_client").Logger(),
	}
}

// Lookup resolves a single ticker, retrying per the policy. The per-call
// timeout applies to each attempt individually.
func (c *Client) Lookup(ctx context.Context, ticker string) (*LookupResult, error) {
	var result *LookupResult

	err := c.retry.Do(ctx, c.timeout, func(attemptCtx context.Context) error {
		res, err := c.doLookup(attemptCtx, ticker)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (c *Client) doLookup(ctx context.Context, ticker string) (*LookupResult, error) {
	body, err := json.Marshal(map[string]string{"ticker": ticker})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/classify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-KEY", c.apiKey)
	}

	c.log.Debug().Str("ticker", ticker).Msg("Classification lookup")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	var result LookupResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Ticker == "" {
		result.Ticker = ticker
	}

	return &result, nil
}
