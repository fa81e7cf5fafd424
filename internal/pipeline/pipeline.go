// Package pipeline composes normalization, consolidation, classification
// and scenario annotation into the single request-level entry point.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/custodian/internal/config"
	"github.com/aristath/custodian/internal/domain"
	"github.com/aristath/custodian/internal/modules/classify"
	"github.com/aristath/custodian/internal/modules/consolidate"
	"github.com/aristath/custodian/internal/modules/normalize"
	"github.com/aristath/custodian/internal/modules/scenario"
)

// ProviderPayload is one provider's raw position dump as received from the
// ingest surface.
type ProviderPayload struct {
	ProviderID string          `json:"provider_id"`
	Payload    json.RawMessage `json:"payload"`
}

// Result is the annotated consolidated portfolio plus every warning
// collected along the way.
type Result struct {
	RunID     uuid.UUID                  `json:"run_id"`
	Positions []domain.CanonicalPosition `json:"positions"`
	Warnings  []domain.Warning           `json:"warnings"`
	Elapsed   time.Duration              `json:"elapsed"`
}

// Pipeline wires the stages together. Stateless per request apart from the
// classification caches; safe for concurrent Run calls.
type Pipeline struct {
	normalizers *normalize.Registry
	priorities  *config.PriorityTable
	resolver    *classify.Resolver
	scenarios   *scenario.Mapper
	log         zerolog.Logger
}

// New creates a pipeline.
func New(normalizers *normalize.Registry, priorities *config.PriorityTable, resolver *classify.Resolver, scenarios *scenario.Mapper, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		normalizers: normalizers,
		priorities:  priorities,
		resolver:    resolver,
		scenarios:   scenarios,
		log:         log.With().Str("component", "pipeline").Logger(),
	}
}

// Run consolidates one batch of provider payloads. Per-record and per-ticker
// problems surface as warnings on a successful result; the only errors are
// structural (a provider ID with no registered normalizer, undecodable
// payload envelopes). An empty payload list is a valid empty portfolio.
func (p *Pipeline) Run(ctx context.Context, payloads []ProviderPayload) (*Result, error) {
	started := time.Now()
	result := &Result{
		RunID:     uuid.New(),
		Positions: []domain.CanonicalPosition{},
	}
	log := p.log.With().Str("run_id", result.RunID.String()).Logger()

	if len(payloads) == 0 {
		result.Warnings = append(result.Warnings, domain.Warningf(
			domain.WarnEmptyInput, "", "", "no provider payloads submitted"))
		result.Elapsed = time.Since(started)
		return result, nil
	}

	// Stage 1: normalize every payload into the shared position shape.
	var positions []domain.Position
	for _, payload := range payloads {
		normalizer, err := p.normalizers.Get(payload.ProviderID)
		if err != nil {
			return nil, err
		}

		normalized, warns, err := normalizer.Normalize(payload.Payload)
		if err != nil {
			return nil, fmt.Errorf("normalize %s payload: %w", payload.ProviderID, err)
		}

		positions = append(positions, normalized...)
		result.Warnings = append(result.Warnings, warns...)
	}

	// Stage 2: consolidate under a priority snapshot pinned for the whole
	// run, so a concurrent reload cannot tear this batch.
	snapshot := p.priorities.Snapshot()
	consolidated, warns := consolidate.Consolidate(positions, snapshot)
	result.Warnings = append(result.Warnings, warns...)

	// Stage 3: one batched classification for the distinct non-cash tickers.
	// Cash groups carry their type from consolidation. Diverted
	// mixed-currency keys resolve under their base symbol: the suffixed key
	// is synthetic and would only waste (and fail) an authoritative call.
	var tickers []string
	hints := make(map[string]domain.SecurityType)
	for _, pos := range consolidated {
		if pos.SecurityType == domain.SecurityTypeCash {
			continue
		}
		base := consolidate.BaseTicker(pos.Ticker)
		tickers = append(tickers, base)
		hints[base] = pos.TypeHint
	}

	types, warns := p.resolver.Resolve(ctx, tickers, hints)
	result.Warnings = append(result.Warnings, warns...)

	for i := range consolidated {
		if consolidated[i].SecurityType == domain.SecurityTypeCash {
			continue
		}
		if t, ok := types[consolidate.BaseTicker(consolidated[i].Ticker)]; ok {
			consolidated[i].SecurityType = t
		} else {
			consolidated[i].SecurityType = domain.SecurityTypeUnknown
		}
	}

	// Stage 4: stamp risk scenarios.
	p.scenarios.Annotate(consolidated)

	result.Positions = consolidated
	result.Elapsed = time.Since(started)

	log.Info().
		Int("providers", len(payloads)).
		Int("raw_positions", len(positions)).
		Int("consolidated", len(consolidated)).
		Int("warnings", len(result.Warnings)).
		Dur("elapsed", result.Elapsed).
		Msg("Consolidation run completed")

	return result, nil
}
