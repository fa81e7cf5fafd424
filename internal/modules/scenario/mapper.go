// Package scenario maps security types onto risk scenarios used by
// downstream stress tooling. The mapping table is operator-provided and
// loaded at startup; serving without one would silently zero every
// position's risk contribution, so an empty table refuses to start.
package scenario

import (
	"fmt"

	"github.com/aristath/custodian/internal/config"
	"github.com/aristath/custodian/internal/domain"
)

// Scenario is the risk bucket a security type belongs to.
type Scenario struct {
	Name     string
	Severity float64
}

// Mapper resolves security types to scenarios. It is immutable after
// construction and safe for concurrent use.
type Mapper struct {
	byType   map[domain.SecurityType]Scenario
	fallback Scenario
}

// NewMapper builds a mapper from the loaded scenario table. The table must
// be non-empty and must cover EQUITY, which doubles as the fallback bucket
// for types the table does not mention.
func NewMapper(rows []config.ScenarioRow) (*Mapper, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("scenario table is empty")
	}

	byType := make(map[domain.SecurityType]Scenario, len(rows))
	for _, row := range rows {
		securityType := domain.SecurityType(row.SecurityType)
		if !securityType.Valid() {
			return nil, fmt.Errorf("scenario table references unknown security type %q", row.SecurityType)
		}
		byType[securityType] = Scenario{Name: row.Scenario, Severity: row.Severity}
	}

	fallback, ok := byType[domain.SecurityTypeEquity]
	if !ok {
		return nil, fmt.Errorf("scenario table must map EQUITY, it is the fallback bucket")
	}

	return &Mapper{byType: byType, fallback: fallback}, nil
}

// Map returns the scenario for a security type. Unmapped types, including
// UNKNOWN, get the equity scenario: over-stating risk is recoverable,
// dropping a position from the stress run is not.
func (m *Mapper) Map(securityType domain.SecurityType) Scenario {
	if s, ok := m.byType[securityType]; ok {
		return s
	}
	return m.fallback
}

// Annotate stamps each consolidated position with its scenario.
func (m *Mapper) Annotate(positions []domain.CanonicalPosition) {
	for i := range positions {
		s := m.Map(positions[i].SecurityType)
		positions[i].ScenarioName = s.Name
		positions[i].Severity = s.Severity
	}
}
