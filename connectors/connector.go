package connectors

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/civintel/cityledger_backend/config"
)

// Record is one raw record produced by a connector, with named optional
// fields instead of a loose key/value mapping. Blank means absent. Raw holds
// the uninterpreted source row for audit.
type Record struct {
	Source       string
	EvidenceType string

	Name    string
	Address string
	City    string
	State   string
	Zip     string

	LicenseStatus   string
	LicenseCapacity *int
	LicenseID       string
	NPI             string

	Amount     decimal.Decimal
	FiscalYear string
	Payer      string
	Program    string

	Title string
	URL   string

	Raw map[string]string
}

// Connector fetches raw records for a scope. A connector failure must not
// abort ingestion of sibling connectors; callers catch and skip.
type Connector interface {
	Fetch(ctx context.Context, scopeKey string, cfg config.ConnectorConfig) ([]Record, error)
}

// ForType returns the connector implementation for a configured type.
func ForType(ctype string) (Connector, error) {
	switch ctype {
	case "csv_seed":
		return &CSVSeedConnector{}, nil
	case "award_search":
		return &AwardSearchConnector{}, nil
	default:
		return nil, fmt.Errorf("unknown connector type %q", ctype)
	}
}
