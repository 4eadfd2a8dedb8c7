package connectors

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/civintel/cityledger_backend/config"
	"github.com/civintel/cityledger_backend/core"
)

// CSVSeedConnector reads a local CSV of entity seed rows (license rolls,
// provider directories) using a configured column mapping.
type CSVSeedConnector struct{}

func (c *CSVSeedConnector) Fetch(ctx context.Context, scopeKey string, cfg config.ConnectorConfig) ([]Record, error) {
	f, err := os.Open(cfg.Filepath)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	source := cfg.SourceName
	if source == "" {
		source = "csv_seed"
	}
	return ReadSeedRows(f, source, cfg.Mapping)
}

// ReadSeedRows parses CSV rows into Records using a mapping of record field
// name -> CSV column header. Shared with the upload ingestion path.
func ReadSeedRows(r io.Reader, source string, mapping map[string]string) ([]Record, error) {
	rows, err := ReadCSV(r)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec := Record{Source: source, Raw: row}
		applyMapping(&rec, row, mapping)
		out = append(out, rec)
	}
	return out, nil
}

// ReadCSV parses a CSV document (tolerating a UTF-8 BOM) into header-keyed
// row maps.
func ReadCSV(r io.Reader) ([]map[string]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}

	var rows []map[string]string
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(fields) {
				row[col] = fields[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func applyMapping(rec *Record, row map[string]string, mapping map[string]string) {
	get := func(field string) string {
		col, ok := mapping[field]
		if !ok {
			return ""
		}
		return strings.TrimSpace(row[col])
	}
	rec.Name = get("name")
	rec.Address = get("address")
	rec.City = get("city")
	rec.State = get("state")
	rec.Zip = get("zip")
	rec.LicenseStatus = get("license_status")
	rec.LicenseID = get("license_id")
	rec.NPI = get("npi")
	if v := get("license_capacity"); v != "" {
		rec.LicenseCapacity = core.SafeInt(v)
	}
}
