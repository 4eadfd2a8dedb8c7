package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/civintel/cityledger_backend/config"
)

// DefaultAwardSearchBaseURL is the federal award-search API root.
const DefaultAwardSearchBaseURL = "https://api.usaspending.gov"

// AwardSearchConnector queries a remote award-search API for payments to
// configured recipient keywords and emits payment-shaped records.
type AwardSearchConnector struct {
	// Client defaults to a 30s-timeout client when nil.
	Client *http.Client
}

type awardSearchRequest struct {
	RecipientSearchText []string `json:"recipient_search_text"`
	FiscalYears         []int    `json:"fy"`
	Page                int      `json:"page"`
	Limit               int      `json:"limit"`
}

type awardSearchResponse struct {
	Results []struct {
		RecipientName   string   `json:"recipient_name"`
		TotalObligation *float64 `json:"total_obligation"`
		FiscalYear      *int     `json:"fy"`
	} `json:"results"`
}

func (c *AwardSearchConnector) Fetch(ctx context.Context, scopeKey string, cfg config.ConnectorConfig) ([]Record, error) {
	if len(cfg.RecipientKeywords) == 0 {
		return nil, nil
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultAwardSearchBaseURL
	}
	limit := cfg.LimitPerQuery
	if limit <= 0 {
		limit = 50
	}
	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	var out []Record
	for _, kw := range cfg.RecipientKeywords {
		payload, err := json.Marshal(awardSearchRequest{
			RecipientSearchText: []string{kw},
			FiscalYears:         cfg.FiscalYears,
			Page:                1,
			Limit:               limit,
		})
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			base+"/api/v2/recipient/awards/", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("award search %q: %w", kw, err)
		}
		var parsed awardSearchResponse
		err = json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("award search %q: status %d", kw, resp.StatusCode)
		}
		if err != nil {
			return nil, fmt.Errorf("award search %q: decode: %w", kw, err)
		}

		for _, row := range parsed.Results {
			amount := decimal.Zero
			if row.TotalObligation != nil {
				amount = decimal.NewFromFloat(*row.TotalObligation)
			}
			fy := ""
			if row.FiscalYear != nil {
				fy = strconv.Itoa(*row.FiscalYear)
			}
			out = append(out, Record{
				Source:       "award_search",
				EvidenceType: "payment",
				Name:         row.RecipientName,
				Amount:       amount,
				FiscalYear:   fy,
				Payer:        "US Federal",
				Program:      "federal_awards",
				Title:        "Award-search payments summary",
				Raw: map[string]string{
					"recipient_name":   row.RecipientName,
					"total_obligation": amount.String(),
					"fy":               fy,
				},
			})
		}
	}
	return out, nil
}
