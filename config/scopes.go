package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
)

// ConnectorConfig describes one configured source for a scope. Fields beyond
// Type are connector-specific; unused ones stay zero.
type ConnectorConfig struct {
	Type       string `json:"type" validate:"required,oneof=csv_seed award_search"`
	EntityType string `json:"entity_type" validate:"omitempty,oneof=childcare health other"`
	SourceName string `json:"source_name"`

	// csv_seed
	Filepath string            `json:"filepath"`
	Mapping  map[string]string `json:"mapping"`

	// award_search
	BaseURL           string   `json:"base_url"`
	RecipientKeywords []string `json:"recipient_keywords"`
	FiscalYears       []int    `json:"fiscal_years"`
	LimitPerQuery     int      `json:"limit_per_query" validate:"gte=0"`
}

// Scope is one municipality-level partition and its configured sources.
type Scope struct {
	DisplayName string                     `json:"display_name"`
	Connectors  map[string]ConnectorConfig `json:"connectors" validate:"dive"`
}

var scopes map[string]Scope

// LoadScopeConfig reads and validates the scope configuration JSON
// (SCOPE_CONFIG_PATH, default scope_config.json).
func LoadScopeConfig() error {
	path := os.Getenv("SCOPE_CONFIG_PATH")
	if path == "" {
		path = "scope_config.json"
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read scope config %s: %w", path, err)
	}
	return SetScopeConfig(raw)
}

// SetScopeConfig parses and installs a scope configuration document.
func SetScopeConfig(raw []byte) error {
	var parsed map[string]Scope
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("parse scope config: %w", err)
	}
	validate := validator.New()
	for key, scope := range parsed {
		for cname, cfg := range scope.Connectors {
			if err := validate.Struct(cfg); err != nil {
				return fmt.Errorf("scope %s connector %s: %w", key, cname, err)
			}
		}
	}
	scopes = parsed
	return nil
}

// GetScope returns the configuration for a scope key; ok=false when unknown.
func GetScope(key string) (Scope, bool) {
	s, ok := scopes[key]
	return s, ok
}

// ScopeDisplayName returns the display name for a scope, falling back to the
// key itself.
func ScopeDisplayName(key string) string {
	if s, ok := scopes[key]; ok && s.DisplayName != "" {
		return s.DisplayName
	}
	return key
}

// ListScopeKeys returns all configured scope keys, sorted.
func ListScopeKeys() []string {
	keys := make([]string, 0, len(scopes))
	for k := range scopes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
