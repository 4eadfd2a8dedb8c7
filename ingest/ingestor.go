package ingest

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/civintel/cityledger_backend/config"
	"github.com/civintel/cityledger_backend/connectors"
	"github.com/civintel/cityledger_backend/matching"
	"github.com/civintel/cityledger_backend/models"
	"github.com/civintel/cityledger_backend/registry"
	"github.com/civintel/cityledger_backend/review"
	"github.com/civintel/cityledger_backend/utils"
)

// newEntityConfidence is recorded on payments linked to an entity that was
// created for an unmatched candidate.
const newEntityConfidence = 0.5

// Ingestor routes connector records into the registry: seed records become
// entity upserts, payment records are matched (or spawn new entities) and
// produce payment + evidence rows, with low-confidence links queued for
// review.
type Ingestor struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func New(db *gorm.DB, logger *logrus.Logger) *Ingestor {
	return &Ingestor{db: db, logger: logger}
}

// Summary reports what one ingestion pass added. Entities is an estimate: it
// counts upsert calls, which may merge into existing rows.
type Summary struct {
	ScopeKey     string `json:"scope_key"`
	Entities     int    `json:"added_entities_estimate"`
	Payments     int    `json:"added_payments"`
	Evidence     int    `json:"added_evidence"`
	ReviewQueued int    `json:"review_queue_added"`
}

// RunConfigured runs every connector configured for the scope inside one
// transaction. A connector failure is logged and skipped; it never aborts
// sibling connectors. Unknown scope keys fail fast.
func (ig *Ingestor) RunConfigured(ctx context.Context, scopeKey string) (*Summary, error) {
	scope, ok := config.GetScope(scopeKey)
	if !ok {
		return nil, fmt.Errorf("scope %q: %w", scopeKey, utils.ErrorRecordNotFound)
	}

	summary := &Summary{ScopeKey: scopeKey}
	err := ig.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		names := make([]string, 0, len(scope.Connectors))
		for name := range scope.Connectors {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, cname := range names {
			cfg := scope.Connectors[cname]
			conn, err := connectors.ForType(cfg.Type)
			if err != nil {
				config.LogError(ig.logger, "ingest", "RunConfigured", cname, nil, err)
				continue
			}
			rows, err := conn.Fetch(ctx, scopeKey, cfg)
			if err != nil {
				config.LogError(ig.logger, "ingest", "RunConfigured", cname, nil, err)
				continue
			}

			switch cfg.Type {
			case "csv_seed":
				etype := models.EntityType(cfg.EntityType)
				if etype == "" {
					etype = models.EntityTypeOther
				}
				ig.seedRows(ctx, tx, summary, scopeKey, etype, cname, rows)
			case "award_search":
				ig.paymentRows(ctx, tx, summary, scopeKey, PaymentOptions{
					Source:     "award_search",
					DataSource: "award-search",
					Category:   models.PaymentCategoryPayer,
				}, rows)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// IngestSeedRows upserts entity seed records in one transaction. Used by the
// CSV upload path.
func (ig *Ingestor) IngestSeedRows(ctx context.Context, scopeKey string, entityType models.EntityType, source string, rows []connectors.Record) (*Summary, error) {
	summary := &Summary{ScopeKey: scopeKey}
	err := ig.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ig.seedRows(ctx, tx, summary, scopeKey, entityType, source, rows)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// PaymentOptions classifies a batch of payment records.
type PaymentOptions struct {
	Source     string
	DataSource string
	Category   models.PaymentCategory
	Tag        string

	// SkipNonPositive drops records whose amount is not > 0.
	SkipNonPositive bool
}

// IngestPaymentRows links payment records in one transaction. Used by the
// payment upload paths.
func (ig *Ingestor) IngestPaymentRows(ctx context.Context, scopeKey string, opts PaymentOptions, rows []connectors.Record) (*Summary, error) {
	summary := &Summary{ScopeKey: scopeKey}
	err := ig.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ig.paymentRows(ctx, tx, summary, scopeKey, opts, rows)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

func (ig *Ingestor) seedRows(ctx context.Context, tx *gorm.DB, summary *Summary, scopeKey string, entityType models.EntityType, source string, rows []connectors.Record) {
	reg := registry.New(tx, ig.logger)
	for _, r := range rows {
		if r.Name == "" {
			// Missing required field: skip silently, not an error.
			continue
		}
		ent, err := reg.UpsertEntity(ctx, registry.EntityInput{
			ScopeKey:        scopeKey,
			EntityType:      entityType,
			Name:            r.Name,
			Address:         r.Address,
			City:            r.City,
			State:           r.State,
			Zip:             r.Zip,
			LicenseStatus:   r.LicenseStatus,
			LicenseCapacity: r.LicenseCapacity,
			LicenseID:       r.LicenseID,
			NPI:             r.NPI,
			IDSource:        source,
		})
		if err != nil {
			config.LogError(ig.logger, "ingest", "seedRows", source, r.Name, err)
			continue
		}
		summary.Entities++

		etype := models.EvidenceTypeDirectory
		if entityType == models.EntityTypeChildcare {
			etype = models.EvidenceTypeLicense
		}
		item := &models.EvidenceItem{
			EntityID:      ent.ID,
			EvidenceType:  etype,
			Source:        source,
			Category:      models.PaymentCategoryPayees,
			Confidence:    0.85,
			Title:         fmt.Sprintf("Ingested from %s", source),
			ExtractedJSON: utils.MarshalCapped(seedExtract(&r)),
			RawJSON:       utils.MarshalCapped(r.Raw),
		}
		if err := tx.Create(item).Error; err != nil {
			config.LogError(ig.logger, "ingest", "seedRows", source, r.Name, err)
			continue
		}
		summary.Evidence++
	}
}

func (ig *Ingestor) paymentRows(ctx context.Context, tx *gorm.DB, summary *Summary, scopeKey string, opts PaymentOptions, rows []connectors.Record) {
	reg := registry.New(tx, ig.logger)
	matcher := matching.New(tx, ig.logger)
	queue := review.New(tx)

	for _, r := range rows {
		if r.Name == "" {
			continue
		}
		if opts.SkipNonPositive && !r.Amount.IsPositive() {
			continue
		}

		proposal, err := matcher.ProposeMatch(ctx, scopeKey, "", r.Name, r.Address)
		if err != nil {
			config.LogError(ig.logger, "ingest", "paymentRows", opts.Source, r.Name, err)
			continue
		}

		entityID := proposal.EntityID
		confidence := proposal.Confidence
		reason := proposal.Reason
		if !proposal.Matched {
			ent, err := reg.UpsertEntity(ctx, registry.EntityInput{
				ScopeKey:   scopeKey,
				EntityType: entityTypeForTag(opts.Tag),
				Name:       r.Name,
				Address:    r.Address,
			})
			if err != nil {
				config.LogError(ig.logger, "ingest", "paymentRows", opts.Source, r.Name, err)
				continue
			}
			if err := reg.AddAlias(ctx, ent.ID, r.Name, opts.Source); err != nil {
				config.LogError(ig.logger, "ingest", "paymentRows", opts.Source, r.Name, err)
			}
			entityID = ent.ID
			confidence = newEntityConfidence
			reason = fmt.Sprintf("New entity created from payment data (type: %s)", ent.EntityType)
			summary.Entities++
		}

		source := opts.Source
		if r.Source != "" && opts.Source == "" {
			source = r.Source
		}
		payment := &models.Payment{
			EntityID:        entityID,
			Source:          source,
			DataSource:      opts.DataSource,
			Category:        opts.Category,
			Tag:             opts.Tag,
			FiscalYear:      r.FiscalYear,
			Amount:          r.Amount,
			Payer:           r.Payer,
			Program:         r.Program,
			MatchConfidence: confidence,
			MatchReason:     reason,
			RawJSON:         utils.MarshalCapped(r.Raw),
		}
		if err := tx.Create(payment).Error; err != nil {
			config.LogError(ig.logger, "ingest", "paymentRows", opts.Source, r.Name, err)
			continue
		}
		summary.Payments++

		item := &models.EvidenceItem{
			EntityID:      entityID,
			EvidenceType:  models.EvidenceTypePayment,
			Source:        source,
			Category:      models.PaymentCategoryPayer,
			Confidence:    confidence,
			Title:         paymentTitle(&r),
			URL:           r.URL,
			ExtractedJSON: utils.MarshalCapped(paymentExtract(&r)),
			RawJSON:       utils.MarshalCapped(r.Raw),
		}
		if err := tx.Create(item).Error; err != nil {
			config.LogError(ig.logger, "ingest", "paymentRows", opts.Source, r.Name, err)
			continue
		}
		summary.Evidence++

		if confidence < config.MatchReviewBar {
			err := queue.Enqueue(ctx, &models.ReviewMatch{
				ScopeKey:         scopeKey,
				CandidateName:    r.Name,
				CandidateAddress: r.Address,
				CandidateSource:  source,
				EntityID:         &entityID,
				Confidence:       confidence,
				Reason:           reason,
			})
			if err != nil {
				config.LogError(ig.logger, "ingest", "paymentRows", opts.Source, r.Name, err)
				continue
			}
			summary.ReviewQueued++
		}
	}
}

// entityTypeForTag guesses an entity type for a brand-new payee from the
// batch tag.
func entityTypeForTag(tag string) models.EntityType {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "childcare":
		return models.EntityTypeChildcare
	case "healthcare", "autism/mental", "autism", "mental":
		return models.EntityTypeHealth
	default:
		return models.EntityTypeOther
	}
}

func paymentTitle(r *connectors.Record) string {
	if r.Title != "" {
		return r.Title
	}
	return fmt.Sprintf("Payment: $%s", r.Amount.StringFixed(2))
}

func seedExtract(r *connectors.Record) map[string]any {
	out := map[string]any{}
	if r.LicenseStatus != "" {
		out["license_status"] = r.LicenseStatus
	}
	if r.LicenseCapacity != nil {
		out["license_capacity"] = *r.LicenseCapacity
	}
	if r.LicenseID != "" {
		out["license_id"] = r.LicenseID
	}
	if r.NPI != "" {
		out["npi"] = r.NPI
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func paymentExtract(r *connectors.Record) map[string]any {
	return map[string]any{
		"amount":      r.Amount,
		"fiscal_year": r.FiscalYear,
		"payer":       r.Payer,
		"program":     r.Program,
	}
}
