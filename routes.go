package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/civintel/cityledger_backend/config"
	"github.com/civintel/cityledger_backend/ingest"
	"github.com/civintel/cityledger_backend/models"
	"github.com/civintel/cityledger_backend/networks"
	"github.com/civintel/cityledger_backend/records"
	"github.com/civintel/cityledger_backend/registry"
	"github.com/civintel/cityledger_backend/review"
	"github.com/civintel/cityledger_backend/scoring"
	"github.com/civintel/cityledger_backend/utils"
	"github.com/civintel/cityledger_backend/workflow"
)

// app groups per-request component construction. The readiness middleware
// guarantees config.GetDB() is non-nil by the time handlers run.
type app struct {
	logger *logrus.Logger
}

func (a *app) db() *gorm.DB {
	return config.GetDB()
}

func registerRoutes(r *gin.Engine, logger *logrus.Logger) {
	a := &app{logger: logger}

	r.GET("/meta/scopes", a.listScopes)

	r.POST("/ingest/configured", a.runConfiguredIngest)
	r.POST("/score/recompute", a.recomputeScores)

	r.GET("/entities", a.listEntities)
	r.GET("/entities/:id", a.getEntity)
	r.DELETE("/entities/:id", a.deleteEntity)
	r.POST("/entities/:id/records-request", a.createRecordsRequest)
	r.GET("/records-requests", a.listRecordsRequests)
	r.GET("/records-requests/:id", a.getRecordsRequest)

	r.GET("/entity-networks", a.entityNetworks)

	r.GET("/review-queue", a.listReviewQueue)
	r.POST("/review-queue/:id/approve", a.approveReviewMatch)
	r.POST("/review-queue/:id/reject", a.rejectReviewMatch)

	r.GET("/payments/recent", a.recentPayments)
	r.GET("/payments/by-source", a.paymentsBySource)
	r.GET("/payments/categories", a.paymentCategories)
	r.POST("/payments/tag", a.tagPayments)
	r.POST("/payments/set-tag", a.tagPayments)
	r.POST("/payments/category", a.categorizePayments)
	r.POST("/payments/set-category", a.categorizePayments)
	r.POST("/cleanup/duplicate-payments", a.cleanupDuplicatePayments)

	registerUploadRoutes(r, a)
}

func (a *app) listScopes(c *gin.Context) {
	type scopeInfo struct {
		Key         string `json:"key"`
		DisplayName string `json:"display_name"`
	}
	var out []scopeInfo
	for _, key := range config.ListScopeKeys() {
		out = append(out, scopeInfo{Key: key, DisplayName: config.ScopeDisplayName(key)})
	}
	c.JSON(http.StatusOK, gin.H{"scopes": out})
}

// requireScope reads and validates the scope query param (scope or scope_key).
// Writes the error response itself; callers bail out on ok=false.
func requireScope(c *gin.Context) (string, bool) {
	scopeKey := strings.TrimSpace(c.Query("scope"))
	if scopeKey == "" {
		scopeKey = strings.TrimSpace(c.Query("scope_key"))
	}
	if scopeKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scope is required"})
		return "", false
	}
	if _, ok := config.GetScope(scopeKey); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown scope"})
		return "", false
	}
	return scopeKey, true
}

func (a *app) runConfiguredIngest(c *gin.Context) {
	scopeKey, ok := requireScope(c)
	if !ok {
		return
	}

	spanCtx, span := tracer.Start(c.Request.Context(), "jobs.ingest",
		trace.WithAttributes(attribute.String("scope", scopeKey)))
	defer span.End()

	var summary *ingest.Summary
	err := workflow.WithScopeLock(spanCtx, "ingest", scopeKey, func(ctx context.Context) error {
		var err error
		summary, err = ingest.New(a.db(), a.logger).RunConfigured(ctx, scopeKey)
		return err
	})
	if err != nil {
		respondJobError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (a *app) recomputeScores(c *gin.Context) {
	scopeKey, ok := requireScope(c)
	if !ok {
		return
	}

	spanCtx, span := tracer.Start(c.Request.Context(), "jobs.score",
		trace.WithAttributes(attribute.String("scope", scopeKey)))
	defer span.End()

	var scored int
	err := workflow.WithScopeLock(spanCtx, "score", scopeKey, func(ctx context.Context) error {
		var err error
		scored, err = scoring.NewEngine(a.db(), a.logger).Recompute(ctx, scopeKey)
		return err
	})
	if err != nil {
		respondJobError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scope_key": scopeKey, "scored": scored})
}

func respondJobError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, utils.ErrorScopeBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (a *app) listEntities(c *gin.Context) {
	scopeKey, ok := requireScope(c)
	if !ok {
		return
	}

	limit := queryInt(c, "limit", 100)
	db := a.db().WithContext(c.Request.Context())
	q := db.Where("scope_key = ?", scopeKey)
	entityType := c.Query("type")
	if entityType == "" {
		entityType = c.Query("entity_type")
	}
	if entityType != "" {
		q = q.Where("entity_type = ?", entityType)
	}
	if search := strings.TrimSpace(c.Query("q")); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		q = q.Where("normalized_name LIKE ? OR LOWER(name) LIKE ?", like, like)
	}
	if v := c.Query("min_score"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			q = q.Where("score >= ?", f)
		}
	}
	// Payment-derived filters narrow to entities with at least one matching row.
	if tag := c.Query("payment_tag"); tag != "" {
		q = q.Where("id IN (?)", db.Model(&models.Payment{}).Select("entity_id").Where("tag = ?", tag))
	}
	if ds := c.Query("data_source"); ds != "" {
		q = q.Where("id IN (?)", db.Model(&models.Payment{}).Select("entity_id").Where("data_source = ?", ds))
	}

	var ents []models.Entity
	if err := q.Order("score DESC, id ASC").Limit(limit).Find(&ents).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	totals, err := paymentTotals(db, ents)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	type entityRow struct {
		models.Entity
		TotalAmount float64 `json:"total_amount"`
	}
	rows := make([]entityRow, 0, len(ents))
	for _, e := range ents {
		rows = append(rows, entityRow{Entity: e, TotalAmount: totals[e.ID]})
	}
	c.JSON(http.StatusOK, gin.H{"entities": rows, "count": len(rows)})
}

// paymentTotals sums linked payment amounts per entity in one grouped query.
func paymentTotals(db *gorm.DB, ents []models.Entity) (map[int]float64, error) {
	totals := map[int]float64{}
	if len(ents) == 0 {
		return totals, nil
	}
	ids := make([]int, 0, len(ents))
	for _, e := range ents {
		ids = append(ids, e.ID)
	}
	type totalRow struct {
		EntityID int
		Total    float64
	}
	var rows []totalRow
	err := db.Model(&models.Payment{}).
		Select("entity_id, SUM(amount) AS total").
		Where("entity_id IN ?", ids).
		Group("entity_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		totals[r.EntityID] = r.Total
	}
	return totals, nil
}

func (a *app) getEntity(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entity id"})
		return
	}

	var ent models.Entity
	err = a.db().WithContext(c.Request.Context()).
		Preload("Aliases").
		Preload("Identifiers").
		Preload("Payments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at DESC") }).
		Preload("Evidence", func(db *gorm.DB) *gorm.DB { return db.Order("created_at DESC") }).
		First(&ent, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "entity not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ent)
}

func (a *app) deleteEntity(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entity id"})
		return
	}

	err = registry.New(a.db(), a.logger).DeleteEntity(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "entity not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (a *app) createRecordsRequest(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entity id"})
		return
	}

	var ent models.Entity
	err = a.db().WithContext(c.Request.Context()).Preload("Aliases").First(&ent, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "entity not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	aliases := make([]string, 0, len(ent.Aliases))
	for _, al := range ent.Aliases {
		aliases = append(aliases, al.Alias)
	}
	text, err := records.BuildRequest(config.ScopeDisplayName(ent.ScopeKey), ent.Name, aliases, time.Time{}, time.Time{})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	req := &models.RecordsRequest{
		EntityID:    ent.ID,
		ScopeKey:    ent.ScopeKey,
		Status:      models.RecordsRequestStatusDraft,
		RequestText: text,
		Recipient:   config.ScopeDisplayName(ent.ScopeKey),
	}
	if err := a.db().WithContext(c.Request.Context()).Create(req).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, req)
}

func (a *app) listRecordsRequests(c *gin.Context) {
	scopeKey, ok := requireScope(c)
	if !ok {
		return
	}

	var reqs []models.RecordsRequest
	err := a.db().WithContext(c.Request.Context()).
		Where("scope_key = ?", scopeKey).
		Order("created_at DESC").
		Limit(queryInt(c, "limit", 100)).
		Find(&reqs).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records_requests": reqs})
}

func (a *app) getRecordsRequest(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid records request id"})
		return
	}

	var req models.RecordsRequest
	err = a.db().WithContext(c.Request.Context()).First(&req, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "records request not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, req)
}

func (a *app) entityNetworks(c *gin.Context) {
	scopeKey, ok := requireScope(c)
	if !ok {
		return
	}

	clusters, err := networks.NewFinder(a.db(), a.logger).
		FindClusters(c.Request.Context(), scopeKey, models.EntityType(c.Query("type")))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"clusters": clusters, "count": len(clusters)})
}

func (a *app) listReviewQueue(c *gin.Context) {
	scopeKey, ok := requireScope(c)
	if !ok {
		return
	}

	matches, err := review.New(a.db()).ListOpen(c.Request.Context(), scopeKey, queryInt(c, "limit", 100))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": matches, "count": len(matches)})
}

func (a *app) approveReviewMatch(c *gin.Context) {
	a.resolveReviewMatch(c, review.New(a.db()).Approve)
}

func (a *app) rejectReviewMatch(c *gin.Context) {
	a.resolveReviewMatch(c, review.New(a.db()).Reject)
}

func (a *app) resolveReviewMatch(c *gin.Context, resolve func(ctx context.Context, matchID int) (*models.ReviewMatch, error)) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid match id"})
		return
	}

	match, err := resolve(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, utils.ErrorRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "review match not found"})
		case errors.Is(err, utils.ErrorAlreadyResolved):
			c.JSON(http.StatusConflict, gin.H{"error": "review match already resolved"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, match)
}

func (a *app) recentPayments(c *gin.Context) {
	scopeKey, ok := requireScope(c)
	if !ok {
		return
	}

	var payments []models.Payment
	err := a.db().WithContext(c.Request.Context()).
		Joins("JOIN entities ON entities.id = payments.entity_id").
		Where("entities.scope_key = ?", scopeKey).
		Order("payments.created_at DESC").
		Limit(queryInt(c, "limit", 50)).
		Find(&payments).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

func (a *app) paymentsBySource(c *gin.Context) {
	scopeKey, ok := requireScope(c)
	if !ok {
		return
	}

	type sourceRow struct {
		Source string  `json:"source"`
		Count  int     `json:"count"`
		Total  float64 `json:"total"`
	}
	var rows []sourceRow
	err := a.db().WithContext(c.Request.Context()).
		Model(&models.Payment{}).
		Select("payments.source AS source, COUNT(*) AS count, SUM(payments.amount) AS total").
		Joins("JOIN entities ON entities.id = payments.entity_id").
		Where("entities.scope_key = ?", scopeKey).
		Group("payments.source").
		Order("total DESC").
		Scan(&rows).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sources": rows})
}

func (a *app) paymentCategories(c *gin.Context) {
	scopeKey, ok := requireScope(c)
	if !ok {
		return
	}

	type catRow struct {
		Category string `json:"category"`
		Tag      string `json:"tag"`
		Count    int    `json:"count"`
	}
	var rows []catRow
	err := a.db().WithContext(c.Request.Context()).
		Model(&models.Payment{}).
		Select("payments.category AS category, payments.tag AS tag, COUNT(*) AS count").
		Joins("JOIN entities ON entities.id = payments.entity_id").
		Where("entities.scope_key = ?", scopeKey).
		Group("payments.category, payments.tag").
		Order("count DESC").
		Scan(&rows).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": rows})
}

type paymentTagRequest struct {
	PaymentIDs []int  `json:"payment_ids" binding:"required"`
	Tag        string `json:"tag"`
}

func (a *app) tagPayments(c *gin.Context) {
	var req paymentTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if len(req.PaymentIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payment_ids is required"})
		return
	}

	res := a.db().WithContext(c.Request.Context()).
		Model(&models.Payment{}).
		Where("id IN ?", req.PaymentIDs).
		Update("tag", strings.TrimSpace(req.Tag))
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": res.Error.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": res.RowsAffected})
}

type paymentCategoryRequest struct {
	PaymentIDs []int  `json:"payment_ids" binding:"required"`
	Category   string `json:"category" binding:"required"`
}

func (a *app) categorizePayments(c *gin.Context) {
	var req paymentCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	category := models.PaymentCategory(req.Category)
	if category != models.PaymentCategoryPayer && category != models.PaymentCategoryPayees {
		c.JSON(http.StatusBadRequest, gin.H{"error": "category must be Payer or Payees"})
		return
	}

	res := a.db().WithContext(c.Request.Context()).
		Model(&models.Payment{}).
		Where("id IN ?", req.PaymentIDs).
		Update("category", category)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": res.Error.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": res.RowsAffected})
}

// cleanupDuplicatePayments removes exact repeats of (entity, source, fiscal
// year, amount, payer, program), keeping the earliest row of each group.
func (a *app) cleanupDuplicatePayments(c *gin.Context) {
	scopeKey, ok := requireScope(c)
	if !ok {
		return
	}

	// Optional source pattern limits the cleanup to one upload batch.
	sourcePattern := strings.TrimSpace(c.Query("source"))

	var removed int64
	err := a.db().WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		scan := tx.Joins("JOIN entities ON entities.id = payments.entity_id").
			Where("entities.scope_key = ?", scopeKey)
		if sourcePattern != "" {
			scan = scan.Where("payments.source LIKE ?", sourcePattern)
		}
		var payments []models.Payment
		if err := scan.Order("payments.id ASC").Find(&payments).Error; err != nil {
			return err
		}

		seen := map[string]struct{}{}
		var dupIDs []int
		for _, p := range payments {
			key := strings.Join([]string{
				strconv.Itoa(p.EntityID), p.Source, p.FiscalYear,
				p.Amount.String(), p.Payer, p.Program,
			}, "|")
			if _, dup := seen[key]; dup {
				dupIDs = append(dupIDs, p.ID)
				continue
			}
			seen[key] = struct{}{}
		}
		if len(dupIDs) == 0 {
			return nil
		}
		res := tx.Where("id IN ?", dupIDs).Delete(&models.Payment{})
		removed = res.RowsAffected
		return res.Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"scope_key": scopeKey, "removed": removed})
}

func queryInt(c *gin.Context, name string, def int) int {
	v := c.Query(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
