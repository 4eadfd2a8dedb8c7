package main

import (
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"github.com/civintel/cityledger_backend/connectors"
	"github.com/civintel/cityledger_backend/core"
	"github.com/civintel/cityledger_backend/ingest"
	"github.com/civintel/cityledger_backend/models"
)

const maxUploadSizeBytes int64 = 20 * 1024 * 1024

const previewRowLimit = 10

var fiscalYearRe = regexp.MustCompile(`20\d{2}`)

// defaultSeedMapping maps record fields to their conventional CSV headers.
var defaultSeedMapping = map[string]string{
	"name":             "name",
	"address":          "address",
	"city":             "city",
	"state":            "state",
	"zip":              "zip",
	"license_status":   "license_status",
	"license_capacity": "license_capacity",
	"license_id":       "license_id",
	"npi":              "npi",
}

var defaultPaymentMapping = map[string]string{
	"name":        "vendor_name",
	"address":     "address",
	"amount":      "amount",
	"fiscal_year": "fiscal_year",
	"date":        "date",
	"payer":       "payer",
	"program":     "program",
}

func registerUploadRoutes(r *gin.Engine, a *app) {
	r.POST("/upload/csv/preview", a.previewCSV)
	r.POST("/upload/csv/ingest", a.ingestSeedCSV)
	r.POST("/upload/payments-csv/ingest", a.ingestPaymentsCSV)
	r.POST("/upload/payments-xlsx/ingest", a.ingestPaymentsXLSX)
	r.GET("/export/entities.xlsx", a.exportEntitiesXLSX)
}

func openUpload(c *gin.Context) (multipart.File, bool) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return nil, false
	}
	if header.Size > maxUploadSizeBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return nil, false
	}
	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not open file"})
		return nil, false
	}
	return f, true
}

// mappingFromForm parses an optional JSON field->column mapping, falling back
// to the given defaults.
func mappingFromForm(c *gin.Context, defaults map[string]string) (map[string]string, error) {
	raw := strings.TrimSpace(c.PostForm("mapping"))
	if raw == "" {
		return defaults, nil
	}
	mapping := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
		return nil, fmt.Errorf("invalid mapping: %w", err)
	}
	return mapping, nil
}

// previewCSV returns the header row and first rows so the operator can build
// a column mapping before ingesting.
func (a *app) previewCSV(c *gin.Context) {
	f, ok := openUpload(c)
	if !ok {
		return
	}
	defer f.Close()

	rows, err := connectors.ReadCSV(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	headers := []string{}
	if len(rows) > 0 {
		for col := range rows[0] {
			headers = append(headers, col)
		}
	}
	if len(rows) > previewRowLimit {
		rows = rows[:previewRowLimit]
	}
	c.JSON(http.StatusOK, gin.H{"headers": headers, "rows": rows, "row_count": len(rows)})
}

func (a *app) ingestSeedCSV(c *gin.Context) {
	scopeKey, ok := requireScope(c)
	if !ok {
		return
	}
	entityType := models.EntityType(c.DefaultPostForm("entity_type", string(models.EntityTypeOther)))
	source := c.DefaultPostForm("source", "csv_upload")

	mapping, err := mappingFromForm(c, defaultSeedMapping)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	f, ok := openUpload(c)
	if !ok {
		return
	}
	defer f.Close()

	recs, err := connectors.ReadSeedRows(f, source, mapping)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	summary, err := ingest.New(a.db(), a.logger).
		IngestSeedRows(c.Request.Context(), scopeKey, entityType, source, recs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func paymentOptionsFromForm(c *gin.Context) ingest.PaymentOptions {
	category := models.PaymentCategory(c.DefaultPostForm("category", string(models.PaymentCategoryPayer)))
	if category != models.PaymentCategoryPayer && category != models.PaymentCategoryPayees {
		category = models.PaymentCategoryPayer
	}
	return ingest.PaymentOptions{
		Source:          c.DefaultPostForm("source", "payments_upload"),
		DataSource:      c.PostForm("data_source"),
		Category:        category,
		Tag:             c.PostForm("tag"),
		SkipNonPositive: true,
	}
}

// paymentRecordsFromRows converts header-keyed rows into payment records. The
// fiscal year comes from an explicit column, a year found in the date column,
// or the current year.
func paymentRecordsFromRows(rows []map[string]string, mapping map[string]string, source string) []connectors.Record {
	get := func(row map[string]string, field string) string {
		col, ok := mapping[field]
		if !ok {
			return ""
		}
		return strings.TrimSpace(row[col])
	}

	out := make([]connectors.Record, 0, len(rows))
	for _, row := range rows {
		fy := get(row, "fiscal_year")
		if fy == "" {
			fy = fiscalYearRe.FindString(get(row, "date"))
		}
		if fy == "" {
			fy = strconv.Itoa(time.Now().Year())
		}
		out = append(out, connectors.Record{
			Source:     source,
			Name:       get(row, "name"),
			Address:    get(row, "address"),
			Amount:     core.SafeDecimal(get(row, "amount")),
			FiscalYear: fy,
			Payer:      get(row, "payer"),
			Program:    get(row, "program"),
			Raw:        row,
		})
	}
	return out
}

func (a *app) ingestPaymentsCSV(c *gin.Context) {
	scopeKey, ok := requireScope(c)
	if !ok {
		return
	}
	opts := paymentOptionsFromForm(c)
	mapping, err := mappingFromForm(c, defaultPaymentMapping)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	f, ok := openUpload(c)
	if !ok {
		return
	}
	defer f.Close()

	rows, err := connectors.ReadCSV(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	recs := paymentRecordsFromRows(rows, mapping, opts.Source)
	summary, err := ingest.New(a.db(), a.logger).
		IngestPaymentRows(c.Request.Context(), scopeKey, opts, recs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (a *app) ingestPaymentsXLSX(c *gin.Context) {
	scopeKey, ok := requireScope(c)
	if !ok {
		return
	}
	opts := paymentOptionsFromForm(c)
	mapping, err := mappingFromForm(c, defaultPaymentMapping)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	f, ok := openUpload(c)
	if !ok {
		return
	}
	defer f.Close()

	book, err := excelize.OpenReader(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read workbook"})
		return
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "workbook has no sheets"})
		return
	}
	raw, err := book.GetRows(sheets[0])
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(raw) < 2 {
		c.JSON(http.StatusOK, &ingest.Summary{ScopeKey: scopeKey})
		return
	}

	header := raw[0]
	rows := make([]map[string]string, 0, len(raw)-1)
	for _, cells := range raw[1:] {
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(cells) {
				row[col] = cells[i]
			}
		}
		rows = append(rows, row)
	}

	recs := paymentRecordsFromRows(rows, mapping, opts.Source)
	summary, err := ingest.New(a.db(), a.logger).
		IngestPaymentRows(c.Request.Context(), scopeKey, opts, recs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (a *app) exportEntitiesXLSX(c *gin.Context) {
	scopeKey, ok := requireScope(c)
	if !ok {
		return
	}

	var ents []models.Entity
	err := a.db().WithContext(c.Request.Context()).
		Where("scope_key = ?", scopeKey).
		Order("score DESC, id ASC").
		Find(&ents).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := "Sheet1"

	headers := []string{"ID", "Name", "Type", "Address", "City", "State", "Zip", "LicenseID", "NPI", "Score", "ScoreNotes"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}
	for rowNo, e := range ents {
		values := []any{
			e.ID, e.Name, string(e.EntityType), e.Address, e.City, e.State, e.Zip,
			e.LicenseID, e.NPI, e.Score, e.ScoreNotes,
		}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, rowNo+2)
			f.SetCellValue(sheet, cell, v)
		}
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=entities_%s.xlsx", scopeKey))
	if err := f.Write(c.Writer); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to write workbook"})
	}
}
