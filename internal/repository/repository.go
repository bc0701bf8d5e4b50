// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opencase-legal/kestrel/internal/domain"
)

var (
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveCase inserts or updates a case record with firm isolation.
func (r *SQLRepository) SaveCase(ctx context.Context, firmID string, c *domain.Case) error {
	if firmID == "" {
		return fmt.Errorf("%w: firmID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO cases (
			id, firm_id, visa_type, status, deadline,
			risk_score, risk_level, last_assessment, assessed_at,
			created_at, updated_at, deleted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, firm_id) DO UPDATE SET
			visa_type = excluded.visa_type,
			status = excluded.status,
			deadline = excluded.deadline,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at
	`

	var lastAssessment any
	if len(c.LastAssessment) > 0 {
		lastAssessment = string(c.LastAssessment)
	}

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		c.ID, firmID, c.VisaType, c.Status, c.Deadline,
		c.RiskScore, c.RiskLevel, lastAssessment, c.AssessedAt,
		c.CreatedAt, c.UpdatedAt, c.DeletedAt,
	)
	return err
}

// GetCase retrieves a live case by ID with firm isolation. Missing and
// soft-deleted cases both come back as domain.ErrCaseNotFound.
func (r *SQLRepository) GetCase(ctx context.Context, firmID string, caseID string) (*domain.Case, error) {
	if firmID == "" {
		return nil, fmt.Errorf("%w: firmID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, firm_id, visa_type, status, deadline,
			   risk_score, risk_level, last_assessment, assessed_at,
			   created_at, updated_at
		FROM cases
		WHERE firm_id = ? AND id = ? AND deleted_at IS NULL
	`

	var c domain.Case
	var lastAssessment sql.NullString
	var riskLevel sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), firmID, caseID).Scan(
		&c.ID, &c.FirmID, &c.VisaType, &c.Status, &c.Deadline,
		&c.RiskScore, &riskLevel, &lastAssessment, &c.AssessedAt,
		&c.CreatedAt, &c.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCaseNotFound
	}
	if err != nil {
		return nil, err
	}

	c.RiskLevel = riskLevel.String
	if lastAssessment.Valid {
		c.LastAssessment = []byte(lastAssessment.String)
	}

	return &c, nil
}

// SaveDocument stores a document record with firm isolation.
func (r *SQLRepository) SaveDocument(ctx context.Context, firmID string, d *domain.Document) error {
	if firmID == "" {
		return fmt.Errorf("%w: firmID is required", ErrInvalidInput)
	}

	fields, _ := json.Marshal(d.Fields)

	bonaFide := 0
	if d.BonaFide {
		bonaFide = 1
	}

	query := `
		INSERT INTO case_documents (
			id, firm_id, case_id, doc_type, bona_fide, fields, uploaded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		d.ID, firmID, d.CaseID, d.DocType, bonaFide, string(fields), d.UploadedAt,
	)
	return err
}

// GetDocuments retrieves all documents for a case with firm isolation.
func (r *SQLRepository) GetDocuments(ctx context.Context, firmID string, caseID string) ([]*domain.Document, error) {
	if firmID == "" {
		return nil, fmt.Errorf("%w: firmID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, case_id, doc_type, bona_fide, fields, uploaded_at
		FROM case_documents
		WHERE firm_id = ? AND case_id = ?
		ORDER BY uploaded_at
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), firmID, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var documents []*domain.Document
	for rows.Next() {
		var d domain.Document
		var bonaFide int
		var fields sql.NullString

		if err := rows.Scan(
			&d.ID, &d.CaseID, &d.DocType, &bonaFide, &fields, &d.UploadedAt,
		); err != nil {
			return nil, err
		}

		d.BonaFide = bonaFide == 1
		if fields.Valid && fields.String != "" {
			json.Unmarshal([]byte(fields.String), &d.Fields)
		}

		documents = append(documents, &d)
	}

	return documents, rows.Err()
}

// SaveChecklistItem upserts one required document entry for a case.
func (r *SQLRepository) SaveChecklistItem(ctx context.Context, firmID string, item *domain.ChecklistItem) error {
	if firmID == "" {
		return fmt.Errorf("%w: firmID is required", ErrInvalidInput)
	}

	completed := 0
	if item.Completed {
		completed = 1
	}

	query := `
		INSERT INTO case_checklist (firm_id, case_id, doc_type, completed)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(firm_id, case_id, doc_type) DO UPDATE SET
			completed = excluded.completed
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		firmID, item.CaseID, item.DocType, completed,
	)
	return err
}

// GetChecklist retrieves the required document list for a case.
func (r *SQLRepository) GetChecklist(ctx context.Context, firmID string, caseID string) ([]*domain.ChecklistItem, error) {
	if firmID == "" {
		return nil, fmt.Errorf("%w: firmID is required", ErrInvalidInput)
	}

	query := `
		SELECT case_id, doc_type, completed
		FROM case_checklist
		WHERE firm_id = ? AND case_id = ?
		ORDER BY doc_type
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), firmID, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.ChecklistItem
	for rows.Next() {
		var item domain.ChecklistItem
		var completed int

		if err := rows.Scan(&item.CaseID, &item.DocType, &completed); err != nil {
			return nil, err
		}

		item.Completed = completed == 1
		items = append(items, &item)
	}

	return items, rows.Err()
}

// SaveForm upserts a form submission for a case.
func (r *SQLRepository) SaveForm(ctx context.Context, firmID string, f *domain.FormSubmission) error {
	if firmID == "" {
		return fmt.Errorf("%w: firmID is required", ErrInvalidInput)
	}

	fields, _ := json.Marshal(f.Fields)

	query := `
		INSERT INTO case_forms (firm_id, case_id, form_type, fields)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(firm_id, case_id, form_type) DO UPDATE SET
			fields = excluded.fields
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		firmID, f.CaseID, f.FormType, string(fields),
	)
	return err
}

// GetForms retrieves all form submissions for a case.
func (r *SQLRepository) GetForms(ctx context.Context, firmID string, caseID string) ([]*domain.FormSubmission, error) {
	if firmID == "" {
		return nil, fmt.Errorf("%w: firmID is required", ErrInvalidInput)
	}

	query := `
		SELECT case_id, form_type, fields
		FROM case_forms
		WHERE firm_id = ? AND case_id = ?
		ORDER BY form_type
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), firmID, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var forms []*domain.FormSubmission
	for rows.Next() {
		var f domain.FormSubmission
		var fields sql.NullString

		if err := rows.Scan(&f.CaseID, &f.FormType, &fields); err != nil {
			return nil, err
		}

		if fields.Valid && fields.String != "" {
			json.Unmarshal([]byte(fields.String), &f.Fields)
		}

		forms = append(forms, &f)
	}

	return forms, rows.Err()
}

// UpdateCaseAssessment writes the latest assessment through to the case
// record: score, level, timestamp, and the full serialized result.
func (r *SQLRepository) UpdateCaseAssessment(ctx context.Context, firmID string, caseID string, result *domain.AssessmentResult) error {
	if firmID == "" {
		return fmt.Errorf("%w: firmID is required", ErrInvalidInput)
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to serialize assessment: %w", err)
	}

	query := `
		UPDATE cases
		SET risk_score = ?, risk_level = ?, last_assessment = ?,
			assessed_at = ?, updated_at = ?
		WHERE firm_id = ? AND id = ? AND deleted_at IS NULL
	`

	res, err := r.db.ExecContext(ctx, r.rebind(query),
		result.Score, result.RiskLevel, string(payload),
		result.AssessedAt, time.Now().UTC(),
		firmID, caseID,
	)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrCaseNotFound
	}

	return nil
}

// InsertAssessmentHistory appends one audit row. History is append-only:
// there is no update or delete path.
func (r *SQLRepository) InsertAssessmentHistory(ctx context.Context, firmID string, rec *domain.AssessmentHistory) error {
	if firmID == "" {
		return fmt.Errorf("%w: firmID is required", ErrInvalidInput)
	}

	triggered, _ := json.Marshal(rec.TriggeredRules)
	safe, _ := json.Marshal(rec.SafeRuleIDs)
	actions, _ := json.Marshal(rec.PriorityActions)

	query := `
		INSERT INTO assessment_history (
			id, firm_id, case_id, visa_type, score, risk_level, probability,
			triggered_rules, safe_rule_ids, priority_actions, data_confidence,
			trigger_event, formula_version, assessed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, firmID, rec.CaseID, rec.VisaType,
		rec.Score, rec.RiskLevel, rec.Probability,
		string(triggered), string(safe), string(actions), rec.DataConfidence,
		rec.TriggerEvent, rec.FormulaVersion, rec.AssessedAt,
	)
	return err
}

// ListAssessmentHistory retrieves the most recent audit rows for a case,
// newest first.
func (r *SQLRepository) ListAssessmentHistory(ctx context.Context, firmID string, caseID string, limit int) ([]*domain.AssessmentHistory, error) {
	if firmID == "" {
		return nil, fmt.Errorf("%w: firmID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, case_id, visa_type, score, risk_level, probability,
			   triggered_rules, safe_rule_ids, priority_actions, data_confidence,
			   trigger_event, formula_version, assessed_at
		FROM assessment_history
		WHERE firm_id = ? AND case_id = ?
		ORDER BY assessed_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), firmID, caseID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.AssessmentHistory
	for rows.Next() {
		var rec domain.AssessmentHistory
		var triggered, safe, actions string

		if err := rows.Scan(
			&rec.ID, &rec.CaseID, &rec.VisaType,
			&rec.Score, &rec.RiskLevel, &rec.Probability,
			&triggered, &safe, &actions, &rec.DataConfidence,
			&rec.TriggerEvent, &rec.FormulaVersion, &rec.AssessedAt,
		); err != nil {
			return nil, err
		}

		rec.FirmID = firmID
		json.Unmarshal([]byte(triggered), &rec.TriggeredRules)
		json.Unmarshal([]byte(safe), &rec.SafeRuleIDs)
		json.Unmarshal([]byte(actions), &rec.PriorityActions)

		records = append(records, &rec)
	}

	return records, rows.Err()
}

// SaveCustomRule upserts a firm-defined rule configuration.
func (r *SQLRepository) SaveCustomRule(ctx context.Context, firmID string, rule *domain.CustomRuleConfig) error {
	if firmID == "" {
		return fmt.Errorf("%w: firmID is required", ErrInvalidInput)
	}
	if rule.ID == "" || rule.Expression == "" {
		return fmt.Errorf("%w: rule id and expression are required", ErrInvalidInput)
	}

	visaTypes := ""
	if len(rule.VisaTypes) > 0 {
		parts := make([]string, len(rule.VisaTypes))
		for i, vt := range rule.VisaTypes {
			parts[i] = string(vt)
		}
		visaTypes = strings.Join(parts, ",")
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO custom_rules (
			id, firm_id, title, description, category, severity,
			recommendation, expression, visa_types, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, firm_id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			category = excluded.category,
			severity = excluded.severity,
			recommendation = excluded.recommendation,
			expression = excluded.expression,
			visa_types = excluded.visa_types,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, firmID, rule.Title, rule.Description, rule.Category, rule.Severity,
		rule.Recommendation, rule.Expression, visaTypes, enabled,
		now, now,
	)
	return err
}

// ListCustomRules retrieves all enabled custom rules for a firm.
func (r *SQLRepository) ListCustomRules(ctx context.Context, firmID string) ([]*domain.CustomRuleConfig, error) {
	if firmID == "" {
		return nil, fmt.Errorf("%w: firmID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, title, description, category, severity,
			   recommendation, expression, visa_types, enabled
		FROM custom_rules
		WHERE firm_id = ? AND enabled = 1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), firmID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*domain.CustomRuleConfig
	for rows.Next() {
		var cfg domain.CustomRuleConfig
		var visaTypes sql.NullString
		var enabled int

		if err := rows.Scan(
			&cfg.ID, &cfg.Title, &cfg.Description, &cfg.Category, &cfg.Severity,
			&cfg.Recommendation, &cfg.Expression, &visaTypes, &enabled,
		); err != nil {
			return nil, err
		}

		cfg.FirmID = firmID
		cfg.Enabled = enabled == 1
		if visaTypes.Valid && visaTypes.String != "" {
			for _, vt := range strings.Split(visaTypes.String, ",") {
				cfg.VisaTypes = append(cfg.VisaTypes, domain.VisaType(vt))
			}
		}

		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
