// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require firmID for strict per-firm isolation.
type Repository interface {
	// Case reads. GetCase returns ErrCaseNotFound for a missing or
	// soft-deleted case; the collection reads return empty slices when
	// the case simply has no rows.
	GetCase(ctx context.Context, firmID string, caseID string) (*Case, error)
	GetDocuments(ctx context.Context, firmID string, caseID string) ([]*Document, error)
	GetChecklist(ctx context.Context, firmID string, caseID string) ([]*ChecklistItem, error)
	GetForms(ctx context.Context, firmID string, caseID string) ([]*FormSubmission, error)

	// Case writes used by intake and the write-through assessment cache.
	SaveCase(ctx context.Context, firmID string, c *Case) error
	SaveDocument(ctx context.Context, firmID string, d *Document) error
	SaveChecklistItem(ctx context.Context, firmID string, item *ChecklistItem) error
	SaveForm(ctx context.Context, firmID string, f *FormSubmission) error
	UpdateCaseAssessment(ctx context.Context, firmID string, caseID string, result *AssessmentResult) error

	// Append-only assessment audit trail.
	InsertAssessmentHistory(ctx context.Context, firmID string, rec *AssessmentHistory) error
	ListAssessmentHistory(ctx context.Context, firmID string, caseID string, limit int) ([]*AssessmentHistory, error)

	// Firm-defined custom rule configurations.
	SaveCustomRule(ctx context.Context, firmID string, rule *CustomRuleConfig) error
	ListCustomRules(ctx context.Context, firmID string) ([]*CustomRuleConfig, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
