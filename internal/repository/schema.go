package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaCases = `
CREATE TABLE IF NOT EXISTS cases (
    id TEXT NOT NULL,
    firm_id TEXT NOT NULL,
    visa_type TEXT NOT NULL,
    status TEXT NOT NULL,
    deadline TIMESTAMP,
    risk_score INTEGER,
    risk_level TEXT,
    last_assessment TEXT,
    assessed_at TIMESTAMP,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    deleted_at TIMESTAMP,
    PRIMARY KEY (id, firm_id)
);

CREATE INDEX IF NOT EXISTS idx_cases_firm ON cases(firm_id);
CREATE INDEX IF NOT EXISTS idx_cases_status ON cases(firm_id, status);
CREATE INDEX IF NOT EXISTS idx_cases_deadline ON cases(firm_id, deadline);
`

const schemaCaseDocuments = `
CREATE TABLE IF NOT EXISTS case_documents (
    id TEXT PRIMARY KEY,
    firm_id TEXT NOT NULL,
    case_id TEXT NOT NULL,
    doc_type TEXT NOT NULL,
    bona_fide INTEGER NOT NULL DEFAULT 0,
    fields TEXT,
    uploaded_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_case_documents_case ON case_documents(firm_id, case_id);
CREATE INDEX IF NOT EXISTS idx_case_documents_type ON case_documents(firm_id, case_id, doc_type);
`

const schemaCaseChecklist = `
CREATE TABLE IF NOT EXISTS case_checklist (
    firm_id TEXT NOT NULL,
    case_id TEXT NOT NULL,
    doc_type TEXT NOT NULL,
    completed INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (firm_id, case_id, doc_type)
);

CREATE INDEX IF NOT EXISTS idx_case_checklist_case ON case_checklist(firm_id, case_id);
`

const schemaCaseForms = `
CREATE TABLE IF NOT EXISTS case_forms (
    firm_id TEXT NOT NULL,
    case_id TEXT NOT NULL,
    form_type TEXT NOT NULL,
    fields TEXT,
    PRIMARY KEY (firm_id, case_id, form_type)
);

CREATE INDEX IF NOT EXISTS idx_case_forms_case ON case_forms(firm_id, case_id);
`

// schemaAssessmentHistory defines the append-only audit trail. Rows are
// inserted once and never updated or deleted by the engine.
const schemaAssessmentHistory = `
CREATE TABLE IF NOT EXISTS assessment_history (
    id TEXT PRIMARY KEY,
    firm_id TEXT NOT NULL,
    case_id TEXT NOT NULL,
    visa_type TEXT NOT NULL,
    score INTEGER NOT NULL,
    risk_level TEXT NOT NULL,
    probability REAL NOT NULL,
    triggered_rules TEXT NOT NULL,
    safe_rule_ids TEXT NOT NULL,
    priority_actions TEXT NOT NULL,
    data_confidence REAL NOT NULL,
    trigger_event TEXT NOT NULL,
    formula_version TEXT NOT NULL,
    assessed_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessment_history_case ON assessment_history(firm_id, case_id);
CREATE INDEX IF NOT EXISTS idx_assessment_history_assessed ON assessment_history(firm_id, case_id, assessed_at);
`

const schemaCustomRules = `
CREATE TABLE IF NOT EXISTS custom_rules (
    id TEXT NOT NULL,
    firm_id TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT,
    category TEXT NOT NULL,
    severity TEXT NOT NULL,
    recommendation TEXT,
    expression TEXT NOT NULL,
    visa_types TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, firm_id)
);

CREATE INDEX IF NOT EXISTS idx_custom_rules_firm ON custom_rules(firm_id);
CREATE INDEX IF NOT EXISTS idx_custom_rules_enabled ON custom_rules(firm_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaCases,
		schemaCaseDocuments,
		schemaCaseChecklist,
		schemaCaseForms,
		schemaAssessmentHistory,
		schemaCustomRules,
	}
}
