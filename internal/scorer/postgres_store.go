package scorer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresStore persists analysis results in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed analysis result store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the assessments table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS assessments (
			id             VARCHAR(40) PRIMARY KEY,
			sender         VARCHAR(254) NOT NULL,
			recipient      VARCHAR(254) NOT NULL,
			risk_score     NUMERIC(4,3) NOT NULL CHECK (risk_score >= 0 AND risk_score <= 1),
			risk_level     VARCHAR(16) NOT NULL,
			recommendation TEXT NOT NULL,
			components     JSONB NOT NULL DEFAULT '{}',
			risk_factors   JSONB NOT NULL DEFAULT '[]',
			evaluated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_assessments_sender
			ON assessments (sender, evaluated_at DESC);

		CREATE INDEX IF NOT EXISTS idx_assessments_critical
			ON assessments (evaluated_at DESC) WHERE risk_level = 'CRITICAL';
	`)
	return err
}

func (s *PostgresStore) Record(ctx context.Context, result *AnalysisResult) error {
	componentsJSON, err := json.Marshal(result.ComponentScores)
	if err != nil {
		return fmt.Errorf("failed to marshal component scores: %w", err)
	}
	factorsJSON, err := json.Marshal(result.RiskFactors)
	if err != nil {
		return fmt.Errorf("failed to marshal risk factors: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO assessments (id, sender, recipient, risk_score, risk_level, recommendation, components, risk_factors, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		result.ID,
		result.Sender,
		result.Recipient,
		result.RiskScore,
		string(result.RiskLevel),
		result.Recommendation,
		componentsJSON,
		factorsJSON,
		result.EvaluatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record assessment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListBySender(ctx context.Context, sender string, limit int) ([]*AnalysisResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender, recipient, risk_score, risk_level, recommendation, components, risk_factors, evaluated_at
		FROM assessments
		WHERE sender = $1
		ORDER BY evaluated_at DESC
		LIMIT $2
	`, sender, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*AnalysisResult
	for rows.Next() {
		var r AnalysisResult
		var componentsJSON, factorsJSON []byte
		var evaluatedAt time.Time

		if err := rows.Scan(&r.ID, &r.Sender, &r.Recipient, &r.RiskScore, &r.RiskLevel,
			&r.Recommendation, &componentsJSON, &factorsJSON, &evaluatedAt); err != nil {
			continue
		}
		r.EvaluatedAt = evaluatedAt
		_ = json.Unmarshal(componentsJSON, &r.ComponentScores)
		_ = json.Unmarshal(factorsJSON, &r.RiskFactors)
		result = append(result, &r)
	}
	return result, nil
}
