// Package scorer implements multi-signal email impersonation scoring.
//
// Every analyzed email is evaluated against 4 weighted components:
// trust graph position, temporal pattern-of-life fit, stylometric match,
// and payment request pressure. Scores range from 0.0 (safe) to 1.0
// (high risk). Each component catches a different attack shape: the graph
// catches unknown senders and lookalike vendors, timing catches wrong
// timezones and 3 AM requests, stylometry catches voice mismatches.
package scorer

import (
	"context"
	"errors"
	"time"
)

// State is the engine's training lifecycle phase.
type State string

const (
	StateUntrained State = "untrained"
	StateTraining  State = "training"
	StateFinalized State = "finalized"
)

// ErrNotFinalized is returned when analysis is requested before training
// has been finalized for the current corpus.
var ErrNotFinalized = errors.New("scorer: training not finalized")

// ErrOutOfOrder is returned when a training record predates history the
// engine has already ingested. Relationship recency depends on seeing
// interactions in timestamp order.
var ErrOutOfOrder = errors.New("scorer: record predates ingested history")

// RiskLevel classifies an overall risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"

	// RiskIndeterminate means the engine could not produce a verdict.
	// It is never a statement that the email is safe.
	RiskIndeterminate RiskLevel = "INDETERMINATE"
)

// Default decision thresholds.
const (
	DefaultThresholdMedium   = 0.30
	DefaultThresholdHigh     = 0.55
	DefaultThresholdCritical = 0.80
)

// Default component weights (must sum to 1.0).
const (
	DefaultWeightTrust      = 0.35
	DefaultWeightTemporal   = 0.30
	DefaultWeightStylometry = 0.25
	DefaultWeightPayment    = 0.10
)

// minStyleSampleBytes keeps one-liners out of the stylometric corpus.
const minStyleSampleBytes = 100

// EmailRecord is one email, used both for training and analysis.
type EmailRecord struct {
	From              string    `json:"from"`
	To                string    `json:"to"`
	Subject           string    `json:"subject"`
	Body              string    `json:"body"`
	Timestamp         time.Time `json:"timestamp"`
	TimezoneOffset    int       `json:"timezoneOffset"` // minutes east of UTC
	MessageID         string    `json:"messageId,omitempty"`
	InReplyTo         string    `json:"inReplyTo,omitempty"`
	HasPaymentRequest bool      `json:"hasPaymentRequest"`
	AmountRequested   float64   `json:"amountRequested"`
}

// ComponentScores is the per-signal risk breakdown.
type ComponentScores struct {
	Trust      float64 `json:"trust"`
	Temporal   float64 `json:"temporal"`
	Stylometry float64 `json:"stylometry"`
	Payment    float64 `json:"payment"`
}

// AnalysisResult is the complete verdict for one analyzed email.
type AnalysisResult struct {
	ID              string          `json:"id"`
	Sender          string          `json:"sender"`
	Recipient       string          `json:"recipient"`
	RiskScore       float64         `json:"riskScore"`
	RiskLevel       RiskLevel       `json:"riskLevel"`
	Recommendation  string          `json:"recommendation"`
	ComponentScores ComponentScores `json:"componentScores"`
	RiskFactors     []string        `json:"riskFactors"`
	EvaluatedAt     time.Time       `json:"evaluatedAt"`
}

// Store persists analysis results for audit trail.
type Store interface {
	Record(ctx context.Context, result *AnalysisResult) error
	ListBySender(ctx context.Context, sender string, limit int) ([]*AnalysisResult, error)
}

// Stats summarizes the engine's current state for operators.
type Stats struct {
	State            State `json:"state"`
	GraphNodes       int   `json:"graphNodes"`
	GraphEdges       int   `json:"graphEdges"`
	TemporalProfiles int   `json:"temporalProfiles"`
	StyleProfiles    int   `json:"styleProfiles"`
	EmailsTrained    int   `json:"emailsTrained"`
	Executives       int   `json:"executives"`
}
