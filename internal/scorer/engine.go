package scorer

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cyrenity/becguard/internal/idgen"
	"github.com/cyrenity/becguard/internal/stylometry"
	"github.com/cyrenity/becguard/internal/temporal"
	"github.com/cyrenity/becguard/internal/trustgraph"
	"github.com/cyrenity/becguard/internal/validation"
)

// Default component configuration; override with the With* methods before
// training begins.
const (
	DefaultTemporalMinSamples = 50
	DefaultStyleMinSamples    = 10
	DefaultStyleMinTokens     = 20
	DefaultTimezoneTolerance  = 60 // minutes

	DefaultPropagationIterations = 20
	DefaultPropagationDamping    = 0.85
	DefaultPropagationEpsilon    = 1e-6
)

var urgencyKeywords = []string{"urgent", "asap", "immediately", "rush", "today", "now"}

var secrecyKeywords = []string{"confidential", "secret", "dont tell", "don't tell", "between us", "private", "discreet"}

// Engine is the multi-signal scoring engine for one organization.
type Engine struct {
	mu    sync.RWMutex
	state State

	graph    *trustgraph.Graph
	temporal *temporal.Analyzer
	style    *stylometry.Engine
	store    Store

	weightTrust      float64
	weightTemporal   float64
	weightStylometry float64
	weightPayment    float64

	thresholdMedium   float64
	thresholdHigh     float64
	thresholdCritical float64

	propIterations int
	propDamping    float64
	propEpsilon    float64

	trained        int
	executives     int
	lastIterations int
	lastIngested   time.Time
}

// NewEngine creates a scoring engine for the given organization domain,
// backed by the given audit store. A nil store disables persistence.
func NewEngine(orgDomain string, store Store) *Engine {
	return &Engine{
		state:    StateUntrained,
		graph:    trustgraph.New(orgDomain),
		temporal: temporal.NewAnalyzer(DefaultTemporalMinSamples, DefaultTimezoneTolerance),
		style:    stylometry.NewEngine(DefaultStyleMinSamples, DefaultStyleMinTokens),
		store:    store,

		weightTrust:      DefaultWeightTrust,
		weightTemporal:   DefaultWeightTemporal,
		weightStylometry: DefaultWeightStylometry,
		weightPayment:    DefaultWeightPayment,

		thresholdMedium:   DefaultThresholdMedium,
		thresholdHigh:     DefaultThresholdHigh,
		thresholdCritical: DefaultThresholdCritical,

		propIterations: DefaultPropagationIterations,
		propDamping:    DefaultPropagationDamping,
		propEpsilon:    DefaultPropagationEpsilon,
	}
}

// WithWeights overrides the component weights. Call before analysis.
func (e *Engine) WithWeights(trust, temporalW, style, payment float64) *Engine {
	e.weightTrust = trust
	e.weightTemporal = temporalW
	e.weightStylometry = style
	e.weightPayment = payment
	return e
}

// WithThresholds overrides the risk level thresholds.
func (e *Engine) WithThresholds(medium, high, critical float64) *Engine {
	e.thresholdMedium = medium
	e.thresholdHigh = high
	e.thresholdCritical = critical
	return e
}

// WithTemporalConfig replaces the temporal analyzer configuration.
// Call before any training email is added.
func (e *Engine) WithTemporalConfig(minSamples, tzToleranceMinutes int) *Engine {
	e.temporal = temporal.NewAnalyzer(minSamples, tzToleranceMinutes)
	return e
}

// WithStyleConfig replaces the stylometry engine configuration.
// Call before any training email is added.
func (e *Engine) WithStyleConfig(minSamples, minTokens int) *Engine {
	e.style = stylometry.NewEngine(minSamples, minTokens)
	return e
}

// WithPropagation overrides trust propagation parameters.
func (e *Engine) WithPropagation(iterations int, damping, epsilon float64) *Engine {
	e.propIterations = iterations
	e.propDamping = damping
	e.propEpsilon = epsilon
	return e
}

// AddExecutive marks an address as a high-value impersonation target.
func (e *Engine) AddExecutive(addr string) {
	e.graph.AddExecutive(addr)
	e.mu.Lock()
	e.executives++
	e.mu.Unlock()
}

// validateRecord rejects a record before any component sees it, so a bad
// record never partially trains the engine.
func validateRecord(rec *EmailRecord) error {
	errs := validation.Validate(
		validation.Required("from", rec.From),
		validation.ValidEmail("from", rec.From),
		validation.Required("to", rec.To),
		validation.ValidEmail("to", rec.To),
		validation.MaxLength("subject", rec.Subject, 1000),
		validation.MaxLength("body", rec.Body, validation.MaxBodyLength),
		validation.NonNegativeAmount("amountRequested", rec.AmountRequested),
	)
	if rec.Timestamp.IsZero() {
		errs = append(errs, validation.ValidationError{Field: "timestamp", Message: "is required"})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// TrainOnEmail adds one historical email to the training corpus. Records
// must arrive in timestamp order; a record older than the last ingested
// one is rejected with ErrOutOfOrder before any state changes.
// Training after finalization is allowed; the new data only becomes
// visible to analysis after another FinalizeTraining call.
func (e *Engine) TrainOnEmail(rec *EmailRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}

	e.mu.Lock()
	if rec.Timestamp.Before(e.lastIngested) {
		last := e.lastIngested
		e.mu.Unlock()
		return fmt.Errorf("%w: %s precedes %s", ErrOutOfOrder,
			rec.Timestamp.Format(time.RFC3339), last.Format(time.RFC3339))
	}
	e.lastIngested = rec.Timestamp
	e.mu.Unlock()

	e.graph.AddInteraction(trustgraph.Interaction{
		From:              rec.From,
		To:                rec.To,
		Timestamp:         rec.Timestamp,
		Subject:           rec.Subject,
		HasPaymentRequest: rec.HasPaymentRequest,
		AmountRequested:   rec.AmountRequested,
	})

	e.temporal.AddEmail(temporal.Event{
		Sender:         rec.From,
		Recipient:      rec.To,
		Timestamp:      rec.Timestamp,
		TimezoneOffset: rec.TimezoneOffset,
		MessageID:      rec.MessageID,
		ResponseTo:     rec.InReplyTo,
	})

	if len(rec.Body) >= minStyleSampleBytes {
		e.style.AddSample(rec.From, rec.Body)
	}

	e.mu.Lock()
	e.trained++
	e.state = StateTraining
	e.mu.Unlock()
	return nil
}

// BatchError ties a training failure to its record index.
type BatchError struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

// TrainBatch trains on a slice of records, collecting per-record failures
// instead of aborting the batch. Returns the number accepted.
func (e *Engine) TrainBatch(records []*EmailRecord) (int, []BatchError) {
	accepted := 0
	var failures []BatchError
	for i, rec := range records {
		if err := e.TrainOnEmail(rec); err != nil {
			failures = append(failures, BatchError{Index: i, Error: err.Error()})
			continue
		}
		accepted++
	}
	return accepted, failures
}

// FinalizeTraining propagates trust and builds all profiles, moving the
// engine to the finalized state. Idempotent when no new data has arrived.
// Returns the number of propagation iterations used.
func (e *Engine) FinalizeTraining() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateFinalized {
		return e.lastIterations
	}

	e.lastIterations = e.graph.PropagateTrust(e.propIterations, e.propDamping, e.propEpsilon)
	e.temporal.FinalizeProfiles()
	e.style.BuildAllProfiles()
	e.state = StateFinalized
	return e.lastIterations
}

// State returns the engine's lifecycle phase.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Stats snapshots engine counters for the stats endpoint.
func (e *Engine) Stats() *Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	nodes, edges := e.graph.Size()
	return &Stats{
		State:            e.state,
		GraphNodes:       nodes,
		GraphEdges:       edges,
		TemporalProfiles: e.temporal.ProfileCount(),
		StyleProfiles:    e.style.ProfileCount(),
		EmailsTrained:    e.trained,
		Executives:       e.executives,
	}
}

// Graph exposes the trust graph for inspection endpoints.
func (e *Engine) Graph() *trustgraph.Graph { return e.graph }

// TemporalSummary returns a sender's temporal profile summary, if built.
func (e *Engine) TemporalSummary(addr string) (*temporal.Summary, bool) {
	return e.temporal.ProfileSummary(addr)
}

// StyleProfile returns a sender's style profile, if built.
func (e *Engine) StyleProfile(addr string) (*stylometry.Profile, bool) {
	return e.style.Profile(addr)
}

// AnalyzeEmail scores an email for impersonation indicators. Before
// finalization it returns an indeterminate verdict together with
// ErrNotFinalized; indeterminate must never be read as low risk.
func (e *Engine) AnalyzeEmail(ctx context.Context, rec *EmailRecord) (*AnalysisResult, error) {
	if err := validateRecord(rec); err != nil {
		return nil, err
	}

	sender := strings.ToLower(rec.From)
	recipient := strings.ToLower(rec.To)

	if e.State() != StateFinalized {
		return e.indeterminate(sender, recipient, "training not finalized"), ErrNotFinalized
	}

	var factors []string

	trustRisk, trustFactors, err := e.trustComponent(rec)
	if err != nil {
		return e.indeterminate(sender, recipient, "trust graph unavailable"), err
	}
	factors = append(factors, trustFactors...)

	temporalRes := e.temporal.AnalyzeEmail(temporal.Event{
		Sender:         rec.From,
		Recipient:      rec.To,
		Timestamp:      rec.Timestamp,
		TimezoneOffset: rec.TimezoneOffset,
		MessageID:      rec.MessageID,
	})
	factors = append(factors, temporalRes.Anomalies...)

	styleRes := e.style.CompareToProfile(rec.Body, rec.From)
	styleRisk := 1 - styleRes.Similarity
	factors = append(factors, styleRes.Deviations...)
	if !styleRes.HasProfile {
		factors = append(factors, "NO_STYLE_BASELINE: no writing profile for sender")
	} else if styleRes.LowConfidence {
		factors = append(factors, "STYLE_LOW_CONFIDENCE: text too short for reliable comparison")
	}

	paymentRisk, paymentFactors := paymentComponent(rec)
	factors = append(factors, paymentFactors...)

	components := ComponentScores{
		Trust:      trustRisk,
		Temporal:   temporalRes.AnomalyScore,
		Stylometry: styleRisk,
		Payment:    paymentRisk,
	}
	for _, c := range []float64{components.Trust, components.Temporal, components.Stylometry, components.Payment} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return e.indeterminate(sender, recipient, "non-finite component score"), nil
		}
	}

	score := e.weightTrust*components.Trust +
		e.weightTemporal*components.Temporal +
		e.weightStylometry*components.Stylometry +
		e.weightPayment*components.Payment
	score = math.Max(0, math.Min(1, score))

	level, recommendation := e.classify(score)

	result := &AnalysisResult{
		ID:              idgen.WithPrefix("bec_"),
		Sender:          sender,
		Recipient:       recipient,
		RiskScore:       math.Round(score*1000) / 1000,
		RiskLevel:       level,
		Recommendation:  recommendation,
		ComponentScores: components,
		RiskFactors:     dedupeSorted(factors),
		EvaluatedAt:     time.Now(),
	}

	// Persist asynchronously (best-effort audit trail)
	if e.store != nil {
		go func() {
			_ = e.store.Record(context.Background(), result)
		}()
	}

	return result, nil
}

// trustComponent scores the sender's position in the trust graph.
func (e *Engine) trustComponent(rec *EmailRecord) (float64, []string, error) {
	if rec.HasPaymentRequest {
		res, err := e.graph.AnalyzePaymentRequest(rec.From, rec.To, rec.AmountRequested)
		if err != nil {
			return 0, nil, err
		}
		return res.RiskScore, res.RiskFactors, nil
	}

	trust := e.graph.TrustScore(rec.From)
	strength := e.graph.RelationshipStrength(rec.From, rec.To)

	risk := 0.0
	if trust <= 0.5 {
		risk = 0.5 - trust
	}

	var factors []string
	if trust < 0.3 {
		factors = append(factors, fmt.Sprintf("LOW_TRUST: sender trust score %.2f", trust))
	}
	if strength < 0.2 {
		factors = append(factors, "WEAK_RELATIONSHIP: limited prior communication")
	}
	return risk, factors, nil
}

// paymentComponent scores the pressure tactics around a payment request.
func paymentComponent(rec *EmailRecord) (float64, []string) {
	if !rec.HasPaymentRequest {
		return 0, nil
	}

	risk := 0.2 // any payment request carries base risk
	var factors []string

	if rec.AmountRequested >= 50000 {
		risk += 0.3
		factors = append(factors, fmt.Sprintf("HIGH_VALUE: $%.0f requested", rec.AmountRequested))
	} else if rec.AmountRequested > 10000 {
		risk += 0.1
	}

	text := strings.ToLower(rec.Subject + " " + rec.Body)

	urgency := 0
	for _, kw := range urgencyKeywords {
		if strings.Contains(text, kw) {
			urgency++
		}
	}
	if urgency >= 2 {
		risk += 0.2
		factors = append(factors, fmt.Sprintf("URGENCY_PRESSURE: %d urgency markers", urgency))
	}

	for _, kw := range secrecyKeywords {
		if strings.Contains(text, kw) {
			risk += 0.2
			factors = append(factors, "SECRECY_REQUEST: asks for confidentiality")
			break
		}
	}

	return math.Min(1, risk), factors
}

func (e *Engine) classify(score float64) (RiskLevel, string) {
	switch {
	case score >= e.thresholdCritical:
		return RiskCritical, "BLOCK: Do not proceed. Verify through phone call to a known number."
	case score >= e.thresholdHigh:
		return RiskHigh, "HOLD: Requires manager approval and verbal confirmation."
	case score >= e.thresholdMedium:
		return RiskMedium, "REVIEW: Examine request carefully. Consider verification."
	default:
		return RiskLow, "PROCEED: Normal risk level."
	}
}

func (e *Engine) indeterminate(sender, recipient, reason string) *AnalysisResult {
	return &AnalysisResult{
		ID:             idgen.WithPrefix("bec_"),
		Sender:         sender,
		Recipient:      recipient,
		RiskLevel:      RiskIndeterminate,
		Recommendation: "HOLD: No verdict available. Verify through a separate channel.",
		RiskFactors:    []string{"INDETERMINATE: " + reason},
		EvaluatedAt:    time.Now(),
	}
}

// dedupeSorted returns the factor set as a sorted, duplicate-free slice so
// results serialize deterministically.
func dedupeSorted(factors []string) []string {
	seen := make(map[string]bool, len(factors))
	out := make([]string, 0, len(factors))
	for _, f := range factors {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}
