package scorer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

var execBodies = []string{
	"Thank you for the summary of the quarterly results. I have reviewed the figures in detail and believe the outlook supports our current plan. Please arrange a session with the finance team so we can discuss the variances.",
	"I wanted to follow up on the discussion from our last meeting. The board has approved the proposed allocation, and we should begin the implementation work as scheduled. Let me know if anything requires my attention.",
	"After considering the vendor proposal at length, I think we should request alternative quotations before committing. The delivery timeline appears optimistic, and I would prefer additional options before a final decision.",
	"Per our conversation, I am approving the agreement with the noted revisions. Please ensure that legal has reviewed the updated terms before execution. I appreciate the thorough preparation on this matter.",
	"I have reviewed the staffing changes you recommended for the coming quarter. While I understand the reasoning, I believe a more gradual transition would serve the team better. We can discuss the details next week.",
	"Thank you for raising this issue promptly. The situation requires coordination with several stakeholders, and I suggest we align internally before responding externally. Your judgment here has been sound.",
	"I am pleased to report that the board has endorsed the strategic initiative we presented. This is a meaningful milestone for the organization, and the team deserves recognition for the preparation involved.",
	"Following up on the acquisition discussion, I have reservations about the valuation approach that was used. Perhaps an independent advisor should provide a second opinion before we proceed further.",
	"The regulatory filing must be submitted before the end of the month. Please coordinate with external counsel so that every requirement is addressed correctly. This item should be treated as a priority.",
	"I appreciate the comprehensive analysis you prepared for the committee. The recommendations align well with our longer term objectives, and I support proceeding as outlined in the final section.",
}

// trainExecutive feeds n weekday business-hours emails from the CEO with a
// consistent timezone and writing voice.
func trainExecutive(t *testing.T, e *Engine, n int) {
	t.Helper()
	ts := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC) // a Monday
	count := 0
	for count < n {
		if ts.Weekday() == time.Saturday || ts.Weekday() == time.Sunday {
			ts = ts.AddDate(0, 0, 1)
			continue
		}
		hour := 9 + count%9
		err := e.TrainOnEmail(&EmailRecord{
			From:           "ceo@company.com",
			To:             "cfo@company.com",
			Subject:        "Re: planning",
			Body:           execBodies[count%len(execBodies)],
			Timestamp:      time.Date(ts.Year(), ts.Month(), ts.Day(), hour, 15, 0, 0, time.UTC),
			TimezoneOffset: -300,
		})
		if err != nil {
			t.Fatalf("TrainOnEmail: %v", err)
		}
		count++
		if count%9 == 0 {
			ts = ts.AddDate(0, 0, 1)
		}
	}
}

func newTrainedEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine("company.com", nil)
	e.AddExecutive("ceo@company.com")
	trainExecutive(t, e, 60)
	e.FinalizeTraining()
	return e
}

func TestAnalyzeEmail_BeforeFinalizeIsIndeterminate(t *testing.T) {
	e := NewEngine("company.com", nil)
	_ = e.TrainOnEmail(&EmailRecord{
		From: "ceo@company.com", To: "cfo@company.com",
		Timestamp: time.Now(),
	})

	res, err := e.AnalyzeEmail(context.Background(), &EmailRecord{
		From: "ceo@company.com", To: "cfo@company.com",
		Timestamp: time.Now(),
	})
	if !errors.Is(err, ErrNotFinalized) {
		t.Fatalf("expected ErrNotFinalized, got %v", err)
	}
	if res.RiskLevel != RiskIndeterminate {
		t.Errorf("risk level = %s, want INDETERMINATE", res.RiskLevel)
	}
	if !strings.HasPrefix(res.Recommendation, "HOLD") {
		t.Errorf("indeterminate recommendation should hold, got %q", res.Recommendation)
	}
}

func TestTrainOnEmail_RejectsMalformed(t *testing.T) {
	e := NewEngine("company.com", nil)

	bad := []*EmailRecord{
		{From: "", To: "cfo@company.com", Timestamp: time.Now()},
		{From: "not-an-address", To: "cfo@company.com", Timestamp: time.Now()},
		{From: "ceo@company.com", To: "cfo@company.com"}, // zero timestamp
		{From: "ceo@company.com", To: "cfo@company.com", Timestamp: time.Now(), AmountRequested: -5},
	}
	for i, rec := range bad {
		if err := e.TrainOnEmail(rec); err == nil {
			t.Errorf("record %d: expected validation error", i)
		}
	}
	if got := e.Stats().EmailsTrained; got != 0 {
		t.Errorf("trained count = %d after rejected records, want 0", got)
	}
	if e.State() != StateUntrained {
		t.Errorf("state = %s, want untrained", e.State())
	}
}

func TestTrainOnEmail_RejectsOutOfOrder(t *testing.T) {
	e := NewEngine("company.com", nil)
	t2 := time.Date(2026, 1, 6, 10, 0, 0, 0, time.UTC)
	if err := e.TrainOnEmail(&EmailRecord{
		From: "ceo@company.com", To: "cfo@company.com", Timestamp: t2,
	}); err != nil {
		t.Fatalf("TrainOnEmail: %v", err)
	}

	// A record that predates already-ingested history must be rejected
	// before it can touch relationship state.
	err := e.TrainOnEmail(&EmailRecord{
		From: "ceo@company.com", To: "cfo@company.com",
		Timestamp: t2.Add(-time.Hour),
	})
	if !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder, got %v", err)
	}
	if got := e.Stats().EmailsTrained; got != 1 {
		t.Errorf("trained count = %d after rejected record, want 1", got)
	}

	// Equal timestamps are allowed; batches often share a second.
	if err := e.TrainOnEmail(&EmailRecord{
		From: "cfo@company.com", To: "ceo@company.com", Timestamp: t2,
	}); err != nil {
		t.Errorf("equal timestamp should train, got %v", err)
	}
}

func TestTrainBatch_PartialFailures(t *testing.T) {
	e := NewEngine("company.com", nil)
	records := []*EmailRecord{
		{From: "ceo@company.com", To: "cfo@company.com", Timestamp: time.Now()},
		{From: "broken", To: "cfo@company.com", Timestamp: time.Now()},
		{From: "cfo@company.com", To: "ceo@company.com", Timestamp: time.Now()},
	}
	accepted, failures := e.TrainBatch(records)
	if accepted != 2 {
		t.Errorf("accepted = %d, want 2", accepted)
	}
	if len(failures) != 1 || failures[0].Index != 1 {
		t.Errorf("failures = %+v, want index 1", failures)
	}
}

func TestAnalyzeEmail_LegitimateExecutiveEmail(t *testing.T) {
	e := newTrainedEngine(t)

	res, err := e.AnalyzeEmail(context.Background(), &EmailRecord{
		From:           "ceo@company.com",
		To:             "cfo@company.com",
		Subject:        "Re: Q3 budget review",
		Body:           execBodies[0],
		Timestamp:      time.Date(2026, 3, 3, 14, 30, 0, 0, time.UTC), // Tuesday afternoon
		TimezoneOffset: -300,
	})
	if err != nil {
		t.Fatalf("AnalyzeEmail: %v", err)
	}
	if res.RiskLevel != RiskLow {
		t.Errorf("risk level = %s (score %f, factors %v), want LOW", res.RiskLevel, res.RiskScore, res.RiskFactors)
	}
	if !strings.HasPrefix(res.Recommendation, "PROCEED") {
		t.Errorf("recommendation = %q, want PROCEED", res.Recommendation)
	}
}

func TestAnalyzeEmail_ImpersonationAttack(t *testing.T) {
	e := newTrainedEngine(t)

	// Spoofed CEO at 3 AM from the wrong timezone, urgent wire to a
	// recipient pair the CEO has never written to.
	res, err := e.AnalyzeEmail(context.Background(), &EmailRecord{
		From:              "ceo@company.com",
		To:                "controller@company.com",
		Subject:           "URGENT WIRE TRANSFER NEEDED",
		Body:              "Hey!! I need you to wire $50,000 to this new vendor ASAP!!! Its super urgent and I cant explain right now. Just do it quick. Dont tell anyone about this ok? HURRY!!!",
		Timestamp:         time.Date(2026, 3, 3, 3, 15, 0, 0, time.UTC), // Tuesday 03:00
		TimezoneOffset:    480,
		HasPaymentRequest: true,
		AmountRequested:   50000,
	})
	if err != nil {
		t.Fatalf("AnalyzeEmail: %v", err)
	}
	if res.RiskLevel != RiskCritical {
		t.Errorf("risk level = %s (score %f), want CRITICAL", res.RiskLevel, res.RiskScore)
	}
	if !strings.HasPrefix(res.Recommendation, "BLOCK") {
		t.Errorf("recommendation = %q, want BLOCK", res.Recommendation)
	}
	for _, tag := range []string{"UNKNOWN_SENDER", "UNUSUAL_HOUR", "TIMEZONE_MISMATCH", "URGENCY_PRESSURE", "SECRECY_REQUEST"} {
		if !hasFactor(res.RiskFactors, tag) {
			t.Errorf("missing factor %s: %v", tag, res.RiskFactors)
		}
	}
	if res.RiskScore < 0.8 || res.RiskScore > 1.0 {
		t.Errorf("risk score = %f, want in [0.8, 1.0]", res.RiskScore)
	}
}

func TestAnalyzeEmail_FactorsSortedAndDeduped(t *testing.T) {
	e := newTrainedEngine(t)

	res, err := e.AnalyzeEmail(context.Background(), &EmailRecord{
		From:              "ceo@company.com",
		To:                "controller@company.com",
		Subject:           "urgent urgent",
		Body:              "Wire the funds today, this is urgent and must happen now before anyone else hears about it.",
		Timestamp:         time.Date(2026, 3, 3, 3, 15, 0, 0, time.UTC),
		TimezoneOffset:    480,
		HasPaymentRequest: true,
		AmountRequested:   20000,
	})
	if err != nil {
		t.Fatalf("AnalyzeEmail: %v", err)
	}
	seen := make(map[string]bool)
	for i, f := range res.RiskFactors {
		if seen[f] {
			t.Errorf("duplicate factor %q", f)
		}
		seen[f] = true
		if i > 0 && res.RiskFactors[i-1] > f {
			t.Errorf("factors not sorted at %d: %q > %q", i, res.RiskFactors[i-1], f)
		}
	}
}

func TestAnalyzeEmail_NoStyleBaseline(t *testing.T) {
	e := NewEngine("company.com", nil)
	// Vendor emails are short, so no style samples accumulate.
	ts := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		if err := e.TrainOnEmail(&EmailRecord{
			From:      "billing@vendor.com",
			To:        "accounts@company.com",
			Subject:   "Invoice",
			Body:      "Invoice attached.",
			Timestamp: ts.Add(time.Duration(i) * 24 * time.Hour),
		}); err != nil {
			t.Fatalf("TrainOnEmail: %v", err)
		}
	}
	e.FinalizeTraining()

	res, err := e.AnalyzeEmail(context.Background(), &EmailRecord{
		From:      "billing@vendor.com",
		To:        "accounts@company.com",
		Subject:   "Invoice",
		Body:      "Please find attached the invoice for services rendered this month, payment is due within thirty days as usual.",
		Timestamp: ts.Add(61 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("AnalyzeEmail: %v", err)
	}
	if !hasFactor(res.RiskFactors, "NO_STYLE_BASELINE") {
		t.Errorf("missing NO_STYLE_BASELINE: %v", res.RiskFactors)
	}
	if res.ComponentScores.Stylometry != 0.5 {
		t.Errorf("style risk without baseline = %f, want neutral 0.5", res.ComponentScores.Stylometry)
	}
}

func TestFinalizeTraining_Idempotent(t *testing.T) {
	e := NewEngine("company.com", nil)
	trainExecutive(t, e, 60)

	it1 := e.FinalizeTraining()
	it2 := e.FinalizeTraining()
	if it1 != it2 {
		t.Errorf("repeat finalize changed iterations: %d then %d", it1, it2)
	}
	if e.State() != StateFinalized {
		t.Errorf("state = %s, want finalized", e.State())
	}

	// New training data demotes the engine until refinalized.
	if err := e.TrainOnEmail(&EmailRecord{
		From: "new@vendor.com", To: "accounts@company.com", Timestamp: time.Now(),
	}); err != nil {
		t.Fatalf("TrainOnEmail: %v", err)
	}
	if e.State() != StateTraining {
		t.Errorf("state after new data = %s, want training", e.State())
	}
	if _, err := e.AnalyzeEmail(context.Background(), &EmailRecord{
		From: "ceo@company.com", To: "cfo@company.com", Timestamp: time.Now(),
	}); !errors.Is(err, ErrNotFinalized) {
		t.Errorf("expected ErrNotFinalized after new data, got %v", err)
	}

	e.FinalizeTraining()
	if e.State() != StateFinalized {
		t.Errorf("state after refinalize = %s, want finalized", e.State())
	}
}

func TestStats(t *testing.T) {
	e := newTrainedEngine(t)
	stats := e.Stats()
	if stats.State != StateFinalized {
		t.Errorf("state = %s, want finalized", stats.State)
	}
	if stats.EmailsTrained != 60 {
		t.Errorf("trained = %d, want 60", stats.EmailsTrained)
	}
	if stats.GraphNodes < 2 || stats.GraphEdges < 1 {
		t.Errorf("graph size %d/%d, want at least 2 nodes and 1 edge", stats.GraphNodes, stats.GraphEdges)
	}
	if stats.TemporalProfiles == 0 || stats.StyleProfiles == 0 {
		t.Errorf("expected profiles, got %+v", stats)
	}
	if stats.Executives != 1 {
		t.Errorf("executives = %d, want 1", stats.Executives)
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.Record(ctx, &AnalysisResult{
			ID:     "bec_" + string(rune('a'+i)),
			Sender: "ceo@company.com",
		}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	results, err := s.ListBySender(ctx, "ceo@company.com", 2)
	if err != nil {
		t.Fatalf("ListBySender: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != "bec_c" {
		t.Errorf("most recent first: got %s", results[0].ID)
	}

	if results, _ := s.ListBySender(ctx, "nobody@x.com", 10); results != nil {
		t.Errorf("expected nil for unknown sender, got %v", results)
	}
}

func hasFactor(factors []string, tag string) bool {
	for _, f := range factors {
		if strings.HasPrefix(f, tag) {
			return true
		}
	}
	return false
}
