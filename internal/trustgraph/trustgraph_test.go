package trustgraph

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func buildTestGraph() *Graph {
	g := New("acme.com")
	g.AddExecutive("ceo@acme.com")
	g.AddExecutive("cfo@acme.com")

	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	// Internal traffic.
	for i := 0; i < 100; i++ {
		g.AddInteraction(Interaction{
			From:      "ceo@acme.com",
			To:        "cfo@acme.com",
			Timestamp: base.AddDate(0, 0, i),
			Subject:   "planning",
		})
	}

	// Long-running reciprocal vendor relationship, including payments.
	for i := 0; i < 50; i++ {
		g.AddInteraction(Interaction{
			From:              "billing@trustedvendor.com",
			To:                "accounts@acme.com",
			Timestamp:         base.AddDate(0, 0, i*3),
			Subject:           "invoice",
			HasPaymentRequest: true,
			AmountRequested:   5000,
		})
		g.AddInteraction(Interaction{
			From:      "accounts@acme.com",
			To:        "billing@trustedvendor.com",
			Timestamp: base.AddDate(0, 0, i*3+1),
			Subject:   "re: invoice",
		})
	}

	return g
}

func TestPropagateTrust_RaisesKnownVendor(t *testing.T) {
	g := buildTestGraph()
	g.PropagateTrust(20, 0.85, 1e-6)

	if got := g.TrustScore("ceo@acme.com"); got != 1.0 {
		t.Errorf("internal trust = %f, want 1.0", got)
	}

	vendor := g.TrustScore("billing@trustedvendor.com")
	if vendor <= 0.5 {
		t.Errorf("established vendor trust = %f, want > 0.5", vendor)
	}
	if vendor > 1.0 {
		t.Errorf("trust %f exceeds 1.0", vendor)
	}

	if got := g.TrustScore("random@unknown.com"); got != 0.0 {
		t.Errorf("unseen address trust = %f, want 0.0", got)
	}
}

func TestPropagateTrust_Deterministic(t *testing.T) {
	g1 := buildTestGraph()
	g2 := buildTestGraph()
	g1.PropagateTrust(20, 0.85, 1e-6)
	g2.PropagateTrust(20, 0.85, 1e-6)

	for _, addr := range []string{"ceo@acme.com", "billing@trustedvendor.com", "accounts@acme.com"} {
		if g1.TrustScore(addr) != g2.TrustScore(addr) {
			t.Errorf("trust for %s differs between identical graphs", addr)
		}
	}
}

func TestPropagateTrust_Rerun(t *testing.T) {
	g := buildTestGraph()
	g.PropagateTrust(20, 0.85, 1e-6)
	first := g.TrustScore("billing@trustedvendor.com")
	g.PropagateTrust(20, 0.85, 1e-6)
	if got := g.TrustScore("billing@trustedvendor.com"); got != first {
		t.Errorf("rerun changed trust: %f then %f", first, got)
	}
}

func TestAnalyzePaymentRequest_RequiresPropagation(t *testing.T) {
	g := buildTestGraph()
	if _, err := g.AnalyzePaymentRequest("billing@trustedvendor.com", "accounts@acme.com", 5000); !errors.Is(err, ErrNotPropagated) {
		t.Fatalf("expected ErrNotPropagated, got %v", err)
	}

	g.PropagateTrust(20, 0.85, 1e-6)

	// New observations invalidate the propagation.
	g.AddInteraction(Interaction{
		From:      "new@somewhere.com",
		To:        "accounts@acme.com",
		Timestamp: time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
	})
	if _, err := g.AnalyzePaymentRequest("billing@trustedvendor.com", "accounts@acme.com", 5000); !errors.Is(err, ErrNotPropagated) {
		t.Fatalf("expected ErrNotPropagated after new interaction, got %v", err)
	}
}

func TestAnalyzePaymentRequest_UnknownSender(t *testing.T) {
	g := buildTestGraph()
	g.PropagateTrust(20, 0.85, 1e-6)

	// Lookalike domain: never communicated with accounts@acme.com.
	res, err := g.AnalyzePaymentRequest("ceo@acme-corp.com", "accounts@acme.com", 50000)
	if err != nil {
		t.Fatalf("AnalyzePaymentRequest: %v", err)
	}
	if res.RiskScore < 0.7 {
		t.Errorf("unknown sender risk = %f, want >= 0.7", res.RiskScore)
	}
	if !hasFactor(res.RiskFactors, "UNKNOWN_SENDER") {
		t.Errorf("missing UNKNOWN_SENDER factor: %v", res.RiskFactors)
	}
	if !hasFactor(res.RiskFactors, "HIGH_VALUE_LOW_TRUST") {
		t.Errorf("missing HIGH_VALUE_LOW_TRUST factor: %v", res.RiskFactors)
	}
}

func TestAnalyzePaymentRequest_EstablishedVendor(t *testing.T) {
	g := buildTestGraph()
	g.PropagateTrust(20, 0.85, 1e-6)

	res, err := g.AnalyzePaymentRequest("billing@trustedvendor.com", "accounts@acme.com", 5000)
	if err != nil {
		t.Fatalf("AnalyzePaymentRequest: %v", err)
	}
	if res.RiskScore >= 0.3 {
		t.Errorf("established vendor risk = %f, want < 0.3 (factors %v)", res.RiskScore, res.RiskFactors)
	}
	if hasFactor(res.RiskFactors, "UNKNOWN_SENDER") {
		t.Errorf("unexpected UNKNOWN_SENDER for known pair: %v", res.RiskFactors)
	}
}

func TestAnalyzePaymentRequest_AmountOutlier(t *testing.T) {
	g := buildTestGraph()
	g.PropagateTrust(20, 0.85, 1e-6)

	// Vendor always invoices 5000; suddenly asks 50000.
	res, err := g.AnalyzePaymentRequest("billing@trustedvendor.com", "accounts@acme.com", 50000)
	if err != nil {
		t.Fatalf("AnalyzePaymentRequest: %v", err)
	}
	if !hasFactor(res.RiskFactors, "AMOUNT_OUTLIER") {
		t.Errorf("missing AMOUNT_OUTLIER factor: %v", res.RiskFactors)
	}
	if res.RiskScore <= 0.0 {
		t.Errorf("outlier risk = %f, want > 0", res.RiskScore)
	}
}

func TestRelationshipStrength(t *testing.T) {
	g := buildTestGraph()

	if got := g.RelationshipStrength("nobody@x.com", "accounts@acme.com"); got != 0.0 {
		t.Errorf("unknown pair strength = %f, want 0", got)
	}

	strong := g.RelationshipStrength("billing@trustedvendor.com", "accounts@acme.com")
	if strong <= 0.5 {
		t.Errorf("reciprocal vendor strength = %f, want > 0.5", strong)
	}
	if strong > 1.0 {
		t.Errorf("strength %f exceeds 1.0", strong)
	}

	// Strength is symmetric over the pair.
	reverse := g.RelationshipStrength("accounts@acme.com", "billing@trustedvendor.com")
	if strong != reverse {
		t.Errorf("strength not symmetric: %f vs %f", strong, reverse)
	}
}

func TestAddInteraction_NormalizesCase(t *testing.T) {
	g := New("acme.com")
	g.AddInteraction(Interaction{
		From:      "CEO@Acme.com",
		To:        "cfo@acme.com",
		Timestamp: time.Now(),
	})
	n, ok := g.Node("ceo@acme.com")
	if !ok {
		t.Fatal("node not found under lowercase address")
	}
	if !n.IsInternal {
		t.Error("internal domain not detected case-insensitively")
	}
}

func TestExport(t *testing.T) {
	g := buildTestGraph()
	g.PropagateTrust(20, 0.85, 1e-6)

	ex := g.Export()
	nodes, edges := g.Size()
	if len(ex.Nodes) != nodes || len(ex.Edges) != edges {
		t.Fatalf("export size mismatch: %d/%d vs %d/%d", len(ex.Nodes), len(ex.Edges), nodes, edges)
	}
	for i := 1; i < len(ex.Nodes); i++ {
		if ex.Nodes[i-1].Address > ex.Nodes[i].Address {
			t.Fatal("exported nodes not sorted")
		}
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
