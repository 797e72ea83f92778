package trustgraph

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// PaymentAssessment is the graph's view of a single payment request.
type PaymentAssessment struct {
	FromAddress          string   `json:"fromAddress"`
	ToAddress            string   `json:"toAddress"`
	Amount               float64  `json:"amount"`
	TrustScore           float64  `json:"trustScore"`
	RelationshipStrength float64  `json:"relationshipStrength"`
	RiskScore            float64  `json:"riskScore"`
	RiskFactors          []string `json:"riskFactors"`
}

// AnalyzePaymentRequest scores a payment request against the graph.
// Trust must have been propagated since the last AddInteraction.
func (g *Graph) AnalyzePaymentRequest(from, to string, amount float64) (*PaymentAssessment, error) {
	from = strings.ToLower(from)
	to = strings.ToLower(to)

	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.propagated {
		return nil, ErrNotPropagated
	}

	fromNode := g.nodes[from]
	strength := g.strengthLocked(from, to)
	outEdge := g.edges[edgeKey{from, to}]
	inEdge := g.edges[edgeKey{to, from}]

	var factors []string
	score := 0.0

	trust := 0.0
	if fromNode != nil {
		trust = fromNode.TrustScore
	}

	// An address pair with no traffic in either direction is the strongest
	// BEC signal: lookalike domains score here even when the displayed name
	// is familiar.
	if outEdge == nil && inEdge == nil {
		factors = append(factors, "UNKNOWN_SENDER: no prior communication on this address pair")
		score += 0.4
	} else if fromNode != nil && fromNode.Interactions < 5 {
		factors = append(factors, "LOW_HISTORY: sender has few prior interactions")
		score += 0.2
	}

	if trust < 0.3 {
		factors = append(factors, fmt.Sprintf("LOW_TRUST: sender trust score %.2f", trust))
		score += 0.3
	} else if trust < 0.5 {
		factors = append(factors, fmt.Sprintf("MEDIUM_TRUST: sender trust score %.2f", trust))
		score += 0.1
	}

	if strength < 0.2 {
		factors = append(factors, "WEAK_RELATIONSHIP: limited prior communication")
		score += 0.25
	}

	if fromNode != nil && fromNode.PaymentsMade == 0 {
		factors = append(factors, "FIRST_PAYMENT_REQUEST: no prior payment requests from this sender")
		score += 0.15
	}

	if amount > 10000 && trust < 0.5 {
		factors = append(factors, "HIGH_VALUE_LOW_TRUST: large amount from low-trust sender")
		score += 0.2
	}

	if outEdge != nil && outEdge.MaxAmount > 0 && amount > 3*outEdge.MaxAmount {
		factors = append(factors, fmt.Sprintf("AMOUNT_OUTLIER: %.0f exceeds 3x prior maximum %.0f", amount, outEdge.MaxAmount))
		score += 0.25
	}

	return &PaymentAssessment{
		FromAddress:          from,
		ToAddress:            to,
		Amount:               amount,
		TrustScore:           trust,
		RelationshipStrength: strength,
		RiskScore:            math.Min(1.0, score),
		RiskFactors:          factors,
	}, nil
}

// ExportedGraph is the JSON shape for graph inspection endpoints.
type ExportedGraph struct {
	Nodes []Node         `json:"nodes"`
	Edges []ExportedEdge `json:"edges"`
}

// ExportedEdge is an edge with its computed strength.
type ExportedEdge struct {
	From     string  `json:"from"`
	To       string  `json:"to"`
	Weight   int     `json:"weight"`
	Strength float64 `json:"strength"`
}

// Export snapshots the graph for visualization and debugging.
// Nodes and edges are sorted for stable output.
func (g *Graph) Export() *ExportedGraph {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := &ExportedGraph{
		Nodes: make([]Node, 0, len(g.nodes)),
		Edges: make([]ExportedEdge, 0, len(g.edges)),
	}
	for _, n := range g.nodes {
		out.Nodes = append(out.Nodes, *n)
	}
	sort.Slice(out.Nodes, func(i, j int) bool { return out.Nodes[i].Address < out.Nodes[j].Address })

	for _, e := range g.edges {
		out.Edges = append(out.Edges, ExportedEdge{
			From:     e.From,
			To:       e.To,
			Weight:   e.Count,
			Strength: g.strengthLocked(e.From, e.To),
		})
	}
	sort.Slice(out.Edges, func(i, j int) bool {
		if out.Edges[i].From != out.Edges[j].From {
			return out.Edges[i].From < out.Edges[j].From
		}
		return out.Edges[i].To < out.Edges[j].To
	})
	return out
}
