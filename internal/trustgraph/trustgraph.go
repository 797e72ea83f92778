// Package trustgraph models the organization's email network as a directed
// graph and propagates trust from internal senders to external contacts.
//
// The model borrows from wallet-clustering analysis:
// - Each address is a node seeded by its standing (internal, executive, external)
// - Each observed email is an interaction on a directed edge
// - Trust flows along edges weighted by relationship strength
package trustgraph

import (
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrNotPropagated is returned when a payment request is analyzed before
// PropagateTrust has run on the current graph contents.
var ErrNotPropagated = errors.New("trustgraph: trust not propagated")

// Seed trust levels by node standing.
const (
	seedInternal = 1.0
	seedExternal = 0.1
)

// recencyHalfLifeDays controls decay of relationship recency.
const recencyHalfLifeDays = 90.0

// Node is an email address in the communication graph.
type Node struct {
	Address       string    `json:"address"`
	TrustScore    float64   `json:"trustScore"`
	IsInternal    bool      `json:"isInternal"`
	IsExecutive   bool      `json:"isExecutive"`
	Interactions  int       `json:"interactionCount"`
	IncomingCount int       `json:"incomingCount"`
	OutgoingCount int       `json:"outgoingCount"`
	PaymentsMade  int       `json:"paymentRequestsMade"`
	FirstSeen     time.Time `json:"firstSeen"`
	LastSeen      time.Time `json:"lastSeen"`
}

// Edge aggregates all observed email from one address to another.
type Edge struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Count     int       `json:"count"`
	MaxAmount float64   `json:"maxAmount"`
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
}

// Interaction is a single observed email event.
type Interaction struct {
	From              string
	To                string
	Timestamp         time.Time
	Subject           string
	HasPaymentRequest bool
	AmountRequested   float64
}

type edgeKey struct{ from, to string }

// Graph is the trust graph for one organization.
// All methods are safe for concurrent use.
type Graph struct {
	mu         sync.RWMutex
	orgDomain  string
	nodes      map[string]*Node
	edges      map[edgeKey]*Edge
	executives map[string]bool
	lastEvent  time.Time
	propagated bool
}

// New creates an empty graph for the given organization domain.
func New(orgDomain string) *Graph {
	return &Graph{
		orgDomain:  strings.ToLower(orgDomain),
		nodes:      make(map[string]*Node),
		edges:      make(map[edgeKey]*Edge),
		executives: make(map[string]bool),
	}
}

// IsInternal reports whether an address belongs to the organization.
func (g *Graph) IsInternal(addr string) bool {
	return strings.HasSuffix(strings.ToLower(addr), "@"+g.orgDomain)
}

// AddExecutive marks an address as a high-value impersonation target.
func (g *Graph) AddExecutive(addr string) {
	addr = strings.ToLower(addr)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.executives[addr] = true
	if n, ok := g.nodes[addr]; ok {
		n.IsExecutive = true
	}
}

// getOrCreate returns the node for addr, creating it if unseen.
// Caller must hold g.mu.
func (g *Graph) getOrCreate(addr string) *Node {
	if n, ok := g.nodes[addr]; ok {
		return n
	}
	n := &Node{
		Address:     addr,
		TrustScore:  seedExternal,
		IsInternal:  g.IsInternal(addr),
		IsExecutive: g.executives[addr],
	}
	if n.IsInternal || n.IsExecutive {
		n.TrustScore = seedInternal
	}
	g.nodes[addr] = n
	return n
}

// AddInteraction records an observed email in the graph.
// New observations invalidate any prior propagation.
func (g *Graph) AddInteraction(in Interaction) {
	from := strings.ToLower(in.From)
	to := strings.ToLower(in.To)

	g.mu.Lock()
	defer g.mu.Unlock()

	fromNode := g.getOrCreate(from)
	toNode := g.getOrCreate(to)

	// FirstSeen/LastSeen only ever widen; a stale timestamp cannot shrink
	// the recorded relationship span.
	if fromNode.FirstSeen.IsZero() {
		fromNode.FirstSeen = in.Timestamp
	}
	if in.Timestamp.After(fromNode.LastSeen) {
		fromNode.LastSeen = in.Timestamp
	}
	fromNode.Interactions++
	fromNode.OutgoingCount++

	if toNode.FirstSeen.IsZero() {
		toNode.FirstSeen = in.Timestamp
	}
	if in.Timestamp.After(toNode.LastSeen) {
		toNode.LastSeen = in.Timestamp
	}
	toNode.IncomingCount++

	if in.HasPaymentRequest {
		fromNode.PaymentsMade++
	}

	key := edgeKey{from, to}
	e, ok := g.edges[key]
	if !ok {
		e = &Edge{From: from, To: to, FirstSeen: in.Timestamp}
		g.edges[key] = e
	}
	e.Count++
	if in.Timestamp.After(e.LastSeen) {
		e.LastSeen = in.Timestamp
	}
	if in.AmountRequested > e.MaxAmount {
		e.MaxAmount = in.AmountRequested
	}

	if in.Timestamp.After(g.lastEvent) {
		g.lastEvent = in.Timestamp
	}
	g.propagated = false
}

// RelationshipStrength scores the tie between two addresses in [0,1] from
// interaction volume, reciprocity, relationship age, and recency.
func (g *Graph) RelationshipStrength(from, to string) float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.strengthLocked(strings.ToLower(from), strings.ToLower(to))
}

func (g *Graph) strengthLocked(from, to string) float64 {
	out := g.edges[edgeKey{from, to}]
	in := g.edges[edgeKey{to, from}]
	if out == nil && in == nil {
		return 0.0
	}

	var outCount, inCount int
	if out != nil {
		outCount = out.Count
	}
	if in != nil {
		inCount = in.Count
	}
	total := outCount + inCount

	minC, maxC := outCount, inCount
	if minC > maxC {
		minC, maxC = maxC, minC
	}
	reciprocity := float64(minC) / math.Max(float64(maxC), 1)

	first, last := edgeSpan(out, in)
	durationDays := math.Max(1, last.Sub(first).Hours()/24)

	// Recency decays relative to the latest event in the graph, so scoring
	// is deterministic for a fixed training corpus.
	daysSinceLast := g.lastEvent.Sub(last).Hours() / 24
	recency := math.Exp(-daysSinceLast / recencyHalfLifeDays)

	strength := math.Log1p(float64(total))*0.3 +
		reciprocity*0.3 +
		math.Min(durationDays/365, 1)*0.2 +
		recency*0.2

	return math.Min(1.0, strength)
}

func edgeSpan(out, in *Edge) (first, last time.Time) {
	for _, e := range []*Edge{out, in} {
		if e == nil {
			continue
		}
		if first.IsZero() || e.FirstSeen.Before(first) {
			first = e.FirstSeen
		}
		if e.LastSeen.After(last) {
			last = e.LastSeen
		}
	}
	return first, last
}

// PropagateTrust runs PageRank-style trust propagation. Internal and
// executive nodes are pinned at full trust; external nodes converge toward
// the damped average of incoming trust weighted by relationship strength.
// Returns the number of iterations used.
func (g *Graph) PropagateTrust(maxIterations int, damping, epsilon float64) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	// Deterministic order regardless of map iteration.
	addrs := make([]string, 0, len(g.nodes))
	for addr := range g.nodes {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	// Reseed before every run so propagation is idempotent.
	for _, n := range g.nodes {
		if n.IsInternal || n.IsExecutive {
			n.TrustScore = seedInternal
		} else {
			n.TrustScore = seedExternal
		}
	}

	// Precompute in-edges per node.
	inbound := make(map[string][]*Edge, len(g.nodes))
	for _, e := range g.edges {
		inbound[e.To] = append(inbound[e.To], e)
	}
	for _, es := range inbound {
		sort.Slice(es, func(i, j int) bool { return es[i].From < es[j].From })
	}

	iterations := 0
	for iter := 0; iter < maxIterations; iter++ {
		iterations = iter + 1
		newScores := make(map[string]float64, len(addrs))
		maxDelta := 0.0

		for _, addr := range addrs {
			node := g.nodes[addr]
			if node.IsInternal || node.IsExecutive {
				newScores[addr] = seedInternal
				continue
			}

			incomingTrust := 0.0
			incomingCount := 0
			for _, e := range inbound[addr] {
				from := g.nodes[e.From]
				if from == nil {
					continue
				}
				strength := g.strengthLocked(e.From, addr)
				incomingTrust += from.TrustScore * strength
				incomingCount++
			}

			score := seedExternal
			if incomingCount > 0 {
				score = (1-damping)*seedExternal + damping*(incomingTrust/float64(incomingCount))
			}
			score = math.Max(0, math.Min(1, score))
			newScores[addr] = score

			if d := math.Abs(score - node.TrustScore); d > maxDelta {
				maxDelta = d
			}
		}

		for addr, score := range newScores {
			g.nodes[addr].TrustScore = score
		}
		if maxDelta < epsilon {
			break
		}
	}

	g.propagated = true
	return iterations
}

// TrustScore returns the propagated trust for an address, or 0 for an
// address the graph has never seen.
func (g *Graph) TrustScore(addr string) float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if n, ok := g.nodes[strings.ToLower(addr)]; ok {
		return n.TrustScore
	}
	return 0.0
}

// Node returns a copy of the node for addr, if present.
func (g *Graph) Node(addr string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[strings.ToLower(addr)]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Size returns node and edge counts.
func (g *Graph) Size() (nodes, edges int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes), len(g.edges)
}
