// Package temporal builds pattern-of-life profiles for email senders and
// scores new email against them.
//
// Every sender has a circadian signature: hours they work, days they send,
// the timezone their client stamps, how fast they reply. An attacker who
// compromises or spoofs an address rarely matches that signature.
package temporal

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// maxResponseMinutes discards reply latencies above a week; those are new
// conversations, not responses.
const maxResponseMinutes = 7 * 24 * 60

// activeHourShare is the minimum share of a sender's traffic an hour needs
// to count as part of their active window.
const activeHourShare = 0.05

// Event is a single observed email with timing metadata.
type Event struct {
	Sender         string
	Recipient      string
	Timestamp      time.Time
	TimezoneOffset int // minutes east of UTC, from headers
	MessageID      string
	ResponseTo     string // Message-ID of the parent, if a reply
}

// Profile is a finalized pattern-of-life baseline for one sender.
// Profiles are immutable once built.
type Profile struct {
	Address         string  `json:"address"`
	TotalEmails     int     `json:"totalEmails"`
	HourlyCounts    [24]int `json:"hourlyCounts"`
	DailyCounts     [7]int  `json:"dailyCounts"`
	ActiveHours     []int   `json:"activeHours"`
	PrimaryTimezone int     `json:"primaryTimezoneOffset"`
	AvgResponseTime float64 `json:"avgResponseTimeMinutes"`
	StdResponseTime float64 `json:"stdResponseTimeMinutes"`
	ResponseSamples int     `json:"responseSamples"`
}

// HourProbability is the share of the sender's traffic sent at this hour.
func (p *Profile) HourProbability(hour int) float64 {
	if p.TotalEmails == 0 {
		return 1.0 / 24
	}
	return float64(p.HourlyCounts[hour]) / float64(p.TotalEmails)
}

// DayProbability is the share of the sender's traffic sent on this weekday.
func (p *Profile) DayProbability(day time.Weekday) float64 {
	if p.TotalEmails == 0 {
		return 1.0 / 7
	}
	return float64(p.DailyCounts[int(day)]) / float64(p.TotalEmails)
}

func (p *Profile) isActiveHour(hour int) bool {
	for _, h := range p.ActiveHours {
		if h == hour {
			return true
		}
	}
	return false
}

// accumulator collects raw training observations for one sender.
type accumulator struct {
	hourly    [24]int
	daily     [7]int
	tzCounts  map[int]int
	total     int
	responses []float64
}

type pairKey struct{ from, to string }

// Analyzer ingests training email and, after finalization, answers anomaly
// queries against immutable profiles. Safe for concurrent use.
type Analyzer struct {
	mu          sync.RWMutex
	minSamples  int
	tzTolerance int

	accs     map[string]*accumulator
	threads  map[string][]Event
	pairLast map[pairKey]time.Time

	profiles  map[string]*Profile
	finalized bool
}

// NewAnalyzer creates an analyzer requiring minSamples training emails per
// sender before a baseline is considered established. tzToleranceMinutes is
// the allowed drift from the sender's primary timezone offset.
func NewAnalyzer(minSamples, tzToleranceMinutes int) *Analyzer {
	return &Analyzer{
		minSamples:  minSamples,
		tzTolerance: tzToleranceMinutes,
		accs:        make(map[string]*accumulator),
		threads:     make(map[string][]Event),
		pairLast:    make(map[pairKey]time.Time),
	}
}

// AddEmail records a training observation.
func (a *Analyzer) AddEmail(ev Event) {
	sender := strings.ToLower(ev.Sender)
	recipient := strings.ToLower(ev.Recipient)

	a.mu.Lock()
	defer a.mu.Unlock()

	acc, ok := a.accs[sender]
	if !ok {
		acc = &accumulator{tzCounts: make(map[int]int)}
		a.accs[sender] = acc
	}

	acc.hourly[ev.Timestamp.Hour()]++
	acc.daily[int(ev.Timestamp.Weekday())]++
	acc.tzCounts[ev.TimezoneOffset]++
	acc.total++

	if ev.ResponseTo != "" {
		a.threads[ev.ResponseTo] = append(a.threads[ev.ResponseTo], ev)
	}

	// Reply latency from opposite-direction traffic on the same pair.
	if last, ok := a.pairLast[pairKey{recipient, sender}]; ok {
		mins := ev.Timestamp.Sub(last).Minutes()
		if mins > 0 && mins < maxResponseMinutes {
			acc.responses = append(acc.responses, mins)
		}
	}
	if prev, ok := a.pairLast[pairKey{sender, recipient}]; !ok || ev.Timestamp.After(prev) {
		a.pairLast[pairKey{sender, recipient}] = ev.Timestamp
	}

	a.finalized = false
}

// FinalizeProfiles computes statistics for every sender and swaps in an
// immutable profile set. Idempotent; training after finalization requires
// another call before the new data is visible to analysis.
func (a *Analyzer) FinalizeProfiles() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.finalized {
		return
	}

	a.collectThreadResponses()

	profiles := make(map[string]*Profile, len(a.accs))
	for addr, acc := range a.accs {
		// Senders below the sample floor have no established baseline;
		// analysis treats them as unknown rather than scoring against
		// a profile built from noise.
		if acc.total < a.minSamples {
			continue
		}
		p := &Profile{
			Address:      addr,
			TotalEmails:  acc.total,
			HourlyCounts: acc.hourly,
			DailyCounts:  acc.daily,
		}

		if len(acc.responses) > 0 {
			p.ResponseSamples = len(acc.responses)
			p.AvgResponseTime = mean(acc.responses)
			if len(acc.responses) > 1 {
				p.StdResponseTime = stddev(acc.responses, p.AvgResponseTime)
			}
		}

		p.PrimaryTimezone = modalOffset(acc.tzCounts)

		if acc.total > 0 {
			threshold := float64(acc.total) * activeHourShare
			for hour, count := range acc.hourly {
				if float64(count) >= threshold && count > 0 {
					p.ActiveHours = append(p.ActiveHours, hour)
				}
			}
		}

		profiles[addr] = p
	}

	a.profiles = profiles
	a.finalized = true
}

// collectThreadResponses derives reply latencies from message threading.
// Caller must hold a.mu.
func (a *Analyzer) collectThreadResponses() {
	for _, events := range a.threads {
		if len(events) < 2 {
			continue
		}
		sort.Slice(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })
		for i := 1; i < len(events); i++ {
			mins := events[i].Timestamp.Sub(events[i-1].Timestamp).Minutes()
			if mins <= 0 || mins >= maxResponseMinutes {
				continue
			}
			if acc, ok := a.accs[strings.ToLower(events[i].Sender)]; ok {
				acc.responses = append(acc.responses, mins)
			}
		}
	}
	a.threads = make(map[string][]Event)
}

// Finalized reports whether profiles have been built for the current data.
func (a *Analyzer) Finalized() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.finalized
}

// ProfileCount returns the number of finalized profiles.
func (a *Analyzer) ProfileCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.profiles)
}

// Profile returns the finalized profile for an address, if any.
func (a *Analyzer) Profile(addr string) (*Profile, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.profiles[strings.ToLower(addr)]
	return p, ok
}

// modalOffset returns the most common timezone offset; ties break toward the
// smaller offset so the result does not depend on map order.
func modalOffset(counts map[int]int) int {
	best, bestCount := 0, 0
	for offset, count := range counts {
		if count > bestCount || (count == bestCount && offset < best) {
			best, bestCount = offset, count
		}
	}
	return best
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64, m float64) float64 {
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}
