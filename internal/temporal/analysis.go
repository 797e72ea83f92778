package temporal

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Assessment is the temporal anomaly result for one email.
type Assessment struct {
	Sender          string    `json:"sender"`
	Timestamp       time.Time `json:"timestamp"`
	AnomalyScore    float64   `json:"anomalyScore"`
	Anomalies       []string  `json:"anomalies"`
	HasBaseline     bool      `json:"hasBaseline"`
	HourProbability float64   `json:"hourProbability"`
	DayProbability  float64   `json:"dayProbability"`
	PrimaryTimezone int       `json:"primaryTimezoneOffset"`
	BaselineEmails  int       `json:"totalBaselineEmails"`
}

// AnalyzeEmail scores an email against the sender's finalized profile.
// A sender without minSamples of history yields a neutral 0.5 score with
// HasBaseline false; that is "unknown", not "safe".
func (a *Analyzer) AnalyzeEmail(ev Event) *Assessment {
	sender := strings.ToLower(ev.Sender)

	a.mu.RLock()
	defer a.mu.RUnlock()

	profile := a.profiles[sender]
	if profile == nil || profile.TotalEmails < a.minSamples {
		return &Assessment{
			Sender:       sender,
			Timestamp:    ev.Timestamp,
			AnomalyScore: 0.5,
			Anomalies:    []string{"INSUFFICIENT_HISTORY: cannot establish baseline pattern"},
			HasBaseline:  false,
		}
	}

	hour := ev.Timestamp.Hour()
	day := ev.Timestamp.Weekday()

	var anomalies []string
	score := 0.0

	hourProb := profile.HourProbability(hour)
	if hourProb < 0.02 {
		anomalies = append(anomalies, fmt.Sprintf("UNUSUAL_HOUR: only %.1f%% of emails sent at %02d:00", hourProb*100, hour))
		score += 0.3

		if !profile.isActiveHour(hour) {
			anomalies = append(anomalies, fmt.Sprintf("DEAD_ZONE: %02d:00 is outside active hours %v", hour, profile.ActiveHours))
			score += 0.2
		}
	}

	dayProb := profile.DayProbability(day)
	if dayProb < 0.05 {
		anomalies = append(anomalies, fmt.Sprintf("UNUSUAL_DAY: only %.1f%% of emails on %s", dayProb*100, day))
		score += 0.15
	}

	if ev.TimezoneOffset != 0 && profile.PrimaryTimezone != 0 {
		tzDiff := ev.TimezoneOffset - profile.PrimaryTimezone
		if tzDiff < 0 {
			tzDiff = -tzDiff
		}
		if tzDiff > a.tzTolerance {
			anomalies = append(anomalies, fmt.Sprintf("TIMEZONE_MISMATCH: email from UTC%+d, usual is UTC%+d",
				ev.TimezoneOffset/60, profile.PrimaryTimezone/60))
			score += 0.25

			if tzDiff > 300 {
				anomalies = append(anomalies, "MAJOR_TZ_SHIFT: timezone shifted by 5+ hours from normal")
				score += 0.2
			}
		}
	}

	// A "CEO at 3 AM" check in the sender's own timezone.
	localHour := ((hour+profile.PrimaryTimezone/60)%24 + 24) % 24
	if localHour >= 1 && localHour <= 5 && hourProb < 0.05 {
		anomalies = append(anomalies, fmt.Sprintf("LATE_NIGHT: email at %02d:00 local time is unusual", localHour))
		score += 0.2
	}

	// Replies far faster than the sender's established cadence suggest an
	// attacker rushing a thread they are squatting on.
	if latency, ok := a.replyLatency(sender, strings.ToLower(ev.Recipient), ev.Timestamp); ok {
		if profile.ResponseSamples >= 5 && profile.StdResponseTime > 0 {
			z := (profile.AvgResponseTime - latency) / profile.StdResponseTime
			if z > 3 || latency < profile.AvgResponseTime/10 {
				anomalies = append(anomalies, fmt.Sprintf("UNUSUAL_URGENCY: reply after %.0f min, baseline %.0f min", latency, profile.AvgResponseTime))
				score += 0.2
			}
		}
	}

	if score > 1.0 {
		score = 1.0
	}

	return &Assessment{
		Sender:          sender,
		Timestamp:       ev.Timestamp,
		AnomalyScore:    score,
		Anomalies:       anomalies,
		HasBaseline:     true,
		HourProbability: hourProb,
		DayProbability:  dayProb,
		PrimaryTimezone: profile.PrimaryTimezone,
		BaselineEmails:  profile.TotalEmails,
	}
}

// replyLatency returns minutes since the recipient last emailed the sender,
// when that traffic exists and is recent enough to call this a reply.
// Caller must hold a.mu.
func (a *Analyzer) replyLatency(sender, recipient string, ts time.Time) (float64, bool) {
	last, ok := a.pairLast[pairKey{recipient, sender}]
	if !ok {
		return 0, false
	}
	mins := ts.Sub(last).Minutes()
	if mins <= 0 || mins >= maxResponseMinutes {
		return 0, false
	}
	return mins, true
}

// Summary is a human-readable view of a sender's temporal profile.
type Summary struct {
	Address         string   `json:"address"`
	TotalEmails     int      `json:"totalEmails"`
	PeakHours       []int    `json:"peakHours"`
	PeakDays        []string `json:"peakDays"`
	ActiveHours     []int    `json:"activeHours"`
	PrimaryTimezone int      `json:"primaryTimezoneOffset"`
	AvgResponseTime float64  `json:"avgResponseTimeMinutes"`
	StdResponseTime float64  `json:"stdResponseTimeMinutes"`
}

// ProfileSummary summarizes a sender's finalized profile, or returns false
// if the sender is unknown.
func (a *Analyzer) ProfileSummary(addr string) (*Summary, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	p, ok := a.profiles[strings.ToLower(addr)]
	if !ok {
		return nil, false
	}

	return &Summary{
		Address:         p.Address,
		TotalEmails:     p.TotalEmails,
		PeakHours:       topHours(p.HourlyCounts, 3),
		PeakDays:        topDays(p.DailyCounts, 3),
		ActiveHours:     p.ActiveHours,
		PrimaryTimezone: p.PrimaryTimezone,
		AvgResponseTime: p.AvgResponseTime,
		StdResponseTime: p.StdResponseTime,
	}, true
}

func topHours(counts [24]int, n int) []int {
	type hc struct{ hour, count int }
	items := make([]hc, 0, 24)
	for h, c := range counts {
		if c > 0 {
			items = append(items, hc{h, c})
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].count != items[j].count {
			return items[i].count > items[j].count
		}
		return items[i].hour < items[j].hour
	})
	if len(items) > n {
		items = items[:n]
	}
	out := make([]int, len(items))
	for i, it := range items {
		out[i] = it.hour
	}
	return out
}

func topDays(counts [7]int, n int) []string {
	names := [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}
	type dc struct{ day, count int }
	items := make([]dc, 0, 7)
	for d, c := range counts {
		if c > 0 {
			items = append(items, dc{d, c})
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].count != items[j].count {
			return items[i].count > items[j].count
		}
		return items[i].day < items[j].day
	})
	if len(items) > n {
		items = items[:n]
	}
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = names[it.day]
	}
	return out
}
