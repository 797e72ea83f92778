package temporal

import (
	"strings"
	"testing"
	"time"
)

const (
	testMinSamples  = 50
	testTzTolerance = 60
)

// trainWeekdayPattern feeds n emails on weekdays between 09:00 and 17:00
// with a consistent timezone offset.
func trainWeekdayPattern(a *Analyzer, sender string, n, tzOffset int) {
	ts := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC) // a Monday
	count := 0
	for count < n {
		if ts.Weekday() == time.Saturday || ts.Weekday() == time.Sunday {
			ts = ts.AddDate(0, 0, 1)
			continue
		}
		hour := 9 + count%9 // 09:00 through 17:00
		a.AddEmail(Event{
			Sender:         sender,
			Recipient:      "staff@acme.com",
			Timestamp:      time.Date(ts.Year(), ts.Month(), ts.Day(), hour, 15, 0, 0, time.UTC),
			TimezoneOffset: tzOffset,
		})
		count++
		if count%5 == 0 {
			ts = ts.AddDate(0, 0, 1)
		}
	}
}

func TestAnalyzeEmail_NormalHourIsClean(t *testing.T) {
	a := NewAnalyzer(testMinSamples, testTzTolerance)
	trainWeekdayPattern(a, "ceo@acme.com", 60, -300)
	a.FinalizeProfiles()

	res := a.AnalyzeEmail(Event{
		Sender:         "ceo@acme.com",
		Recipient:      "cfo@acme.com",
		Timestamp:      time.Date(2026, 3, 3, 14, 30, 0, 0, time.UTC), // Tuesday
		TimezoneOffset: -300,
	})
	if !res.HasBaseline {
		t.Fatal("expected baseline after 60 training emails")
	}
	if res.AnomalyScore != 0.0 {
		t.Errorf("clean email score = %f, want 0 (anomalies %v)", res.AnomalyScore, res.Anomalies)
	}
}

func TestAnalyzeEmail_UnusualHour(t *testing.T) {
	a := NewAnalyzer(testMinSamples, testTzTolerance)
	trainWeekdayPattern(a, "ceo@acme.com", 60, -300)
	a.FinalizeProfiles()

	res := a.AnalyzeEmail(Event{
		Sender:         "ceo@acme.com",
		Recipient:      "cfo@acme.com",
		Timestamp:      time.Date(2026, 3, 3, 3, 15, 0, 0, time.UTC), // Tuesday 03:00
		TimezoneOffset: -300,
	})
	if !hasAnomaly(res.Anomalies, "UNUSUAL_HOUR") {
		t.Errorf("missing UNUSUAL_HOUR: %v", res.Anomalies)
	}
	if !hasAnomaly(res.Anomalies, "DEAD_ZONE") {
		t.Errorf("missing DEAD_ZONE: %v", res.Anomalies)
	}
	if res.AnomalyScore < 0.5 {
		t.Errorf("3 AM score = %f, want >= 0.5", res.AnomalyScore)
	}
}

func TestAnalyzeEmail_LateNightLocal(t *testing.T) {
	a := NewAnalyzer(testMinSamples, testTzTolerance)
	trainWeekdayPattern(a, "ceo@acme.com", 60, 0) // UTC sender
	a.FinalizeProfiles()

	res := a.AnalyzeEmail(Event{
		Sender:         "ceo@acme.com",
		Recipient:      "cfo@acme.com",
		Timestamp:      time.Date(2026, 3, 3, 3, 0, 0, 0, time.UTC),
		TimezoneOffset: 0,
	})
	if !hasAnomaly(res.Anomalies, "LATE_NIGHT") {
		t.Errorf("missing LATE_NIGHT: %v", res.Anomalies)
	}
	if res.AnomalyScore < 0.7 {
		t.Errorf("late night score = %f, want >= 0.7", res.AnomalyScore)
	}
}

func TestAnalyzeEmail_TimezoneMismatch(t *testing.T) {
	a := NewAnalyzer(testMinSamples, testTzTolerance)
	trainWeekdayPattern(a, "ceo@acme.com", 60, -300)
	a.FinalizeProfiles()

	// Normal hour, but stamped from UTC+8 instead of the usual UTC-5.
	res := a.AnalyzeEmail(Event{
		Sender:         "ceo@acme.com",
		Recipient:      "cfo@acme.com",
		Timestamp:      time.Date(2026, 3, 3, 14, 0, 0, 0, time.UTC),
		TimezoneOffset: 480,
	})
	if !hasAnomaly(res.Anomalies, "TIMEZONE_MISMATCH") {
		t.Errorf("missing TIMEZONE_MISMATCH: %v", res.Anomalies)
	}
	if !hasAnomaly(res.Anomalies, "MAJOR_TZ_SHIFT") {
		t.Errorf("missing MAJOR_TZ_SHIFT: %v", res.Anomalies)
	}
	if res.AnomalyScore < 0.45 {
		t.Errorf("timezone mismatch score = %f, want >= 0.45", res.AnomalyScore)
	}
}

func TestAnalyzeEmail_InsufficientHistory(t *testing.T) {
	a := NewAnalyzer(testMinSamples, testTzTolerance)
	trainWeekdayPattern(a, "ceo@acme.com", 10, -300) // below minimum
	a.FinalizeProfiles()

	for _, sender := range []string{"ceo@acme.com", "nobody@unknown.com"} {
		res := a.AnalyzeEmail(Event{
			Sender:    sender,
			Timestamp: time.Date(2026, 3, 3, 3, 0, 0, 0, time.UTC),
		})
		if res.HasBaseline {
			t.Errorf("%s: expected no baseline", sender)
		}
		if res.AnomalyScore != 0.5 {
			t.Errorf("%s: score without baseline = %f, want neutral 0.5", sender, res.AnomalyScore)
		}
		if !hasAnomaly(res.Anomalies, "INSUFFICIENT_HISTORY") {
			t.Errorf("%s: missing INSUFFICIENT_HISTORY: %v", sender, res.Anomalies)
		}
	}
}

func TestFinalizeProfiles_SkipsSendersBelowMinimum(t *testing.T) {
	a := NewAnalyzer(testMinSamples, testTzTolerance)
	trainWeekdayPattern(a, "ceo@acme.com", 60, -300)
	trainWeekdayPattern(a, "rare@acme.com", 10, -300)
	a.FinalizeProfiles()

	if got := a.ProfileCount(); got != 1 {
		t.Errorf("profile count = %d, want 1 (only established baselines)", got)
	}
	if _, ok := a.Profile("ceo@acme.com"); !ok {
		t.Error("expected profile for the established sender")
	}
	if _, ok := a.Profile("rare@acme.com"); ok {
		t.Error("sender below the sample floor should have no profile")
	}
}

func TestAnalyzeEmail_UnusualUrgency(t *testing.T) {
	a := NewAnalyzer(testMinSamples, testTzTolerance)

	// cfo@ replies to ceo@ after one to two hours, sixty times over.
	ts := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		a.AddEmail(Event{
			Sender:    "ceo@acme.com",
			Recipient: "cfo@acme.com",
			Timestamp: ts,
		})
		latency := time.Duration(60+i%60) * time.Minute
		a.AddEmail(Event{
			Sender:    "cfo@acme.com",
			Recipient: "ceo@acme.com",
			Timestamp: ts.Add(latency),
		})
		ts = ts.Add(26 * time.Hour)
	}
	a.FinalizeProfiles()

	p, ok := a.Profile("cfo@acme.com")
	if !ok || p.ResponseSamples < 5 {
		t.Fatalf("expected response baseline, got %+v", p)
	}

	// A reply two minutes after the last inbound email.
	res := a.AnalyzeEmail(Event{
		Sender:    "cfo@acme.com",
		Recipient: "ceo@acme.com",
		Timestamp: ts.Add(-26 * time.Hour).Add(2 * time.Minute),
	})
	if !hasAnomaly(res.Anomalies, "UNUSUAL_URGENCY") {
		t.Errorf("missing UNUSUAL_URGENCY: %v", res.Anomalies)
	}
}

func TestFinalizeProfiles_Idempotent(t *testing.T) {
	a := NewAnalyzer(testMinSamples, testTzTolerance)
	trainWeekdayPattern(a, "ceo@acme.com", 60, -300)
	a.FinalizeProfiles()
	p1, _ := a.Profile("ceo@acme.com")
	a.FinalizeProfiles()
	p2, _ := a.Profile("ceo@acme.com")
	if p1 != p2 {
		t.Error("repeat finalize rebuilt profiles without new data")
	}
}

func TestFinalizeProfiles_PrimaryTimezone(t *testing.T) {
	a := NewAnalyzer(testMinSamples, testTzTolerance)
	trainWeekdayPattern(a, "ceo@acme.com", 60, -300)
	a.FinalizeProfiles()
	p, ok := a.Profile("ceo@acme.com")
	if !ok {
		t.Fatal("profile missing")
	}
	if p.PrimaryTimezone != -300 {
		t.Errorf("primary timezone = %d, want -300", p.PrimaryTimezone)
	}
	if len(p.ActiveHours) == 0 {
		t.Error("expected non-empty active hours")
	}
}

func TestProfileSummary(t *testing.T) {
	a := NewAnalyzer(testMinSamples, testTzTolerance)
	trainWeekdayPattern(a, "ceo@acme.com", 60, -300)
	a.FinalizeProfiles()

	s, ok := a.ProfileSummary("CEO@acme.com")
	if !ok {
		t.Fatal("summary missing")
	}
	if s.TotalEmails != 60 {
		t.Errorf("total emails = %d, want 60", s.TotalEmails)
	}
	if len(s.PeakHours) == 0 || len(s.PeakDays) == 0 {
		t.Errorf("expected peak hours and days, got %+v", s)
	}

	if _, ok := a.ProfileSummary("nobody@unknown.com"); ok {
		t.Error("expected no summary for unknown sender")
	}
}

func hasAnomaly(anomalies []string, tag string) bool {
	for _, a := range anomalies {
		if strings.HasPrefix(a, tag) {
			return true
		}
	}
	return false
}
