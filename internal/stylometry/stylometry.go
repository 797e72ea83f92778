// Package stylometry builds writing-style fingerprints and measures how far
// a new text deviates from an author's established voice.
//
// The approach follows forensic stylometry: function word frequencies,
// sentence rhythm, and punctuation habits are stable per author and hard
// for an impersonator to fake at the same time as faking content.
package stylometry

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
)

// ErrInsufficientSamples is returned when an author has too few training
// samples to build a reliable profile.
var ErrInsufficientSamples = errors.New("stylometry: insufficient samples")

// Profile is an author's averaged style fingerprint.
type Profile struct {
	Author             string             `json:"author"`
	AvgWordLength      float64            `json:"avgWordLength"`
	VocabularyRichness float64            `json:"vocabularyRichness"`
	AvgSentenceLength  float64            `json:"avgSentenceLength"`
	SentenceLengthStd  float64            `json:"sentenceLengthStd"`
	CommaRate          float64            `json:"commaRate"`
	SemicolonRate      float64            `json:"semicolonRate"`
	ExclamationRate    float64            `json:"exclamationRate"`
	QuestionRate       float64            `json:"questionRate"`
	DashRate           float64            `json:"dashRate"`
	ContractionRate    float64            `json:"contractionRate"`
	FirstPersonRate    float64            `json:"firstPersonRate"`
	FormalityScore     float64            `json:"formalityScore"`
	FunctionWordFreq   map[string]float64 `json:"functionWordFreq"`
	FunctionWordSpread float64            `json:"functionWordSpread"`
	FeatureSpread      map[string]float64 `json:"featureSpread"`
	SampleCount        int                `json:"sampleCount"`
	TotalWords         int                `json:"totalWords"`
}

// Engine accumulates writing samples and builds immutable profiles.
// Safe for concurrent use.
type Engine struct {
	mu         sync.RWMutex
	minSamples int
	minTokens  int
	samples    map[string][]string
	profiles   map[string]*Profile
}

// NewEngine creates an engine requiring minSamples texts per author before
// profiling, and minTokens words in a text before comparison is trusted.
func NewEngine(minSamples, minTokens int) *Engine {
	return &Engine{
		minSamples: minSamples,
		minTokens:  minTokens,
		samples:    make(map[string][]string),
		profiles:   make(map[string]*Profile),
	}
}

// AddSample stores a writing sample for an author.
func (e *Engine) AddSample(author, text string) {
	author = strings.ToLower(author)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.samples[author] = append(e.samples[author], text)
}

// SampleCount returns how many samples an author has.
func (e *Engine) SampleCount(author string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.samples[strings.ToLower(author)])
}

// BuildProfile averages features over all of an author's samples.
func (e *Engine) BuildProfile(author string) (*Profile, error) {
	author = strings.ToLower(author)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buildLocked(author)
}

func (e *Engine) buildLocked(author string) (*Profile, error) {
	texts := e.samples[author]
	if len(texts) < e.minSamples {
		return nil, fmt.Errorf("%w: author %s has %d samples, need %d",
			ErrInsufficientSamples, author, len(texts), e.minSamples)
	}

	var feats []*Features
	totalWords := 0
	for _, text := range texts {
		f, ok := Extract(text)
		if !ok {
			continue
		}
		feats = append(feats, f)
		totalWords += f.WordCount
	}
	if len(feats) < e.minSamples {
		return nil, fmt.Errorf("%w: author %s has %d usable samples, need %d",
			ErrInsufficientSamples, author, len(feats), e.minSamples)
	}

	p := &Profile{
		Author:           author,
		SampleCount:      len(feats),
		TotalWords:       totalWords,
		FunctionWordFreq: make(map[string]float64),
		FeatureSpread:    make(map[string]float64),
	}

	n := float64(len(feats))
	funcSums := make(map[string]float64)
	for _, f := range feats {
		p.AvgWordLength += f.AvgWordLength / n
		p.VocabularyRichness += f.VocabularyRichness / n
		p.AvgSentenceLength += f.AvgSentenceLength / n
		p.SentenceLengthStd += f.SentenceLengthStd / n
		p.CommaRate += f.CommaRate / n
		p.SemicolonRate += f.SemicolonRate / n
		p.ExclamationRate += f.ExclamationRate / n
		p.QuestionRate += f.QuestionRate / n
		p.DashRate += f.DashRate / n
		p.ContractionRate += f.ContractionRate / n
		p.FirstPersonRate += f.FirstPersonRate / n
		p.FormalityScore += f.FormalityScore / n
		for w, freq := range f.FunctionWords {
			funcSums[w] += freq
		}
	}
	// A word's baseline frequency averages over all samples, counting
	// absence as zero, so a text matching the corpus matches the baseline.
	for w, sum := range funcSums {
		p.FunctionWordFreq[w] = sum / n
	}

	// Record how much the author's own samples scatter around the mean.
	// Comparison tolerances are anchored to this spread.
	for _, cmp := range numericComparisons {
		vals := make([]float64, len(feats))
		for i, f := range feats {
			vals[i] = cmp.actual(f)
		}
		if len(vals) > 1 {
			p.FeatureSpread[cmp.label] = stddev(vals, mean(vals))
		}
	}
	for _, f := range feats {
		p.FunctionWordSpread += funcWordDelta(p.FunctionWordFreq, f) / n
	}

	e.profiles[author] = p
	return p, nil
}

// funcWordDelta is the mean absolute difference between a text's function
// word frequencies and a baseline.
func funcWordDelta(baseline map[string]float64, f *Features) float64 {
	if len(baseline) == 0 {
		return 0
	}
	total := 0.0
	for w, expected := range baseline {
		total += math.Abs(expected - f.FunctionWords[w])
	}
	return total / float64(len(baseline))
}

// BuildAllProfiles builds profiles for every author with enough samples and
// returns how many were built.
func (e *Engine) BuildAllProfiles() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	built := 0
	for author := range e.samples {
		if _, err := e.buildLocked(author); err == nil {
			built++
		}
	}
	return built
}

// Profile returns the built profile for an author, if any.
func (e *Engine) Profile(author string) (*Profile, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.profiles[strings.ToLower(author)]
	return p, ok
}

// ProfileCount returns the number of built profiles.
func (e *Engine) ProfileCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.profiles)
}

// Comparison is the result of matching a text against a profile.
type Comparison struct {
	Author         string   `json:"author"`
	HasProfile     bool     `json:"hasProfile"`
	LowConfidence  bool     `json:"lowConfidence"`
	Similarity     float64  `json:"similarity"`
	DeviationScore float64  `json:"deviationScore"`
	Deviations     []string `json:"deviations"`
}

// numericComparison is one profile feature checked against the text.
type numericComparison struct {
	label     string
	threshold float64
	expected  func(*Profile) float64
	actual    func(*Features) float64
}

var numericComparisons = []numericComparison{
	{"WORD_LENGTH", 0.5,
		func(p *Profile) float64 { return p.AvgWordLength },
		func(f *Features) float64 { return f.AvgWordLength }},
	{"SENTENCE_LENGTH", 3.0,
		func(p *Profile) float64 { return p.AvgSentenceLength },
		func(f *Features) float64 { return f.AvgSentenceLength }},
	{"COMMA_USAGE", 1.0,
		func(p *Profile) float64 { return p.CommaRate },
		func(f *Features) float64 { return f.CommaRate }},
	{"EXCLAMATION_USAGE", 0.5,
		func(p *Profile) float64 { return p.ExclamationRate },
		func(f *Features) float64 { return f.ExclamationRate }},
	{"CONTRACTION_USAGE", 1.0,
		func(p *Profile) float64 { return p.ContractionRate },
		func(f *Features) float64 { return f.ContractionRate }},
	{"FORMALITY_LEVEL", 0.2,
		func(p *Profile) float64 { return p.FormalityScore },
		func(f *Features) float64 { return f.FormalityScore }},
}

// CompareToProfile measures how far a text sits from an author's voice.
// Without a profile, or for texts below the token minimum, the result is
// a neutral 0.5 with the reason flagged rather than a confident score.
func (e *Engine) CompareToProfile(text, author string) *Comparison {
	author = strings.ToLower(author)

	e.mu.RLock()
	profile := e.profiles[author]
	minTokens := e.minTokens
	e.mu.RUnlock()

	if profile == nil {
		return &Comparison{Author: author, Similarity: 0.5}
	}

	feats, ok := Extract(text)
	if !ok || feats.WordCount < minTokens {
		return &Comparison{
			Author:        author,
			HasProfile:    true,
			LowConfidence: true,
			Similarity:    0.5,
		}
	}

	var deviations []string
	deviation := 0.0

	// A feature only counts as deviation beyond its tolerance, which is the
	// larger of the fixed threshold and twice the author's own spread. Text
	// that varies no more than the training corpus does scores clean.
	for _, cmp := range numericComparisons {
		expected := cmp.expected(profile)
		actual := cmp.actual(feats)
		diff := math.Abs(expected - actual)
		tolerance := math.Max(cmp.threshold, 2*profile.FeatureSpread[cmp.label])
		if diff > tolerance {
			deviations = append(deviations, fmt.Sprintf("%s: expected %.2f, got %.2f", cmp.label, expected, actual))
			deviation += math.Min((diff-tolerance)/(cmp.threshold*2), 0.3)
		}
	}

	// Simplified Burrows' Delta over the author's function word baseline.
	if len(profile.FunctionWordFreq) > 0 {
		avg := funcWordDelta(profile.FunctionWordFreq, feats)
		tolerance := math.Max(0.01, profile.FunctionWordSpread)
		if avg > tolerance {
			deviations = append(deviations, fmt.Sprintf("FUNCTION_WORDS: distribution differs by %.1f%%", avg*100))
			deviation += math.Min((avg-tolerance)*10, 0.3)
		}
	}

	if feats.UrgencyCount > 2 {
		deviations = append(deviations, fmt.Sprintf("URGENCY_SPIKE: %d urgency markers detected", feats.UrgencyCount))
		deviation += 0.2
	}
	// Hedging is judged by density; long texts accumulate hedges naturally.
	if feats.HedgeCount > 3 && float64(feats.HedgeCount)/float64(feats.WordCount)*100 > 1.5 {
		deviations = append(deviations, fmt.Sprintf("HEDGING: unusual hedging language (%d instances)", feats.HedgeCount))
		deviation += 0.1
	}

	return &Comparison{
		Author:         author,
		HasProfile:     true,
		Similarity:     math.Max(0, 1-deviation),
		DeviationScore: deviation,
		Deviations:     deviations,
	}
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
