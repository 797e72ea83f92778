package stylometry

import (
	"regexp"
	"strings"
)

// Function words are content-independent and style-revealing; their
// frequencies form the backbone of the fingerprint (Burrows' Delta).
var functionWords = wordSet(
	"the", "a", "an", "and", "or", "but", "if", "then", "because", "as",
	"until", "while", "of", "at", "by", "for", "with", "about", "against",
	"between", "into", "through", "during", "before", "after", "above",
	"below", "to", "from", "up", "down", "in", "out", "on", "off", "over",
	"under", "again", "further", "once", "here", "there", "when",
	"where", "why", "how", "all", "each", "few", "more", "most", "other",
	"some", "such", "no", "nor", "not", "only", "own", "same", "so", "than",
	"too", "very", "can", "will", "just", "should", "now", "i", "you", "he",
	"she", "it", "we", "they", "what", "which", "who", "this", "that", "these",
	"those", "am", "is", "are", "was", "were", "be", "been", "being", "have",
	"has", "had", "having", "do", "does", "did", "doing", "would", "could",
	"might", "must", "shall", "however", "therefore", "thus",
	"hence", "also", "yet", "still", "already", "always", "never", "ever",
)

// Hedging language is common in deceptive text.
var hedgeWords = wordSet(
	"maybe", "perhaps", "possibly", "probably", "might", "could", "may",
	"seem", "seems", "appeared", "appears", "believe", "think", "guess",
	"suppose", "assume", "likely", "unlikely", "somewhat", "rather",
	"fairly", "quite", "approximately", "roughly",
)

// Overconfident language can also indicate deception.
var certaintyWords = wordSet(
	"definitely", "certainly", "absolutely", "always", "never", "must",
	"undoubtedly", "clearly", "obviously", "surely", "truly", "really",
	"totally", "completely", "entirely", "positively", "guaranteed",
)

// Urgency phrases are the classic BEC pressure play; matched as substrings
// so multi-word phrases count.
var urgencyPhrases = []string{
	"urgent", "asap", "immediately", "right now", "right away", "quickly",
	"hurry", "rush", "fast", "time-sensitive", "deadline", "critical",
	"important", "priority", "emergency", "today", "now", "instant",
	"before end of day", "eod", "cob", "by close of business",
}

var firstPersonWords = wordSet("i", "me", "my", "mine", "myself")

var (
	wordRe        = regexp.MustCompile(`[a-z]+`)
	sentenceRe    = regexp.MustCompile(`[.!?]+`)
	contractionRe = regexp.MustCompile(`[a-z]+'[a-z]+`)
)

func wordSet(words ...string) map[string]bool {
	s := make(map[string]bool, len(words))
	for _, w := range words {
		s[w] = true
	}
	return s
}

// Features are the style measurements of a single text.
type Features struct {
	WordCount          int
	AvgWordLength      float64
	VocabularyRichness float64 // type-token ratio
	AvgSentenceLength  float64
	SentenceLengthStd  float64

	// Punctuation rates, per 100 words.
	CommaRate       float64
	SemicolonRate   float64
	ExclamationRate float64
	QuestionRate    float64
	DashRate        float64

	ContractionRate float64
	FirstPersonRate float64
	FormalityScore  float64

	FunctionWords map[string]float64

	HedgeCount     int
	CertaintyCount int
	UrgencyCount   int
}

// Tokenize lowercases text and extracts word tokens.
func Tokenize(text string) []string {
	return wordRe.FindAllString(strings.ToLower(text), -1)
}

func sentences(text string) []string {
	var out []string
	for _, s := range sentenceRe.Split(text, -1) {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// Extract computes style features for a text. Returns false when the text
// contains no word tokens.
func Extract(text string) (*Features, bool) {
	words := Tokenize(text)
	if len(words) == 0 {
		return nil, false
	}
	lower := strings.ToLower(text)
	wordCount := float64(len(words))

	f := &Features{
		WordCount:     len(words),
		FunctionWords: make(map[string]float64),
	}

	totalLen := 0
	unique := make(map[string]bool, len(words))
	firstPerson := 0
	for _, w := range words {
		totalLen += len(w)
		unique[w] = true
		if functionWords[w] {
			f.FunctionWords[w] += 1 / wordCount
		}
		if firstPersonWords[w] {
			firstPerson++
		}
		if hedgeWords[w] {
			f.HedgeCount++
		}
		if certaintyWords[w] {
			f.CertaintyCount++
		}
	}
	f.AvgWordLength = float64(totalLen) / wordCount
	f.VocabularyRichness = float64(len(unique)) / wordCount
	f.FirstPersonRate = float64(firstPerson) / wordCount * 100

	sents := sentences(text)
	if len(sents) > 0 {
		lengths := make([]float64, len(sents))
		for i, s := range sents {
			lengths[i] = float64(len(Tokenize(s)))
		}
		f.AvgSentenceLength = mean(lengths)
		if len(lengths) > 1 {
			f.SentenceLengthStd = stddev(lengths, f.AvgSentenceLength)
		}
	} else {
		f.AvgSentenceLength = wordCount
	}

	f.CommaRate = float64(strings.Count(text, ",")) / wordCount * 100
	f.SemicolonRate = float64(strings.Count(text, ";")) / wordCount * 100
	f.ExclamationRate = float64(strings.Count(text, "!")) / wordCount * 100
	f.QuestionRate = float64(strings.Count(text, "?")) / wordCount * 100
	f.DashRate = float64(strings.Count(text, "-")+strings.Count(text, "—")) / wordCount * 100

	f.ContractionRate = float64(len(contractionRe.FindAllString(lower, -1))) / wordCount * 100

	formality := 0.5
	if f.ContractionRate > 2 {
		formality -= 0.2
	}
	if f.ExclamationRate > 1 {
		formality -= 0.1
	}
	if f.AvgSentenceLength > 20 {
		formality += 0.2
	}
	f.FormalityScore = clamp01(formality)

	for _, phrase := range urgencyPhrases {
		if strings.Contains(lower, phrase) {
			f.UrgencyCount++
		}
	}

	return f, true
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
