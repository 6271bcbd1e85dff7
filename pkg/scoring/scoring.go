/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: scoring.go
Description: Readability heuristic for extracted strings. Compares a string's per-character
frequency profile against a fixed rank-ordered reference alphabet with cosine similarity,
then adds a character diversity term. Pure and deterministic, safe for concurrent use.
*/

package scoring

import "math"

const (
	// ReferenceAlphabet lists every printable ASCII character from most to least
	// expected frequency in text-like content
	ReferenceAlphabet = "e t1|oarinsl23dc87064m9u5pESACgfThby\"IvLDRw-_PO.NFx\\MW%VUkGHB:@,q?=];[(<Q'jX>)YKz$/Z*J+`^!&#~}{"

	// DefaultMaxLength is the longest string that is scored at all
	DefaultMaxLength = 2600

	// DefaultMinScore is the cutoff used when selecting readable strings
	DefaultMinScore = 40

	similarityWeight = 100.0
	diversityWeight  = 50.0
)

// alphabetIndex maps a byte to its slot in ReferenceAlphabet, or -1
var alphabetIndex = func() [256]int {
	var index [256]int
	for i := range index {
		index[i] = -1
	}
	for i := 0; i < len(ReferenceAlphabet); i++ {
		index[ReferenceAlphabet[i]] = i
	}
	return index
}()

var referenceRanks = rankVector()

// rankMagnitude is the euclidean norm of the rank vector
var rankMagnitude = func() float64 {
	var sum int64
	for _, v := range referenceRanks {
		sum += v * v
	}
	return math.Sqrt(float64(sum))
}()

// AlphabetSize returns the number of reference characters
func AlphabetSize() int {
	return len(ReferenceAlphabet)
}

func rankVector() []int64 {
	n := len(ReferenceAlphabet)
	vec := make([]int64, n)
	for i := range vec {
		vec[i] = int64(n - i)
	}
	return vec
}

// RankVector returns the expected profile [N, N-1, ..., 1]
func RankVector() []float64 {
	vec := make([]float64, len(referenceRanks))
	for i, v := range referenceRanks {
		vec[i] = float64(v)
	}
	return vec
}

func frequencyCounts(text string) []int64 {
	counts := make([]int64, len(ReferenceAlphabet))
	for i := 0; i < len(text); i++ {
		if slot := alphabetIndex[text[i]]; slot >= 0 {
			counts[slot]++
		}
	}
	return counts
}

// FrequencyVector counts occurrences of each reference character in text.
// Characters outside the alphabet are ignored.
func FrequencyVector(text string) []float64 {
	counts := frequencyCounts(text)
	vec := make([]float64, len(counts))
	for i, v := range counts {
		vec[i] = float64(v)
	}
	return vec
}

// CosineSimilarity returns the cosine of the angle between a and b. ok is false
// when the vectors differ in length or either has zero magnitude.
func CosineSimilarity(a, b []float64) (similarity float64, ok bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}

	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0, false
	}

	return dot / (math.Sqrt(magA) * math.Sqrt(magB)), true
}

// Diversity is the ratio of distinct characters to the byte length of text
func Diversity(text string) float64 {
	if len(text) == 0 {
		return 0
	}

	seen := make(map[rune]struct{}, 32)
	for _, r := range text {
		seen[r] = struct{}{}
	}

	return float64(len(seen)) / float64(len(text))
}

// Components is the breakdown of a single score
type Components struct {
	Similarity float64 `json:"similarity"` // Cosine similarity to the rank profile
	Diversity  float64 `json:"diversity"`  // Distinct characters over length
	Combined   float64 `json:"combined"`   // Weighted sum before truncation
	Score      int     `json:"score"`      // Final truncated score
	Skipped    bool    `json:"skipped"`    // Empty, oversized or no reference characters
}

// Scorer rates strings by how human-readable they look
type Scorer struct {
	MaxLength int // Strings longer than this score 0
}

// NewScorer creates a scorer with the given length cap. Values below 1 use the default.
func NewScorer(maxLength int) *Scorer {
	if maxLength < 1 {
		maxLength = DefaultMaxLength
	}
	return &Scorer{MaxLength: maxLength}
}

// Score returns the integer readability score of text
func (s *Scorer) Score(text string) int {
	return s.Breakdown(text).Score
}

// Breakdown scores text and reports the intermediate terms
func (s *Scorer) Breakdown(text string) Components {
	maxLength := s.MaxLength
	if maxLength < 1 {
		maxLength = DefaultMaxLength
	}
	if len(text) == 0 || len(text) > maxLength {
		return Components{Skipped: true}
	}

	counts := frequencyCounts(text)

	var dot, sumSquares int64
	for i, c := range counts {
		dot += c * referenceRanks[i]
		sumSquares += c * c
	}
	if sumSquares == 0 {
		// Nothing to compare against the reference profile
		return Components{Diversity: Diversity(text), Skipped: true}
	}

	similarity := float64(dot) / (math.Sqrt(float64(sumSquares)) * rankMagnitude)
	diversity := Diversity(text)
	combined := (1.0-similarity)*similarityWeight + diversity*diversityWeight

	return Components{
		Similarity: similarity,
		Diversity:  diversity,
		Combined:   combined,
		Score:      int(combined),
	}
}

var defaultScorer = NewScorer(DefaultMaxLength)

// Score rates text with the default length cap
func Score(text string) int {
	return defaultScorer.Score(text)
}
