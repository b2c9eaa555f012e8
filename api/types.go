package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// PlaceholderSpeech is sent in place of an empty transcript.
const PlaceholderSpeech = "No speech detected"

var (
	ErrTransport = errors.New("scoring server unreachable")
	ErrMalformed = errors.New("malformed server response")
)

// ServerError is a non-2xx reply; Message comes from the {"error": ...} body
// when present.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Status, e.Message)
}

type Difficulty string

const (
	All    Difficulty = "all"
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

// Levels is the tab order.
var Levels = []Difficulty{All, Easy, Medium, Hard}

func ParseDifficulty(s string) (Difficulty, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return All, nil
	case "easy", "beginner":
		return Easy, nil
	case "medium", "intermediate":
		return Medium, nil
	case "hard", "advanced":
		return Hard, nil
	}
	return "", fmt.Errorf("unknown difficulty %q (want all, easy, medium or hard)", s)
}

func (d Difficulty) Label() string {
	if d == "" {
		return "All"
	}
	return strings.ToUpper(string(d[:1])) + string(d[1:])
}

type Sentence struct {
	Text       string `json:"sentence"`
	Difficulty string `json:"difficulty"`
}

type EvaluationRequest struct {
	Reference string
	Speech    string
	Audio     []byte
	Format    string // container name, e.g. "wav"
}

type evaluationBody struct {
	Speech    string `json:"speech"`
	AudioData string `json:"audio_data"`
	Reference string `json:"reference"`
}

type PhonemeAnalysis struct {
	ReferencePhonemes []string `json:"reference_phonemes"`
	ProblemPhonemes   []int    `json:"problem_phonemes"`
	UserPhonemes      []string `json:"user_phonemes,omitempty"`
}

type WordScore struct {
	Word  string
	Score float64
}

// WordScores decodes a JSON object into a slice, keeping the server's key
// order. A repeated key keeps its first position and takes the last value.
type WordScores []WordScore

func (w *WordScores) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*w = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("word_scores: expected object, got %v", tok)
	}
	out := WordScores{}
	seen := map[string]int{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		word, _ := tok.(string)
		var score float64
		if err := dec.Decode(&score); err != nil {
			return fmt.Errorf("word_scores[%q]: %w", word, err)
		}
		if i, ok := seen[word]; ok {
			out[i].Score = score
			continue
		}
		seen[word] = len(out)
		out = append(out, WordScore{Word: word, Score: score})
	}
	*w = out
	return nil
}

type Evaluation struct {
	OverallScore    float64                    `json:"overall_score"`
	RecognizedText  string                     `json:"recognized_text"`
	WordScores      WordScores                 `json:"word_scores"`
	PhonemeAnalysis map[string]PhonemeAnalysis `json:"phoneme_analysis,omitempty"`

	Trace Trace `json:"-"`
}

// Trace describes the exchange that produced an Evaluation.
type Trace struct {
	RequestID  string
	StatusCode int
	Metrics    *NetworkMetrics
}
