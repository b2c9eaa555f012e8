package feedback

import (
	"strings"

	"parrot/api"
)

const (
	TipText         = "Highlighted sounds need more practice"
	NoSpeechText    = "No speech detected"
	SpeechLabel     = "Your speech:"
	goodThreshold   = 80
	mediumThreshold = 60
)

type Tier string

const (
	TierGood   Tier = "good"
	TierMedium Tier = "medium"
	TierPoor   Tier = "poor"
)

func TierFor(score float64) Tier {
	switch {
	case score >= goodThreshold:
		return TierGood
	case score >= mediumThreshold:
		return TierMedium
	default:
		return TierPoor
	}
}

// Mark is one displayed unit (a letter or a phoneme) and whether it needs work.
type Mark struct {
	Text    string
	Problem bool
}

type WordBlock struct {
	Word  string
	Score float64
	Tier  Tier
	// Letters and Phonemes are empty when the server sent no analysis.
	Letters  []Mark
	Phonemes []Mark
	Heard    []string
	Tip      string
}

func (w WordBlock) HasPhonemes() bool { return len(w.Phonemes) > 0 }

type Report struct {
	Overall    float64
	Tier       Tier
	Recognized string
	Words      []WordBlock
}

// SpeechLine is the "Your speech:" row.
func (r Report) SpeechLine() string {
	text := strings.TrimSpace(r.Recognized)
	if text == "" {
		text = NoSpeechText
	}
	return SpeechLabel + " " + text
}

func Build(ev *api.Evaluation) Report {
	r := Report{
		Overall:    ev.OverallScore,
		Tier:       TierFor(ev.OverallScore),
		Recognized: strings.TrimSpace(ev.RecognizedText),
	}
	for _, ws := range ev.WordScores {
		block := WordBlock{Word: ws.Word, Score: ws.Score, Tier: TierFor(ws.Score)}
		if pa, ok := ev.PhonemeAnalysis[ws.Word]; ok && len(pa.ReferencePhonemes) > 0 {
			problems := make(map[int]bool, len(pa.ProblemPhonemes))
			for _, p := range pa.ProblemPhonemes {
				problems[p] = true
			}
			for i, ph := range pa.ReferencePhonemes {
				block.Phonemes = append(block.Phonemes, Mark{Text: ph, Problem: problems[i]})
			}
			letters := EstimateLetters(ws.Word, len(pa.ReferencePhonemes), pa.ProblemPhonemes)
			for i, ch := range []rune(ws.Word) {
				block.Letters = append(block.Letters, Mark{Text: string(ch), Problem: letters[i]})
			}
			block.Heard = pa.UserPhonemes
			block.Tip = TipText
		}
		r.Words = append(r.Words, block)
	}
	return r
}
