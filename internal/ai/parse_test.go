package ai

import (
	"errors"
	"testing"
)

func TestParseClassificationAccepts(t *testing.T) {
	raw := `{"is_educational": true, "violation_reason": "", "suggested_tags": ["Calculus", "calculus", " Derivatives "]}`
	classification, err := parseClassification(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !classification.IsEducational {
		t.Fatalf("expected educational verdict")
	}
	if len(classification.SuggestedTags) != 2 {
		t.Fatalf("expected deduplicated lowered tags, got %v", classification.SuggestedTags)
	}
	if classification.SuggestedTags[0] != "calculus" || classification.SuggestedTags[1] != "derivatives" {
		t.Fatalf("unexpected tags: %v", classification.SuggestedTags)
	}
}

func TestParseClassificationRejectsWithDefaultReason(t *testing.T) {
	classification, err := parseClassification(`{"is_educational": false}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if classification.IsEducational {
		t.Fatalf("expected rejection verdict")
	}
	if classification.ViolationReason == "" {
		t.Fatalf("rejection must carry a reason")
	}
}

func TestParseClassificationMissingVerdictIsMalformed(t *testing.T) {
	if _, err := parseClassification(`{"suggested_tags": ["x"]}`); !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestParseClassificationGarbageIsMalformed(t *testing.T) {
	if _, err := parseClassification("I think this looks fine!"); !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestParseClassificationStripsCodeFence(t *testing.T) {
	raw := "```json\n{\"is_educational\": true}\n```"
	classification, err := parseClassification(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !classification.IsEducational {
		t.Fatalf("expected educational verdict")
	}
}

func TestParseQualityValidRange(t *testing.T) {
	assessment, err := parseQuality(`{"score": 9, "clarity": "High", "completeness": "Full", "relevance": "High", "legibility": "Clear"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if assessment.Score != 9 {
		t.Fatalf("expected score 9, got %d", assessment.Score)
	}
}

func TestParseQualityOutOfRangeIsMalformed(t *testing.T) {
	for _, raw := range []string{`{"score": 0}`, `{"score": 11}`, `{"score": 70}`, `{}`} {
		if _, err := parseQuality(raw); !errors.Is(err, ErrMalformedResponse) {
			t.Fatalf("payload %s: expected ErrMalformedResponse, got %v", raw, err)
		}
	}
}

func TestParseSummaryRequiresText(t *testing.T) {
	if _, err := parseSummary(`{"key_points": ["a"]}`); !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse for missing summary text, got %v", err)
	}
	summary, err := parseSummary(`{"summary": "Covers limits and continuity.", "key_points": ["limits", "continuity"]}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summary.KeyPoints) != 2 {
		t.Fatalf("expected 2 key points, got %d", len(summary.KeyPoints))
	}
}

func TestParseFlashcardsSkipsEmptyCards(t *testing.T) {
	raw := `[{"question": "What is a limit?", "answer": "The value a function approaches."}, {"question": "", "answer": "orphan"}]`
	cards, err := parseFlashcards(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cards) != 1 {
		t.Fatalf("expected 1 usable card, got %d", len(cards))
	}
}

func TestParseFlashcardsAllUnusableIsMalformed(t *testing.T) {
	if _, err := parseFlashcards(`[{"question": "", "answer": ""}]`); !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestParseQuizValidatesAnswerIndex(t *testing.T) {
	raw := `[
		{"question": "2+2?", "choices": ["3", "4"], "answer_index": 1, "explanation": "basic addition"},
		{"question": "bad", "choices": ["a"], "answer_index": 4},
		{"question": "missing", "choices": ["a", "b"]}
	]`
	quiz, err := parseQuiz(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(quiz.Questions) != 1 {
		t.Fatalf("expected 1 valid question, got %d", len(quiz.Questions))
	}
	if quiz.Questions[0].AnswerIndex != 1 {
		t.Fatalf("unexpected answer index: %d", quiz.Questions[0].AnswerIndex)
	}
}
