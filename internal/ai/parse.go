package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// stripFences removes a surrounding markdown code fence if the model
// wrapped its JSON answer in one.
func stripFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

type classificationPayload struct {
	IsEducational   *bool    `json:"is_educational"`
	ViolationReason string   `json:"violation_reason"`
	SuggestedTags   []string `json:"suggested_tags"`
}

// parseClassification validates the policy-audit payload. The
// educational flag is required: a payload without it is malformed, and
// the classifier has no permissive fallback.
func parseClassification(raw string) (Classification, error) {
	var payload classificationPayload
	if err := json.Unmarshal([]byte(stripFences(raw)), &payload); err != nil {
		return Classification{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if payload.IsEducational == nil {
		return Classification{}, fmt.Errorf("%w: missing is_educational", ErrMalformedResponse)
	}
	if !*payload.IsEducational && strings.TrimSpace(payload.ViolationReason) == "" {
		payload.ViolationReason = "This document does not appear to be educational material."
	}
	return Classification{
		IsEducational:   *payload.IsEducational,
		ViolationReason: strings.TrimSpace(payload.ViolationReason),
		SuggestedTags:   normalizeTags(payload.SuggestedTags),
	}, nil
}

type qualityPayload struct {
	Score        *int   `json:"score"`
	Clarity      string `json:"clarity"`
	Completeness string `json:"completeness"`
	Relevance    string `json:"relevance"`
	Legibility   string `json:"legibility"`
}

// parseQuality validates the quality payload. Scores outside 1..10 are
// treated as malformed rather than clamped.
func parseQuality(raw string) (QualityAssessment, error) {
	var payload qualityPayload
	if err := json.Unmarshal([]byte(stripFences(raw)), &payload); err != nil {
		return QualityAssessment{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if payload.Score == nil {
		return QualityAssessment{}, fmt.Errorf("%w: missing score", ErrMalformedResponse)
	}
	if *payload.Score < 1 || *payload.Score > 10 {
		return QualityAssessment{}, fmt.Errorf("%w: score %d out of range", ErrMalformedResponse, *payload.Score)
	}
	return QualityAssessment{
		Score:        *payload.Score,
		Clarity:      payload.Clarity,
		Completeness: payload.Completeness,
		Relevance:    payload.Relevance,
		Legibility:   payload.Legibility,
	}, nil
}

type summaryPayload struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
}

func parseSummary(raw string) (Summary, error) {
	var payload summaryPayload
	if err := json.Unmarshal([]byte(stripFences(raw)), &payload); err != nil {
		return Summary{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if strings.TrimSpace(payload.Summary) == "" {
		return Summary{}, fmt.Errorf("%w: missing summary text", ErrMalformedResponse)
	}
	return Summary{Text: payload.Summary, KeyPoints: payload.KeyPoints}, nil
}

type flashcardPayload struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func parseFlashcards(raw string) ([]Flashcard, error) {
	var payload []flashcardPayload
	if err := json.Unmarshal([]byte(stripFences(raw)), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	cards := make([]Flashcard, 0, len(payload))
	for _, card := range payload {
		if strings.TrimSpace(card.Question) == "" || strings.TrimSpace(card.Answer) == "" {
			continue
		}
		cards = append(cards, Flashcard{Question: card.Question, Answer: card.Answer})
	}
	if len(cards) == 0 {
		return nil, fmt.Errorf("%w: no usable flashcards", ErrMalformedResponse)
	}
	return cards, nil
}

type quizQuestionPayload struct {
	Question    string   `json:"question"`
	Choices     []string `json:"choices"`
	AnswerIndex *int     `json:"answer_index"`
	Explanation string   `json:"explanation"`
}

func parseQuiz(raw string) (Quiz, error) {
	var payload []quizQuestionPayload
	if err := json.Unmarshal([]byte(stripFences(raw)), &payload); err != nil {
		return Quiz{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	questions := make([]QuizQuestion, 0, len(payload))
	for _, question := range payload {
		if question.AnswerIndex == nil || len(question.Choices) == 0 {
			continue
		}
		if *question.AnswerIndex < 0 || *question.AnswerIndex >= len(question.Choices) {
			continue
		}
		questions = append(questions, QuizQuestion{
			Question:    question.Question,
			Choices:     question.Choices,
			AnswerIndex: *question.AnswerIndex,
			Explanation: question.Explanation,
		})
	}
	if len(questions) == 0 {
		return Quiz{}, fmt.Errorf("%w: no usable quiz questions", ErrMalformedResponse)
	}
	return Quiz{Title: "Practice Quiz", Questions: questions}, nil
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	normalized := make([]string, 0, len(tags))
	for _, tag := range tags {
		clean := strings.ToLower(strings.TrimSpace(tag))
		if clean == "" {
			continue
		}
		if _, ok := seen[clean]; ok {
			continue
		}
		seen[clean] = struct{}{}
		normalized = append(normalized, clean)
	}
	return normalized
}
