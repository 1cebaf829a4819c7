// Package ai defines the external generative capabilities consumed by
// the admission pipeline and publish flow, plus an OpenAI-backed
// implementation. Providers are slow and unreliable; every call is
// bounded by the caller's context and failures are surfaced as
// retryable CapabilityErrors, never silently treated as a pass.
package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrMalformedResponse indicates the provider answered but the payload
// did not match the expected schema. Callers decide per capability
// whether a defined fallback exists; the classifier has none.
var ErrMalformedResponse = errors.New("ai: malformed capability response")

// CapabilityError wraps a transport or provider failure. It is always
// retryable from the caller's point of view.
type CapabilityError struct {
	Op  string
	Err error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("ai capability %s failed: %v", e.Op, e.Err)
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// IsCapabilityError reports whether err stems from an unavailable or
// misbehaving provider.
func IsCapabilityError(err error) bool {
	var capabilityErr *CapabilityError
	return errors.As(err, &capabilityErr)
}

// Content is the normalized upload representation fed to capabilities.
// Image uploads carry raw bytes; document uploads carry the text
// surrogate built by the fingerprint package.
type Content struct {
	Text    string
	Image   []byte
	MIME    string
	IsImage bool
}

// ImageContent wraps raw image bytes.
func ImageContent(raw []byte, mime string) Content {
	return Content{Image: raw, MIME: mime, IsImage: true}
}

// TextContent wraps a text surrogate.
func TextContent(text string) Content {
	return Content{Text: text}
}

// DataURL renders image content as a base64 data URL for vision-capable
// chat models.
func (c Content) DataURL() string {
	mime := c.MIME
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(c.Image)
}

// Classification is the policy-audit verdict for a candidate upload.
type Classification struct {
	IsEducational   bool
	ViolationReason string
	SuggestedTags   []string
}

// QualityAssessment scores a candidate upload on a 1..10 scale with
// rubric commentary.
type QualityAssessment struct {
	Score        int
	Clarity      string
	Completeness string
	Relevance    string
	Legibility   string
}

// FallbackQuality is the defined assessment used when the provider
// answers with an unparseable quality payload. The fallback is an
// explicit branch, not an implicit catch.
func FallbackQuality() QualityAssessment {
	return QualityAssessment{
		Score:        7,
		Clarity:      "High",
		Completeness: "Full",
		Relevance:    "High",
		Legibility:   "Clear",
	}
}

// Summary is the publish-time study summary artifact.
type Summary struct {
	Text      string
	KeyPoints []string
}

// Flashcard is a single question/answer study card.
type Flashcard struct {
	Question string
	Answer   string
}

// QuizQuestion is a multiple-choice question with a zero-based answer
// index into Choices.
type QuizQuestion struct {
	Question    string
	Choices     []string
	AnswerIndex int
	Explanation string
}

// Quiz groups generated questions under a title.
type Quiz struct {
	Title     string
	Questions []QuizQuestion
}

// Classifier decides whether an upload is legitimate educational
// material.
type Classifier interface {
	Classify(ctx context.Context, content Content) (Classification, error)
}

// QualityAssessor produces the numeric quality score persisted with a
// published entry and fed to the reputation bonus rule.
type QualityAssessor interface {
	AssessQuality(ctx context.Context, content Content, title, subject string) (QualityAssessment, error)
}

// ArtifactGenerator produces the optional study artifacts attached to
// an entry at publish time.
type ArtifactGenerator interface {
	Summarize(ctx context.Context, content Content) (Summary, error)
	GenerateFlashcards(ctx context.Context, content Content) ([]Flashcard, error)
	GenerateQuiz(ctx context.Context, content Content) (Quiz, error)
}
