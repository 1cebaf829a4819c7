package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	defaultModel     = "gpt-4o-mini"
	maxPromptContent = 12000
)

var errMissingAPIKey = errors.New("ai: api key is required")

// OpenAIConfig configures the OpenAI-backed capability client.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Logger  *zap.Logger
}

// OpenAIClient implements Classifier, QualityAssessor and
// ArtifactGenerator over the OpenAI chat completion API.
type OpenAIClient struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewOpenAIClient constructs the capability client.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errMissingAPIKey
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
		logger: logger,
	}, nil
}

// Classify runs the policy audit. A malformed provider payload is a
// capability failure: the audit never defaults to a permissive pass.
func (c *OpenAIClient) Classify(ctx context.Context, content Content) (Classification, error) {
	prompt := `You are the content auditor for a student note-sharing library.
Decide whether the submitted document is legitimate educational material
(lecture notes, study guides, solved exercises). Reject memes, spam,
advertising, pirated textbooks and anything unrelated to studying.

Respond with JSON only:
{
  "is_educational": boolean,
  "violation_reason": string,
  "suggested_tags": string[]
}`

	raw, err := c.complete(ctx, "classify", prompt, content)
	if err != nil {
		return Classification{}, err
	}
	classification, err := parseClassification(raw)
	if err != nil {
		c.logger.Warn("classification payload malformed", zap.Error(err))
		return Classification{}, &CapabilityError{Op: "classify", Err: err}
	}
	return classification, nil
}

// AssessQuality scores the upload. A malformed payload falls back to
// the defined default assessment rather than blocking the upload.
func (c *OpenAIClient) AssessQuality(ctx context.Context, content Content, title, subject string) (QualityAssessment, error) {
	prompt := fmt.Sprintf(`Evaluate the quality of the study notes below.
Title: %s
Subject: %s

Respond with JSON only:
{
  "score": number (1-10),
  "clarity": string,
  "completeness": string,
  "relevance": string,
  "legibility": string
}`, strings.TrimSpace(title), strings.TrimSpace(subject))

	raw, err := c.complete(ctx, "assess_quality", prompt, content)
	if err != nil {
		return QualityAssessment{}, err
	}
	assessment, err := parseQuality(raw)
	if err != nil {
		c.logger.Warn("quality payload malformed, using fallback assessment", zap.Error(err))
		return FallbackQuality(), nil
	}
	return assessment, nil
}

// Summarize produces the publish-time summary artifact.
func (c *OpenAIClient) Summarize(ctx context.Context, content Content) (Summary, error) {
	prompt := `Summarize the study notes below clearly.
Also return 5-8 key bullet points.

Respond with JSON only:
{
  "summary": string,
  "key_points": string[]
}`

	raw, err := c.complete(ctx, "summarize", prompt, content)
	if err != nil {
		return Summary{}, err
	}
	summary, err := parseSummary(raw)
	if err != nil {
		return Summary{}, &CapabilityError{Op: "summarize", Err: err}
	}
	return summary, nil
}

// GenerateFlashcards produces question/answer study cards.
func (c *OpenAIClient) GenerateFlashcards(ctx context.Context, content Content) ([]Flashcard, error) {
	prompt := `Create 5-10 flashcards from the notes below.

Respond with JSON only:
[
  { "question": string, "answer": string }
]`

	raw, err := c.complete(ctx, "flashcards", prompt, content)
	if err != nil {
		return nil, err
	}
	cards, err := parseFlashcards(raw)
	if err != nil {
		return nil, &CapabilityError{Op: "flashcards", Err: err}
	}
	return cards, nil
}

// GenerateQuiz produces a short multiple-choice quiz.
func (c *OpenAIClient) GenerateQuiz(ctx context.Context, content Content) (Quiz, error) {
	prompt := `Create a short multiple-choice quiz from the notes below.

Respond with JSON only:
[
  {
    "question": string,
    "choices": string[],
    "answer_index": number,
    "explanation": string
  }
]`

	raw, err := c.complete(ctx, "quiz", prompt, content)
	if err != nil {
		return Quiz{}, err
	}
	quiz, err := parseQuiz(raw)
	if err != nil {
		return Quiz{}, &CapabilityError{Op: "quiz", Err: err}
	}
	return quiz, nil
}

func (c *OpenAIClient) complete(ctx context.Context, op, prompt string, content Content) (string, error) {
	message := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if content.IsImage {
		message.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: prompt},
			{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: content.DataURL()},
			},
		}
	} else {
		message.Content = prompt + "\n\nNOTES:\n" + truncate(content.Text, maxPromptContent)
	}

	response, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: []openai.ChatCompletionMessage{message},
	})
	if err != nil {
		c.logger.Warn("capability call failed", zap.String("op", op), zap.Error(err))
		return "", &CapabilityError{Op: op, Err: err}
	}
	if len(response.Choices) == 0 {
		return "", &CapabilityError{Op: op, Err: errors.New("provider returned no choices")}
	}
	return response.Choices[0].Message.Content, nil
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
