package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/kitsunehq/kitsune-backend/internal/models"
	"github.com/kitsunehq/kitsune-backend/internal/questions"
)

const systemPrompt = `You are the content moderator for a product support forum.
Given a support question, decide exactly one action:
- "spam" if the question is spam or abuse
- "flag_review" if you suspect spam but are not sure; include a short reason
- "not_spam" if the question is legitimate; optionally include "topic" with the
  best matching topic for the question and a short "topic_reason"
Respond with a JSON object: {"action": "...", "reason": "...", "topic": "...",
"topic_reason": "..."}. Omit fields that do not apply.`

type classifierResponse struct {
	Action      string `json:"action"`
	Reason      string `json:"reason"`
	Topic       string `json:"topic"`
	TopicReason string `json:"topic_reason"`
}

// OpenAIClassifier classifies freshly asked questions through the OpenAI
// chat API. It implements questions.Classifier.
type OpenAIClassifier struct {
	client *openai.Client
	model  string
}

var _ questions.Classifier = (*OpenAIClassifier)(nil)

// NewOpenAIClassifier builds a classifier from OPENAI_API_KEY and
// OPENAI_MODEL.
func NewOpenAIClassifier() (*OpenAIClassifier, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}
	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}
	slog.Info("Initializing question classifier", "model", model)
	return &OpenAIClassifier{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// ClassifyQuestion sends the question's title and content to the model and
// maps the reply onto the closed verdict set.
func (o *OpenAIClassifier) ClassifyQuestion(ctx context.Context, q *models.Question) (questions.Verdict, error) {
	var topicTitles []string
	if q.Product != nil {
		topicTitles = append(topicTitles, q.Product.Title)
	}

	userPrompt := fmt.Sprintf("Title: %s\n\nContent:\n%s", q.Title, q.Content)
	if len(topicTitles) > 0 {
		userPrompt += "\n\nProduct: " + strings.Join(topicTitles, ", ")
	}

	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return questions.Verdict{}, fmt.Errorf("classifier API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return questions.Verdict{}, fmt.Errorf("classifier returned no choices")
	}

	var parsed classifierResponse
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		return questions.Verdict{}, fmt.Errorf("classifier returned malformed JSON: %w", err)
	}

	switch parsed.Action {
	case "spam":
		return questions.Verdict{Kind: questions.VerdictSpam}, nil
	case "flag_review":
		return questions.Verdict{Kind: questions.VerdictFlagReview, Reason: parsed.Reason}, nil
	case "not_spam":
		if parsed.Topic != "" {
			return questions.Verdict{
				Kind:   questions.VerdictReclassify,
				Topic:  parsed.Topic,
				Reason: parsed.TopicReason,
			}, nil
		}
		return questions.Verdict{Kind: questions.VerdictNoAction}, nil
	default:
		slog.Warn("classifier returned unknown action", "action", parsed.Action, "question_id", q.ID)
		return questions.Verdict{Kind: questions.VerdictNoAction}, nil
	}
}
