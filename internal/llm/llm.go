package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/SarangaVP/Car-Damage-Caption/internal/models"
)

// Client wraps the Anthropic API for caption generation and caption
// evaluation against car images.
type Client struct {
	api          *anthropic.Client
	captionModel anthropic.Model
	evalModel    anthropic.Model
}

// NewClient creates an LLM client with the given API key and models.
func NewClient(apiKey, captionModel, evalModel string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:          &client,
		captionModel: anthropic.Model(captionModel),
		evalModel:    anthropic.Model(evalModel),
	}
}

const captionPrompt = `Describe a car's condition in one paragraph for a car damage dataset, based on the provided image. If visible damage exists, detail the type, the specific parts affected, the severity, and notable aspects like the damage location. If no damage is visible, state that clearly and include the car's overall condition and any relevant observations. Ensure the description is clear, precise, and avoids assumptions beyond the image content. Do not include introductory phrases like 'Here is a description,' 'Based on the image,' 'This image shows,' or any reference to the image itself and statements like 'further inspection is needed'; focus solely on the car's state in a direct, standalone manner.`

// Caption asks the vision model for a one-paragraph condition description of
// the image.
func (c *Client) Caption(ctx context.Context, image []byte, mediaType string) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(image)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.captionModel,
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(captionPrompt),
				anthropic.NewImageBlockBase64(mediaType, encoded),
			),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	text := firstText(msg)
	if text == "" {
		return "", fmt.Errorf("no text content in API response")
	}
	return strings.TrimSpace(text), nil
}

// buildEvalPrompt constructs the evaluation instruction for one caption.
func buildEvalPrompt(caption string) string {
	var sb strings.Builder
	sb.WriteString("Evaluate the following description of a car's condition based on the provided image. ")
	sb.WriteString("Score it out of 5 (1 being very inaccurate, 5 being very accurate) based on how well it describes the car's visible condition. ")
	sb.WriteString("Provide a brief explanation for your score. Return your response in this format: 'Score: X/5 - Explanation: [your explanation]'. ")
	sb.WriteString("The description to evaluate is: '")
	sb.WriteString(caption)
	sb.WriteString("'")
	return sb.String()
}

// Evaluate scores one caption against the image. A reply the model formats
// incorrectly degrades to a nil score with the raw reply as explanation, so
// the operator still sees what the model said.
func (c *Client) Evaluate(ctx context.Context, image []byte, mediaType, caption string) (models.Evaluation, error) {
	encoded := base64.StdEncoding.EncodeToString(image)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.evalModel,
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(buildEvalPrompt(caption)),
				anthropic.NewImageBlockBase64(mediaType, encoded),
			),
		},
	})
	if err != nil {
		return models.Evaluation{}, fmt.Errorf("anthropic API call: %w", err)
	}

	text := firstText(msg)
	if text == "" {
		return models.Evaluation{}, fmt.Errorf("no text content in API response")
	}
	return parseEvaluation(text), nil
}

// firstText returns the first text block of a response.
func firstText(msg *anthropic.Message) string {
	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text
		}
	}
	return ""
}

// parseEvaluation extracts (score, explanation) from a reply shaped like
// "Score: 4/5 - Explanation: mostly accurate". Any deviation yields a nil
// score and the whole reply as explanation.
func parseEvaluation(text string) models.Evaluation {
	text = strings.TrimSpace(text)

	head, tail, ok := strings.Cut(text, " - Explanation: ")
	if !ok {
		return models.Evaluation{Explanation: text}
	}

	scorePart, ok := strings.CutPrefix(strings.TrimSpace(head), "Score:")
	if !ok {
		return models.Evaluation{Explanation: text}
	}
	scorePart, _, _ = strings.Cut(strings.TrimSpace(scorePart), "/")

	n, err := strconv.Atoi(strings.TrimSpace(scorePart))
	if err != nil || !models.ValidScore(n) {
		return models.Evaluation{Explanation: text}
	}

	return models.Evaluation{Score: &n, Explanation: strings.TrimSpace(tail)}
}
