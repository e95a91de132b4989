package gatekeeper

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ChallengeMaker drafts new bank challenges with an LLM. Drafts are only
// suggestions: nothing reaches the bank until an admin reviews and saves it.
type ChallengeMaker struct {
	client *openai.Client
}

// NewChallengeMaker creates a maker with an OpenAI client
func NewChallengeMaker(apiKey string) *ChallengeMaker {
	return &ChallengeMaker{
		client: openai.NewClient(apiKey),
	}
}

// Draft generates count candidate challenges about the topic
func (cm *ChallengeMaker) Draft(ctx context.Context, topic string, count int, logger *SuggestLogger) ([]Challenge, error) {
	VerboseLog("Drafting %d challenges for topic: %s", count, topic)

	prompt := cm.buildPrompt(topic, count)
	if logger != nil {
		logger.LogRequest("ChallengeMaker", prompt)
	}

	resp, err := cm.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: openai.GPT4o,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: "You write verification questions for a chat gatekeeper bot. Questions must be answerable instantly by any human but have plausible wrong options.",
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			Tools: []openai.Tool{
				{
					Type: openai.ToolTypeFunction,
					Function: &openai.FunctionDefinition{
						Name:        "submit_challenges",
						Description: "Submit drafted verification challenges",
						Parameters: map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"challenges": map[string]interface{}{
									"type": "array",
									"items": map[string]interface{}{
										"type": "object",
										"properties": map[string]interface{}{
											"question": map[string]interface{}{
												"type":        "string",
												"description": "The question text",
											},
											"answer": map[string]interface{}{
												"type":        "string",
												"description": "The single correct answer",
											},
											"wrong": map[string]interface{}{
												"type": "array",
												"items": map[string]interface{}{
													"type": "string",
												},
												"description": "2 to 4 plausible wrong answers",
											},
										},
										"required": []string{"question", "answer", "wrong"},
									},
								},
							},
							"required": []string{"challenges"},
						},
					},
				},
			},
			ToolChoice: openai.ToolChoice{
				Type: openai.ToolTypeFunction,
				Function: openai.ToolFunction{
					Name: "submit_challenges",
				},
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to draft challenges: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from model")
	}
	choice := resp.Choices[0]
	if len(choice.Message.ToolCalls) == 0 {
		return nil, fmt.Errorf("no tool calls in response")
	}
	toolCall := choice.Message.ToolCalls[0]
	if toolCall.Function.Name != "submit_challenges" {
		return nil, fmt.Errorf("unexpected tool call: %s", toolCall.Function.Name)
	}

	if logger != nil {
		logger.LogResponse("ChallengeMaker", toolCall.Function.Arguments)
	}

	var toolArgs struct {
		Challenges []Challenge `json:"challenges"`
	}
	if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &toolArgs); err != nil {
		return nil, fmt.Errorf("failed to parse tool arguments: %w", err)
	}

	drafts := make([]Challenge, 0, len(toolArgs.Challenges))
	for _, ch := range toolArgs.Challenges {
		if err := ch.Validate(); err != nil {
			VerboseLog("Dropping malformed draft: %v", err)
			continue
		}
		drafts = append(drafts, ch)
	}

	VerboseLog("Drafted %d challenges", len(drafts))
	return drafts, nil
}

func (cm *ChallengeMaker) buildPrompt(topic string, count int) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Draft %d verification challenges", count))
	if topic != "" {
		sb.WriteString(fmt.Sprintf(" about: %s", topic))
	}
	sb.WriteString("\n\n")

	sb.WriteString("Requirements:\n")
	sb.WriteString("- Any human should answer correctly within a few seconds\n")
	sb.WriteString("- A bot pressing buttons at random should usually fail\n")
	sb.WriteString("- Each challenge has exactly one correct answer and 2 to 4 wrong answers\n")
	sb.WriteString("- Wrong answers must be plausible at a glance but clearly wrong\n")
	sb.WriteString("- Keep every answer option short enough for a button label\n")
	sb.WriteString("- Use the submit_challenges tool to return your challenges\n")

	return sb.String()
}
