package gatekeeper

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ChallengeChecker reviews drafted challenges before they are offered to
// the admin
type ChallengeChecker struct {
	client *openai.Client
}

// ReviewResult is the checker's verdict on one draft
type ReviewResult struct {
	Accept bool   `json:"accept"`
	Reason string `json:"reason"`
}

// NewChallengeChecker creates a checker with an OpenAI client
func NewChallengeChecker(apiKey string) *ChallengeChecker {
	return &ChallengeChecker{
		client: openai.NewClient(apiKey),
	}
}

// Review evaluates a single drafted challenge
func (cc *ChallengeChecker) Review(ctx context.Context, ch Challenge, logger *SuggestLogger) (*ReviewResult, error) {
	VerboseLog("Reviewing draft: %s", ch.Question)

	prompt := cc.buildPrompt(ch)
	if logger != nil {
		logger.LogRequest("ChallengeChecker", prompt)
	}

	resp, err := cc.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: openai.GPT4o,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: "You review verification questions for a chat gatekeeper bot. Reject anything ambiguous, offensive, regional, or answerable only with specialist knowledge.",
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
						Name:        "submit_review",
						Description: "Submit the review verdict",
						Parameters: map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"accept": map[string]interface{}{
									"type":        "boolean",
									"description": "Whether the challenge is usable as-is",
								},
								"reason": map[string]interface{}{
									"type":        "string",
									"description": "Brief justification for the verdict",
								},
							},
							"required": []string{"accept", "reason"},
						},
					},
				},
			},
			ToolChoice: openai.ToolChoice{
				Type: openai.ToolTypeFunction,
				Function: openai.ToolFunction{
					Name: "submit_review",
				},
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to review challenge: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from model")
	}
	choice := resp.Choices[0]
	if len(choice.Message.ToolCalls) == 0 {
		return nil, fmt.Errorf("no tool calls in response")
	}
	toolCall := choice.Message.ToolCalls[0]
	if toolCall.Function.Name != "submit_review" {
		return nil, fmt.Errorf("unexpected tool call: %s", toolCall.Function.Name)
	}

	if logger != nil {
		logger.LogResponse("ChallengeChecker", toolCall.Function.Arguments)
	}

	var result ReviewResult
	if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &result); err != nil {
		return nil, fmt.Errorf("failed to parse tool arguments: %w", err)
	}

	if logger != nil {
		logger.LogVerdict(ch.Question, result.Accept, result.Reason)
	}
	VerboseLog("Review of %q: accept=%v (%s)", ch.Question, result.Accept, result.Reason)
	return &result, nil
}

func (cc *ChallengeChecker) buildPrompt(ch Challenge) string {
	var sb strings.Builder

	sb.WriteString("Review this verification challenge:\n\n")
	sb.WriteString(fmt.Sprintf("Question: %s\n", ch.Question))
	sb.WriteString(fmt.Sprintf("Correct answer: %s\n", ch.Answer))
	sb.WriteString("Wrong answers:\n")
	for _, wrong := range ch.Wrong {
		sb.WriteString(fmt.Sprintf("- %s\n", wrong))
	}
	sb.WriteString("\n")

	sb.WriteString("Accept only if:\n")
	sb.WriteString("- The correct answer is unambiguous and obvious to any human\n")
	sb.WriteString("- No wrong answer could reasonably be considered correct\n")
	sb.WriteString("- The question requires no specialist or regional knowledge\n")
	sb.WriteString("- Use the submit_review tool to return your verdict\n")

	return sb.String()
}
