package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	log "log/slog"
	"strings"

	openai "github.com/openai/openai-go/v3"
)

// Classification is the model's answer: the closest canonical command phrase
// and, for searches, the query.
type Classification struct {
	Command string `json:"command"`
	Query   string `json:"query"`
}

const systemPrompt = `
You are SHREE-NLU, the command classifier for a Linux setup assistant.
Your ONLY job is to map the user's utterance onto one of the assistant's
canonical commands.

GENERAL RULES:
1. Do NOT converse.
2. Do NOT answer the question.
3. Do NOT add explanations.
4. Output ONLY JSON. No markdown.
5. Never invent commands that are not in the list.

OUTPUT FORMAT:
{
  "command": "<one canonical command, or unknown>",
  "query": "<search terms, only for search>"
}

Append any argument the user gave to the command: a Java version
("install java 17"), an e-mail address ("generate ssh key for me@example.com").

CANONICAL COMMANDS:
%s

If the meaning is unclear, command = "unknown".
`

type Classifier struct {
	client openai.Client
	model  string
}

func NewClassifier(client openai.Client, model string) *Classifier {
	if model == "" {
		model = string(openai.ChatModelGPT5Nano)
	}
	return &Classifier{client: client, model: model}
}

func (c *Classifier) Analyze(ctx context.Context, transcript string) (Classification, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(fmt.Sprintf(systemPrompt, "- "+strings.Join(Phrases(), "\n- "))),
			openai.UserMessage(transcript),
		},
		Model: openai.ChatModel(c.model),
	})
	if err != nil {
		return Classification{}, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return Classification{}, fmt.Errorf("no choices in response")
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return Classification{}, fmt.Errorf("empty message content")
	}

	log.Debug("Classified", "data", content)

	var out Classification
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return Classification{}, fmt.Errorf("unmarshal classification: %w (raw: %s)", err, content)
	}

	return out, nil
}
