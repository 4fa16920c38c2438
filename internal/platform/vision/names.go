package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

var ErrNoName = errors.New("no name provided")

// Name is a full name split into the two fields the registration form uses.
// Middle names and suffixes stay with the last name.
type Name struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

const nameModel = openai.GPT3Dot5Turbo

const nameSystemPrompt = "You are a name parsing specialist. Return only valid JSON with firstName and lastName properties."

const namePromptTemplate = `Parse the following full name into first name and last name. Handle these formats:
- Single names (use as first name, empty last name)
- Two names (first and last)
- Three or more names (first name, then the rest as last name)
- Hispanic names such as "Maria Elena Rodriguez Garcia"
- Titles or prefixes (drop them)
- Middle names (keep them with the last name)

Full name: %q

Return ONLY a JSON object with "firstName" and "lastName" properties.

Examples:
- "John Smith" -> {"firstName": "John", "lastName": "Smith"}
- "Maria Elena Rodriguez Garcia" -> {"firstName": "Maria", "lastName": "Elena Rodriguez Garcia"}
- "Robert James Wilson Jr" -> {"firstName": "Robert", "lastName": "James Wilson Jr"}
- "Madonna" -> {"firstName": "Madonna", "lastName": ""}`

// ParseName asks the text model to split a full name.
func (x *Extractor) ParseName(ctx context.Context, fullName string) (*Name, error) {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return nil, ErrNoName
	}

	resp, err := x.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       nameModel,
		MaxTokens:   100,
		Temperature: 0.1,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: nameSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(namePromptTemplate, fullName)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("parse name: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("parse name: empty response")
	}

	var out struct {
		FirstName *string `json:"firstName"`
		LastName  *string `json:"lastName"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(resp.Choices[0].Message.Content)), &out); err != nil {
		return nil, fmt.Errorf("parse name: unparseable answer: %w", err)
	}
	if out.FirstName == nil || out.LastName == nil {
		return nil, errors.New("parse name: answer is missing firstName or lastName")
	}
	return &Name{FirstName: strings.TrimSpace(*out.FirstName), LastName: strings.TrimSpace(*out.LastName)}, nil
}

// SplitName is the local fallback: the first word is the first name and
// everything after it the last name.
func SplitName(fullName string) Name {
	parts := strings.Fields(fullName)
	switch len(parts) {
	case 0:
		return Name{}
	case 1:
		return Name{FirstName: parts[0]}
	}
	return Name{FirstName: parts[0], LastName: strings.Join(parts[1:], " ")}
}
