// Package vision extracts identity fields from a photographed ID document
// using an OpenAI vision model.
package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

var (
	ErrNoImage          = errors.New("no image data provided")
	ErrExtractionFailed = errors.New("id extraction failed")
)

// RejectedError is returned when the model looked at the image and refused
// it (not an ID, unreadable). Its message is safe to show to the patient.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string { return e.Message }

// PublicMessage returns the text to surface to the patient.
func (e *RejectedError) PublicMessage() string { return e.Message }

// IDData holds the fields read off an ID document. Fields the model could
// not read are empty.
type IDData struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	DOB       string `json:"dob"`
	Sex       string `json:"sex"`
	IDNumber  string `json:"idNumber,omitempty"`
}

const systemPrompt = "You read identity documents. You only accept driver's licenses, passports and state ID cards, " +
	"and you check that the photo is clear enough to read. Anything else is reported as an error."

const userPrompt = `Check that this image is an ID card (driver's license, passport or state ID) and that it is readable.

If it is not an ID card, answer: {"error": "Not an ID card"}
If it is an ID card but blurry, dark or unreadable, answer: {"error": "Poor image quality - please retake with better lighting and focus"}
Otherwise answer with exactly this JSON object, using null for anything you cannot read:
{
  "firstName": "first name",
  "lastName": "last name",
  "dob": "date of birth as MM/DD/YYYY",
  "sex": "Male or Female",
  "idNumber": "document number"
}

Answer with the JSON object only.`

// Extractor calls the chat completions API with the image attached.
type Extractor struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*openai.ClientConfig)

// WithBaseURL points the extractor at a different API root.
func WithBaseURL(baseURL string) ExtractorOption {
	return func(cfg *openai.ClientConfig) {
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}
	}
}

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) ExtractorOption {
	return func(cfg *openai.ClientConfig) {
		cfg.HTTPClient = hc
	}
}

// NewExtractor creates an Extractor. An empty model selects gpt-4o.
func NewExtractor(apiKey, model string, opts ...ExtractorOption) *Extractor {
	cfg := openai.DefaultConfig(apiKey)
	for _, opt := range opts {
		opt(&cfg)
	}
	if model == "" {
		model = openai.GPT4o
	}
	return &Extractor{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		maxTokens: 1000,
	}
}

// ExtractID sends the image (a data URI) to the model and decodes its answer.
func (x *Extractor) ExtractID(ctx context.Context, imageData string) (*IDData, error) {
	if strings.TrimSpace(imageData) == "" {
		return nil, ErrNoImage
	}

	resp, err := x.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     x.model,
		MaxTokens: x.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: userPrompt},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: imageData}},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrExtractionFailed)
	}
	return parseAnswer(resp.Choices[0].Message.Content)
}

type answer struct {
	Error     string  `json:"error"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	DOB       *string `json:"dob"`
	Sex       *string `json:"sex"`
	IDNumber  *string `json:"idNumber"`
}

// parseAnswer decodes the model's reply, tolerating a markdown code fence
// around the JSON.
func parseAnswer(content string) (*IDData, error) {
	clean := stripCodeFence(content)

	var a answer
	if err := json.Unmarshal([]byte(clean), &a); err != nil {
		return nil, fmt.Errorf("%w: unparseable answer: %v", ErrExtractionFailed, err)
	}
	if a.Error != "" {
		return nil, &RejectedError{Message: a.Error}
	}
	return &IDData{
		FirstName: deref(a.FirstName),
		LastName:  deref(a.LastName),
		DOB:       deref(a.DOB),
		Sex:       deref(a.Sex),
		IDNumber:  deref(a.IDNumber),
	}, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	v := strings.TrimSpace(*s)
	if strings.EqualFold(v, "null") {
		return ""
	}
	return v
}
