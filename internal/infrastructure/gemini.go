package infrastructure

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"smartreply/internal/entities"
	"smartreply/internal/interfaces"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

var (
	ErrTruncated     = errors.New("gemini response truncated (MAX_TOKENS)")
	ErrSafetyBlocked = errors.New("gemini response blocked by safety filter")
	ErrNoReplies     = errors.New("no valid reply array in gemini response")
)

type geminiPart struct {
	Text       string `json:"text,omitempty"`
	InlineData *struct {
		MimeType string `json:"mimeType"`
		Data     string `json:"data"`
	} `json:"inlineData,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	Temperature      float64        `json:"temperature"`
	TopK             int            `json:"topK"`
	TopP             float64        `json:"topP"`
	MaxOutputTokens  int            `json:"maxOutputTokens"`
	ResponseMimeType string         `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
}

type geminiCandidate struct {
	Content struct {
		Parts []geminiPart `json:"parts"`
		Role  string       `json:"role"`
	} `json:"content"`
	FinishReason string `json:"finishReason"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// replySchema asks the provider for structured output: an array of exactly
// three {tone, text, confidence} objects.
var replySchema = map[string]any{
	"type":     "ARRAY",
	"minItems": 3,
	"maxItems": 3,
	"items": map[string]any{
		"type": "OBJECT",
		"properties": map[string]any{
			"tone":       map[string]any{"type": "STRING"},
			"text":       map[string]any{"type": "STRING"},
			"confidence": map[string]any{"type": "NUMBER"},
		},
		"required": []string{"tone", "text", "confidence"},
	},
}

// GeminiClient calls the generative-language REST API. Each call is a single
// best-effort round trip: no retries, no backoff, no prompt caching.
type GeminiClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

func NewGeminiClient(apiKey, model string) *GeminiClient {
	return &GeminiClient{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultGeminiBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

var _ interfaces.AIClient = (*GeminiClient)(nil)

func (g *GeminiClient) GenerateReplies(ctx context.Context, text string, rc interfaces.ReplyContext, language string) ([]entities.ReplyCandidate, error) {
	prompt := buildReplyPrompt(text, rc.Subject, language)

	reqBody := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: generationConfig{
			Temperature:      0.7,
			TopK:             40,
			TopP:             0.95,
			MaxOutputTokens:  2048,
			ResponseMimeType: "application/json",
			ResponseSchema:   replySchema,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", g.baseURL, g.model, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini API error (status %d): %s", resp.StatusCode, string(body))
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return parseReplies(&geminiResp)
}

func parseReplies(resp *geminiResponse) ([]entities.ReplyCandidate, error) {
	if resp.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("%w: %s", ErrSafetyBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return nil, ErrSafetyBlocked
	}

	cand := resp.Candidates[0]
	if cand.FinishReason == "MAX_TOKENS" {
		return nil, ErrTruncated
	}
	if cand.FinishReason == "SAFETY" {
		return nil, fmt.Errorf("%w: candidate finished with SAFETY", ErrSafetyBlocked)
	}

	text := candidateText(cand.Content.Parts)
	if text == "" {
		return nil, ErrNoReplies
	}

	replies, err := extractReplies(text)
	if err != nil {
		return nil, err
	}
	if len(replies) != 3 {
		return nil, fmt.Errorf("%w: got %d replies, want 3", ErrNoReplies, len(replies))
	}

	for i := range replies {
		if strings.TrimSpace(replies[i].Tone) == "" || strings.TrimSpace(replies[i].Text) == "" {
			return nil, fmt.Errorf("%w: reply %d has empty tone or text", ErrNoReplies, i)
		}
		replies[i].Confidence = clamp01(replies[i].Confidence)
	}
	return replies, nil
}

// candidateText concatenates text parts, decoding inline base64 parts.
func candidateText(parts []geminiPart) string {
	var sb strings.Builder
	for _, p := range parts {
		if p.Text != "" {
			sb.WriteString(p.Text)
			continue
		}
		if p.InlineData != nil && p.InlineData.Data != "" {
			if decoded, err := base64.StdEncoding.DecodeString(p.InlineData.Data); err == nil {
				sb.Write(decoded)
			}
		}
	}
	return sb.String()
}

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// extractReplies pulls a JSON reply array out of the model output. It
// tolerates direct JSON, fenced code blocks, and JSON embedded in prose,
// in that order. Anything else is an error; there is no fabricated fallback.
func extractReplies(text string) ([]entities.ReplyCandidate, error) {
	trimmed := strings.TrimSpace(text)

	if replies, ok := tryDecode(trimmed); ok {
		return replies, nil
	}

	if m := fencedBlockRe.FindStringSubmatch(trimmed); m != nil {
		if replies, ok := tryDecode(strings.TrimSpace(m[1])); ok {
			return replies, nil
		}
	}

	// Greedy span from first '[' to last ']', the original heuristic.
	if i, j := strings.Index(trimmed, "["), strings.LastIndex(trimmed, "]"); i >= 0 && j > i {
		if replies, ok := tryDecode(trimmed[i : j+1]); ok {
			return replies, nil
		}
	}

	// Depth-matched span, for prose with stray brackets after the array.
	if span := bracketSpan(trimmed); span != "" {
		if replies, ok := tryDecode(span); ok {
			return replies, nil
		}
	}

	return nil, ErrNoReplies
}

func tryDecode(s string) ([]entities.ReplyCandidate, bool) {
	if !strings.HasPrefix(s, "[") {
		return nil, false
	}
	var replies []entities.ReplyCandidate
	if err := json.Unmarshal([]byte(s), &replies); err != nil {
		return nil, false
	}
	return replies, true
}

// bracketSpan returns the substring from the first '[' to its matching ']',
// tracking nesting and quoted strings.
func bracketSpan(s string) string {
	start := strings.Index(s, "[")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func buildReplyPrompt(text, subject, language string) string {
	var sb strings.Builder
	sb.WriteString("You are an expert conversational assistant. Generate natural, human-like replies that match the tone, emotion, and intent of the sender. Avoid robotic phrases, formal templates, generic responses, and corporate language. Always mirror the emotional tone of the sender.\n\n")
	sb.WriteString("Analyze this message deeply. Understand the intent, tone, context, and emotional expression:\n\n")
	if subject != "" {
		fmt.Fprintf(&sb, "Subject: %q\n", subject)
	}
	fmt.Fprintf(&sb, "Message: %q\n\n", text)
	sb.WriteString("Then create 3 completely different natural replies that sound human and genuine.\n\n")
	sb.WriteString("STRICT RULES:\n")
	sb.WriteString("- NEVER use: \"Thank you for your message\", \"I will respond shortly\", \"Got your email\", \"I appreciate\", \"I'll get back to you\"\n")
	sb.WriteString("- NEVER be overly formal unless the message is clearly professional\n")
	sb.WriteString("- NEVER repeat the same reply structure or pattern\n")
	sb.WriteString("- DO match the sender's tone (casual to casual, professional to professional)\n")
	sb.WriteString("- DO keep replies concise and to the point\n")
	sb.WriteString("- DO make each reply feel genuine and different\n\n")
	if language != "" && language != "auto" {
		fmt.Fprintf(&sb, "Reply in %s.\n\n", language)
	} else {
		sb.WriteString("Reply in the same language as the message.\n\n")
	}
	sb.WriteString("Return ONLY a JSON array of 3 objects, each with: tone (string), text (string), confidence (number between 0 and 1).")
	return sb.String()
}
