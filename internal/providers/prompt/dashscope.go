// Package prompt generates marketplace listing copy with the DashScope
// chat API (OpenAI-compatible mode). Copy generation is never allowed to
// sink a listing: every failure path degrades to serviceable fallback text.
package prompt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"server/internal/domain"
)

// titleCaser normalizes niche names for fallback titles; detected labels
// arrive lowercased.
var titleCaser = cases.Title(language.AmericanEnglish)

const (
	defaultBaseURL = "https://dashscope-intl.aliyuncs.com/compatible-mode/v1"
	defaultModel   = "qwen-flash"

	keyPlaceholder = "your_dashscope_api_key_here"
)

const systemPrompt = `You are an expert marketplace SEO specialist. Generate compelling, SEO-optimized product listings that drive conversions.
Your listings should be:
- Engaging and benefit-focused
- Keyword-rich for search optimization
- Professional yet persuasive
- Formatted for marketplace platforms (eBay, Amazon, Mercado Livre)`

// Options configures a Client.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client calls the chat-completion endpoint for listing copy.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	logger  zerolog.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// New builds a Client from opts.
func New(opts Options) *Client {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := opts.Model
	if model == "" {
		model = defaultModel
	}
	return &Client{
		apiKey:  strings.TrimSpace(opts.APIKey),
		baseURL: baseURL,
		model:   model,
		client:  client,
		logger:  opts.Logger,
	}
}

// Configured reports whether a usable API key is present.
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.apiKey != keyPlaceholder
}

// Generate produces listing copy for the analyzed product. It always
// returns usable copy; remote failures fall back to templated text.
func (c *Client) Generate(ctx context.Context, analysis *domain.ImageAnalysis, price domain.PriceEstimate) domain.ListingCopy {
	if !c.Configured() {
		c.logger.Warn().Msg("prompt: api key not configured, using fallback copy")
		return fallbackCopy(analysis, price)
	}

	text, err := c.complete(ctx, userPrompt(analysis, price))
	if err != nil {
		c.logger.Warn().Err(err).Msg("prompt: copy generation failed, using fallback")
		return fallbackCopy(analysis, price)
	}

	copyOut, err := extractCopy(text)
	if err != nil {
		c.logger.Warn().Err(err).Msg("prompt: model returned non-json copy, salvaging text")
		return salvageCopy(text, analysis, price)
	}
	return copyOut
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.7,
		MaxTokens:   1000,
	})
	if err != nil {
		return "", fmt.Errorf("prompt: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("prompt: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("prompt: chat completion: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("prompt: chat completion status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("prompt: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("prompt: empty choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func userPrompt(analysis *domain.ImageAnalysis, price domain.PriceEstimate) string {
	labels := analysis.Labels
	if len(labels) > 8 {
		labels = labels[:8]
	}
	return fmt.Sprintf(`Generate a complete product listing for a %s product with these details:

Product Category: %s
Detected Features: %s
Estimated Price: $%.2f USD

Please provide:
1. A catchy, SEO-optimized product title (60-80 characters)
2. A compelling product description (150-200 words)
3. 5 bullet points highlighting key features and benefits
4. 8-10 relevant search tags/keywords

Format your response as JSON with keys: title, description, bullet_points, tags`,
		analysis.Niche.Name, analysis.Niche.Name, strings.Join(labels, ", "), price.Estimated)
}

// extractCopy pulls the JSON object out of the model reply, tolerating
// fenced code blocks around it.
func extractCopy(text string) (domain.ListingCopy, error) {
	payload := strings.TrimSpace(text)
	if i := strings.Index(payload, "```json"); i >= 0 {
		payload = payload[i+len("```json"):]
		if j := strings.Index(payload, "```"); j >= 0 {
			payload = payload[:j]
		}
	} else if i := strings.Index(payload, "```"); i >= 0 {
		payload = payload[i+len("```"):]
		if j := strings.Index(payload, "```"); j >= 0 {
			payload = payload[:j]
		}
	}

	var out domain.ListingCopy
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &out); err != nil {
		return domain.ListingCopy{}, fmt.Errorf("prompt: parse copy json: %w", err)
	}
	if out.Title == "" {
		return domain.ListingCopy{}, fmt.Errorf("prompt: copy json missing title")
	}
	return out, nil
}

// salvageCopy keeps the raw model text as the description when it was not
// valid JSON.
func salvageCopy(text string, analysis *domain.ImageAnalysis, price domain.PriceEstimate) domain.ListingCopy {
	description := strings.TrimSpace(text)
	if len(description) > 500 {
		description = description[:500]
	}
	labels := analysis.Labels
	if len(labels) > 8 {
		labels = labels[:8]
	}
	return domain.ListingCopy{
		Title:       fmt.Sprintf("Premium %s Product - High Quality", titleCaser.String(analysis.Niche.Name)),
		Description: description,
		BulletPoints: []string{
			"Category: " + analysis.Niche.Name,
			"Features: " + strings.Join(labels, ", "),
			fmt.Sprintf("Estimated value: $%.2f", price.Estimated),
			"Fast shipping available",
			"Quality guaranteed",
		},
		Tags: append([]string{}, labels...),
	}
}

// fallbackCopy is the fully static variant used when the service is down or
// unconfigured.
func fallbackCopy(analysis *domain.ImageAnalysis, _ domain.PriceEstimate) domain.ListingCopy {
	labels := analysis.Labels
	if len(labels) > 8 {
		labels = labels[:8]
	}
	short := labels
	if len(short) > 5 {
		short = short[:5]
	}
	bullets := make([]string, 0, len(short))
	for _, l := range short {
		bullets = append(bullets, "Feature: "+l)
	}
	return domain.ListingCopy{
		Title:        titleCaser.String(analysis.Niche.Name) + " Product",
		Description:  fmt.Sprintf("High-quality %s product. %s.", analysis.Niche.Name, strings.Join(short, ", ")),
		BulletPoints: bullets,
		Tags:         append([]string{}, labels...),
	}
}
