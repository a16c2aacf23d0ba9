package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/ideaarchitect/internal/model"
	"github.com/hitoshi/ideaarchitect/internal/security"
)

const (
	analyzeSystemPrompt = "You are an expert startup advisor and business analyst. Provide detailed, actionable insights for startup ideas."
	expandSystemPrompt  = "You are a creative startup ideation expert. Provide innovative and practical expansion ideas."

	analyzeUserPrompt = `Analyze the following startup idea and provide a structured analysis:

Title: %q
Description: %q

Respond with a single JSON object with the following structure and nothing else:
{
  "problem": "What problem does this solve?",
  "solution": "What solution does it provide?",
  "targetAudience": "Who is the target audience?",
  "revenueModel": "What could be the revenue model?",
  "marketSize": "Estimated market size or potential",
  "competitors": ["List of potential competitors"],
  "keyFeatures": ["List of 3-5 key features"],
  "risks": ["List of potential risks"],
  "opportunities": ["List of opportunities"],
  "suggestedCategories": ["List of relevant categories"],
  "confidence": 0.85
}

Be specific, actionable, and realistic. The confidence score should be between 0 and 1.`

	expandUserPrompt = `Given this startup idea:
Title: %q
Description: %q

Suggest 5-7 related concepts, features, or expansion ideas that could complement this startup.
Respond with a JSON array of strings and nothing else.

Example: ["Feature 1", "Related concept 2", "Expansion idea 3"]`

	// 応答本文の読み取り上限
	maxResponseBytes = 1 << 20
)

// OpenAIConfig はOpenAI互換APIへの接続設定。
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // 例: https://api.openai.com/v1
	Model   string
	Timeout time.Duration
}

// OpenAIProvider はOpenAI Chat Completions APIを使うProviderの実装。
// 同じワイヤ形式を話す互換サーバー（ローカルLLMなど）にも接続できる。
type OpenAIProvider struct {
	config     OpenAIConfig
	httpClient *http.Client
	sanitizer  security.TextSanitizer
}

// NewOpenAIProvider はOpenAIProviderを生成する。
// httpClientがnilの場合はconfig.Timeoutを持つクライアントを生成する。
func NewOpenAIProvider(config OpenAIConfig, httpClient *http.Client, sanitizer security.TextSanitizer) *OpenAIProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &OpenAIProvider{
		config:     config,
		httpClient: httpClient,
		sanitizer:  sanitizer,
	}
}

// Analyze はアイデアの構造化分析を生成する。
func (p *OpenAIProvider) Analyze(ctx context.Context, title, description string) (*model.AnalysisResult, error) {
	content, err := p.complete(ctx, chatRequest{
		Model: p.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: analyzeSystemPrompt},
			{Role: "user", Content: fmt.Sprintf(analyzeUserPrompt, title, description)},
		},
		Temperature: 0.7,
		MaxTokens:   1500,
	})
	if err != nil {
		return nil, err
	}

	var raw rawAnalysis
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &raw); err != nil {
		return nil, &ProviderError{Message: fmt.Sprintf("failed to parse analysis JSON: %v", err)}
	}

	return normalizeAnalysis(raw, p.sanitizer), nil
}

// Expand はアイデアに関連する拡張提案のリストを生成する。
func (p *OpenAIProvider) Expand(ctx context.Context, title, description string) ([]string, error) {
	content, err := p.complete(ctx, chatRequest{
		Model: p.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: expandSystemPrompt},
			{Role: "user", Content: fmt.Sprintf(expandUserPrompt, title, description)},
		},
		Temperature: 0.8,
		MaxTokens:   500,
	})
	if err != nil {
		return nil, err
	}

	var suggestions []string
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &suggestions); err != nil {
		return nil, &ProviderError{Message: fmt.Sprintf("failed to parse suggestions JSON: %v", err)}
	}

	return p.sanitizer.SanitizeAll(suggestions), nil
}

// complete はChat Completions APIを1回呼び出し、最初の選択肢の本文を返す。
// リトライは行わない。
func (p *OpenAIProvider) complete(ctx context.Context, req chatRequest) (string, error) {
	if p.config.APIKey == "" {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", readProviderError(resp)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}

	if len(chatResp.Choices) == 0 || strings.TrimSpace(chatResp.Choices[0].Message.Content) == "" {
		return "", &ProviderError{StatusCode: resp.StatusCode, Message: "no content in response"}
	}

	return chatResp.Choices[0].Message.Content, nil
}

// readProviderError はエラー応答 {"error":{"type":"...","message":"..."}} を解析する。
func readProviderError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var wire struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &wire) == nil && wire.Error.Message != "" {
		return &ProviderError{
			StatusCode: resp.StatusCode,
			Type:       wire.Error.Type,
			Message:    wire.Error.Message,
		}
	}

	return &ProviderError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
	}
}

// stripCodeFence はMarkdownのコードブロックで囲まれた応答から中身を取り出す。
func stripCodeFence(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// 言語指定（```json）を読み飛ばす
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// --- ワイヤ形式 ---

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

var _ Provider = (*OpenAIProvider)(nil)
