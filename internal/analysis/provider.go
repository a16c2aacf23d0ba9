// Package analysis はアイデアのAI分析を行うAnalysis Providerを提供する。
//
// Providerはタイトルと説明から構造化された分析結果と拡張提案を生成する。
// 失敗はすべてエラーとして返し、フォールバック値で成功を装わない。
package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/hitoshi/ideaarchitect/internal/model"
	"github.com/hitoshi/ideaarchitect/internal/security"
)

// Provider はAI分析を行う外部サービスのインターフェース。
type Provider interface {
	// Analyze はアイデアの構造化分析を生成する。
	Analyze(ctx context.Context, title, description string) (*model.AnalysisResult, error)
	// Expand はアイデアに関連する拡張提案のリストを生成する。
	Expand(ctx context.Context, title, description string) ([]string, error)
}

// ErrNotConfigured はAPIキーが設定されていない場合のエラー。
var ErrNotConfigured = errors.New("analysis provider is not configured")

// ProviderError はLLM APIがエラーを返した場合のエラー。
// 呼び出し元は種別で分岐せず、ログに記録するのみとする。
type ProviderError struct {
	// StatusCode はHTTPステータスコード。応答内容の解析失敗時は0。
	StatusCode int
	// Type はプロバイダ固有のエラー種別（例: "rate_limit_error"）。
	Type string
	// Message はエラーの説明。
	Message string
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("analysis: %s", e.Message)
	}
	if e.Type != "" {
		return fmt.Sprintf("analysis: HTTP %d: %s: %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("analysis: HTTP %d: %s", e.StatusCode, e.Message)
}

// 分析結果の必須項目が欠けている場合の既定値
const (
	defaultProblem        = "Problem analysis not available"
	defaultSolution       = "Solution analysis not available"
	defaultTargetAudience = "Target audience not specified"
	defaultRevenueModel   = "Revenue model not specified"
	defaultConfidence     = 0.5
)

// normalizeAnalysis はLLMの応答を保存可能な分析結果に整える。
//   - 文字列はHTMLを除去する
//   - 必須項目が空なら既定値を入れる
//   - confidenceは[0,1]に収める（欠落時は0.5）
//   - リストはnilにしない
func normalizeAnalysis(raw rawAnalysis, sanitizer security.TextSanitizer) *model.AnalysisResult {
	result := &model.AnalysisResult{
		Problem:             orDefault(sanitizer.Sanitize(raw.Problem), defaultProblem),
		Solution:            orDefault(sanitizer.Sanitize(raw.Solution), defaultSolution),
		TargetAudience:      orDefault(sanitizer.Sanitize(raw.TargetAudience), defaultTargetAudience),
		RevenueModel:        orDefault(sanitizer.Sanitize(raw.RevenueModel), defaultRevenueModel),
		MarketSize:          sanitizer.Sanitize(raw.MarketSize),
		Competitors:         sanitizer.SanitizeAll(raw.Competitors),
		KeyFeatures:         sanitizer.SanitizeAll(raw.KeyFeatures),
		Risks:               sanitizer.SanitizeAll(raw.Risks),
		Opportunities:       sanitizer.SanitizeAll(raw.Opportunities),
		SuggestedCategories: sanitizer.SanitizeAll(raw.SuggestedCategories),
		Confidence:          defaultConfidence,
	}

	if raw.Confidence != nil {
		result.Confidence = clamp(*raw.Confidence, 0, 1)
	}

	return result
}

// rawAnalysis はLLMが返すJSONの形。confidenceの欠落と0を区別する。
type rawAnalysis struct {
	Problem             string   `json:"problem"`
	Solution            string   `json:"solution"`
	TargetAudience      string   `json:"targetAudience"`
	RevenueModel        string   `json:"revenueModel"`
	MarketSize          string   `json:"marketSize"`
	Competitors         []string `json:"competitors"`
	KeyFeatures         []string `json:"keyFeatures"`
	Risks               []string `json:"risks"`
	Opportunities       []string `json:"opportunities"`
	SuggestedCategories []string `json:"suggestedCategories"`
	Confidence          *float64 `json:"confidence"`
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
