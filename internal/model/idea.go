package model

import "time"

// Idea はユーザーが投稿したアイデアを表す。
// StatusとAIAnalysisはアイデアライフサイクルのみが更新する。
type Idea struct {
	ID          string
	Title       string
	Description string
	Category    *string
	Tags        []string
	Status      IdeaStatus
	AIAnalysis  *AnalysisResult
	UserID      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IdeaStatus はアイデアの状態を表す。
type IdeaStatus string

const (
	// IdeaStatusDraft は作成直後、またはAI分析失敗後の状態。
	IdeaStatusDraft IdeaStatus = "DRAFT"
	// IdeaStatusAnalyzing はAI分析中の状態。
	// 作成時のバックグラウンド分析が成功した場合もこの状態に留まる。
	IdeaStatusAnalyzing IdeaStatus = "ANALYZING"
	// IdeaStatusStructured は明示的なAI分析が成功した状態。
	IdeaStatusStructured IdeaStatus = "STRUCTURED"
	// IdeaStatusPlanned はユーザー操作で計画済みにされた状態。
	IdeaStatusPlanned IdeaStatus = "PLANNED"
	// IdeaStatusArchived はユーザー操作でアーカイブされた状態。
	IdeaStatusArchived IdeaStatus = "ARCHIVED"
)

// Valid はステータスが定義済みの値かどうかを返す。
func (s IdeaStatus) Valid() bool {
	switch s {
	case IdeaStatusDraft, IdeaStatusAnalyzing, IdeaStatusStructured, IdeaStatusPlanned, IdeaStatusArchived:
		return true
	default:
		return false
	}
}

// UserSettable はユーザーが汎用更新で直接設定できるステータスかどうかを返す。
// DRAFT/ANALYZING/STRUCTUREDはライフサイクルのみが遷移させる。
func (s IdeaStatus) UserSettable() bool {
	return s == IdeaStatusPlanned || s == IdeaStatusArchived
}

// AnalysisResult はAI分析結果を表す。
// アイデアに付随する置き換え可能なブロブとして扱い、部分マージは行わない。
type AnalysisResult struct {
	Problem             string   `json:"problem"`
	Solution            string   `json:"solution"`
	TargetAudience      string   `json:"targetAudience"`
	RevenueModel        string   `json:"revenueModel"`
	MarketSize          string   `json:"marketSize,omitempty"`
	Competitors         []string `json:"competitors,omitempty"`
	KeyFeatures         []string `json:"keyFeatures,omitempty"`
	Risks               []string `json:"risks,omitempty"`
	Opportunities       []string `json:"opportunities,omitempty"`
	SuggestedCategories []string `json:"suggestedCategories,omitempty"`
	Confidence          float64  `json:"confidence"`
}

// NewIdea はアイデア作成時の入力を表す。
type NewIdea struct {
	Title       string
	Description string
	Category    *string
	Tags        []string
}

// IdeaUpdate は汎用フィールド更新の入力を表す。
// nilフィールドは変更しない。AIAnalysisはここからは更新できない。
type IdeaUpdate struct {
	Title       *string
	Description *string
	Category    *string
	Tags        []string
	TagsSet     bool
	Status      *IdeaStatus
}

// IdeaSortField はアイデア一覧の並び替えキーを表す。
type IdeaSortField string

const (
	IdeaSortCreatedAt IdeaSortField = "createdAt"
	IdeaSortTitle     IdeaSortField = "title"
	IdeaSortCategory  IdeaSortField = "category"
	IdeaSortStatus    IdeaSortField = "status"
)

// IdeaFilter はアイデア一覧・件数取得の絞り込み条件を表す。
// UserIDは必須で、常に所有者スコープで検索する。
type IdeaFilter struct {
	UserID   string
	Search   string
	Category string
	Status   IdeaStatus
}

// IdeaOrder はアイデア一覧の並び順を表す。
type IdeaOrder struct {
	Field      IdeaSortField
	Descending bool
}

// IdeaPage はページングされたアイデア一覧を表す。
type IdeaPage struct {
	Ideas      []*Idea
	Page       int
	Limit      int
	Total      int
	TotalPages int
}
