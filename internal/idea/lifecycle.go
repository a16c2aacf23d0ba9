package idea

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/ideaarchitect/internal/analysis"
	"github.com/hitoshi/ideaarchitect/internal/metrics"
	"github.com/hitoshi/ideaarchitect/internal/model"
	"github.com/hitoshi/ideaarchitect/internal/repository"
	"github.com/hitoshi/ideaarchitect/internal/worker/enrich"
)

// revertTimeout はAI分析失敗後にDRAFTへ戻す処理の上限時間。
const revertTimeout = 5 * time.Second

// JobSubmitter はバックグラウンド分析ジョブの投入先。
type JobSubmitter interface {
	Submit(job enrich.Job) bool
}

// AnalysisRecorder はAI分析の結果をメトリクスに記録する。
type AnalysisRecorder interface {
	RecordAnalysis(path, outcome string, duration time.Duration)
}

// Lifecycle はAI分析に伴うアイデアのステータス遷移を管理する。
//
//	作成時（バックグラウンド）: DRAFT → ANALYZING（分析結果あり）。失敗時はDRAFTのまま
//	明示的な分析:             DRAFT/… → ANALYZING → STRUCTURED。失敗時はDRAFTに戻す
//	拡張提案:                 ステータスを変更しない
//
// 作成時の分析が成功してもANALYZINGに留まる。明示的な分析との競合は後勝ちとする。
type Lifecycle struct {
	ideas     repository.IdeaRepository
	provider  analysis.Provider
	submitter JobSubmitter
	metrics   AnalysisRecorder
	logger    *slog.Logger
	timeout   time.Duration
}

// NewLifecycle はLifecycleを生成する。metricsはnilでもよい。
// timeoutは明示的な分析と拡張提案でProviderを呼び出す際の上限時間。
func NewLifecycle(
	ideas repository.IdeaRepository,
	provider analysis.Provider,
	submitter JobSubmitter,
	metrics AnalysisRecorder,
	logger *slog.Logger,
	timeout time.Duration,
) *Lifecycle {
	if timeout <= 0 {
		timeout = enrich.DefaultTimeout
	}
	return &Lifecycle{
		ideas:     ideas,
		provider:  provider,
		submitter: submitter,
		metrics:   metrics,
		logger:    logger,
		timeout:   timeout,
	}
}

// EnrichInBackground は作成直後のアイデアの分析ジョブをワーカープールに投入する。
// 完了を待たない。キューが満杯の場合はfalseを返し、アイデアはDRAFTのまま残る。
func (l *Lifecycle) EnrichInBackground(idea *model.Idea) bool {
	id, userID := idea.ID, idea.UserID
	title, description := idea.Title, idea.Description

	return l.submitter.Submit(enrich.Job{
		IdeaID: id,
		Run: func(ctx context.Context) error {
			return l.enrich(ctx, id, userID, title, description)
		},
	})
}

// enrich はバックグラウンド分析の本体。エラーはプールのエラーチャネルに渡る。
func (l *Lifecycle) enrich(ctx context.Context, id, userID, title, description string) error {
	start := time.Now()

	result, err := l.provider.Analyze(ctx, title, description)
	if err != nil {
		l.record(metrics.PathBackground, metrics.OutcomeFailure, start)
		return fmt.Errorf("failed to analyze idea: %w", err)
	}

	updated, err := l.ideas.SetAnalysis(ctx, id, userID, result, model.IdeaStatusAnalyzing)
	if err != nil {
		l.record(metrics.PathBackground, metrics.OutcomeFailure, start)
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	if updated == nil {
		l.record(metrics.PathBackground, metrics.OutcomeGone, start)
		l.logger.Info("分析完了前にアイデアが削除されたため結果を破棄しました",
			slog.String("idea_id", id),
		)
		return nil
	}

	l.record(metrics.PathBackground, metrics.OutcomeSuccess, start)
	return nil
}

// Analyze はアイデアを明示的に分析し、STRUCTUREDにして返す。
// 他ユーザーのアイデアと存在しないアイデアはいずれもNotFoundとする。
// 分析に失敗した場合はDRAFTに戻し、固定メッセージのエラーを返す。
func (l *Lifecycle) Analyze(ctx context.Context, id, userID string) (*model.Idea, error) {
	id, err := canonicalID(id)
	if err != nil {
		return nil, err
	}

	idea, err := l.ideas.FindByIDAndOwner(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find idea: %w", err)
	}
	if idea == nil {
		return nil, model.NewIdeaNotFoundError()
	}

	ok, err := l.ideas.SetStatus(ctx, id, userID, model.IdeaStatusAnalyzing)
	if err != nil {
		return nil, fmt.Errorf("failed to mark idea as analyzing: %w", err)
	}
	if !ok {
		return nil, model.NewIdeaNotFoundError()
	}

	start := time.Now()
	providerCtx, cancel := context.WithTimeout(ctx, l.timeout)
	result, err := l.provider.Analyze(providerCtx, idea.Title, idea.Description)
	cancel()
	if err != nil {
		l.record(metrics.PathExplicit, metrics.OutcomeFailure, start)
		l.logger.Error("AI分析に失敗しました",
			slog.String("idea_id", id),
			slog.String("error", err.Error()),
		)
		l.revertToDraft(ctx, id, userID)
		return nil, model.NewAIAnalysisFailedError()
	}

	updated, err := l.ideas.SetAnalysis(ctx, id, userID, result, model.IdeaStatusStructured)
	if err != nil {
		l.record(metrics.PathExplicit, metrics.OutcomeFailure, start)
		l.revertToDraft(ctx, id, userID)
		return nil, fmt.Errorf("failed to save analysis: %w", err)
	}
	if updated == nil {
		l.record(metrics.PathExplicit, metrics.OutcomeGone, start)
		return nil, model.NewIdeaNotFoundError()
	}

	l.record(metrics.PathExplicit, metrics.OutcomeSuccess, start)
	return updated, nil
}

// Expand はアイデアの拡張提案を生成する。アイデアは変更しない。
func (l *Lifecycle) Expand(ctx context.Context, id, userID string) ([]string, error) {
	id, err := canonicalID(id)
	if err != nil {
		return nil, err
	}

	idea, err := l.ideas.FindByIDAndOwner(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find idea: %w", err)
	}
	if idea == nil {
		return nil, model.NewIdeaNotFoundError()
	}

	start := time.Now()
	providerCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	suggestions, err := l.provider.Expand(providerCtx, idea.Title, idea.Description)
	if err != nil {
		l.record(metrics.PathExpand, metrics.OutcomeFailure, start)
		l.logger.Error("拡張提案の生成に失敗しました",
			slog.String("idea_id", id),
			slog.String("error", err.Error()),
		)
		return nil, model.NewExpansionFailedError()
	}

	l.record(metrics.PathExpand, metrics.OutcomeSuccess, start)
	if suggestions == nil {
		suggestions = []string{}
	}
	return suggestions, nil
}

// revertToDraft はベストエフォートでDRAFTに戻す。
// リクエストのキャンセルに影響されないよう切り離したコンテキストで実行し、失敗はログのみ。
func (l *Lifecycle) revertToDraft(ctx context.Context, id, userID string) {
	revertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), revertTimeout)
	defer cancel()

	if _, err := l.ideas.SetStatus(revertCtx, id, userID, model.IdeaStatusDraft); err != nil {
		l.logger.Error("アイデアをDRAFTに戻せませんでした",
			slog.String("idea_id", id),
			slog.String("error", err.Error()),
		)
	}
}

func (l *Lifecycle) record(path, outcome string, start time.Time) {
	if l.metrics != nil {
		l.metrics.RecordAnalysis(path, outcome, time.Since(start))
	}
}
