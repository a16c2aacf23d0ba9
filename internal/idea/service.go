// Package idea はアイデアの管理とAI分析ライフサイクルを提供する。
//
// すべての操作は所有者スコープで行い、他ユーザーのアイデアは存在しないものとして扱う。
package idea

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/ideaarchitect/internal/model"
	"github.com/hitoshi/ideaarchitect/internal/repository"
	"github.com/hitoshi/ideaarchitect/internal/security"
)

// ページングのデフォルト値
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// ListQuery はアイデア一覧の検索条件。ゼロ値はデフォルトとして扱う。
type ListQuery struct {
	Page      int
	Limit     int
	Search    string
	Category  string
	Status    string
	SortBy    string
	SortOrder string
}

// Service はアイデアのCRUDとAI分析の入口を提供する。
type Service struct {
	ideas     repository.IdeaRepository
	lifecycle *Lifecycle
	sanitizer security.TextSanitizer
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(ideas repository.IdeaRepository, lifecycle *Lifecycle, sanitizer security.TextSanitizer) *Service {
	return &Service{
		ideas:     ideas,
		lifecycle: lifecycle,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// Create はアイデアをDRAFTで作成し、バックグラウンド分析を投入して即座に返す。
func (s *Service) Create(ctx context.Context, userID string, input model.NewIdea) (*model.Idea, error) {
	title := s.sanitizer.Sanitize(input.Title)
	description := s.sanitizer.Sanitize(input.Description)
	if details := requireText(title, description); details != nil {
		return nil, model.NewValidationError(details)
	}

	now := s.now()
	idea := &model.Idea{
		ID:          uuid.New().String(),
		Title:       title,
		Description: description,
		Category:    s.sanitizeOptional(input.Category),
		Tags:        s.sanitizer.SanitizeAll(input.Tags),
		Status:      model.IdeaStatusDraft,
		UserID:      userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.ideas.Create(ctx, idea); err != nil {
		return nil, fmt.Errorf("failed to create idea: %w", err)
	}

	slog.Info("idea created",
		slog.String("idea_id", idea.ID),
		slog.String("user_id", userID),
	)

	// 投入できなくてもアイデアの作成は成功とする（明示的な分析で再実行できる）
	s.lifecycle.EnrichInBackground(idea)

	return idea, nil
}

// List は呼び出しユーザーのアイデアをページングして返す。
func (s *Service) List(ctx context.Context, userID string, query ListQuery) (*model.IdeaPage, error) {
	page, limit := normalizePaging(query.Page, query.Limit)

	filter := model.IdeaFilter{
		UserID:   userID,
		Search:   strings.TrimSpace(query.Search),
		Category: strings.TrimSpace(query.Category),
	}
	if query.Status != "" {
		status := model.IdeaStatus(query.Status)
		if !status.Valid() {
			return nil, model.NewValidationError(map[string]string{
				"status": "must be one of DRAFT, ANALYZING, STRUCTURED, PLANNED, ARCHIVED",
			})
		}
		filter.Status = status
	}

	order := parseOrder(query.SortBy, query.SortOrder)

	total, err := s.ideas.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count ideas: %w", err)
	}

	ideas, err := s.ideas.List(ctx, filter, order, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ideas: %w", err)
	}
	if ideas == nil {
		ideas = []*model.Idea{}
	}

	return &model.IdeaPage{
		Ideas:      ideas,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

// Get は呼び出しユーザーのアイデアを返す。
func (s *Service) Get(ctx context.Context, id, userID string) (*model.Idea, error) {
	id, err := canonicalID(id)
	if err != nil {
		return nil, err
	}

	idea, err := s.ideas.FindByIDAndOwner(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find idea: %w", err)
	}
	if idea == nil {
		return nil, model.NewIdeaNotFoundError()
	}
	return idea, nil
}

// Update は汎用フィールドを更新する。
// ステータスはPLANNEDとARCHIVEDのみ指定でき、それ以外はバリデーションエラーとする。
func (s *Service) Update(ctx context.Context, id, userID string, update model.IdeaUpdate) (*model.Idea, error) {
	id, err := canonicalID(id)
	if err != nil {
		return nil, err
	}

	details := map[string]string{}

	if update.Title != nil {
		title := s.sanitizer.Sanitize(*update.Title)
		if title == "" {
			details["title"] = "must not be empty"
		}
		update.Title = &title
	}
	if update.Description != nil {
		description := s.sanitizer.Sanitize(*update.Description)
		if description == "" {
			details["description"] = "must not be empty"
		}
		update.Description = &description
	}
	if update.Category != nil {
		update.Category = s.sanitizeOptional(update.Category)
		if update.Category == nil {
			// 空文字の指定はカテゴリの解除
			empty := ""
			update.Category = &empty
		}
	}
	if update.TagsSet {
		update.Tags = s.sanitizer.SanitizeAll(update.Tags)
	}
	if update.Status != nil && !update.Status.UserSettable() {
		details["status"] = "only PLANNED or ARCHIVED can be set directly"
	}

	if len(details) > 0 {
		return nil, model.NewValidationError(details)
	}

	idea, err := s.ideas.Update(ctx, id, userID, update)
	if err != nil {
		return nil, fmt.Errorf("failed to update idea: %w", err)
	}
	if idea == nil {
		return nil, model.NewIdeaNotFoundError()
	}
	return idea, nil
}

// Delete は呼び出しユーザーのアイデアを削除する。
func (s *Service) Delete(ctx context.Context, id, userID string) error {
	id, err := canonicalID(id)
	if err != nil {
		return err
	}

	deleted, err := s.ideas.Delete(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete idea: %w", err)
	}
	if !deleted {
		return model.NewIdeaNotFoundError()
	}

	slog.Info("idea deleted",
		slog.String("idea_id", id),
		slog.String("user_id", userID),
	)
	return nil
}

// Analyze はアイデアを明示的に分析する。
func (s *Service) Analyze(ctx context.Context, id, userID string) (*model.Idea, error) {
	return s.lifecycle.Analyze(ctx, id, userID)
}

// Expand はアイデアの拡張提案を生成する。
func (s *Service) Expand(ctx context.Context, id, userID string) ([]string, error) {
	return s.lifecycle.Expand(ctx, id, userID)
}

// canonicalID はアイデアIDをUUIDの正規形にする。
// UUIDとして解釈できないIDは存在しないアイデアとして扱い、ストアには渡さない。
func canonicalID(id string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", model.NewIdeaNotFoundError()
	}
	return parsed.String(), nil
}

func (s *Service) sanitizeOptional(v *string) *string {
	if v == nil {
		return nil
	}
	sanitized := s.sanitizer.Sanitize(*v)
	if sanitized == "" {
		return nil
	}
	return &sanitized
}

// requireText はHTML除去後に空になった必須項目を返す。
func requireText(title, description string) map[string]string {
	details := map[string]string{}
	if title == "" {
		details["title"] = "must not be empty"
	}
	if description == "" {
		details["description"] = "must not be empty"
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

func normalizePaging(page, limit int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

// parseOrder は並び替え指定を解釈する。未知のキーは作成日時、未知の方向は降順とする。
func parseOrder(sortBy, sortOrder string) model.IdeaOrder {
	field := model.IdeaSortField(sortBy)
	switch field {
	case model.IdeaSortCreatedAt, model.IdeaSortTitle, model.IdeaSortCategory, model.IdeaSortStatus:
	default:
		field = model.IdeaSortCreatedAt
	}
	return model.IdeaOrder{
		Field:      field,
		Descending: !strings.EqualFold(sortOrder, "asc"),
	}
}
