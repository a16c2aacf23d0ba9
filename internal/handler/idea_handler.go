package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/ideaarchitect/internal/idea"
	"github.com/hitoshi/ideaarchitect/internal/middleware"
	"github.com/hitoshi/ideaarchitect/internal/model"
)

// IdeaServiceInterface はアイデアハンドラーが必要とするサービスインターフェース。
// すべての操作は所有者スコープで行われ、他ユーザーのアイデアはNotFoundとなる。
type IdeaServiceInterface interface {
	Create(ctx context.Context, userID string, input model.NewIdea) (*ideaResponse, error)
	List(ctx context.Context, userID string, query idea.ListQuery) (*ideaListResponse, error)
	Get(ctx context.Context, id, userID string) (*ideaResponse, error)
	Update(ctx context.Context, id, userID string, update model.IdeaUpdate) (*ideaResponse, error)
	Delete(ctx context.Context, id, userID string) error
	// Analyze は明示的なAI分析を行う。完了まで待つ。
	Analyze(ctx context.Context, id, userID string) (*ideaResponse, error)
	// Expand は拡張提案を生成する。アイデアは変更しない。
	Expand(ctx context.Context, id, userID string) ([]string, error)
}

// IdeaHandler はアイデア管理のHTTPハンドラー。
type IdeaHandler struct {
	service IdeaServiceInterface
}

// NewIdeaHandler はIdeaHandlerを生成する。
func NewIdeaHandler(service IdeaServiceInterface) *IdeaHandler {
	return &IdeaHandler{service: service}
}

type createIdeaRequest struct {
	Title       string   `json:"title" validate:"required,min=3,max=100"`
	Description string   `json:"description" validate:"required,min=10,max=2000"`
	Category    *string  `json:"category" validate:"omitempty,max=50"`
	Tags        []string `json:"tags" validate:"omitempty,max=20,dive,max=50"`
}

// updateIdeaRequest は部分更新のリクエスト。省略したフィールドは変更しない。
type updateIdeaRequest struct {
	Title       *string   `json:"title" validate:"omitempty,min=3,max=100"`
	Description *string   `json:"description" validate:"omitempty,min=10,max=2000"`
	Category    *string   `json:"category" validate:"omitempty,max=50"`
	Tags        *[]string `json:"tags" validate:"omitempty,max=20,dive,max=50"`
	Status      *string   `json:"status" validate:"omitempty,oneof=DRAFT ANALYZING STRUCTURED PLANNED ARCHIVED"`
}

// expandResponse は拡張提案のAPIレスポンス。
type expandResponse struct {
	Suggestions []string `json:"suggestions"`
}

// Create はアイデアを作成する。AI分析はバックグラウンドで行われる。
// POST /api/ideas
func (h *IdeaHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createIdeaRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	resp, err := h.service.Create(r.Context(), userID, model.NewIdea{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Tags:        req.Tags,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, resp, "Idea created successfully")
}

// List はアイデア一覧を返す。
// GET /api/ideas?page=&limit=&search=&category=&status=&sortBy=&sortOrder=
func (h *IdeaHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	resp, err := h.service.List(r.Context(), userID, idea.ListQuery{
		Page:      atoiOrZero(q.Get("page")),
		Limit:     atoiOrZero(q.Get("limit")),
		Search:    q.Get("search"),
		Category:  q.Get("category"),
		Status:    q.Get("status"),
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, resp, "")
}

// Get はアイデアを返す。
// GET /api/ideas/{id}
func (h *IdeaHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	resp, err := h.service.Get(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, resp, "")
}

// Update はアイデアを更新する。
// PUT /api/ideas/{id}
func (h *IdeaHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req updateIdeaRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	update := model.IdeaUpdate{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
	}
	if req.Tags != nil {
		update.Tags = *req.Tags
		update.TagsSet = true
	}
	if req.Status != nil {
		status := model.IdeaStatus(*req.Status)
		update.Status = &status
	}

	resp, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), userID, update)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, resp, "Idea updated successfully")
}

// Delete はアイデアを削除する。
// DELETE /api/ideas/{id}
func (h *IdeaHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		handleServiceError(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, nil, "Idea deleted successfully")
}

// Analyze はアイデアを明示的に分析する。
// POST /api/ideas/{id}/analyze
func (h *IdeaHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	resp, err := h.service.Analyze(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, resp, "Idea analyzed successfully")
}

// Expand はアイデアの拡張提案を返す。
// 生成に失敗した場合も空の提案リストを含めて返す。
// POST /api/ideas/{id}/expand
func (h *IdeaHandler) Expand(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	suggestions, err := h.service.Expand(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeExpansionFailed {
			middleware.WriteErrorResponseWithData(w, apiErr, expandResponse{Suggestions: []string{}})
			return
		}
		handleServiceError(w, r, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, expandResponse{Suggestions: suggestions}, "")
}

// atoiOrZero は数値として解釈できない値を0（デフォルト値の指定）として扱う。
func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
