package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/ideaarchitect/internal/idea"
	"github.com/hitoshi/ideaarchitect/internal/model"
)

// --- モック定義 ---

type mockIdeaService struct {
	createFn  func(ctx context.Context, userID string, input model.NewIdea) (*ideaResponse, error)
	listFn    func(ctx context.Context, userID string, query idea.ListQuery) (*ideaListResponse, error)
	getFn     func(ctx context.Context, id, userID string) (*ideaResponse, error)
	updateFn  func(ctx context.Context, id, userID string, update model.IdeaUpdate) (*ideaResponse, error)
	deleteFn  func(ctx context.Context, id, userID string) error
	analyzeFn func(ctx context.Context, id, userID string) (*ideaResponse, error)
	expandFn  func(ctx context.Context, id, userID string) ([]string, error)
}

func (m *mockIdeaService) Create(ctx context.Context, userID string, input model.NewIdea) (*ideaResponse, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, input)
	}
	return nil, nil
}

func (m *mockIdeaService) List(ctx context.Context, userID string, query idea.ListQuery) (*ideaListResponse, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID, query)
	}
	return &ideaListResponse{Ideas: []ideaResponse{}}, nil
}

func (m *mockIdeaService) Get(ctx context.Context, id, userID string) (*ideaResponse, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id, userID)
	}
	return nil, nil
}

func (m *mockIdeaService) Update(ctx context.Context, id, userID string, update model.IdeaUpdate) (*ideaResponse, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, userID, update)
	}
	return nil, nil
}

func (m *mockIdeaService) Delete(ctx context.Context, id, userID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id, userID)
	}
	return nil
}

func (m *mockIdeaService) Analyze(ctx context.Context, id, userID string) (*ideaResponse, error) {
	if m.analyzeFn != nil {
		return m.analyzeFn(ctx, id, userID)
	}
	return nil, nil
}

func (m *mockIdeaService) Expand(ctx context.Context, id, userID string) ([]string, error) {
	if m.expandFn != nil {
		return m.expandFn(ctx, id, userID)
	}
	return nil, nil
}

func sampleIdeaResponse(id string, status model.IdeaStatus) *ideaResponse {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &ideaResponse{
		ID:          id,
		Title:       "Smart garden",
		Description: "Sensors that water plants automatically",
		Tags:        []string{},
		Status:      status,
		UserID:      "user-1",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// --- Create ---

func TestIdeaHandler_Create_Success(t *testing.T) {
	var got model.NewIdea
	svc := &mockIdeaService{
		createFn: func(ctx context.Context, userID string, input model.NewIdea) (*ideaResponse, error) {
			if userID != "user-1" {
				t.Errorf("userID = %q, want %q", userID, "user-1")
			}
			got = input
			return sampleIdeaResponse("idea-1", model.IdeaStatusDraft), nil
		},
	}
	h := NewIdeaHandler(svc)

	req := jsonRequest(t, http.MethodPost, "/api/ideas", map[string]any{
		"title":       "Smart garden",
		"description": "Sensors that water plants automatically",
		"category":    "iot",
		"tags":        []string{"hardware", "garden"},
	})
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.Create(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (body=%s)", w.Code, http.StatusCreated, w.Body.String())
	}
	if got.Category == nil || *got.Category != "iot" {
		t.Errorf("category = %v, want iot", got.Category)
	}
	if len(got.Tags) != 2 {
		t.Errorf("tags = %v, want 2 tags", got.Tags)
	}

	env := decodeEnvelope(t, w)
	var data ideaResponse
	decodeData(t, env, &data)
	if data.Status != model.IdeaStatusDraft {
		t.Errorf("status = %q, want DRAFT", data.Status)
	}
	if data.AIAnalysis != nil {
		t.Error("new idea should not carry an analysis yet")
	}
}

func TestIdeaHandler_Create_ValidationError(t *testing.T) {
	tests := []struct {
		name  string
		body  map[string]any
		field string
	}{
		{"missing title", map[string]any{"description": "long enough description"}, "title"},
		{"short title", map[string]any{"title": "ab", "description": "long enough description"}, "title"},
		{"short description", map[string]any{"title": "Valid title", "description": "short"}, "description"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewIdeaHandler(&mockIdeaService{
				createFn: func(ctx context.Context, userID string, input model.NewIdea) (*ideaResponse, error) {
					t.Fatal("service should not be called")
					return nil, nil
				},
			})

			req := withUserID(jsonRequest(t, http.MethodPost, "/api/ideas", tt.body), "user-1")
			w := httptest.NewRecorder()

			h.Create(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			env := decodeEnvelope(t, w)
			if _, ok := env.Details[tt.field]; !ok {
				t.Errorf("details missing %q: %v", tt.field, env.Details)
			}
		})
	}
}

func TestIdeaHandler_Create_NoUserID(t *testing.T) {
	h := NewIdeaHandler(&mockIdeaService{})

	req := jsonRequest(t, http.MethodPost, "/api/ideas", map[string]any{
		"title":       "Smart garden",
		"description": "Sensors that water plants automatically",
	})
	w := httptest.NewRecorder()

	h.Create(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// --- List ---

func TestIdeaHandler_List_ParsesQuery(t *testing.T) {
	var got idea.ListQuery
	svc := &mockIdeaService{
		listFn: func(ctx context.Context, userID string, query idea.ListQuery) (*ideaListResponse, error) {
			got = query
			return &ideaListResponse{
				Ideas:      []ideaResponse{*sampleIdeaResponse("idea-1", model.IdeaStatusStructured)},
				Pagination: paginationResponse{Page: 2, Limit: 5, Total: 6, TotalPages: 2},
			}, nil
		},
	}
	h := NewIdeaHandler(svc)

	req := httptest.NewRequest(http.MethodGet,
		"/api/ideas?page=2&limit=5&search=garden&category=iot&status=STRUCTURED&sortBy=title&sortOrder=asc", nil)
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.List(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	want := idea.ListQuery{
		Page: 2, Limit: 5, Search: "garden", Category: "iot",
		Status: "STRUCTURED", SortBy: "title", SortOrder: "asc",
	}
	if got != want {
		t.Errorf("query = %+v, want %+v", got, want)
	}

	env := decodeEnvelope(t, w)
	var data ideaListResponse
	decodeData(t, env, &data)
	if data.Pagination.TotalPages != 2 || len(data.Ideas) != 1 {
		t.Errorf("data = %+v", data)
	}
}

func TestIdeaHandler_List_NonNumericPagingFallsBackToDefaults(t *testing.T) {
	var got idea.ListQuery
	svc := &mockIdeaService{
		listFn: func(ctx context.Context, userID string, query idea.ListQuery) (*ideaListResponse, error) {
			got = query
			return &ideaListResponse{Ideas: []ideaResponse{}}, nil
		},
	}
	h := NewIdeaHandler(svc)

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/ideas?page=abc&limit=", nil), "user-1")
	w := httptest.NewRecorder()

	h.List(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got.Page != 0 || got.Limit != 0 {
		t.Errorf("page/limit = %d/%d, want 0/0 (service defaults)", got.Page, got.Limit)
	}
}

func TestIdeaHandler_List_InvalidStatus(t *testing.T) {
	svc := &mockIdeaService{
		listFn: func(ctx context.Context, userID string, query idea.ListQuery) (*ideaListResponse, error) {
			return nil, model.NewValidationError(map[string]string{"status": "invalid status"})
		},
	}
	h := NewIdeaHandler(svc)

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/ideas?status=BOGUS", nil), "user-1")
	w := httptest.NewRecorder()

	h.List(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// --- Get ---

func TestIdeaHandler_Get_Success(t *testing.T) {
	svc := &mockIdeaService{
		getFn: func(ctx context.Context, id, userID string) (*ideaResponse, error) {
			if id != "idea-1" || userID != "user-1" {
				t.Errorf("unexpected args: %q %q", id, userID)
			}
			return sampleIdeaResponse(id, model.IdeaStatusDraft), nil
		},
	}
	h := NewIdeaHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/ideas/idea-1", nil)
	req = withChiURLParam(req, "id", "idea-1")
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.Get(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestIdeaHandler_Get_NotFound(t *testing.T) {
	svc := &mockIdeaService{
		getFn: func(ctx context.Context, id, userID string) (*ideaResponse, error) {
			return nil, model.NewIdeaNotFoundError()
		},
	}
	h := NewIdeaHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/ideas/other", nil)
	req = withChiURLParam(req, "id", "other")
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.Get(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	env := decodeEnvelope(t, w)
	if env.Code != model.ErrCodeIdeaNotFound {
		t.Errorf("code = %q, want %q", env.Code, model.ErrCodeIdeaNotFound)
	}
}

// --- Update ---

func TestIdeaHandler_Update_PartialFields(t *testing.T) {
	var got model.IdeaUpdate
	svc := &mockIdeaService{
		updateFn: func(ctx context.Context, id, userID string, update model.IdeaUpdate) (*ideaResponse, error) {
			got = update
			return sampleIdeaResponse(id, model.IdeaStatusPlanned), nil
		},
	}
	h := NewIdeaHandler(svc)

	req := jsonRequest(t, http.MethodPut, "/api/ideas/idea-1", map[string]any{
		"title":  "Renamed idea",
		"status": "PLANNED",
	})
	req = withChiURLParam(req, "id", "idea-1")
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.Update(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body=%s)", w.Code, http.StatusOK, w.Body.String())
	}
	if got.Title == nil || *got.Title != "Renamed idea" {
		t.Errorf("title = %v, want Renamed idea", got.Title)
	}
	if got.Description != nil {
		t.Error("description should be nil when omitted")
	}
	if got.TagsSet {
		t.Error("TagsSet should be false when tags omitted")
	}
	if got.Status == nil || *got.Status != model.IdeaStatusPlanned {
		t.Errorf("status = %v, want PLANNED", got.Status)
	}
}

func TestIdeaHandler_Update_EmptyTagsClearsTags(t *testing.T) {
	var got model.IdeaUpdate
	svc := &mockIdeaService{
		updateFn: func(ctx context.Context, id, userID string, update model.IdeaUpdate) (*ideaResponse, error) {
			got = update
			return sampleIdeaResponse(id, model.IdeaStatusDraft), nil
		},
	}
	h := NewIdeaHandler(svc)

	req := jsonRequest(t, http.MethodPut, "/api/ideas/idea-1", map[string]any{"tags": []string{}})
	req = withChiURLParam(req, "id", "idea-1")
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.Update(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !got.TagsSet || len(got.Tags) != 0 {
		t.Errorf("TagsSet=%v tags=%v, want set and empty", got.TagsSet, got.Tags)
	}
}

func TestIdeaHandler_Update_UnknownStatus(t *testing.T) {
	h := NewIdeaHandler(&mockIdeaService{
		updateFn: func(ctx context.Context, id, userID string, update model.IdeaUpdate) (*ideaResponse, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	})

	req := jsonRequest(t, http.MethodPut, "/api/ideas/idea-1", map[string]any{"status": "DONE"})
	req = withChiURLParam(req, "id", "idea-1")
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.Update(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	env := decodeEnvelope(t, w)
	if _, ok := env.Details["status"]; !ok {
		t.Errorf("details missing status: %v", env.Details)
	}
}

// --- Delete ---

func TestIdeaHandler_Delete_Success(t *testing.T) {
	called := false
	svc := &mockIdeaService{
		deleteFn: func(ctx context.Context, id, userID string) error {
			called = true
			return nil
		},
	}
	h := NewIdeaHandler(svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/ideas/idea-1", nil)
	req = withChiURLParam(req, "id", "idea-1")
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.Delete(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !called {
		t.Error("expected Delete to be called")
	}
}

// --- Analyze ---

func TestIdeaHandler_Analyze_ReturnsStructuredIdea(t *testing.T) {
	svc := &mockIdeaService{
		analyzeFn: func(ctx context.Context, id, userID string) (*ideaResponse, error) {
			resp := sampleIdeaResponse(id, model.IdeaStatusStructured)
			resp.AIAnalysis = &model.AnalysisResult{Problem: "dry plants", Solution: "sensors", Confidence: 0.8}
			return resp, nil
		},
	}
	h := NewIdeaHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/ideas/idea-1/analyze", nil)
	req = withChiURLParam(req, "id", "idea-1")
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.Analyze(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	env := decodeEnvelope(t, w)
	var data ideaResponse
	decodeData(t, env, &data)
	if data.Status != model.IdeaStatusStructured || data.AIAnalysis == nil {
		t.Errorf("data = %+v, want STRUCTURED with analysis", data)
	}
}

func TestIdeaHandler_Analyze_ProviderFailure_Returns500(t *testing.T) {
	svc := &mockIdeaService{
		analyzeFn: func(ctx context.Context, id, userID string) (*ideaResponse, error) {
			return nil, model.NewAIAnalysisFailedError()
		},
	}
	h := NewIdeaHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/ideas/idea-1/analyze", nil)
	req = withChiURLParam(req, "id", "idea-1")
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.Analyze(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	env := decodeEnvelope(t, w)
	if env.Code != model.ErrCodeAIAnalysisFailed {
		t.Errorf("code = %q, want %q", env.Code, model.ErrCodeAIAnalysisFailed)
	}
}

// --- Expand ---

func TestIdeaHandler_Expand_Success(t *testing.T) {
	svc := &mockIdeaService{
		expandFn: func(ctx context.Context, id, userID string) ([]string, error) {
			return []string{"Add a mobile app", "Partner with nurseries"}, nil
		},
	}
	h := NewIdeaHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/ideas/idea-1/expand", nil)
	req = withChiURLParam(req, "id", "idea-1")
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.Expand(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	env := decodeEnvelope(t, w)
	var data expandResponse
	decodeData(t, env, &data)
	if len(data.Suggestions) != 2 {
		t.Errorf("suggestions = %v, want 2", data.Suggestions)
	}
}

func TestIdeaHandler_Expand_Failure_IncludesEmptySuggestions(t *testing.T) {
	svc := &mockIdeaService{
		expandFn: func(ctx context.Context, id, userID string) ([]string, error) {
			return nil, model.NewExpansionFailedError()
		},
	}
	h := NewIdeaHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/ideas/idea-1/expand", nil)
	req = withChiURLParam(req, "id", "idea-1")
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.Expand(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	env := decodeEnvelope(t, w)
	if env.Success {
		t.Error("success = true, want false")
	}
	var data expandResponse
	decodeData(t, env, &data)
	if data.Suggestions == nil || len(data.Suggestions) != 0 {
		t.Errorf("suggestions = %v, want empty list", data.Suggestions)
	}
}

func TestIdeaHandler_Expand_NotFound(t *testing.T) {
	svc := &mockIdeaService{
		expandFn: func(ctx context.Context, id, userID string) ([]string, error) {
			return nil, model.NewIdeaNotFoundError()
		},
	}
	h := NewIdeaHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/ideas/x/expand", nil)
	req = withChiURLParam(req, "id", "x")
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.Expand(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestIdeaHandler_Delete_InternalError(t *testing.T) {
	svc := &mockIdeaService{
		deleteFn: func(ctx context.Context, id, userID string) error {
			return errors.New("db down")
		},
	}
	h := NewIdeaHandler(svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/ideas/idea-1", nil)
	req = withChiURLParam(req, "id", "idea-1")
	req = withUserID(req, "user-1")
	w := httptest.NewRecorder()

	h.Delete(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}
