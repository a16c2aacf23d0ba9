package idea

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/ideaarchitect/internal/model"
	"github.com/hitoshi/ideaarchitect/internal/worker/enrich"
)

// memIdeaRepo はテスト用のインメモリIdeaRepository。
// 所有者条件を伴う操作は実装と同じく id と user_id の両方で絞り込む。
type memIdeaRepo struct {
	mu    sync.Mutex
	ideas map[string]*model.Idea

	// 指定されている場合は対応する操作の代わりに呼ばれる
	setStatusFn   func(ctx context.Context, id, userID string, status model.IdeaStatus) (bool, error)
	setAnalysisFn func(ctx context.Context, id, userID string, result *model.AnalysisResult, status model.IdeaStatus) (*model.Idea, error)

	statusHistory []model.IdeaStatus
	lastUpdate    *model.IdeaUpdate
	lastFilter    model.IdeaFilter
	lastOrder     model.IdeaOrder
	lastLimit     int
	lastOffset    int
}

func newMemIdeaRepo(ideas ...*model.Idea) *memIdeaRepo {
	r := &memIdeaRepo{ideas: map[string]*model.Idea{}}
	for _, idea := range ideas {
		r.ideas[idea.ID] = idea
	}
	return r
}

func (r *memIdeaRepo) Create(_ context.Context, idea *model.Idea) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *idea
	r.ideas[idea.ID] = &cp
	return nil
}

func (r *memIdeaRepo) FindByIDAndOwner(_ context.Context, id, userID string) (*model.Idea, error) {
	if err := checkUUIDColumn(id); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	idea, ok := r.ideas[id]
	if !ok || idea.UserID != userID {
		return nil, nil
	}
	cp := *idea
	return &cp, nil
}

func (r *memIdeaRepo) List(_ context.Context, filter model.IdeaFilter, order model.IdeaOrder, limit, offset int) ([]*model.Idea, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastFilter, r.lastOrder, r.lastLimit, r.lastOffset = filter, order, limit, offset

	matched := r.matchLocked(filter)
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (r *memIdeaRepo) Count(_ context.Context, filter model.IdeaFilter) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.matchLocked(filter)), nil
}

func (r *memIdeaRepo) matchLocked(filter model.IdeaFilter) []*model.Idea {
	var matched []*model.Idea
	for _, idea := range r.ideas {
		if idea.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && idea.Status != filter.Status {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(idea.Title+idea.Description), strings.ToLower(filter.Search)) {
			continue
		}
		cp := *idea
		matched = append(matched, &cp)
	}
	return matched
}

func (r *memIdeaRepo) Update(_ context.Context, id, userID string, update model.IdeaUpdate) (*model.Idea, error) {
	if err := checkUUIDColumn(id); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastUpdate = &update

	idea, ok := r.ideas[id]
	if !ok || idea.UserID != userID {
		return nil, nil
	}
	if update.Title != nil {
		idea.Title = *update.Title
	}
	if update.Description != nil {
		idea.Description = *update.Description
	}
	if update.Category != nil {
		if *update.Category == "" {
			idea.Category = nil
		} else {
			c := *update.Category
			idea.Category = &c
		}
	}
	if update.TagsSet {
		idea.Tags = update.Tags
	}
	if update.Status != nil {
		idea.Status = *update.Status
	}
	cp := *idea
	return &cp, nil
}

func (r *memIdeaRepo) SetStatus(ctx context.Context, id, userID string, status model.IdeaStatus) (bool, error) {
	if err := checkUUIDColumn(id); err != nil {
		return false, err
	}
	if r.setStatusFn != nil {
		return r.setStatusFn(ctx, id, userID, status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	idea, ok := r.ideas[id]
	if !ok || idea.UserID != userID {
		return false, nil
	}
	idea.Status = status
	r.statusHistory = append(r.statusHistory, status)
	return true, nil
}

func (r *memIdeaRepo) SetAnalysis(ctx context.Context, id, userID string, result *model.AnalysisResult, status model.IdeaStatus) (*model.Idea, error) {
	if err := checkUUIDColumn(id); err != nil {
		return nil, err
	}
	if r.setAnalysisFn != nil {
		return r.setAnalysisFn(ctx, id, userID, result, status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	idea, ok := r.ideas[id]
	if !ok || idea.UserID != userID {
		return nil, nil
	}
	idea.AIAnalysis = result
	idea.Status = status
	r.statusHistory = append(r.statusHistory, status)
	cp := *idea
	return &cp, nil
}

func (r *memIdeaRepo) Delete(_ context.Context, id, userID string) (bool, error) {
	if err := checkUUIDColumn(id); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	idea, ok := r.ideas[id]
	if !ok || idea.UserID != userID {
		return false, nil
	}
	delete(r.ideas, id)
	return true, nil
}

func (r *memIdeaRepo) DeleteByUserID(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, idea := range r.ideas {
		if idea.UserID == userID {
			delete(r.ideas, id)
		}
	}
	return nil
}

// checkUUIDColumn はUUID列にUUID以外を渡したときのPostgreSQLの失敗を再現する。
func checkUUIDColumn(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("pq: invalid input syntax for type uuid: %q", id)
	}
	return nil
}

func (r *memIdeaRepo) status(id string) model.IdeaStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ideas[id].Status
}

// mockProvider はanalysis.Providerのモック実装。
type mockProvider struct {
	analyzeFn func(ctx context.Context, title, description string) (*model.AnalysisResult, error)
	expandFn  func(ctx context.Context, title, description string) ([]string, error)

	mu           sync.Mutex
	analyzeCalls int
}

func (m *mockProvider) Analyze(ctx context.Context, title, description string) (*model.AnalysisResult, error) {
	m.mu.Lock()
	m.analyzeCalls++
	m.mu.Unlock()
	if m.analyzeFn != nil {
		return m.analyzeFn(ctx, title, description)
	}
	return sampleAnalysis(), nil
}

func (m *mockProvider) Expand(ctx context.Context, title, description string) ([]string, error) {
	if m.expandFn != nil {
		return m.expandFn(ctx, title, description)
	}
	return []string{"idea 1", "idea 2"}, nil
}

func (m *mockProvider) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.analyzeCalls
}

// captureSubmitter は投入されたジョブを保持し、テストから同期的に実行する。
type captureSubmitter struct {
	mu     sync.Mutex
	jobs   []enrich.Job
	reject bool
}

func (s *captureSubmitter) Submit(job enrich.Job) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reject {
		return false
	}
	s.jobs = append(s.jobs, job)
	return true
}

// runAll は保持しているジョブを順に実行し、各ジョブのエラーを返す。
func (s *captureSubmitter) runAll(ctx context.Context) []error {
	s.mu.Lock()
	jobs := s.jobs
	s.jobs = nil
	s.mu.Unlock()

	errs := make([]error, 0, len(jobs))
	for _, job := range jobs {
		errs = append(errs, job.Run(ctx))
	}
	return errs
}

type analysisRecord struct {
	path    string
	outcome string
}

type mockAnalysisRecorder struct {
	mu      sync.Mutex
	records []analysisRecord
}

func (m *mockAnalysisRecorder) RecordAnalysis(path, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, analysisRecord{path: path, outcome: outcome})
}

func (m *mockAnalysisRecorder) last() analysisRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.records) == 0 {
		return analysisRecord{}
	}
	return m.records[len(m.records)-1]
}

// passthroughSanitizer は入力をそのまま返す。HTML除去自体はsecurityパッケージで検証する。
type passthroughSanitizer struct{}

func (passthroughSanitizer) Sanitize(s string) string { return strings.TrimSpace(s) }

func (passthroughSanitizer) SanitizeAll(values []string) []string {
	out := []string{}
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func sampleAnalysis() *model.AnalysisResult {
	return &model.AnalysisResult{
		Problem:        "problem",
		Solution:       "solution",
		TargetAudience: "audience",
		RevenueModel:   "subscription",
		Confidence:     0.8,
	}
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// テストで使うアイデアID。ストアのidはUUID列のため、UUID形式にする。
const (
	testIdeaID    = "0b6f4d2e-8c1a-4f7e-9a35-2d9e6c1b7a40"
	missingIdeaID = "5c3e9a71-2f4b-4d8c-b6e0-91a7f3d2c845"
)

func draftIdea(id, userID string) *model.Idea {
	return &model.Idea{
		ID:          id,
		Title:       "Receipt scanner",
		Description: "Scan receipts to build a household budget",
		Status:      model.IdeaStatusDraft,
		UserID:      userID,
		CreatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}
