package handler

import (
	"net/http"
	"time"
)

// healthResponse はヘルスチェックのレスポンス。
type healthResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthHandler はヘルスチェックのHTTPハンドラー。
type HealthHandler struct {
	now func() time.Time
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{now: time.Now}
}

// Health はサーバーの稼働状態を返す。
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeRawJSON(w, http.StatusOK, healthResponse{
		Success:   true,
		Message:   "IdeaArchitect API is running",
		Timestamp: h.now().UTC(),
	})
}
