package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/ideaarchitect/internal/model"
)

// SuccessResponseBody はAPI成功レスポンスの統一フォーマット。
type SuccessResponseBody struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Success  bool              `json:"success"`
	Code     string            `json:"code"`
	Error    string            `json:"error"`
	Category string            `json:"category"`
	Action   string            `json:"action"`
	Details  map[string]string `json:"details,omitempty"`
	Data     any               `json:"data,omitempty"`
}

// StatusForKind はエラー種別をHTTPステータスコードに変換する。
// ステータスの決定はこの関数に集約する。
func StatusForKind(kind model.ErrorKind) int {
	switch kind {
	case model.KindUnauthorized:
		return http.StatusUnauthorized
	case model.KindForbidden:
		return http.StatusForbidden
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindConflict:
		return http.StatusConflict
	case model.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		// KindProviderFailure もクライアントには500として返す
		return http.StatusInternalServerError
	}
}

// WriteJSON は成功レスポンスを統一フォーマットで書き込む。
func WriteJSON(w http.ResponseWriter, statusCode int, data any, message string) {
	writeBody(w, statusCode, SuccessResponseBody{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// ステータスコードはエラー種別から決定する。
func WriteErrorResponse(w http.ResponseWriter, apiErr *model.APIError) {
	WriteErrorResponseWithData(w, apiErr, nil)
}

// WriteErrorResponseWithData はエラーに付随するデータ（空の結果など）を含めてエラーレスポンスを書き込む。
func WriteErrorResponseWithData(w http.ResponseWriter, apiErr *model.APIError, data any) {
	writeBody(w, StatusForKind(apiErr.Kind), ErrorResponseBody{
		Success:  false,
		Code:     apiErr.Code,
		Error:    apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
		Details:  apiErr.Details,
		Data:     data,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, model.NewInternalError())
}

func writeBody(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
