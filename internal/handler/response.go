package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/ideaarchitect/internal/middleware"
	"github.com/hitoshi/ideaarchitect/internal/model"
)

// リクエストボディの読み取り上限
const maxRequestBodyBytes = 1 << 20

// handleServiceError はサービス層のエラーをHTTPレスポンスに変換する。
// APIError以外のエラーは内容をログのみに記録し、内部エラーとして返す。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, apiErr)
		return
	}

	slog.Error("internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// requireUserID は認証済みユーザーIDを返す。取得できない場合は401を書き込みfalseを返す。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, model.NewNotAuthenticatedError())
		return "", false
	}
	return userID, true
}

// decodeJSON はリクエストボディをdstに読み込む。失敗時は400を書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err := dec.Decode(dst); err != nil {
		reason := "malformed JSON body"
		if errors.Is(err, io.EOF) {
			reason = "request body is empty"
		}
		middleware.WriteErrorResponse(w, model.NewInvalidRequestError(reason))
		return false
	}
	return true
}

// decodeAndValidate はリクエストボディを読み込み、バリデーションを行う。
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !decodeJSON(w, r, dst) {
		return false
	}
	if apiErr := validateStruct(dst); apiErr != nil {
		middleware.WriteErrorResponse(w, apiErr)
		return false
	}
	return true
}

// writeRawJSON は共通エンベロープを使わずにJSONを書き込む。
func writeRawJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
