// Package model はドメインモデルを定義する。
package model

import "fmt"

// ErrorKind はエラーの種別を表す閉じた列挙型。
// ハンドラーはKindのみでHTTPステータスを決定し、コード文字列では分岐しない。
type ErrorKind int

const (
	// KindInternal はストア障害などその他すべてのエラー。
	KindInternal ErrorKind = iota
	// KindUnauthorized は認証情報が提示されていない、またはセッションが無効なエラー。
	KindUnauthorized
	// KindForbidden は提示された認証情報が不正なエラー。
	KindForbidden
	// KindNotFound はリソースが存在しない、または所有者が異なるエラー。
	KindNotFound
	// KindValidation は入力の形式・制約違反。
	KindValidation
	// KindConflict は一意制約などの競合。
	KindConflict
	// KindProviderFailure はAnalysis Providerの失敗・タイムアウト。
	KindProviderFailure
	// KindRateLimited はレート制限超過。
	KindRateLimited
)

// String はエラー種別の名前を返す。
func (k ErrorKind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindProviderFailure:
		return "provider_failure"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Kind     ErrorKind
	Code     string            // エラーコード
	Message  string            // エラーメッセージ
	Category string            // カテゴリ: auth, validation, idea, ai, system
	Action   string            // ユーザー向け対処方法
	Details  map[string]string // フィールド単位の詳細（バリデーションエラー時）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeTokenRequired      = "TOKEN_REQUIRED"
	ErrCodeInvalidToken       = "INVALID_TOKEN"
	ErrCodeInvalidOrExpired   = "INVALID_OR_EXPIRED"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeEmailExists        = "EMAIL_EXISTS"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeIdeaNotFound       = "IDEA_NOT_FOUND"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeAIAnalysisFailed   = "AI_ANALYSIS_FAILED"
	ErrCodeExpansionFailed    = "EXPANSION_FAILED"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewTokenRequiredError はAuthorizationヘッダーにトークンがない場合のエラーを生成する。
func NewTokenRequiredError() *APIError {
	return &APIError{
		Kind:     KindUnauthorized,
		Code:     ErrCodeTokenRequired,
		Message:  "Access token required",
		Category: "auth",
		Action:   "Log in and send the token as 'Authorization: Bearer <token>'.",
	}
}

// NewInvalidTokenError はトークンの署名・形式・有効期限の検証に失敗した場合のエラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Kind:     KindForbidden,
		Code:     ErrCodeInvalidToken,
		Message:  "Invalid token",
		Category: "auth",
		Action:   "Log in again to obtain a new token.",
	}
}

// NewInvalidOrExpiredSessionError はセッションが存在しない、または期限切れの場合のエラーを生成する。
func NewInvalidOrExpiredSessionError() *APIError {
	return &APIError{
		Kind:     KindUnauthorized,
		Code:     ErrCodeInvalidOrExpired,
		Message:  "Invalid or expired token",
		Category: "auth",
		Action:   "Log in again to obtain a new token.",
	}
}

// NewNotAuthenticatedError はリクエストに認証済みユーザーがない場合のエラーを生成する。
func NewNotAuthenticatedError() *APIError {
	return &APIError{
		Kind:     KindUnauthorized,
		Code:     ErrCodeUnauthorized,
		Message:  "Not authenticated",
		Category: "auth",
		Action:   "Log in and retry.",
	}
}

// NewInvalidCredentialsError はメールアドレスまたはパスワードが一致しない場合のエラーを生成する。
// どちらが誤っているかは区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Kind:     KindUnauthorized,
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid email or password",
		Category: "auth",
		Action:   "Check your email address and password.",
	}
}

// NewEmailExistsError は登録済みメールアドレスで登録しようとした場合のエラーを生成する。
func NewEmailExistsError() *APIError {
	return &APIError{
		Kind:     KindConflict,
		Code:     ErrCodeEmailExists,
		Message:  "User with this email already exists",
		Category: "auth",
		Action:   "Log in with this email address or use another one.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeUserNotFound,
		Message:  "User not found",
		Category: "auth",
		Action:   "Log in again.",
	}
}

// NewIdeaNotFoundError はアイデアが存在しない、または他ユーザーの所有である場合のエラーを生成する。
// 存在の有無を漏らさないため、両者を区別しない。
func NewIdeaNotFoundError() *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeIdeaNotFound,
		Message:  "Idea not found",
		Category: "idea",
		Action:   "Check the idea ID.",
	}
}

// NewValidationError はフィールド単位の詳細を含むバリデーションエラーを生成する。
func NewValidationError(details map[string]string) *APIError {
	return &APIError{
		Kind:     KindValidation,
		Code:     ErrCodeValidationFailed,
		Message:  "Validation failed",
		Category: "validation",
		Action:   "Fix the fields listed in details and retry.",
		Details:  details,
	}
}

// NewInvalidRequestError はリクエストボディやクエリの解析に失敗した場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Kind:     KindValidation,
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("Invalid request: %s", reason),
		Category: "validation",
		Action:   "Send a well-formed JSON request.",
	}
}

// NewAIAnalysisFailedError は明示的なAI分析が失敗した場合のエラーを生成する。
// 失敗の詳細はログのみに記録し、呼び出し元には固定メッセージを返す。
func NewAIAnalysisFailedError() *APIError {
	return &APIError{
		Kind:     KindProviderFailure,
		Code:     ErrCodeAIAnalysisFailed,
		Message:  "AI analysis failed",
		Category: "ai",
		Action:   "Wait a moment and retry the analysis.",
	}
}

// NewExpansionFailedError は拡張提案の生成に失敗した場合のエラーを生成する。
func NewExpansionFailedError() *APIError {
	return &APIError{
		Kind:     KindProviderFailure,
		Code:     ErrCodeExpansionFailed,
		Message:  "Failed to generate expansion suggestions",
		Category: "ai",
		Action:   "Wait a moment and retry.",
	}
}

// NewRateLimitedError はレート制限超過のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Kind:     KindRateLimited,
		Code:     ErrCodeRateLimitExceeded,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Please wait and retry after the specified time.",
	}
}

// NewInternalError は内部エラーを生成する。詳細は含めない。
func NewInternalError() *APIError {
	return &APIError{
		Kind:     KindInternal,
		Code:     ErrCodeInternal,
		Message:  "Internal server error",
		Category: "system",
		Action:   "Wait a moment and retry.",
	}
}
