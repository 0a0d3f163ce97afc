// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// レスポンスボディは {"error": Message, "details": Details, "code": Code} になる。
type APIError struct {
	Code    string // エラーコード
	Message string // エラーメッセージ
	Details string // 補足情報（任意）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeValidation     = "VALIDATION_FAILED"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeForbidden      = "FORBIDDEN"
	ErrCodeAssetNotFound  = "ASSET_NOT_FOUND"
	ErrCodeFileNotFound   = "FILE_NOT_FOUND"
	ErrCodeInvalidURL     = "INVALID_URL"
	ErrCodeSSRFBlocked    = "SSRF_BLOCKED"
	ErrCodeUpstreamFailed = "UPSTREAM_FAILED"
	ErrCodeVendor         = "VENDOR_ERROR"
	ErrCodeTaskNotFound   = "TASK_NOT_FOUND"
	ErrCodePayloadTooBig  = "PAYLOAD_TOO_LARGE"
	ErrCodeUserNotFound   = "USER_NOT_FOUND"
	ErrCodeCSRF           = "CSRF_INVALID"
	ErrCodeRateLimited    = "RATE_LIMITED"
	ErrCodeInternal       = "INTERNAL_ERROR"
)

// NewValidationError は必須項目の欠落や不正値のエラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:    ErrCodeValidation,
		Message: message,
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError(details string) *APIError {
	return &APIError{
		Code:    ErrCodeInvalidRequest,
		Message: "invalid request body",
		Details: details,
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:    ErrCodeUnauthorized,
		Message: "authentication required",
	}
}

// NewForbiddenError は他ユーザーのリソースへのアクセスエラーを生成する。
func NewForbiddenError(details string) *APIError {
	return &APIError{
		Code:    ErrCodeForbidden,
		Message: "access to this resource is not allowed",
		Details: details,
	}
}

// NewAssetNotFoundError はアセット履歴未検出エラーを生成する。
func NewAssetNotFoundError(id string) *APIError {
	return &APIError{
		Code:    ErrCodeAssetNotFound,
		Message: "asset history record not found",
		Details: id,
	}
}

// NewFileNotFoundError はストレージ上のファイル未検出エラーを生成する。
func NewFileNotFoundError(key string) *APIError {
	return &APIError{
		Code:    ErrCodeFileNotFound,
		Message: "file not found",
		Details: key,
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:    ErrCodeInvalidURL,
		Message: "invalid url",
		Details: reason,
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError(reason string) *APIError {
	return &APIError{
		Code:    ErrCodeSSRFBlocked,
		Message: "the requested url is not allowed",
		Details: reason,
	}
}

// NewUpstreamFailedError はプロキシ先の取得失敗エラーを生成する。
func NewUpstreamFailedError(reason string) *APIError {
	return &APIError{
		Code:    ErrCodeUpstreamFailed,
		Message: "failed to fetch upstream url",
		Details: reason,
	}
}

// NewVendorError は外部生成APIの呼び出し失敗エラーを生成する。
func NewVendorError(vendor string, err error) *APIError {
	details := vendor
	if err != nil {
		details = fmt.Sprintf("%s: %v", vendor, err)
	}
	return &APIError{
		Code:    ErrCodeVendor,
		Message: "generation service request failed",
		Details: details,
	}
}

// NewTaskNotFoundError は動画生成タスク未検出エラーを生成する。
func NewTaskNotFoundError(vendor, taskID string) *APIError {
	return &APIError{
		Code:    ErrCodeTaskNotFound,
		Message: "video task not found",
		Details: fmt.Sprintf("%s/%s", vendor, taskID),
	}
}

// NewPayloadTooLargeError はアップロードサイズ超過エラーを生成する。
func NewPayloadTooLargeError(limit int64) *APIError {
	return &APIError{
		Code:    ErrCodePayloadTooBig,
		Message: "payload too large",
		Details: fmt.Sprintf("limit is %d bytes", limit),
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:    ErrCodeUserNotFound,
		Message: "user not found",
	}
}

// NewCSRFError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFError(details string) *APIError {
	return &APIError{
		Code:    ErrCodeCSRF,
		Message: "CSRF token validation failed",
		Details: details,
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError(limitType string) *APIError {
	return &APIError{
		Code:    ErrCodeRateLimited,
		Message: "too many requests, please retry later",
		Details: limitType,
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:    ErrCodeInternal,
		Message: "internal server error",
	}
}
