// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, pin, finance, offline, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodePasswordMismatch   = "PASSWORD_MISMATCH"
	ErrCodePasswordTooShort   = "PASSWORD_TOO_SHORT"
	ErrCodeInvalidEmail       = "INVALID_EMAIL"
	ErrCodeEmailTaken         = "EMAIL_TAKEN"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeInvalidPinGroup    = "INVALID_PIN_GROUP"
	ErrCodeInvalidPinDigit    = "INVALID_PIN_DIGIT"
	ErrCodeSessionLocked      = "SESSION_LOCKED"
	ErrCodeRecordNotFound     = "RECORD_NOT_FOUND"
	ErrCodeInvalidRecord      = "INVALID_RECORD"
	ErrCodeInvalidPreferences = "INVALID_PREFERENCES"
	ErrCodeInvalidProfile     = "INVALID_PROFILE"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeCSRFInvalid        = "CSRF_INVALID"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewPasswordMismatchError はパスワード確認不一致エラーを生成する。
func NewPasswordMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodePasswordMismatch,
		Message:  "パスワードが一致しません。",
		Category: "validation",
		Action:   "確認用パスワードを同じ値で入力してください。",
	}
}

// NewPasswordTooShortError はパスワード長不足エラーを生成する。
func NewPasswordTooShortError(min int) *APIError {
	return &APIError{
		Code:     ErrCodePasswordTooShort,
		Message:  fmt.Sprintf("パスワードは%d文字以上必要です。", min),
		Category: "validation",
		Action:   "より長いパスワードを入力してください。",
	}
}

// NewInvalidEmailError はメールアドレス不正エラーを生成する。
func NewInvalidEmailError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  fmt.Sprintf("有効なGmailアドレスではありません: %s", email),
		Category: "validation",
		Action:   "@gmail.com のアドレスを入力してください。",
	}
}

// NewEmailTakenError は登録済みメールアドレスエラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログイン画面からログインしてください。",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidPinGroupError はPIN入力グループ不正エラーを生成する。
func NewInvalidPinGroupError(group string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPinGroup,
		Message:  fmt.Sprintf("無効なPIN入力グループです: %s", group),
		Category: "validation",
		Action:   "グループには entry または confirm を指定してください。",
	}
}

// NewInvalidPinDigitError はPIN入力値不正エラーを生成する。
func NewInvalidPinDigitError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPinDigit,
		Message:  fmt.Sprintf("無効なPIN入力です: %s", reason),
		Category: "validation",
		Action:   "0から9の数字を1文字ずつ入力してください。",
	}
}

// NewSessionLockedError はPIN未解除セッションでのアクセスエラーを生成する。
func NewSessionLockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionLocked,
		Message:  "PINによるロック解除が必要です。",
		Category: "pin",
		Action:   "PINを入力してロックを解除してください。",
	}
}

// NewRecordNotFoundError はレコード未検出エラーを生成する。
func NewRecordNotFoundError(kind RecordKind, id string) *APIError {
	return &APIError{
		Code:     ErrCodeRecordNotFound,
		Message:  fmt.Sprintf("指定された%sが見つかりません: %s", kind, id),
		Category: "finance",
		Action:   "IDを確認してください。",
	}
}

// NewInvalidRecordError はレコード入力不正エラーを生成する。
func NewInvalidRecordError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRecord,
		Message:  fmt.Sprintf("入力内容が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidPreferencesError は設定値不正エラーを生成する。
func NewInvalidPreferencesError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPreferences,
		Message:  fmt.Sprintf("無効な設定値です: %s", reason),
		Category: "validation",
		Action:   "テーマには light または dark を指定してください。",
	}
}

// NewInvalidProfileError はプロフィール入力不正エラーを生成する。
func NewInvalidProfileError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidProfile,
		Message:  fmt.Sprintf("プロフィールの入力内容が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewUnauthorizedError は未ログインでのアクセスエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "ログインが必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewCSRFInvalidError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "リクエストの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterの秒数だけ待ってから再度お試しください。",
	}
}

// NewInvalidRequestError はリクエスト形式不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストの形式が不正です: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
