package repository

import "errors"

var (
	// ErrDuplicateEmail は同じメールアドレスのユーザーが既に存在することを示す。
	ErrDuplicateEmail = errors.New("duplicate email")

	// ErrPinAlreadyExists はPINクレデンシャルが既に保存されていることを示す。
	ErrPinAlreadyExists = errors.New("pin credential already exists")

	// ErrRecordNotFound は更新・削除対象のレコードが存在しないことを示す。
	ErrRecordNotFound = errors.New("record not found")
)
