// Package model はドメインモデルを定義する。
package model

import "time"

// User はアプリの利用者アカウントを表す。
// パスワードはbcryptハッシュのみを保持する。
type User struct {
	ID           string
	Name         string
	Phone        string
	Email        string
	PasswordHash string
	AvatarImage  string // data URL形式の画像。未設定の場合は空文字列
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session はログインセッションを表す。
// LoggedInかつUnlockedでない状態は「PIN確認待ちのログイン」を意味する。
type Session struct {
	ID        string
	UserID    string
	LoggedIn  bool
	Unlocked  bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Theme はUIテーマ設定。
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Valid はテーマ値が定義済みかを返す。
func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark
}

// Preferences はユーザーごとの表示設定。
type Preferences struct {
	UserID           string
	TourDone         bool
	InstallDismissed bool
	Theme            Theme
	UpdatedAt        time.Time
}

// DefaultPreferences は未保存ユーザー向けの既定設定を返す。
func DefaultPreferences(userID string) *Preferences {
	return &Preferences{
		UserID: userID,
		Theme:  ThemeLight,
	}
}
