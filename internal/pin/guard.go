// Package pin は4桁PINによるセッションのロック解除を扱う。
//
// Guardは入力フィールドへの1桁ずつの入力イベントを受け取り、
// 初回のPIN作成（入力→確認）と既存PINの照合を状態機械として処理する。
// 表示層はGuardが発行するEventを購読し、フィールド操作やメッセージ表示を行う。
package pin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/gastos/internal/model"
)

// CodeLength はPINの桁数。
const CodeLength = 4

// State はGuardの状態。
type State string

const (
	// StateNoPinEntry はPIN未作成で最初の入力を待っている状態。
	StateNoPinEntry State = "no_pin_entry"
	// StateAwaitingConfirm は最初の入力を受け取り、確認入力を待っている状態。
	StateAwaitingConfirm State = "awaiting_confirm"
	// StateAwaitingValidation は保存済みPINとの照合入力を待っている状態。
	StateAwaitingValidation State = "awaiting_validation"
	// StateUnlocked はロック解除済み。セッション中は終端状態。
	StateUnlocked State = "unlocked"
)

// Group は入力フィールドのグループ。
type Group string

const (
	GroupEntry   Group = "entry"
	GroupConfirm Group = "confirm"
)

// ParseGroup は文字列をGroupに変換する。
func ParseGroup(s string) (Group, error) {
	switch Group(s) {
	case GroupEntry, GroupConfirm:
		return Group(s), nil
	default:
		return "", model.NewInvalidPinGroupError(s)
	}
}

// Outcome は1回の入力イベントの結果。
type Outcome string

const (
	OutcomeAwaitingMore    Outcome = "awaiting-more"
	OutcomeAwaitingConfirm Outcome = "awaiting-confirm"
	OutcomeConfirmed       Outcome = "confirmed"
	OutcomeMismatch        Outcome = "mismatch"
	OutcomeUnlocked        Outcome = "unlocked"
	OutcomeIncorrect       Outcome = "incorrect"
	OutcomeRejected        Outcome = "rejected"
)

// Unlocks はこの結果でロック解除されたかを返す。
func (o Outcome) Unlocks() bool {
	return o == OutcomeConfirmed || o == OutcomeUnlocked
}

// Effect は表示層に依頼する操作。
type Effect string

const (
	EffectDisableEntry    Effect = "disable-entry"
	EffectEnableEntry     Effect = "enable-entry"
	EffectClearEntry      Effect = "clear-entry"
	EffectClearConfirm    Effect = "clear-confirm"
	EffectFocusEntry      Effect = "focus-entry"
	EffectFocusConfirm    Effect = "focus-confirm"
	EffectShowConfirm     Effect = "show-confirm"
	EffectHideConfirm     Effect = "hide-confirm"
	EffectRestorePrompt   Effect = "restore-prompt"
	EffectSignalCreated   Effect = "signal-created"
	EffectSignalMatch     Effect = "signal-correct"
	EffectSignalMismatch  Effect = "signal-mismatch"
	EffectSignalIncorrect Effect = "signal-incorrect"
	EffectHapticPulse     Effect = "haptic-pulse"
	EffectShowMainApp     Effect = "show-main-app"
)

// clearAll は全フィールドを消去し入力グループを初期表示に戻すエフェクト列。
var clearAll = []Effect{EffectClearEntry, EffectClearConfirm, EffectEnableEntry, EffectFocusEntry}

// Event は入力イベントの処理結果として購読者に通知される。
type Event struct {
	Outcome Outcome  `json:"outcome"`
	State   State    `json:"state"`
	Effects []Effect `json:"effects"`
}

// ErrCredentialExists は保存しようとしたPINが既に別の経路で作成済みであることを示す。
var ErrCredentialExists = errors.New("pin credential already exists")

// CredentialStore はPINクレデンシャルの保存先。
// Loadは未作成の場合に空文字列を返し、Saveは作成済みの場合にErrCredentialExistsを返す。
type CredentialStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, hash string) error
}

// Snapshot はGuardの現在状態の読み取り専用ビュー。入力値そのものは含まない。
type Snapshot struct {
	State         State         `json:"state"`
	EntryDisabled bool          `json:"entryDisabled"`
	Filled        map[Group]int `json:"filled"`
}

// Option はGuardの生成オプション。
type Option func(*Guard)

// WithCost はPINハッシュのbcryptコストを設定する。
func WithCost(cost int) Option {
	return func(g *Guard) { g.cost = cost }
}

// WithUnlockHandler はロック解除時に1回だけ呼び出される処理を設定する。
func WithUnlockHandler(fn func(ctx context.Context) error) Option {
	return func(g *Guard) { g.onUnlock = fn }
}

// Guard はPINの作成と照合を行う状態機械。複数goroutineから安全に利用できる。
type Guard struct {
	mu sync.Mutex

	store    CredentialStore
	cost     int
	onUnlock func(ctx context.Context) error

	state         State
	temporaryPin  string
	creating      bool
	entryDisabled bool
	fields        map[Group]*[CodeLength]string

	subscribers []func(Event)
}

// NewGuard は保存済みクレデンシャルの有無から初期状態を決めてGuardを生成する。
func NewGuard(ctx context.Context, store CredentialStore, opts ...Option) (*Guard, error) {
	g := &Guard{
		store: store,
		cost:  bcrypt.DefaultCost,
		fields: map[Group]*[CodeLength]string{
			GroupEntry:   {},
			GroupConfirm: {},
		},
	}
	for _, opt := range opts {
		opt(g)
	}

	hash, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load pin credential: %w", err)
	}
	if hash == "" {
		g.state = StateNoPinEntry
	} else {
		g.state = StateAwaitingValidation
	}
	return g, nil
}

// Subscribe はEventの購読者を登録する。
func (g *Guard) Subscribe(fn func(Event)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subscribers = append(g.subscribers, fn)
}

// State は現在の状態を返す。
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Snapshot は現在の状態と各グループの入力済み桁数を返す。
func (g *Guard) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	filled := make(map[Group]int, len(g.fields))
	for group, f := range g.fields {
		for _, v := range f {
			if v != "" {
				filled[group]++
			}
		}
	}
	return Snapshot{State: g.state, EntryDisabled: g.entryDisabled, Filled: filled}
}

// Digit は1つの入力フィールドへの値の設定を処理する。
// valueは数字1文字、または空文字列（消去）。
// グループの最後のフィールドが埋まった時点でSubmitと同じ処理を行う。
func (g *Guard) Digit(ctx context.Context, group Group, index int, value string) (Event, error) {
	if index < 0 || index >= CodeLength {
		return Event{}, model.NewInvalidPinDigitError(fmt.Sprintf("index %d is out of range", index))
	}
	if value != "" && !isDigits(value, 1) {
		return Event{}, model.NewInvalidPinDigitError("value must be a single digit")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	f, ok := g.fields[group]
	if !ok {
		return Event{}, model.NewInvalidPinGroupError(string(group))
	}
	if !g.accepts(group) {
		return g.emit(OutcomeRejected), nil
	}

	f[index] = value
	if index < CodeLength-1 || value == "" {
		return g.emit(OutcomeAwaitingMore), nil
	}
	return g.submit(ctx, group, strings.Join(f[:], ""))
}

// Submit はグループの4桁コードを直接送信する。
// 4文字未満の場合は何もせずOutcomeAwaitingMoreを返す。
func (g *Guard) Submit(ctx context.Context, group Group, code string) (Event, error) {
	if group != GroupEntry && group != GroupConfirm {
		return Event{}, model.NewInvalidPinGroupError(string(group))
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.submit(ctx, group, code)
}

// accepts はフィールド入力を受け付ける表示状態かを返す。
// 入力グループは無効化されていない間、確認グループは確認待ちの間だけ入力できる。
func (g *Guard) accepts(group Group) bool {
	switch g.state {
	case StateNoPinEntry, StateAwaitingValidation:
		return group == GroupEntry
	case StateAwaitingConfirm:
		return group == GroupConfirm
	default:
		return false
	}
}

func (g *Guard) submit(ctx context.Context, group Group, code string) (Event, error) {
	if len(code) < CodeLength {
		return g.emit(OutcomeAwaitingMore), nil
	}
	if !isDigits(code, CodeLength) {
		return Event{}, model.NewInvalidPinDigitError("code must be exactly 4 digits")
	}
	if g.state == StateUnlocked {
		return g.emit(OutcomeRejected), nil
	}

	stored, err := g.store.Load(ctx)
	if err != nil {
		return Event{}, fmt.Errorf("failed to load pin credential: %w", err)
	}

	switch {
	case stored != "" && g.creating:
		return g.abandonCreation(), nil
	case stored == "" && group == GroupEntry && !g.creating:
		return g.beginConfirm(code), nil
	case stored == "" && group == GroupConfirm && g.creating:
		return g.confirm(ctx, code)
	case stored != "" && group == GroupEntry:
		return g.validate(ctx, stored, code)
	default:
		return g.emit(OutcomeRejected), nil
	}
}

func (g *Guard) beginConfirm(code string) Event {
	g.temporaryPin = code
	g.creating = true
	g.entryDisabled = true
	g.state = StateAwaitingConfirm
	g.fields[GroupConfirm] = &[CodeLength]string{}
	return g.emit(OutcomeAwaitingConfirm,
		EffectShowConfirm, EffectDisableEntry, EffectClearConfirm, EffectFocusConfirm)
}

func (g *Guard) confirm(ctx context.Context, code string) (Event, error) {
	if code != g.temporaryPin {
		g.resetTransient()
		g.state = StateNoPinEntry
		effects := append([]Effect{EffectSignalMismatch}, clearAll...)
		effects = append(effects, EffectHideConfirm, EffectRestorePrompt)
		return g.emit(OutcomeMismatch, effects...), nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), g.cost)
	if err != nil {
		return Event{}, fmt.Errorf("failed to hash pin: %w", err)
	}
	if err := g.store.Save(ctx, string(hash)); err != nil {
		if errors.Is(err, ErrCredentialExists) {
			return g.abandonCreation(), nil
		}
		return Event{}, fmt.Errorf("failed to save pin credential: %w", err)
	}
	g.resetTransient()
	return g.unlock(ctx, OutcomeConfirmed, EffectSignalCreated)
}

// abandonCreation は作成途中に別のセッションでPINが保存された場合に、
// 作成を破棄して保存済みPINの照合待ちへ移る。
func (g *Guard) abandonCreation() Event {
	g.resetTransient()
	g.state = StateAwaitingValidation
	effects := append([]Effect{}, clearAll...)
	effects = append(effects, EffectHideConfirm, EffectRestorePrompt)
	return g.emit(OutcomeRejected, effects...)
}

func (g *Guard) validate(ctx context.Context, stored, code string) (Event, error) {
	err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(code))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		g.clearFields()
		g.state = StateAwaitingValidation
		effects := append([]Effect{EffectSignalIncorrect, EffectHapticPulse}, clearAll...)
		return g.emit(OutcomeIncorrect, effects...), nil
	}
	if err != nil {
		return Event{}, fmt.Errorf("failed to compare pin: %w", err)
	}
	g.clearFields()
	return g.unlock(ctx, OutcomeUnlocked, EffectSignalMatch)
}

// unlock は終端状態へ遷移し、解除ハンドラを1回だけ呼び出す。
func (g *Guard) unlock(ctx context.Context, outcome Outcome, signal Effect) (Event, error) {
	g.state = StateUnlocked
	ev := g.emit(outcome, signal, EffectShowMainApp)
	if g.onUnlock != nil {
		if err := g.onUnlock(ctx); err != nil {
			return ev, fmt.Errorf("unlock handler failed: %w", err)
		}
	}
	return ev, nil
}

func (g *Guard) resetTransient() {
	g.temporaryPin = ""
	g.creating = false
	g.clearFields()
}

func (g *Guard) clearFields() {
	g.entryDisabled = false
	g.fields[GroupEntry] = &[CodeLength]string{}
	g.fields[GroupConfirm] = &[CodeLength]string{}
}

// emit はEventを組み立てて購読者へ通知する。呼び出し側でmuを保持していること。
func (g *Guard) emit(outcome Outcome, effects ...Effect) Event {
	ev := Event{Outcome: outcome, State: g.state, Effects: effects}
	if ev.Effects == nil {
		ev.Effects = []Effect{}
	}
	for _, fn := range g.subscribers {
		fn(ev)
	}
	return ev
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
