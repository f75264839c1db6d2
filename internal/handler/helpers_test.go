package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/gastos/internal/auth"
	"github.com/hitoshi/gastos/internal/finance"
	"github.com/hitoshi/gastos/internal/middleware"
	"github.com/hitoshi/gastos/internal/model"
	"github.com/hitoshi/gastos/internal/offline"
	"github.com/hitoshi/gastos/internal/pin"
	"github.com/hitoshi/gastos/internal/repository"
	"github.com/hitoshi/gastos/internal/security"
	"github.com/hitoshi/gastos/internal/user"
)

// --- モック定義 ---

type mockSessionFinder struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
}

func (m *mockSessionFinder) GetSession(ctx context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

type mockAccountService struct {
	registerFn       func(ctx context.Context, in auth.RegisterInput) (*model.User, error)
	loginFn          func(ctx context.Context, email, password string) (*model.Session, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	getCurrentUserFn func(ctx context.Context, sessionID string) (*model.User, error)
}

func (m *mockAccountService) Register(ctx context.Context, in auth.RegisterInput) (*model.User, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in)
	}
	return &model.User{ID: "user-new", Name: in.Name, Email: in.Email}, nil
}

func (m *mockAccountService) Login(ctx context.Context, email, password string) (*model.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, model.NewInvalidCredentialsError()
}

func (m *mockAccountService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAccountService) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, sessionID)
	}
	return nil, model.NewUserNotFoundError()
}

type mockProfileService struct {
	updateProfileFn func(ctx context.Context, userID string, in user.ProfileInput) (*model.User, error)
	withdrawFn      func(ctx context.Context, userID, sessionID string) error
}

func (m *mockProfileService) UpdateProfile(ctx context.Context, userID string, in user.ProfileInput) (*model.User, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, userID, in)
	}
	return &model.User{ID: userID}, nil
}

func (m *mockProfileService) Withdraw(ctx context.Context, userID, sessionID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID, sessionID)
	}
	return nil
}

type mockPreferencesService struct {
	prefs *model.Preferences
}

func (m *mockPreferencesService) Get(ctx context.Context, userID string) (*model.Preferences, error) {
	if m.prefs == nil {
		return model.DefaultPreferences(userID), nil
	}
	return m.prefs, nil
}

func (m *mockPreferencesService) Update(ctx context.Context, userID string, in user.PreferencesInput) (*model.Preferences, error) {
	prefs, _ := m.Get(ctx, userID)
	if in.Theme != nil {
		if !model.Theme(*in.Theme).Valid() {
			return nil, model.NewInvalidPreferencesError(*in.Theme)
		}
		prefs.Theme = model.Theme(*in.Theme)
	}
	if in.TourDone != nil {
		prefs.TourDone = *in.TourDone
	}
	if in.InstallDismissed != nil {
		prefs.InstallDismissed = *in.InstallDismissed
	}
	m.prefs = prefs
	return prefs, nil
}

type mockPinService struct {
	statusFn func(ctx context.Context, sess *model.Session) (pin.Snapshot, error)
	digitFn  func(ctx context.Context, sess *model.Session, group pin.Group, index int, value string) (pin.Event, error)
	submitFn func(ctx context.Context, sess *model.Session, group pin.Group, code string) (pin.Event, error)
}

func (m *mockPinService) Status(ctx context.Context, sess *model.Session) (pin.Snapshot, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx, sess)
	}
	return pin.Snapshot{State: pin.StateNoPinEntry, Filled: map[pin.Group]int{}}, nil
}

func (m *mockPinService) Digit(ctx context.Context, sess *model.Session, group pin.Group, index int, value string) (pin.Event, error) {
	if m.digitFn != nil {
		return m.digitFn(ctx, sess, group, index, value)
	}
	return pin.Event{Outcome: pin.OutcomeAwaitingMore, State: pin.StateNoPinEntry, Effects: []pin.Effect{}}, nil
}

func (m *mockPinService) Submit(ctx context.Context, sess *model.Session, group pin.Group, code string) (pin.Event, error) {
	if m.submitFn != nil {
		return m.submitFn(ctx, sess, group, code)
	}
	return pin.Event{}, nil
}

type mockWorkerService struct {
	mu       sync.Mutex
	messages []string
	synced   []string
	pushed   []string
	pushedTo []string
	clicked  []string
	pushErr  error
}

func (m *mockWorkerService) Version() string          { return "gastos-mensuales-v1" }
func (m *mockWorkerService) State() offline.Lifecycle { return offline.LifecycleActive }

func (m *mockWorkerService) HandleMessage(ctx context.Context, msg offline.Message, port offline.ReplyPort) error {
	m.mu.Lock()
	m.messages = append(m.messages, msg.Type)
	m.mu.Unlock()
	if msg.Type == offline.MessageGetVersion {
		return port.PostMessage(offline.VersionReply{Version: m.Version()})
	}
	return nil
}

func (m *mockWorkerService) Sync(ctx context.Context, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.synced = append(m.synced, tag)
	return nil
}

func (m *mockWorkerService) Push(ctx context.Context, userID, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pushErr != nil {
		return m.pushErr
	}
	m.pushed = append(m.pushed, body)
	m.pushedTo = append(m.pushedTo, userID)
	return nil
}

func (m *mockWorkerService) NotificationClick(ctx context.Context, userID, action string) (bool, error) {
	m.mu.Lock()
	m.clicked = append(m.clicked, userID)
	m.mu.Unlock()
	return action == "open" || action == "", nil
}

// memRecordRepo は挿入順を保持するインメモリのRecordRepository。ListByUserは新しい順で返す。
type memRecordRepo struct {
	mu      sync.Mutex
	records []*model.Record
}

func (m *memRecordRepo) index(userID string, kind model.RecordKind, id string) int {
	return slices.IndexFunc(m.records, func(r *model.Record) bool {
		return r.ID == id && r.UserID == userID && r.Kind == kind
	})
}

func (m *memRecordRepo) ListByUser(ctx context.Context, userID string, kind model.RecordKind) ([]*model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Record
	for i := len(m.records) - 1; i >= 0; i-- {
		if r := m.records[i]; r.UserID == userID && r.Kind == kind {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRecordRepo) ListByKind(ctx context.Context, kind model.RecordKind) ([]*model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Record
	for _, r := range m.records {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRecordRepo) FindByID(ctx context.Context, userID string, kind model.RecordKind, id string) (*model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.index(userID, kind, id); i >= 0 {
		return m.records[i], nil
	}
	return nil, nil
}

func (m *memRecordRepo) Create(ctx context.Context, record *model.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

func (m *memRecordRepo) Update(ctx context.Context, record *model.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.index(record.UserID, record.Kind, record.ID)
	if i < 0 {
		return repository.ErrRecordNotFound
	}
	m.records[i].Data = record.Data
	return nil
}

func (m *memRecordRepo) CreateWithUpdate(ctx context.Context, create *model.Record, update *model.Record) error {
	if err := m.Update(ctx, update); err != nil {
		return err
	}
	return m.Create(ctx, create)
}

func (m *memRecordRepo) Delete(ctx context.Context, userID string, kind model.RecordKind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.index(userID, kind, id)
	if i < 0 {
		return repository.ErrRecordNotFound
	}
	m.records = slices.Delete(m.records, i, i+1)
	return nil
}

func (m *memRecordRepo) DeleteByUserID(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = slices.DeleteFunc(m.records, func(r *model.Record) bool { return r.UserID == userID })
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// --- テスト用ルーター ---

const (
	testCSRFToken      = "csrf-test-token"
	lockedSessionID    = "session-locked"
	unlockedSessionID  = "session-unlocked"
	testUserID         = "user-test-1"
	otherUserSessionID = "session-other"
)

type testEnv struct {
	router   http.Handler
	sessions *mockSessionFinder
	account  *mockAccountService
	profile  *mockProfileService
	pin      *mockPinService
	worker   *mockWorkerService
	records  *memRecordRepo
}

type stubChecker struct{ err error }

func (s stubChecker) PingContext(ctx context.Context) error { return s.err }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	expires := time.Now().Add(time.Hour)
	env := &testEnv{
		sessions: &mockSessionFinder{sessions: map[string]*model.Session{
			lockedSessionID:    {ID: lockedSessionID, UserID: testUserID, LoggedIn: true, ExpiresAt: expires},
			unlockedSessionID:  {ID: unlockedSessionID, UserID: testUserID, LoggedIn: true, Unlocked: true, ExpiresAt: expires},
			otherUserSessionID: {ID: otherUserSessionID, UserID: "user-other", LoggedIn: true, Unlocked: true, ExpiresAt: expires},
		}},
		account: &mockAccountService{},
		profile: &mockProfileService{},
		pin:     &mockPinService{},
		worker:  &mockWorkerService{},
		records: &memRecordRepo{},
	}

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	env.router = NewRouter(&RouterDeps{
		SessionFinder:      env.sessions,
		CORSAllowedOrigin:  "http://localhost:3000",
		RateLimiter:        rl,
		Logger:             discardLogger(),
		HealthChecker:      stubChecker{},
		MetricsHandler:     http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, "# metrics") }),
		AccountService:     env.account,
		ProfileService:     env.profile,
		PreferencesService: &mockPreferencesService{},
		CookieConfig:       CookieConfig{SessionMaxAge: 86400},
		PinService:         env.pin,
		FinanceService:     finance.NewService(env.records, security.NewTextSanitizer()),
		WorkerService:      env.worker,
		WorkerSocket: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, _ := middleware.UserIDFromContext(r.Context())
			io.WriteString(w, "socket "+userID)
		}),
		ShellHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			io.WriteString(w, "<title>shell "+r.URL.Path+"</title>")
		}),
	})
	return env
}

// do はCSRFトークンと（指定があれば）セッションCookieを付けてリクエストを送る。
func (e *testEnv) do(t *testing.T, method, path, sessionID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = strings.NewReader(b)
		default:
			data, err := json.Marshal(b)
			if err != nil {
				t.Fatalf("failed to marshal body: %v", err)
			}
			reader = strings.NewReader(string(data))
		}
	}
	req := httptest.NewRequest(method, path, reader)
	req.AddCookie(&http.Cookie{Name: "gastos_csrf", Value: testCSRFToken})
	req.Header.Set("X-CSRF-Token", testCSRFToken)
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: sessionID})
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v\nbody: %s", err, w.Body.String())
	}
	return v
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[middleware.ErrorResponseBody](t, w).Code
}
