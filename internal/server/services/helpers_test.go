package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/require"

	"github.com/bashaMendi/ToDo-back/internal/logging"
	"github.com/bashaMendi/ToDo-back/internal/server/config"
	"github.com/bashaMendi/ToDo-back/internal/server/csrf"
	"github.com/bashaMendi/ToDo-back/internal/server/kvstore"
	"github.com/bashaMendi/ToDo-back/internal/server/models"
	"github.com/bashaMendi/ToDo-back/internal/server/querycache"
	"github.com/bashaMendi/ToDo-back/internal/server/repositories/repomanager"
	"github.com/bashaMendi/ToDo-back/internal/server/sessions"
)

const testSchema = `
CREATE TABLE users (
    id              TEXT PRIMARY KEY,
    email           TEXT NOT NULL UNIQUE,
    name            TEXT NOT NULL,
    password_digest TEXT,
    provider        TEXT NOT NULL DEFAULT 'credentials',
    created_at      TIMESTAMP NOT NULL,
    updated_at      TIMESTAMP NOT NULL
);
CREATE TABLE tasks (
    id          TEXT PRIMARY KEY,
    title       TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_by  TEXT NOT NULL,
    created_at  TIMESTAMP NOT NULL,
    updated_by  TEXT,
    updated_at  TIMESTAMP NOT NULL,
    version     BIGINT NOT NULL DEFAULT 1,
    is_deleted  BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE TABLE task_assignees (
    task_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    PRIMARY KEY (task_id, user_id)
);
CREATE TABLE task_stars (
    id         TEXT PRIMARY KEY,
    task_id    TEXT NOT NULL,
    user_id    TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    UNIQUE (task_id, user_id)
);
CREATE TABLE task_audits (
    id       TEXT PRIMARY KEY,
    task_id  TEXT NOT NULL,
    at       TIMESTAMP NOT NULL,
    by_user  TEXT NOT NULL,
    action   TEXT NOT NULL,
    diff     TEXT NOT NULL,
    metadata TEXT
);
`

// capturePublisher records published events for assertions.
type capturePublisher struct {
	mu       sync.Mutex
	global   []models.Event
	personal map[string][]models.Event
}

func newCapturePublisher() *capturePublisher {
	return &capturePublisher{personal: make(map[string][]models.Event)}
}

func (p *capturePublisher) Publish(e models.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.global = append(p.global, e)
}

func (p *capturePublisher) PublishToUser(userID string, e models.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.personal[userID] = append(p.personal[userID], e)
}

func (p *capturePublisher) globalEvents() []models.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Event{}, p.global...)
}

func (p *capturePublisher) personalEvents(userID string) []models.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Event{}, p.personal[userID]...)
}

func (p *capturePublisher) lastGlobal(t *testing.T) models.Event {
	t.Helper()
	events := p.globalEvents()
	require.NotEmpty(t, events)
	return events[len(events)-1]
}

// recordingLogger keeps structured log args so tests can fish out values
// that are only surfaced via logging (like the reset token).
type recordingLogger struct {
	mu      *sync.Mutex
	with    []any
	entries *[]map[string]any
}

func newRecordingLogger() *recordingLogger {
	entries := []map[string]any{}
	return &recordingLogger{mu: &sync.Mutex{}, entries: &entries}
}

func (l *recordingLogger) log(args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry := map[string]any{}
	all := append(append([]any{}, l.with...), args...)
	for i := 0; i+1 < len(all); i += 2 {
		if k, ok := all[i].(string); ok {
			entry[k] = all[i+1]
		}
	}
	*l.entries = append(*l.entries, entry)
}

func (l *recordingLogger) Debug(ctx context.Context, msg string, args ...any) { l.log(args...) }
func (l *recordingLogger) Info(ctx context.Context, msg string, args ...any)  { l.log(args...) }
func (l *recordingLogger) Warn(ctx context.Context, msg string, args ...any)  { l.log(args...) }
func (l *recordingLogger) Error(ctx context.Context, msg string, args ...any) { l.log(args...) }

func (l *recordingLogger) With(args ...any) logging.Logger {
	return &recordingLogger{mu: l.mu, with: append(append([]any{}, l.with...), args...), entries: l.entries}
}

func (l *recordingLogger) loggedValue(key string) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(*l.entries) - 1; i >= 0; i-- {
		if v, ok := (*l.entries)[i][key]; ok {
			return v, true
		}
	}
	return nil, false
}

type testEnv struct {
	db    *sql.DB
	store *kvstore.MemoryStore
	cache *querycache.Cache
	pub   *capturePublisher
	cfg   *config.Config
	users *UserService
	tasks *TaskService
	log   *recordingLogger
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sql.Open("sqlite", "file::memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	store := kvstore.NewMemoryStore(time.Hour)
	t.Cleanup(func() { _ = store.Close() })

	cfg := &config.Config{}
	cfg.LoadDefaults()

	quiet := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	recorder := newRecordingLogger()

	repos := repomanager.NewPostgresRepositoryManager()
	cache := querycache.NewCache(store, cfg.QueryCacheTTL, quiet)
	pub := newCapturePublisher()

	sm := sessions.NewManager(store, cfg.SessionDuration)
	guard := csrf.NewGuard(store, cfg.CSRFTokenDuration)

	return &testEnv{
		db:    db,
		store: store,
		cache: cache,
		pub:   pub,
		cfg:   cfg,
		users: NewUserService(db, repos, sm, guard, store, cfg, recorder),
		tasks: NewTaskService(db, repos, cache, store, pub, cfg, quiet),
		log:   recorder,
	}
}

func actor(id string) models.UserSnapshot {
	return models.UserSnapshot{ID: id, Email: id + "@example.com", Name: id, Provider: models.ProviderCredentials}
}
