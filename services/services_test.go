package services

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/socialbbs/access"
	"github.com/cppla/socialbbs/models"
)

type recordingQueue struct {
	mu    sync.Mutex
	posts []uint
}

func (q *recordingQueue) Enqueue(_ context.Context, p models.Post) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.posts = append(q.posts, p.ID)
	return nil
}

func (q *recordingQueue) ids() []uint {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]uint(nil), q.posts...)
}

type recordingProfiles struct {
	mu        sync.Mutex
	forgotten []uint
}

func (r *recordingProfiles) ForgetMember(_ context.Context, m models.Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forgotten = append(r.forgotten, m.ID)
}

func (r *recordingProfiles) ids() []uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint(nil), r.forgotten...)
}

type testEnv struct {
	core  *Core
	db    *gorm.DB
	admin *models.Member
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	return newTestEnvWith(t, DefaultSettings(), opts...)
}

func newTestEnvWith(t *testing.T, settings Settings, opts ...Option) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.sqlite")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))

	admin := &models.Member{Username: "admin"}
	require.NoError(t, db.Create(admin).Error)
	settings.SystemAdminID = admin.ID

	return &testEnv{core: NewCore(db, settings, opts...), db: db, admin: admin}
}

func (e *testEnv) member(t *testing.T, name string, balance int64) *models.Member {
	t.Helper()
	m := &models.Member{Username: name, VotesToGive: balance}
	require.NoError(t, e.db.Create(m).Error)
	return m
}

func (e *testEnv) reloadMember(t *testing.T, id uint) models.Member {
	t.Helper()
	var m models.Member
	require.NoError(t, e.db.First(&m, id).Error)
	return m
}

func (e *testEnv) reloadPost(t *testing.T, id uint) models.Post {
	t.Helper()
	var p models.Post
	require.NoError(t, e.db.First(&p, id).Error)
	return p
}

// rawPost inserts a public top-level post bypassing the thread manager.
func (e *testEnv) rawPost(t *testing.T, p models.Post) models.Post {
	t.Helper()
	p.IsPublic = true
	if p.Content == "" {
		p.Content = "post"
	}
	require.NoError(t, e.db.Create(&p).Error)
	if p.ThreadID == 0 {
		require.NoError(t, e.db.Model(&p).UpdateColumn("thread_id", p.ID).Error)
		p.ThreadID = p.ID
	}
	return p
}

func actorOf(m *models.Member) access.Actor {
	return access.Actor{ID: m.ID, Username: m.Username}
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
