package testutil

import (
	"testing"

	"github.com/google/uuid"
	"github.com/kasuganosora/questboard/cache"
	"github.com/kasuganosora/questboard/config"
	dbsqlite "github.com/kasuganosora/questboard/db/sqlite"
	"github.com/kasuganosora/questboard/model"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SetupTestDB creates a private in-memory SQLite DB and runs AutoMigrate.
// Each call gets its own database name so parallel tests never share rows.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := dbsqlite.OpenMemory("test_" + uuid.NewString())
	require.NoError(t, err, "SetupTestDB: Open")
	require.NoError(t, model.AutoMigrate(db), "SetupTestDB: AutoMigrate")
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// SetupTestCache creates LocalCache and LocalPubSub (no Redis required).
func SetupTestCache(t *testing.T) (cache.Cache, cache.PubSub) {
	t.Helper()
	cfg := config.CacheConfig{} // empty RedisAddr → LocalCache
	c, err := cache.NewCache(cfg)
	require.NoError(t, err, "SetupTestCache: NewCache")
	ps, err := cache.NewPubSub(cfg)
	require.NoError(t, err, "SetupTestCache: NewPubSub")
	return c, ps
}

// NopLogger returns a development logger for tests.
func NopLogger(t *testing.T) *zap.Logger {
	t.Helper()
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	return logger
}

// CreateCharacter inserts a character with the given class and level.
func CreateCharacter(t *testing.T, db *gorm.DB, name, class string, level int) *model.Character {
	t.Helper()
	ch := &model.Character{Name: name, Class: class, Level: level}
	require.NoError(t, db.Create(ch).Error)
	return ch
}
