package docstore

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 每个连接都是独立的内存库
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestSQLStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T, c *clock) Store {
		s, err := NewSQLStore(setupTestDB(t), true, zap.NewNop())
		require.NoError(t, err)
		s.now = c.now
		return s
	})
}

func TestNewSQLStore_NilDB(t *testing.T) {
	_, err := NewSQLStore(nil, true, nil)
	require.Error(t, err)
}
