package migration

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentbase/config"
	"github.com/BaSui01/agentbase/docstore"
	"github.com/BaSui01/agentbase/internal/database"
	"github.com/BaSui01/agentbase/memory"
)

func TestParseDatabaseType(t *testing.T) {
	for in, want := range map[string]DatabaseType{
		"postgres":   DatabaseTypePostgres,
		"postgresql": DatabaseTypePostgres,
		"pg":         DatabaseTypePostgres,
		"POSTGRES":   DatabaseTypePostgres,
		"mysql":      DatabaseTypeMySQL,
		"mariadb":    DatabaseTypeMySQL,
		"sqlite":     DatabaseTypeSQLite,
		"sqlite3":    DatabaseTypeSQLite,
	} {
		got, err := ParseDatabaseType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseDatabaseType("oracle")
	assert.EqualError(t, err, "unsupported database type: oracle")
}

func TestBuildDatabaseURL(t *testing.T) {
	assert.Equal(t, "postgres://agent:secret@db:5432/agentbase?sslmode=disable",
		BuildDatabaseURL(DatabaseTypePostgres, "db", 5432, "agentbase", "agent", "secret", "disable"))
	assert.Equal(t, "postgres://agent:secret@db:5432/agentbase?sslmode=require",
		BuildDatabaseURL(DatabaseTypePostgres, "db", 5432, "agentbase", "agent", "secret", ""))
	assert.Equal(t, "agent:secret@tcp(db:3306)/agentbase?parseTime=true&multiStatements=true",
		BuildDatabaseURL(DatabaseTypeMySQL, "db", 3306, "agentbase", "agent", "secret", "ignored"))
	assert.Equal(t, "file:./data/agentbase.db?mode=rwc&_pragma=foreign_keys(1)",
		BuildDatabaseURL(DatabaseTypeSQLite, "", 0, "./data/agentbase.db", "", "", ""))
	assert.Empty(t, BuildDatabaseURL("oracle", "db", 1521, "x", "", "", ""))
}

func TestGetMigrationsPath(t *testing.T) {
	assert.Equal(t, filepath.Join("migrations", "sqlite"), GetMigrationsPath(DatabaseTypeSQLite))
	assert.Equal(t, "migrations/mysql", dialectDir(DatabaseTypeMySQL))
}

func TestNewMigrator_InvalidConfig(t *testing.T) {
	_, err := NewMigrator(nil)
	assert.EqualError(t, err, "config is required")

	_, err = NewMigrator(&Config{DatabaseType: DatabaseTypeSQLite})
	assert.EqualError(t, err, "database URL is required")

	_, err = NewMigrator(&Config{DatabaseType: "oracle", DatabaseURL: "oracle://x"})
	assert.EqualError(t, err, "unsupported database type: oracle")
}

func TestEmbeddedMigrations_AllDialects(t *testing.T) {
	for _, dt := range []DatabaseType{DatabaseTypePostgres, DatabaseTypeMySQL, DatabaseTypeSQLite} {
		m := &DefaultMigrator{cfg: Config{DatabaseType: dt}}
		files, err := m.available()
		require.NoError(t, err, dt)
		require.Len(t, files, 2, dt)
		assert.Equal(t, migrationFile{version: 1, name: "create_documents"}, files[0])
		assert.Equal(t, migrationFile{version: 2, name: "create_agent_memory"}, files[1])
	}
}

func newSQLiteMigrator(t *testing.T) *DefaultMigrator {
	t.Helper()
	if testing.Short() {
		t.Skip("sqlite migration test")
	}
	dsn := BuildDatabaseURL(DatabaseTypeSQLite, "", 0, filepath.Join(t.TempDir(), "agentbase.db"), "", "", "")
	m, err := NewMigratorFromURL("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestMigrator_SQLiteLifecycle(t *testing.T) {
	m := newSQLiteMigrator(t)
	ctx := context.Background()

	v, dirty, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.False(t, dirty)

	require.NoError(t, m.Up(ctx))
	// 再次 Up 没有待执行的迁移，不报错
	require.NoError(t, m.Up(ctx))

	info, err := m.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, &MigrationInfo{CurrentVersion: 2, TotalMigrations: 2, AppliedMigrations: 2}, info)

	require.NoError(t, m.Down(ctx))
	statuses, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].Applied)
	assert.False(t, statuses[1].Applied)

	require.NoError(t, m.Steps(ctx, 1))
	require.NoError(t, m.Goto(ctx, 1))
	v, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)

	require.NoError(t, m.DownAll(ctx))
	v, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestMigrator_CLIAgainstSQLite(t *testing.T) {
	m := newSQLiteMigrator(t)
	cli := NewCLI(m)
	var out bytes.Buffer
	cli.SetOutput(&out)
	ctx := context.Background()

	require.NoError(t, cli.RunVersion(ctx))
	assert.Contains(t, out.String(), "No migrations applied yet.")

	out.Reset()
	require.NoError(t, cli.RunUp(ctx))
	assert.Contains(t, out.String(), "Up to date. Schema version: 2")

	out.Reset()
	require.NoError(t, cli.RunStatus(ctx))
	assert.Contains(t, out.String(), "create_agent_memory")
	assert.Contains(t, out.String(), "2 total, 2 applied, 0 pending")
}

func TestMigrator_CanceledContext(t *testing.T) {
	m := newSQLiteMigrator(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Up(ctx), context.Canceled)

	v, _, err := m.Version(context.Background())
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestMigrator_SchemaMatchesModels(t *testing.T) {
	if testing.Short() {
		t.Skip("sqlite migration test")
	}
	ctx := context.Background()
	dbCfg := config.DatabaseConfig{Driver: "sqlite", Name: filepath.Join(t.TempDir(), "data", "agentbase.db")}

	m, err := NewMigratorFromDatabaseConfig(dbCfg)
	require.NoError(t, err)
	require.NoError(t, m.Up(ctx))
	require.NoError(t, m.Close())

	// 迁移建出的表可以直接被 SQL 后端使用，无需 AutoMigrate
	pm, err := database.Open(dbCfg, zap.NewNop())
	require.NoError(t, err)
	defer pm.Close()

	docs, err := docstore.NewSQLStore(pm.DB(), false, zap.NewNop())
	require.NoError(t, err)
	id, err := docs.Store(ctx, "migrated content", map[string]any{"k": "v"}, "")
	require.NoError(t, err)
	got, err := docs.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "migrated content", got.Content)

	mem, err := memory.NewSQLBackend(pm.DB(), false, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, mem.AppendMessage(ctx, "s1", memory.NewMessage("user", "hi"), "general", "u1"))
	msgs, err := mem.LoadSession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content)
}

func TestNewMigratorFromDatabaseConfig_Invalid(t *testing.T) {
	_, err := NewMigratorFromDatabaseConfig(config.DatabaseConfig{Driver: "oracle"})
	assert.ErrorContains(t, err, "invalid database type")

	_, err = NewMigratorFromDatabaseConfig(config.DatabaseConfig{Driver: "sqlite"})
	assert.EqualError(t, err, "sqlite database path is required")

	_, err = NewMigratorFromConfig(nil)
	assert.EqualError(t, err, "config is required")
}
