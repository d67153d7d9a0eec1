package database

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"testing/fstest"

	"bookswap/internal/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "schema.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestConfigurePool(t *testing.T) {
	db := openSQLite(t)

	cfg := &config.Config{
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           5,
		DBConnMaxLifetimeMinutes: 15,
	}
	require.NoError(t, configurePool(db, cfg))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 10, sqlDB.Stats().MaxOpenConnections)
}

func TestPrimaryDSN(t *testing.T) {
	dsn := PrimaryDSN(&config.Config{
		DBHost: "db", DBPort: "5432", DBUser: "u", DBPassword: "p", DBName: "bookswap",
	})
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=bookswap sslmode=disable", dsn)
}

func TestPlanFor(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		env      string
		allow    bool
		wantSQL  bool
		wantAuto bool
		wantErr  bool
	}{
		{"hybrid development", "", "development", false, true, true, false},
		{"hybrid production", "hybrid", "production", false, true, false, false},
		{"sql only", "sql", "development", false, true, false, false},
		{"auto development", "auto", "development", false, false, true, false},
		{"auto production refused", "auto", "production", false, false, false, true},
		{"auto production allowed", "auto", "staging", true, false, true, false},
		{"unknown mode", "yolo", "development", false, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := planFor(&config.Config{
				DBSchemaMode:                  tt.mode,
				Env:                           tt.env,
				DBAutoMigrateAllowDestructive: tt.allow,
			})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, p.sql)
			assert.Equal(t, tt.wantAuto, p.autoMigrate)
		})
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	all, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, all)
	assert.Equal(t, 1, all[0].Version)
	assert.Equal(t, "000001_init", all[0].ID())
	assert.Contains(t, all[0].Up, "CREATE TABLE IF NOT EXISTS swap_requests")
	assert.Contains(t, all[0].Down, "DROP TABLE IF EXISTS swap_requests")
	assert.Len(t, all[0].Checksum(), 64)
}

func TestLoadMigrations(t *testing.T) {
	t.Run("sorted by version", func(t *testing.T) {
		got, err := LoadMigrations(fstest.MapFS{
			"migrations/000002_b.up.sql":   {Data: []byte("B")},
			"migrations/000002_b.down.sql": {Data: []byte("-B")},
			"migrations/000001_a.up.sql":   {Data: []byte("A")},
			"migrations/000001_a.down.sql": {Data: []byte("-A")},
		})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "000001_a", got[0].ID())
		assert.Equal(t, "-B", got[1].Down)
	})

	t.Run("missing down script", func(t *testing.T) {
		_, err := LoadMigrations(fstest.MapFS{
			"migrations/000001_a.up.sql": {Data: []byte("A")},
		})
		assert.ErrorContains(t, err, "no down script")
	})

	t.Run("bad name", func(t *testing.T) {
		_, err := LoadMigrations(fstest.MapFS{
			"migrations/1_A.up.sql":   {Data: []byte("A")},
			"migrations/1_A.down.sql": {Data: []byte("-A")},
		})
		assert.ErrorContains(t, err, "name must look like")
	})
}

func TestMigratorUpDown(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	m, err := NewMigrator(db)
	require.NoError(t, err)

	n, err := m.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = m.Up(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "re-running is a no-op")

	applied, err := m.Applied(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, applied)
	assert.True(t, db.Migrator().HasTable("swap_requests"))

	status, err := GetSchemaStatus(ctx, db, &config.Config{DBSchemaMode: "sql", Env: "development"})
	require.NoError(t, err)
	assert.Empty(t, status.PendingMigrations)

	require.NoError(t, m.Down(ctx, 1))
	assert.False(t, db.Migrator().HasTable("swap_requests"))
	assert.ErrorContains(t, m.Down(ctx, 1), "not applied")
	assert.ErrorContains(t, m.Down(ctx, 999), "does not exist")
}

func TestMigratorRejectsDrift(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	m, err := NewMigrator(db)
	require.NoError(t, err)
	_, err = m.Up(ctx)
	require.NoError(t, err)

	require.NoError(t, db.Model(&schemaMigration{}).Where("version = ?", 1).
		Update("checksum", "stale").Error)
	_, err = m.Pending(ctx)
	assert.ErrorContains(t, err, "000001_init was edited")

	require.NoError(t, db.Create(&schemaMigration{Version: 42, Name: "ghost"}).Error)
	_, err = m.Up(ctx)
	assert.ErrorContains(t, err, "000042 is applied but not embedded")
}

func TestAutoMigrateCreatesConstraintIndexes(t *testing.T) {
	db := openSQLite(t)
	require.NoError(t, AutoMigrate(db))

	require.NoError(t, db.Exec("INSERT INTO swap_requests (requester_id, owner_id, book_id, status) VALUES (1, 2, 3, 'pending')").Error)
	err := db.Exec("INSERT INTO swap_requests (requester_id, owner_id, book_id, status) VALUES (1, 2, 3, 'pending')").Error
	assert.Error(t, err, "second pending request for the same requester and book")

	require.NoError(t, db.Exec("INSERT INTO swap_requests (requester_id, owner_id, book_id, status) VALUES (1, 2, 3, 'rejected')").Error)
}

func TestCreateIfMissing(t *testing.T) {
	ctx := context.Background()
	existsQuery := regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)")

	t.Run("already exists", func(t *testing.T) {
		conn, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer conn.Close()

		mock.ExpectQuery(existsQuery).WithArgs("bookswap").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		created, err := createIfMissing(ctx, conn, "bookswap")
		require.NoError(t, err)
		assert.False(t, created)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("creates quoted database", func(t *testing.T) {
		conn, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer conn.Close()

		mock.ExpectQuery(existsQuery).WithArgs("book-swap").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectExec(regexp.QuoteMeta(`CREATE DATABASE "book-swap"`)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		created, err := createIfMissing(ctx, conn, "book-swap")
		require.NoError(t, err)
		assert.True(t, created)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
