package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"bookswap/internal/middleware"

	"gorm.io/gorm"
)

// schemaMigration is one row of the applied-migrations ledger.
type schemaMigration struct {
	Version   int    `gorm:"primaryKey;autoIncrement:false"`
	Name      string `gorm:"size:255;not null"`
	Checksum  string `gorm:"size:64"`
	AppliedAt time.Time
}

func (schemaMigration) TableName() string { return "schema_migrations" }

// Migrator applies and reverts the SQL migrations against one database.
type Migrator struct {
	db  *gorm.DB
	set []Migration
}

// NewMigrator returns a Migrator over the embedded migration set.
func NewMigrator(db *gorm.DB) (*Migrator, error) {
	set, err := Migrations()
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	return &Migrator{db: db, set: set}, nil
}

func (m *Migrator) find(version int) (Migration, bool) {
	for _, mig := range m.set {
		if mig.Version == version {
			return mig, true
		}
	}
	return Migration{}, false
}

func (m *Migrator) ledger(ctx context.Context) (map[int]schemaMigration, error) {
	rows := map[int]schemaMigration{}
	if !m.db.Migrator().HasTable(&schemaMigration{}) {
		return rows, nil
	}

	var list []schemaMigration
	if err := m.db.WithContext(ctx).Order("version").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	for _, row := range list {
		rows[row.Version] = row
	}
	return rows, nil
}

// verify rejects a ledger that references unknown versions or edited scripts.
func (m *Migrator) verify(rows map[int]schemaMigration) error {
	var problems []string
	for version, row := range rows {
		mig, ok := m.find(version)
		if !ok {
			problems = append(problems, fmt.Sprintf("%06d is applied but not embedded", version))
			continue
		}
		if row.Checksum != "" && row.Checksum != mig.Checksum() {
			problems = append(problems, fmt.Sprintf("%s was edited after it was applied", mig.ID()))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("schema_migrations out of sync: %s", strings.Join(problems, "; "))
}

// Applied returns the applied versions in ascending order.
func (m *Migrator) Applied(ctx context.Context) ([]int, error) {
	rows, err := m.ledger(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, len(rows))
	for _, mig := range m.set {
		if _, ok := rows[mig.Version]; ok {
			out = append(out, mig.Version)
		}
	}
	return out, nil
}

// Pending returns the migrations not yet applied.
func (m *Migrator) Pending(ctx context.Context) ([]Migration, error) {
	rows, err := m.ledger(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.verify(rows); err != nil {
		return nil, err
	}

	var out []Migration
	for _, mig := range m.set {
		if _, ok := rows[mig.Version]; !ok {
			out = append(out, mig)
		}
	}
	return out, nil
}

// Up applies every pending migration, each in its own transaction, and
// reports how many ran.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	if err := m.db.WithContext(ctx).AutoMigrate(&schemaMigration{}); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	pending, err := m.Pending(ctx)
	if err != nil {
		return 0, err
	}

	for i, mig := range pending {
		start := time.Now()
		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(mig.Up).Error; err != nil {
				return err
			}
			return tx.Create(&schemaMigration{
				Version:   mig.Version,
				Name:      mig.Name,
				Checksum:  mig.Checksum(),
				AppliedAt: time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return i, fmt.Errorf("apply %s: %w", mig.ID(), err)
		}
		middleware.Logger.Info("Migration applied",
			slog.String("migration", mig.ID()),
			slog.Duration("took", time.Since(start)))
	}
	return len(pending), nil
}

// Down reverts one applied migration.
func (m *Migrator) Down(ctx context.Context, version int) error {
	mig, ok := m.find(version)
	if !ok {
		return fmt.Errorf("migration %06d does not exist", version)
	}
	rows, err := m.ledger(ctx)
	if err != nil {
		return err
	}
	if _, applied := rows[version]; !applied {
		return fmt.Errorf("migration %s is not applied", mig.ID())
	}
	if err := m.verify(rows); err != nil {
		return err
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(mig.Down).Error; err != nil {
			return err
		}
		return tx.Delete(&schemaMigration{}, "version = ?", version).Error
	})
	if err != nil {
		return fmt.Errorf("revert %s: %w", mig.ID(), err)
	}
	middleware.Logger.Info("Migration reverted", slog.String("migration", mig.ID()))
	return nil
}
