package database

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// appliedMigration is one row of the migrations tracking table
type appliedMigration struct {
	bun.BaseModel `bun:"table:bun_schema_migrations"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Version   string    `bun:"version,notnull,unique"`
	AppliedAt time.Time `bun:"applied_at,notnull,default:current_timestamp"`
}

type migration struct {
	version string
	name    string
	up      func(context.Context, *bun.DB) error
}

var migrations = []migration{
	{"001", "create_documents_table", init001CreateDocumentsTable},
	{"002", "create_jobs_table", init002CreateJobsTable},
}

// runMigrations runs all Bun migrations
func runMigrations(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().
		Model((*appliedMigration)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var applied []appliedMigration
	err = db.NewSelect().
		Model(&applied).
		Scan(ctx)
	if err != nil {
		return fmt.Errorf("failed to check applied migrations: %w", err)
	}

	appliedMap := make(map[string]bool)
	for _, m := range applied {
		appliedMap[m.Version] = true
	}

	for _, m := range migrations {
		if appliedMap[m.version] {
			continue
		}

		Logger.Info("Running migration", "version", m.version, "name", m.name)
		if err := m.up(ctx, db); err != nil {
			return fmt.Errorf("failed to run migration %s: %w", m.version, err)
		}

		_, err = db.NewInsert().
			Model(&appliedMigration{Version: m.version, AppliedAt: time.Now()}).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to mark migration %s as applied: %w", m.version, err)
		}
	}

	Logger.Info("All migrations completed successfully")
	return nil
}

// Migration 001: documents table
func init001CreateDocumentsTable(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().
		Model((*BunDocument)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}

	_, err = db.NewCreateIndex().
		Model((*BunDocument)(nil)).
		Index("idx_documents_hash").
		Column("hash").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create hash index: %w", err)
	}

	_, err = db.NewCreateIndex().
		Model((*BunDocument)(nil)).
		Index("idx_documents_created_at").
		Column("created_at").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create created_at index: %w", err)
	}
	return nil
}

// Migration 002: jobs table
func init002CreateJobsTable(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().
		Model((*BunJob)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create jobs table: %w", err)
	}

	for _, column := range []string{"status", "session", "created_at"} {
		_, err = db.NewCreateIndex().
			Model((*BunJob)(nil)).
			Index("idx_jobs_" + column).
			Column(column).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create jobs %s index: %w", column, err)
		}
	}
	return nil
}
