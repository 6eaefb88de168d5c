package migration

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/coldorg/coldbot/backend/internal/database"
)

//go:embed sql/*.sql
var embedded embed.FS

// Embedded returns the migrations shipped with the binary.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "sql")
	if err != nil {
		panic(err)
	}
	return sub
}

// schemaMigration records an applied SQL file.
type schemaMigration struct {
	Name      string    `gorm:"primaryKey"`
	AppliedAt time.Time `gorm:"not null"`
}

func (schemaMigration) TableName() string { return "schema_migrations" }

type Runner struct {
	db     *gorm.DB
	files  fs.FS
	logger *logrus.Logger
}

func NewRunner(db *gorm.DB, files fs.FS, logger *logrus.Logger) *Runner {
	return &Runner{
		db:     db,
		files:  files,
		logger: logger,
	}
}

// RunMigrations executes all pending migrations
func (r *Runner) RunMigrations() error {
	r.logger.Info("Starting database migrations...")

	// First run GORM auto-migrations
	if err := database.AutoMigrate(r.db); err != nil {
		return fmt.Errorf("GORM auto-migration failed: %w", err)
	}

	// Then run SQL migrations
	if err := r.runSQLMigrations(); err != nil {
		return fmt.Errorf("SQL migrations failed: %w", err)
	}

	r.logger.Info("Database migrations completed successfully")
	return nil
}

func (r *Runner) runSQLMigrations() error {
	if err := r.db.AutoMigrate(&schemaMigration{}); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	names, err := fs.Glob(r.files, "*.sql")
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(names) // Ensure migrations run in order

	var applied []schemaMigration
	if err := r.db.Find(&applied).Error; err != nil {
		return fmt.Errorf("failed to load applied migrations: %w", err)
	}
	done := make(map[string]bool, len(applied))
	for _, m := range applied {
		done[m.Name] = true
	}

	for _, name := range names {
		if done[name] {
			r.logger.WithField("file", name).Debug("Migration already applied")
			continue
		}
		if err := r.runSQLFile(name); err != nil {
			return fmt.Errorf("failed to run migration %s: %w", name, err)
		}
		r.logger.WithField("file", name).Info("Migration executed successfully")
	}

	return nil
}

func (r *Runner) runSQLFile(name string) error {
	content, err := fs.ReadFile(r.files, name)
	if err != nil {
		return err
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		for i, stmt := range statements(string(content)) {
			r.logger.WithFields(logrus.Fields{
				"file":      name,
				"statement": i + 1,
			}).Debug("Executing SQL statement")

			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("failed to execute statement %d: %w", i+1, err)
			}
		}
		return tx.Create(&schemaMigration{Name: name, AppliedAt: time.Now().UTC()}).Error
	})
}

// statements splits a SQL file on semicolons. Files containing
// dollar-quoted bodies are executed as a single statement.
func statements(sql string) []string {
	sql = removeComments(sql)
	if strings.Contains(sql, "$$") {
		if s := strings.TrimSpace(sql); s != "" {
			return []string{s}
		}
		return nil
	}

	var result []string
	for _, stmt := range strings.Split(sql, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt != "" {
			result = append(result, stmt)
		}
	}
	return result
}

func removeComments(sql string) string {
	lines := strings.Split(sql, "\n")
	var result []string

	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		result = append(result, line)
	}

	return strings.Join(result, "\n")
}
