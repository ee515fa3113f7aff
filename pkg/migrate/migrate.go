package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/pressly/goose/v3"
)

const (
	// DefaultDir is where new migration files are created from the repo root.
	DefaultDir     = "pkg/migrate/migrations"
	DefaultDialect = "postgres"
)

//go:embed migrations/*.sql
var bundled embed.FS

// Source returns the migrations compiled into the binary, or the files under
// dir when dir is set.
func Source(dir string) (fs.FS, error) {
	if dir != "" {
		return os.DirFS(dir), nil
	}
	return fs.Sub(bundled, "migrations")
}

// Step is one applied or rolled back migration.
type Step struct {
	Version   int64
	Path      string
	Direction string
	Took      time.Duration
}

// Migrator applies SQL migrations from an fs.FS through a goose provider.
type Migrator struct {
	provider *goose.Provider
}

func New(db *sql.DB, dialect string, fsys fs.FS) (*Migrator, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if dialect == "" {
		dialect = DefaultDialect
	}
	provider, err := goose.NewProvider(goose.Dialect(dialect), db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Migrator{provider: provider}, nil
}

func (m *Migrator) Up(ctx context.Context) ([]Step, error) {
	results, err := m.provider.Up(ctx)
	return steps(results...), err
}

// Down rolls back the newest applied migration.
func (m *Migrator) Down(ctx context.Context) ([]Step, error) {
	result, err := m.provider.Down(ctx)
	if result == nil {
		return nil, err
	}
	return steps(result), err
}

// To moves the schema up or down until version is the newest applied one.
func (m *Migrator) To(ctx context.Context, version int64) ([]Step, error) {
	current, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("current version: %w", err)
	}
	var results []*goose.MigrationResult
	switch {
	case version > current:
		results, err = m.provider.UpTo(ctx, version)
	case version < current:
		results, err = m.provider.DownTo(ctx, version)
	}
	return steps(results...), err
}

func (m *Migrator) Version(ctx context.Context) (int64, error) {
	return m.provider.GetDBVersion(ctx)
}

// Pending lists versions known to the source but not yet applied.
func (m *Migrator) Pending(ctx context.Context) ([]int64, error) {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return nil, err
	}
	var out []int64
	for _, st := range statuses {
		if st.State == goose.StatePending {
			out = append(out, st.Source.Version)
		}
	}
	return out, nil
}

func steps(results ...*goose.MigrationResult) []Step {
	out := make([]Step, 0, len(results))
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		out = append(out, Step{
			Version:   r.Source.Version,
			Path:      r.Source.Path,
			Direction: r.Direction,
			Took:      r.Duration,
		})
	}
	return out
}
