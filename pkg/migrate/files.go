package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var (
	fileNameRe   = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)
	unsafeNameRe = regexp.MustCompile(`[^a-z0-9]+`)
)

// File is one goose SQL migration on disk.
type File struct {
	Version string
	Name    string
	Path    string
}

// List returns the SQL migrations in dir ordered by version. Badly named
// files and duplicate versions are errors.
func List(dir string) ([]File, error) {
	if dir == "" {
		return nil, fmt.Errorf("migrations dir required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir %q: %w", dir, err)
	}

	byVersion := make(map[string]File)
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		match := fileNameRe.FindStringSubmatch(entry.Name())
		if match == nil {
			return nil, fmt.Errorf("migration %q must be named <YYYYMMDDHHMMSS>_<snake_name>.sql", entry.Name())
		}
		if _, err := time.Parse(versionLayout, match[1]); err != nil {
			return nil, fmt.Errorf("migration %q has an impossible timestamp", entry.Name())
		}
		if prev, dup := byVersion[match[1]]; dup {
			return nil, fmt.Errorf("migrations %q and %q share version %s", prev.Path, entry.Name(), match[1])
		}
		byVersion[match[1]] = File{Version: match[1], Name: match[2], Path: filepath.Join(dir, entry.Name())}
	}

	files := make([]File, 0, len(byVersion))
	for _, f := range byVersion {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Version < files[j].Version })
	return files, nil
}

// ValidateDir checks names and that every file has an Up section followed
// by a Down section.
func ValidateDir(dir string) error {
	files, err := List(dir)
	if err != nil {
		return err
	}
	for _, f := range files {
		body, err := os.ReadFile(f.Path)
		if err != nil {
			return fmt.Errorf("read migration %q: %w", f.Path, err)
		}
		text := string(body)
		up := strings.Index(text, "-- +goose Up")
		down := strings.Index(text, "-- +goose Down")
		switch {
		case up < 0:
			return fmt.Errorf("migration %q has no goose Up section", f.Path)
		case down < 0:
			return fmt.Errorf("migration %q has no goose Down section", f.Path)
		case down < up:
			return fmt.Errorf("migration %q declares Down before Up", f.Path)
		}
	}
	return nil
}

// CreateSQLMigration writes an empty goose migration named after name and
// returns its path. The version is the current UTC second, bumped past the
// newest existing migration so files always sort after what is there.
func CreateSQLMigration(dir, name string) (string, error) {
	slug := strings.Trim(unsafeNameRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_"), "_")
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create migrations dir %q: %w", dir, err)
	}
	existing, err := List(dir)
	if err != nil {
		return "", err
	}

	version := time.Now().UTC().Truncate(time.Second)
	if n := len(existing); n > 0 {
		latest, _ := time.Parse(versionLayout, existing[n-1].Version)
		if !version.After(latest) {
			version = latest.Add(time.Second)
		}
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", version.Format(versionLayout), slug))
	body := fmt.Sprintf("-- +goose Up\n-- +goose StatementBegin\n-- %s\n-- +goose StatementEnd\n\n-- +goose Down\n-- +goose StatementBegin\n-- undo %s\n-- +goose StatementEnd\n", slug, slug)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return "", fmt.Errorf("write migration %q: %w", path, err)
	}
	return path, nil
}
