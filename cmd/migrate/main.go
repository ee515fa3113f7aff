package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/freightmarket-backend/pkg/config"
	"github.com/angelmondragon/freightmarket-backend/pkg/db"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
	"github.com/angelmondragon/freightmarket-backend/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	dialect string
	name    string
	version string
}

func main() {
	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "up|down|status|version|create|validate")
	flag.StringVar(&opts.dir, "dir", "", "read migrations from this directory instead of the bundled set")
	flag.StringVar(&opts.dialect, "dialect", migrate.DefaultDialect, "goose dialect")
	flag.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	// File commands work on a checkout and need neither config nor a database.
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			fail("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(dirOrDefault(opts.dir), opts.name)
		if err != nil {
			fail("create migration: %v", err)
		}
		fmt.Println("created", path)
		return
	case "validate":
		if err := migrate.ValidateDir(dirOrDefault(opts.dir)); err != nil {
			fail("validate: %v", err)
		}
		fmt.Println("migrations ok")
		return
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fail("load config: %v", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		fail("SQL migrations target postgres; sqlite schemas are built from the models")
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": opts.cmd})

	if err := run(ctx, cfg, logg, opts); err != nil {
		logg.Error(ctx, "migrate failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, opts options) error {
	client, err := db.New(ctx, cfg.DB, false, logg)
	if err != nil {
		return err
	}
	defer client.Close()

	sqlDB, err := client.DB().DB()
	if err != nil {
		return err
	}
	source, err := migrate.Source(opts.dir)
	if err != nil {
		return err
	}
	migrator, err := migrate.New(sqlDB, opts.dialect, source)
	if err != nil {
		return err
	}

	var steps []migrate.Step
	switch opts.cmd {
	case "up":
		steps, err = migrator.Up(ctx)
	case "down":
		steps, err = migrator.Down(ctx)
	case "version":
		target, perr := strconv.ParseInt(opts.version, 10, 64)
		if perr != nil {
			return fmt.Errorf("invalid -version %q: %w", opts.version, perr)
		}
		steps, err = migrator.To(ctx, target)
	case "status":
		return printStatus(ctx, migrator)
	default:
		return fmt.Errorf("unknown -cmd %q", opts.cmd)
	}
	for _, s := range steps {
		fmt.Printf("%-4s %d %s (%s)\n", s.Direction, s.Version, s.Path, s.Took)
	}
	return err
}

func printStatus(ctx context.Context, m *migrate.Migrator) error {
	current, err := m.Version(ctx)
	if err != nil {
		return err
	}
	pending, err := m.Pending(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("current version: %d\n", current)
	for _, v := range pending {
		fmt.Printf("pending: %d\n", v)
	}
	return nil
}

func dirOrDefault(dir string) string {
	if dir == "" {
		return migrate.DefaultDir
	}
	return dir
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
