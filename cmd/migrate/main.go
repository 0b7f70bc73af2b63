package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/angelmondragon/farmbid-backend/pkg/bootstrap"
	"github.com/angelmondragon/farmbid-backend/pkg/config"
	"github.com/angelmondragon/farmbid-backend/pkg/migrate"
)

func main() {
	cmd := flag.String("cmd", "up", "migration command: up|down|redo|status|version|create|validate")
	dir := flag.String("dir", "", "migrations directory; empty uses the files compiled into the binary")
	name := flag.String("name", "", "migration name (for -cmd=create)")
	version := flag.String("version", "", "target version YYYYMMDDHHMMSS (for -cmd=version)")
	flag.Parse()

	src := migrate.Source{Dir: *dir}

	// Authoring commands work on files only and need no config.
	switch *cmd {
	case "create":
		if *name == "" {
			exitf("missing -name for create")
		}
		target := *dir
		if target == "" {
			target = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(target, *name, time.Now())
		if err != nil {
			exitf("failed to create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.Validate(src); err != nil {
			exitf("migration validation failed: %v", err)
		}
		fmt.Printf("%s migrations valid\n", src)
		return
	}

	proc := bootstrap.Start("migrate")
	cfg, logg := proc.Config, proc.Logger
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":        cfg.App.Env,
		"cmd":        *cmd,
		"migrations": src.String(),
	})

	if cfg.DB.Driver == config.DriverSQLite {
		proc.Check(errors.New("sqlite schemas come from the dev auto-migrate"), "run goose against sqlite")
	}

	sqlDB, err := proc.Database(ctx).DB().DB()
	proc.Check(err, "extract sql.DB")

	switch *cmd {
	case "up", "down", "redo", "status":
		err = migrate.Run(ctx, sqlDB, src, *cmd)
	case "version":
		if *version == "" {
			exitf("missing -version for version command")
		}
		err = migrate.MigrateToVersion(ctx, sqlDB, src, *version)
	default:
		exitf("unknown -cmd value: %s", *cmd)
	}
	proc.Check(err, "migrate "+*cmd)
	logg.Info(ctx, "migration finished")
	_ = proc.Close()
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
