package main

import (
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/labfix/backend/internal/infrastructure/config"
	"github.com/labfix/backend/internal/infrastructure/logger"
	"github.com/labfix/backend/internal/infrastructure/migration"
	"github.com/labfix/backend/migrations"
)

var (
	migrationsDir string
	logLevel      string
	confirmDrop   bool
)

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the LabFix database schema",
	Long: `Apply, roll back and inspect the versioned PostgreSQL schema.

By default the schema embedded in the binary is used. Pass --dir to read
migrations from a directory instead, e.g. while authoring a new one.

Connection settings come from config.toml and LABFIX_DATABASE_* variables.`,
	SilenceUsage: true,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: withMigrator(func(m *migration.Migrator, _ []string) error {
		return m.Up()
	}),
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back every migration",
	Args:  cobra.NoArgs,
	RunE: withMigrator(func(m *migration.Migrator, _ []string) error {
		if !confirmDrop {
			return fmt.Errorf("refusing to roll back the whole schema without --confirm")
		}
		return m.Down()
	}),
}

var stepsCmd = &cobra.Command{
	Use:     "steps <n>",
	Short:   "Apply n migrations, or roll back when n is negative",
	Example: "  migrate steps 1\n  migrate steps -- -1",
	Args:    cobra.ExactArgs(1),
	RunE: withMigrator(func(m *migration.Migrator, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil || n == 0 {
			return fmt.Errorf("invalid step count %q", args[0])
		}
		return m.Steps(n)
	}),
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied schema version",
	Args:  cobra.NoArgs,
	RunE: withMigrator(func(m *migration.Migrator, _ []string) error {
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		if version == 0 {
			fmt.Println("no migrations applied")
			return nil
		}
		fmt.Printf("version %d (dirty=%t)\n", version, dirty)
		return nil
	}),
}

var forceCmd = &cobra.Command{
	Use:   "force <version>",
	Short: "Set the schema version without running migrations",
	Long:  "Clears the dirty flag after a failed migration was repaired by hand.",
	Args:  cobra.ExactArgs(1),
	RunE: withMigrator(func(m *migration.Migrator, args []string) error {
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		return m.Force(version)
	}),
}

var createCmd = &cobra.Command{
	Use:   "create <name> [description]",
	Short: "Write the next empty migration pair into --dir",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := migrationsDir
		if dir == "" {
			dir = "migrations"
		}
		description := ""
		if len(args) > 1 {
			description = args[1]
		}
		f, err := migration.Create(dir, args[0], description)
		if err != nil {
			return err
		}
		fmt.Printf("created %s\n        %s\n", f.UpPath, f.DownPath)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the available migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := migration.List(source())
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&migrationsDir, "dir", "", "read migrations from this directory instead of the embedded schema")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	downCmd.Flags().BoolVar(&confirmDrop, "confirm", false, "confirm rolling back every migration")

	rootCmd.AddCommand(upCmd, downCmd, stepsCmd, versionCmd, forceCmd, createCmd, listCmd)
}

func source() fs.FS {
	if migrationsDir != "" {
		return os.DirFS(migrationsDir)
	}
	return migrations.FS
}

// withMigrator connects to the configured database and hands a Migrator to run.
func withMigrator(run func(m *migration.Migrator, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		log, err := logger.New(logger.Config{Level: logLevel, Format: "console", Output: "stdout"}, "")
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		defer func() { _ = log.Sync() }()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		db, err := sql.Open("postgres", cfg.Database.DSN())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(cmd.Context()); err != nil {
			return fmt.Errorf("failed to reach database: %w", err)
		}

		m, err := migration.New(db, source(), log)
		if err != nil {
			return err
		}
		defer func() {
			if err := m.Close(); err != nil {
				log.Warn("Failed to close migrator", zap.Error(err))
			}
		}()

		log.Info("Migration command started",
			zap.String("command", cmd.Name()),
			zap.String("database", cfg.Database.DBName))
		return run(m, args)
	}
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
