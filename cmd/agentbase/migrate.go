package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/BaSui01/agentbase/internal/migration"
)

// =============================================================================
// 🗄️ 数据库迁移命令
// =============================================================================

// migrateOptions 迁移命令的数据库来源：--db-type 与 --db-url 同时给出时
// 直接连接，否则读取配置中的 database 段
type migrateOptions struct {
	root   *rootOptions
	dbType string
	dbURL  string
}

func (o *migrateOptions) migrator() (*migration.DefaultMigrator, error) {
	if o.dbType != "" && o.dbURL != "" {
		return migration.NewMigratorFromURL(o.dbType, o.dbURL)
	}
	cfg, err := loadConfig(o.root.configPath)
	if err != nil {
		return nil, err
	}
	if o.dbType != "" {
		cfg.Database.Driver = o.dbType
	}
	return migration.NewMigratorFromDatabaseConfig(cfg.Database)
}

// run 创建迁移器与 CLI，执行 fn 后关闭迁移器
func (o *migrateOptions) run(cmd *cobra.Command, fn func(ctx context.Context, cli *migration.CLI) error) error {
	m, err := o.migrator()
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	cli := migration.NewCLI(m)
	cli.SetOutput(cmd.OutOrStdout())
	return fn(cmd.Context(), cli)
}

func newMigrateCmd(root *rootOptions) *cobra.Command {
	o := &migrateOptions{root: root}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
		Long: `Manage the schema of the SQL memory backend and SQL document store.

Examples:
  agentbase migrate up
  agentbase migrate down --all
  agentbase migrate status
  agentbase migrate goto 1
  agentbase migrate up --db-type sqlite --db-url "file:./data/agentbase.db?mode=rwc"`,
	}
	cmd.PersistentFlags().StringVar(&o.dbType, "db-type", "", "database type: postgres, mysql, sqlite (default: from config)")
	cmd.PersistentFlags().StringVar(&o.dbURL, "db-url", "", "database connection URL (default: from config)")

	var all bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, func(ctx context.Context, cli *migration.CLI) error {
				if all {
					return cli.RunDownAll(ctx)
				}
				return cli.RunDown(ctx)
			})
		},
	}
	down.Flags().BoolVar(&all, "all", false, "roll back all migrations")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return o.run(cmd, func(ctx context.Context, cli *migration.CLI) error { return cli.RunUp(ctx) })
			},
		},
		down,
		&cobra.Command{
			Use:   "status",
			Short: "Show migration status",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return o.run(cmd, func(ctx context.Context, cli *migration.CLI) error { return cli.RunStatus(ctx) })
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show the current migration version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return o.run(cmd, func(ctx context.Context, cli *migration.CLI) error { return cli.RunVersion(ctx) })
			},
		},
		&cobra.Command{
			Use:   "info",
			Short: "Show database and migration details",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return o.run(cmd, func(ctx context.Context, cli *migration.CLI) error { return cli.RunInfo(ctx) })
			},
		},
		&cobra.Command{
			Use:   "goto <version>",
			Short: "Migrate up or down to a specific version",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return o.run(cmd, func(ctx context.Context, cli *migration.CLI) error { return cli.RunGoto(ctx, uint(v)) })
			},
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Force the migration version without running migrations (use with caution)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version %q: %w", args[0], err)
				}
				return o.run(cmd, func(ctx context.Context, cli *migration.CLI) error { return cli.RunForce(ctx, v) })
			},
		},
	)
	return cmd
}
