package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

// CLI 把 Migrator 的操作格式化为 `agentbase migrate` 子命令的输出
type CLI struct {
	migrator Migrator
	out      io.Writer
}

// NewCLI 默认输出到 stdout
func NewCLI(m Migrator) *CLI {
	return &CLI{migrator: m, out: os.Stdout}
}

// SetOutput 设置输出目标
func (c *CLI) SetOutput(w io.Writer) {
	c.out = w
}

// reportVersion 操作完成后打印当前版本
func (c *CLI) reportVersion(ctx context.Context, done string) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s. Schema version: %d\n", done, info.CurrentVersion)
	return nil
}

// RunUp 应用全部未执行的迁移（会话表与文档表）
func (c *CLI) RunUp(ctx context.Context) error {
	fmt.Fprintln(c.out, "Applying pending migrations...")
	if err := c.migrator.Up(ctx); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return c.reportVersion(ctx, "Up to date")
}

// RunDown 回滚最近一次迁移
func (c *CLI) RunDown(ctx context.Context) error {
	fmt.Fprintln(c.out, "Rolling back the last migration...")
	if err := c.migrator.Down(ctx); err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	return c.reportVersion(ctx, "Rolled back")
}

// RunDownAll 回滚全部迁移，会删除会话与文档表
func (c *CLI) RunDownAll(ctx context.Context) error {
	fmt.Fprintln(c.out, "Rolling back all migrations (drops session and document tables)...")
	if err := c.migrator.DownAll(ctx); err != nil {
		return fmt.Errorf("migrate down --all: %w", err)
	}
	fmt.Fprintln(c.out, "All migrations rolled back.")
	return nil
}

// RunGoto 迁移到指定版本
func (c *CLI) RunGoto(ctx context.Context, version uint) error {
	fmt.Fprintf(c.out, "Migrating to version %d...\n", version)
	if err := c.migrator.Goto(ctx, version); err != nil {
		return fmt.Errorf("migrate goto %d: %w", version, err)
	}
	return c.reportVersion(ctx, "Done")
}

// RunForce 只改写版本记录并清除 dirty 标记，不执行 SQL
func (c *CLI) RunForce(ctx context.Context, version int) error {
	if err := c.migrator.Force(ctx, version); err != nil {
		return fmt.Errorf("migrate force %d: %w", version, err)
	}
	fmt.Fprintf(c.out, "Schema version forced to %d\n", version)
	return nil
}

// RunVersion 打印当前版本
func (c *CLI) RunVersion(ctx context.Context) error {
	version, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	switch {
	case version == 0:
		fmt.Fprintln(c.out, "No migrations applied yet.")
	case dirty:
		fmt.Fprintf(c.out, "Schema version: %d (dirty, fix with `migrate force`)\n", version)
	default:
		fmt.Fprintf(c.out, "Schema version: %d\n", version)
	}
	return nil
}

// RunStatus 列出每个迁移文件的状态与汇总
func (c *CLI) RunStatus(ctx context.Context) error {
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("read migration status: %w", err)
	}
	if len(statuses) == 0 {
		fmt.Fprintln(c.out, "No migrations found.")
		return nil
	}

	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATUS")
	for _, s := range statuses {
		state := "pending"
		switch {
		case s.Dirty:
			state = "dirty"
		case s.Applied:
			state = "applied"
		}
		fmt.Fprintf(tw, "%06d\t%s\t%s\n", s.Version, s.Name, state)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "\n%d total, %d applied, %d pending\n",
		info.TotalMigrations, info.AppliedMigrations, info.PendingMigrations)
	return nil
}

// RunInfo 打印迁移概要
func (c *CLI) RunInfo(ctx context.Context) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return fmt.Errorf("read migration info: %w", err)
	}
	tw := tabwriter.NewWriter(c.out, 0, 0, 1, ' ', 0)
	fmt.Fprintf(tw, "Schema version:\t%d\n", info.CurrentVersion)
	fmt.Fprintf(tw, "Dirty:\t%v\n", info.Dirty)
	fmt.Fprintf(tw, "Total:\t%d\n", info.TotalMigrations)
	fmt.Fprintf(tw, "Applied:\t%d\n", info.AppliedMigrations)
	fmt.Fprintf(tw, "Pending:\t%d\n", info.PendingMigrations)
	return tw.Flush()
}
