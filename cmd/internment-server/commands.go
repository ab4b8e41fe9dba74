package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/hospital/internment/internal/config"
	"github.com/hospital/internment/internal/domain/internment"
	"github.com/hospital/internment/internal/platform/db"
	"github.com/hospital/internment/pkg/dates"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations to one tenant, or every tenant with --all",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, pool, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			schemas, err := targetSchemas(ctx, cmd, cfg, pool)
			if err != nil {
				return err
			}
			migrator := db.NewMigrator(pool, migrationsDir(cmd, cfg))
			for _, schema := range schemas {
				count, err := migrator.Up(ctx, schema)
				if err != nil {
					return fmt.Errorf("migrate %s: %w", schema, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: applied %d migration(s)\n", schema, count)
			}
			return nil
		},
	}
	upCmd.Flags().Bool("all", false, "Migrate every existing tenant schema")
	addTenantFlags(upCmd)
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, pool, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			schemas, err := targetSchemas(ctx, cmd, cfg, pool)
			if err != nil {
				return err
			}
			statuses, err := db.NewMigrator(pool, migrationsDir(cmd, cfg)).Status(ctx, schemas[0])
			if err != nil {
				return fmt.Errorf("migration status: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migration status for %s\n", schemas[0])
			return renderMigrationStatus(cmd.OutOrStdout(), statuses)
		},
	}
	addTenantFlags(statusCmd)
	cmd.AddCommand(statusCmd)

	return cmd
}

func addTenantFlags(cmd *cobra.Command) {
	cmd.Flags().String("tenant", "", "Tenant identifier (defaults to DEFAULT_TENANT)")
	cmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
}

func migrationsDir(cmd *cobra.Command, cfg *config.Config) string {
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		return dir
	}
	return cfg.MigrationsDir
}

func tenantFlag(cmd *cobra.Command, cfg *config.Config) string {
	if tenant, _ := cmd.Flags().GetString("tenant"); tenant != "" {
		return strings.ToLower(tenant)
	}
	return cfg.DefaultTenant
}

func targetSchemas(ctx context.Context, cmd *cobra.Command, cfg *config.Config, pool *pgxpool.Pool) ([]string, error) {
	if all, _ := cmd.Flags().GetBool("all"); all {
		schemas, err := db.TenantSchemas(ctx, pool)
		if err != nil {
			return nil, err
		}
		if len(schemas) == 0 {
			return nil, fmt.Errorf("no tenant schemas found; create one with: tenant create --name <id>")
		}
		return schemas, nil
	}
	tenant := tenantFlag(cmd, cfg)
	if !db.ValidTenantID(tenant) {
		return nil, fmt.Errorf("invalid tenant identifier %q", tenant)
	}
	return []string{db.SchemaName(tenant)}, nil
}

func renderMigrationStatus(w io.Writer, statuses []db.MigrationStatus) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
	for _, s := range statuses {
		status, appliedAt := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Version, s.Name, status, appliedAt)
	}
	return tw.Flush()
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage hospital tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant schema and apply migrations to it",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			name = strings.ToLower(name)
			if !db.ValidTenantID(name) {
				return fmt.Errorf("--name must be lower-case letters, digits or underscores")
			}

			ctx := cmd.Context()
			cfg, pool, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := db.CreateTenantSchema(ctx, pool, name, migrationsDir(cmd, cfg))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tenant %s ready (%s, %d migration(s) applied)\n", name, db.SchemaName(name), applied)
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier")
	createCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(createCmd)

	return cmd
}

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Review board reports",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the review status rollup by criticality tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, pool, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc, err := newService(cfg, pool, newLogger(cfg.Env))
			if err != nil {
				return err
			}

			rawDate, _ := cmd.Flags().GetString("date")
			day, err := parseStatsDate(rawDate, svc.Today())
			if err != nil {
				return err
			}

			ctx, conn, err := db.AcquireTenant(ctx, pool, tenantFlag(cmd, cfg))
			if err != nil {
				return err
			}
			defer conn.Release()

			stats, err := svc.ReviewStatsAt(ctx, day)
			if err != nil {
				return err
			}
			if err := renderStats(cmd.OutOrStdout(), stats); err != nil {
				return err
			}

			out, _ := cmd.Flags().GetString("xlsx")
			if out == "" {
				return nil
			}
			items, err := svc.ReviewBoard(ctx)
			if err != nil {
				return err
			}
			data, err := internment.ExportReviewBoard(items, stats)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "workbook written to %s\n", out)
			return nil
		},
	}
	statsCmd.Flags().String("tenant", "", "Tenant identifier (defaults to DEFAULT_TENANT)")
	statsCmd.Flags().String("date", "", "Reference day as YYYY-MM-DD or DD/MM/YY (defaults to today)")
	statsCmd.Flags().String("xlsx", "", "Also write today's review board workbook to this path")
	cmd.AddCommand(statsCmd)

	return cmd
}

// parseStatsDate accepts an ISO or display-format day. Blank means today.
func parseStatsDate(raw string, today time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return dates.CalendarDay(today), nil
	}
	if d, err := dates.Parse(raw); err == nil {
		return d, nil
	}
	iso, err := dates.ParseDisplay(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("--date: %w", err)
	}
	return dates.Parse(iso)
}

func renderStats(w io.Writer, stats *internment.ReviewStats) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "Review status on %s\n", dates.FormatDisplay(stats.Date))
	fmt.Fprintln(tw, "TIER\tTOTAL\tCOMPLIANT\tDUE\tOVERDUE\tREPLAN\t")
	row := func(label string, t internment.TierStats) {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t\n", label, t.Total, t.Compliant, t.Due, t.Overdue, t.Flagged)
	}
	for _, tier := range internment.Criticalities {
		if t, ok := stats.ByTier[tier]; ok {
			row(string(tier), *t)
		}
	}
	row("total", stats.Overall)
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(stats.Unclassified) > 0 {
		fmt.Fprintf(w, "%d internment(s) with malformed dates were skipped: %v\n", len(stats.Unclassified), stats.Unclassified)
	}
	return nil
}
