package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/redmonddental/intake/internal/config"
	"github.com/redmonddental/intake/internal/domain/intake"
	"github.com/redmonddental/intake/internal/platform/auth"
	"github.com/redmonddental/intake/internal/platform/db"
	"github.com/redmonddental/intake/migrations"
)

// withService opens the configured store for a one-shot command. Commands
// run without an outbox, so nothing is emailed.
func withService(fn func(ctx context.Context, svc *intake.Service, cfg *config.Config) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	defer store.Close()
	return fn(ctx, intake.NewService(store, nil, logger), cfg)
}

func initSheetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-sheet",
		Short: "Write the header row to an empty submission sheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *intake.Service, cfg *config.Config) error {
				created, err := svc.InitSheet(ctx)
				if err != nil {
					return err
				}
				if created {
					fmt.Fprintf(cmd.OutOrStdout(), "Header row written to %s store (%d columns).\n", cfg.StoreBackend, intake.ColumnCount)
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "Header row already present.")
				}
				return nil
			})
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Add demo submissions for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *intake.Service, cfg *config.Config) error {
				if cfg.IsProduction() {
					return errors.New("refusing to seed demo patients in production")
				}
				receipts, err := svc.Seed(ctx)
				for _, r := range receipts {
					fmt.Fprintf(cmd.OutOrStdout(), "row %d  %s\n", r.RowIndex, r.SubmissionID)
				}
				return err
			})
		},
	}
}

func hashPasswordCmd() *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for ADMIN_PASSWORD_HASH",
		Long:  "Print a bcrypt hash for ADMIN_PASSWORD_HASH. The password is read from stdin when not given as an argument.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password := ""
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			hash, err := auth.HashPassword(password, cost)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", 0, "bcrypt cost (default 10)")
	return cmd
}

func renderPDFCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "render-pdf <row|submission-id>",
		Short: "Write the PDF transcript of one submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(func(ctx context.Context, svc *intake.Service, _ *config.Config) error {
				t, filename, err := svc.RenderPDF(ctx, args[0])
				if err != nil {
					return err
				}
				path := out
				if path == "" {
					path = filename
				} else if fi, err := os.Stat(path); err == nil && fi.IsDir() {
					path = filepath.Join(path, filename)
				}
				if err := os.WriteFile(path, t.PDF, 0o600); err != nil {
					return fmt.Errorf("write pdf: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes).\n", path, len(t.PDF))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file or directory (default: ./<patient-form-name-row>.pdf)")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the outbox database schema",
	}

	withMigrator := func(fn func(ctx context.Context, m *db.Migrator, schema string, log zerolog.Logger) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL %w", config.ErrNotConfigured)
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
			if err != nil {
				return err
			}
			defer pool.Close()
			return fn(ctx, db.NewMigrator(pool, migrations.FS), schema, logger)
		}
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: withMigrator(func(ctx context.Context, m *db.Migrator, schema string, log zerolog.Logger) error {
			count, err := m.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			log.Info().Str("schema", schema).Int("applied", count).Msg("migrations complete")
			return nil
		}),
	}
	upCmd.Flags().String("schema", db.DefaultSchema, "target schema")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
	}
	statusCmd.RunE = withMigrator(func(ctx context.Context, m *db.Migrator, schema string, _ zerolog.Logger) error {
		statuses, err := m.Status(ctx, schema)
		if err != nil {
			return fmt.Errorf("migration status: %w", err)
		}
		printStatuses(statusCmd.OutOrStdout(), statuses)
		return nil
	})
	statusCmd.Flags().String("schema", db.DefaultSchema, "target schema")
	cmd.AddCommand(statusCmd)

	return cmd
}

func printStatuses(w io.Writer, statuses []db.MigrationStatus) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
	for _, s := range statuses {
		state, at := "pending", ""
		if s.Applied {
			state = "applied"
			if s.AppliedAt != nil {
				at = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Version, s.Name, state, at)
	}
	tw.Flush()
}
