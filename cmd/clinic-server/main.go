package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/demo"
	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/telemetry"
	"github.com/clinic/clinic/migrations"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "clinic-server",
		Short:        "Aesthetic clinic patient management API",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(userCmd())
	root.AddCommand(seedCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(level).With().Timestamp().Logger()
	}
	return logger
}

// openDB loads config and connects. Callers close the pool.
func openDB(ctx context.Context) (*config.Config, *db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, db.NewMigrator(pool, migrations.FS), pool.Close, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, migrator, closePool, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer closePool()

			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s).\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, migrator, closePool, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer closePool()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status, appliedAt := "pending", ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			name, _ := cmd.Flags().GetString("name")
			password, _ := cmd.Flags().GetString("password")
			if email == "" || password == "" {
				return fmt.Errorf("--email and --password are required")
			}

			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := auth.NewService(auth.NewUserRepoPG(pool), auth.NewPasswordHasher(0),
				auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.JWTTTL))
			u, err := svc.Register(ctx, email, name, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (%s)\n", u.Email, u.ID)
			return nil
		},
	}
	createCmd.Flags().String("email", "", "Login email")
	createCmd.Flags().String("name", "", "Display name")
	createCmd.Flags().String("password", "", "Initial password (at least 8 characters)")
	cmd.AddCommand(createCmd)

	return cmd
}

func seedCmd() *cobra.Command {
	defaults := demo.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill an account with synthetic demo patients and appointments",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			if email == "" {
				return fmt.Errorf("--email is required")
			}
			seedCfg := defaults
			seedCfg.PatientCount, _ = cmd.Flags().GetInt("patients")
			seedCfg.AppointmentsPerPatient, _ = cmd.Flags().GetInt("appointments")
			seedCfg.Seed, _ = cmd.Flags().GetInt64("seed")

			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			owner, err := auth.NewUserRepoPG(pool).GetByEmail(ctx, email)
			if err != nil {
				return fmt.Errorf("look up %s: %w", email, err)
			}

			patients := patient.NewService(patient.NewPatientRepoPG(pool), logger)
			appointments := scheduling.NewService(scheduling.NewAppointmentRepoPG(pool), patients, loc)
			res, err := demo.NewSeeder(patients, appointments, loc, logger).Run(ctx, owner.ID, seedCfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d patient(s) and %d appointment(s) in %s.\n",
				res.Patients, res.Appointments, res.Duration.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().String("email", "", "Account that owns the generated records")
	cmd.Flags().Int("patients", defaults.PatientCount, "Number of patients")
	cmd.Flags().Int("appointments", defaults.AppointmentsPerPatient, "Appointments per patient")
	cmd.Flags().Int64("seed", 0, "Random seed; 0 picks one from the clock")
	return cmd
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	applied, err := db.NewMigrator(pool, migrations.FS).Up(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to apply migrations")
	}
	if applied > 0 {
		logger.Info().Int("count", applied).Msg("applied migrations")
	}

	blobs, closeBlobs, err := openBlobStore(ctx, cfg, pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open blob store")
	}
	defer closeBlobs(context.Background())
	logger.Info().Str("backend", cfg.BlobBackend).Msg("blob store ready")

	metrics := telemetry.NewProvider(telemetry.Config{
		ServiceName:    "clinic-server",
		ServiceVersion: version,
		Environment:    cfg.Env,
		RuntimeMetrics: true,
	})
	if err := metrics.RegisterPool(pool); err != nil {
		logger.Warn().Err(err).Msg("pool metrics not registered")
	}

	srv, err := newServer(cfg, logger, pool, blobs, metrics)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}
	defer srv.Close()

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := srv.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.echo.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
