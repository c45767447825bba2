package main

import (
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Clinic appointment scheduling API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func poolConfig(cfg *config.Config) db.PoolConfig {
	return db.PoolConfig{
		URL:            cfg.DatabaseURL,
		MaxConns:       cfg.DBMaxConns,
		MinConns:       cfg.DBMinConns,
		ConnectTimeout: 10 * time.Second,
		Schema:         cfg.DBSchema,
	}
}

// migrationsFS uses the SQL embedded in the binary unless dir is set.
func migrationsFS(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
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

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// connect is shared by the subcommands; flags override config.
	connect := func(cmd *cobra.Command) (*db.Migrator, string, func(), error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, "", nil, err
		}
		if cfg.DatabaseURL == "" {
			return nil, "", nil, fmt.Errorf("DATABASE_URL is required for migrations")
		}
		schema, _ := cmd.Flags().GetString("schema")
		if schema == "" {
			schema = cfg.DBSchema
		}
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = cfg.MigrationsDir
		}

		pool, err := db.NewPool(cmd.Context(), poolConfig(cfg))
		if err != nil {
			return nil, "", nil, err
		}
		return db.NewMigrator(pool, migrationsFS(dir)), schema, pool.Close, nil
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, schema, closeFn, err := connect(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			fmt.Printf("Running migrations on schema: %s\n", schema)
			count, err := migrator.Up(cmd.Context(), schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, schema, closeFn, err := connect(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(cmd.Context(), schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}

	for _, c := range []*cobra.Command{upCmd, statusCmd} {
		c.Flags().String("schema", "", "Target schema (default DB_SCHEMA)")
		c.Flags().String("dir", "", "Migrations directory (default: embedded)")
		cmd.AddCommand(c)
	}
	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert the clinic's doctors if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.UsesPostgres() {
				return fmt.Errorf("seed needs STORE=%s; the memory store seeds itself on start", config.StorePostgres)
			}
			pool, err := db.NewPool(cmd.Context(), poolConfig(cfg))
			if err != nil {
				return err
			}
			defer pool.Close()

			added, err := identity.SeedDoctors(cmd.Context(), identity.NewDoctorRepo(pool), identity.ClinicDoctors())
			if err != nil {
				return fmt.Errorf("seed doctors: %w", err)
			}
			fmt.Printf("Added %d doctor(s).\n", added)
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a staff member or patient",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.AuthSigningKey == "" {
				return fmt.Errorf("AUTH_SIGNING_KEY is required to mint tokens")
			}
			subject, _ := cmd.Flags().GetString("subject")
			role, _ := cmd.Flags().GetString("role")
			patientID, _ := cmd.Flags().GetString("patient")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if ttl == 0 {
				ttl = cfg.AuthTokenTTL
			}

			switch role {
			case auth.RoleAdmin, auth.RoleStaff:
			case auth.RolePatient:
				if patientID == "" {
					return fmt.Errorf("--patient is required for role %s", role)
				}
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			if subject == "" {
				subject = role
				if patientID != "" {
					subject = patientID
				}
			}

			token, err := auth.IssueToken(tokenConfig(cfg), subject, []string{role}, patientID, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().String("subject", "", "Token subject (defaults to the role or patient id)")
	cmd.Flags().String("role", auth.RoleStaff, "Role: admin, staff or patient")
	cmd.Flags().String("patient", "", "Patient id for patient tokens")
	cmd.Flags().Duration("ttl", 0, "Token lifetime (default AUTH_TOKEN_TTL)")
	return cmd
}

func tokenConfig(cfg *config.Config) auth.JWTConfig {
	return auth.JWTConfig{Issuer: tokenIssuer, SigningKey: []byte(cfg.AuthSigningKey)}
}

const tokenIssuer = "clinic-server"
