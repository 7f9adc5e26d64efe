package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hongminglow/svcmon/internal/auth"
	"github.com/hongminglow/svcmon/internal/config"
	"github.com/hongminglow/svcmon/internal/logging"
	"github.com/hongminglow/svcmon/internal/models"
	"github.com/hongminglow/svcmon/internal/server"
	"github.com/hongminglow/svcmon/internal/storage"
	"github.com/hongminglow/svcmon/internal/storage/postgres"
	"github.com/hongminglow/svcmon/internal/storage/sqlite"
)

const shutdownTimeout = 15 * time.Second

// app carries what every subcommand needs once the environment is loaded.
type app struct {
	cfg    config.Config
	logger *logging.ZapLogger
}

func rootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "svcmon",
		Short:         "Systemd service monitor API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Seed default accounts and serve the HTTP API",
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.serve(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "bootstrap",
			Short: "Apply migrations and create the default admin and user accounts, then exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.bootstrap(cmd.Context())
			},
		},
		userCmd(a),
	)
	return cmd
}

func userCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts in the credential store",
	}

	var role, password string
	add := &cobra.Command{
		Use:   "add USERNAME",
		Short: "Create an account (password from --password or SVCMON_PASSWORD)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("SVCMON_PASSWORD")
			}
			r, err := models.ParseRole(role)
			if err != nil {
				return err
			}
			return a.addUser(cmd.Context(), auth.DefaultUser{Username: args[0], Password: password, Role: r})
		},
	}
	add.Flags().StringVar(&role, "role", string(models.RoleUser), "account role (admin|user)")
	add.Flags().StringVar(&password, "password", "", "account password")

	del := &cobra.Command{
		Use:   "delete USERNAME",
		Short: "Delete an account and its session audit rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.deleteUser(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(add, del)
	return cmd
}

func (a *app) init() error {
	if err := godotenv.Load(); err != nil {
		// Not fatal: the environment may already be populated.
		fmt.Fprintln(os.Stderr, "no .env file found; relying on existing environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(logger.Zap())

	a.cfg = cfg
	a.logger = logger
	return nil
}

// openStore picks Postgres when DATABASE_URL is set and the SQLite file
// otherwise. Both apply migrations before returning.
func (a *app) openStore(ctx context.Context) (storage.UserStore, error) {
	if a.cfg.DatabaseURL != "" {
		a.logger.Info(ctx, "using postgres credential store")
		return postgres.NewUserStore(ctx, a.cfg.DatabaseURL)
	}
	a.logger.Info(ctx, "using sqlite credential store", "path", a.cfg.UsersDBFile)
	return sqlite.NewUserStore(ctx, a.cfg.UsersDBFile)
}

func (a *app) hasher() (*auth.Hasher, error) {
	return auth.NewHasher(a.cfg.PasswordIterations)
}

func (a *app) seed(ctx context.Context, store storage.UserStore) error {
	h, err := a.hasher()
	if err != nil {
		return err
	}
	created, err := auth.BootstrapDefaultUsers(ctx, store, h, a.cfg.DefaultUsers())
	if err != nil {
		return fmt.Errorf("bootstrap default users: %w", err)
	}
	for _, name := range created {
		a.logger.Warn(ctx, "created default account; change its password", "username", name)
	}
	return nil
}

func (a *app) bootstrap(ctx context.Context) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return fmt.Errorf("init credential store: %w", err)
	}
	defer store.Close()
	return a.seed(ctx, store)
}

func (a *app) addUser(ctx context.Context, u auth.DefaultUser) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return fmt.Errorf("init credential store: %w", err)
	}
	defer store.Close()

	h, err := a.hasher()
	if err != nil {
		return err
	}
	if err := auth.CreateAccount(ctx, store, h, u); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return fmt.Errorf("user %s already exists", u.Username)
		}
		return err
	}
	a.logger.Info(ctx, "account created", "username", u.Username, "role", u.Role)
	return nil
}

func (a *app) deleteUser(ctx context.Context, username string) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return fmt.Errorf("init credential store: %w", err)
	}
	defer store.Close()

	if err := store.DeleteUser(ctx, username); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("user %s not found", username)
		}
		return err
	}
	a.logger.Info(ctx, "account deleted", "username", username)
	return nil
}

func (a *app) serve(ctx context.Context) error {
	if a.cfg.UsesDefaultSecret() {
		a.logger.Warn(ctx, "JWT_SECRET is the public development default; set it before exposing this service")
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return fmt.Errorf("init credential store: %w", err)
	}
	defer store.Close()

	if err := a.seed(ctx, store); err != nil {
		return err
	}

	srv, err := server.New(a.cfg, store, a.logger)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info(ctx, "svcmon listening", "addr", a.cfg.HTTPAddress())
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-sigCtx.Done():
	}

	a.logger.Info(ctx, "shutting down")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		a.logger.Error(ctx, "graceful shutdown error", "error", err)
	}
	return nil
}
