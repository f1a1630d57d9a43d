package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"webmail/config"
	"webmail/internal/model"
	"webmail/internal/repository"
	"webmail/internal/service/auth"
	"webmail/migrations"
	"webmail/pkg/db"
	"webmail/pkg/logger"
	"webmail/pkg/mq"
	"webmail/pkg/outbox"
	"webmail/pkg/rbac"
)

var configDir string

type env struct {
	cfg *config.Config
	log *zap.Logger
	db  *pgxpool.Pool
}

func connect() (*env, func(), error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.NewLogger(cfg.Env)

	pool, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		return nil, nil, fmt.Errorf("connect db: %w", err)
	}
	cleanup := func() {
		pool.Close()
		_ = log.Sync()
	}
	return &env{cfg: cfg, log: log, db: pool}, cleanup, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cleanup, err := connect()
			if err != nil {
				return err
			}
			defer cleanup()

			n, err := migrations.Apply(cmd.Context(), e.db, e.log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
			return nil
		},
	}
}

func createAdminCmd() *cobra.Command {
	var in auth.RegisterInput

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Register an account and grant it the admin role",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cleanup, err := connect()
			if err != nil {
				return err
			}
			defer cleanup()

			users := repository.NewUserRepository(e.db)
			svc := auth.NewService(users, e.cfg.JWT.Secret, e.cfg.JWT.TTL, e.log)

			sess, err := svc.Register(cmd.Context(), in)
			if err != nil {
				return err
			}
			if err := users.SetRole(cmd.Context(), sess.User.ID, model.RoleAdmin); err != nil {
				return fmt.Errorf("grant admin: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (id %d)\n", sess.User.Email, sess.User.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Email, "email", "", "admin email")
	cmd.Flags().StringVar(&in.Password, "password", "", "admin password (min 6 characters)")
	cmd.Flags().StringVar(&in.FirstName, "first-name", "Admin", "first name")
	cmd.Flags().StringVar(&in.LastName, "last-name", "User", "last name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func promoteCmd() *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "promote [email]",
		Short: "Change the role of an existing account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role = strings.ToLower(strings.TrimSpace(role))
			if !rbac.ValidRole(role) {
				return fmt.Errorf("unknown role %q", role)
			}

			e, cleanup, err := connect()
			if err != nil {
				return err
			}
			defer cleanup()

			return promote(cmd.Context(), repository.NewUserRepository(e.db), args[0], role, cmd)
		},
	}

	cmd.Flags().StringVar(&role, "role", model.RoleAdmin, "role to assign (user or admin)")
	return cmd
}

func promote(ctx context.Context, users *repository.UserRepository, email, role string, cmd *cobra.Command) error {
	u, err := users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("no account for %s", email)
	}
	if err != nil {
		return err
	}
	if err := users.SetRole(ctx, u.ID, role); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", u.Email, role)
	return nil
}

func replayFailedCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "replay-failed",
		Short: "Re-publish outbox events that exhausted their retries",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cleanup, err := connect()
			if err != nil {
				return err
			}
			defer cleanup()

			publisher, err := mq.NewPublisher(e.cfg.MQ.URL)
			if err != nil {
				return fmt.Errorf("connect mq: %w", err)
			}
			defer publisher.Close()

			replay := outbox.NewReplayService(outbox.NewRepository(e.db), publisher, e.log)
			n, err := replay.ReplayFailedEvents(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "replayed %d event(s)\n", n)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "maximum events to replay")
	return cmd
}
