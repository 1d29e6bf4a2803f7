package admin

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Anvoria/alumnet/internal/config"
	"github.com/Anvoria/alumnet/internal/database"
	"github.com/Anvoria/alumnet/internal/domain/user"
	"github.com/Anvoria/alumnet/internal/migrations"
)

// Command implements the admin management command
type Command struct {
	Out io.Writer

	// Users overrides the database-backed identity store
	Users user.Service
}

func (c *Command) Name() string {
	return "admin"
}

func (c *Command) Description() string {
	return "Administration tasks (init-admin, approve, set-status)"
}

func (c *Command) out() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

func (c *Command) Run(args []string) error {
	if len(args) < 1 {
		c.printUsage()
		return fmt.Errorf("subcommand required")
	}

	switch args[0] {
	case "init-admin":
		return c.runInitAdmin(args[1:])
	case "approve":
		return c.runSetStatus("approve", args[1:], user.StatusApproved)
	case "set-status":
		return c.runSetStatus("set-status", args[1:], "")
	default:
		c.printUsage()
		return fmt.Errorf("unknown subcommand: %s", args[0])
	}
}

func (c *Command) printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: alumnet-cli admin <subcommand> [args]\n\n")
	fmt.Fprintf(os.Stderr, "Subcommands:\n")
	fmt.Fprintf(os.Stderr, "  init-admin   Create an approved administrator\n")
	fmt.Fprintf(os.Stderr, "    -email, -name, -password\n")
	fmt.Fprintf(os.Stderr, "  approve      Approve a pending member\n")
	fmt.Fprintf(os.Stderr, "    -email\n")
	fmt.Fprintf(os.Stderr, "  set-status   Change a member's status (pending, approved, rejected, suspended)\n")
	fmt.Fprintf(os.Stderr, "    -email, -status\n")
}

// users connects to the configured database on first use
func (c *Command) users() (user.Service, error) {
	if c.Users != nil {
		return c.Users, nil
	}

	envConfig := config.LoadEnv()
	cfg, err := config.Load(envConfig.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := database.ConnectDB(cfg); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := migrations.RunMigrations(cfg); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	c.Users = user.NewService(user.NewRepository(database.DB))
	return c.Users, nil
}

func (c *Command) runInitAdmin(args []string) error {
	fs := flag.NewFlagSet("init-admin", flag.ContinueOnError)
	email := fs.String("email", "", "Administrator email")
	name := fs.String("name", "Administrator", "Administrator full name")
	password := fs.String("password", "", "Administrator password")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return fmt.Errorf("email and password are required")
	}

	users, err := c.users()
	if err != nil {
		return err
	}

	ctx := context.Background()
	u, err := users.GetByEmail(ctx, *email)
	switch {
	case errors.Is(err, user.ErrUserNotFound):
		slog.Info("Creating administrator", "email", *email)
		u, err = users.Register(ctx, user.RegisterRequest{
			Name:     *name,
			Email:    *email,
			Password: *password,
			Role:     user.RoleAdmin,
		})
		if err != nil {
			return fmt.Errorf("failed to create administrator: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to look up %s: %w", *email, err)
	case u.Role != user.RoleAdmin:
		return fmt.Errorf("%s already exists without the admin role", *email)
	default:
		slog.Info("Administrator already exists", "email", *email)
	}

	if !u.IsApproved() {
		if u, err = users.Approve(ctx, u.ID.String()); err != nil {
			return fmt.Errorf("failed to approve administrator: %w", err)
		}
	}

	fmt.Fprintf(c.out(), "Administrator %s ready (id %s)\n", u.Email, u.ID)
	return nil
}

func (c *Command) runSetStatus(name string, args []string, fixed user.Status) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	email := fs.String("email", "", "Member email")
	status := fs.String("status", "", "New status")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return fmt.Errorf("email is required")
	}

	target := fixed
	if target == "" {
		target = user.Status(*status)
	}
	if !target.IsValid() {
		return fmt.Errorf("%w: %q", user.ErrInvalidStatus, target)
	}

	users, err := c.users()
	if err != nil {
		return err
	}

	ctx := context.Background()
	u, err := users.GetByEmail(ctx, *email)
	if err != nil {
		return fmt.Errorf("failed to look up %s: %w", *email, err)
	}

	if u.Status == target {
		fmt.Fprintf(c.out(), "%s is already %s\n", u.Email, target)
		return nil
	}

	u, err = users.SetStatus(ctx, u.ID.String(), target)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", *email, err)
	}

	fmt.Fprintf(c.out(), "%s is now %s\n", u.Email, u.Status)
	return nil
}
