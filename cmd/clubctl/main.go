// clubctl is the operator tool for the club membership core: it applies
// migrations, bootstraps the first admin account, and drives the
// provisioning and registration operations from the command line.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vsmclub/clubcore/internal/app"
	"github.com/vsmclub/clubcore/internal/auth"
	"github.com/vsmclub/clubcore/internal/clock"
	"github.com/vsmclub/clubcore/internal/config"
	"github.com/vsmclub/clubcore/internal/domain"
	"github.com/vsmclub/clubcore/internal/storage/postgres"
	"github.com/vsmclub/clubcore/migrations"
)

const usage = `usage: clubctl <command> [flags]

commands:
  migrate                      apply pending migrations
  seed-admin                   bootstrap the first admin account
  provision                    create an account through the provisioning rules
  create-event                 insert an event
  list                         list registrations for an event
`

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", "err", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("connect to db", "err", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("db ping", "err", err)
	}

	if err := run(ctx, logger, pool, cfg, os.Args[1], os.Args[2:]); err != nil {
		logger.Fatal(os.Args[1], "err", err)
	}
}

func run(ctx context.Context, logger *log.Logger, pool *pgxpool.Pool, cfg config.Config, command string, args []string) error {
	switch command {
	case "migrate":
		if err := migrations.Apply(ctx, pool); err != nil {
			return err
		}
		logger.Info("migrations applied")
		return nil
	case "seed-admin":
		return seedAdmin(ctx, logger, pool, args)
	case "provision":
		return provision(ctx, logger, pool, cfg, args)
	case "create-event":
		return createEvent(ctx, logger, pool, args)
	case "list":
		return list(ctx, pool, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

// seedAdmin writes the first admin directly through the repository: the
// provisioning guards require an existing admin actor, so the very first
// one has to come from the operator.
func seedAdmin(ctx context.Context, logger *log.Logger, pool *pgxpool.Pool, args []string) error {
	fs := flag.NewFlagSet("seed-admin", flag.ExitOnError)
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "initial password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" || *email == "" || *password == "" {
		return fmt.Errorf("-name, -email and -password are required")
	}

	hasher := auth.NewBcryptHasher()
	hash, err := hasher.Hash(*password)
	if err != nil {
		return err
	}

	repo := postgres.NewAccountRepository(pool)
	account := domain.Account{
		ID:           uuid.NewString(),
		Name:         *name,
		Email:        *email,
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := repo.CreateAccount(ctx, account); err != nil {
		return err
	}
	logger.Info("admin seeded", "id", account.ID, "email", account.Email)
	return nil
}

func provision(ctx context.Context, logger *log.Logger, pool *pgxpool.Pool, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("provision", flag.ExitOnError)
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "initial password")
	role := fs.String("role", "", "requested role (optional)")
	actorEmail := fs.String("actor", "", "email of the acting account")
	if err := fs.Parse(args); err != nil {
		return err
	}

	repo := postgres.NewAccountRepository(pool)
	svc := app.NewProvisionService(repo, auth.NewBcryptHasher(), clock.NewSystem(),
		app.WithAllowedEmailDomains(cfg.AllowedEmailDomains...))

	var actor *domain.Account
	if *actorEmail != "" {
		found, err := repo.GetAccountByEmail(ctx, *actorEmail)
		if err != nil {
			return err
		}
		if found == nil {
			return fmt.Errorf("acting account %q not found", *actorEmail)
		}
		actor = found
	}

	in := app.RegisterAccountInput{Name: *name, Email: *email, Password: *password}
	if *role != "" {
		r := domain.Role(*role)
		in.RequestedRole = &r
	}

	account, err := svc.Register(ctx, in, actor)
	if err != nil {
		return err
	}
	logger.Info("account provisioned", "id", account.ID, "email", account.Email, "role", account.Role)
	return nil
}

func createEvent(ctx context.Context, logger *log.Logger, pool *pgxpool.Pool, args []string) error {
	fs := flag.NewFlagSet("create-event", flag.ExitOnError)
	name := fs.String("name", "", "event name")
	capacity := fs.Int("capacity", 0, "confirmed-slot capacity (0 waitlists everyone)")
	starts := fs.String("starts", "", "start time, RFC 3339 (default: one week out)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return fmt.Errorf("-name is required")
	}
	if *capacity < 0 {
		return fmt.Errorf("-capacity must be zero or positive")
	}

	startsAt := time.Now().UTC().AddDate(0, 0, 7)
	if *starts != "" {
		parsed, err := time.Parse(time.RFC3339, *starts)
		if err != nil {
			return fmt.Errorf("parse -starts: %w", err)
		}
		startsAt = parsed.UTC()
	}

	repo := postgres.NewRegistrationRepository(pool)
	event := domain.Event{
		ID:        uuid.NewString(),
		Name:      *name,
		Capacity:  *capacity,
		StartsAt:  startsAt,
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.CreateEvent(ctx, event); err != nil {
		return err
	}
	logger.Info("event created", "id", event.ID, "capacity", event.Capacity, "starts_at", event.StartsAt)
	return nil
}

func list(ctx context.Context, pool *pgxpool.Pool, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: clubctl list <event-id>")
	}
	eventID := args[0]

	svc := app.NewRegistrationService(postgres.NewRegistrationRepository(pool), clock.NewSystem())
	regs, err := svc.ListForEvent(ctx, eventID)
	if err != nil {
		return err
	}

	for _, reg := range regs {
		fmt.Printf("%s\t%s\t%s\t%s\n", reg.ID, reg.AccountID, reg.Status, reg.RegisteredAt.Format(time.RFC3339))
	}
	return nil
}
