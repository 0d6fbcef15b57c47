// Command oxedro is the terminal client: sign in with a unique id, show who
// is signed in, or sign out.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oxedro/erp-client/internal/backend"
	"github.com/oxedro/erp-client/internal/config"
	"github.com/oxedro/erp-client/internal/controller"
	"github.com/oxedro/erp-client/internal/database"
	"github.com/oxedro/erp-client/internal/logger"
	"github.com/oxedro/erp-client/internal/observability"
	"github.com/oxedro/erp-client/internal/repository"
	"github.com/oxedro/erp-client/internal/service"
	"github.com/oxedro/erp-client/internal/session"
	"github.com/oxedro/erp-client/internal/terminal"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

var version = "dev"

func main() {
	var showPassword bool
	flag.BoolVar(&showPassword, "show-password", false, "Echo the password while typing")
	flag.Usage = printUsage
	flag.Parse()

	command := "login"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// Logs go to stderr so they never interleave with the form.
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	flush, err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv, version)
	if err != nil {
		log.Warn().Err(err).Msg("Sentry disabled")
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := buildService(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Startup failed")
	}
	defer cleanup()

	switch command {
	case "login":
		err = runLogin(ctx, svc, log, showPassword)
	case "whoami":
		err = runWhoami(ctx, svc)
	case "logout":
		svc.SignOut(ctx)
		fmt.Println("Signed out")
	default:
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cleanup()
		os.Exit(1)
	}
}

// buildService wires the gateway from configuration. The returned cleanup
// releases database and cache connections.
func buildService(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*service.AuthService, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		closers = nil
	}

	client, err := backend.NewClient(backend.Config{
		Endpoint: cfg.BackendURL,
		APIKey:   cfg.BackendAPIKey,
		Timeout:  cfg.BackendTimeout,
	}, log)
	if err != nil {
		return nil, cleanup, err
	}

	// ─── Session Store ─────────────────────────────────────────────────
	var store backend.SessionStore
	if cfg.SessionStore == config.SessionStoreRedis {
		rdb, err := database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, func() { _ = rdb.Close() })
		store = session.NewRedisStore(rdb, cfg.DeviceID)
	}

	auth := backend.NewAuthClient(client, store)
	if err := auth.Restore(ctx); err != nil {
		log.Warn().Err(err).Msg("Restore session failed")
	}

	// ─── Profile Source ────────────────────────────────────────────────
	var profiles service.ProfileFinder = backend.NewProfileTable(backend.NewRestClient(client, auth))
	if cfg.ProfileSource == config.ProfileSourcePostgres {
		pool, err := database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
		closers = append(closers, pool.Close)
		profiles = repository.NewProfileRepository(pool)
	}

	return service.NewAuthService(profiles, auth, log), cleanup, nil
}

func runLogin(ctx context.Context, svc *service.AuthService, log zerolog.Logger, showPassword bool) error {
	if svc.IsLoggedIn() {
		if p := svc.GetCurrentProfile(ctx); p != nil {
			terminal.RenderHome(os.Stdout, p)
			return nil
		}
	}

	ctrl := controller.NewLoginController(svc, log)
	defer ctrl.Close()
	if showPassword {
		ctrl.TogglePasswordVisibility()
	}

	var hidden terminal.PasswordReader
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		hidden = func() (string, error) {
			b, err := term.ReadPassword(fd)
			return string(b), err
		}
	}

	p, err := terminal.NewScreen(os.Stdin, os.Stdout, hidden).RunLogin(ctx, ctrl)
	if errors.Is(err, io.EOF) {
		return errors.New("input ended before sign-in")
	}
	if err != nil {
		return err
	}
	terminal.RenderHome(os.Stdout, p)
	return nil
}

func runWhoami(ctx context.Context, svc *service.AuthService) error {
	if !svc.IsLoggedIn() {
		return errors.New("not signed in")
	}
	p := svc.GetCurrentProfile(ctx)
	if p == nil {
		return errors.New("profile for this session could not be loaded")
	}
	terminal.RenderProfile(os.Stdout, p)
	if exp := svc.Session().Expiry(); !exp.IsZero() {
		fmt.Printf("  Session expires %s\n", exp.Local().Format(time.RFC1123))
	}
	return nil
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: oxedro [flags] [login|whoami|logout]")
	fmt.Fprintln(os.Stderr, "Without SESSION_STORE=redis the session ends when the command exits.")
	fmt.Fprintln(os.Stderr, "Flags:")
	flag.PrintDefaults()
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
