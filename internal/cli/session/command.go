package session

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Anvoria/alumnet/internal/client"
	"github.com/Anvoria/alumnet/internal/config"
	"github.com/Anvoria/alumnet/internal/monitor"
)

// Command signs in against a running server and keeps the session alive
// from the terminal. Every line read from stdin counts as a key press.
type Command struct {
	In  io.Reader
	Out io.Writer

	// Options are passed to the monitor, mostly for tests
	Options []monitor.Option
}

func (c *Command) Name() string {
	return "session"
}

func (c *Command) Description() string {
	return "Sign in and watch a session for inactivity (watch)"
}

func (c *Command) Run(args []string) error {
	if len(args) < 1 {
		c.printUsage()
		return fmt.Errorf("subcommand required")
	}

	switch args[0] {
	case "watch":
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		_, err := c.Watch(ctx, args[1:])
		return err
	default:
		c.printUsage()
		return fmt.Errorf("unknown subcommand: %s", args[0])
	}
}

func (c *Command) printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: alumnet-cli session watch [args]\n\n")
	fmt.Fprintf(os.Stderr, "  -api <url>          API base URL (default: $ALUMNET_API_URL)\n")
	fmt.Fprintf(os.Stderr, "  -email <email>      Account email (required)\n")
	fmt.Fprintf(os.Stderr, "  -password <pass>    Account password (default: $ALUMNET_PASSWORD)\n")
	fmt.Fprintf(os.Stderr, "  -device <id>        Device identifier\n")
	fmt.Fprintf(os.Stderr, "  -remember           Remember this device\n")
	fmt.Fprintf(os.Stderr, "  -location <path>    Page being watched (default: /dashboard)\n")
}

func (c *Command) in() io.Reader {
	if c.In == nil {
		return os.Stdin
	}
	return c.In
}

func (c *Command) out() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

// Watch parses args, signs in and runs the monitor until it finishes
func (c *Command) Watch(ctx context.Context, args []string) (monitor.Outcome, error) {
	env := config.LoadEnv()

	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	api := fs.String("api", env.APIBaseURL, "API base URL")
	email := fs.String("email", "", "Account email")
	password := fs.String("password", os.Getenv("ALUMNET_PASSWORD"), "Account password")
	deviceID := fs.String("device", "", "Device identifier")
	remember := fs.Bool("remember", false, "Remember this device")
	location := fs.String("location", "/dashboard", "Page being watched")

	if err := fs.Parse(args); err != nil {
		return monitor.Stopped, err
	}
	if *email == "" || *password == "" {
		return monitor.Stopped, fmt.Errorf("email and password are required")
	}

	monitorCfg := monitor.Config{}
	cookieName := ""
	if cfg, err := config.Load(env.ConfigPath); err == nil {
		monitorCfg = monitor.ConfigFrom(&cfg.Session, cfg.Routes)
		cookieName = cfg.Auth.Cookie()
	} else {
		slog.Debug("No config file, using default session timings", "error", err)
	}

	cl := client.New(*api, cookieName)
	view, err := cl.SignIn(ctx, client.SignInParams{
		Email:          *email,
		Password:       *password,
		DeviceID:       *deviceID,
		RememberDevice: *remember,
		UserAgent:      "alumnet-cli",
	})
	if err != nil {
		return monitor.Stopped, err
	}

	w := c.out()
	fmt.Fprintf(w, "Signed in as %s (status %s, trusted device: %t)\n", view.Name, view.Status, view.IsTrustedDevice)

	m := monitor.New(monitorCfg, cl, &printNotifier{w: w}, cl, c.Options...)
	go pumpKeys(c.in(), m)

	outcome := m.Run(ctx, *location, monitor.Session{
		LastActivity: view.LastActivity,
		Trusted:      view.IsTrustedDevice,
	})

	switch outcome {
	case monitor.TimedOut:
		fmt.Fprintf(w, "Signed out, continue at %s\n", cl.LastRedirect())
	case monitor.Suspended:
		fmt.Fprintf(w, "%s is public, nothing to watch\n", *location)
	case monitor.Stopped:
		// leave the session to expire on its own
		fmt.Fprintln(w, "Stopped watching")
	}

	return outcome, nil
}

// pumpKeys forwards each stdin line to m as a key press until EOF
func pumpKeys(in io.Reader, m *monitor.Monitor) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		select {
		case <-m.Done():
			return
		default:
		}
		m.Record(monitor.KeyDown)
	}
}

type printNotifier struct {
	w io.Writer
}

func (p *printNotifier) Notify(title, message string) {
	fmt.Fprintf(p.w, "%s: %s\n", title, message)
}
