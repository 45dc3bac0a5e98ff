// sessionctl is a small command line client for the auth backend.
// It keeps the session sealed in a local file between invocations, so
// every run goes through the same restore, refresh and logout paths a
// long-lived client application would.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/avoronova/sessionkit/internal/guard"
	"github.com/avoronova/sessionkit/internal/interceptor"
	"github.com/avoronova/sessionkit/internal/logger"
	"github.com/avoronova/sessionkit/internal/models"
	"github.com/avoronova/sessionkit/internal/securestore"
	"github.com/avoronova/sessionkit/internal/session"
	"github.com/avoronova/sessionkit/internal/sessionstore"
	"github.com/avoronova/sessionkit/internal/transport"
	"github.com/avoronova/sessionkit/internal/validate"
)

func main() {
	if err := run(os.Args[1:], os.Getenv, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

const usage = `Usage: sessionctl [flags] <command>

Commands:
  register <email>   create an account
  login <email>      sign in and persist the session
  status             report whether a valid session is stored
  whoami             call the protected /me endpoint
  logout             sign out and clear the stored session
`

func run(args []string, getenv func(string) string, out io.Writer) error {
	fs := pflag.NewFlagSet("sessionctl", pflag.ContinueOnError)
	backendURL := fs.StringP("backend", "b", "http://localhost:8000", "Auth backend base URL")
	sessionFile := fs.StringP("session-file", "f", defaultSessionFile(getenv), "Where the sealed session lives")
	logLevel := fs.StringP("log-level", "l", "warn", "Logging level")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fmt.Fprint(out, usage)
		return nil
	}

	key := getenv("SESSIONCTL_KEY")
	if key == "" {
		return fmt.Errorf("SESSIONCTL_KEY must hold a hex key, generate one with genkey")
	}

	l := logger.New(*logLevel)

	secrets, err := securestore.NewFileStore(*sessionFile, key)
	if err != nil {
		return fmt.Errorf("session file store: %w", err)
	}
	store := sessionstore.New(secrets)
	client := transport.NewClient(*backendURL, l)

	svc, err := session.NewService(session.Config{Logger: l}, store, client)
	if err != nil {
		return err
	}

	ctx := context.Background()
	command, rest := fs.Arg(0), fs.Args()[1:]

	// Commands are treated as routes: login and register are public,
	// everything else needs a live session up front.
	g := guard.New(store, []string{"register", "login", "status", "logout"}, nil)
	if decision := g.CanAccess(ctx, command); !decision.Allowed {
		return fmt.Errorf("not signed in (%s), run login first", decision.Reason)
	}

	switch command {
	case "register":
		return cmdRegister(ctx, client, rest, out)
	case "login":
		return cmdLogin(ctx, svc, rest, out)
	case "status":
		return cmdStatus(ctx, svc, out)
	case "whoami":
		return cmdWhoami(ctx, *backendURL, store, svc, out)
	case "logout":
		if err := svc.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "Logged out")
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func cmdRegister(ctx context.Context, client *transport.Client, args []string, out io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: register <email>")
	}

	password, err := readPassword("Password: ")
	if err != nil {
		return err
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		return err
	}

	userID, err := client.Register(ctx, args[0], password, confirm)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Registered user", userID)
	return nil
}

func cmdLogin(ctx context.Context, svc *session.Service, args []string, out io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: login <email>")
	}

	password, err := readPassword("Password: ")
	if err != nil {
		return err
	}

	creds := models.Credentials{Username: args[0], Password: password}
	if err := validate.Login(creds); err != nil {
		return err
	}

	sess, err := svc.Login(ctx, creds)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Logged in as", sess.UserID)
	return nil
}

func cmdStatus(ctx context.Context, svc *session.Service, out io.Writer) error {
	fmt.Fprintln(out, svc.Restore(ctx))
	return nil
}

// cmdWhoami exercises the refresh-and-retry transport: if the stored
// access token went stale the call still succeeds after one refresh.
func cmdWhoami(ctx context.Context, backendURL string, store *sessionstore.Store, svc *session.Service, out io.Writer) error {
	httpClient := &http.Client{
		Transport: interceptor.New(http.DefaultTransport, store, svc, logger.NewNop()),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, backendURL+"/me", nil)
	if err != nil {
		return err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend answered %s", resp.Status)
	}

	var me struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s (%s)\n", me.Email, me.ID)
	return nil
}

func defaultSessionFile(getenv func(string) string) string {
	if home := getenv("HOME"); home != "" {
		return home + "/.sessionctl/session"
	}
	return ".sessionctl-session"
}

func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
