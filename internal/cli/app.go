// Package cli is the terminal client of the partner portal. It shares the session,
// account and guard packages with the web portal and keeps its session in a file.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"partner-portal/internal/account"
	"partner-portal/internal/api"
	"partner-portal/internal/gateway"
	"partner-portal/internal/guard"
	"partner-portal/internal/httperr"
	"partner-portal/internal/session"
	"partner-portal/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	defaultAPIBase = "http://127.0.0.1:8000"
	defaultProfile = "default"
	sessionTTL     = 12 * time.Hour
)

var (
	ErrNotLoggedIn = errors.New("not logged in; run 'portalctl login'")
	ErrExpired     = errors.New("session expired; run 'portalctl login' again")
)

// failure carries the user-facing text for err.
type failure struct {
	msg string
	err error
}

func (f *failure) Error() string { return f.msg }
func (f *failure) Unwrap() error { return f.err }

func userError(err error) error {
	if err == nil {
		return nil
	}
	return &failure{msg: httperr.Message(err), err: err}
}

// App holds what a command invocation needs. It is built once per process in the
// root command's pre-run so flags and environment are already resolved.
type App struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	v      *viper.Viper

	log      *slog.Logger
	prompt   *Prompter
	accounts *account.Service
	store    *session.Store
}

func newApp(in io.Reader, out, errOut io.Writer) *App {
	v := viper.New()
	v.SetEnvPrefix("PORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault("api_base", defaultAPIBase)
	v.SetDefault("profile", defaultProfile)
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("login_timeout", api.DefaultLoginTimeout)
	return &App{in: in, out: out, errOut: errOut, v: v}
}

// NewRootCommand builds the portalctl command tree reading from in and writing to out
// and errOut.
func NewRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := newApp(in, out, errOut)

	root := &cobra.Command{
		Use:   "portalctl",
		Short: "Partner portal terminal client",
		Long: `portalctl signs in to the partner portal backend and lists referrals,
users and audit activity from the terminal.

Examples:
  portalctl login --email agent@example.com
  portalctl referrals
  portalctl admin users --limit 20
  portalctl audit --limit 100`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.String("api-base", defaultAPIBase, "backend base URL (env PORTAL_API_BASE)")
	pf.String("profile", defaultProfile, "session profile, one per account (env PORTAL_PROFILE)")
	pf.String("session-file", "", "session file (default under the user config dir)")
	pf.Duration("timeout", 30*time.Second, "backend request timeout")
	pf.Duration("login-timeout", api.DefaultLoginTimeout, "sign-in and enrollment request timeout (env PORTAL_LOGIN_TIMEOUT)")
	pf.BoolP("verbose", "v", false, "debug logging on stderr")
	for key, flag := range map[string]string{
		"api_base":      "api-base",
		"profile":       "profile",
		"session_file":  "session-file",
		"timeout":       "timeout",
		"login_timeout": "login-timeout",
		"verbose":       "verbose",
	} {
		_ = a.v.BindPFlag(key, pf.Lookup(flag))
	}

	root.AddCommand(
		a.loginCommand(),
		a.logoutCommand(),
		a.whoamiCommand(),
		a.referralsCommand(),
		a.adminCommand(),
		a.auditCommand(),
	)
	return root
}

func (a *App) setup() error {
	a.log = logger.NewText(a.errOut, a.v.GetBool("verbose"))
	a.prompt = NewPrompter(a.in, a.out)

	base := strings.TrimRight(strings.TrimSpace(a.v.GetString("api_base")), "/")
	if u, err := url.Parse(base); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api base must be an absolute URL, got %q", base)
	}

	path := a.v.GetString("session_file")
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("locate config dir: %w (use --session-file)", err)
		}
		path = filepath.Join(dir, "partner-portal", "session.json")
	}
	profile := strings.TrimSpace(a.v.GetString("profile"))
	if profile == "" {
		profile = defaultProfile
	}

	gw := gateway.NewClient(base, gateway.WithTimeout(a.v.GetDuration("timeout")), gateway.WithLogger(a.log))
	a.accounts = account.NewService(gw, account.WithLogger(a.log), account.WithLoginTimeout(a.v.GetDuration("login_timeout")))
	a.store = session.NewStore(session.NewFileStorage(path), profile, session.NewMemoryCookies(), sessionTTL, session.WithLogger(a.log))
	a.log.Debug("client ready", "api_base", base, "session_file", path, "profile", profile)
	return nil
}

// signedIn runs the session check a protected command needs. A failed check has
// already cleared the stored session.
func (a *App) signedIn(ctx context.Context) (api.User, *api.Client, error) {
	cl := a.accounts.Client(a.store)
	chk := guard.NewCheck(a.store, cl, guard.WithLogger(a.log))
	defer chk.Close()

	switch chk.Run(ctx) {
	case guard.Authenticated:
		u, _ := chk.User()
		return u, cl, nil
	case guard.Unauthenticated:
		if errors.Is(chk.Err(), guard.ErrNoToken) {
			return api.User{}, nil, ErrNotLoggedIn
		}
		a.log.Debug("session check failed", "error", chk.Err())
		if httperr.Classify(chk.Err()) == httperr.Network {
			return api.User{}, nil, userError(chk.Err())
		}
		return api.User{}, nil, ErrExpired
	default:
		if err := ctx.Err(); err != nil {
			return api.User{}, nil, err
		}
		return api.User{}, nil, errors.New("session check did not finish")
	}
}
