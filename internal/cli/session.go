package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"partner-portal/internal/account"
	"partner-portal/internal/mfa"

	"github.com/spf13/cobra"
)

// maxCodeAttempts bounds the verification prompts of one enrollment.
const maxCodeAttempts = 5

func (a *App) loginCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in, enrolling an authenticator when the backend asks for one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			email, _ := cmd.Flags().GetString("email")
			return a.login(cmd.Context(), email)
		},
	}
	cmd.Flags().String("email", "", "account email (prompted when empty)")
	return cmd
}

func (a *App) login(ctx context.Context, email string) error {
	var err error
	if email = strings.TrimSpace(email); email == "" {
		if email, err = a.prompt.Line("Email: "); err != nil {
			return err
		}
	}
	password, err := a.prompt.Secret("Password: ")
	if err != nil {
		return err
	}

	res, err := a.accounts.Login(ctx, a.store, email, password, "")
	if err != nil {
		return userError(err)
	}
	if res.Outcome == account.OutcomeEnroll {
		flow, err := a.accounts.StartEnrollment(ctx, res, email, password)
		if err != nil && flow == nil {
			return userError(err)
		}
		defer flow.Discard()
		if err := a.enroll(ctx, flow); err != nil {
			return err
		}
	}

	role := a.store.Role(ctx)
	fmt.Fprintf(a.out, "Signed in as %s (%s).\n", email, role)
	return nil
}

// enroll walks the user through authenticator setup. The secret and recovery codes
// are printed once; only the code prompt repeats.
func (a *App) enroll(ctx context.Context, flow *mfa.Flow) error {
	snap := flow.Snapshot()
	if snap.Enrollment == nil {
		if snap.Error != nil {
			fmt.Fprintf(a.out, "Could not start enrollment: %s Retrying.\n", userError(snap.Error))
		}
		if err := flow.Reload(ctx); err != nil {
			return userError(err)
		}
		snap = flow.Snapshot()
	}
	e := snap.Enrollment
	if e == nil {
		return errors.New("enrollment did not start")
	}

	fmt.Fprintln(a.out, "Multi-factor authentication is required. Add this account to your authenticator app.")
	fmt.Fprintf(a.out, "  Secret:  %s\n", e.Secret)
	fmt.Fprintf(a.out, "  URL:     %s\n", e.OTPAuthURL)
	if len(e.RecoveryCodes) > 0 {
		fmt.Fprintln(a.out, "Recovery codes (store them safely, they are shown only once):")
		for _, rc := range e.RecoveryCodes {
			fmt.Fprintf(a.out, "  %s\n", rc)
		}
	}

	ctx = account.WithSession(ctx, a.store)
	for attempt := 1; attempt <= maxCodeAttempts; attempt++ {
		code, err := a.prompt.Line("6-digit code (r for a recovery code): ")
		if err != nil {
			return err
		}
		if strings.EqualFold(code, "r") {
			rc, perr := a.prompt.Line("Recovery code: ")
			if perr != nil {
				return perr
			}
			err = flow.SubmitRecovery(ctx, rc)
		} else {
			err = flow.Submit(ctx, code)
		}
		if err == nil {
			return nil
		}
		if errors.Is(err, mfa.ErrDiscarded) {
			return err
		}
		a.log.Debug("enrollment submit failed", "attempt", attempt, "error", err)
		fmt.Fprintln(a.out, userError(err))
	}
	return errors.New("too many attempts; run 'portalctl login' to start again")
}

func (a *App) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.accounts.Logout(cmd.Context(), a.store); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Signed out.")
			return nil
		},
	}
}

func (a *App) whoamiCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if _, _, err := a.signedIn(ctx); err != nil {
				return err
			}
			u, err := a.accounts.WhoAmI(ctx, a.store)
			if err != nil {
				return userError(err)
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return writeJSON(a.out, u)
			}
			fmt.Fprintf(a.out, "Name:   %s\n", u.DisplayName())
			fmt.Fprintf(a.out, "Email:  %s\n", orDash(u.Email))
			fmt.Fprintf(a.out, "Role:   %s\n", u.Role)
			fmt.Fprintf(a.out, "MFA:    %s\n", yesNo(u.MFAEnabled))
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "output as JSON")
	return cmd
}
