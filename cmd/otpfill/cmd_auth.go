package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/nhle/otp-autofill/internal/credential"
	"github.com/nhle/otp-autofill/internal/model"
	"github.com/nhle/otp-autofill/internal/source/email"
	"github.com/nhle/otp-autofill/internal/source/gmail"
	"github.com/nhle/otp-autofill/internal/store"
	"github.com/nhle/otp-autofill/internal/ui/setup"
)

var authManual bool

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Sign in to the configured mail provider",
	Long: `For Gmail, opens the Google consent page and stores the resulting
token in the system keyring. For IMAP, verifies the stored password.`,
	RunE: runAuth,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke and forget the stored credentials",
	RunE:  runLogout,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sign-in state and the last code",
	RunE:  runStatus,
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Choose a mail provider and enter its settings",
	RunE:  runSetup,
}

func init() {
	authCmd.Flags().BoolVar(&authManual, "manual", false, "Paste the authorization code instead of using a local redirect")
}

func runAuth(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	out := cmd.OutOrStdout()
	switch model.ProviderType(cfg.Mail.Provider) {
	case model.ProviderGmail:
		if cfg.Gmail.ClientID == "" {
			return errors.New("gmail.client_id is not set, run 'otpfill setup' first")
		}
		auth := gmail.NewAuth(cfg.Gmail, vault, logger)
		if authManual || cfg.Gmail.RedirectURL != "" {
			err = manualAuth(ctx, auth)
		} else {
			loopCtx, loopCancel := context.WithTimeout(ctx, 5*time.Minute)
			defer loopCancel()
			_, err = auth.Loopback(loopCtx, func(u string) {
				fmt.Fprintf(out, "Open this URL to sign in:\n\n  %s\n\n", u)
			})
		}
		if err != nil {
			return err
		}
	case model.ProviderIMAP:
		password, err := vault.Get(credential.KeyIMAPPassword)
		if err != nil {
			return fmt.Errorf("no IMAP password stored, run 'otpfill setup': %w", err)
		}
		if err := email.NewAdapter(cfg.IMAP, password).ValidateConnection(ctx); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown mail provider %q", cfg.Mail.Provider)
	}

	if err := st.SetBool(ctx, store.KeyAuthenticated, true); err != nil {
		return err
	}
	fmt.Fprintln(out, "Signed in.")
	return nil
}

func manualAuth(ctx context.Context, auth *gmail.Auth) error {
	verifier := oauth2.GenerateVerifier()
	var code string
	if err := setup.CodeForm(auth.AuthCodeURL("otpfill", verifier), &code).Run(); err != nil {
		return err
	}
	_, err := auth.Exchange(ctx, code, verifier)
	return err
}

func runLogout(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	switch model.ProviderType(cfg.Mail.Provider) {
	case model.ProviderGmail:
		if err := gmail.NewAuth(cfg.Gmail, vault, logger).Revoke(ctx); err != nil {
			logger.Warn("revoking gmail token", zap.Error(err))
		}
	case model.ProviderIMAP:
		if err := vault.Delete(credential.KeyIMAPPassword); err != nil {
			return err
		}
	}

	if err := st.SetBool(ctx, store.KeyAuthenticated, false); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()
	return printStatus(cmd.Context(), cmd.OutOrStdout(), st)
}

func printStatus(ctx context.Context, w io.Writer, st store.Store) error {
	authed, err := st.GetBool(ctx, store.KeyAuthenticated)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Provider:      %s\n", cfg.Mail.Provider)
	fmt.Fprintf(w, "Authenticated: %t\n", authed)

	last, err := st.LastCode(ctx)
	if err != nil {
		return err
	}
	if last == nil {
		fmt.Fprintln(w, "Last code:     none")
	} else {
		fmt.Fprintf(w, "Last code:     %s (%s, %s)\n",
			last.Value, last.Provider, last.FoundAt.Local().Format(time.DateTime))
	}

	checks, err := st.RecentChecks(ctx, 1)
	if err != nil {
		return err
	}
	if len(checks) > 0 {
		c := checks[0]
		fmt.Fprintf(w, "Last check:    %s at %s\n", c.Status, c.FinishedAt.Local().Format(time.DateTime))
	}
	return nil
}

func runSetup(cmd *cobra.Command, args []string) error {
	values := setup.ValuesFrom(cfg)
	if err := setup.Form(values).Run(); err != nil {
		return err
	}
	if err := setup.Apply(cfg, values, vault); err != nil {
		return err
	}
	if err := model.SaveConfig(configPath, cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s. Run 'otpfill auth' to sign in.\n", configPath)
	return nil
}
