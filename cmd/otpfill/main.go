// Command otpfill reads the newest verification mail and types its code
// into the open browser tabs.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/otp-autofill/internal/credential"
	"github.com/nhle/otp-autofill/internal/logging"
	"github.com/nhle/otp-autofill/internal/model"
	"github.com/nhle/otp-autofill/internal/source"
	"github.com/nhle/otp-autofill/internal/source/email"
	"github.com/nhle/otp-autofill/internal/source/gmail"
	"github.com/nhle/otp-autofill/internal/store"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg    *model.AppConfig
	logger *zap.Logger

	// vault is replaced in tests.
	vault = credential.NewVault()
)

var rootCmd = &cobra.Command{
	Use:   "otpfill",
	Short: "Fill one-time codes from your mailbox into the browser",
	Long: `otpfill checks the newest message in your mailbox for a verification
code and fills it into the code fields of the open browser tabs.

Pages that have no code field yet keep the code pending and are filled
as soon as the field appears.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = model.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if logger == nil {
			logger, err = logging.New(cfg.Log.Level, verbose, cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", model.DefaultConfigPath(), "Config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		checkCmd,
		watchCmd,
		authCmd,
		logoutCmd,
		statusCmd,
		setupCmd,
		extractCmd,
		planCmd,
		historyCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// openStore opens the local database, creating its directory.
func openStore() (*store.SQLiteStore, error) {
	if dir := filepath.Dir(cfg.Store.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory %s: %w", dir, err)
		}
	}
	return store.NewSQLiteStore(cfg.Store.Path)
}

// newSource builds the configured mail source from stored credentials.
func newSource(ctx context.Context) (source.MailSource, error) {
	switch model.ProviderType(cfg.Mail.Provider) {
	case model.ProviderGmail:
		ts, err := gmail.NewAuth(cfg.Gmail, vault, logger).TokenSource(ctx)
		if errors.Is(err, gmail.ErrNoToken) {
			return nil, &source.AuthError{Provider: model.ProviderGmail, Message: "run 'otpfill auth' first"}
		}
		if err != nil {
			return nil, err
		}
		return gmail.NewAdapter(ctx, ts)
	case model.ProviderIMAP:
		password, err := vault.Get(credential.KeyIMAPPassword)
		if errors.Is(err, credential.ErrNotFound) {
			return nil, &source.AuthError{Provider: model.ProviderIMAP, Message: "run 'otpfill setup' first"}
		}
		if err != nil {
			return nil, err
		}
		return email.NewAdapter(cfg.IMAP, password), nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Mail.Provider)
	}
}
