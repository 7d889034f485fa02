// Package setup holds the interactive forms used to configure the mail
// provider and sign in.
package setup

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/nhle/otp-autofill/internal/credential"
	"github.com/nhle/otp-autofill/internal/model"
)

// Values is what the setup form binds to.
type Values struct {
	Provider string

	ClientID     string
	ClientSecret string

	IMAPHost     string
	IMAPPort     string
	IMAPUsername string
	IMAPPassword string
	IMAPTLS      bool
	IMAPMailbox  string

	PollSec string
}

// SecretSetter stores a secret. credential.Vault satisfies it.
type SecretSetter interface {
	Set(key, value string) error
}

// ValuesFrom seeds the form from an existing configuration.
func ValuesFrom(cfg *model.AppConfig) *Values {
	return &Values{
		Provider:     cfg.Mail.Provider,
		ClientID:     cfg.Gmail.ClientID,
		ClientSecret: cfg.Gmail.ClientSecret,
		IMAPHost:     cfg.IMAP.Host,
		IMAPPort:     cfg.IMAP.Port,
		IMAPUsername: cfg.IMAP.Username,
		IMAPTLS:      cfg.IMAP.TLS,
		IMAPMailbox:  cfg.IMAP.Mailbox,
		PollSec:      fmt.Sprint(cfg.Poll.IntervalSec),
	}
}

// Form builds the setup form. Provider-specific groups are hidden unless
// that provider is selected.
func Form(v *Values) *huh.Form {
	hideGmail := func() bool { return v.Provider != string(model.ProviderGmail) }
	hideIMAP := func() bool { return v.Provider != string(model.ProviderIMAP) }

	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Mail provider").
				Options(
					huh.NewOption("Gmail - OAuth, read-only access", string(model.ProviderGmail)),
					huh.NewOption("IMAP - any mailbox with an app password", string(model.ProviderIMAP)),
				).
				Value(&v.Provider),
			huh.NewInput().
				Title("Poll interval (seconds)").
				Description("0 checks only on demand").
				Value(&v.PollSec).
				Validate(validateNumber),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("OAuth client ID").
				Description("Desktop app client from the Google Cloud console").
				Value(&v.ClientID).
				Validate(validateRequired("Client ID")),
			huh.NewInput().
				Title("OAuth client secret").
				EchoMode(huh.EchoModePassword).
				Value(&v.ClientSecret),
		).WithHideFunc(hideGmail),
		huh.NewGroup(
			huh.NewInput().
				Title("IMAP Host").
				Placeholder("imap.example.com").
				Value(&v.IMAPHost).
				Validate(validateRequired("IMAP Host")),
			huh.NewInput().
				Title("IMAP Port").
				Placeholder("993").
				Value(&v.IMAPPort).
				Validate(validatePort),
			huh.NewInput().
				Title("Username").
				Placeholder("user@example.com").
				Value(&v.IMAPUsername).
				Validate(validateRequired("Username")),
			huh.NewInput().
				Title("Password").
				Description("Stored in the system keyring").
				EchoMode(huh.EchoModePassword).
				Value(&v.IMAPPassword).
				Validate(validateRequired("Password")),
			huh.NewInput().
				Title("Mailbox").
				Placeholder("INBOX").
				Value(&v.IMAPMailbox),
			huh.NewConfirm().
				Title("Use TLS").
				Affirmative("Yes").
				Negative("No").
				Value(&v.IMAPTLS),
		).WithHideFunc(hideIMAP),
	)
}

// Apply copies form values into cfg and stores the IMAP password.
func Apply(cfg *model.AppConfig, v *Values, secrets SecretSetter) error {
	cfg.Mail.Provider = v.Provider
	if n, err := parseNumber(v.PollSec); err == nil {
		cfg.Poll.IntervalSec = n
	}

	switch model.ProviderType(v.Provider) {
	case model.ProviderGmail:
		cfg.Gmail.ClientID = strings.TrimSpace(v.ClientID)
		cfg.Gmail.ClientSecret = strings.TrimSpace(v.ClientSecret)
	case model.ProviderIMAP:
		cfg.IMAP.Host = strings.TrimSpace(v.IMAPHost)
		cfg.IMAP.Port = strings.TrimSpace(v.IMAPPort)
		cfg.IMAP.Username = strings.TrimSpace(v.IMAPUsername)
		cfg.IMAP.TLS = v.IMAPTLS
		if mb := strings.TrimSpace(v.IMAPMailbox); mb != "" {
			cfg.IMAP.Mailbox = mb
		}
		if v.IMAPPassword != "" {
			if err := secrets.Set(credential.KeyIMAPPassword, v.IMAPPassword); err != nil {
				return fmt.Errorf("saving IMAP password: %w", err)
			}
		}
	default:
		return fmt.Errorf("unknown mail provider %q", v.Provider)
	}
	return cfg.Validate()
}

// CodeForm asks for the authorization code of a manual sign-in.
func CodeForm(authURL string, code *string) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Sign in to Gmail").
				Description("Open this URL, approve access, then paste the code:\n\n" + authURL),
			huh.NewInput().
				Title("Authorization code").
				Value(code).
				Validate(validateRequired("Code")),
		),
	)
}

// ConfirmForm asks a yes/no question.
func ConfirmForm(title string, ok *bool) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Affirmative("Yes").
				Negative("No").
				Value(ok),
		),
	)
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validatePort(s string) error {
	n, err := parseNumber(s)
	if err != nil {
		return fmt.Errorf("port must be a number")
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

func validateNumber(s string) error {
	if _, err := parseNumber(s); err != nil {
		return fmt.Errorf("must be a whole number")
	}
	return nil
}

func parseNumber(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("not a number: %q", s)
		}
		n = n*10 + int(c-'0')
		if n > 1<<20 {
			return 0, fmt.Errorf("number too large: %q", s)
		}
	}
	return n, nil
}
