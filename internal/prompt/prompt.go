// Package prompt provides the interactive forms used by the CLI.
package prompt

import (
	"errors"
	"strings"

	"github.com/charmbracelet/huh"
)

// ErrRequired is returned by required-field validation.
var ErrRequired = errors.New("this field is required")

// Credentials is the result of the credentials form.
type Credentials struct {
	ClientID     string
	ClientSecret string
	Save         bool
}

// Prompter asks the user for input. The huh-backed implementation is
// returned by New; tests substitute their own.
type Prompter interface {
	Credentials(defaults Credentials) (Credentials, error)
	Confirm(message string, defaultValue bool) (bool, error)
}

// New returns a Prompter backed by huh forms.
func New() Prompter {
	return huhPrompter{}
}

type huhPrompter struct{}

// Credentials asks for the client ID and secret. The secret is masked.
func (huhPrompter) Credentials(defaults Credentials) (Credentials, error) {
	out := defaults
	out.Save = true

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Client ID").
				Description("From your Lightcast API account").
				Value(&out.ClientID).
				Validate(required),
			huh.NewInput().
				Title("Client secret").
				EchoMode(huh.EchoModePassword).
				Value(&out.ClientSecret).
				Validate(required),
			huh.NewConfirm().
				Title("Save the client ID to the config file?").
				Affirmative("Yes").
				Negative("No").
				Value(&out.Save),
		),
	)
	if err := form.Run(); err != nil {
		return defaults, err
	}

	out.ClientID = strings.TrimSpace(out.ClientID)
	out.ClientSecret = strings.TrimSpace(out.ClientSecret)
	return out, nil
}

// Confirm shows a yes/no confirmation prompt.
func (huhPrompter) Confirm(message string, defaultValue bool) (bool, error) {
	result := defaultValue
	err := huh.NewConfirm().
		Title(message).
		Affirmative("Yes").
		Negative("No").
		Value(&result).
		Run()
	if err != nil {
		return defaultValue, err
	}
	return result, nil
}

func required(s string) error {
	if strings.TrimSpace(s) == "" {
		return ErrRequired
	}
	return nil
}

// IsAborted reports whether err means the user dismissed the form.
func IsAborted(err error) bool {
	return errors.Is(err, huh.ErrUserAborted)
}
