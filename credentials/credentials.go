package credentials

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pquerna/otp/totp"
)

// Source resolves the values typed into the portal's forms. Each value comes
// from the pre-supplied field if set, then (for one-time codes only) from
// the TOTP secret, and finally from the Prompter.
type Source struct {
	username  string
	password  string
	otpSecret string

	prompter Prompter
	logger   log.Logger

	// Now is the clock used for TOTP derivation.
	Now func() time.Time
}

// New returns a Source. Empty values are prompted for; a nil prompter
// falls back to the controlling terminal.
func New(username, password, otpSecret string, prompter Prompter, logger log.Logger) *Source {
	if prompter == nil {
		prompter = NewTerminalPrompter()
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Source{
		username:  username,
		password:  password,
		otpSecret: otpSecret,
		prompter:  prompter,
		logger:    log.With(logger, "component", "credentials"),
		Now:       time.Now,
	}
}

func (s *Source) Username() (string, error) {
	u := s.username
	if u == "" {
		var err error
		if u, err = s.prompter.Prompt("Username (without suffix): "); err != nil {
			return "", fmt.Errorf("reading username: %w", err)
		}
	}
	return NormalizeUsername(u), nil
}

func (s *Source) Password() (string, error) {
	if s.password != "" {
		return s.password, nil
	}
	p, err := s.prompter.PromptHidden("Password: ")
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return p, nil
}

// OneTimeCode serves both the OTP and the secondary verification challenges.
func (s *Source) OneTimeCode(label string) (string, error) {
	if s.otpSecret != "" {
		code, err := totp.GenerateCode(s.otpSecret, s.Now())
		if err != nil {
			return "", fmt.Errorf("generating one time code: %w", err)
		}
		level.Debug(s.logger).Log("msg", "derived one time code from secret")
		return code, nil
	}
	code, err := s.prompter.PromptHidden(label)
	if err != nil {
		return "", fmt.Errorf("reading one time code: %w", err)
	}
	return strings.TrimSpace(code), nil
}

// NormalizeUsername lower-cases and trims name and strips any "@domain"
// suffix; the portal rejects anything else.
func NormalizeUsername(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	return strings.ToLower(name)
}
