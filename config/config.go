package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/pquerna/otp/totp"
)

const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/103.0.0.0 Safari/537.36"

var ErrUnknownOpenMode = errors.New("unknown open mode")

// ConfigurationError reports a setting that was rejected at startup, before
// any request is sent to the portal.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

/*******************************************************
Endpoint inspector invocation
**********************************************
  xdg:    bash -x /usr/bin/xdg-open 'f5-epi://vpn.example.com?server=vpn.example.com&protocol=https&port=443&sid=...'
  direct: /opt/f5/epi/f5epi 'f5-epi://vpn.example.com?server=vpn.example.com&protocol=https&port=443&sid=...'
*******************************************************/
type OpenMode string

const (
	OpenModeXDG    OpenMode = "xdg"
	OpenModeDirect OpenMode = "direct"

	XDGOpenPath     = "/usr/bin/xdg-open"
	EPIHelperPath   = "/opt/f5/epi/f5epi"
	DefaultOpenMode = OpenModeDirect
)

// Command returns the argv that hands url to the endpoint inspector.
func (m OpenMode) Command(url string) ([]string, error) {
	switch m {
	case OpenModeXDG:
		return []string{"bash", "-x", XDGOpenPath, url}, nil
	case OpenModeDirect:
		return []string{EPIHelperPath, url}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownOpenMode, string(m))
	}
}

type Config struct {
	Server    string
	Username  string
	Password  string
	OTPSecret string
	OpenMode  OpenMode
	UserAgent string

	// MaxIterations caps the authentication loop. Zero means no cap.
	MaxIterations int
}

// Validate checks everything that can be checked without talking to the
// portal. The open mode is checked where the inspector is launched.
func (c *Config) Validate() error {
	if c.Server == "" {
		return &ConfigurationError{Field: "server", Err: errors.New("must not be empty")}
	}
	if c.MaxIterations < 0 {
		return &ConfigurationError{Field: "max-iterations", Err: errors.New("must not be negative")}
	}
	if c.OTPSecret != "" {
		if _, err := totp.GenerateCode(c.OTPSecret, time.Now()); err != nil {
			return &ConfigurationError{Field: "otp-secret", Err: err}
		}
	}
	return nil
}
