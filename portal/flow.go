package portal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/rustycl0ck/go-f5-sso/config"
	"github.com/rustycl0ck/go-f5-sso/epi"
)

const (
	authFormID  = "auth_form"
	statusPath  = "/my.status.eps"
	policyPath  = "/my.policy"
	otpLabel    = "🔑 OTP Token: "
	verifyLabel = "#️⃣ Microsoft Verification Code: "
	otpField    = "otp"
	verifyField = "_F5_challenge"
	userField   = "username"
	passwdField = "password"
)

var ErrIterationLimit = errors.New("authentication did not finish within the iteration limit")

type Credentials interface {
	Username() (string, error)
	Password() (string, error)
	OneTimeCode(label string) (string, error)
}

type Inspector interface {
	Run(ctx context.Context, argv []string, env []string) (*epi.Result, error)
}

// Flow walks the portal's login pages until it reaches one it does not
// recognise, then hands back the MRHSession cookie.
type Flow struct {
	Session     *Session
	Credentials Credentials
	Inspector   Inspector
	OpenMode    config.OpenMode
	Logger      log.Logger

	// MaxIterations bounds the number of steps taken. Zero means the flow
	// keeps going for as long as the portal keeps serving known pages.
	MaxIterations int
}

// Run performs exactly one fetch or form submission per iteration and
// classifies its result on the next. Any error ends the run.
func (f *Flow) Run(ctx context.Context) (string, error) {
	logger := f.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	logger = log.With(logger, "stage", "authentication")

	level.Info(logger).Log("msg", fmt.Sprintf("🌐 Opening %s ...", f.Session.Server()))
	if err := f.Session.Open(ctx, "/"); err != nil {
		return "", fmt.Errorf("opening portal: %w", err)
	}

	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		state := Classify(f.Session.Body())
		if state == Terminal {
			token, err := f.Session.Token()
			if err != nil {
				return "", err
			}
			level.Info(logger).Log("msg", "✅ Authentication complete", "steps", i)
			return token, nil
		}
		if f.MaxIterations > 0 && i >= f.MaxIterations {
			return "", fmt.Errorf("%w: still on %s after %d steps", ErrIterationLimit, state, i)
		}

		level.Info(logger).Log("msg", "🌐 Page: "+state.String(), "url", f.Session.URL().String())
		if err := f.step(ctx, logger, state); err != nil {
			return "", fmt.Errorf("%s: %w", state, err)
		}
	}
}

func (f *Flow) step(ctx context.Context, logger log.Logger, state State) error {
	switch state {
	case Login:
		user, err := f.Credentials.Username()
		if err != nil {
			return err
		}
		pass, err := f.Credentials.Password()
		if err != nil {
			return err
		}
		level.Info(logger).Log("msg", "🪪  Logging in using username & password", "username", user)
		return f.Session.SubmitForm(ctx, authFormID, map[string]string{userField: user, passwdField: pass})

	case EndpointInspection:
		return f.inspect(ctx, logger)

	case OneTimePassword:
		level.Info(logger).Log("msg", "🔑 Entering One Time Token...")
		code, err := f.Credentials.OneTimeCode(otpLabel)
		if err != nil {
			return err
		}
		return f.Session.SubmitForm(ctx, authFormID, map[string]string{otpField: code})

	case SecondaryVerification:
		level.Info(logger).Log("msg", "#️⃣  Entering Microsoft Verification...")
		code, err := f.Credentials.OneTimeCode(verifyLabel)
		if err != nil {
			return err
		}
		return f.Session.SubmitForm(ctx, authFormID, map[string]string{verifyField: code})
	}
	return fmt.Errorf("no action for state %s", state)
}

// inspect hands the session to the local endpoint inspector and then asks
// the portal whether it liked the result. The helper's exit status is only
// logged; the next page decides.
func (f *Flow) inspect(ctx context.Context, logger log.Logger) error {
	sid, err := f.Session.Token()
	if err != nil {
		return err
	}
	argv, err := f.OpenMode.Command(epi.InspectionURL(f.Session.Server(), sid))
	if err != nil {
		return err
	}

	level.Info(logger).Log("msg", "🔍 Starting Endpoint Inspector (EPI)...", "open_mode", string(f.OpenMode))
	level.Debug(logger).Log("msg", "🔍 Opening: "+strings.Join(argv, " "))
	level.Info(logger).Log("msg", "🔍 Waiting for endpoint inspector to finish...")
	res, err := f.Inspector.Run(ctx, argv, nil)
	if err != nil {
		return fmt.Errorf("running endpoint inspector: %w", err)
	}
	if res.ExitCode != 0 {
		level.Warn(logger).Log("msg", "endpoint inspector exited with non-zero status", "exit_code", res.ExitCode)
	}

	if err := f.Session.Peek(ctx, statusPath); err != nil {
		return fmt.Errorf("checking inspection status: %w", err)
	}
	if err := f.Session.Open(ctx, policyPath); err != nil {
		return fmt.Errorf("continuing policy: %w", err)
	}
	return nil
}
