package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/rustycl0ck/go-f5-sso/config"
	"github.com/rustycl0ck/go-f5-sso/credentials"
	"github.com/rustycl0ck/go-f5-sso/epi"
	"github.com/rustycl0ck/go-f5-sso/portal"
)

func main() {
	var server = kingpin.Flag("server", "the F5 APM portal to authenticate against").Short('s').Required().String()
	var username = kingpin.Flag("username", "username, without any @domain suffix (prompted when empty)").Short('u').Envar("F5_USERNAME").String()
	var password = kingpin.Flag("password", "password (prompted when empty)").Short('p').Envar("F5_PASSWORD").String()
	var otpSecret = kingpin.Flag("otp-secret", "base32 TOTP secret; one time codes are prompted for when empty").Short('t').Envar("F5_OTP_SECRET").String()
	var openMode = kingpin.Flag("open-mode", "how the endpoint inspector is launched").Short('o').Default(string(config.DefaultOpenMode)).Enum(string(config.OpenModeXDG), string(config.OpenModeDirect))
	var userAgent = kingpin.Flag("user-agent", "User-Agent header sent to the portal").Default(config.DefaultUserAgent).String()
	var maxIterations = kingpin.Flag("max-iterations", "give up after this many login steps (0 means never)").Default("0").Int()
	var logFormat = kingpin.Flag("log-format", "log format").Default("logfmt").Enum("json", "logfmt")
	var logLevel = kingpin.Flag("log-level", "log level [WARNING: 'debug' level will print the MRHSession cookie to the console]").Default("info").Enum("info", "warn", "error", "debug", "none")
	kingpin.Parse()

	logger := newLogger(os.Stderr, *logFormat, *logLevel)

	cfg := &config.Config{
		Server:        *server,
		Username:      *username,
		Password:      *password,
		OTPSecret:     *otpSecret,
		OpenMode:      config.OpenMode(*openMode),
		UserAgent:     *userAgent,
		MaxIterations: *maxIterations,
	}
	if err := run(context.Background(), cfg, nil, os.Stdout, logger); err != nil {
		level.Error(logger).Log("msg", "❌ failed to obtain session token", "err", err)
		os.Exit(1)
	}
}

func newLogger(w io.Writer, format, lvl string) log.Logger {
	var logger log.Logger
	if format == "json" {
		logger = log.NewJSONLogger(log.NewSyncWriter(w))
	} else {
		logger = log.NewLogfmtLogger(log.NewSyncWriter(w))
	}

	switch lvl {
	case "info":
		logger = level.NewFilter(logger, level.AllowInfo())
	case "warn":
		logger = level.NewFilter(logger, level.AllowWarn())
	case "error":
		logger = level.NewFilter(logger, level.AllowError())
	case "debug":
		logger = level.NewFilter(logger, level.AllowDebug())
	case "none":
		logger = level.NewFilter(logger, level.AllowNone())
	}

	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
}

// run authenticates and writes the session token to stdout. Nothing is
// written to stdout unless a token was obtained.
func run(ctx context.Context, cfg *config.Config, transport http.RoundTripper, stdout io.Writer, logger log.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	session, err := portal.NewSession(cfg.Server, cfg.UserAgent, transport, logger)
	if err != nil {
		return err
	}
	flow := &portal.Flow{
		Session:       session,
		Credentials:   credentials.New(cfg.Username, cfg.Password, cfg.OTPSecret, credentials.NewTerminalPrompter(), logger),
		Inspector:     epi.NewRunner(logger),
		OpenMode:      cfg.OpenMode,
		Logger:        logger,
		MaxIterations: cfg.MaxIterations,
	}

	token, err := flow.Run(ctx)
	if err != nil {
		return err
	}
	level.Debug(logger).Log("msg", "obtained session token", "token", token)
	_, err = fmt.Fprintln(stdout, token)
	return err
}
