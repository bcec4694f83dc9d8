package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	apiURL     string
	stateDir   string
	debug      bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "hrauth",
		Short: "HR dashboard authentication service and session client",
		Long: `hrauth runs the authentication API of the HR dashboard and provides a
command line session client for it.

The client keeps its access token and refresh cookie under --state-dir so a
session survives between invocations. Expired access tokens are refreshed
transparently.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "server config file (yaml or json)")
	flags.StringVar(&opts.apiURL, "api", envOr("HRAUTH_API_URL", "http://localhost:8080"), "API base url")
	flags.StringVar(&opts.stateDir, "state-dir", defaultStateDir(), "directory holding the client session")
	flags.BoolVar(&opts.debug, "debug", false, "verbose output")

	cmd.AddCommand(
		newServeCmd(opts),
		newUserCmd(opts),
		newLoginCmd(opts),
		newWhoamiCmd(opts),
		newLogoutCmd(opts),
		newGetCmd(opts),
	)

	return cmd
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hrauth"
	}
	return filepath.Join(home, ".hrauth")
}

// newLogger builds the process logger, components take named children of it
func newLogger(debug bool) *glog.BaseLogger {
	level := glog.Info
	if debug {
		level = glog.Trace
	}
	return glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(level),
		glog.WithName("hrauth"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)
}
