// Package cmd is the opencloud-oauth command line.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-opencloud-oauth/internal/config"
	"github.com/jrsteele09/go-opencloud-oauth/oauthapp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const appName = "opencloud oauth"

// cli carries what every subcommand needs once the root has run.
type cli struct {
	verbose  bool
	envFiles []string
	noBanner bool

	cfg    *config.Config
	logger zerolog.Logger
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func NewRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:           "opencloud-oauth",
		Short:         "OAuth2 client for Open Cloud applications",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(c.envFiles...)
			if err != nil {
				return err
			}
			c.cfg = cfg

			level := cfg.Level()
			if c.verbose {
				level = zerolog.DebugLevel
			}
			c.logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.Kitchen}).
				Level(level).
				With().Timestamp().Logger()
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "verbose output")
	flags.StringSliceVar(&c.envFiles, "env-file", nil, "env files to load instead of ./.env")
	flags.BoolVar(&c.noBanner, "no-banner", false, "do not print the banner")

	rootCmd.AddCommand(
		newAuthorizeURLCmd(c),
		newExchangeCmd(c),
		newRefreshCmd(c),
		newRevokeCmd(c),
		newUserInfoCmd(c),
		newResourcesCmd(c),
		newIntrospectCmd(c),
		newServeCmd(c),
		newSessionsCmd(c),
	)
	return rootCmd
}

func (c *cli) app() (*oauthapp.App, error) {
	return c.cfg.NewApp(c.logger)
}

func (c *cli) banner(w io.Writer) {
	if c.noBanner {
		return
	}
	myFigure := figure.NewFigure(appName, "cybermedium", true)
	fmt.Fprintln(w, myFigure.String())
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
