package cmd

import (
	"errors"

	"github.com/jrsteele09/go-opencloud-oauth/server"
	"github.com/spf13/cobra"
)

func newSessionsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List the sessions in the bbolt token store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.BoltPath == "" {
				return errors.New("OPENCLOUD_BOLT_PATH is not set")
			}
			store, closeStore, err := c.openTokenStore()
			if err != nil {
				return err
			}
			defer closeStore()

			records, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			out := make([]server.SessionSummary, 0, len(records))
			for _, rec := range records {
				out = append(out, server.Summarize(rec))
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}
