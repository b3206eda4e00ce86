package cmd

import (
	"fmt"
	"time"

	"github.com/jrsteele09/go-opencloud-oauth/oauthapp"
	"github.com/jrsteele09/go-opencloud-oauth/pkce"
	"github.com/spf13/cobra"
)

// tokenOutput is printed by exchange and refresh.
type tokenOutput struct {
	AccessToken  string             `json:"access_token"`
	RefreshToken string             `json:"refresh_token"`
	Scopes       []string           `json:"scopes"`
	ExpiresAt    time.Time          `json:"expires_at"`
	Identity     *oauthapp.Identity `json:"identity,omitempty"`
}

func newTokenOutput(t *oauthapp.AccessToken) tokenOutput {
	return tokenOutput{
		AccessToken:  t.Value,
		RefreshToken: t.RefreshToken,
		Scopes:       t.Scopes,
		ExpiresAt:    t.ExpiresAt,
		Identity:     t.Identity,
	}
}

func newAuthorizeURLCmd(c *cli) *cobra.Command {
	var (
		scopes []string
		state  string
		noPKCE bool
	)
	cmd := &cobra.Command{
		Use:   "authorize-url",
		Short: "Print a consent page URL and the PKCE verifier to exchange its code with",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := c.app()
			if err != nil {
				return err
			}
			if len(scopes) == 0 {
				scopes = c.cfg.Scopes
			}

			var verifier string
			if !noPKCE {
				if verifier, err = pkce.NewVerifier(); err != nil {
					return err
				}
			}

			authURL, err := app.AuthorizationURL(oauthapp.AuthorizationRequest{Scopes: scopes, State: state, Verifier: verifier})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{
				"url":      authURL,
				"state":    state,
				"verifier": verifier,
			})
		},
	}
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "scopes to request (default OPENCLOUD_SCOPES)")
	cmd.Flags().StringVar(&state, "state", "", "state echoed back on the redirect")
	cmd.Flags().BoolVar(&noPKCE, "no-pkce", false, "omit the PKCE challenge")
	return cmd
}

func newExchangeCmd(c *cli) *cobra.Command {
	var code, verifier string
	cmd := &cobra.Command{
		Use:   "exchange",
		Short: "Trade an authorization code for a token pair",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := c.app()
			if err != nil {
				return err
			}
			tok, err := app.Exchange(cmd.Context(), code, verifier)
			if tok == nil {
				return err
			}
			if perr := printJSON(cmd.OutOrStdout(), newTokenOutput(tok)); perr != nil {
				return perr
			}
			return err
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "authorization code")
	cmd.Flags().StringVar(&verifier, "verifier", "", "PKCE verifier printed by authorize-url")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func newRefreshCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh REFRESH_TOKEN",
		Short: "Rotate a token pair; the old refresh token stops working",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.app()
			if err != nil {
				return err
			}
			tok, err := app.Refresh(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), newTokenOutput(tok))
		},
	}
}

func newRevokeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke TOKEN",
		Short: "Revoke the token pair an access or refresh token belongs to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.app()
			if err != nil {
				return err
			}
			if err := app.Revoke(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "revoked")
			return nil
		},
	}
}

func newUserInfoCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "userinfo ACCESS_TOKEN",
		Short: "Print the identity an access token belongs to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.app()
			if err != nil {
				return err
			}
			identity, err := app.FromAccessTokenString(args[0]).UserInfo(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), identity)
		},
	}
}

type accountOutput struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

func newResourcesCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "resources ACCESS_TOKEN",
		Short: "Print the experiences and accounts the user granted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.app()
			if err != nil {
				return err
			}
			resources, err := app.FromAccessTokenString(args[0]).Resources(cmd.Context())
			if err != nil {
				return err
			}

			type experienceOutput struct {
				ID    string        `json:"id"`
				Owner accountOutput `json:"owner"`
			}
			out := struct {
				Experiences []experienceOutput `json:"experiences"`
				Accounts    []accountOutput    `json:"accounts"`
			}{
				Experiences: []experienceOutput{},
				Accounts:    []accountOutput{},
			}
			for _, e := range resources.Experiences {
				out.Experiences = append(out.Experiences, experienceOutput{
					ID:    e.ID,
					Owner: accountOutput{ID: e.Owner.AccountID(), Type: string(e.Owner.AccountType())},
				})
			}
			for _, a := range resources.Accounts {
				out.Accounts = append(out.Accounts, accountOutput{ID: a.AccountID(), Type: string(a.AccountType())})
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newIntrospectCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "introspect ACCESS_TOKEN",
		Short: "Ask the server whether an access token is active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := c.app()
			if err != nil {
				return err
			}
			info, err := app.FromAccessTokenString(args[0]).Introspect(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), info)
		},
	}
}
