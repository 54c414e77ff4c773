package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/schedgate/auth"
)

func authURLCmd(opts *options) *cobra.Command {
	var exchange bool

	cmd := &cobra.Command{
		Use:   "auth-url",
		Short: "Print an authorization URL for the PKCE login flow",
		Long: `Print an authorization URL for the PKCE login flow.

With --exchange the command waits for the redirect URL (or the bare code) on
standard input and redeems it. Combine with --token-file to keep the session
for later commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				authURL, ch, err := rt.authority.BeginAuthorization()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), authURL)
				if !exchange {
					return nil
				}

				fmt.Fprint(cmd.ErrOrStderr(), "Paste the redirect URL or authorization code: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && strings.TrimSpace(line) == "" {
					return fmt.Errorf("read authorization response: %w", err)
				}
				code, state, err := parseRedirect(strings.TrimSpace(line), ch.State)
				if err != nil {
					return err
				}

				ts, err := rt.authority.ExchangeCode(ctx, code, state)
				if err != nil {
					return err
				}
				printToken(cmd, *ts, false, rt.gateway.Rules().Location)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&exchange, "exchange", false, "read the redirect from stdin and redeem the code")
	return cmd
}

// parseRedirect extracts code and state from a pasted redirect URL. A bare
// code pairs with the state of the challenge just issued.
func parseRedirect(s, pendingState string) (code, state string, err error) {
	if s == "" {
		return "", "", errors.New("empty authorization response")
	}
	u, perr := url.Parse(s)
	if perr != nil || u.RawQuery == "" {
		return s, pendingState, nil
	}

	q := u.Query()
	if e := q.Get("error"); e != "" {
		return "", "", fmt.Errorf("%w: %s %s", auth.ErrAuthentication, e, q.Get("error_description"))
	}
	code = q.Get("code")
	if code == "" {
		return "", "", fmt.Errorf("%w: redirect has no code parameter", auth.ErrAuthentication)
	}
	return code, q.Get("state"), nil
}

func tokenCmd(opts *options) *cobra.Command {
	var show bool

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Obtain or renew an access token and print its status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				if _, err := rt.authority.EnsureValidToken(ctx); err != nil {
					return err
				}
				ts, _ := rt.authority.Token()
				printToken(cmd, ts, show, rt.gateway.Rules().Location)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&show, "show", false, "print the access token itself")
	return cmd
}

func logoutCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session and forget the saved token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				rt.authority.Logout(ctx)
				if opts.tokenFile != "" {
					if err := os.Remove(opts.tokenFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
						return err
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), "logged out")
				return nil
			})
		},
	}
}

func printToken(cmd *cobra.Command, ts auth.TokenSet, show bool, loc *time.Location) {
	w := newTable(cmd.OutOrStdout())
	fmt.Fprintf(w, "type\t%s\n", ts.TokenType)
	fmt.Fprintf(w, "expires\t%s\n", formatTime(ts.Expiry, loc))
	fmt.Fprintf(w, "refreshable\t%t\n", ts.RefreshToken != "")
	fmt.Fprintf(w, "scope\t%s\n", ts.Scope)
	if show {
		fmt.Fprintf(w, "access_token\t%s\n", ts.AccessToken)
	}
	w.Flush()
}
