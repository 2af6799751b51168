package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/faucetdb/tokengate/internal/auth"
	"github.com/faucetdb/tokengate/internal/model"
	"github.com/faucetdb/tokengate/internal/service"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage access tokens",
		Long:  "Issue, list, revoke and purge the access tokens clients present to the API.",
	}

	cmd.AddCommand(newTokenCreateCmd())
	cmd.AddCommand(newTokenListCmd())
	cmd.AddCommand(newTokenRevokeCmd())
	cmd.AddCommand(newTokenPurgeCmd())

	return cmd
}

// ---------- token create ----------

func newTokenCreateCmd() *cobra.Command {
	var (
		userID     string
		appID      string
		ttl        time.Duration
		noExpiry   bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue a new access token",
		Long:  "Issue a new access token. The id is the credential; it is shown once in full.",
		Example: `  tokengate token create --user alice
  tokengate token create --app reporting --ttl 720h
  tokengate token create --user ci --no-expiry --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokenCreate(cmd, userID, appID, ttl, noExpiry, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User the token belongs to")
	cmd.Flags().StringVar(&appID, "app", "", "Application the token belongs to")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default: auth.default_ttl)")
	cmd.Flags().BoolVar(&noExpiry, "no-expiry", false, "Issue a token that never expires")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.MarkFlagsMutuallyExclusive("ttl", "no-expiry")

	return cmd
}

func runTokenCreate(cmd *cobra.Command, userID, appID string, ttl time.Duration, noExpiry, jsonOutput bool) error {
	store, cfg, err := openConfigStore()
	if err != nil {
		return err
	}
	defer store.Close()

	attrs := service.TokenAttrs{UserID: userID, AppID: appID}
	switch {
	case noExpiry:
	case ttl != 0:
		attrs.TTL = model.Ptr(int64(ttl / time.Second))
	case cfg.Auth.DefaultTTL > 0:
		attrs.TTL = model.Ptr(cfg.Auth.DefaultTTL)
	}

	tok, err := service.NewTokenService(store).Create(context.Background(), attrs)
	if err != nil {
		return fmt.Errorf("create token: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, tok)
	}

	fmt.Fprintln(out, "Access token created:")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Token:   %s\n", tok.ID)
	fmt.Fprintf(out, "  Bearer:  %s\n", auth.EncodeBearer(tok.ID))
	if tok.UserID != "" {
		fmt.Fprintf(out, "  User:    %s\n", tok.UserID)
	}
	if tok.AppID != "" {
		fmt.Fprintf(out, "  App:     %s\n", tok.AppID)
	}
	fmt.Fprintf(out, "  Expires: %s\n", expiry(tok))
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  Save this token now - it is the only credential.")
	return nil
}

func expiry(tok *model.AccessToken) string {
	exp, ok := tok.ExpiresAt()
	if !ok {
		return "never"
	}
	return exp.UTC().Format(time.RFC3339)
}

// ---------- token list ----------

func newTokenListCmd() *cobra.Command {
	var (
		userID     string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List access tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokenList(cmd, userID, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "Only list tokens of this user")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runTokenList(cmd *cobra.Command, userID string, jsonOutput bool) error {
	store, _, err := openConfigStore()
	if err != nil {
		return err
	}
	defer store.Close()

	tokens, err := service.NewTokenService(store).List(context.Background(), userID)
	if err != nil {
		return fmt.Errorf("list tokens: %w", err)
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, tokens)
	}

	if len(tokens) == 0 {
		fmt.Fprintln(out, "No tokens issued. Use 'tokengate token create' to issue one.")
		return nil
	}

	fmt.Fprintf(out, "%-14s %-16s %-16s %-22s\n", "PREFIX", "USER", "APP", "EXPIRES")
	fmt.Fprintf(out, "%-14s %-16s %-16s %-22s\n", "------", "----", "---", "-------")
	for i := range tokens {
		tok := &tokens[i]
		fmt.Fprintf(out, "%-14s %-16s %-16s %-22s\n", tok.ID[:12], tok.UserID, tok.AppID, expiry(tok))
	}
	return nil
}

// ---------- token revoke ----------

func newTokenRevokeCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "revoke [token-id]",
		Short: "Revoke an access token",
		Long: `Delete an access token, or with --user every token issued to that user.
Requests carrying a revoked token become anonymous immediately.`,
		Example: `  tokengate token revoke 3f9a...
  tokengate token revoke --user alice`,
		Args: func(cmd *cobra.Command, args []string) error {
			if userID != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID != "" {
				return runTokenRevokeUser(cmd, userID)
			}
			return runTokenRevoke(cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "Revoke every token of this user")

	return cmd
}

func runTokenRevoke(cmd *cobra.Command, id string) error {
	store, _, err := openConfigStore()
	if err != nil {
		return err
	}
	defer store.Close()

	err = service.NewTokenService(store).Revoke(context.Background(), id)
	if errors.Is(err, service.ErrTokenNotFound) {
		return fmt.Errorf("no token with id %q", id)
	}
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Token revoked")
	return nil
}

func runTokenRevokeUser(cmd *cobra.Command, userID string) error {
	store, _, err := openConfigStore()
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := service.NewTokenService(store).RevokeUser(context.Background(), userID)
	if err != nil {
		return fmt.Errorf("revoke tokens: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Revoked %d token(s) of user %q\n", n, userID)
	return nil
}

// ---------- token purge ----------

func newTokenPurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete expired access tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openConfigStore()
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := service.NewTokenService(store).PurgeExpired(context.Background())
			if err != nil {
				return fmt.Errorf("purge tokens: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %d expired token(s)\n", n)
			return nil
		},
	}
}
