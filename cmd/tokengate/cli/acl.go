package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/faucetdb/tokengate/internal/config"
	"github.com/faucetdb/tokengate/internal/model"
)

func newACLCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "acl",
		Short: "Manage stored ACL rules",
		Long: `Manage ACL rules kept in the config store. Stored rules are merged with
the rules declared on each model in the config file on every call.`,
	}

	cmd.AddCommand(newACLAddCmd())
	cmd.AddCommand(newACLListCmd())
	cmd.AddCommand(newACLRemoveCmd())

	return cmd
}

// ---------- acl add ----------

func newACLAddCmd() *cobra.Command {
	var (
		rule       model.ACLRule
		accessType string
		permission string
		ptype      string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an ACL rule",
		Example: `  tokengate acl add --model widget --access WRITE --permission DENY \
      --principal-type ROLE --principal-id '$unauthenticated'
  tokengate acl add --model '*' --property removeById --permission ALLOW \
      --principal-type ROLE --principal-id admin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rule.AccessType = model.AccessType(accessType)
			rule.Permission = model.Permission(permission)
			rule.PrincipalType = model.PrincipalType(ptype)

			store, _, err := openConfigStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.CreateACLRule(context.Background(), &rule); err != nil {
				return fmt.Errorf("add acl rule: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, rule)
			}
			fmt.Fprintf(out, "Added rule %s: %s\n", rule.ID, rule)
			return nil
		},
	}

	cmd.Flags().StringVar(&rule.Model, "model", "", "Model name, or * for every model")
	cmd.Flags().StringVar(&rule.Property, "property", "", "Method name (default: all methods)")
	cmd.Flags().StringVar(&accessType, "access", "ALL", "READ, WRITE, EXECUTE or ALL")
	cmd.Flags().StringVar(&permission, "permission", "", "ALLOW or DENY")
	cmd.Flags().StringVar(&ptype, "principal-type", "ROLE", "ROLE, USER, APP or ANY")
	cmd.Flags().StringVar(&rule.PrincipalID, "principal-id", "", "Role name, user id or app id")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.MarkFlagRequired("model")
	cmd.MarkFlagRequired("permission")

	return cmd
}

// ---------- acl list ----------

func newACLListCmd() *cobra.Command {
	var (
		modelName  string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored ACL rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openConfigStore()
			if err != nil {
				return err
			}
			defer store.Close()

			rules, err := store.ListACLRules(context.Background(), modelName)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, rules)
			}

			if len(rules) == 0 {
				fmt.Fprintln(out, "No stored ACL rules.")
				return nil
			}

			fmt.Fprintf(out, "%-36s %-16s %s\n", "ID", "MODEL", "RULE")
			fmt.Fprintf(out, "%-36s %-16s %s\n", "--", "-----", "----")
			for _, r := range rules {
				fmt.Fprintf(out, "%-36s %-16s %s\n", r.ID, r.Model, r)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&modelName, "model", "", "Only rules applying to this model")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// ---------- acl remove ----------

func newACLRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Remove a stored ACL rule",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openConfigStore()
			if err != nil {
				return err
			}
			defer store.Close()

			err = store.DeleteACLRule(context.Background(), args[0])
			if errors.Is(err, config.ErrNotFound) {
				return fmt.Errorf("acl rule %q not found", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Rule removed")
			return nil
		},
	}
}
