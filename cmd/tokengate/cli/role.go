package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/faucetdb/tokengate/internal/config"
	"github.com/faucetdb/tokengate/internal/model"
)

func newRoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Manage roles and role mappings",
		Long:  "Create named roles and grant them to users or apps. ACL rules target roles with principal type ROLE.",
	}

	cmd.AddCommand(newRoleCreateCmd())
	cmd.AddCommand(newRoleListCmd())
	cmd.AddCommand(newRoleDeleteCmd())
	cmd.AddCommand(newRoleGrantCmd())
	cmd.AddCommand(newRoleRevokeCmd())
	cmd.AddCommand(newRoleMembersCmd())

	return cmd
}

// ---------- role create ----------

func newRoleCreateCmd() *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new role",
		Example: `  tokengate role create admin --description "Manages access tokens"
  tokengate role create auditor`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openConfigStore()
			if err != nil {
				return err
			}
			defer store.Close()

			role := &model.Role{Name: args[0], Description: description}
			if err := store.CreateRole(context.Background(), role); err != nil {
				return fmt.Errorf("create role: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created role %q\n", role.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "Role description")

	return cmd
}

// ---------- role list ----------

func newRoleListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openConfigStore()
			if err != nil {
				return err
			}
			defer store.Close()

			roles, err := store.ListRoles(context.Background())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, roles)
			}

			if len(roles) == 0 {
				fmt.Fprintln(out, "No roles defined. Use 'tokengate role create' to add one.")
				return nil
			}

			fmt.Fprintf(out, "%-20s %-40s %-20s\n", "NAME", "DESCRIPTION", "CREATED")
			fmt.Fprintf(out, "%-20s %-40s %-20s\n", "----", "-----------", "-------")
			for _, r := range roles {
				fmt.Fprintf(out, "%-20s %-40s %-20s\n", r.Name, r.Description, r.CreatedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// ---------- role delete ----------

func newRoleDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"rm"},
		Short:   "Delete a role and its mappings",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openConfigStore()
			if err != nil {
				return err
			}
			defer store.Close()

			err = store.DeleteRole(context.Background(), args[0])
			if errors.Is(err, config.ErrNotFound) {
				return fmt.Errorf("role %q not found", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted role %q\n", args[0])
			return nil
		},
	}
}

// ---------- role grant / revoke ----------

// principalFlags binds the --user and --app flags shared by grant and revoke.
type principalFlags struct {
	user string
	app  string
}

func (p *principalFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.user, "user", "", "User id")
	cmd.Flags().StringVar(&p.app, "app", "", "Application id")
	cmd.MarkFlagsOneRequired("user", "app")
	cmd.MarkFlagsMutuallyExclusive("user", "app")
}

func (p *principalFlags) principal() (model.PrincipalType, string) {
	if p.app != "" {
		return model.PrincipalApp, p.app
	}
	return model.PrincipalUser, p.user
}

func newRoleGrantCmd() *cobra.Command {
	var who principalFlags

	cmd := &cobra.Command{
		Use:   "grant <role>",
		Short: "Grant a role to a user or app",
		Example: `  tokengate role grant admin --user alice
  tokengate role grant reporting --app dashboard`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openConfigStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ptype, pid := who.principal()
			err = store.GrantRole(context.Background(), args[0], ptype, pid)
			if errors.Is(err, config.ErrNotFound) {
				return fmt.Errorf("role %q not found", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Granted role %q to %s %s\n", args[0], ptype, pid)
			return nil
		},
	}

	who.bind(cmd)
	return cmd
}

func newRoleRevokeCmd() *cobra.Command {
	var who principalFlags

	cmd := &cobra.Command{
		Use:   "revoke <role>",
		Short: "Revoke a role from a user or app",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openConfigStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ptype, pid := who.principal()
			err = store.RevokeRole(context.Background(), args[0], ptype, pid)
			if errors.Is(err, config.ErrNotFound) {
				return fmt.Errorf("%s %s does not hold role %q", ptype, pid, args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Revoked role %q from %s %s\n", args[0], ptype, pid)
			return nil
		},
	}

	who.bind(cmd)
	return cmd
}

// ---------- role members ----------

func newRoleMembersCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "members <role>",
		Short: "List the users and apps holding a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openConfigStore()
			if err != nil {
				return err
			}
			defer store.Close()

			mappings, err := store.ListRoleMappings(context.Background(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, mappings)
			}

			if len(mappings) == 0 {
				fmt.Fprintf(out, "Role %q has no members.\n", args[0])
				return nil
			}

			fmt.Fprintf(out, "%-8s %-30s %-20s\n", "TYPE", "ID", "GRANTED")
			fmt.Fprintf(out, "%-8s %-30s %-20s\n", "----", "--", "-------")
			for _, m := range mappings {
				fmt.Fprintf(out, "%-8s %-30s %-20s\n", m.PrincipalType, m.PrincipalID, m.CreatedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
