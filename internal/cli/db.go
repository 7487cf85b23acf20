package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/tradejournal/internal/store"
)

func newMigrateCmd(ro *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := ro.openDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := store.Migrate(ctx, db, ro.cfg.Database.Driver); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied to %s\n", store.RedactDSN(ro.cfg.Database.URL))
			return nil
		},
	}
}

func newOwnerCmd(ro *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "owner",
		Short: "Manage journal owners",
	}

	var email string
	add := &cobra.Command{
		Use:   "add <id>",
		Short: "Create an owner that snapshots can be imported for",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := ro.openDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			owner := store.Owner{ID: args[0], Email: email}
			if owner.Email == "" {
				owner.Email = owner.ID + "@localhost"
			}
			if err := store.CreateOwner(ctx, db, owner); err != nil {
				if store.IsUniqueViolation(err) {
					return fmt.Errorf("owner %q already exists", owner.ID)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "owner %s created\n", owner.ID)
			return nil
		},
	}
	add.Flags().StringVar(&email, "email", "", "Owner email (default <id>@localhost)")

	cmd.AddCommand(add)
	return cmd
}
