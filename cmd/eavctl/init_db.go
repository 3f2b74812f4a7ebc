package main

import (
	"fmt"

	"github.com/lychee-technology/eav/factory"
	"github.com/spf13/cobra"
)

func newInitDBCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Create the entity table and every value table the schemas need",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			registry, err := opts.registry()
			if err != nil {
				return err
			}
			backend, err := factory.NewBackend(ctx, opts.config)
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer backend.Close()

			if err := registry.CreateAll(ctx, backend.Storage); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized %s storage: %d schemas, %d value tables\n",
				opts.config.Storage.Driver, len(registry.Schemas()), len(registry.Tables()))
			return nil
		},
	}
}
