package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/lychee-technology/eav"
	"github.com/lychee-technology/eav/factory"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type rootOptions struct {
	configPath string
	schemaDir  string
	config     *eav.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "eavctl",
		Short: "Manage EAV schemas and storage",
		Long: `eavctl declares EAV schemas from definition files and manages their storage.

Examples:
  eavctl validate schemas/employee.json   # Check definition files
  eavctl describe --schema-dir schemas    # Show value tables and DDL
  eavctl init-db --config eav.yaml        # Create the entity and value tables`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env is optional
			_ = godotenv.Load()
			config, err := eav.LoadConfig(opts.configPath)
			if err != nil {
				return err
			}
			if opts.schemaDir != "" {
				config.Schema.Directory = opts.schemaDir
			}
			opts.config = config
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("EAV_CONFIG"), "config file (yaml, json or toml)")
	cmd.PersistentFlags().StringVar(&opts.schemaDir, "schema-dir", "", "directory of schema definition files")

	cmd.AddCommand(newInitDBCmd(opts))
	cmd.AddCommand(newDescribeCmd(opts))
	cmd.AddCommand(newValidateCmd(opts))
	return cmd
}

func (o *rootOptions) registry() (*eav.Registry, error) {
	registry, err := factory.NewRegistry(o.config)
	if err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}
	return registry, nil
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Errorf("failed to set up logger: %w", err))
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
