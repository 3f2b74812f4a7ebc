package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/lychee-technology/eav"
	"github.com/lychee-technology/eav/internal"
	"github.com/spf13/cobra"
)

func newDescribeCmd(opts *rootOptions) *cobra.Command {
	var dialectName string
	var ddlOnly bool

	cmd := &cobra.Command{
		Use:   "describe",
		Short: "Show declared schemas, their value tables and the DDL to create them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dialectName == "" {
				dialectName = opts.config.Storage.Driver
				if dialectName == eav.DriverMemory {
					dialectName = internal.PostgresDialect.Name
				}
			}
			dialect, err := internal.DialectByName(dialectName)
			if err != nil {
				return err
			}
			registry, err := opts.registry()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !ddlOnly {
				describeRegistry(out, registry)
				fmt.Fprintln(out)
			}
			for _, stmt := range dialect.RenderDDL(registry.Tables()) {
				fmt.Fprintf(out, "%s;\n", stmt)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dialectName, "dialect", "", "SQL dialect: postgres, sqlite or duckdb (default from storage.driver)")
	cmd.Flags().BoolVar(&ddlOnly, "ddl", false, "print only the DDL")
	return cmd
}

func describeRegistry(out io.Writer, registry *eav.Registry) {
	fmt.Fprintln(out, "Schemas:")
	for _, name := range registry.Schemas() {
		schema, _ := registry.Schema(name)
		fields := make([]string, 0, len(schema.Fields()))
		for _, desc := range schema.Fields() {
			fields = append(fields, fmt.Sprintf("%s %s", desc.Name(), desc.ValueType()))
		}
		fmt.Fprintf(out, "  %s(%s)\n", name, strings.Join(fields, ", "))
	}
	fmt.Fprintln(out, "Value tables:")
	for _, table := range registry.Tables() {
		rel := table.Relationship
		fmt.Fprintf(out, "  %s [%s] via %s (backref %s, cascade %q)\n",
			table.Name, table.ClassName, rel.Name, rel.Backref, rel.Cascade)
	}
}
