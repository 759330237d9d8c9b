package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cori-do/cori/internal/permission"
	"github.com/cori-do/cori/internal/schema"
)

func schemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect and validate schema, role, and rule files",
	}
	cmd.AddCommand(schemaValidateCommand())
	return cmd
}

func schemaValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load the configured schema, role, and rules and report any permission-model errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fail("loading config: %w", err)
			}
			sch, err := schema.Load(cfg.Database.SchemaPath)
			if err != nil {
				return fail("loading schema: %w", err)
			}
			role, err := permission.LoadRole(cfg.Database.RolePath)
			if err != nil {
				return fail("loading role: %w", err)
			}
			rules, err := permission.LoadRules(cfg.Database.RulesPath)
			if err != nil {
				return fail("loading rules: %w", err)
			}
			model, err := permission.NewModel(role, rules, sch)
			if err != nil {
				return fail("permission model is invalid: %w", err)
			}
			tables := 0
			for range role.Tables {
				tables++
			}
			_ = model
			fmt.Fprintf(cmd.OutOrStdout(), "ok: role %q grants access to %d table(s)\n", role.Name, tables)
			return nil
		},
	}
	return cmd
}
