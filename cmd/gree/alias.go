package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zberg/go-gree/internal/ui"
)

var aliasCmd = &cobra.Command{
	Use:   "alias",
	Short: "Manage device aliases",
}

var aliasSetCmd = &cobra.Command{
	Use:   "set <alias> <mac>",
	Short: "Add or replace an alias",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.SetAlias(args[0], args[1]); err != nil {
			return err
		}
		if err := cfg.Save(configPath); err != nil {
			return err
		}
		fmt.Println(ui.Success(fmt.Sprintf("%s -> %s", args[0], cfg.Aliases[args[0]])))
		return nil
	},
}

var aliasListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List aliases",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(ui.AliasesTable(cfg.Aliases))
	},
}

var aliasRemoveCmd = &cobra.Command{
	Use:     "rm <alias>",
	Aliases: []string{"remove"},
	Short:   "Remove an alias",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.RemoveAlias(args[0]) {
			return fmt.Errorf("no alias %q", args[0])
		}
		if err := cfg.Save(configPath); err != nil {
			return err
		}
		fmt.Println(ui.Success("removed " + args[0]))
		return nil
	},
}

func init() {
	aliasCmd.AddCommand(aliasSetCmd, aliasListCmd, aliasRemoveCmd)
	rootCmd.AddCommand(aliasCmd)
}
