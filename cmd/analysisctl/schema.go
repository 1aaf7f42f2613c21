package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AI-Template-SDK/senso-analysis/services"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [name]",
		Short: "Print the JSON schema of a stored document",
		Long:  "Without a name, lists the documents that have a schema.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schemas := services.NewSchemaService()
			if len(args) == 0 {
				for _, name := range schemas.Names() {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}
			doc, err := schemas.Schema(args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), doc)
		},
	}
}
