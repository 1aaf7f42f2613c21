package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/AI-Template-SDK/senso-analysis/internal/models"
)

func newCompanyCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "company",
		Short: "Manage company profiles",
	}
	cmd.AddCommand(newCompanySaveCmd(opts), newCompanyGetCmd(opts))
	return cmd
}

func newCompanySaveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "save <profile.json>",
		Short: "Insert or replace a company profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return eris.Wrapf(err, "read %s", args[0])
			}
			var profile models.CompanyProfile
			if err := json.Unmarshal(raw, &profile); err != nil {
				return eris.Wrapf(err, "decode %s", args[0])
			}
			if profile.ID == uuid.Nil || profile.Name == "" {
				return eris.New("profile needs an id and a name")
			}

			a, err := opts.open(cmd.Context(), opts.config())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.repos.CompanyRepo.SaveProfile(cmd.Context(), &profile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved company %s (%s)\n", profile.Name, profile.ID)
			return nil
		},
	}
}

func newCompanyGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <companyID>",
		Short: "Print a stored company profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return eris.Wrapf(err, "invalid company id %q", args[0])
			}
			a, err := opts.open(cmd.Context(), opts.config())
			if err != nil {
				return err
			}
			defer a.Close()

			profile, err := a.repos.CompanyRepo.GetProfile(cmd.Context(), id)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), profile)
		},
	}
}
