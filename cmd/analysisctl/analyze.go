package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/AI-Template-SDK/senso-analysis/internal/repositories"
)

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "analyze [text]",
		Short: "Analyze one response text against the test company",
		Long: "Runs extraction and metric derivation for a single response and prints the " +
			"assembled record. Text comes from the argument, --file, or stdin. Nothing is persisted.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readText(cmd.InOrStdin(), args, file)
			if err != nil {
				return err
			}

			// Analysis never touches the store, so an in-memory one is enough.
			cfg := opts.config()
			cfg.StoreDriver = repositories.DriverSQLite
			cfg.SQLitePath = ":memory:"
			a, err := opts.open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.processor.AnalyzeResponse(cmd.Context(), text)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rec)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the response text from a file")
	return cmd
}

func readText(stdin io.Reader, args []string, file string) (string, error) {
	switch {
	case len(args) == 1:
		return args[0], nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return "", eris.Wrapf(err, "read %s", file)
		}
		return string(b), nil
	default:
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", eris.Wrap(err, "read stdin")
		}
		return string(b), nil
	}
}
