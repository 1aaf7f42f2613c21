package main

import (
	"encoding/json"
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/AI-Template-SDK/senso-analysis/services"
)

func newBatchCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Submit, inspect and reprocess analysis batches",
	}
	cmd.AddCommand(
		newBatchSubmitCmd(opts),
		newBatchGetCmd(opts),
		newBatchReprocessCmd(opts),
	)
	return cmd
}

func newBatchSubmitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <batch.json>",
		Short: "Analyze and persist a batch of responses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return eris.Wrapf(err, "read %s", args[0])
			}
			var req services.BatchRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return eris.Wrapf(err, "decode %s", args[0])
			}

			a, err := opts.open(cmd.Context(), opts.config())
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.processor.ProcessBatch(cmd.Context(), &req)
			if result != nil {
				if werr := writeJSON(cmd.OutOrStdout(), result); werr != nil {
					return werr
				}
			}
			return err
		},
	}
}

func newBatchGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <batchID>",
		Short: "Print a committed batch and its analyses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchID, err := parseBatchID(args[0])
			if err != nil {
				return err
			}
			a, err := opts.open(cmd.Context(), opts.config())
			if err != nil {
				return err
			}
			defer a.Close()

			details, err := a.processor.GetBatch(cmd.Context(), batchID)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), details)
		},
	}
}

func newBatchReprocessCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reprocess <batchID>",
		Short: "Re-run analysis for a stored batch and rewrite it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			batchID, err := parseBatchID(args[0])
			if err != nil {
				return err
			}
			a, err := opts.open(cmd.Context(), opts.config())
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.processor.ReprocessBatch(cmd.Context(), batchID)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}
}

func parseBatchID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, eris.Wrapf(err, "invalid batch id %q", s)
	}
	return id, nil
}
