package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/release-notes-watcher/internal/watcher"
)

type checkOutput struct {
	RunID        string `json:"run_id"`
	URL          string `json:"url"`
	Outcome      string `json:"outcome,omitempty"`
	PreviousHash string `json:"previous_hash,omitempty"`
	CurrentHash  string `json:"current_hash,omitempty"`
	Summary      string `json:"summary,omitempty"`
	Notified     bool   `json:"notified"`
	NotifyError  string `json:"notify_error,omitempty"`
	Error        string `json:"error,omitempty"`
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run a single change check and print the result as JSON.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, logger, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			res, checkErr := app.Check(cmd.Context())
			if err := writeCheckOutput(cmd.OutOrStdout(), res, checkErr); err != nil {
				logger.Warn("write check output failed", zap.Error(err))
			}
			return checkErr
		},
	}
}

func writeCheckOutput(w io.Writer, res watcher.Result, checkErr error) error {
	out := checkOutput{
		RunID:        res.RunID,
		URL:          res.URL,
		Outcome:      string(res.Outcome),
		PreviousHash: res.PreviousHash,
		CurrentHash:  res.CurrentHash,
		Summary:      res.Summary,
		Notified:     res.Notified,
	}
	if res.NotifyErr != nil {
		out.NotifyError = res.NotifyErr.Error()
	}
	if checkErr != nil {
		out.Error = checkErr.Error()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}
