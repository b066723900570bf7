package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkcheck/internal/linkcheck"
)

func newCheckCmd() *cobra.Command {
	var pageURL string
	cmd := &cobra.Command{
		Use:   "check --page <url> <link>...",
		Short: "Checks links from the shell and prints NDJSON results",
		Long: `Runs one batch through the same pipeline as the HTTP service and writes
one JSON object per line to stdout: a result per link, then a completion
summary. Logs go to stderr.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			// Same validation as the HTTP body so both surfaces agree.
			body, err := json.Marshal(map[string]any{"urls": args, "pageUrl": pageURL})
			if err != nil {
				return fmt.Errorf("encode request: %w", err)
			}
			req, err := linkcheck.Validate(body, 0)
			if err != nil {
				return fmt.Errorf("invalid input: %w", err)
			}

			summary, err := appInstance.Check(cmd.Context(), req, cmd.OutOrStdout())
			if err != nil {
				return fmt.Errorf("check links: %w", err)
			}
			appInstance.Logger().Info("check finished",
				zap.Int("total", summary.Total),
				zap.Int("checked", summary.Checked),
				zap.Bool("timed_out", summary.TimedOut),
			)
			if summary.Disconnected {
				return fmt.Errorf("check interrupted after %d of %d links", summary.Checked, summary.Total)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pageURL, "page", "", "URL of the page the links were found on")
	_ = cmd.MarkFlagRequired("page")
	return cmd
}
