package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/carlink/policydb/internal/store"
	"github.com/carlink/policydb/internal/table"
)

// NewSnapshotCommand creates the snapshot command.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Export the stored policy table as a document",
		Long: `Export the stored policy table as an indented JSON document.

The snapshot reproduces what was saved, with one exception: the
consumer-friendly-messages section carries only its version, because
message bodies are not managed by this store.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(rootOpts, cmd, outputPath)
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the snapshot to a file instead of stdout")

	return cmd
}

func runSnapshot(opts *RootOptions, cmd *cobra.Command, outputPath string) error {
	formatter := newFormatter(cmd, opts)

	s, err := openStore(cmd, opts)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	if result := s.Init(ctx); result == store.InitFail {
		_ = formatter.Error(ErrCodeStore, "policy database initialization failed", nil)
		return NewExitError(ExitFailure, "policy database initialization failed")
	}

	doc := s.GenerateSnapshot(ctx)
	data, err := table.EncodeDocument(doc)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, "snapshot encoding failed", err.Error())
		return NewExitError(ExitFailure, "snapshot encoding failed")
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, append(data, '\n'), 0o644); err != nil {
			_ = formatter.Error(ErrCodeStore, fmt.Sprintf("cannot write snapshot: %v", err), nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("cannot write snapshot: %v", err))
		}
		formatter.VerboseLog("snapshot written to %s", outputPath)
		return nil
	}

	// The snapshot document is the output, in both formats.
	fmt.Fprintln(formatter.Writer, string(data))
	return nil
}
