package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/carlink/policydb/internal/store"
)

// InitResultData is the init command's JSON payload.
type InitResultData struct {
	Result string `json:"result"`
	DBPath string `json:"db_path"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the policy database",
		Long: `Initialize the policy database at the configured path.

Creates the schema when the database is empty, verifies integrity when
it already exists. With --refresh-on-stale, a database whose stored
schema version no longer matches this binary is dropped and recreated.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(rootOpts, cmd, refresh)
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh-on-stale", false, "drop and recreate the schema when its version is stale")

	return cmd
}

func runInit(opts *RootOptions, cmd *cobra.Command, refresh bool) error {
	formatter := newFormatter(cmd, opts)

	s, err := openStore(cmd, opts)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	result := s.Init(ctx)
	if result == store.InitFail {
		_ = formatter.Error(ErrCodeStore, "policy database initialization failed", nil)
		return NewExitError(ExitFailure, "policy database initialization failed")
	}

	if refresh {
		actual, err := s.IsDBVersionActual(ctx)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, "schema version check failed", err.Error())
			return NewExitError(ExitFailure, "schema version check failed")
		}
		if !actual {
			formatter.VerboseLog("stored schema version is stale, refreshing")
			if err := s.RefreshDB(ctx); err != nil {
				_ = formatter.Error(ErrCodeStore, "schema refresh failed", err.Error())
				return NewExitError(ExitFailure, "schema refresh failed")
			}
			if err := s.UpdateDBVersion(ctx); err != nil {
				_ = formatter.Error(ErrCodeStore, "schema version update failed", err.Error())
				return NewExitError(ExitFailure, "schema version update failed")
			}
		}
	}

	settings, _ := resolveSettings(opts)
	data := InitResultData{Result: result.String(), DBPath: settings.DBPath}
	if formatter.Format == "json" {
		return formatter.Success(data)
	}
	fmt.Fprintf(formatter.Writer, "✓ Policy database ready (%s)\n", result)
	return nil
}
