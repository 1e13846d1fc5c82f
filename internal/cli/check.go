package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/carlink/policydb/internal/store"
	"github.com/carlink/policydb/internal/table"
)

// CheckResultData is the check command's JSON payload.
type CheckResultData struct {
	AppID      string   `json:"app_id"`
	RPC        string   `json:"rpc"`
	HMILevel   string   `json:"hmi_level"`
	Allowed    bool     `json:"allowed"`
	Parameters []string `json:"parameters,omitempty"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	var appID, rpc, level string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether an application may invoke an RPC",
		Long: `Check whether an application may invoke an RPC at an HMI level.

Exit code 0 means allowed, 1 means disallowed. Parameters are listed
exactly as stored: an application granted the same parameter by two
groups reports it twice.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, cmd, appID, rpc, level)
		},
	}

	cmd.Flags().StringVar(&appID, "app", "", "application id")
	cmd.Flags().StringVar(&rpc, "rpc", "", "RPC name")
	cmd.Flags().StringVar(&level, "level", "", "HMI level (FULL|LIMITED|BACKGROUND|NONE)")
	_ = cmd.MarkFlagRequired("app")
	_ = cmd.MarkFlagRequired("rpc")
	_ = cmd.MarkFlagRequired("level")

	return cmd
}

func runCheck(opts *RootOptions, cmd *cobra.Command, appID, rpc, level string) error {
	formatter := newFormatter(cmd, opts)

	hmiLevel := table.HMILevel(strings.ToUpper(level))
	if !hmiLevel.Valid() {
		msg := fmt.Sprintf("invalid HMI level %q", level)
		_ = formatter.Error(ErrCodeValidation, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

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

	check, err := s.CheckPermissions(ctx, appID, rpc, hmiLevel)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, "permission check failed", err.Error())
		return NewExitError(ExitFailure, "permission check failed")
	}

	result := CheckResultData{
		AppID:      appID,
		RPC:        rpc,
		HMILevel:   string(hmiLevel),
		Allowed:    check.Allowed,
		Parameters: check.Parameters,
	}
	if formatter.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else if check.Allowed {
		fmt.Fprintf(formatter.Writer, "✓ %s may invoke %s at %s", appID, rpc, hmiLevel)
		if len(check.Parameters) > 0 {
			fmt.Fprintf(formatter.Writer, " (parameters: %s)", strings.Join(check.Parameters, ", "))
		}
		fmt.Fprintln(formatter.Writer)
	} else {
		fmt.Fprintf(formatter.Writer, "✗ %s may not invoke %s at %s\n", appID, rpc, hmiLevel)
	}

	if !check.Allowed {
		return NewExitError(ExitFailure, "disallowed")
	}
	return nil
}
