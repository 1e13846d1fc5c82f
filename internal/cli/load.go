package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/carlink/policydb/internal/store"
	"github.com/carlink/policydb/internal/table"
)

// LoadResultData is the load command's JSON payload.
type LoadResultData struct {
	OperationID string `json:"operation_id"`
	Apps        int    `json:"applications"`
	Groups      int    `json:"functional_groups"`
	Preloaded   bool   `json:"preloaded"`
}

// ValidationResultData reports document validation failures.
type ValidationResultData struct {
	Valid  bool                    `json:"valid"`
	Errors []table.ValidationError `json:"errors,omitempty"`
}

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	var preloaded bool

	cmd := &cobra.Command{
		Use:   "load <document.json>",
		Short: "Validate and persist a policy table document",
		Long: `Validate a policy table document and persist it.

The document is checked against the schema before anything is written.
A failed save leaves the previously stored table untouched. Each load
is tagged with a time-sortable operation id for correlation.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(rootOpts, cmd, args[0], preloaded)
		},
	}

	cmd.Flags().BoolVar(&preloaded, "preloaded", false, "mark the document as the factory-preloaded table")

	return cmd
}

func runLoad(opts *RootOptions, cmd *cobra.Command, path string, preloaded bool) error {
	formatter := newFormatter(cmd, opts)
	opID := uuid.Must(uuid.NewV7()).String()
	formatter.VerboseLog("load operation %s: %s", opID, path)

	data, err := os.ReadFile(path)
	if err != nil {
		_ = formatter.Error(ErrCodeParse, fmt.Sprintf("cannot read document: %v", err), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("cannot read document: %v", err))
	}

	doc, err := table.ParseDocument(data)
	if err != nil {
		_ = formatter.Error(ErrCodeParse, err.Error(), nil)
		return NewExitError(ExitFailure, err.Error())
	}
	doc.ModuleConfig.PreloadedPT = preloaded

	if errs := table.Validate(doc); len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
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

	if err := s.Save(ctx, doc); err != nil {
		_ = formatter.Error(ErrCodeStore, "save failed, previous table retained", err.Error())
		return NewExitError(ExitFailure, fmt.Sprintf("save failed: %v", err))
	}
	if err := s.UpdateDBVersion(ctx); err != nil {
		_ = formatter.Error(ErrCodeStore, "schema version update failed", err.Error())
		return NewExitError(ExitFailure, "schema version update failed")
	}

	result := LoadResultData{
		OperationID: opID,
		Apps:        len(doc.AppPolicies.Apps),
		Groups:      len(doc.FunctionalGroupings),
		Preloaded:   preloaded,
	}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Policy table loaded (%d applications, %d groups)\n",
		result.Apps, result.Groups)
	return nil
}

func outputValidationErrors(formatter *OutputFormatter, errs []table.ValidationError) error {
	if formatter.Format == "json" {
		response := Response{
			Status: "error",
			Data:   ValidationResultData{Valid: false, Errors: errs},
			Error: &ResponseError{
				Code:    ErrCodeValidation,
				Message: errs[0].Error(),
			},
		}
		enc := json.NewEncoder(formatter.Writer)
		enc.SetIndent("", "  ")
		if err := enc.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Document validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  %s\n", err.Error())
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
