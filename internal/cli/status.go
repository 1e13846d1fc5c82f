package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/carlink/policydb/internal/store"
)

// StatusData is the status command's JSON payload.
type StatusData struct {
	UpdateRequired       bool  `json:"update_required"`
	Preloaded            bool  `json:"preloaded"`
	SchemaCurrent        bool  `json:"schema_current"`
	IgnitionCyclesLeft   int   `json:"ignition_cycles_before_exchange"`
	KilometersLeft       *int  `json:"kilometers_before_exchange,omitempty"`
	DaysLeft             *int  `json:"days_before_exchange,omitempty"`
	TimeoutSeconds       int   `json:"timeout_seconds"`
	RetryScheduleSeconds []int `json:"retry_schedule_seconds"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	var odometer, days int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report exchange countdowns and table state",
		Long: `Report the policy exchange countdowns and stored table state.

The kilometer and day countdowns need the vehicle's current odometer
reading and day count; without --odometer or --days those countdowns
are omitted.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}

	cmd.Flags().IntVar(&odometer, "odometer", -1, "current odometer reading in kilometers")
	cmd.Flags().IntVar(&days, "days", -1, "current day count since epoch")

	return cmd
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
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

	preloaded, err := s.IsPTPreloaded(ctx)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, "status query failed", err.Error())
		return NewExitError(ExitFailure, "status query failed")
	}
	schemaCurrent, err := s.IsDBVersionActual(ctx)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, "status query failed", err.Error())
		return NewExitError(ExitFailure, "status query failed")
	}
	retries, err := s.SecondsBetweenRetries(ctx)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, "status query failed", err.Error())
		return NewExitError(ExitFailure, "status query failed")
	}

	status := StatusData{
		UpdateRequired:       s.UpdateRequired(ctx),
		Preloaded:            preloaded,
		SchemaCurrent:        schemaCurrent,
		IgnitionCyclesLeft:   s.IgnitionCyclesBeforeExchange(ctx),
		TimeoutSeconds:       s.TimeoutResponse(ctx),
		RetryScheduleSeconds: retries,
	}
	if odometer, err := cmd.Flags().GetInt("odometer"); err == nil && odometer >= 0 {
		km := s.KilometersBeforeExchange(ctx, odometer)
		status.KilometersLeft = &km
	}
	if days, err := cmd.Flags().GetInt("days"); err == nil && days >= 0 {
		d := s.DaysBeforeExchange(ctx, days)
		status.DaysLeft = &d
	}

	if formatter.Format == "json" {
		return formatter.Success(status)
	}

	fmt.Fprintf(formatter.Writer, "Update required:     %v\n", status.UpdateRequired)
	fmt.Fprintf(formatter.Writer, "Preloaded table:     %v\n", status.Preloaded)
	fmt.Fprintf(formatter.Writer, "Schema current:      %v\n", status.SchemaCurrent)
	fmt.Fprintf(formatter.Writer, "Ignition cycles left: %d\n", status.IgnitionCyclesLeft)
	if status.KilometersLeft != nil {
		fmt.Fprintf(formatter.Writer, "Kilometers left:     %d\n", *status.KilometersLeft)
	}
	if status.DaysLeft != nil {
		fmt.Fprintf(formatter.Writer, "Days left:           %d\n", *status.DaysLeft)
	}
	fmt.Fprintf(formatter.Writer, "Response timeout:    %ds\n", status.TimeoutSeconds)
	fmt.Fprintf(formatter.Writer, "Retry schedule:      %v\n", status.RetryScheduleSeconds)
	return nil
}
