package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/schedgate/scheduling"
)

func slotsCmd(opts *options) *cobra.Command {
	var practitioner, from, to string

	cmd := &cobra.Command{
		Use:   "slots",
		Short: "List free slots in a time range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				loc := rt.gateway.Rules().Location
				start := time.Now().In(loc)
				if from != "" {
					var err error
					if start, err = parseTime(from, loc); err != nil {
						return err
					}
				}
				end := start.AddDate(0, 0, 7)
				if to != "" {
					var err error
					if end, err = parseTime(to, loc); err != nil {
						return err
					}
				}

				slots, err := rt.scheduler.AvailableSlots(ctx, start, end, practitioner)
				if err != nil {
					return err
				}
				printSlots(cmd.OutOrStdout(), slots, loc)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&practitioner, "practitioner", "p", "", "practitioner id (all practitioners when empty)")
	f.StringVar(&from, "from", "", "range start (default now)")
	f.StringVar(&to, "to", "", "range end (default seven days after --from)")
	return cmd
}

func checkCmd(opts *options) *cobra.Command {
	var practitioner, start string
	var duration int

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether a practitioner is free at a time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				loc := rt.gateway.Rules().Location
				at, err := parseTime(start, loc)
				if err != nil {
					return err
				}

				res, err := rt.scheduler.CheckSlotAvailability(ctx, at, practitioner, duration)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if res.Available {
					fmt.Fprintln(out, "available")
					return nil
				}
				fmt.Fprintln(out, "conflict:")
				for _, c := range res.Conflicts {
					fmt.Fprintf(out, "  %s\n", c)
				}
				if len(res.Suggestions) > 0 {
					fmt.Fprintln(out, "suggested slots:")
					printSlots(out, res.Suggestions, loc)
				}
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&practitioner, "practitioner", "p", "", "practitioner id")
	f.StringVar(&start, "start", "", "proposed start")
	f.IntVar(&duration, "duration", 0, "length in minutes (configured default when 0)")
	_ = cmd.MarkFlagRequired("practitioner")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func appointmentCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "appointment",
		Aliases: []string{"appt"},
		Short:   "Read, book, reschedule and cancel appointments",
	}
	cmd.AddCommand(
		appointmentGetCmd(opts),
		appointmentBookCmd(opts),
		appointmentRescheduleCmd(opts),
		appointmentCancelCmd(opts),
	)
	return cmd
}

func appointmentGetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show one appointment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				appt, err := rt.scheduler.GetAppointment(ctx, args[0])
				if err != nil {
					return err
				}
				printAppointment(cmd.OutOrStdout(), appt, rt.gateway.Rules().Location)
				return nil
			})
		},
	}
}

func appointmentBookCmd(opts *options) *cobra.Command {
	var patient, practitioner, start, kind, description string
	var duration int

	cmd := &cobra.Command{
		Use:   "book",
		Short: "Book an appointment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				loc := rt.gateway.Rules().Location
				at, err := parseTime(start, loc)
				if err != nil {
					return err
				}

				appt, err := rt.scheduler.CreateAppointment(ctx, scheduling.AppointmentRequest{
					PatientID:       patient,
					PractitionerID:  practitioner,
					Start:           at,
					DurationMinutes: duration,
					Type:            kind,
					Description:     description,
				})
				if err != nil {
					return explainConflict(cmd.ErrOrStderr(), err, loc)
				}
				printAppointment(cmd.OutOrStdout(), appt, loc)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&patient, "patient", "", "patient id")
	f.StringVarP(&practitioner, "practitioner", "p", "", "practitioner id")
	f.StringVar(&start, "start", "", "start time")
	f.IntVar(&duration, "duration", 0, "length in minutes (configured default when 0)")
	f.StringVar(&kind, "type", "routine", "routine, follow-up or urgent")
	f.StringVar(&description, "description", "", "free-text reason")
	_ = cmd.MarkFlagRequired("patient")
	_ = cmd.MarkFlagRequired("practitioner")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func appointmentRescheduleCmd(opts *options) *cobra.Command {
	var start, practitioner, status, kind, description string
	var duration int

	cmd := &cobra.Command{
		Use:   "reschedule ID",
		Short: "Change an appointment's time, practitioner or details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				loc := rt.gateway.Rules().Location
				var changes scheduling.AppointmentChanges
				f := cmd.Flags()
				if f.Changed("start") {
					at, err := parseTime(start, loc)
					if err != nil {
						return err
					}
					changes.Start = &at
				}
				if f.Changed("duration") {
					changes.DurationMinutes = &duration
				}
				if f.Changed("practitioner") {
					changes.PractitionerID = &practitioner
				}
				if f.Changed("status") {
					changes.Status = &status
				}
				if f.Changed("type") {
					changes.Type = &kind
				}
				if f.Changed("description") {
					changes.Description = &description
				}

				appt, err := rt.scheduler.UpdateAppointment(ctx, args[0], changes)
				if err != nil {
					return explainConflict(cmd.ErrOrStderr(), err, loc)
				}
				printAppointment(cmd.OutOrStdout(), appt, loc)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&start, "start", "", "new start time")
	f.IntVar(&duration, "duration", 0, "new length in minutes")
	f.StringVarP(&practitioner, "practitioner", "p", "", "new practitioner id")
	f.StringVar(&status, "status", "", "new status")
	f.StringVar(&kind, "type", "", "new appointment type")
	f.StringVar(&description, "description", "", "new free-text reason")
	return cmd
}

func appointmentCancelCmd(opts *options) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel an appointment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				if err := rt.scheduler.DeleteAppointment(ctx, args[0], reason); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cancelled %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason")
	return cmd
}

// explainConflict prints the suggested slots carried by a conflict before
// returning err unchanged.
func explainConflict(w io.Writer, err error, loc *time.Location) error {
	var ce *scheduling.ConflictError
	if errors.As(err, &ce) && len(ce.Suggestions) > 0 {
		fmt.Fprintln(w, "suggested slots:")
		printSlots(w, ce.Suggestions, loc)
	}
	return err
}

func printSlots(w io.Writer, slots []scheduling.Slot, loc *time.Location) {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tSTART\tEND\tMIN\tPRACTITIONER")
	for _, s := range slots {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			s.ID, formatTime(s.Start, loc), formatTime(s.End, loc), s.DurationMinutes, s.PractitionerID)
	}
	tw.Flush()
}

func printAppointment(w io.Writer, a *scheduling.Appointment, loc *time.Location) {
	tw := newTable(w)
	fmt.Fprintf(tw, "id\t%s\n", a.ID)
	fmt.Fprintf(tw, "status\t%s\n", a.Status)
	fmt.Fprintf(tw, "start\t%s\n", formatTime(a.Start, loc))
	fmt.Fprintf(tw, "end\t%s\n", formatTime(a.End, loc))
	fmt.Fprintf(tw, "minutes\t%d\n", a.DurationMinutes())
	fmt.Fprintf(tw, "practitioner\t%s\n", a.PractitionerID)
	fmt.Fprintf(tw, "patient\t%s\n", a.PatientID)
	fmt.Fprintf(tw, "type\t%s\n", a.TypeCode)
	if a.Description != "" {
		fmt.Fprintf(tw, "description\t%s\n", a.Description)
	}
	tw.Flush()
}
