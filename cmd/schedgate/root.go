package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "schedgate",
		Short:        "Resilient EHR scheduling gateway",
		Long:         "schedgate books, reschedules and cancels appointments against a FHIR EHR with token renewal, rate limiting, circuit breaking and retries.",
		Version:      version,
		SilenceUsage: true,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "config file (YAML)")
	pf.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	pf.StringVar(&opts.logFile, "log-file", "", "also write JSON logs to this rotating file")
	pf.StringVar(&opts.tokenFile, "token-file", "", "load and save the token set at this path")

	root.AddCommand(
		authURLCmd(opts),
		tokenCmd(opts),
		logoutCmd(opts),
		slotsCmd(opts),
		checkCmd(opts),
		appointmentCmd(opts),
		healthCmd(opts),
		configCmd(opts),
	)
	return root
}

// withRuntime runs fn against a freshly wired runtime and persists the token
// set afterwards, since fn may have renewed it.
func withRuntime(cmd *cobra.Command, opts *options, fn func(ctx context.Context, rt *runtime) error) (err error) {
	ctx := cmd.Context()
	rt, err := newRuntime(ctx, opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(ctx); err == nil {
			err = cerr
		}
	}()

	if err := fn(ctx, rt); err != nil {
		return err
	}
	return saveToken(opts.tokenFile, rt.authority)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// timeLayouts are accepted by parseTime, most specific first.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTime reads s in loc unless it carries its own offset.
func parseTime(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q (want RFC 3339, YYYY-MM-DDTHH:MM or YYYY-MM-DD)", s)
}

func formatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(loc).Format("2006-01-02 15:04 MST")
}
