package orchestrator

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"
)

// ShowHistory prints all recorded runs, newest first.
func (o *Orchestrator) ShowHistory() error {
	return o.writeHistory(os.Stdout)
}

// ShowRunDetails prints one run and the terminal state of each of its tables.
func (o *Orchestrator) ShowRunDetails(runID string) error {
	return o.writeRunDetails(os.Stdout, runID)
}

func (o *Orchestrator) writeHistory(out io.Writer) error {
	runs, err := o.state.GetAllRuns()
	if err != nil {
		return fmt.Errorf("loading runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tSTARTED\tDURATION\tSTATUS\tOUTCOME\tSOURCE")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), duration(r.StartedAt, r.CompletedAt),
			r.Status, dash(r.Outcome), r.Source)
	}
	return w.Flush()
}

func (o *Orchestrator) writeRunDetails(out io.Writer, runID string) error {
	run, err := o.state.GetRunByID(runID)
	if err != nil {
		return err
	}
	tables, err := o.state.GetRunTables(runID)
	if err != nil {
		return fmt.Errorf("loading tables of run %s: %w", runID, err)
	}

	fmt.Fprintf(out, "Run:      %s\n", run.ID)
	fmt.Fprintf(out, "Source:   %s\n", run.Source)
	fmt.Fprintf(out, "Started:  %s\n", run.StartedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(out, "Duration: %s\n", duration(run.StartedAt, run.CompletedAt))
	fmt.Fprintf(out, "Status:   %s\n", run.Status)
	fmt.Fprintf(out, "Outcome:  %s\n", dash(run.Outcome))
	if run.Error != "" {
		fmt.Fprintf(out, "Error:    %s\n", run.Error)
	}
	if len(tables) == 0 {
		return nil
	}

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tSTATUS\tROWS\tWARNINGS\tERROR")
	for _, t := range tables {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", t.Table, t.Status, t.Rows, t.Warnings, t.Error)
	}
	return w.Flush()
}

func duration(start time.Time, end *time.Time) string {
	if end == nil {
		return "-"
	}
	return end.Sub(start).Round(time.Second).String()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
