package cli

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/okian/pointsledger/internal/domain/job"
	"github.com/okian/pointsledger/internal/domain/model"
	"github.com/okian/pointsledger/internal/domain/types"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

func renderReport(w io.Writer, r *job.Report) {
	t := newTable(w)
	t.SetTitle("Job " + r.JobID)
	t.AppendHeader(table.Row{"#", "Name", "Points", "Weekly change", "Status", "Profile"})
	for i, e := range r.Entries {
		t.AppendRow(table.Row{i + 1, e.Name, e.ResolvedPoints, e.WeeklyDelta.String(), e.Status, e.ProfileRef})
	}
	s := r.Summary
	t.AppendFooter(table.Row{"", "Total", s.TotalParticipants,
		fmt.Sprintf("%d ok / %d failed", s.Succeeded, s.Failed),
		fmt.Sprintf("%.1f%%", s.SuccessRatePercent),
		fmt.Sprintf("%.1fs", s.ProcessingTimeSeconds)})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Points", Align: text.AlignRight},
		{Name: "Weekly change", Align: text.AlignRight},
	})
	t.Render()

	for _, warning := range r.Warnings {
		fmt.Fprintln(w, "warning:", warning)
	}
}

func renderStandings(w io.Writer, ss []types.Standing) {
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Name", "Current", "Previous", "Weekly change", "Profile"})
	for _, s := range ss {
		t.AppendRow(table.Row{s.ID, s.Name, orDash(s.Current), orDash(s.Previous), s.Change.String(), s.ProfileRef})
	}
	t.Render()
}

func renderHistory(w io.Writer, records []model.PointsRecord) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Recorded", "Points", "Job"})
	for _, rec := range records {
		t.AppendRow(table.Row{rec.RecordedAt.Local().Format(time.DateTime), rec.Points, rec.JobID})
	}
	t.Render()
}

func renderEligibility(w io.Writer, account string, e types.Eligibility) {
	if e.CanRefresh {
		fmt.Fprintf(w, "account %s can be refreshed now\n", account)
		return
	}
	fmt.Fprintf(w, "account %s can be refreshed in %s (at %s)\n",
		account, e.TimeRemainingText, e.NextRefresh.Local().Format(time.DateTime))
}

func renderStats(w io.Writer, stats map[string]interface{}) {
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := newTable(w)
	t.AppendHeader(table.Row{"Stat", "Value"})
	for _, k := range keys {
		t.AppendRow(table.Row{k, stats[k]})
	}
	t.Render()
}

func orDash(v *int) any {
	if v == nil {
		return "-"
	}
	return *v
}
