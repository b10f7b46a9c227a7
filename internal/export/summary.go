package export

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"gitlab2dash/internal/checkpoint"
	"gitlab2dash/internal/history"
	"gitlab2dash/internal/pipeline"
)

// WriteStageSummary prints the per-stage outcome table for a run.
func WriteStageSummary(w io.Writer, meta checkpoint.Metadata) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)

	tbl.AppendHeader(table.Row{"Stage", "Status", "Duration", "Saved at"})

	var completed, restored, skipped int
	for _, stage := range pipeline.StageOrder {
		rec, ok := meta.Stages[stage]
		if !ok {
			tbl.AppendRow(table.Row{stage, "pending", "", ""})
			continue
		}

		switch rec.Status {
		case checkpoint.StatusCompleted:
			completed++
		case checkpoint.StatusRestored:
			restored++
		case checkpoint.StatusSkipped:
			skipped++
		}

		tbl.AppendRow(table.Row{
			stage,
			string(rec.Status),
			durationStr(rec.Duration),
			rec.SavedAt.Format("15:04:05"),
		})
	}

	tbl.AppendFooter(table.Row{
		fmt.Sprintf("%d stages", len(pipeline.StageOrder)),
		fmt.Sprintf("%d completed / %d restored / %d skipped", completed, restored, skipped),
		"", "",
	})
	tbl.Render()
}

// WriteRunsTable prints the run history, newest first.
func WriteRunsTable(w io.Writer, runs []*history.Run) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)

	tbl.AppendHeader(table.Row{"Run key", "Instance", "Lookback", "Projects", "Stages (c/r/s)", "Finished", "Duration"})

	for _, run := range runs {
		tbl.AppendRow(table.Row{
			run.RunKey,
			run.InstanceURL,
			fmt.Sprintf("%dd", run.LookbackDays),
			run.ProjectCount,
			fmt.Sprintf("%d/%d/%d", run.StagesCompleted, run.StagesRestored, run.StagesSkipped),
			run.FinishedAt.Format("2006-01-02 15:04"),
			durationStr(run.Duration),
		})
	}

	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d runs", len(runs))})
	tbl.Render()
}

func durationStr(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}
