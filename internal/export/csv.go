package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gitlab2dash/internal/pipeline"
)

// WriteCSVs writes one CSV file per report kind into dir.
func WriteCSVs(dir string, res *pipeline.Results) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	files := []struct {
		name   string
		header []string
		rows   [][]string
	}{
		{"projects.csv",
			[]string{"project_id", "name", "path", "namespace", "visibility", "default_branch", "created_at", "last_activity_at", "days_since_activity", "stars", "forks", "open_issues", "commit_count", "storage_bytes", "health_score"},
			projectRows(res)},
		{"security.csv",
			[]string{"project_id", "path", "critical", "high", "medium", "low", "total_findings", "security_score"},
			securityRows(res)},
		{"quality.csv",
			[]string{"project_id", "path", "pipeline_count", "successful_pipelines", "failed_pipelines", "success_rate", "recent_commits", "quality_score"},
			qualityRows(res)},
		{"cost.csv",
			[]string{"project_id", "path", "pipeline_count", "estimated_ci_minutes", "storage_bytes", "estimated_monthly_cost"},
			costRows(res)},
		{"team.csv",
			[]string{"name", "email", "commits", "additions", "deletions", "projects"},
			teamRows(res)},
		{"technology.csv",
			[]string{"project_id", "path", "primary_language", "language_count", "has_ci"},
			techRows(res)},
		{"lifecycle.csv",
			[]string{"project_id", "path", "issues_opened", "issues_closed", "avg_close_days", "branch_count", "release_count", "phase"},
			lifecycleRows(res)},
		{"business.csv",
			[]string{"project_id", "path", "merged_mrs", "avg_merge_days", "throughput_per_week"},
			businessRows(res)},
		{"adoption.csv",
			[]string{"project_id", "path", "has_ci", "has_mrs", "has_issues", "has_releases", "adoption_score"},
			adoptionRows(res)},
		{"collaboration.csv",
			[]string{"project_id", "path", "mr_count", "notes_per_mr", "unique_authors", "collaboration_score"},
			collaborationRows(res)},
		{"maturity.csv",
			[]string{"project_id", "path", "quality_score", "security_score", "adoption_score", "maturity_score", "level"},
			maturityRows(res)},
		{"barriers.csv",
			[]string{"project_id", "path", "barrier_count", "barriers", "inactive_days"},
			barrierRows(res)},
	}

	for _, f := range files {
		if err := writeCSV(filepath.Join(dir, f.name), f.header, f.rows); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.name, err)
		}
	}
	return nil
}

func writeCSV(path string, header []string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func projectRows(res *pipeline.Results) [][]string {
	rows := make([][]string, 0, len(res.Projects))
	for _, p := range res.Projects {
		rows = append(rows, []string{
			strconv.Itoa(p.ProjectID), p.Name, p.Path, p.Namespace, p.Visibility, p.DefaultBranch,
			timeStr(p.CreatedAt), timeStr(p.LastActivityAt),
			strconv.Itoa(p.DaysSinceActivity), strconv.Itoa(p.Stars), strconv.Itoa(p.Forks),
			strconv.Itoa(p.OpenIssues),
			strconv.FormatInt(p.CommitCount, 10), strconv.FormatInt(p.StorageBytes, 10),
			floatStr(p.HealthScore),
		})
	}
	return rows
}

func securityRows(res *pipeline.Results) [][]string {
	rows := make([][]string, 0, len(res.Security))
	for _, s := range res.Security {
		rows = append(rows, []string{
			strconv.Itoa(s.ProjectID), s.Path,
			strconv.Itoa(s.Critical), strconv.Itoa(s.High), strconv.Itoa(s.Medium), strconv.Itoa(s.Low),
			strconv.Itoa(s.TotalFindings), floatStr(s.SecurityScore),
		})
	}
	return rows
}

func qualityRows(res *pipeline.Results) [][]string {
	rows := make([][]string, 0, len(res.Quality))
	for _, q := range res.Quality {
		rows = append(rows, []string{
			strconv.Itoa(q.ProjectID), q.Path,
			strconv.Itoa(q.PipelineCount), strconv.Itoa(q.SuccessfulPipelines), strconv.Itoa(q.FailedPipelines),
			floatStr(q.SuccessRate), strconv.Itoa(q.RecentCommits), floatStr(q.QualityScore),
		})
	}
	return rows
}

func costRows(res *pipeline.Results) [][]string {
	rows := make([][]string, 0, len(res.Cost))
	for _, c := range res.Cost {
		rows = append(rows, []string{
			strconv.Itoa(c.ProjectID), c.Path,
			strconv.Itoa(c.PipelineCount), floatStr(c.EstimatedCIMinutes),
			strconv.FormatInt(c.StorageBytes, 10), floatStr(c.EstimatedMonthlyCost),
		})
	}
	return rows
}

func teamRows(res *pipeline.Results) [][]string {
	rows := make([][]string, 0, len(res.Team))
	for _, t := range res.Team {
		rows = append(rows, []string{
			t.Name, t.Email,
			strconv.Itoa(t.Commits), strconv.Itoa(t.Additions), strconv.Itoa(t.Deletions),
			strconv.Itoa(t.Projects),
		})
	}
	return rows
}

func techRows(res *pipeline.Results) [][]string {
	rows := make([][]string, 0, len(res.Tech))
	for _, t := range res.Tech {
		rows = append(rows, []string{
			strconv.Itoa(t.ProjectID), t.Path,
			t.PrimaryLanguage, strconv.Itoa(t.LanguageCount), strconv.FormatBool(t.HasCI),
		})
	}
	return rows
}

func lifecycleRows(res *pipeline.Results) [][]string {
	rows := make([][]string, 0, len(res.Lifecycle))
	for _, l := range res.Lifecycle {
		rows = append(rows, []string{
			strconv.Itoa(l.ProjectID), l.Path,
			strconv.Itoa(l.IssuesOpened), strconv.Itoa(l.IssuesClosed), floatStr(l.AvgCloseDays),
			strconv.Itoa(l.BranchCount), strconv.Itoa(l.ReleaseCount), l.Phase,
		})
	}
	return rows
}

func businessRows(res *pipeline.Results) [][]string {
	rows := make([][]string, 0, len(res.Business))
	for _, b := range res.Business {
		rows = append(rows, []string{
			strconv.Itoa(b.ProjectID), b.Path,
			strconv.Itoa(b.MergedMRs), floatStr(b.AvgMergeDays), floatStr(b.ThroughputPerWeek),
		})
	}
	return rows
}

func adoptionRows(res *pipeline.Results) [][]string {
	rows := make([][]string, 0, len(res.Adoption))
	for _, a := range res.Adoption {
		rows = append(rows, []string{
			strconv.Itoa(a.ProjectID), a.Path,
			strconv.FormatBool(a.HasCI), strconv.FormatBool(a.HasMRs),
			strconv.FormatBool(a.HasIssues), strconv.FormatBool(a.HasReleases),
			floatStr(a.AdoptionScore),
		})
	}
	return rows
}

func collaborationRows(res *pipeline.Results) [][]string {
	rows := make([][]string, 0, len(res.Collaboration))
	for _, c := range res.Collaboration {
		rows = append(rows, []string{
			strconv.Itoa(c.ProjectID), c.Path,
			strconv.Itoa(c.MRCount), floatStr(c.NotesPerMR), strconv.Itoa(c.UniqueAuthors),
			floatStr(c.CollaborationScore),
		})
	}
	return rows
}

func maturityRows(res *pipeline.Results) [][]string {
	rows := make([][]string, 0, len(res.Maturity))
	for _, m := range res.Maturity {
		rows = append(rows, []string{
			strconv.Itoa(m.ProjectID), m.Path,
			floatStr(m.QualityScore), floatStr(m.SecurityScore), floatStr(m.AdoptionScore),
			floatStr(m.MaturityScore), m.Level,
		})
	}
	return rows
}

func barrierRows(res *pipeline.Results) [][]string {
	rows := make([][]string, 0, len(res.Barriers))
	for _, b := range res.Barriers {
		rows = append(rows, []string{
			strconv.Itoa(b.ProjectID), b.Path,
			strconv.Itoa(b.BarrierCount), joinBarriers(b.Barriers), strconv.Itoa(b.InactiveDays),
		})
	}
	return rows
}

func joinBarriers(barriers []string) string {
	out := ""
	for i, b := range barriers {
		if i > 0 {
			out += ";"
		}
		out += b
	}
	return out
}

func floatStr(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func timeStr(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
