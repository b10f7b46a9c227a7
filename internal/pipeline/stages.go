package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"gitlab2dash/internal/gitlab"
	"gitlab2dash/internal/report"
)

// Stage computations. Each per-project loop preserves input project order
// and produces exactly one record per project; a failing project degrades
// to a default record so downstream consumers can rely on slice length.
// Cross-stage inputs are optional: an upstream stage that was skipped
// leaves an empty slice, which the lookup maps tolerate.

func (r *Runner) pagedOpt() gitlab.RequestOptions {
	return gitlab.RequestOptions{
		AllPages: true,
		PerPage:  r.cfg.Analysis.PerPage,
		MaxPages: r.cfg.Analysis.MaxPages,
	}
}

func (r *Runner) since() string {
	return r.now().AddDate(0, 0, -r.cfg.Analysis.LookbackDays).UTC().Format(time.RFC3339)
}

func (r *Runner) runProjects(ctx context.Context) (any, error) {
	endpoint := "projects?order_by=last_activity_at&sort=desc&statistics=true"
	projects := gitlab.Fetch[gitlab.Project](ctx, r.client, endpoint, r.pagedOpt())

	if max := r.cfg.Analysis.MaxProjects; max > 0 && len(projects) > max {
		r.logger.Info("Truncating project list",
			zap.Int("fetched", len(projects)), zap.Int("max", max))
		projects = projects[:max]
	}

	now := r.now()
	out := make([]report.ProjectReport, 0, len(projects))
	for _, p := range projects {
		days := report.DaysSince(p.LastActivityAt, now)
		rec := report.ProjectReport{
			ProjectID:         p.ID,
			Name:              p.Name,
			Path:              p.PathWithNamespace,
			Namespace:         p.Namespace.Path,
			Visibility:        p.Visibility,
			DefaultBranch:     p.DefaultBranch,
			CreatedAt:         p.CreatedAt,
			LastActivityAt:    p.LastActivityAt,
			DaysSinceActivity: days,
			Stars:             p.StarCount,
			Forks:             p.ForksCount,
			OpenIssues:        p.OpenIssuesCount,
			HealthScore:       r.policy.HealthScore(days, p.StarCount, p.ForksCount, p.OpenIssuesCount),
		}
		if p.Statistics != nil {
			rec.CommitCount = p.Statistics.CommitCount
			rec.StorageBytes = p.Statistics.StorageSize
		}
		out = append(out, rec)
	}

	r.results.Projects = out
	return out, nil
}

func (r *Runner) runSecurity(ctx context.Context) (any, error) {
	out := make([]report.SecurityReport, 0, len(r.results.Projects))
	for _, p := range r.results.Projects {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec, err := r.securityForProject(ctx, p)
		if err != nil {
			r.logger.Warn("Security collection failed for project, using defaults",
				zap.String("project", p.Path), zap.Error(err))
			rec = report.SecurityReport{ProjectID: p.ProjectID, Path: p.Path}
		}
		out = append(out, rec)
	}

	r.results.Security = out
	return out, nil
}

func (r *Runner) securityForProject(ctx context.Context, p report.ProjectReport) (report.SecurityReport, error) {
	endpoint := fmt.Sprintf("projects/%d/vulnerability_findings", p.ProjectID)
	findings := gitlab.Fetch[gitlab.Vulnerability](ctx, r.client, endpoint, r.pagedOpt())

	rec := report.SecurityReport{ProjectID: p.ProjectID, Path: p.Path}
	for _, f := range findings {
		switch f.Severity {
		case "critical":
			rec.Critical++
		case "high":
			rec.High++
		case "medium":
			rec.Medium++
		default:
			rec.Low++
		}
	}
	rec.TotalFindings = len(findings)
	rec.SecurityScore = r.policy.SecurityScore(rec.Critical, rec.High, rec.Medium, rec.Low)
	return rec, nil
}

func (r *Runner) runQuality(ctx context.Context) (any, error) {
	since := r.since()

	out := make([]report.QualityReport, 0, len(r.results.Projects))
	for _, p := range r.results.Projects {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pipelines := gitlab.Fetch[gitlab.Pipeline](ctx, r.client,
			fmt.Sprintf("projects/%d/pipelines?updated_after=%s", p.ProjectID, since), r.pagedOpt())
		commits := gitlab.Fetch[gitlab.Commit](ctx, r.client,
			fmt.Sprintf("projects/%d/repository/commits?since=%s", p.ProjectID, since), r.pagedOpt())

		rec := report.QualityReport{
			ProjectID:     p.ProjectID,
			Path:          p.Path,
			PipelineCount: len(pipelines),
			RecentCommits: len(commits),
		}
		for _, pl := range pipelines {
			switch pl.Status {
			case "success":
				rec.SuccessfulPipelines++
			case "failed":
				rec.FailedPipelines++
			}
		}
		if finished := rec.SuccessfulPipelines + rec.FailedPipelines; finished > 0 {
			rec.SuccessRate = float64(rec.SuccessfulPipelines) / float64(finished)
		}
		rec.QualityScore = r.policy.QualityScore(rec.SuccessRate, rec.RecentCommits)
		out = append(out, rec)
	}

	r.results.Quality = out
	return out, nil
}

func (r *Runner) runCost(ctx context.Context) (any, error) {
	quality := qualityByProject(r.results.Quality)

	out := make([]report.CostReport, 0, len(r.results.Projects))
	for _, p := range r.results.Projects {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec := report.CostReport{
			ProjectID:    p.ProjectID,
			Path:         p.Path,
			StorageBytes: p.StorageBytes,
		}
		if q, ok := quality[p.ProjectID]; ok {
			rec.PipelineCount = q.PipelineCount
			rec.EstimatedCIMinutes = float64(q.PipelineCount) * r.policy.AvgMinutesPerPipeline
		}
		rec.EstimatedMonthlyCost = r.policy.MonthlyCost(rec.EstimatedCIMinutes, rec.StorageBytes)
		out = append(out, rec)
	}

	r.results.Cost = out
	return out, nil
}

func (r *Runner) runTeam(ctx context.Context) (any, error) {
	byEmail := make(map[string]*report.TeamReport)

	for _, p := range r.results.Projects {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		contributors := gitlab.Fetch[gitlab.Contributor](ctx, r.client,
			fmt.Sprintf("projects/%d/repository/contributors", p.ProjectID), r.pagedOpt())
		for _, c := range contributors {
			rec, ok := byEmail[c.Email]
			if !ok {
				rec = &report.TeamReport{Name: c.Name, Email: c.Email}
				byEmail[c.Email] = rec
			}
			rec.Commits += c.Commits
			rec.Additions += c.Additions
			rec.Deletions += c.Deletions
			rec.Projects++
		}
	}

	out := make([]report.TeamReport, 0, len(byEmail))
	for _, rec := range byEmail {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Commits != out[j].Commits {
			return out[i].Commits > out[j].Commits
		}
		return out[i].Email < out[j].Email
	})

	r.results.Team = out
	return out, nil
}

func (r *Runner) runTech(ctx context.Context) (any, error) {
	quality := qualityByProject(r.results.Quality)

	out := make([]report.TechReport, 0, len(r.results.Projects))
	for _, p := range r.results.Projects {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec := report.TechReport{
			ProjectID: p.ProjectID,
			Path:      p.Path,
			Languages: map[string]float64{},
		}

		// The languages endpoint returns a single object, not an array.
		langs := gitlab.Fetch[map[string]float64](ctx, r.client,
			fmt.Sprintf("projects/%d/languages", p.ProjectID), gitlab.RequestOptions{})
		if len(langs) > 0 {
			rec.Languages = langs[0]
		}
		rec.LanguageCount = len(rec.Languages)
		rec.PrimaryLanguage = primaryLanguage(rec.Languages)
		if q, ok := quality[p.ProjectID]; ok {
			rec.HasCI = q.PipelineCount > 0
		}
		out = append(out, rec)
	}

	r.results.Tech = out
	return out, nil
}

func (r *Runner) runLifecycle(ctx context.Context) (any, error) {
	since := r.since()

	out := make([]report.LifecycleReport, 0, len(r.results.Projects))
	for _, p := range r.results.Projects {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		issues := gitlab.Fetch[gitlab.Issue](ctx, r.client,
			fmt.Sprintf("projects/%d/issues?created_after=%s", p.ProjectID, since), r.pagedOpt())
		branches := gitlab.Fetch[gitlab.Branch](ctx, r.client,
			fmt.Sprintf("projects/%d/repository/branches", p.ProjectID), r.pagedOpt())
		releases := gitlab.Fetch[gitlab.Release](ctx, r.client,
			fmt.Sprintf("projects/%d/releases", p.ProjectID), r.pagedOpt())

		rec := report.LifecycleReport{
			ProjectID:    p.ProjectID,
			Path:         p.Path,
			IssuesOpened: len(issues),
			BranchCount:  len(branches),
			ReleaseCount: len(releases),
			Phase:        r.policy.LifecyclePhase(p.DaysSinceActivity),
		}

		var closeDays float64
		for _, is := range issues {
			if is.ClosedAt != nil {
				rec.IssuesClosed++
				closeDays += is.ClosedAt.Sub(is.CreatedAt).Hours() / 24
			}
		}
		if rec.IssuesClosed > 0 {
			rec.AvgCloseDays = closeDays / float64(rec.IssuesClosed)
		}
		out = append(out, rec)
	}

	r.results.Lifecycle = out
	return out, nil
}

func (r *Runner) runBusiness(ctx context.Context) (any, error) {
	since := r.since()
	weeks := float64(r.cfg.Analysis.LookbackDays) / 7

	out := make([]report.BusinessReport, 0, len(r.results.Projects))
	for _, p := range r.results.Projects {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		mrs := gitlab.Fetch[gitlab.MergeRequest](ctx, r.client,
			fmt.Sprintf("projects/%d/merge_requests?state=merged&updated_after=%s", p.ProjectID, since), r.pagedOpt())

		rec := report.BusinessReport{ProjectID: p.ProjectID, Path: p.Path}

		var mergeDays float64
		for _, mr := range mrs {
			if mr.MergedAt == nil {
				continue
			}
			rec.MergedMRs++
			mergeDays += mr.MergedAt.Sub(mr.CreatedAt).Hours() / 24
		}
		if rec.MergedMRs > 0 {
			rec.AvgMergeDays = mergeDays / float64(rec.MergedMRs)
		}
		if weeks > 0 {
			rec.ThroughputPerWeek = float64(rec.MergedMRs) / weeks
		}
		out = append(out, rec)
	}

	r.results.Business = out
	return out, nil
}

func (r *Runner) runAdoption(ctx context.Context) (any, error) {
	quality := qualityByProject(r.results.Quality)
	business := businessByProject(r.results.Business)
	lifecycle := lifecycleByProject(r.results.Lifecycle)

	out := make([]report.AdoptionReport, 0, len(r.results.Projects))
	for _, p := range r.results.Projects {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec := report.AdoptionReport{ProjectID: p.ProjectID, Path: p.Path}
		if q, ok := quality[p.ProjectID]; ok {
			rec.HasCI = q.PipelineCount > 0
		}
		if b, ok := business[p.ProjectID]; ok {
			rec.HasMRs = b.MergedMRs > 0
		}
		if l, ok := lifecycle[p.ProjectID]; ok {
			rec.HasIssues = l.IssuesOpened > 0
			rec.HasReleases = l.ReleaseCount > 0
		}
		rec.AdoptionScore = r.policy.AdoptionScore(rec.HasCI, rec.HasMRs, rec.HasIssues, rec.HasReleases)
		out = append(out, rec)
	}

	r.results.Adoption = out
	return out, nil
}

func (r *Runner) runCollaboration(ctx context.Context) (any, error) {
	since := r.since()

	out := make([]report.CollaborationReport, 0, len(r.results.Projects))
	for _, p := range r.results.Projects {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		mrs := gitlab.Fetch[gitlab.MergeRequest](ctx, r.client,
			fmt.Sprintf("projects/%d/merge_requests?updated_after=%s", p.ProjectID, since), r.pagedOpt())

		rec := report.CollaborationReport{ProjectID: p.ProjectID, Path: p.Path, MRCount: len(mrs)}

		authors := make(map[string]struct{})
		var notes int
		for _, mr := range mrs {
			notes += mr.UserNotesCount
			if mr.Author.Username != "" {
				authors[mr.Author.Username] = struct{}{}
			}
		}
		rec.UniqueAuthors = len(authors)
		if rec.MRCount > 0 {
			rec.NotesPerMR = float64(notes) / float64(rec.MRCount)
		}
		rec.CollaborationScore = r.policy.CollaborationScore(rec.MRCount, rec.NotesPerMR, rec.UniqueAuthors)
		out = append(out, rec)
	}

	r.results.Collaboration = out
	return out, nil
}

func (r *Runner) runMaturity(ctx context.Context) (any, error) {
	quality := qualityByProject(r.results.Quality)
	security := securityByProject(r.results.Security)
	adoption := adoptionByProject(r.results.Adoption)

	out := make([]report.MaturityReport, 0, len(r.results.Projects))
	for _, p := range r.results.Projects {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec := report.MaturityReport{ProjectID: p.ProjectID, Path: p.Path}

		// Average only the components whose stages actually produced data.
		var sum float64
		var n int
		if q, ok := quality[p.ProjectID]; ok {
			rec.QualityScore = q.QualityScore
			sum += q.QualityScore
			n++
		}
		if s, ok := security[p.ProjectID]; ok {
			rec.SecurityScore = s.SecurityScore
			sum += s.SecurityScore
			n++
		}
		if a, ok := adoption[p.ProjectID]; ok {
			rec.AdoptionScore = a.AdoptionScore
			sum += a.AdoptionScore
			n++
		}
		if n > 0 {
			rec.MaturityScore = sum / float64(n)
		}
		rec.Level = r.policy.MaturityLevel(rec.MaturityScore)
		out = append(out, rec)
	}

	r.results.Maturity = out
	return out, nil
}

func (r *Runner) runBarriers(ctx context.Context) (any, error) {
	adoption := adoptionByProject(r.results.Adoption)

	out := make([]report.BarrierReport, 0, len(r.results.Projects))
	for _, p := range r.results.Projects {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec := report.BarrierReport{
			ProjectID:    p.ProjectID,
			Path:         p.Path,
			Barriers:     []string{},
			InactiveDays: p.DaysSinceActivity,
		}
		if p.DaysSinceActivity > r.policy.BarrierInactiveDays {
			rec.Barriers = append(rec.Barriers, "inactive")
		}
		if a, ok := adoption[p.ProjectID]; ok {
			if !a.HasCI {
				rec.Barriers = append(rec.Barriers, "no_ci")
			}
			if !a.HasMRs {
				rec.Barriers = append(rec.Barriers, "no_code_review")
			}
			if !a.HasIssues {
				rec.Barriers = append(rec.Barriers, "no_issue_tracking")
			}
			if !a.HasReleases {
				rec.Barriers = append(rec.Barriers, "no_releases")
			}
		}
		rec.BarrierCount = len(rec.Barriers)
		out = append(out, rec)
	}

	r.results.Barriers = out
	return out, nil
}

func qualityByProject(items []report.QualityReport) map[int]report.QualityReport {
	m := make(map[int]report.QualityReport, len(items))
	for _, it := range items {
		m[it.ProjectID] = it
	}
	return m
}

func securityByProject(items []report.SecurityReport) map[int]report.SecurityReport {
	m := make(map[int]report.SecurityReport, len(items))
	for _, it := range items {
		m[it.ProjectID] = it
	}
	return m
}

func businessByProject(items []report.BusinessReport) map[int]report.BusinessReport {
	m := make(map[int]report.BusinessReport, len(items))
	for _, it := range items {
		m[it.ProjectID] = it
	}
	return m
}

func lifecycleByProject(items []report.LifecycleReport) map[int]report.LifecycleReport {
	m := make(map[int]report.LifecycleReport, len(items))
	for _, it := range items {
		m[it.ProjectID] = it
	}
	return m
}

func adoptionByProject(items []report.AdoptionReport) map[int]report.AdoptionReport {
	m := make(map[int]report.AdoptionReport, len(items))
	for _, it := range items {
		m[it.ProjectID] = it
	}
	return m
}

func primaryLanguage(langs map[string]float64) string {
	var best string
	var bestPct float64
	for name, pct := range langs {
		if pct > bestPct || (pct == bestPct && (best == "" || name < best)) {
			best = name
			bestPct = pct
		}
	}
	return best
}
