package report

import "time"

// Report records are explicit structs with every field always present and
// defaulted, one slice entry per project (TeamReport is user-level). Export
// consumers rely on slices being non-nil and matching the project count.

// ProjectReport is the base per-project record produced by project collection
type ProjectReport struct {
	ProjectID         int       `json:"project_id"`
	Name              string    `json:"name"`
	Path              string    `json:"path"`
	Namespace         string    `json:"namespace"`
	Visibility        string    `json:"visibility"`
	DefaultBranch     string    `json:"default_branch"`
	CreatedAt         time.Time `json:"created_at"`
	LastActivityAt    time.Time `json:"last_activity_at"`
	DaysSinceActivity int       `json:"days_since_activity"`
	Stars             int       `json:"stars"`
	Forks             int       `json:"forks"`
	OpenIssues        int       `json:"open_issues"`
	CommitCount       int64     `json:"commit_count"`
	StorageBytes      int64     `json:"storage_bytes"`
	HealthScore       float64   `json:"health_score"`
}

// SecurityReport summarizes vulnerability findings for one project
type SecurityReport struct {
	ProjectID     int     `json:"project_id"`
	Path          string  `json:"path"`
	Critical      int     `json:"critical"`
	High          int     `json:"high"`
	Medium        int     `json:"medium"`
	Low           int     `json:"low"`
	TotalFindings int     `json:"total_findings"`
	SecurityScore float64 `json:"security_score"`
}

// QualityReport summarizes CI outcomes and commit activity
type QualityReport struct {
	ProjectID           int     `json:"project_id"`
	Path                string  `json:"path"`
	PipelineCount       int     `json:"pipeline_count"`
	SuccessfulPipelines int     `json:"successful_pipelines"`
	FailedPipelines     int     `json:"failed_pipelines"`
	SuccessRate         float64 `json:"success_rate"`
	RecentCommits       int     `json:"recent_commits"`
	QualityScore        float64 `json:"quality_score"`
}

// CostReport estimates compute and storage spend
type CostReport struct {
	ProjectID            int     `json:"project_id"`
	Path                 string  `json:"path"`
	PipelineCount        int     `json:"pipeline_count"`
	EstimatedCIMinutes   float64 `json:"estimated_ci_minutes"`
	StorageBytes         int64   `json:"storage_bytes"`
	EstimatedMonthlyCost float64 `json:"estimated_monthly_cost"`
}

// TeamReport is a user-level record aggregated across projects
type TeamReport struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Commits   int    `json:"commits"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Projects  int    `json:"projects"`
}

// TechReport summarizes the technology profile of one project
type TechReport struct {
	ProjectID       int                `json:"project_id"`
	Path            string             `json:"path"`
	Languages       map[string]float64 `json:"languages"`
	PrimaryLanguage string             `json:"primary_language"`
	LanguageCount   int                `json:"language_count"`
	HasCI           bool               `json:"has_ci"`
}

// LifecycleReport summarizes issue flow and release cadence
type LifecycleReport struct {
	ProjectID    int     `json:"project_id"`
	Path         string  `json:"path"`
	IssuesOpened int     `json:"issues_opened"`
	IssuesClosed int     `json:"issues_closed"`
	AvgCloseDays float64 `json:"avg_close_days"`
	BranchCount  int     `json:"branch_count"`
	ReleaseCount int     `json:"release_count"`
	Phase        string  `json:"phase"`
}

// BusinessReport summarizes delivery throughput
type BusinessReport struct {
	ProjectID         int     `json:"project_id"`
	Path              string  `json:"path"`
	MergedMRs         int     `json:"merged_mrs"`
	AvgMergeDays      float64 `json:"avg_merge_days"`
	ThroughputPerWeek float64 `json:"throughput_per_week"`
}

// AdoptionReport records which platform features a project uses
type AdoptionReport struct {
	ProjectID     int     `json:"project_id"`
	Path          string  `json:"path"`
	HasCI         bool    `json:"has_ci"`
	HasMRs        bool    `json:"has_mrs"`
	HasIssues     bool    `json:"has_issues"`
	HasReleases   bool    `json:"has_releases"`
	AdoptionScore float64 `json:"adoption_score"`
}

// CollaborationReport summarizes review activity
type CollaborationReport struct {
	ProjectID          int     `json:"project_id"`
	Path               string  `json:"path"`
	MRCount            int     `json:"mr_count"`
	NotesPerMR         float64 `json:"notes_per_mr"`
	UniqueAuthors      int     `json:"unique_authors"`
	CollaborationScore float64 `json:"collaboration_score"`
}

// MaturityReport combines quality, security, and adoption into one level
type MaturityReport struct {
	ProjectID     int     `json:"project_id"`
	Path          string  `json:"path"`
	QualityScore  float64 `json:"quality_score"`
	SecurityScore float64 `json:"security_score"`
	AdoptionScore float64 `json:"adoption_score"`
	MaturityScore float64 `json:"maturity_score"`
	Level         string  `json:"level"`
}

// BarrierReport lists what holds a project back from platform adoption
type BarrierReport struct {
	ProjectID    int      `json:"project_id"`
	Path         string   `json:"path"`
	Barriers     []string `json:"barriers"`
	BarrierCount int      `json:"barrier_count"`
	InactiveDays int      `json:"inactive_days"`
}
