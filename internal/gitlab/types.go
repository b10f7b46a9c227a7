package gitlab

import "time"

// Project represents a GitLab project as returned by /projects
type Project struct {
	ID                int                `json:"id"`
	Name              string             `json:"name"`
	PathWithNamespace string             `json:"path_with_namespace"`
	DefaultBranch     string             `json:"default_branch"`
	Visibility        string             `json:"visibility"`
	WebURL            string             `json:"web_url"`
	CreatedAt         time.Time          `json:"created_at"`
	LastActivityAt    time.Time          `json:"last_activity_at"`
	StarCount         int                `json:"star_count"`
	ForksCount        int                `json:"forks_count"`
	OpenIssuesCount   int                `json:"open_issues_count"`
	Archived          bool               `json:"archived"`
	EmptyRepo         bool               `json:"empty_repo"`
	Namespace         Namespace          `json:"namespace"`
	Statistics        *ProjectStatistics `json:"statistics,omitempty"`
}

// Namespace is the owning group or user of a project
type Namespace struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
	Kind string `json:"kind"`
}

// ProjectStatistics is returned when listing projects with statistics=true
type ProjectStatistics struct {
	CommitCount      int64 `json:"commit_count"`
	RepositorySize   int64 `json:"repository_size"`
	StorageSize      int64 `json:"storage_size"`
	JobArtifactsSize int64 `json:"job_artifacts_size"`
	LFSObjectsSize   int64 `json:"lfs_objects_size"`
}

// Pipeline represents one CI pipeline
type Pipeline struct {
	ID        int       `json:"id"`
	Status    string    `json:"status"`
	Ref       string    `json:"ref"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MergeRequest represents one merge request
type MergeRequest struct {
	ID             int        `json:"id"`
	IID            int        `json:"iid"`
	State          string     `json:"state"`
	Title          string     `json:"title"`
	CreatedAt      time.Time  `json:"created_at"`
	MergedAt       *time.Time `json:"merged_at"`
	ClosedAt       *time.Time `json:"closed_at"`
	Author         User       `json:"author"`
	UserNotesCount int        `json:"user_notes_count"`
	Upvotes        int        `json:"upvotes"`
}

// Issue represents one issue
type Issue struct {
	ID        int        `json:"id"`
	IID       int        `json:"iid"`
	State     string     `json:"state"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at"`
	Labels    []string   `json:"labels"`
}

// Commit represents one repository commit
type Commit struct {
	ID          string    `json:"id"`
	ShortID     string    `json:"short_id"`
	AuthorName  string    `json:"author_name"`
	AuthorEmail string    `json:"author_email"`
	CreatedAt   time.Time `json:"created_at"`
}

// Contributor is a repository contributor with commit counts
type Contributor struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Commits   int    `json:"commits"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// User represents an instance user
type User struct {
	ID             int       `json:"id"`
	Username       string    `json:"username"`
	Name           string    `json:"name"`
	State          string    `json:"state"`
	Bot            bool      `json:"bot"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityOn string    `json:"last_activity_on"`
}

// Vulnerability represents one vulnerability finding
type Vulnerability struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Severity   string `json:"severity"`
	State      string `json:"state"`
	ReportType string `json:"report_type"`
}

// Branch represents one repository branch
type Branch struct {
	Name    string `json:"name"`
	Merged  bool   `json:"merged"`
	Default bool   `json:"default"`
}

// Release represents one project release
type Release struct {
	TagName    string     `json:"tag_name"`
	ReleasedAt *time.Time `json:"released_at"`
}

// Version is the instance version as returned by /version
type Version struct {
	Version  string `json:"version"`
	Revision string `json:"revision"`
}
