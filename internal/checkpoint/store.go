package checkpoint

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"
)

// Status represents the terminal state of a pipeline stage
type Status string

const (
	StatusCompleted Status = "completed"
	StatusRestored  Status = "restored"
	StatusSkipped   Status = "skipped"
)

// Signature identifies a logically distinct analysis run. Any field
// difference invalidates prior checkpoints.
type Signature struct {
	InstanceURL  string `json:"instance_url"`
	LookbackDays int    `json:"lookback_days"`
	SecurityData bool   `json:"security_data"`
	AllReports   bool   `json:"all_reports"`
}

// Equal reports whether two signatures match field-by-field.
func (s Signature) Equal(other Signature) bool {
	return s == other
}

// RunKey derives the deterministic checkpoint directory name, e.g.
// 2025-01-01-gitlab-example-com-d360-sec1-all1.
func (s Signature) RunKey(date time.Time) string {
	return fmt.Sprintf("%s-%s-d%d-sec%d-all%d",
		date.Format("2006-01-02"),
		sanitizeHost(s.InstanceURL),
		s.LookbackDays,
		boolInt(s.SecurityData),
		boolInt(s.AllReports),
	)
}

// Record is one stage's checkpoint entry
type Record struct {
	Status     Status        `json:"status"`
	SavedAt    time.Time     `json:"saved_at"`
	Duration   time.Duration `json:"duration"`
	RestoredAt *time.Time    `json:"restored_at,omitempty"`
}

// Metadata is the durable run index, rewritten in full after every stage
// transition. It is the source of truth for resumability.
type Metadata struct {
	RunID       string            `json:"run_id"`
	RunKey      string            `json:"run_key"`
	Signature   Signature         `json:"signature"`
	GeneratedAt time.Time         `json:"generated_at"`
	Stages      map[string]Record `json:"stages"`
}

// Store defines the interface for checkpoint persistence
type Store interface {
	// UseExisting reports whether a prior run with an identical signature
	// was found and its payloads may be restored.
	UseExisting() bool

	// RunKey returns the derived checkpoint directory name.
	RunKey() string

	// Metadata returns a snapshot of the run index.
	Metadata() Metadata

	// Start records a stage's start time for duration measurement.
	// In-memory only; nothing is persisted until a Save call.
	Start(stage string)

	// Get returns a stage's persisted payload, or nil when the stage has
	// no usable payload. It never fails: missing or unreadable files
	// degrade to nil.
	Get(stage string) []byte

	// SaveCompleted persists the payload and records the stage as
	// Completed with its measured duration.
	SaveCompleted(stage string, payload any) error

	// SaveSkipped records the stage as Skipped. No payload is written.
	SaveSkipped(stage string) error

	// SaveRestored marks an existing record Restored, stamping the
	// restoration time and preserving the recorded duration.
	SaveRestored(stage string) error

	// Dir returns the per-run checkpoint directory.
	Dir() string
}

func sanitizeHost(instanceURL string) string {
	host := instanceURL
	if u, err := url.Parse(instanceURL); err == nil && u.Host != "" {
		host = u.Host
	}

	var b strings.Builder
	for _, r := range strings.ToLower(host) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
