package progress

import (
	"fmt"
	"sync"
	"time"
)

// Status represents the current pipeline progress
type Status struct {
	TotalStages     int
	DoneStages      int
	CompletedStages int
	RestoredStages  int
	SkippedStages   int
	CurrentStage    string
	TotalProjects   int
	StartTime       time.Time
	LastUpdateTime  time.Time
}

// Tracker tracks pipeline progress
type Tracker struct {
	mu     sync.RWMutex
	status Status
}

// NewTracker creates a new progress tracker
func NewTracker() *Tracker {
	return &Tracker{
		status: Status{
			StartTime:      time.Now(),
			LastUpdateTime: time.Now(),
		},
	}
}

// SetTotalStages sets the number of stages in the run
func (t *Tracker) SetTotalStages(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.TotalStages = n
}

// SetTotalProjects sets the number of projects under analysis
func (t *Tracker) SetTotalProjects(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.TotalProjects = n
}

// StageStarted records the stage currently running
func (t *Tracker) StageStarted(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.CurrentStage = name
	t.status.LastUpdateTime = time.Now()
}

// StageCompleted records one stage finishing with fresh computation
func (t *Tracker) StageCompleted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.CompletedStages++
	t.status.DoneStages++
	t.status.LastUpdateTime = time.Now()
}

// StageRestored records one stage restored from checkpoint
func (t *Tracker) StageRestored() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.RestoredStages++
	t.status.DoneStages++
	t.status.LastUpdateTime = time.Now()
}

// StageSkipped records one stage skipped by a feature gate
func (t *Tracker) StageSkipped() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.SkippedStages++
	t.status.DoneStages++
	t.status.LastUpdateTime = time.Now()
}

// GetStatus returns the current status (thread-safe)
func (t *Tracker) GetStatus() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// GetProgressPercent returns the progress percentage
func (t *Tracker) GetProgressPercent() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.status.TotalStages == 0 {
		return 0
	}
	return float64(t.status.DoneStages) / float64(t.status.TotalStages) * 100
}

// FormatDuration formats duration in human readable form
func FormatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
