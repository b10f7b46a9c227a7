package progress

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Display periodically renders pipeline progress to the console
type Display struct {
	tracker  *Tracker
	interval time.Duration
	stopCh   chan struct{}
}

// NewDisplay creates a new progress display
func NewDisplay(tracker *Tracker, interval time.Duration) *Display {
	return &Display{
		tracker:  tracker,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start starts the progress display
func (d *Display) Start() {
	go d.displayLoop()
}

// Stop stops the progress display
func (d *Display) Stop() {
	close(d.stopCh)
}

func (d *Display) displayLoop() {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.render()
		case <-d.stopCh:
			d.renderFinal()
			return
		}
	}
}

func (d *Display) render() {
	status := d.tracker.GetStatus()
	percent := d.tracker.GetProgressPercent()

	fmt.Printf("\r%s %d/%d stages  %-22s elapsed %s",
		progressBar(percent, 30),
		status.DoneStages, status.TotalStages,
		status.CurrentStage,
		FormatDuration(time.Since(status.StartTime)))
}

func (d *Display) renderFinal() {
	status := d.tracker.GetStatus()

	fmt.Println()
	fmt.Printf("Analysis finished: %d stages (%d computed, %d restored, %d skipped), %d projects, %s\n",
		status.DoneStages,
		status.CompletedStages,
		status.RestoredStages,
		status.SkippedStages,
		status.TotalProjects,
		FormatDuration(time.Since(status.StartTime)))
}

func progressBar(percent float64, width int) string {
	if percent > 100 {
		percent = 100
	}
	if percent < 0 {
		percent = 0
	}

	filled := int(percent * float64(width) / 100)
	bar := strings.Repeat("=", filled) + strings.Repeat("-", width-filled)

	return fmt.Sprintf("[%s] %5.1f%%", bar, percent)
}

// IsTerminalSupported checks if stdout is an interactive terminal
func IsTerminalSupported() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
