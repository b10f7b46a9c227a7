package report

import "time"

// Policy holds the heuristic weights and rate constants used by the stage
// computations. The exact values are tunable policy, not contract; callers
// that need different weights supply their own Policy.
type Policy struct {
	// Health score component weights, summing to 1.
	HealthActivityWeight   float64
	HealthEngagementWeight float64
	HealthIssueWeight      float64

	// Days of inactivity at which the activity component reaches zero.
	ActivityHorizonDays int

	// Security score penalties per finding severity, subtracted from 100.
	CriticalPenalty float64
	HighPenalty     float64
	MediumPenalty   float64
	LowPenalty      float64

	// Cost model.
	AvgMinutesPerPipeline float64
	CostPerCIMinute       float64
	CostPerStorageGBMonth float64

	// Maturity level thresholds on the combined score.
	AdvancedThreshold float64
	ManagedThreshold  float64
	BasicThreshold    float64

	// Inactivity threshold for flagging an adoption barrier.
	BarrierInactiveDays int
}

// DefaultPolicy returns the stock weights.
func DefaultPolicy() Policy {
	return Policy{
		HealthActivityWeight:   0.5,
		HealthEngagementWeight: 0.3,
		HealthIssueWeight:      0.2,
		ActivityHorizonDays:    180,
		CriticalPenalty:        25,
		HighPenalty:            10,
		MediumPenalty:          3,
		LowPenalty:             1,
		AvgMinutesPerPipeline:  8,
		CostPerCIMinute:        0.008,
		CostPerStorageGBMonth:  0.05,
		AdvancedThreshold:      75,
		ManagedThreshold:       50,
		BasicThreshold:         25,
		BarrierInactiveDays:    60,
	}
}

// HealthScore scores a project 0-100 from recency of activity, community
// engagement, and open-issue load.
func (p Policy) HealthScore(daysSinceActivity, stars, forks, openIssues int) float64 {
	activity := 1 - float64(daysSinceActivity)/float64(p.ActivityHorizonDays)
	activity = clamp01(activity)

	engagement := float64(stars+forks) / 20
	engagement = clamp01(engagement)

	issues := 1 - float64(openIssues)/50
	issues = clamp01(issues)

	score := 100 * (p.HealthActivityWeight*activity +
		p.HealthEngagementWeight*engagement +
		p.HealthIssueWeight*issues)
	return round1(score)
}

// SecurityScore scores 0-100 by subtracting severity-weighted penalties.
func (p Policy) SecurityScore(critical, high, medium, low int) float64 {
	score := 100 -
		float64(critical)*p.CriticalPenalty -
		float64(high)*p.HighPenalty -
		float64(medium)*p.MediumPenalty -
		float64(low)*p.LowPenalty
	if score < 0 {
		score = 0
	}
	return round1(score)
}

// QualityScore blends pipeline success rate with recent commit activity.
func (p Policy) QualityScore(successRate float64, recentCommits int) float64 {
	commits := clamp01(float64(recentCommits) / 50)
	return round1(100 * (0.7*successRate + 0.3*commits))
}

// MonthlyCost estimates spend from CI minutes and stored bytes.
func (p Policy) MonthlyCost(ciMinutes float64, storageBytes int64) float64 {
	storageGB := float64(storageBytes) / (1024 * 1024 * 1024)
	return round2(ciMinutes*p.CostPerCIMinute + storageGB*p.CostPerStorageGBMonth)
}

// AdoptionScore scores 0-100 by feature usage, CI weighted heaviest.
func (p Policy) AdoptionScore(hasCI, hasMRs, hasIssues, hasReleases bool) float64 {
	var score float64
	if hasCI {
		score += 40
	}
	if hasMRs {
		score += 25
	}
	if hasIssues {
		score += 20
	}
	if hasReleases {
		score += 15
	}
	return score
}

// CollaborationScore blends review discussion depth with author spread.
func (p Policy) CollaborationScore(mrCount int, notesPerMR float64, uniqueAuthors int) float64 {
	if mrCount == 0 {
		return 0
	}
	discussion := clamp01(notesPerMR / 5)
	spread := clamp01(float64(uniqueAuthors) / 5)
	volume := clamp01(float64(mrCount) / 20)
	return round1(100 * (0.4*discussion + 0.4*spread + 0.2*volume))
}

// MaturityScore averages the component scores.
func (p Policy) MaturityScore(quality, security, adoption float64) float64 {
	return round1((quality + security + adoption) / 3)
}

// MaturityLevel maps a combined score onto a named level.
func (p Policy) MaturityLevel(score float64) string {
	switch {
	case score >= p.AdvancedThreshold:
		return "advanced"
	case score >= p.ManagedThreshold:
		return "managed"
	case score >= p.BasicThreshold:
		return "basic"
	default:
		return "initial"
	}
}

// LifecyclePhase classifies a project by inactivity.
func (p Policy) LifecyclePhase(daysSinceActivity int) string {
	switch {
	case daysSinceActivity <= 14:
		return "active"
	case daysSinceActivity <= 90:
		return "maintenance"
	default:
		return "dormant"
	}
}

// DaysSince reports whole days elapsed since t, never negative.
func DaysSince(t time.Time, now time.Time) int {
	if t.IsZero() || t.After(now) {
		return 0
	}
	return int(now.Sub(t).Hours() / 24)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
