package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHealthScore_Bounds(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()

	// Fresh activity, strong engagement, no issue load.
	assert.Equal(t, 100.0, p.HealthScore(0, 15, 5, 0))

	// Long-dead project with no engagement and heavy issue load.
	assert.Equal(t, 0.0, p.HealthScore(400, 0, 0, 100))

	// Components never push the score outside 0-100.
	for _, days := range []int{0, 90, 180, 1000} {
		score := p.HealthScore(days, 50, 50, 200)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 100.0)
	}
}

func TestHealthScore_ActivityDecay(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()

	fresh := p.HealthScore(0, 0, 0, 0)
	half := p.HealthScore(90, 0, 0, 0)
	dead := p.HealthScore(180, 0, 0, 0)

	assert.Greater(t, fresh, half)
	assert.Greater(t, half, dead)
}

func TestSecurityScore_Penalties(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()

	assert.Equal(t, 100.0, p.SecurityScore(0, 0, 0, 0))
	assert.Equal(t, 75.0, p.SecurityScore(1, 0, 0, 0))
	assert.Equal(t, 61.0, p.SecurityScore(1, 1, 1, 1))

	// Floors at zero rather than going negative.
	assert.Equal(t, 0.0, p.SecurityScore(10, 0, 0, 0))
}

func TestQualityScore(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()

	assert.Equal(t, 0.0, p.QualityScore(0, 0))
	assert.Equal(t, 100.0, p.QualityScore(1, 50))
	assert.Equal(t, 70.0, p.QualityScore(1, 0))

	// Commit contribution saturates at 50 recent commits.
	assert.Equal(t, p.QualityScore(0.5, 50), p.QualityScore(0.5, 500))
}

func TestMonthlyCost(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()

	assert.Equal(t, 0.0, p.MonthlyCost(0, 0))

	// 1000 CI minutes at $0.008 plus 10 GiB at $0.05.
	cost := p.MonthlyCost(1000, 10*1024*1024*1024)
	assert.Equal(t, 8.5, cost)
}

func TestAdoptionScore_Weights(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()

	assert.Equal(t, 0.0, p.AdoptionScore(false, false, false, false))
	assert.Equal(t, 40.0, p.AdoptionScore(true, false, false, false))
	assert.Equal(t, 25.0, p.AdoptionScore(false, true, false, false))
	assert.Equal(t, 20.0, p.AdoptionScore(false, false, true, false))
	assert.Equal(t, 15.0, p.AdoptionScore(false, false, false, true))
	assert.Equal(t, 100.0, p.AdoptionScore(true, true, true, true))
}

func TestCollaborationScore(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()

	assert.Equal(t, 0.0, p.CollaborationScore(0, 10, 10))
	assert.Equal(t, 100.0, p.CollaborationScore(20, 5, 5))

	deep := p.CollaborationScore(10, 4, 3)
	shallow := p.CollaborationScore(10, 1, 3)
	assert.Greater(t, deep, shallow)
}

func TestMaturityLevel_Thresholds(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()

	assert.Equal(t, "advanced", p.MaturityLevel(75))
	assert.Equal(t, "managed", p.MaturityLevel(74.9))
	assert.Equal(t, "managed", p.MaturityLevel(50))
	assert.Equal(t, "basic", p.MaturityLevel(49.9))
	assert.Equal(t, "basic", p.MaturityLevel(25))
	assert.Equal(t, "initial", p.MaturityLevel(24.9))
	assert.Equal(t, "initial", p.MaturityLevel(0))
}

func TestLifecyclePhase(t *testing.T) {
	t.Parallel()

	p := DefaultPolicy()

	assert.Equal(t, "active", p.LifecyclePhase(0))
	assert.Equal(t, "active", p.LifecyclePhase(14))
	assert.Equal(t, "maintenance", p.LifecyclePhase(15))
	assert.Equal(t, "maintenance", p.LifecyclePhase(90))
	assert.Equal(t, "dormant", p.LifecyclePhase(91))
}

func TestDaysSince(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, DaysSince(time.Time{}, now))
	assert.Equal(t, 0, DaysSince(now.Add(time.Hour), now))
	assert.Equal(t, 0, DaysSince(now.Add(-time.Hour), now))
	assert.Equal(t, 3, DaysSince(now.AddDate(0, 0, -3), now))
}
