package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gitlab2dash/internal/checkpoint"
	"gitlab2dash/internal/config"
	"gitlab2dash/internal/gitlab"
	"gitlab2dash/internal/metrics"
	"gitlab2dash/internal/progress"
	"gitlab2dash/internal/report"
)

// Stage names double as checkpoint payload file names.
const (
	StageProjects      = "projects"
	StageSecurity      = "security_scans"
	StageQuality       = "code_quality"
	StageCost          = "cost"
	StageTeam          = "team_performance"
	StageTech          = "technology"
	StageLifecycle     = "lifecycle"
	StageBusiness      = "business_alignment"
	StageAdoption      = "adoption"
	StageCollaboration = "collaboration"
	StageMaturity      = "devops_maturity"
	StageBarriers      = "adoption_barriers"
)

// StageOrder is the execution order of all stages.
var StageOrder = []string{
	StageProjects,
	StageSecurity,
	StageQuality,
	StageCost,
	StageTeam,
	StageTech,
	StageLifecycle,
	StageBusiness,
	StageAdoption,
	StageCollaboration,
	StageMaturity,
	StageBarriers,
}

// ErrNoProjects aborts the run: every later stage is meaningless without
// a project set.
var ErrNoProjects = errors.New("no projects fetched")

// Results holds every stage's output. Slices are never nil once their
// stage reaches a terminal state; per-project slices match the project
// count and order.
type Results struct {
	Projects      []report.ProjectReport       `json:"projects"`
	Security      []report.SecurityReport      `json:"security"`
	Quality       []report.QualityReport       `json:"quality"`
	Cost          []report.CostReport          `json:"cost"`
	Team          []report.TeamReport          `json:"team"`
	Tech          []report.TechReport          `json:"tech"`
	Lifecycle     []report.LifecycleReport     `json:"lifecycle"`
	Business      []report.BusinessReport      `json:"business"`
	Adoption      []report.AdoptionReport      `json:"adoption"`
	Collaboration []report.CollaborationReport `json:"collaboration"`
	Maturity      []report.MaturityReport      `json:"maturity"`
	Barriers      []report.BarrierReport       `json:"barriers"`
}

// Runner sequences the analysis stages, consulting the checkpoint store
// before invoking each stage's computation. Stages run strictly in order;
// one stage reaches a terminal state (restored, skipped, or completed)
// before the next starts.
type Runner struct {
	cfg     *config.Config
	client  *gitlab.Client
	store   checkpoint.Store
	logger  *zap.Logger
	metrics *metrics.Collector
	tracker *progress.Tracker
	policy  report.Policy
	results *Results

	now func() time.Time
}

// NewRunner creates a pipeline runner. tracker and collector may be nil.
func NewRunner(
	cfg *config.Config,
	client *gitlab.Client,
	store checkpoint.Store,
	logger *zap.Logger,
	collector *metrics.Collector,
	tracker *progress.Tracker,
	policy report.Policy,
) *Runner {
	return &Runner{
		cfg:     cfg,
		client:  client,
		store:   store,
		logger:  logger,
		metrics: collector,
		tracker: tracker,
		policy:  policy,
		results: &Results{},
		now:     time.Now,
	}
}

type stageDef struct {
	name  string
	gated func() bool
	run   func(ctx context.Context) (any, error)
	adopt func(raw []byte) error
	clear func()
}

func (r *Runner) stages() []stageDef {
	securityOff := func() bool { return !r.cfg.Analysis.SecurityData }
	extendedOff := func() bool { return !r.cfg.Analysis.AllReports }

	return []stageDef{
		{name: StageProjects, run: r.runProjects,
			adopt: adoptInto(&r.results.Projects), clear: func() { r.results.Projects = []report.ProjectReport{} }},
		{name: StageSecurity, gated: securityOff, run: r.runSecurity,
			adopt: adoptInto(&r.results.Security), clear: func() { r.results.Security = []report.SecurityReport{} }},
		{name: StageQuality, run: r.runQuality,
			adopt: adoptInto(&r.results.Quality), clear: func() { r.results.Quality = []report.QualityReport{} }},
		{name: StageCost, run: r.runCost,
			adopt: adoptInto(&r.results.Cost), clear: func() { r.results.Cost = []report.CostReport{} }},
		{name: StageTeam, run: r.runTeam,
			adopt: adoptInto(&r.results.Team), clear: func() { r.results.Team = []report.TeamReport{} }},
		{name: StageTech, run: r.runTech,
			adopt: adoptInto(&r.results.Tech), clear: func() { r.results.Tech = []report.TechReport{} }},
		{name: StageLifecycle, run: r.runLifecycle,
			adopt: adoptInto(&r.results.Lifecycle), clear: func() { r.results.Lifecycle = []report.LifecycleReport{} }},
		{name: StageBusiness, run: r.runBusiness,
			adopt: adoptInto(&r.results.Business), clear: func() { r.results.Business = []report.BusinessReport{} }},
		{name: StageAdoption, run: r.runAdoption,
			adopt: adoptInto(&r.results.Adoption), clear: func() { r.results.Adoption = []report.AdoptionReport{} }},
		{name: StageCollaboration, gated: extendedOff, run: r.runCollaboration,
			adopt: adoptInto(&r.results.Collaboration), clear: func() { r.results.Collaboration = []report.CollaborationReport{} }},
		{name: StageMaturity, gated: extendedOff, run: r.runMaturity,
			adopt: adoptInto(&r.results.Maturity), clear: func() { r.results.Maturity = []report.MaturityReport{} }},
		{name: StageBarriers, gated: extendedOff, run: r.runBarriers,
			adopt: adoptInto(&r.results.Barriers), clear: func() { r.results.Barriers = []report.BarrierReport{} }},
	}
}

// Run executes every stage once and returns the collected results.
func (r *Runner) Run(ctx context.Context) (*Results, error) {
	stages := r.stages()
	if r.tracker != nil {
		r.tracker.SetTotalStages(len(stages))
	}

	for i, st := range stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		r.logger.Info("Stage starting",
			zap.String("stage", st.name),
			zap.Int("step", i+1),
			zap.Int("total", len(stages)),
			zap.Float64("percent", float64(i)/float64(len(stages))*100))
		if r.tracker != nil {
			r.tracker.StageStarted(st.name)
		}

		if err := r.runStage(ctx, st); err != nil {
			return nil, err
		}

		if st.name == StageProjects {
			if len(r.results.Projects) == 0 {
				return nil, ErrNoProjects
			}
			if r.metrics != nil {
				r.metrics.SetProjectCount(len(r.results.Projects))
			}
			if r.tracker != nil {
				r.tracker.SetTotalProjects(len(r.results.Projects))
			}
		}
	}

	return r.results, nil
}

func (r *Runner) runStage(ctx context.Context, st stageDef) error {
	// 1. A usable payload from a prior run wins over recomputation.
	if raw := r.store.Get(st.name); raw != nil {
		if err := st.adopt(raw); err == nil {
			if err := r.store.SaveRestored(st.name); err != nil {
				r.logger.Warn("Failed to record restored stage",
					zap.String("stage", st.name), zap.Error(err))
			}
			if r.tracker != nil {
				r.tracker.StageRestored()
			}
			r.logger.Info("Stage restored from checkpoint", zap.String("stage", st.name))
			return nil
		}
		r.logger.Warn("Stage payload unreadable, recomputing", zap.String("stage", st.name))
	}

	// 2. Feature-gated stages are skipped with an empty collection.
	if st.gated != nil && st.gated() {
		st.clear()
		if err := r.store.SaveSkipped(st.name); err != nil {
			r.logger.Warn("Failed to record skipped stage",
				zap.String("stage", st.name), zap.Error(err))
		}
		if r.tracker != nil {
			r.tracker.StageSkipped()
		}
		r.logger.Info("Stage skipped by feature gate", zap.String("stage", st.name))
		return nil
	}

	// 3. Compute.
	r.store.Start(st.name)
	started := r.now()

	payload, err := st.run(ctx)
	if err != nil {
		return fmt.Errorf("stage %s: %w", st.name, err)
	}

	duration := r.now().Sub(started)
	if err := r.store.SaveCompleted(st.name, payload); err != nil {
		r.logger.Warn("Failed to persist stage checkpoint",
			zap.String("stage", st.name), zap.Error(err))
	}
	if r.metrics != nil {
		r.metrics.ObserveStageDuration(st.name, duration)
	}
	if r.tracker != nil {
		r.tracker.StageCompleted()
	}
	r.logger.Info("Stage completed",
		zap.String("stage", st.name),
		zap.Duration("duration", duration))
	return nil
}

func adoptInto[T any](dst *[]T) func([]byte) error {
	return func(raw []byte) error {
		var items []T
		if err := json.Unmarshal(raw, &items); err != nil {
			return err
		}
		if items == nil {
			items = []T{}
		}
		*dst = items
		return nil
	}
}
