package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"gitlab2dash/internal/pipeline"
)

const (
	dashboardFile = "dashboard.html"
	chartWidth    = "1100px"
	chartHeight   = "480px"
	topProjects   = 25
)

// WriteDashboard renders the HTML dashboard into dir.
func WriteDashboard(dir string, res *pipeline.Results) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(
		healthChart(res),
		languagePie(res),
		maturityChart(res),
		costChart(res),
		adoptionChart(res),
	)

	f, err := os.Create(filepath.Join(dir, dashboardFile))
	if err != nil {
		return fmt.Errorf("failed to create dashboard file: %w", err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		return fmt.Errorf("failed to render dashboard: %w", err)
	}
	return nil
}

func healthChart(res *pipeline.Results) *charts.Bar {
	projects := make([]struct {
		path  string
		score float64
	}, 0, len(res.Projects))
	for _, p := range res.Projects {
		projects = append(projects, struct {
			path  string
			score float64
		}{p.Path, p.HealthScore})
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].score > projects[j].score })
	if len(projects) > topProjects {
		projects = projects[:topProjects]
	}

	labels := make([]string, len(projects))
	data := make([]opts.BarData, len(projects))
	for i, p := range projects {
		labels[i] = p.path
		data[i] = opts.BarData{Value: p.score}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "GitLab Analysis Dashboard",
			Width:     chartWidth,
			Height:    chartHeight,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Project Health",
			Subtitle: "Top projects by health score",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(labels).AddSeries("Health score", data)
	return bar
}

func languagePie(res *pipeline.Results) *charts.Pie {
	counts := make(map[string]int)
	for _, t := range res.Tech {
		if t.PrimaryLanguage != "" {
			counts[t.PrimaryLanguage]++
		}
	}

	data := make([]opts.PieData, 0, len(counts))
	for name, n := range counts {
		data = append(data, opts.PieData{Name: name, Value: n})
	}
	sort.Slice(data, func(i, j int) bool { return data[i].Name < data[j].Name })

	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Technology Mix",
			Subtitle: "Projects by primary language",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	pie.AddSeries("Languages", data)
	return pie
}

func maturityChart(res *pipeline.Results) *charts.Bar {
	levels := []string{"initial", "basic", "managed", "advanced"}
	counts := make(map[string]int)
	for _, m := range res.Maturity {
		counts[m.Level]++
	}

	data := make([]opts.BarData, len(levels))
	for i, level := range levels {
		data[i] = opts.BarData{Value: counts[level]}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{
			Title:    "DevOps Maturity",
			Subtitle: "Projects per maturity level",
		}),
	)
	bar.SetXAxis(levels).AddSeries("Projects", data)
	return bar
}

func costChart(res *pipeline.Results) *charts.Bar {
	costs := make([]struct {
		path string
		cost float64
	}, 0, len(res.Cost))
	for _, c := range res.Cost {
		costs = append(costs, struct {
			path string
			cost float64
		}{c.Path, c.EstimatedMonthlyCost})
	}
	sort.Slice(costs, func(i, j int) bool { return costs[i].cost > costs[j].cost })
	if len(costs) > topProjects {
		costs = costs[:topProjects]
	}

	labels := make([]string, len(costs))
	data := make([]opts.BarData, len(costs))
	for i, c := range costs {
		labels[i] = c.path
		data[i] = opts.BarData{Value: c.cost}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Estimated Cost",
			Subtitle: "Top projects by estimated monthly cost",
		}),
	)
	bar.SetXAxis(labels).AddSeries("Monthly cost", data)
	return bar
}

func adoptionChart(res *pipeline.Results) *charts.Bar {
	var ci, mrs, issues, releases int
	for _, a := range res.Adoption {
		if a.HasCI {
			ci++
		}
		if a.HasMRs {
			mrs++
		}
		if a.HasIssues {
			issues++
		}
		if a.HasReleases {
			releases++
		}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Feature Adoption",
			Subtitle: "Projects using each platform feature",
		}),
	)
	bar.SetXAxis([]string{"CI", "Merge requests", "Issues", "Releases"}).
		AddSeries("Projects", []opts.BarData{
			{Value: ci}, {Value: mrs}, {Value: issues}, {Value: releases},
		})
	return bar
}
