package repomap

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// reportTopN bounds how many files the importance chart shows.
const reportTopN = 30

// WriteReport renders the repo map as a standalone HTML page: a bar chart
// of the most important files by PageRank score.
func WriteReport(w io.Writer, m *Map) error {
	type ranked struct {
		path  string
		score float64
	}

	files := make([]ranked, 0, len(m.Files))
	for p, f := range m.Files {
		files = append(files, ranked{path: p, score: f.Importance})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].score != files[j].score {
			return files[i].score > files[j].score
		}

		return files[i].path < files[j].path
	})

	if len(files) > reportTopN {
		files = files[:reportTopN]
	}

	labels := make([]string, len(files))
	values := make([]opts.BarData, len(files))

	for i, f := range files {
		labels[i] = f.path
		values[i] = opts.BarData{Value: f.score}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "File importance",
			Subtitle: fmt.Sprintf("repo %s @ %s", m.RepoID, m.SnapshotID),
		}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Rotate: 45}}),
	)
	bar.SetXAxis(labels).AddSeries("importance", values)

	page := components.NewPage()
	page.AddCharts(bar)

	if err := page.Render(w); err != nil {
		return fmt.Errorf("repomap: render report: %w", err)
	}

	return nil
}
