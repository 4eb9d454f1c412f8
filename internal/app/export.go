package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"vault-guard/internal/service"
	"vault-guard/internal/storage"
)

const (
	// defaultExportWindow is the lookback when --from is omitted.
	defaultExportWindow = 7 * 24 * time.Hour
	maxExportRows       = 100000
)

// Export renders the assessment audit trail as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-defaultExportWindow)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	return a.withService(ctx, func(svc *service.Service) error {
		records, err := svc.HistoryBetween(ctx, opts.Account, from, to, maxExportRows)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			a.Logger.Info().Msg("no assessments found for export window")
			return nil
		}

		downsampled := downsampleAssessments(records, opts.MaxPoints)
		a.Logger.Info().Int("total", len(records)).Int("exported", len(downsampled)).Msg("exporting assessments")

		if opts.CSVPath != "" {
			if err := writeAssessmentsCSV(opts.CSVPath, downsampled); err != nil {
				return err
			}
		}

		if opts.PNGPath != "" {
			if err := writeAssessmentsPNG(opts.PNGPath, downsampled); err != nil {
				return err
			}
		}
		return nil
	})
}

func downsampleAssessments(records []storage.AssessmentRecord, max int) []storage.AssessmentRecord {
	if max <= 0 || len(records) <= max {
		return records
	}
	if max == 1 {
		return records[len(records)-1:]
	}

	result := make([]storage.AssessmentRecord, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func writeAssessmentsCSV(path string, records []storage.AssessmentRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"created_at", "account", "to", "value", "function", "score", "level", "action", "delay_hours", "findings"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, rec := range records {
		row := []string{
			rec.CreatedAt.UTC().Format(time.RFC3339),
			rec.Account,
			rec.To,
			rec.Value.String(),
			rec.FunctionName,
			strconv.Itoa(rec.Score),
			rec.Level,
			rec.Action,
			strconv.Itoa(rec.DelayHours),
			string(rec.Findings),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeAssessmentsPNG(path string, records []storage.AssessmentRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(records))
	scores := make([]float64, len(records))
	delays := make([]float64, len(records))

	for i, rec := range records {
		x[i] = rec.CreatedAt
		scores[i] = float64(rec.Score)
		delays[i] = float64(rec.DelayHours)
	}

	intFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Risk score",
			ValueFormatter: intFormatter,
			Range:          &chart.ContinuousRange{Min: 0, Max: 100},
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Timelock (h)",
			ValueFormatter: intFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Score",
				XValues: x,
				YValues: scores,
			},
			chart.TimeSeries{
				Name:    "Delay hours",
				XValues: x,
				YValues: delays,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
