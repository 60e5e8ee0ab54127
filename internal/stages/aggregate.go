package stages

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"

	"github.com/islamelhosary/HistoFlow/internal/log"
	"github.com/islamelhosary/HistoFlow/pkg/config"
	"github.com/islamelhosary/HistoFlow/pkg/models"
	"github.com/pkg/errors"
)

// AggregateReports collects the generated report files into a single
// results.csv. Missing or failed reports are skipped; even when every item
// failed the CSV is still written with its header row.
func AggregateReports(_ context.Context, cfg config.Pipeline, upstream map[string]models.StageOutput) (models.StageOutput, error) {
	logger := log.GetLogger()
	logger.Infof("Aggregating reports into a single CSV")

	reports := upstream["report_generation"]

	if err := os.MkdirAll(cfg.OutputFolder, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create output folder")
	}
	csvPath := filepath.Join(cfg.OutputFolder, "results.csv")

	f, err := os.Create(csvPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s", csvPath)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"wsi_name", "report_text"}); err != nil {
		return nil, errors.Wrap(err, "failed to write CSV header")
	}

	out := models.StageOutput{}
	aggregated := 0
	for _, rep := range reports {
		if rep.Status != models.SuccessItemStatus {
			out = append(out, models.StageItem{ID: rep.ID, Status: models.SkippedItemStatus, Error: "report not generated"})
			continue
		}
		text, err := os.ReadFile(rep.Path)
		if err != nil {
			logger.Warnf("Report file not found for %s: %v", rep.ID, err)
			out = append(out, models.StageItem{ID: rep.ID, Status: models.SkippedItemStatus, Error: err.Error()})
			continue
		}
		if err := w.Write([]string{rep.ID, string(text)}); err != nil {
			return nil, errors.Wrapf(err, "failed to write CSV row for %s", rep.ID)
		}
		out = append(out, models.StageItem{ID: rep.ID, Path: csvPath, Status: models.SuccessItemStatus})
		aggregated++
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errors.Wrap(err, "failed to save CSV")
	}

	if aggregated == 0 {
		logger.Warnf("Could not aggregate any reports; wrote header-only CSV to %s", csvPath)
	} else {
		logger.Infof("Aggregation complete: %d of %d report(s) written to %s", aggregated, len(reports), csvPath)
	}
	return out, nil
}
