package stages

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"text/template"

	"github.com/islamelhosary/HistoFlow/internal/log"
	"github.com/islamelhosary/HistoFlow/pkg/config"
	"github.com/islamelhosary/HistoFlow/pkg/models"
	"github.com/pkg/errors"
)

var reportTmpl = template.Must(template.New("report").Parse(
	`{{.Prompt}} slide {{.WSIName}} (feature signature {{printf "%.4f" .Signature}}, {{.Dims}} dimensions)
`))

// GenerateReports renders one report text file per successfully embedded
// slide under <output>/reports/. Items the embedding stage marked error or
// skipped are propagated as skipped, never treated as failures of the
// whole stage.
func GenerateReports(_ context.Context, cfg config.Pipeline, upstream map[string]models.StageOutput) (models.StageOutput, error) {
	logger := log.GetLogger()
	embeddings := upstream["embeddings"]
	if len(embeddings) == 0 {
		logger.Warnf("No embeddings were provided; skipping report generation")
		return models.StageOutput{}, nil
	}

	reportsDir := filepath.Join(cfg.OutputFolder, "reports")
	if err := os.MkdirAll(reportsDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create reports folder")
	}

	out := models.StageOutput{}
	for _, item := range embeddings {
		if item.Status != models.SuccessItemStatus {
			logger.Warnf("Skipping report generation for %s due to embedding error", item.ID)
			out = append(out, models.StageItem{
				ID:     item.ID,
				Status: models.SkippedItemStatus,
				Error:  "embedding step failed",
			})
			continue
		}

		feats, err := readFeatures(item.Path)
		if err != nil {
			logger.Errorf("No usable feature file for %s: %v", item.ID, err)
			out = append(out, models.StageItem{ID: item.ID, Status: models.ErrorItemStatus, Error: err.Error()})
			continue
		}

		var buf bytes.Buffer
		err = reportTmpl.Execute(&buf, struct {
			Prompt    string
			WSIName   string
			Signature float64
			Dims      int
		}{cfg.ReportPrompt, item.ID, signature(feats.Feats), len(feats.Feats)})
		if err != nil {
			out = append(out, models.StageItem{ID: item.ID, Status: models.ErrorItemStatus, Error: err.Error()})
			continue
		}

		path := filepath.Join(reportsDir, item.ID+".txt")
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			out = append(out, models.StageItem{ID: item.ID, Status: models.ErrorItemStatus, Error: err.Error()})
			continue
		}
		out = append(out, models.StageItem{ID: item.ID, Path: path, Status: models.SuccessItemStatus})
		logger.Infof("Report saved to %s", path)
	}
	return out, nil
}

func readFeatures(path string) (featureFile, error) {
	var feats featureFile
	data, err := os.ReadFile(path)
	if err != nil {
		return feats, errors.Wrap(err, "missing feature file")
	}
	if err := json.Unmarshal(data, &feats); err != nil {
		return feats, errors.Wrap(err, "malformed feature file")
	}
	return feats, nil
}

func signature(feats []float64) float64 {
	var sum float64
	for _, f := range feats {
		sum += f
	}
	if len(feats) == 0 {
		return 0
	}
	return sum / float64(len(feats))
}
