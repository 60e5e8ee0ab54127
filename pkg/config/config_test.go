package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/islamelhosary/HistoFlow/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadPipelineDefaults(t *testing.T) {
	p := config.LoadPipeline()
	assert.Equal(t, ".svs", p.FileEnding)
	assert.Equal(t, 2, p.MaxRetries)
	assert.Equal(t, 30, p.RetryDelaySecs)
	assert.Equal(t, "Final diagnosis:", p.ReportPrompt)
	assert.Greater(t, p.MaxWorkers, 0)
}

func TestLoadPipelineEnvOverridesDefaults(t *testing.T) {
	t.Setenv("PIPELINE_BATCH_SIZE", "64")
	t.Setenv("PIPELINE_FILE_ENDING", ".ndpi")

	p := config.LoadPipeline()
	assert.Equal(t, 64, p.BatchSize)
	assert.Equal(t, ".ndpi", p.FileEnding)
}

func TestMergeUserOverridesEnv(t *testing.T) {
	t.Setenv("PIPELINE_BATCH_SIZE", "64")

	batch := 128
	merged := config.Merge(config.LoadPipeline(), config.Overrides{BatchSize: &batch})
	assert.Equal(t, 128, merged.BatchSize)
}

func TestMergeNilFieldsDoNotOverride(t *testing.T) {
	base := config.DefaultPipeline()
	base.WSIFolder = "/data/wsi"
	base.BatchSize = 16

	ending := ".tiff"
	merged := config.Merge(base, config.Overrides{FileEnding: &ending})

	assert.Equal(t, "/data/wsi", merged.WSIFolder)
	assert.Equal(t, 16, merged.BatchSize)
	assert.Equal(t, ".tiff", merged.FileEnding)
}

func TestValidateMissingWSIFolder(t *testing.T) {
	p := config.DefaultPipeline()
	p.WSIFolder = filepath.Join(t.TempDir(), "does-not-exist")
	p.OutputFolder = t.TempDir()

	err := p.Validate()
	assert.Error(t, err)

	var vErr *config.ValidationError
	assert.True(t, errors.As(err, &vErr))
	assert.Equal(t, "wsi_folder", vErr.Field)
}

func TestValidateCreatesOutputFolder(t *testing.T) {
	p := config.DefaultPipeline()
	p.WSIFolder = t.TempDir()
	p.OutputFolder = filepath.Join(t.TempDir(), "nested", "output")

	assert.NoError(t, p.Validate())

	info, err := os.Stat(p.OutputFolder)
	assert.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestValidateRequiredFields(t *testing.T) {
	p := config.DefaultPipeline()
	assert.Error(t, p.Validate())

	p.WSIFolder = t.TempDir()
	err := p.Validate()
	var vErr *config.ValidationError
	assert.True(t, errors.As(err, &vErr))
	assert.Equal(t, "output_folder", vErr.Field)
}
