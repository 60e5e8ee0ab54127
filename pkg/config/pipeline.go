package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/islamelhosary/HistoFlow/pkg/models"
)

// ValidationError reports bad pipeline configuration at submission time.
// It is surfaced synchronously to the caller before any task record exists.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid pipeline config: %s: %s", e.Field, e.Reason)
}

// Pipeline holds the data-processing settings for one run. The merged value
// is snapshotted into the task record at submission and never re-derived.
type Pipeline struct {
	WSIFolder    string `json:"wsi_folder"`
	FileEnding   string `json:"file_ending"`
	OutputFolder string `json:"output_folder"`
	BatchSize    int    `json:"batch_size"`
	MaxWorkers   int    `json:"max_workers"`

	// Per-stage retry bounds for the embedding and report stages.
	MaxRetries     int `json:"max_retries"`
	RetryDelaySecs int `json:"retry_delay_seconds"`

	ModelPath    string `json:"model_path"`
	ModelURL     string `json:"model_url,omitempty"`
	ReportPrompt string `json:"report_prompt"`
}

// Overrides captures user-supplied config from the request body. Pointer
// fields so that absent/null JSON fields do not override the base settings.
type Overrides struct {
	WSIFolder    *string `json:"wsi_folder,omitempty"`
	FileEnding   *string `json:"file_ending,omitempty"`
	OutputFolder *string `json:"output_folder,omitempty"`
	BatchSize    *int    `json:"batch_size,omitempty"`
	MaxWorkers   *int    `json:"max_workers,omitempty"`
	ReportPrompt *string `json:"report_prompt,omitempty"`
}

// DefaultPipeline returns the built-in pipeline defaults.
func DefaultPipeline() Pipeline {
	return Pipeline{
		FileEnding:     ".svs",
		BatchSize:      32,
		MaxWorkers:     runtime.NumCPU(),
		MaxRetries:     2,
		RetryDelaySecs: 30,
		ModelPath:      "data/models/ctranspath.pth",
		ModelURL:       "https://huggingface.co/marr-peng-lab/histogpt/resolve/main/ctranspath.pth?download=true",
		ReportPrompt:   "Final diagnosis:",
	}
}

// LoadPipeline resolves pipeline settings from the built-in defaults and
// PIPELINE_-prefixed environment variables.
func LoadPipeline() Pipeline {
	p := DefaultPipeline()
	p.WSIFolder = getEnv("PIPELINE_WSI_FOLDER", p.WSIFolder)
	p.FileEnding = getEnv("PIPELINE_FILE_ENDING", p.FileEnding)
	p.OutputFolder = getEnv("PIPELINE_OUTPUT_FOLDER", p.OutputFolder)
	p.BatchSize = getEnvInt("PIPELINE_BATCH_SIZE", p.BatchSize)
	p.MaxWorkers = getEnvInt("PIPELINE_MAX_WORKERS", p.MaxWorkers)
	p.MaxRetries = getEnvInt("PIPELINE_MAX_RETRIES", p.MaxRetries)
	p.RetryDelaySecs = getEnvInt("PIPELINE_RETRY_DELAY_SECONDS", p.RetryDelaySecs)
	p.ModelPath = getEnv("PIPELINE_MODEL_PATH", p.ModelPath)
	p.ModelURL = getEnv("PIPELINE_MODEL_URL", p.ModelURL)
	p.ReportPrompt = getEnv("PIPELINE_REPORT_PROMPT", p.ReportPrompt)
	return p
}

// Merge applies user overrides on top of the base settings. Precedence is
// user > environment > defaults; nil fields leave the base value untouched.
func Merge(base Pipeline, o Overrides) Pipeline {
	if o.WSIFolder != nil {
		base.WSIFolder = *o.WSIFolder
	}
	if o.FileEnding != nil {
		base.FileEnding = *o.FileEnding
	}
	if o.OutputFolder != nil {
		base.OutputFolder = *o.OutputFolder
	}
	if o.BatchSize != nil {
		base.BatchSize = *o.BatchSize
	}
	if o.MaxWorkers != nil {
		base.MaxWorkers = *o.MaxWorkers
	}
	if o.ReportPrompt != nil {
		base.ReportPrompt = *o.ReportPrompt
	}
	return base
}

// Validate checks that the WSI folder exists and that the output folder can
// be created. Creating the output folder is a deliberate side effect.
func (p Pipeline) Validate() error {
	if p.WSIFolder == "" {
		return &ValidationError{Field: "wsi_folder", Reason: "required"}
	}
	info, err := os.Stat(p.WSIFolder)
	if err != nil || !info.IsDir() {
		return &ValidationError{Field: "wsi_folder", Reason: fmt.Sprintf("folder does not exist: %s", p.WSIFolder)}
	}
	if p.OutputFolder == "" {
		return &ValidationError{Field: "output_folder", Reason: "required"}
	}
	if err := os.MkdirAll(p.OutputFolder, 0o755); err != nil {
		return &ValidationError{Field: "output_folder", Reason: fmt.Sprintf("cannot create folder: %v", err)}
	}
	if p.MaxRetries < 0 {
		return &ValidationError{Field: "max_retries", Reason: "must be non-negative"}
	}
	return nil
}

// RetryPolicy builds the per-stage retry policy from the resolved settings.
func (p Pipeline) RetryPolicy() models.RetryPolicy {
	return models.RetryPolicy{
		MaxRetries: p.MaxRetries,
		Delay:      time.Duration(p.RetryDelaySecs) * time.Second,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
