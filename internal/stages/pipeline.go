package stages

import (
	"context"

	"github.com/islamelhosary/HistoFlow/internal/log"
	"github.com/islamelhosary/HistoFlow/pkg/config"
	"github.com/islamelhosary/HistoFlow/pkg/models"
	"github.com/islamelhosary/HistoFlow/pkg/service"
	"github.com/pkg/errors"
)

// BuildRegistry wires the fixed slide-report chain:
//
//	load_config -> embeddings -> report_generation -> aggregation
//
// The retry policy applies to the two heavy stages; loading config and
// aggregating are cheap enough that retrying them buys nothing.
func BuildRegistry(policy models.RetryPolicy) (*service.Registry, error) {
	r := service.NewRegistry()
	defs := []service.StageDef{
		{Name: "load_config", Run: LoadConfig},
		{Name: "embeddings", Deps: []string{"load_config"}, Policy: policy, Run: Embeddings},
		{Name: "report_generation", Deps: []string{"embeddings"}, Policy: policy, Run: GenerateReports},
		{Name: "aggregation", Deps: []string{"report_generation"}, Run: AggregateReports},
	}
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return nil, err
		}
	}
	if err := r.Finalize(); err != nil {
		return nil, err
	}
	return r, nil
}

// LoadConfig is the entry stage: it sanity-checks the resolved settings the
// rest of the chain depends on.
func LoadConfig(_ context.Context, cfg config.Pipeline, _ map[string]models.StageOutput) (models.StageOutput, error) {
	if cfg.WSIFolder == "" {
		return nil, errors.New("wsi_folder is not set")
	}
	if cfg.OutputFolder == "" {
		return nil, errors.New("output_folder is not set")
	}
	log.GetLogger().Infof("Pipeline configuration loaded: wsi_folder=%s output_folder=%s", cfg.WSIFolder, cfg.OutputFolder)
	return models.StageOutput{{ID: "config", Status: models.SuccessItemStatus}}, nil
}
