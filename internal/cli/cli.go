package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	internal_http "github.com/islamelhosary/HistoFlow/internal/http"
	"github.com/islamelhosary/HistoFlow/internal/log"
	internal_storage "github.com/islamelhosary/HistoFlow/internal/storage"
	"github.com/islamelhosary/HistoFlow/internal/stages"
	"github.com/islamelhosary/HistoFlow/pkg/config"
	"github.com/islamelhosary/HistoFlow/pkg/service"
	"github.com/islamelhosary/HistoFlow/pkg/storage"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func SetupCLI(rootCmd *cobra.Command) {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HistoFlow API server and worker pool",
		Run: func(cmd *cobra.Command, args []string) {
			loadDotenv()
			appCfg := config.LoadApp()
			store := initStore(appCfg)
			defer store.Close()

			registry, err := stages.BuildRegistry(config.LoadPipeline().RetryPolicy())
			if err != nil {
				log.GetLogger().Errorf("Failed to build stage registry: %v", err)
				os.Exit(1)
			}
			svc := service.NewPipelineService(context.Background(), store, registry, log.GetLogger(), appCfg.Workers)
			defer svc.Stop()

			if err := internal_http.StartServer(appCfg.Port, svc); err != nil {
				log.GetLogger().Errorf("Server stopped: %v", err)
				os.Exit(1)
			}
		},
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once, synchronously, without the server",
		Run: func(cmd *cobra.Command, args []string) {
			loadDotenv()
			pipelineCfg := config.LoadPipeline()

			cfgPath, _ := cmd.Flags().GetString("config")
			if cfgPath != "" {
				data, err := os.ReadFile(cfgPath)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error: failed to read config file: %v\n", err)
					os.Exit(1)
				}
				var overrides config.Overrides
				if err := json.Unmarshal(data, &overrides); err != nil {
					fmt.Fprintf(os.Stderr, "Error: failed to parse config file: %v\n", err)
					os.Exit(1)
				}
				pipelineCfg = config.Merge(pipelineCfg, overrides)
			}
			if err := pipelineCfg.Validate(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}

			registry, err := stages.BuildRegistry(pipelineCfg.RetryPolicy())
			if err != nil {
				log.GetLogger().Errorf("Failed to build stage registry: %v", err)
				os.Exit(1)
			}
			executor := service.NewExecutor(registry, log.GetLogger())
			outputs, err := executor.Run(context.Background(), pipelineCfg)
			if err != nil {
				log.GetLogger().Errorf("Pipeline failed: %v", err)
				os.Exit(1)
			}
			log.GetLogger().Infof("Pipeline completed successfully")
			for name, out := range outputs {
				s := out.Summarize()
				fmt.Fprintf(os.Stdout, "- %s: %d succeeded, %d skipped, %d failed\n",
					name, s.Succeeded, s.Skipped, s.Failed)
			}
		},
	}
	runCmd.Flags().String("config", "", "Path to a JSON file with pipeline overrides (optional)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all task identifiers",
		Run: func(cmd *cobra.Command, args []string) {
			loadDotenv()
			store := initStore(config.LoadApp())
			defer store.Close()
			ids, err := store.ListTaskIDs(context.Background())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to list tasks: %v\n", err)
				os.Exit(1)
			}
			if len(ids) == 0 {
				fmt.Fprintf(os.Stdout, "No tasks found.\n")
				return
			}
			for _, id := range ids {
				fmt.Fprintf(os.Stdout, "- %s\n", id)
			}
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status [task-id]",
		Short: "Show the record of a task",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			loadDotenv()
			store := initStore(config.LoadApp())
			defer store.Close()
			record, err := store.GetTask(context.Background(), args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to get task %s: %v\n", args[0], err)
				os.Exit(1)
			}
			out, _ := json.MarshalIndent(record, "", "  ")
			fmt.Fprintf(os.Stdout, "%s\n", out)
		},
	}

	rootCmd.AddCommand(serveCmd, runCmd, listCmd, statusCmd)
}

func loadDotenv() {
	if err := godotenv.Load(); err != nil {
		log.GetLogger().Debugf("No .env file found or failed to load: %v", err)
	}
}

func initStore(cfg config.App) storage.Store {
	store, err := internal_storage.InitStore(cfg)
	if err != nil {
		log.GetLogger().Errorf("Failed to initialize store: %v", err)
		os.Exit(1)
	}
	return store
}
