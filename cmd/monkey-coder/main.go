package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/GaryOcean428/monkey-coder-sub002/pkg/config"
	"github.com/GaryOcean428/monkey-coder-sub002/pkg/encoder"
	"github.com/GaryOcean428/monkey-coder-sub002/pkg/journal"
	"github.com/GaryOcean428/monkey-coder-sub002/pkg/orchestrator"
	"github.com/GaryOcean428/monkey-coder-sub002/pkg/persona"
	"github.com/GaryOcean428/monkey-coder-sub002/pkg/policy"
	"github.com/GaryOcean428/monkey-coder-sub002/pkg/provider"
	"github.com/GaryOcean428/monkey-coder-sub002/pkg/task"
	"github.com/GaryOcean428/monkey-coder-sub002/pkg/tracker"
)

var (
	configDirFlag string
	verboseFlag   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "monkey-coder",
		Short: "Learned routing of coding tasks to AI providers",
		Long: `monkey-coder routes coding tasks to the best available AI
	provider/model combination, coordinates multiple agent roles per task,
	and learns from every outcome.`,
	}

	rootCmd.PersistentFlags().StringVar(&configDirFlag, "config-dir", "", "path to the config directory")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(routeCmd())
	rootCmd.AddCommand(personasCmd())
	rootCmd.AddCommand(providersCmd())
	rootCmd.AddCommand(statsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verboseFlag {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func loadConfig() (*config.Config, error) {
	if configDirFlag != "" {
		return config.LoadFromDir(configDirFlag)
	}
	return config.Load()
}

func routeCmd() *cobra.Command {
	var categoryFlag string
	var personaFlag string
	var providerFlag string
	var mockFlag bool
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "route [prompt]",
		Short: "Route and execute a coding task",
		Long: `Routes the prompt through the learned policy, executes the
	resulting plan against the chosen providers, and prints the merged
	output. Use --mock to run against a deterministic local provider.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			slog.SetDefault(logger)

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			category, err := task.ParseCategory(categoryFlag)
			if err != nil {
				return err
			}

			engine, cleanup, err := buildEngine(cfg, logger, mockFlag)
			if err != nil {
				return err
			}
			defer cleanup()

			req := task.Request{
				Category:         category,
				Prompt:           args[0],
				Persona:          personaFlag,
				ProviderOverride: providerFlag,
			}

			result, err := engine.RouteAndExecute(cmd.Context(), req)
			if err != nil {
				return err
			}

			if jsonFlag {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			fmt.Println(result.Output)
			fmt.Fprintf(os.Stderr, "\nstatus=%s cost=$%.4f latency=%dms nodes=%d\n",
				result.Status, result.TotalCost, result.TotalLatencyMS, len(result.Nodes))
			return nil
		},
	}

	cmd.Flags().StringVarP(&categoryFlag, "category", "c", "generate", "task category (generate|analyze|refactor|test|review|security)")
	cmd.Flags().StringVarP(&personaFlag, "persona", "p", "", "persona profile (default balanced)")
	cmd.Flags().StringVar(&providerFlag, "provider", "", "pin a specific provider")
	cmd.Flags().BoolVar(&mockFlag, "mock", false, "use the mock provider")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "print the full result as JSON")
	return cmd
}

func personasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "personas",
		Short: "List persona profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			registry := persona.NewRegistry()
			if err := registry.LoadFile(cfg.PersonasPath()); err != nil && !os.IsNotExist(err) {
				return err
			}

			names := registry.Names()
			sort.Strings(names)

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PERSONA\tPROVIDERS\tW_SUCCESS\tW_LATENCY\tW_COST\tW_QUALITY\tMAX_COST")
			for _, name := range names {
				p := registry.Resolve(name)
				providers := "all"
				if len(p.AllowedProviders) > 0 {
					providers = fmt.Sprintf("%v", p.AllowedProviders)
				}
				fmt.Fprintf(w, "%s\t%s\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\n",
					name, providers,
					p.Weights.Success, p.Weights.Latency, p.Weights.Cost, p.Weights.Quality,
					p.MaxCostPerTask)
			}
			return w.Flush()
		},
	}
}

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List configured providers and models",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			invokers, err := createInvokers(cfg, false)
			if err != nil {
				return err
			}

			names := make([]string, 0, len(invokers))
			for name := range invokers {
				names = append(names, name)
			}
			sort.Strings(names)

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tMODEL\tPROMPT_$/1K\tCOMPLETION_$/1K")
			for _, name := range names {
				for _, model := range invokers[name].Models() {
					pricing, _ := cfg.Routing.PriceFor(name, model)
					fmt.Fprintf(w, "%s\t%s\t%.5f\t%.5f\n",
						name, model, pricing.PromptPer1K, pricing.CompletionPer1K)
				}
			}
			return w.Flush()
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show learned performance and value tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			perf := tracker.New(tracker.WithDecay(cfg.Routing.TrackerDecay))
			if err := perf.Load(cfg.StatePath("performance.json")); err != nil {
				return err
			}
			pol := policy.New(cfg.Routing.Learning)
			if err := pol.Load(cfg.StatePath("qtable.json"), encoder.NormVersion); err != nil {
				return err
			}

			records := perf.All()
			sort.Slice(records, func(i, j int) bool {
				return records[i].Key.String() < records[j].Key.String()
			})

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER/MODEL/CATEGORY\tSUCCESS\tP50_MS\tP95_MS\tQUALITY\tOBS")
			for _, rec := range records {
				fmt.Fprintf(w, "%s\t%.2f\t%.0f\t%.0f\t%.2f\t%d\n",
					rec.Key.String(), rec.SuccessRate, rec.P50LatencyMS, rec.P95LatencyMS,
					rec.Quality, rec.Observations)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			entries := pol.Snapshot()
			keys := make([]string, 0, len(entries))
			for k := range entries {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			fmt.Println()
			w = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "BUCKET|ACTION\tQ\tVISITS\tCONFIDENCE")
			for _, k := range keys {
				e := entries[k]
				fmt.Fprintf(w, "%s\t%.3f\t%d\t%.2f\n", k, e.Q, e.Visits, e.Confidence())
			}
			return w.Flush()
		},
	}
}

// buildEngine wires the full stack: invokers, registry, personas,
// tracker, policy, journal, orchestrator. State is loaded on startup and
// persisted on cleanup so the policy never cold-starts on deploy.
func buildEngine(cfg *config.Config, logger *slog.Logger, mock bool) (*orchestrator.Orchestrator, func(), error) {
	invokers, err := createInvokers(cfg, mock)
	if err != nil {
		return nil, nil, err
	}
	if len(invokers) == 0 {
		return nil, nil, fmt.Errorf("no providers configured; set an API key or use --mock")
	}

	registry := provider.NewStaticRegistry()
	for name, inv := range invokers {
		for _, model := range inv.Models() {
			pricing, _ := cfg.Routing.PriceFor(name, model)
			registry.Register(provider.Capability{
				Provider:         name,
				Model:            model,
				MaxContextTokens: cfg.Routing.MaxContextTokens[name],
				CostPer1KTokens:  pricing.Per1K(),
			})
		}
	}

	personas := persona.NewRegistry()
	if err := personas.LoadFile(cfg.PersonasPath()); err != nil && !os.IsNotExist(err) {
		return nil, nil, err
	}

	watchCtx, stopWatch := context.WithCancel(context.Background())
	_ = config.WatchFile(watchCtx, cfg.PersonasPath(), logger, func() {
		if err := personas.LoadFile(cfg.PersonasPath()); err != nil {
			logger.Warn("persona reload failed", "error", err)
		} else {
			logger.Info("persona profiles reloaded")
		}
	})

	perf := tracker.New(tracker.WithDecay(cfg.Routing.TrackerDecay), tracker.WithLogger(logger))
	if err := perf.Load(cfg.StatePath("performance.json")); err != nil {
		stopWatch()
		return nil, nil, err
	}

	pol := policy.New(cfg.Routing.Learning, policy.WithLogger(logger))
	if err := pol.Load(cfg.StatePath("qtable.json"), encoder.NormVersion); err != nil {
		stopWatch()
		return nil, nil, err
	}

	journalWriter, err := journal.NewWriter(cfg.StatePath("decisions.jsonl"))
	if err != nil {
		stopWatch()
		return nil, nil, err
	}

	engine := orchestrator.New(registry, invokers, personas, perf, pol,
		orchestrator.WithJournal(journalWriter),
		orchestrator.WithLogger(logger))

	cleanup := func() {
		stopWatch()
		if err := perf.Save(cfg.StatePath("performance.json")); err != nil {
			logger.Warn("failed to save performance table", "error", err)
		}
		if err := pol.Save(cfg.StatePath("qtable.json"), encoder.NormVersion); err != nil {
			logger.Warn("failed to save value table", "error", err)
		}
		_ = journalWriter.Close()
	}
	return engine, cleanup, nil
}

func createInvokers(cfg *config.Config, mock bool) (map[string]provider.Invoker, error) {
	invokers := make(map[string]provider.Invoker)

	if mock {
		m := provider.NewMockInvoker("mock")
		invokers[m.Name()] = m
		return invokers, nil
	}

	if cfg.HasProvider("anthropic") {
		inv, err := provider.NewAnthropicInvoker(cfg.AnthropicAPIKey)
		if err != nil {
			return nil, err
		}
		invokers[inv.Name()] = inv
	}
	if cfg.HasProvider("openai") {
		inv, err := provider.NewOpenAIInvoker(cfg.OpenAIAPIKey)
		if err != nil {
			return nil, err
		}
		invokers[inv.Name()] = inv
	}
	if cfg.HasProvider("google") {
		inv, err := provider.NewGoogleInvoker(cfg.GoogleAPIKey)
		if err != nil {
			return nil, err
		}
		invokers[inv.Name()] = inv
	}
	if cfg.HasProvider("deepseek") {
		inv, err := provider.NewDeepSeekInvoker(cfg.DeepSeekAPIKey)
		if err != nil {
			return nil, err
		}
		invokers[inv.Name()] = inv
	}

	return invokers, nil
}
