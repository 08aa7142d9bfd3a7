package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/fsalinas26/Guido/internal/agent/intent"
	"github.com/fsalinas26/Guido/internal/agent/navigator"
	"github.com/fsalinas26/Guido/internal/agent/retriever"
	"github.com/fsalinas26/Guido/internal/agent/tools"
	"github.com/fsalinas26/Guido/internal/api"
	"github.com/fsalinas26/Guido/internal/config"
	"github.com/fsalinas26/Guido/internal/incident"
	"github.com/fsalinas26/Guido/internal/lifecycle"
	"github.com/fsalinas26/Guido/internal/logging"
	"github.com/fsalinas26/Guido/internal/metrics"
	"github.com/fsalinas26/Guido/internal/pipeline"
	"github.com/fsalinas26/Guido/internal/provider"
	"github.com/fsalinas26/Guido/internal/search"
	"github.com/fsalinas26/Guido/internal/session"
)

var (
	apiPort             int
	assistantConfigPath string
	demoMode            bool
	demoScenarioPath    string
	weaviateHost        string
	weaviateScheme      string
	weaviateClass       string
	sessionTTL          time.Duration
	reaperInterval      time.Duration
	maxConcurrentTurns  int
	intentTimeout       time.Duration
	navigatorTimeout    time.Duration
	searchTimeout       time.Duration
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the Guido server",
	Long: `Start the Guido server which accepts worker utterances over HTTP,
runs them through the agent pipeline, and serves session and incident
introspection endpoints.`,
	Run: runServer,
}

func init() {
	serverCmd.Flags().IntVar(&apiPort, "api-port", 8080, "Port the API server listens on")
	serverCmd.Flags().StringVar(&assistantConfigPath, "assistant-config", "", "Path to the YAML assistant settings file (empty: built-in defaults)")
	serverCmd.Flags().BoolVar(&demoMode, "demo", false, "Run with the in-memory document index and a scripted completion provider")
	serverCmd.Flags().StringVar(&demoScenarioPath, "demo-scenario", "", "Path to a YAML scenario file for demo mode (empty: built-in scenario)")
	serverCmd.Flags().StringVar(&weaviateHost, "weaviate-host", "localhost:8081", "host:port of the similarity search backend")
	serverCmd.Flags().StringVar(&weaviateScheme, "weaviate-scheme", "http", "URL scheme of the similarity search backend")
	serverCmd.Flags().StringVar(&weaviateClass, "weaviate-class", "ProcedureChunk", "Collection holding procedure document chunks")
	serverCmd.Flags().DurationVar(&sessionTTL, "session-ttl", 30*time.Minute, "Idle time after which a session is reaped")
	serverCmd.Flags().DurationVar(&reaperInterval, "reaper-interval", time.Minute, "How often the session reaper scans for idle sessions")
	serverCmd.Flags().IntVar(&maxConcurrentTurns, "max-concurrent-turns", 32, "Maximum number of turns processed in parallel")
	serverCmd.Flags().DurationVar(&intentTimeout, "intent-timeout", 10*time.Second, "Deadline for one intent classification call")
	serverCmd.Flags().DurationVar(&navigatorTimeout, "navigator-timeout", 30*time.Second, "Deadline for one decision navigation call")
	serverCmd.Flags().DurationVar(&searchTimeout, "search-timeout", 10*time.Second, "Deadline for one similarity search call")
}

func runServer(cmd *cobra.Command, args []string) {
	defaultLevel, _, err := parseLogLevelFlags(logLevelFlags)
	if err != nil {
		HandleError(err, "Invalid log level")
	}

	cfg := &config.Config{
		APIPort:             apiPort,
		LogLevel:            defaultLevel,
		AssistantConfigPath: assistantConfigPath,
		DemoMode:            demoMode,
		WeaviateHost:        weaviateHost,
		WeaviateScheme:      weaviateScheme,
		WeaviateClass:       weaviateClass,
		SessionTTL:          sessionTTL,
		ReaperInterval:      reaperInterval,
		MaxConcurrentTurns:  maxConcurrentTurns,
		IntentTimeout:       intentTimeout,
		NavigatorTimeout:    navigatorTimeout,
		SearchTimeout:       searchTimeout,
	}
	if err := cfg.Validate(); err != nil {
		HandleError(err, "Configuration error")
	}

	if err := setupLog(logLevelFlags); err != nil {
		HandleError(err, "Failed to setup logging")
	}
	logger := logging.GetLogger("server")

	logger.Info("Starting Guido v%s", Version)
	logger.Debug("Configuration loaded: APIPort=%d demo=%v", cfg.APIPort, cfg.DemoMode)

	settings, err := config.LoadAssistantSettings(cfg.AssistantConfigPath)
	if err != nil {
		HandleError(err, "Assistant settings error")
	}

	store := session.NewStore()
	registry := prometheus.NewRegistry()
	m := metrics.New(registry, store.Count)

	var completions provider.Provider
	var searchClient search.Client
	if cfg.DemoMode {
		logger.Info("Demo mode: using in-memory document index and scripted provider")
		completions, err = demoProvider(demoScenarioPath)
		if err != nil {
			HandleError(err, "Demo scenario error")
		}
		searchClient = search.NewDemoIndex()
	} else {
		completions = provider.NewAnthropicProvider()
		searchClient, err = search.NewWeaviateClient(cfg.WeaviateScheme, cfg.WeaviateHost, cfg.WeaviateClass)
		if err != nil {
			HandleError(err, "Search backend error")
		}
	}

	recorder := incident.New(m)
	orch := pipeline.New(
		store,
		intent.NewClassifier(completions, settings.Intent, cfg.IntentTimeout, m),
		retriever.New(searchClient, settings.Retrieval, cfg.SearchTimeout, m),
		navigator.New(completions, settings.Navigator, cfg.NavigatorTimeout, m),
		tools.NewExecutor(time.Now().UnixNano(), m),
		recorder,
		settings.Worker,
		m,
	)

	manager := lifecycle.NewManager()

	reaper := session.NewReaper(store, cfg.SessionTTL, cfg.ReaperInterval)
	if err := manager.Register(reaper); err != nil {
		HandleError(err, "Reaper registration error")
	}

	server := api.New(cfg, settings, orch, store, recorder, registry)
	if err := manager.Register(server, reaper); err != nil {
		HandleError(err, "API server registration error")
	}

	ctx := context.Background()
	if err := manager.Start(ctx); err != nil {
		HandleError(err, "Startup error")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutdown signal received, gracefully shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	manager.Stop(shutdownCtx)
	logger.Info("Shutdown complete")
}

// demoProvider builds the scripted completion provider for demo mode.
func demoProvider(scenarioPath string) (provider.Provider, error) {
	if scenarioPath != "" {
		scenario, err := provider.LoadScenario(scenarioPath)
		if err != nil {
			return nil, err
		}
		return provider.NewScriptedProviderFromScenario(scenario), nil
	}
	return provider.NewScriptedProvider(builtinDemoSteps()...), nil
}

// builtinDemoSteps scripts a short quality-issue walkthrough. Classifier
// requests match on its system prompt; navigator requests fall through to
// the positional steps.
func builtinDemoSteps() []provider.ScenarioStep {
	intentReply := `{"intent":"quality_issue","confidence":0.95,"extracted_entities":{"part_type":"brake rotor","issue_type":"surface defects"}}`
	steps := []provider.ScenarioStep{}
	for i := 0; i < 4; i++ {
		steps = append(steps, provider.ScenarioStep{Trigger: "intent classification", Text: intentReply})
	}
	steps = append(steps,
		provider.ScenarioStep{
			Text: "Okay, let's work through this together. Step 1: stop the line and set the affected rotors aside. Let me measure that defect while you do.",
			ToolCalls: []provider.ScenarioCall{
				{Name: "measureDefectDepth", Args: map[string]interface{}{"location": "center", "defect_type": "scratch"}},
			},
		},
		provider.ScenarioStep{
			Text: "Let me also check the overall surface and the defect pattern.",
			ToolCalls: []provider.ScenarioCall{
				{Name: "checkSurfaceRoughness", Args: map[string]interface{}{"measurement_points": 4}},
				{Name: "analyzeDefectPattern", Args: map[string]interface{}{"defect_description": "circular scratches near the center"}},
			},
		},
		provider.ScenarioStep{
			Text: "Based on those measurements the defect exceeds tolerance. Quarantine this batch and tag it for engineering review. Step 4: fill out the quarantine tag.",
		},
		provider.ScenarioStep{
			Text: "You're all set. I've logged the incident for the quality team.",
		},
	)
	return steps
}
