// Package main provides the CLI entry point for the nexuscore agent
// runtime: one-shot prompts from the terminal and a small HTTP server
// exposing the orchestrator over the request/response shapes in
// SPEC_FULL.md §6, plus a Prometheus /metrics endpoint.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/nexuscore/agentcore/internal/channels"
	"github.com/nexuscore/agentcore/internal/execloop"
	"github.com/nexuscore/agentcore/internal/failover"
	"github.com/nexuscore/agentcore/internal/guardian"
	"github.com/nexuscore/agentcore/internal/heartbeat"
	"github.com/nexuscore/agentcore/internal/memory"
	"github.com/nexuscore/agentcore/internal/observability"
	"github.com/nexuscore/agentcore/internal/orchestrator"
	"github.com/nexuscore/agentcore/internal/planner"
	"github.com/nexuscore/agentcore/internal/providers"
	"github.com/nexuscore/agentcore/internal/runqueue"
	"github.com/nexuscore/agentcore/internal/runregistry"
	"github.com/nexuscore/agentcore/internal/sessionstore"
	"github.com/nexuscore/agentcore/internal/tasks"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "nexus",
		Short:        "nexuscore agent runtime",
		Long:         "Runs the orchestrator: evaluate, route, execute with failover and tool dispatch, over a failover chain of LLM providers.",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildRunCmd(), buildServeCmd())
	return rootCmd
}

func buildRunCmd() *cobra.Command {
	var sessionID, channel string
	cmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "Run a single prompt through the orchestrator and print the response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildOrchestratorConfig()
			if err != nil {
				return err
			}
			o := orchestrator.New(cfg)
			resp := o.Run(cmd.Context(), orchestrator.Request{
				SessionID:     sessionID,
				Prompt:        args[0],
				SourceChannel: channel,
			})
			if resp.PendingPlan != nil {
				fmt.Printf("approval required for plan %q (%d steps)\n", resp.PendingPlan.Name, len(resp.PendingPlan.Steps))
				return nil
			}
			fmt.Println(resp.Response)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "cli-session", "session id")
	cmd.Flags().StringVar(&channel, "channel", "ui", "source channel")
	return cmd
}

func buildServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the orchestrator over HTTP (/v1/run) and Prometheus metrics (/metrics)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildOrchestratorConfig()
			if err != nil {
				return err
			}
			metrics := observability.NewMetrics()
			o := orchestrator.New(cfg)

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			mux.HandleFunc("/v1/run", runHandler(o, metrics))

			srv := &http.Server{Addr: addr, Handler: mux}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			slog.Info("serving", "addr", addr)

			select {
			case err := <-errCh:
				if err != nil && err != http.ErrServerClosed {
					return err
				}
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

// runRequest mirrors SPEC_FULL.md §6's consumer-facing request shape.
type runRequest struct {
	Prompt    string   `json:"prompt"`
	SessionID string   `json:"session_id"`
	Images    []string `json:"images,omitempty"`
	Channel   string   `json:"channel"`
}

// runResponse mirrors SPEC_FULL.md §6's response shape.
type runResponse struct {
	Response  string                `json:"response"`
	Metadata  orchestrator.Metadata `json:"metadata"`
	SessionID string                `json:"session_id"`
}

func runHandler(o *orchestrator.Orchestrator, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer func() {
			metrics.RecordHTTPRequest(r.Method, r.URL.Path, strconv.Itoa(http.StatusOK), time.Since(start).Seconds())
		}()

		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req runRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		ch := string(channels.ResolveChannel(req.Channel, req.SessionID))

		resp := o.Run(r.Context(), orchestrator.Request{
			SessionID:     req.SessionID,
			Prompt:        req.Prompt,
			Images:        req.Images,
			SourceChannel: ch,
		})

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(runResponse{
			Response:  channels.Format(resp.Response, channels.Channel(ch)),
			Metadata:  resp.Metadata,
			SessionID: req.SessionID,
		})
	}
}

// buildOrchestratorConfig wires every collaborator the orchestrator needs
// from this process's environment: one ChatModel adapter per configured
// provider API key, a ChatMetaModel over whichever comes first as the
// planner's meta-model, and in-memory queue/registry/session/task stores.
func buildOrchestratorConfig() (orchestrator.Config, error) {
	models, resolve, err := buildActiveModels()
	if err != nil {
		return orchestrator.Config{}, err
	}
	if len(models) == 0 {
		return orchestrator.Config{}, fmt.Errorf("no provider API key set (ANTHROPIC_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY, or AWS credentials for Bedrock)")
	}
	firstModel, err := resolve(models[0].Provider, models[0].ModelID)
	if err != nil {
		return orchestrator.Config{}, err
	}

	taskQueue := tasks.NewMemoryQueue()
	taskScheduler := heartbeat.NewTaskScheduler(taskQueue, heartbeat.DefaultTaskSchedulerConfig())
	taskScheduler.Start(context.Background())

	return orchestrator.Config{
		Queue:        runqueue.New(4),
		Registry:     runregistry.New(),
		Sessions:     sessionstore.NewMemoryStore(),
		Planner:      planner.NewPlanner(providers.NewChatMetaModel(firstModel), 10),
		Relationship: memory.NewRelationshipStore(),
		Index:        memory.NewLexicalIndex(),
		ShortTerm:    memory.NewShortTermStore(),
		Guardian:     guardian.NewGuardian(guardian.NewResolver(), guardian.DefaultApprovalPolicy()),
		Policy:       &guardian.Policy{Profile: guardian.ProfileFull},

		ActiveModels: models,
		Resolve:      resolve,
		Emit:         execloop.NoopEmitter,
		Heartbeat:    heartbeat.NewVisibilitySignal(heartbeat.DefaultConfig(), "", execloop.NoopEmitter),

		MaxAttempts:        envInt("AGENT_EXECUTION_MAX_ATTEMPTS", 3),
		LLMTimeoutSeconds:  envInt("AGENT_LLM_TIMEOUT_SECONDS", 30),
		ToolTimeoutSeconds: envInt("AGENT_TOOL_TIMEOUT_SECONDS", 30),
		ToolRetryAttempts:  envInt("AGENT_TOOL_RETRY_ATTEMPTS", 2),
		MaxContextTokens:   envInt("AGENT_MAX_CONTEXT_TOKENS", 100000),
		Identity:           "You are Nexus, an autonomous agent.",
	}, nil
}

// buildActiveModels constructs one execloop.ChatModel per provider whose
// API key is present in the environment, and a resolver that looks them up
// by (provider, modelID).
func buildActiveModels() ([]failover.Model, execloop.ModelResolver, error) {
	bound := map[string]execloop.ChatModel{}
	var active []failover.Model

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		model := envOr("ANTHROPIC_DEFAULT_MODEL", "claude-sonnet-4-20250514")
		p, err := providers.NewAnthropic(providers.AnthropicConfig{APIKey: key, DefaultModel: model, MaxRetries: 2, MaxTokens: 4096})
		if err != nil {
			return nil, nil, fmt.Errorf("anthropic: %w", err)
		}
		bound["anthropic/"+model] = p
		active = append(active, failover.Model{Provider: "anthropic", ModelID: model, Aliases: []string{"default"}})
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		model := envOr("OPENAI_DEFAULT_MODEL", "gpt-4o")
		p, err := providers.NewOpenAI(providers.OpenAIConfig{APIKey: key, DefaultModel: model, MaxRetries: 2, MaxTokens: 4096})
		if err != nil {
			return nil, nil, fmt.Errorf("openai: %w", err)
		}
		bound["openai/"+model] = p
		active = append(active, failover.Model{Provider: "openai", ModelID: model})
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		model := envOr("GEMINI_DEFAULT_MODEL", "gemini-2.0-flash")
		p, err := providers.NewGemini(context.Background(), providers.GeminiConfig{APIKey: key, DefaultModel: model, MaxRetries: 2})
		if err != nil {
			return nil, nil, fmt.Errorf("gemini: %w", err)
		}
		bound["gemini/"+model] = p
		active = append(active, failover.Model{Provider: "gemini", ModelID: model})
	}
	if region := os.Getenv("AWS_REGION"); region != "" && os.Getenv("AWS_ACCESS_KEY_ID") != "" {
		model := envOr("BEDROCK_DEFAULT_MODEL", "anthropic.claude-3-sonnet-20240229-v1:0")
		p, err := providers.NewBedrock(context.Background(), providers.BedrockConfig{
			Region:          region,
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			DefaultModel:    model,
			MaxRetries:      2,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("bedrock: %w", err)
		}
		bound["bedrock/"+model] = p
		active = append(active, failover.Model{Provider: "bedrock", ModelID: model})
	}

	resolve := execloop.ModelResolver(func(provider, modelID string) (execloop.ChatModel, error) {
		m, ok := bound[provider+"/"+modelID]
		if !ok {
			return nil, fmt.Errorf("no bound model for %s/%s", provider, modelID)
		}
		return m, nil
	})
	return active, resolve, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
