package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dyluth/roost/internal/config"
	"github.com/dyluth/roost/pkg/adapter"
	"github.com/dyluth/roost/pkg/bus"
	"github.com/dyluth/roost/pkg/store"
	"github.com/dyluth/roost/pkg/supervisor"
	"github.com/dyluth/roost/pkg/team"
	"github.com/dyluth/roost/pkg/trace"
	"github.com/dyluth/roost/pkg/workflow"
)

// env wires the full runtime for one command invocation.
type env struct {
	cfg       *config.WorkbenchConfig
	client    *store.Client
	bus       *bus.Bus
	sup       *supervisor.Supervisor
	teams     *team.Manager
	workflows *workflow.Service
}

// openEnv loads the workbench configuration, connects to Redis and builds
// the component graph. The returned cleanup closes the connection.
func openEnv(ctx context.Context) (*env, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	client, err := store.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, cfg.Workbench)
	if err != nil {
		return nil, nil, err
	}
	client.SetLogRetention(int64(cfg.Retention.Logs))
	client.SetEventRetention(int64(cfg.Retention.Events))

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("cannot reach Redis at %s: %w", cfg.Redis.Addr, err)
	}

	registry := adapter.NewRegistry(buildAdapters(cfg)...)
	tracer := trace.NewTracer(client)
	eventBus := bus.New(client)
	sup := supervisor.New(client, eventBus, registry, tracer)

	teams := team.NewManager(client, eventBus, sup)
	teams.SetPollInterval(time.Duration(cfg.Team.PollIntervalMs) * time.Millisecond)

	workflows := workflow.NewService(client, eventBus, sup, tracer, agentTemplates(cfg))

	e := &env{
		cfg:       cfg,
		client:    client,
		bus:       eventBus,
		sup:       sup,
		teams:     teams,
		workflows: workflows,
	}
	return e, func() { client.Close() }, nil
}

// buildAdapters constructs the runtime adapters, applying any command
// overrides from the configuration.
func buildAdapters(cfg *config.WorkbenchConfig) []adapter.Adapter {
	var claudeCfg, codexCfg config.RuntimeConfig
	if cfg.Runtimes != nil {
		if cfg.Runtimes.Claude != nil {
			claudeCfg = *cfg.Runtimes.Claude
		}
		if cfg.Runtimes.Codex != nil {
			codexCfg = *cfg.Runtimes.Codex
		}
	}
	return []adapter.Adapter{
		adapter.NewClaudeAdapter(claudeCfg.Command, claudeCfg.AutoMode),
		adapter.NewCodexAdapter(codexCfg.Command, codexCfg.AutoMode),
	}
}

// agentTemplates converts configured agent templates into workflow launch
// parameters.
func agentTemplates(cfg *config.WorkbenchConfig) map[string]workflow.AgentTemplate {
	templates := make(map[string]workflow.AgentTemplate, len(cfg.Agents))
	for name, agent := range cfg.Agents {
		templates[name] = workflow.AgentTemplate{
			Runtime:     store.RuntimeKind(agent.Runtime),
			WorkDir:     agent.WorkDir,
			DisplayName: agent.DisplayName,
		}
	}
	return templates
}

// agentTemplate looks up one configured agent template by name.
func agentTemplate(cfg *config.WorkbenchConfig, name string) (config.Agent, error) {
	agent, ok := cfg.Agents[name]
	if !ok {
		return config.Agent{}, fmt.Errorf("no agent named '%s' in %s", name, configPath)
	}
	return agent, nil
}
