package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/Chative-Realty-Call-Agent/agent/agents/orchestrator"
	"github.com/tanpawarit/Chative-Realty-Call-Agent/agent/agents/specialist"
	"github.com/tanpawarit/Chative-Realty-Call-Agent/agent/calllog"
	llmx "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/llm"
	statex "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/state"
	"github.com/tanpawarit/Chative-Realty-Call-Agent/api"
	"github.com/tanpawarit/Chative-Realty-Call-Agent/api/transcript"
	configx "github.com/tanpawarit/Chative-Realty-Call-Agent/pkg/config"
	metricsx "github.com/tanpawarit/Chative-Realty-Call-Agent/pkg/metrics"
	qstashx "github.com/tanpawarit/Chative-Realty-Call-Agent/pkg/qstash"
)

type AppConfig struct {
	Addr          string        `envconfig:"ADDR" split_words:"true" default:":8080"`
	TurnTimeout   time.Duration `envconfig:"TURN_TIMEOUT" split_words:"true" default:"8s"`
	StateTTL      time.Duration `envconfig:"STATE_TTL" split_words:"true" default:"30m"`
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" split_words:"true" default:"1m"`
	LLMBackend    string        `envconfig:"LLM_BACKEND" split_words:"true" default:"eino"`
	EnableUpstash bool          `envconfig:"ENABLE_UPSTASH" split_words:"true" default:"false"`
	EnableQStash  bool          `envconfig:"ENABLE_QSTASH" split_words:"true" default:"false"`
	DatabaseDSN   string        `envconfig:"DATABASE_DSN" split_words:"true"`
}

// app holds everything both commands share.
type app struct {
	cfg     *AppConfig
	metrics *metricsx.Metrics
	store   *statex.MemoryStore
	calls   *orchestrator.Orchestrator
	callLog *calllog.Repository
}

func newApp(ctx context.Context) (*app, error) {
	appCfg, err := configx.New[AppConfig]("APP")
	if err != nil {
		return nil, err
	}
	llmCfg, err := configx.New[llmx.Config]("LLM")
	if err != nil {
		return nil, err
	}

	m := metricsx.New()

	storeOpts := []statex.MemoryOption{
		statex.WithStateTTL(appCfg.StateTTL),
		statex.WithSweepInterval(appCfg.SweepInterval),
		statex.WithSizeHook(m.SetActiveCalls),
	}
	if appCfg.EnableUpstash {
		redisCfg, err := configx.New[statex.UpstashRedisConfig]("UPSTASH_REDIS")
		if err != nil {
			return nil, err
		}
		snapshots, err := statex.NewUpstashSnapshots(*redisCfg)
		if err != nil {
			return nil, fmt.Errorf("create snapshot store: %w", err)
		}
		storeOpts = append(storeOpts, statex.WithSnapshots(snapshots))
		log.Info().Str("key_prefix", redisCfg.KeyPrefix).Msg("call snapshots enabled")
	}
	store := statex.NewMemoryStore(storeOpts...)

	models, err := specialist.NewRegistry(ctx, *llmCfg, appCfg.LLMBackend, m.ObserveCompletion)
	if err != nil {
		return nil, fmt.Errorf("create model registry: %w", err)
	}

	a := &app{cfg: appCfg, metrics: m, store: store}

	orchOpts := []orchestrator.Option{orchestrator.WithMetrics(m)}
	if dsn := strings.TrimSpace(appCfg.DatabaseDSN); dsn != "" {
		repo, err := calllog.Open(ctx, calllog.Config{
			DSN:         dsn,
			DialTimeout: 5 * time.Second,
			AutoMigrate: true,
		})
		if err != nil {
			return nil, fmt.Errorf("open call log: %w", err)
		}
		a.callLog = repo
		orchOpts = append(orchOpts, orchestrator.WithRecorder(repo))
		log.Info().Msg("call log enabled")
	}

	calls, err := orchestrator.New(store, models, orchOpts...)
	if err != nil {
		a.close()
		return nil, err
	}
	a.calls = calls

	log.Info().
		Str("backend", appCfg.LLMBackend).
		Str("model", llmCfg.Model).
		Dur("state_ttl", appCfg.StateTTL).
		Msg("call agent initialized")

	return a, nil
}

func (a *app) close() {
	if a.callLog != nil {
		if err := a.callLog.Close(); err != nil {
			log.Warn().Err(err).Msg("close call log")
		}
	}
}

func runServe(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	go a.store.Run(ctx)

	hub := transcript.NewHub(32)
	var forwarder *transcript.Forwarder
	if a.cfg.EnableQStash {
		qCfg, err := configx.New[qstashx.Config]("QSTASH")
		if err != nil {
			return err
		}
		client, err := qstashx.NewClient(*qCfg)
		if err != nil {
			return fmt.Errorf("create qstash client: %w", err)
		}
		forwarder = transcript.NewForwarder(client, qCfg.Timeout)
		defer forwarder.Wait()
		log.Info().Msg("transcript forwarding enabled")
	}

	var publisher transcript.Publisher
	if forwarder != nil {
		publisher = forwarder
	}

	srv, err := api.NewServer(a.calls,
		api.WithTranscripts(hub, publisher),
		api.WithMetrics(a.metrics),
		api.WithTurnTimeout(a.cfg.TurnTimeout),
	)
	if err != nil {
		return err
	}

	return srv.Run(ctx, a.cfg.Addr)
}

func runChat(ctx context.Context, callID string, in io.Reader, out io.Writer) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	callID = strings.TrimSpace(callID)
	if callID == "" {
		callID = uuid.NewString()
	}
	fmt.Fprintf(out, "call %s (empty line re-prompts, /end or EOF to hang up)\n", callID)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "/end" {
			break
		}

		reply, err := a.calls.HandleTurn(ctx, callID, line)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "agent [%s]: %s\n", reply.Outcome, reply.Content)

		if ctx.Err() != nil {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	return a.calls.EndCall(context.WithoutCancel(ctx), callID, "chat_ended")
}
