package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/contract"
	nodex "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/nodes"
	statex "github.com/tanpawarit/Chative-Realty-Call-Agent/agent/state"
	logx "github.com/tanpawarit/Chative-Realty-Call-Agent/pkg/logger"
	metricsx "github.com/tanpawarit/Chative-Realty-Call-Agent/pkg/metrics"
)

const outcomeError = "error"

// Reply is what the transport speaks back for one turn.
type Reply struct {
	Content string        `json:"content"`
	Outcome nodex.Outcome `json:"outcome"`
	Intent  statex.Intent `json:"intent,omitempty"`
}

type Option func(*Orchestrator)

func WithMetrics(m *metricsx.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithRecorder sends committed turns and call endings to a call log.
func WithRecorder(r contractx.TurnRecorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// Orchestrator is the Turn Orchestrator. Each turn runs the compiled graph
// on a draft of the call state while the store holds that call's lock.
type Orchestrator struct {
	store    statex.Store
	models   contractx.Registry
	recorder contractx.TurnRecorder
	metrics  *metricsx.Metrics

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	now func() time.Time
}

func New(store statex.Store, models contractx.Registry, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if models == nil {
		return nil, errors.New("model registry is required")
	}

	o := &Orchestrator{
		store:  store,
		models: models,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	graphRunner, err := o.compileTurnGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// HandleTurn processes one utterance. Only a missing call id is returned as
// an error; every other failure becomes the fixed apology reply.
func (o *Orchestrator) HandleTurn(ctx context.Context, callID string, transcript string) (Reply, error) {
	start := time.Now()
	callID = strings.TrimSpace(callID)
	if callID == "" {
		return Reply{}, statex.ErrInvalidCall
	}
	logger := logx.ForCall(callID)

	var out nodex.GraphOutput
	committed, err := o.store.Update(ctx, callID, func(draft *statex.CallState) error {
		res, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{
			CallID:     callID,
			Transcript: transcript,
			Call:       draft,
		})
		if err != nil {
			return err
		}
		out = res
		return nil
	}, func(ctx context.Context, committed *statex.CallState) {
		// Recorded under the call lock so the log sees turns in commit order.
		if out.Outcome == nodex.OutcomeSpecialist {
			o.record(ctx, committed, out)
		}
	})
	if err != nil {
		logger.Error().Err(err).Dur("duration", time.Since(start)).Msg("turn failed")
		o.metrics.ObserveTurn(outcomeError, time.Since(start))
		return Reply{Content: nodex.ApologyReply, Outcome: nodex.OutcomeApology}, nil
	}

	o.observe(out, time.Since(start))

	logger.Info().
		Str("intent", out.Intent.String()).
		Str("outcome", string(out.Outcome)).
		Int("history", len(committed.History)).
		Dur("duration", time.Since(start)).
		Msg("turn handled")

	return Reply{Content: out.Reply, Outcome: out.Outcome, Intent: out.Intent}, nil
}

// EndCall evicts the call state and marks the call log ended.
func (o *Orchestrator) EndCall(ctx context.Context, callID string, outcome string) error {
	callID = strings.TrimSpace(callID)
	if callID == "" {
		return statex.ErrInvalidCall
	}
	if err := o.store.Delete(ctx, callID); err != nil {
		return fmt.Errorf("evict call: %w", err)
	}
	if o.recorder != nil {
		if err := o.recorder.MarkEnded(ctx, callID, strings.TrimSpace(outcome)); err != nil {
			log.Error().Err(err).Str("call_id", callID).Msg("mark call ended failed")
		}
	}
	log.Info().Str("call_id", callID).Str("outcome", outcome).Msg("call ended")
	return nil
}

// Snapshot returns the current state of a call.
func (o *Orchestrator) Snapshot(ctx context.Context, callID string) (*statex.CallState, error) {
	return o.store.Get(ctx, callID)
}

func (o *Orchestrator) observe(out nodex.GraphOutput, d time.Duration) {
	o.metrics.ObserveTurn(string(out.Outcome), d)
	switch {
	case out.Label != statex.IntentNone:
		o.metrics.ObserveClassification(out.Label.String())
	case out.Outcome == nodex.OutcomeClarify && out.Err != nil:
		o.metrics.ObserveClassification(outcomeError)
	}
	if n := len(out.Merge.Dropped); n > 0 {
		o.metrics.AddDroppedFields(out.Intent.String(), n)
	}
}

func (o *Orchestrator) record(ctx context.Context, committed *statex.CallState, out nodex.GraphOutput) {
	if o.recorder == nil || committed == nil || len(committed.History) == 0 {
		return
	}
	last := committed.History[len(committed.History)-1]
	err := o.recorder.RecordTurn(ctx, contractx.TurnRecord{
		CallID:    committed.CallID,
		Intent:    committed.ActiveIntent,
		Sequence:  len(committed.History),
		User:      last.User,
		Agent:     last.Agent,
		Extracted: out.Extracted,
		Fields:    committed.CollectedFields,
		Dropped:   out.Merge.Dropped,
	})
	if err != nil {
		log.Error().Err(err).Str("call_id", committed.CallID).Msg("record turn failed")
	}
}
