package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/e-CODEX/connector-sub004/internal/logger"
	"github.com/e-CODEX/connector-sub004/internal/message"
	"github.com/e-CODEX/connector-sub004/pkg/metrics"
	"github.com/e-CODEX/connector-sub004/pkg/tracing"
)

// Step is one stage of message processing. Execute mutates the message in
// place and reports whether processing continues: (false, nil) aborts the
// pipeline without failing it, any error aborts and fails.
type Step interface {
	Name() string
	Execute(ctx context.Context, msg *message.Message) (bool, error)
}

// Orchestrator runs an ordered step sequence over a message. A message never
// skips steps and never re-enters a finished pipeline.
type Orchestrator struct {
	name   string
	steps  []Step
	logger logger.Logger
}

func NewOrchestrator(name string, steps []Step, log logger.Logger) *Orchestrator {
	return &Orchestrator{
		name:   name,
		steps:  steps,
		logger: log,
	}
}

// Process runs the message through every step in order. The returned error is
// the failing step's error, already recorded on the message's error list.
func (o *Orchestrator) Process(ctx context.Context, msg *message.Message) error {
	ctx, span := tracing.GetTracer("pipeline").Start(ctx, "pipeline."+o.name)
	defer span.End()

	for _, step := range o.steps {
		proceed, err := o.runStep(ctx, step, msg)
		if err != nil {
			msg.AddError(step.Name(), "pipeline step failed", err.Error())
			o.logger.ErrorwCtx(ctx, "Pipeline aborted",
				"pipeline", o.name,
				"step", step.Name(),
				"connector_message_id", msg.ConnectorMessageID,
				"error", err,
			)
			return fmt.Errorf("pipeline %s aborted at step %s: %w", o.name, step.Name(), err)
		}
		if !proceed {
			o.logger.InfowCtx(ctx, "Pipeline stopped",
				"pipeline", o.name,
				"step", step.Name(),
				"connector_message_id", msg.ConnectorMessageID,
			)
			return nil
		}
	}

	o.logger.DebugwCtx(ctx, "Pipeline completed",
		"pipeline", o.name,
		"connector_message_id", msg.ConnectorMessageID,
	)
	return nil
}

func (o *Orchestrator) runStep(ctx context.Context, step Step, msg *message.Message) (bool, error) {
	ctx, span := tracing.GetTracer("pipeline").Start(ctx, "step."+step.Name())
	defer span.End()

	start := time.Now()
	proceed, err := step.Execute(ctx, msg)

	status := "success"
	switch {
	case err != nil:
		status = "error"
	case !proceed:
		status = "stopped"
	}
	metrics.ObserveStepDuration(step.Name(), status, time.Since(start))

	return proceed, err
}
