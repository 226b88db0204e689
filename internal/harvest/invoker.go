package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/tab-harvester/internal/metrics"
)

// DefaultModelTimeout bounds a model call when no timeout is configured.
const DefaultModelTimeout = 60 * time.Second

// Invoker calls the model once per request under a hard timeout.
type Invoker struct {
	generator Generator
	timeout   time.Duration
}

// NewInvoker wraps generator with a per-call timeout.
func NewInvoker(generator Generator, timeout time.Duration) *Invoker {
	if timeout <= 0 {
		timeout = DefaultModelTimeout
	}
	return &Invoker{generator: generator, timeout: timeout}
}

type generation struct {
	text string
	err  error
}

// Invoke returns the raw model text. Every failure, including a timeout or a
// generator that ignores cancellation, is reported as ErrUpstreamModel.
func (i *Invoker) Invoke(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan generation, 1)
	go func() {
		text, err := i.generator.Generate(callCtx, prompt, SystemInstruction)
		done <- generation{text: text, err: err}
	}()

	var res generation
	select {
	case res = <-done:
	case <-callCtx.Done():
		res = generation{err: callCtx.Err()}
	}
	metrics.ObserveModelRequest(time.Since(start), res.err)

	if res.err != nil {
		detail := "model request failed: " + res.err.Error()
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			detail = fmt.Sprintf("model request timed out after %s", i.timeout)
		}
		return "", newStageError(StageInvoking, ErrUpstreamModel, detail, res.err)
	}
	return res.text, nil
}
