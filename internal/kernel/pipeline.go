package kernel

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// PipelineStatus is the outcome of one serialized pipeline unit.
type PipelineStatus string

const (
	// PipelineOK means the unit executed and succeeded.
	PipelineOK PipelineStatus = "ok"
	// PipelineError means the unit executed and failed.
	PipelineError PipelineStatus = "error"
	// PipelineAbort means the unit was skipped because an earlier unit in the
	// same queued batch failed.
	PipelineAbort PipelineStatus = "abort"
)

// PipelineResult combines a unit's status with the execution count assigned
// to it. ExecutionCount is nil for units that never executed.
type PipelineResult struct {
	Status         PipelineStatus
	ExecutionCount *int
}

// Pipeline serializes execution and completion traffic: units run strictly in
// arrival order with exactly one in flight, by chaining each unit onto the
// previous unit's completion instead of holding a lock across engine calls.
//
// Failure propagation follows stop_on_error semantics: a unit that was still
// queued behind a failing unit is aborted without executing, but a unit
// submitted after the queue has drained starts a fresh batch and runs even if
// the last result was a failure.
type Pipeline struct {
	logger *logrus.Logger
	mu     sync.Mutex
	tail   *pipelineUnit
	count  int
}

type pipelineUnit struct {
	done   chan struct{}
	result PipelineResult
}

func (u *pipelineUnit) settled() bool {
	select {
	case <-u.done:
		return true
	default:
		return false
	}
}

// NewPipeline creates an empty pipeline.
func NewPipeline(logger *logrus.Logger) *Pipeline {
	return &Pipeline{logger: logger}
}

// Submit appends a unit to the queue and returns a channel delivering its
// result. The body receives the previous unit's result; when that result is
// not ok the body must not do real work and must report the abort itself, so
// it can still emit the abort reply to the client.
func (p *Pipeline) Submit(ctx context.Context, body func(ctx context.Context, prev PipelineResult) PipelineResult) <-chan PipelineResult {
	unit := &pipelineUnit{done: make(chan struct{})}

	p.mu.Lock()
	prev := p.tail
	p.tail = unit
	p.mu.Unlock()

	// A previous unit that already settled at enqueue time belongs to an
	// earlier batch; its failure does not abort fresh work. Deciding here,
	// not in the goroutine, ties batch membership to submission order.
	carry := prev != nil && !prev.settled()

	out := make(chan PipelineResult, 1)
	go func() {
		prevResult := PipelineResult{Status: PipelineOK}
		if prev != nil {
			<-prev.done
			if carry {
				prevResult = prev.result
			}
		}

		result := p.run(ctx, body, prevResult)
		unit.result = result
		close(unit.done)
		out <- result
	}()
	return out
}

// run invokes the body with panic containment so a failing unit can never
// wedge the chain.
func (p *Pipeline) run(ctx context.Context, body func(context.Context, PipelineResult) PipelineResult, prev PipelineResult) (result PipelineResult) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithField("panic", r).Error("Pipeline unit panicked")
			result = PipelineResult{Status: PipelineError}
		}
	}()
	return body(ctx, prev)
}

// NextExecutionCount increments and returns the execution counter. It is
// called only by units that actually execute, so the counter stays monotonic
// and aborted units never consume a number.
func (p *Pipeline) NextExecutionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count++
	return p.count
}

// ExecutionCount returns the current counter value.
func (p *Pipeline) ExecutionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}
