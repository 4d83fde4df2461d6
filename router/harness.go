package router

import (
	"context"
	"time"

	"github.com/kadledav/streamroute/engine"
	"github.com/kadledav/streamroute/message"
)

// evalTask is one rule evaluation dispatched to the worker pool
type evalTask struct {
	cr     *engine.CompiledRule
	msg    *message.Message
	result chan evalResult
}

type evalResult struct {
	matched bool
	err     error
}

// evaluateTask is the worker pool processor: it runs the matcher and
// delivers the outcome. The result channel is buffered so a caller that has
// already timed out never blocks the worker.
func evaluateTask(_ context.Context, task *evalTask) error {
	matched, err := task.cr.Evaluate(task.msg)
	task.result <- evalResult{matched: matched, err: err}
	return err
}

// harnessEvaluator wraps one rule evaluation in the timeout harness: the
// matcher runs on the dedicated worker pool, bounded by the configured
// per-rule timeout. A timeout or matcher error is a fault for the rule's
// stream and counts as non-matching; evaluation continues with the next
// rule, so one slow regex never disables a whole stream for the message.
func (r *Router) harnessEvaluator(counts map[string]int) engine.Evaluator {
	return func(cr *engine.CompiledRule, msg *message.Message) bool {
		streamID := cr.Stream().ID
		counts[streamID]++

		start := time.Now()
		matched, err := r.evaluateWithTimeout(cr, msg)
		if r.metrics != nil {
			r.metrics.RecordExecution(streamID, time.Since(start))
		}

		if err != nil {
			if r.metrics != nil {
				r.metrics.RecordException(streamID)
			}
			r.faults.RegisterFailure(streamID)
			if r.logLimiter.Allow() {
				r.logger.Warn("Rule evaluation fault",
					"stream_id", streamID,
					"rule_id", cr.Rule().ID,
					"error", err)
			}
			return false
		}
		return matched
	}
}

// evaluateWithTimeout runs one matcher on the pool and waits at most the
// configured timeout for its verdict
func (r *Router) evaluateWithTimeout(cr *engine.CompiledRule, msg *message.Message) (bool, error) {
	task := &evalTask{
		cr:     cr,
		msg:    msg,
		result: make(chan evalResult, 1),
	}

	if err := r.pool.Submit(task); err != nil {
		// Queue saturated or pool stopped; evaluate inline rather than
		// dropping the rule, which would silently relax the conjunction.
		if r.logLimiter.Allow() {
			r.logger.Warn("Evaluation pool unavailable, evaluating inline", "error", err)
		}
		return cr.Evaluate(msg)
	}

	timer := time.NewTimer(r.cfg.StreamProcessingTimeout.Std())
	defer timer.Stop()

	select {
	case res := <-task.result:
		return res.matched, res.err
	case <-timer.C:
		return false, errTimeout
	}
}
