// Package engine evaluates an ordered list of condition/action rules against
// a single state value.
//
// The engine knows nothing about the shape of the state or of the action
// results. Rules are always tried in list order and never concurrently with
// each other, including in ExecuteAsync.
package engine

import "context"

// Rule pairs a condition over a state S with an action producing R.
type Rule[S, R any] interface {
	// Condition reports whether the rule applies to state.
	Condition(ctx context.Context, state S) (bool, error)

	// Action computes the rule's result. It is only invoked after
	// Condition returned true for the same state.
	Action(ctx context.Context, state S) (R, error)
}

// Outcome is the result of an asynchronous execution.
type Outcome[R any] struct {
	Value   R
	Matched bool
	Err     error
}

// Engine runs a fixed rule list. It holds no mutable state and may be shared
// between goroutines.
type Engine[S, R any] struct {
	rules []Rule[S, R]
}

// New creates an engine over a copy of rules.
func New[S, R any](rules ...Rule[S, R]) *Engine[S, R] {
	rs := make([]Rule[S, R], len(rules))
	copy(rs, rules)
	return &Engine[S, R]{rules: rs}
}

// Len returns the number of rules.
func (e *Engine[S, R]) Len() int {
	return len(e.rules)
}

// Execute returns the action result of the first rule whose condition holds.
// The boolean is false when no rule matched. Errors from a condition or an
// action stop evaluation and are returned as-is.
func (e *Engine[S, R]) Execute(ctx context.Context, state S) (R, bool, error) {
	var zero R
	for _, rule := range e.rules {
		ok, err := rule.Condition(ctx, state)
		if err != nil {
			return zero, false, err
		}
		if !ok {
			continue
		}

		out, err := rule.Action(ctx, state)
		if err != nil {
			return zero, true, err
		}
		return out, true, nil
	}
	return zero, false, nil
}

// ExecuteAsync runs Execute on its own goroutine and delivers the outcome on
// the returned channel. The channel is buffered, so a caller that loses
// interest may simply drop it.
func (e *Engine[S, R]) ExecuteAsync(ctx context.Context, state S) <-chan Outcome[R] {
	ch := make(chan Outcome[R], 1)
	go func() {
		defer close(ch)
		out, matched, err := e.Execute(ctx, state)
		ch <- Outcome[R]{Value: out, Matched: matched, Err: err}
	}()
	return ch
}

// ExecuteAll invokes the action of every rule whose condition holds, in
// order, discarding the results.
func (e *Engine[S, R]) ExecuteAll(ctx context.Context, state S) error {
	for _, rule := range e.rules {
		ok, err := rule.Condition(ctx, state)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if _, err := rule.Action(ctx, state); err != nil {
			return err
		}
	}
	return nil
}

// Func adapts a pair of functions to the Rule interface. A nil When never
// matches; a nil Then yields the zero value.
type Func[S, R any] struct {
	When func(ctx context.Context, state S) (bool, error)
	Then func(ctx context.Context, state S) (R, error)
}

func (f Func[S, R]) Condition(ctx context.Context, state S) (bool, error) {
	if f.When == nil {
		return false, nil
	}
	return f.When(ctx, state)
}

func (f Func[S, R]) Action(ctx context.Context, state S) (R, error) {
	if f.Then == nil {
		var zero R
		return zero, nil
	}
	return f.Then(ctx, state)
}
