// Package raceread implements a cancellable read helper: run an operation
// against one or more abort signals (Go's natural abort signal is a
// context.Context), surfacing whichever resolves first and always
// detaching listeners on every exit path.
package raceread

import (
	"context"
	"reflect"

	"github.com/go-adbhost/adbhost/internal/adberr"
)

// Wait runs op on its own goroutine and races it against every supplied
// signal's cancellation. If a signal is already canceled, Wait fails
// immediately with Aborted and never calls op. If op finishes first, its
// result is returned. If a signal fires first, Wait returns Aborted with
// that signal's error; op is left running in the background (Go has no
// way to forcibly abandon a blocked read) and its eventual result is
// discarded — the caller is responsible for closing whatever resource op
// was blocked on.
//
// Listeners are implemented with reflect.Select over the signals' Done
// channels plus the operation's own result channel, so the set of signals
// can be arbitrary (0, 1, or many) without hand-written 2- and 3-way
// select statements. All channels are left to be garbage collected once
// Wait returns; nothing is registered against the signals that outlives
// this call.
func Wait[T any](op func() (T, error), signals ...context.Context) (T, error) {
	var zero T

	live := make([]context.Context, 0, len(signals))
	for _, sig := range signals {
		if sig == nil {
			continue
		}
		if err := sig.Err(); err != nil {
			return zero, adberr.AbortedBy(err)
		}
		live = append(live, sig)
	}

	type result struct {
		val T
		err error
	}
	resultCh := make(chan result, 1)

	go func() {
		val, err := op()
		resultCh <- result{val, err}
	}()

	cases := make([]reflect.SelectCase, 0, len(live)+1)
	cases = append(cases, reflect.SelectCase{
		Dir:  reflect.SelectRecv,
		Chan: reflect.ValueOf(resultCh),
	})
	for _, sig := range live {
		cases = append(cases, reflect.SelectCase{
			Dir:  reflect.SelectRecv,
			Chan: reflect.ValueOf(sig.Done()),
		})
	}

	chosen, recv, _ := reflect.Select(cases)
	if chosen == 0 {
		r := recv.Interface().(result)
		return r.val, r.err
	}

	// A signal won the race; op keeps running in the background and its
	// result, once it arrives, is simply dropped.
	go func() { <-resultCh }()

	return zero, adberr.AbortedBy(live[chosen-1].Err())
}
