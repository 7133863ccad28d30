package script

import (
	"errors"
	"sync"

	"go.starlark.net/starlark"
)

const inputKey = "exercisegrade.input"

// ErrInputExhausted is raised by input() once every pre-supplied value has
// been consumed.
var ErrInputExhausted = errors.New("EOFError: EOF when reading a line")

// inputQueue is the finite queue of values returned by input() in one run.
type inputQueue struct {
	mu     sync.Mutex
	values []string
	echo   func(string)
}

func newInputQueue(values []string, echo func(string)) *inputQueue {
	return &inputQueue{values: append([]string(nil), values...), echo: echo}
}

func (q *inputQueue) next() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.values) == 0 {
		return "", false
	}
	v := q.values[0]
	q.values = q.values[1:]
	return v, true
}

// builtinInput implements input(prompt="") over the run's queue. The prompt
// is written to the output hook without a trailing newline.
func builtinInput(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var prompt starlark.Value = starlark.String("")
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0, &prompt); err != nil {
		return nil, err
	}

	q, _ := thread.Local(inputKey).(*inputQueue)
	if q == nil {
		return nil, ErrInputExhausted
	}
	if s, ok := starlark.AsString(prompt); ok {
		q.echo(s)
	} else {
		q.echo(prompt.String())
	}

	v, ok := q.next()
	if !ok {
		return nil, ErrInputExhausted
	}
	return starlark.String(v), nil
}
