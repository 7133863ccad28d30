package script

import (
	"errors"
	"strings"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/jonwraymond/exercisegrade/runtime"
)

const stepBudgetMarker = "too many steps"

// translate maps interpreter errors into the runtime taxonomy.
func translate(err error) error {
	var (
		serr syntax.Error
		rerr resolve.ErrorList
		eerr *starlark.EvalError
	)
	switch {
	case errors.As(err, &serr):
		return &runtime.Error{
			Kind:    runtime.KindSyntax,
			Message: serr.Msg,
			Line:    int(serr.Pos.Line),
			Column:  int(serr.Pos.Col),
			Err:     err,
		}

	case errors.As(err, &rerr) && len(rerr) > 0:
		first := rerr[0]
		kind := runtime.KindSyntax
		// Unknown names are caught at compile time but reported like a
		// NameError.
		if strings.HasPrefix(first.Msg, "undefined:") {
			kind = runtime.KindRuntime
		}
		return &runtime.Error{
			Kind:    kind,
			Message: first.Msg,
			Line:    int(first.Pos.Line),
			Column:  int(first.Pos.Col),
			Err:     err,
		}

	case errors.As(err, &eerr):
		if strings.Contains(eerr.Msg, stepBudgetMarker) {
			return &runtime.Error{
				Kind:    runtime.KindTimeout,
				Message: "execution exceeded its step budget and was stopped; check for infinite loops",
				Err:     err,
			}
		}
		line, col := location(eerr.CallStack)
		return &runtime.Error{
			Kind:    runtime.KindRuntime,
			Message: eerr.Msg,
			Line:    line,
			Column:  col,
			Err:     err,
		}
	}
	return &runtime.Error{Kind: runtime.KindExecution, Message: err.Error(), Err: err}
}

// location returns the innermost position inside learner code.
func location(stack starlark.CallStack) (line, col int) {
	for i := range stack {
		fr := stack.At(i)
		if fr.Pos.Filename() == Filename && fr.Pos.Line > 0 {
			return int(fr.Pos.Line), int(fr.Pos.Col)
		}
	}
	return 0, 0
}

func backtrace(err error) string {
	var eerr *starlark.EvalError
	if errors.As(err, &eerr) {
		return eerr.Backtrace()
	}
	return ""
}
