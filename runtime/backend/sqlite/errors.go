package sqlite

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/jonwraymond/exercisegrade/runtime"
)

var trailingCode = regexp.MustCompile(`\s*\(\d+\)$`)

// Generic result-code descriptions the driver prefixes to the real message.
var genericPrefixes = []string{
	"SQL logic error: ",
	"constraint failed: ",
	"datatype mismatch: ",
	"SQL error: ",
}

var runtimeMarkers = []string{
	"no such table",
	"no such column",
	"no such function",
	"ambiguous column",
	"has no column named",
	"already exists",
	"datatype mismatch",
	"misuse of aggregate",
	"wrong number of arguments",
	"values were supplied",
	"values for",
	"columns but",
	"may not be modified",
	"cannot",
}

// translate maps a driver error into the runtime taxonomy. stmt is the
// 1-based position of the failing statement, shown when the script has more
// than one.
func translate(err error, stmt, total int) error {
	msg := cleanMessage(err.Error())

	code := 0
	var se *msqlite.Error
	if errors.As(err, &se) {
		code = se.Code() & 0xff
	}

	kind := runtime.KindExecution
	switch {
	case isSyntax(msg):
		kind = runtime.KindSyntax
	case code == sqlite3.SQLITE_CONSTRAINT || strings.Contains(msg, "constraint failed"):
		kind = runtime.KindRuntime
		msg = "constraint violation: " + msg
	case code == sqlite3.SQLITE_MISMATCH || containsAny(msg, runtimeMarkers):
		kind = runtime.KindRuntime
	}

	if total > 1 {
		msg = fmt.Sprintf("statement %d: %s", stmt, msg)
	}
	return &runtime.Error{Kind: kind, Message: msg, Err: err}
}

func cleanMessage(msg string) string {
	msg = strings.TrimSpace(msg)
	msg = trailingCode.ReplaceAllString(msg, "")
	for changed := true; changed; {
		changed = false
		for _, p := range genericPrefixes {
			if strings.HasPrefix(msg, p) {
				msg = strings.TrimPrefix(msg, p)
				changed = true
			}
		}
	}
	return msg
}

func isSyntax(msg string) bool {
	return strings.Contains(msg, "syntax error") ||
		strings.Contains(msg, "incomplete input") ||
		strings.Contains(msg, "unrecognized token")
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
