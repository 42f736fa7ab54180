//go:build !release

package core

import "github.com/pkg/errors"

// Assertions reports whether Assert checks its condition. Release
// builds compile assertions out.
const Assertions = true

// Assert panics with the formatted message when cond is false. It marks
// programming errors, never bad input.
func Assert(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(errors.Errorf("assertion failed: "+format, args...))
	}
}
