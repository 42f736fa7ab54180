//go:build release

package core

// Assertions reports whether Assert checks its condition. Release
// builds compile assertions out.
const Assertions = false

// Assert does nothing in release builds.
func Assert(cond bool, format string, args ...interface{}) {}
