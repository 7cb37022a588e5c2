// File: cmd/exit.go
package cmd

import "github.com/xkilldash9x/visverify/internal/verify"

// Process exit codes. Each verification failure kind has its own code so CI
// can tell a broken page from a broken harness.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitNavigation  = 2
	ExitTimeout     = 3
	ExitAssertion   = 4
	ExitPageRuntime = 5
)

// ExitCode maps an Execute error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch verify.CodeOf(err) {
	case verify.CodeNavigation:
		return ExitNavigation
	case verify.CodeTimeout:
		return ExitTimeout
	case verify.CodeAssertion:
		return ExitAssertion
	case verify.CodePageRuntime:
		return ExitPageRuntime
	default:
		return ExitFailure
	}
}
