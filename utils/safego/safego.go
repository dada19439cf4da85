package safego

import (
	"os"
	"runtime/debug"
	"strings"

	"github.com/variable-kang/0.9to0.10MirrorMaker/utils/logger"
)

// Run starts f on a new goroutine with a panic handler that logs the stack
// instead of crashing the process.
func Run(f func()) {
	go func() {
		defer Recovery(false)
		f()
	}()
}

// Recovery recovers a panic, logs it with its stack trace, and optionally
// terminates the process with a non-zero status.
func Recovery(exit bool) {
	if r := recover(); r != nil {
		logger.Error(r)
		for _, line := range strings.Split(string(debug.Stack()), "\n") {
			logger.Error(strings.ReplaceAll(line, "\t", ""))
		}
		if exit {
			os.Exit(1)
		}
	}
}

// Close closes ch, tolerating a double close.
func Close[T any](ch chan T) {
	defer Recovery(false)
	close(ch)
}
