package subgraph

import (
	"fmt"

	"github.com/timelyprogress/pkg/errors"
	"github.com/timelyprogress/pkg/timely/pointstamp"
	"github.com/timelyprogress/pkg/utils"
)

// fatalf logs an *errors.AppError through logger at Error level and panics
// with it. The engine treats all inputs as trusted and has no recoverable
// runtime errors (§7): every condition this is called for is a programmer
// error (a malformed graph declaration or a protocol violation by a child),
// and the single-threaded cooperative driver is expected to let the panic
// propagate and crash the process.
func fatalf(logger utils.Logger, code, format string, args ...interface{}) {
	err := errors.New(code, fmt.Sprintf(format, args...))
	logger.Error(err.Error())
	panic(err)
}

func fatalMalformedGraph(logger utils.Logger, loc pointstamp.Location, why string) {
	fatalf(logger, errors.CodeMalformedGraph, "malformed graph at %s: %s", loc, why)
}

func fatalInvariantViolation(logger utils.Logger, loc pointstamp.Location, why string) {
	fatalf(logger, errors.CodeInvariantViolation, "invariant violation at %s: %s", loc, why)
}

func fatalNonTermination(logger utils.Logger, iterations int) {
	fatalf(logger, errors.CodeNonTermination,
		"reachability computation did not converge after %d iterations", iterations)
}
