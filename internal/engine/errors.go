package engine

import (
	"errors"
	"fmt"
)

// EngineFault is a run-aborting failure of the engine itself, as opposed to a
// per-port probe error which is recorded in the report.
type EngineFault struct {
	Op  string
	Err error
}

func (e *EngineFault) Error() string {
	return fmt.Sprintf("scan engine %s failed: %v", e.Op, e.Err)
}

func (e *EngineFault) Unwrap() error { return e.Err }

var (
	errSealed      = errors.New("report already finalized")
	errUnknownPort = errors.New("outcome for a port that was not requested")
	errDuplicate   = errors.New("duplicate outcome")
)
