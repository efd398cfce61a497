package loader

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds. Every error returned by Detect or Parse matches exactly one
// of these with errors.Is, and errors.Cause returns it.
var (
	ErrUnrecognizedFormat = errors.New("unrecognized object format")
	ErrUnsupportedFormat  = errors.New("unsupported object format")
	ErrMalformedHeader    = errors.New("malformed header")
	ErrMissingEntryPoint  = errors.New("missing entry point")
	ErrSymbolResolution   = errors.New("symbol resolution failed")
)

// Stage names the parse phase an error came from.
type Stage string

const (
	StageDetect   Stage = "detect"
	StageHeader   Stage = "header"
	StageEntry    Stage = "entry"
	StageSegments Stage = "segments"
	StageSymbols  Stage = "symbols"
	StageSections Stage = "sections"
)

type Error struct {
	Kind  error
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Cause() error  { return e.Kind }
func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func (e *Error) StackTrace() errors.StackTrace {
	if st, ok := e.Err.(stackTracer); ok {
		return st.StackTrace()
	}
	return nil
}

func newError(kind error, stage Stage, format string, args ...interface{}) error {
	return &Error{Kind: kind, Stage: stage, Err: errors.Errorf(format, args...)}
}

func wrapError(kind error, stage Stage, err error, format string, args ...interface{}) error {
	return &Error{Kind: kind, Stage: stage, Err: errors.Wrapf(err, format, args...)}
}
