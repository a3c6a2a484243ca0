package errors

import (
	"github.com/pkg/errors"
)

// Re-exported so callers need a single errors import.
var (
	New    = errors.New
	Errorf = errors.Errorf
	Wrap   = errors.Wrap
	Wrapf  = errors.Wrapf
	Cause  = errors.Cause
	Is     = errors.Is
	As     = errors.As
)
