package treadmill

import (
	"errors"

	"github.com/kstephens/treadmill/internal/tread"
)

// ErrOutOfMemory is returned when the heap cannot satisfy an allocation.
var ErrOutOfMemory = tread.ErrOutOfMemory

// ErrOversizeAlloc is returned for a request larger than a single block
// can ever hold.
var ErrOversizeAlloc = tread.ErrOversizeAlloc

// Fault is re-exported so callers can recover from it with a type
// assertion without importing an internal package.
type Fault = tread.Fault

var errZeroStackRange = errors.New("treadmill: stack range must be non-empty")
