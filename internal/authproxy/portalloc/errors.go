package portalloc

import "errors"

// ErrNoPortsAvailable is wrapped into the error Allocate returns when the
// whole range is in use.
var ErrNoPortsAvailable = errors.New("no ports available")
