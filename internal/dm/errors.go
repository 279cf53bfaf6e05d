package dm

import "errors"

// ErrConfig marks startup misconfiguration, fatal to the run.
var ErrConfig = errors.New("download manager configuration error")

// ErrDM marks a Download Manager HTTP or protocol failure, fatal to
// the current scenario only.
var ErrDM = errors.New("download manager error")
