package ingest

import "errors"

// ErrStopRequested is returned from every checkpoint once the
// scenario's status carries a stop request. Handlers catch it to
// restore the scenario to IDLE.
var ErrStopRequested = errors.New("stop requested")

// ErrIngestion marks metadata, predicate or script failures, fatal to
// the current scenario only.
var ErrIngestion = errors.New("ingestion error")
