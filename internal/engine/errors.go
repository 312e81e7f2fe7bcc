package engine

import "errors"

// ErrNoMarkers is the non-fatal zero-marker condition. The pipeline returns
// the input unmodified with zero patches applied; batch siblings continue.
// The message text is part of the caller-facing contract.
var ErrNoMarkers = errors.New("No Car(); markers found in file")
