package app

import "errors"

// ErrNotFound reports a missing entity.
var ErrNotFound = errors.New("not found")
