package handler

import "errors"

// errBoom is a generic sentinel error shared by this package's tests for
// injecting failures into fakeStore's per-method error fields.
var errBoom = errors.New("boom")
