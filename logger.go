package gocompositor

import "github.com/edaniels/golog"

// Logger is used by compositors and renderers that are not given their own logger.
var Logger = golog.Global().Named("gocompositor")
