package pageserver

import "go.opentelemetry.io/otel"

// tracer follows the `var tracer = otel.Tracer("pkg/...")` idiom used
// throughout the teacher codebase (e.g. modules/backendscheduler).
var tracer = otel.Tracer("github.com/riverdb/pagestore-smgr/pkg/pageserver")
