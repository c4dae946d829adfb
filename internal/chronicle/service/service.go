// Package service implements the event store, its RBAC gate, the factory
// that creates store instances and the executor that runs submitted
// operations against them.
package service

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("chronicle/service")
