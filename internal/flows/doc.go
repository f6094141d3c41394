// Package flows contains the orchestration logic behind every Engine operation.
//
// Each Run function takes a dependency struct of plain functions and returns a
// result carrying a FailureKind. The engine owns every resource and maps the
// kinds to metrics, audit events and its small public error set.
//
// Flows hold no state between calls and never import the root package.
package flows
