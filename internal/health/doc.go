// Package health holds the liveness and readiness probes and the handlers
// that serve them.
//
// Probes compose with [All] and [Any]. [ShutdownGate] fails readiness as
// soon as drain starts so the load balancer stops routing before in-flight
// requests finish. [RegularFile] fails until a file exists, which is how the
// server reports not-ready while the project has no default document.
package health
