// Package httpmw holds the middleware of the public listener.
//
// httpserver.NewHandler composes them outermost first: security headers,
// recover, request id, client ip, rate limit, otelhttp, trace headers,
// metrics, request logger, then the chi router with route annotation,
// access log and body limit.
//
// Query strings are logged because the language parameter is the only
// input the API takes; headers and user agents are not.
package httpmw
