package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-welcome/internal/health"
	"github.com/keithlinneman/linnemanlabs-welcome/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-welcome/internal/log"
)

type Options struct {
	Logger log.Logger
	// 0 means 8080
	Port         int
	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler
	RateLimitMW  func(http.Handler) http.Handler
	ClientIPOpts httpmw.ClientIPOptions
	// probe routes are only mounted when set
	Health    health.Probe
	Readiness health.Probe
	// APIRoutes mounts the application routes on the router
	APIRoutes func(chi.Router)
}
