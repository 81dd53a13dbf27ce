package opshttp

import (
	"net/http"

	"github.com/keithlinneman/linnemanlabs-welcome/internal/health"
)

type Options struct {
	// 0 means 9000
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe
	// Recover wraps the mux when set; OnPanic is passed through to it
	UseRecoverMW bool
	OnPanic      func()
}
