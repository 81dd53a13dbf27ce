package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-welcome/internal/cfg"
	"github.com/keithlinneman/linnemanlabs-welcome/internal/cryptoutil"
	"github.com/keithlinneman/linnemanlabs-welcome/internal/docsync"
	"github.com/keithlinneman/linnemanlabs-welcome/internal/health"
	"github.com/keithlinneman/linnemanlabs-welcome/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-welcome/internal/httpserver"
	"github.com/keithlinneman/linnemanlabs-welcome/internal/log"
	"github.com/keithlinneman/linnemanlabs-welcome/internal/markdown"
	"github.com/keithlinneman/linnemanlabs-welcome/internal/markdownhttp"
	"github.com/keithlinneman/linnemanlabs-welcome/internal/metrics"
	"github.com/keithlinneman/linnemanlabs-welcome/internal/opshttp"
	"github.com/keithlinneman/linnemanlabs-welcome/internal/otelx"
	"github.com/keithlinneman/linnemanlabs-welcome/internal/prof"
	"github.com/keithlinneman/linnemanlabs-welcome/internal/ratelimit"
	v "github.com/keithlinneman/linnemanlabs-welcome/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "print version and build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(vi.String())
		os.Exit(0)
	}

	cfg.FillFromEnv(flag.CommandLine, cfg.EnvPrefix, func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})
	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Validate has already checked both levels
	lvl, _ := log.ParseLevel(conf.LogLevel)
	stackLvl, _ := log.ParseLevel(conf.StacktraceLevel)
	lg, err := log.New(log.Options{
		App:             v.AppName,
		Version:         vi.Version,
		Commit:          vi.Commit,
		Level:           lvl,
		StacktraceLevel: stackLvl,
		JsonFormat:      conf.LogJSON,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"project_root", conf.ProjectRoot,
		"default_language", conf.DefaultLanguage,
		"init_default", conf.InitDefault,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"enable_docs_sync", conf.EnableDocsSync,
		"docs_poll_interval", conf.DocsPollInterval.String(),
		"trusted_proxy_hops", conf.TrustedProxyHops,
	)

	m := metrics.New()
	m.SetBuildInfo("server", vi)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	m.SetProfilingActive(conf.EnablePyroscope && err == nil)
	defer stopProf()

	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  conf.OTLPInsecure,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	// synced files go in first so bootstrap only fills a gap the release left
	if conf.EnableDocsSync {
		syncDocs(ctx, L, conf, m)
	}

	resolver := markdown.New(markdown.Options{
		Root:   conf.ProjectRoot,
		Logger: L.With("component", "markdown"),
		OnResolve: func(tier markdown.Tier, found bool) {
			m.ObserveResolution(tier.String(), found)
		},
		OnCreate: m.IncDefaultCreated,
	})
	if conf.InitDefault {
		if _, err := resolver.Init(ctx); err != nil {
			L.Error(ctx, err, "failed to write default markdown file", "root", resolver.Root())
			os.Exit(1)
		}
	}

	var gate health.ShutdownGate
	readiness := health.All(gate.Probe(), health.RegularFile(resolver.DefaultPath()))

	limiter := ratelimit.New(ctx,
		ratelimit.WithRate(conf.RateLimitRPS, conf.RateLimitBurst),
		ratelimit.WithOnDenied(func(string) { m.IncRateLimitDenied() }),
		ratelimit.WithOnFirstDenied(func(ip string) {
			m.IncRateLimitOffender()
			L.Warn(ctx, "rate limit triggered", "ip", ip)
		}),
		ratelimit.WithOnCapacity(func(size int) {
			L.Warn(ctx, "rate limit visitor table full, rejecting new visitors until eviction", "size", size)
		}),
	)

	docs := markdownhttp.New(resolver, conf.DefaultLanguage)
	siteHTTPStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		UseRecoverMW: true,
		OnPanic:      m.IncHTTPPanic,
		MetricsMW:    m.Middleware,
		RateLimitMW:  limiter.Middleware,
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedProxyHops},
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		APIRoutes: func(r chi.Router) {
			docs.RegisterRoutes(r)
		},
	})
	if err != nil {
		L.Error(ctx, err, "failed to start http listener")
		os.Exit(1)
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	opsHTTPStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		UseRecoverMW: true,
		OnPanic:      m.IncHTTPPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		L.Debug(ctx, "systemd notify skipped", "reason", err.Error())
	}

	<-ctx.Done()
	stop()
	bg := context.Background()
	L.Info(bg, "shutdown signal received")

	gate.Set("draining")
	L.Info(bg, "shutdown gate closed, draining", "drain", drainPeriod)
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(drainPeriod):
		L.Info(bg, "drain period complete")
	case <-forceCh:
		L.Warn(bg, "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	shutdownCtx, cancel := context.WithTimeout(bg, 10*time.Second)
	defer cancel()
	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(bg, err, "http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(bg, err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(bg, err, "otel shutdown")
	}
	stopProf()
	L.Info(bg, "shutdown complete")
}

// drainPeriod gives the load balancer time to see /-/ready fail.
const drainPeriod = 30 * time.Second

// syncDocs installs the current docs release and, when polling is on, keeps
// watching for new ones. Failures are logged and the server carries on with
// what is on disk.
func syncDocs(ctx context.Context, L log.Logger, conf cfg.App, m *metrics.ServerMetrics) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		L.Error(ctx, err, "load AWS config, skipping docs sync")
		m.ObserveSync("error", "", 0, 0)
		return
	}

	opts := docsync.Options{
		Logger:    L.With("component", "docsync"),
		SSMParam:  conf.DocsSSMParam,
		Bucket:    conf.DocsS3Bucket,
		Prefix:    conf.DocsS3Prefix,
		Root:      conf.ProjectRoot,
		AWSConfig: &awsCfg,
		OnSync:    m.ObserveSync,
	}
	if conf.DocsSigningKeyARN != "" {
		opts.Verifier = cryptoutil.NewKMSVerifier(kms.NewFromConfig(awsCfg), conf.DocsSigningKeyARN)
	}

	s, err := docsync.New(ctx, opts)
	if err != nil {
		L.Error(ctx, err, "docs sync setup failed")
		m.ObserveSync("error", "", 0, 0)
		return
	}
	res, err := s.Sync(ctx)
	if err != nil {
		L.Error(ctx, err, "docs sync failed, serving files already on disk")
	}
	if conf.DocsPollInterval > 0 {
		go docsync.NewWatcher(s, conf.DocsPollInterval, res.Release).Run(ctx)
	}
}

func notifySystemd() error {
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify: dial: %w", err)
	}
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		conn.Close()
		return fmt.Errorf("systemd notify: write: %w", err)
	}
	return conn.Close()
}
