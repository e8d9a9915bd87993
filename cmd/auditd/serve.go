package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	gorawraudit "github.com/Keksclan/goRawrAudit"
	"github.com/Keksclan/goRawrAudit/admin"
	"github.com/Keksclan/goRawrAudit/auth"
	"github.com/Keksclan/goRawrAudit/cache"
	"github.com/Keksclan/goRawrAudit/logging"
	"github.com/Keksclan/goRawrAudit/middleware"
	"github.com/Keksclan/goRawrAudit/policy"
	"github.com/Keksclan/goRawrAudit/ratelimit"
	"github.com/Keksclan/goRawrAudit/security"
	"github.com/Keksclan/goRawrAudit/tracing"
	"github.com/Keksclan/goRawrAudit/whoami"
)

const shutdownTimeout = 30 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the audit views over HTTP and the WhoAmI probe over gRPC",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	tp, err := initTracer()
	if err != nil {
		return err
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	identities, closeCache, err := identityCache(ctx)
	if err != nil {
		return err
	}
	defer closeCache()

	tokens, err := loadTokens(cfg.TokensFile)
	if err != nil {
		return err
	}
	lookup := auth.Cached(tokens, identities, cfg.IdentityCacheTTL)

	requestLog, closeFile, err := requestLogConfig()
	if err != nil {
		return err
	}
	defer closeFile()

	opts := append(gorawraudit.DefaultOptions(),
		gorawraudit.WithClientIP(security.Config{
			TrustedProxies: cfg.TrustedProxies,
			HeaderPriority: cfg.IPHeaders,
		}),
		gorawraudit.WithAuthenticator(auth.BearerLookup(lookup)),
		gorawraudit.WithGRPCAuth(auth.MetadataBearer(lookup)),
		gorawraudit.WithStore(db),
		gorawraudit.WithRequestLog(requestLog),
		gorawraudit.WithAdmin(admin.Config{
			Scope:  cfg.AdminScope,
			Export: ratelimit.NewKeyed(cfg.ExportRate, time.Minute),
		}),
		gorawraudit.WithMetrics(nil),
	)
	if tp != nil {
		opts = append(opts, gorawraudit.WithOpenTelemetry(&tracing.Config{TracerProvider: tp}))
	}

	srv, err := gorawraudit.NewServer(opts...)
	if err != nil {
		return err
	}
	srv.RegisterWhoAmI(whoami.DefaultHandler())

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}

	errCh := make(chan error, 2)
	go func() {
		slog.Info("starting HTTP server", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()
	go func() {
		slog.Info("starting gRPC server", "addr", cfg.GRPCAddr)
		if err := srv.GRPC().Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down servers...")
	case serveErr = <-errCh:
		slog.Error("server error", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	srv.GRPC().GracefulStop()
	slog.Info("servers stopped")
	return serveErr
}

// identityCache builds the token cache: ristretto alone, or ristretto in
// front of redis when AUDIT_REDIS_ADDR is set.
func identityCache(ctx context.Context) (cache.Identities, func(), error) {
	l1, err := cache.NewL1(cfg.IdentityCacheSize)
	if err != nil {
		return nil, nil, err
	}
	if cfg.RedisAddr == "" {
		return l1, l1.Close, nil
	}

	l2 := cache.NewL2(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := l2.Ping(ctx); err != nil {
		slog.Warn("redis unreachable, identity cache degrades to L1", "addr", cfg.RedisAddr, "error", err)
	}
	closeAll := func() {
		l1.Close()
		if err := l2.Close(); err != nil {
			slog.Error("failed to close redis", "error", err)
		}
	}
	return cache.NewTiered(l1, l2), closeAll, nil
}

// requestLogConfig translates the AUDIT_REQUEST_LOG_* settings.
func requestLogConfig() (middleware.RequestLogConfig, func(), error) {
	rl := middleware.RequestLogConfig{
		Methods:  cfg.RequestLogMethods,
		Exclude:  policy.NewResolver(policy.ExcludeFromRequestLog("request-log-excluded", cfg.RequestLogExclude...)),
		FileOnly: !cfg.RequestLogDB,
	}
	if len(cfg.RequestLogSkipIPs) > 0 {
		f, err := security.NewIPFilter(security.DenyList, cfg.RequestLogSkipIPs)
		if err != nil {
			return rl, nil, err
		}
		rl.Filter = f
	}

	closeFile := func() {}
	if cfg.RequestLogFile != "" {
		fl, err := logging.NewFileLogger(cfg.RequestLogFile)
		if err != nil {
			return rl, nil, err
		}
		rl.File = fl.Logger()
		closeFile = func() {
			if err := fl.Close(); err != nil {
				slog.Error("failed to close request log file", "error", err)
			}
		}
	}
	return rl, closeFile, nil
}

// initTracer installs a stdout span exporter when AUDIT_OTEL_ENABLED is
// set, and returns nil otherwise.
func initTracer() (*sdktrace.TracerProvider, error) {
	if !cfg.OtelEnabled {
		return nil, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	if err != nil {
		return nil, fmt.Errorf("stdout exporter: %w", err)
	}
	res, err := resource.Merge(resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", cfg.OtelServiceName)))
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.OtelSamplingRate))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp, nil
}
