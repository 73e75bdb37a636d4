// Export fetches device data points for a project's participants and writes them as JSON lines
// to stdout (or -out), and to Kafka when KAFKA_BROKERS is set.
//
//	export -start 2024-01-01 -end 2024-01-31 -measurements steps,heart_rate -namespace AppleHealth,HealthConnect
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"mdh-device-export/internal/auth"
	"mdh-device-export/internal/config"
	"mdh-device-export/internal/export"
	"mdh-device-export/internal/mdh"
	"mdh-device-export/internal/measurement"
	"mdh-device-export/internal/telemetry"
	telemetryotel "mdh-device-export/internal/telemetry/otel"
)

func main() {
	start := flag.String("start", "", "first observation date, YYYY-MM-DD (optional)")
	end := flag.String("end", "", "last observation date, YYYY-MM-DD (optional)")
	measurements := flag.String("measurements", "", "comma-separated measurement names, e.g. steps,heart_rate")
	namespaces := flag.String("namespace", "AppleHealth,HealthConnect", "comma-separated namespaces to fetch")
	segment := flag.String("segment", "", "restrict to the participants of this segment")
	participants := flag.String("participants", "", "comma-separated participant identifiers; skips listing")
	out := flag.String("out", "", "write JSON lines to this file instead of stdout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.RequireCredentials(); err != nil {
		log.Fatal(err)
	}
	logger, err := config.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	job := export.Job{
		ProjectID:      cfg.ProjectID,
		SegmentID:      *segment,
		ParticipantIDs: splitList(*participants),
		Spec: measurement.Spec{
			StartDate:    *start,
			EndDate:      *end,
			Measurements: measurement.ParseMeasurements(*measurements),
		},
	}
	for _, name := range splitList(*namespaces) {
		ns, err := measurement.ParseNamespace(name)
		if err != nil {
			logger.Fatal("export: bad -namespace", zap.Error(err))
		}
		job.Namespaces = append(job.Namespaces, ns)
	}
	if err := job.Spec.Validate(); err != nil {
		logger.Fatal("export: bad flags", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		logger.Info("export: interrupted, stopping")
		cancel()
	}()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "mdh-export",
		Insecure:    cfg.OTLPInsecure,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal("telemetry", zap.Error(err))
	}
	providers.SetGlobal()
	emitter := telemetry.NewAsync(telemetryotel.NewDiagnosticEmitter(providers.LoggerProvider), logger)

	sink, err := openSink(cfg, *out, logger)
	if err != nil {
		logger.Fatal("export: sink", zap.Error(err))
	}

	runner := &export.Runner{
		Tokens: auth.NewProvider(cfg.ServiceAccount, cfg.TokenURL, cfg.PrivateKeyPath, cfg.AssertionLifetime(), &http.Client{
			Timeout:   cfg.RequestTimeout(),
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}),
		Client:      mdh.NewClient(cfg.BaseURL, cfg.RequestTimeout(), logger),
		Sink:        sink,
		Emitter:     emitter,
		Logger:      logger,
		PageSize:    cfg.PageSize,
		Concurrency: cfg.FetchConcurrency,
	}
	sum, runErr := runner.Run(ctx, job)

	if err := sink.Close(); err != nil {
		logger.Error("export: close sink", zap.Error(err))
	}
	emitter.Drain(context.Background())
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), telemetry.ShutdownDrainDuration)
	defer shutdownCancel()
	_ = providers.Shutdown(shutdownCtx)

	if runErr != nil {
		logger.Error("export: run failed", zap.Error(runErr))
		os.Exit(1)
	}
	logger.Info("export: done",
		zap.Int("participants", sum.Participants),
		zap.Int("records", sum.Records),
		zap.Int("diagnostics", len(sum.Diagnostics)),
	)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func openSink(cfg *config.Config, path string, logger *zap.Logger) (export.Sink, error) {
	var sinks export.MultiSink
	switch {
	case path != "":
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, export.NewJSONLinesSink(f))
	case len(cfg.KafkaBrokersList()) == 0:
		sinks = append(sinks, export.NewJSONLinesSink(os.Stdout))
	}
	if brokers := cfg.KafkaBrokersList(); len(brokers) > 0 {
		k, err := export.NewKafkaSink(brokers, cfg.KafkaTopic, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, k)
	}
	return sinks, nil
}
