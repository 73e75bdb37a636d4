// Datatypes prints the device data types a namespace exposes for the configured project,
// as indented JSON, or with -coverage which measurement names the catalog can serve.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"mdh-device-export/internal/auth"
	"mdh-device-export/internal/config"
	"mdh-device-export/internal/mdh"
	"mdh-device-export/internal/measurement"
	telemetryotel "mdh-device-export/internal/telemetry/otel"
)

func main() {
	namespace := flag.String("namespace", "AppleHealth", "namespace whose catalog to print")
	coverage := flag.Bool("coverage", false, "print measurement name coverage instead of the raw catalog")
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

	ns, err := measurement.ParseNamespace(*namespace)
	if err != nil {
		logger.Fatal("datatypes: bad -namespace", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "mdh-datatypes",
		Insecure:    cfg.OTLPInsecure,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal("telemetry", zap.Error(err))
	}
	providers.SetGlobal()
	defer providers.Shutdown(context.Background())

	tokens := auth.NewProvider(cfg.ServiceAccount, cfg.TokenURL, cfg.PrivateKeyPath, cfg.AssertionLifetime(), &http.Client{
		Timeout:   cfg.RequestTimeout(),
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	})
	token, err := tokens.Token(ctx)
	if err != nil {
		logger.Fatal("datatypes: token", zap.Error(err))
	}

	retriever := measurement.NewRetriever(mdh.NewClient(cfg.BaseURL, cfg.RequestTimeout(), logger), ns, 1, logger)
	catalog, err := retriever.DataTypes(ctx, token, cfg.ProjectID)
	if err != nil {
		logger.Fatal("datatypes: fetch catalog", zap.Error(err), zap.Int("status", mdh.StatusCode(err)))
	}

	if *coverage {
		cov := catalog.Coverage(ns)
		for _, name := range slices.Sorted(maps.Keys(cov)) {
			mark := "-"
			if cov[name] {
				mark = "+"
			}
			fmt.Printf("%s %s\n", mark, name)
		}
		return
	}
	out, err := catalog.JSON()
	if err != nil {
		logger.Fatal("datatypes: render", zap.Error(err))
	}
	fmt.Println(out)
}
