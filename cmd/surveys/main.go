// Surveys prints survey events per participant as JSON. Participants come from -participants,
// a -segment, or the whole project. With -list it prints the full participant records instead.
package main

import (
	"context"
	"encoding/json"
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
	"mdh-device-export/internal/mdh"
	"mdh-device-export/internal/telemetry"
	telemetryotel "mdh-device-export/internal/telemetry/otel"
)

func main() {
	participants := flag.String("participants", "", "comma-separated participant identifiers")
	segment := flag.String("segment", "", "restrict to the participants of this segment")
	list := flag.Bool("list", false, "print participant records and exit")
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "mdh-surveys",
		Insecure:    cfg.OTLPInsecure,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal("telemetry", zap.Error(err))
	}
	providers.SetGlobal()
	emitter := telemetry.NewAsync(telemetryotel.NewDiagnosticEmitter(providers.LoggerProvider), logger)
	defer func() {
		emitter.Drain(context.Background())
		_ = providers.Shutdown(context.Background())
	}()

	tokens := auth.NewProvider(cfg.ServiceAccount, cfg.TokenURL, cfg.PrivateKeyPath, cfg.AssertionLifetime(), &http.Client{
		Timeout:   cfg.RequestTimeout(),
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	})
	token, err := tokens.Token(ctx)
	if err != nil {
		logger.Fatal("surveys: token", zap.Error(err))
	}
	client := mdh.NewClient(cfg.BaseURL, cfg.RequestTimeout(), logger)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if *list {
		records, err := client.ListParticipants(ctx, token, cfg.ProjectID)
		if err != nil {
			logger.Fatal("surveys: list participants", zap.Error(err), zap.Int("status", mdh.StatusCode(err)))
		}
		if err := enc.Encode(records); err != nil {
			logger.Fatal("surveys: encode", zap.Error(err))
		}
		return
	}

	var ids []string
	for _, p := range strings.Split(*participants, ",") {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	switch {
	case len(ids) > 0:
	case *segment != "":
		ids, err = client.ListSegmentParticipants(ctx, token, cfg.ProjectID, *segment, cfg.PageSize)
	default:
		ids, err = client.ListAllParticipants(ctx, token, cfg.ProjectID, cfg.PageSize)
	}
	if err != nil {
		logger.Fatal("surveys: list participants", zap.Error(err), zap.Int("status", mdh.StatusCode(err)))
	}

	events, diags, err := client.CollectSurveyEvents(ctx, token, cfg.ProjectID, ids)
	if err != nil {
		logger.Fatal("surveys: collect", zap.Error(err))
	}
	for _, d := range diags {
		logger.Warn("surveys: participant skipped",
			zap.String("participant", d.ParticipantID),
			zap.Int("status", d.StatusCode),
			zap.String("message", d.Message),
		)
		emitter.Emit(ctx, d)
	}
	if err := enc.Encode(events); err != nil {
		logger.Fatal("surveys: encode", zap.Error(err))
	}
}
