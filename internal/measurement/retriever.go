// Package measurement fetches device data points for abstract measurement names, translated per namespace,
// and assembles them into per-participant, per-measurement tables.
package measurement

import (
	"context"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mdh-device-export/internal/mdh"
)

const instrumentationName = "mdh-device-export/internal/measurement"

// Result is the outcome of a Fetch: the tables that have points and a diagnostic for every pair that does not.
type Result struct {
	Records     ResultSet
	Diagnostics []mdh.Diagnostic
}

// Retriever fetches device data points for one namespace.
type Retriever struct {
	client      *mdh.Client
	ns          Namespace
	concurrency int
	logger      *zap.Logger

	pointsFetched metric.Int64Counter
	pairsSkipped  metric.Int64Counter
}

// NewRetriever returns a Retriever for ns. concurrency bounds how many participants are fetched
// at once; values below 1 mean one at a time.
func NewRetriever(client *mdh.Client, ns Namespace, concurrency int, logger *zap.Logger) *Retriever {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Retriever{
		client:      client,
		ns:          ns,
		concurrency: concurrency,
		logger:      logger.With(zap.String("namespace", ns.Name)),
	}
	meter := otel.Meter(instrumentationName)
	var err error
	if r.pointsFetched, err = meter.Int64Counter("mdh.points.fetched",
		metric.WithDescription("Device data points fetched")); err != nil {
		r.pointsFetched = noop.Int64Counter{}
	}
	if r.pairsSkipped, err = meter.Int64Counter("mdh.pairs.skipped",
		metric.WithDescription("Participant/measurement pairs that produced no records")); err != nil {
		r.pairsSkipped = noop.Int64Counter{}
	}
	return r
}

// Namespace returns the namespace this Retriever serves.
func (r *Retriever) Namespace() Namespace { return r.ns }

type participantResult struct {
	tables map[string]*Table
	diags  []mdh.Diagnostic
}

// Fetch retrieves every measurement in spec for every participant. Unsupported names, non-2xx
// responses, failed requests and empty results become diagnostics and never stop the run;
// only cancellation of ctx does. Output is identical whatever the concurrency.
func (r *Retriever) Fetch(ctx context.Context, token, projectID string, participantIDs []string, spec Spec) (res *Result, err error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "measurement.Fetch")
	span.SetAttributes(
		attribute.String("mdh.namespace", r.ns.Name),
		attribute.Int("mdh.participants", len(participantIDs)),
		attribute.StringSlice("mdh.measurements", spec.Measurements),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	per := make([]participantResult, len(participantIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, pid := range participantIDs {
		g.Go(func() error {
			pr, err := r.fetchParticipant(gctx, token, projectID, pid, spec)
			if err != nil {
				return err
			}
			per[i] = pr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res = &Result{Records: make(ResultSet, len(participantIDs))}
	for i, pid := range participantIDs {
		res.Records[pid] = per[i].tables
		res.Diagnostics = append(res.Diagnostics, per[i].diags...)
	}
	return res, nil
}

func (r *Retriever) fetchParticipant(ctx context.Context, token, projectID, pid string, spec Spec) (participantResult, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "measurement.fetchParticipant",
		trace.WithAttributes(attribute.String("mdh.participant_id", pid)))
	defer span.End()

	out := participantResult{tables: make(map[string]*Table)}
	path := r.ns.pointsPath(projectID)
	observedAfter, observedBefore := spec.ObservedAfter(), spec.ObservedBefore()

	for _, meas := range spec.Measurements {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		deviceType, ok := r.ns.DeviceType(meas)
		if !ok {
			out.diags = append(out.diags, r.diagnose(ctx, mdh.Diagnostic{
				Kind:          mdh.DiagUnsupported,
				ParticipantID: pid,
				Measurement:   meas,
				Message:       "no device data type in " + r.ns.Name,
			}))
			continue
		}

		q := url.Values{}
		q.Set("namespace", r.ns.Name)
		q.Set("type", deviceType)
		q.Set("participantIdentifier", pid)
		if observedAfter != "" {
			q.Set("observedAfter", observedAfter)
		}
		if observedBefore != "" {
			q.Set("observedBefore", observedBefore)
		}

		resp, err := r.client.Get(ctx, token, path, q, false)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			out.diags = append(out.diags, r.diagnose(ctx, mdh.Diagnostic{
				Kind: mdh.DiagFailed, ParticipantID: pid, Measurement: meas, Message: err.Error(),
			}))
			continue
		}
		if !resp.OK() {
			out.diags = append(out.diags, r.diagnose(ctx, mdh.Diagnostic{
				Kind: mdh.DiagSkipped, ParticipantID: pid, Measurement: meas,
				StatusCode: resp.StatusCode, Message: string(resp.Body),
			}))
			continue
		}

		var body struct {
			DeviceDataPoints []map[string]any `json:"deviceDataPoints"`
		}
		if err := resp.Decode(&body); err != nil {
			out.diags = append(out.diags, r.diagnose(ctx, mdh.Diagnostic{
				Kind: mdh.DiagFailed, ParticipantID: pid, Measurement: meas, Message: err.Error(),
			}))
			continue
		}
		if len(body.DeviceDataPoints) == 0 {
			out.diags = append(out.diags, r.diagnose(ctx, mdh.Diagnostic{
				Kind: mdh.DiagEmpty, ParticipantID: pid, Measurement: meas,
			}))
			continue
		}

		out.tables[meas] = newTable(pid, meas, body.DeviceDataPoints)
		r.pointsFetched.Add(ctx, int64(len(body.DeviceDataPoints)),
			metric.WithAttributes(attribute.String("namespace", r.ns.Name), attribute.String("measurement", meas)))
	}
	return out, nil
}

// diagnose stamps the namespace, counts and logs d, and returns it.
func (r *Retriever) diagnose(ctx context.Context, d mdh.Diagnostic) mdh.Diagnostic {
	d.Namespace = r.ns.Name
	r.pairsSkipped.Add(ctx, 1,
		metric.WithAttributes(attribute.String("namespace", r.ns.Name), attribute.String("kind", string(d.Kind))))
	r.logger.Debug("pair skipped",
		zap.String("kind", string(d.Kind)),
		zap.String("participant", d.ParticipantID),
		zap.String("measurement", d.Measurement),
		zap.Int("status", d.StatusCode),
	)
	return d
}
