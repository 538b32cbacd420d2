package metrics

import (
	"context"
	"strings"
	"time"

	"github.com/magneto-serge/magneto/internal/logging"

	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
)

//nolint:gochecknoglobals
var (
	requestMeasure     = stats.Int64("requests", "proxied requests by mode and outcome", stats.UnitDimensionless)
	inflightMeasure    = stats.Int64("inflight_requests", "requests currently being handled", stats.UnitDimensionless)
	interactionMeasure = stats.Int64("interactions_recorded", "interactions appended to a cassette", stats.UnitDimensionless)
	latencyMeasure     = stats.Float64("upstream_latency", "time until an upstream server responded", stats.UnitMilliseconds)
)

// RecordRequest counts one handled request.
func RecordRequest(ctx context.Context, mode, method, outcome string) {
	tagCtx, err := tag.New(ctx,
		tag.Insert(modeTagKey, sanitizeTagValue(mode)),
		tag.Insert(methodTagKey, sanitizeTagValue(method)),
		tag.Insert(outcomeTagKey, sanitizeTagValue(outcome)),
	)
	if err != nil {
		logging.GetGlobalContextLoggers(ctx).Errorf(logMsgTagsFailed, err)
		return
	}
	stats.Record(tagCtx, requestMeasure.M(1))
}

// RecordInteraction counts one interaction appended to a cassette.
func RecordInteraction(ctx context.Context, kind string) {
	tagCtx, err := tag.New(ctx, tag.Insert(kindTagKey, sanitizeTagValue(kind)))
	if err != nil {
		logging.GetGlobalContextLoggers(ctx).Errorf(logMsgTagsFailed, err)
		return
	}
	stats.Record(tagCtx, interactionMeasure.M(1))
}

// RecordUpstreamLatency records how long an upstream server took to respond.
func RecordUpstreamLatency(ctx context.Context, method string, d time.Duration) {
	tagCtx, err := tag.New(ctx, tag.Insert(methodTagKey, sanitizeTagValue(method)))
	if err != nil {
		logging.GetGlobalContextLoggers(ctx).Errorf(logMsgTagsFailed, err)
		return
	}
	stats.Record(tagCtx, latencyMeasure.M(float64(d)/float64(time.Millisecond)))
}

// WithInflight runs f while the request is counted as in flight.
func WithInflight(ctx context.Context, f func()) {
	stats.Record(ctx, inflightMeasure.M(1))
	defer stats.Record(ctx, inflightMeasure.M(-1))
	f()
}

// Pad empty keys to match tag keyset cardinality since empty strings are dropped
func sanitizeTagValue(v string) string {
	if strings.TrimSpace(v) == "" {
		return "_"
	}
	return strings.ReplaceAll(v, "/", "_")
}
