package metrics

import (
	"go.opencensus.io/tag"
)

const (
	defaultMetricsPrefix = "magneto"

	// Outcome tag values for RecordRequest.
	OutcomeReplayed  = "replayed"
	OutcomeRecorded  = "recorded"
	OutcomeForwarded = "forwarded"
	OutcomeMiss      = "miss"
	OutcomeMismatch  = "mismatch"
	OutcomeError     = "error"
	OutcomeRefused   = "refused"
)

var (
	modeTagKey, _    = tag.NewKey("mode")    //nolint:gochecknoglobals
	outcomeTagKey, _ = tag.NewKey("outcome") //nolint:gochecknoglobals
	methodTagKey, _  = tag.NewKey("method")  //nolint:gochecknoglobals
	kindTagKey, _    = tag.NewKey("kind")    //nolint:gochecknoglobals
)
