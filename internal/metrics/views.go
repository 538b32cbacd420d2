package metrics

import (
	"sync"

	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

//nolint:gochecknoglobals
var (
	registerViewsOnce sync.Once
	registerViewsErr  error

	requestView = &view.View{
		Measure:     requestMeasure,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{modeTagKey, methodTagKey, outcomeTagKey},
	}
	inflightView = &view.View{
		Measure:     inflightMeasure,
		Aggregation: view.Sum(),
	}
	interactionView = &view.View{
		Measure:     interactionMeasure,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{kindTagKey},
	}
	latencyView = &view.View{
		Measure:     latencyMeasure,
		Aggregation: view.Distribution(5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000),
		TagKeys:     []tag.Key{methodTagKey},
	}
)

func getViews() []*view.View {
	return []*view.View{requestView, inflightView, interactionView, latencyView}
}

// RegisterViews makes the measures visible to exporters. It only has an effect the first time.
func RegisterViews() error {
	registerViewsOnce.Do(func() {
		if err := view.Register(getViews()...); err != nil {
			registerViewsErr = errRegisterViews(err)
		}
	})
	return registerViewsErr
}
