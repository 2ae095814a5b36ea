package location

import (
	"slices"

	"github.com/nao1215/linkforensics/internal/model"
)

// Reducer keeps the best reading seen so far. Readings can be added in any
// order; the result depends only on the set of readings.
type Reducer struct {
	best     *model.Reading
	readings map[model.Method]model.Reading
}

// NewReducer creates an empty Reducer.
func NewReducer() *Reducer {
	return &Reducer{readings: make(map[model.Method]model.Reading)}
}

// Add records a reading. A second reading for the same method replaces the
// first one as a source but can still only improve the best position.
func (r *Reducer) Add(rd model.Reading) {
	r.readings[rd.Method] = rd
	if r.best == nil || better(rd, *r.best) {
		v := rd
		r.best = &v
	}
}

// better orders readings by accuracy, then by canonical method order.
func better(a, b model.Reading) bool {
	if a.AccuracyMeters != b.AccuracyMeters {
		return a.AccuracyMeters < b.AccuracyMeters
	}
	return a.Method.Rank() < b.Method.Rank()
}

// Result returns the best location, or nil when nothing was added.
func (r *Reducer) Result() *model.BestLocation {
	if r.best == nil {
		return nil
	}
	sources := make([]model.Method, 0, len(r.readings))
	for m := range r.readings {
		sources = append(sources, m)
	}
	slices.SortFunc(sources, func(a, b model.Method) int {
		return a.Rank() - b.Rank()
	})

	readings := make(map[model.Method]model.Reading, len(r.readings))
	for m, rd := range r.readings {
		readings[m] = rd
	}
	return &model.BestLocation{
		Latitude:       r.best.Latitude,
		Longitude:      r.best.Longitude,
		AccuracyMeters: r.best.AccuracyMeters,
		Method:         r.best.Method,
		Confidence:     model.LocationConfidence(len(sources)),
		Sources:        sources,
		Readings:       readings,
	}
}

// Reduce is the offline form of Reducer.
func Reduce(readings []model.Reading) *model.BestLocation {
	r := NewReducer()
	for _, rd := range readings {
		r.Add(rd)
	}
	return r.Result()
}
