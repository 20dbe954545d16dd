// Package evidence assembles the per-day bundle of raw signals the pipeline
// reconciles against: location fixes and hourly aggregates, screen-time app
// sessions, health workouts and daily metrics, and the user's labeled
// places.
package evidence

import (
	"math"
	"sort"
	"time"

	"github.com/daverage/planfact/internal/classify"
)

// LocationHourly is a one-hour aggregate of location fixes.
type LocationHourly struct {
	Hour        int // 0-23, local
	PlaceID     string
	PlaceLabel  string
	SampleCount int
	Confidence  float64
}

// LocationSample is a single location fix.
type LocationSample struct {
	Time     time.Time
	Lat      float64
	Lon      float64
	Accuracy float64
	PlaceID  string
}

// ScreenSession is one app-usage session reported by the screen-time
// collector.
type ScreenSession struct {
	ID      string
	App     string
	Started time.Time
	Ended   time.Time
}

// Minutes returns the session length in whole minutes.
func (s ScreenSession) Minutes() int {
	return int(s.Ended.Sub(s.Started).Minutes())
}

// HealthWorkout is a workout recorded by the health collector.
type HealthWorkout struct {
	ID       string
	Activity string
	Started  time.Time
	Ended    time.Time
}

// DailyMetrics are the day-level health aggregates.
type DailyMetrics struct {
	Sleep    classify.SleepMetrics
	Steps    *int
	ActiveKJ *float64
}

// OptionalDaily makes "no daily health row" a first-class case rather than
// a nil threaded through the verification layers.
type OptionalDaily struct {
	Present bool
	Metrics DailyMetrics
}

// SomeDaily wraps metrics as present.
func SomeDaily(m DailyMetrics) OptionalDaily {
	return OptionalDaily{Present: true, Metrics: m}
}

// NoDaily is the absent case.
func NoDaily() OptionalDaily {
	return OptionalDaily{}
}

// UserPlace is a labeled place with a matching radius.
type UserPlace struct {
	ID      string
	Label   string
	Lat     float64
	Lon     float64
	RadiusM float64
}

// Contains reports whether a fix falls inside the place's radius. This is a
// flat-earth approximation, good enough at city scale; exact geofencing is
// out of scope.
func (p UserPlace) Contains(lat, lon float64) bool {
	const metersPerDegree = 111_320.0
	dLat := (lat - p.Lat) * metersPerDegree
	dLon := (lon - p.Lon) * metersPerDegree * math.Cos(p.Lat*math.Pi/180)
	return math.Sqrt(dLat*dLat+dLon*dLon) <= p.RadiusM
}

// DeriveHourlyFromSamples attributes raw fixes to labeled places and
// aggregates them into hourly rows; the fallback when the collector shipped
// no hourly aggregates. A sample's own place id wins; otherwise the first
// place whose radius contains the fix is used. Hours where no sample
// resolves to a place produce no row.
func DeriveHourlyFromSamples(samples []LocationSample, places []UserPlace) []LocationHourly {
	type bucket struct {
		counts map[string]int
		total  int
	}
	byHour := make(map[int]*bucket)
	labels := make(map[string]string, len(places))
	for _, p := range places {
		labels[p.ID] = p.Label
	}

	for _, s := range samples {
		placeID := s.PlaceID
		if placeID == "" {
			for _, p := range places {
				if p.Contains(s.Lat, s.Lon) {
					placeID = p.ID
					break
				}
			}
		}
		hour := s.Time.Hour()
		b := byHour[hour]
		if b == nil {
			b = &bucket{counts: make(map[string]int)}
			byHour[hour] = b
		}
		b.total++
		if placeID != "" {
			b.counts[placeID]++
		}
	}

	var rows []LocationHourly
	for hour, b := range byHour {
		ids := make([]string, 0, len(b.counts))
		for id := range b.counts {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		bestID, bestCount := "", 0
		for _, id := range ids {
			if b.counts[id] > bestCount {
				bestID, bestCount = id, b.counts[id]
			}
		}
		if bestID == "" {
			continue
		}
		rows = append(rows, LocationHourly{
			Hour:        hour,
			PlaceID:     bestID,
			PlaceLabel:  labels[bestID],
			SampleCount: b.total,
			Confidence:  float64(bestCount) / float64(b.total),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Hour < rows[j].Hour })
	return rows
}

// Bundle is the per-day collection of evidence for one user. Sub-sources
// may be empty; consumers must tolerate that.
type Bundle struct {
	YMD                string
	LocationHourly     []LocationHourly
	LocationSamples    []LocationSample
	ScreenTimeSessions []ScreenSession
	HealthWorkouts     []HealthWorkout
	HealthDaily        OptionalDaily
	UserPlaces         []UserPlace
}

// IsEmpty reports whether no sub-source carried any signal.
func (b Bundle) IsEmpty() bool {
	return len(b.LocationHourly) == 0 &&
		len(b.LocationSamples) == 0 &&
		len(b.ScreenTimeSessions) == 0 &&
		len(b.HealthWorkouts) == 0 &&
		!b.HealthDaily.Present
}
