// Package matching decides which contractors should hear about a job.
package matching

import (
	"math"
	"strings"

	"builderpulse/notification-service/internal/model"
)

const earthRadiusKm = 6371.0

// Eligible returns true when the contractor works the job's trade and the
// job lies inside the contractor's service area.
//
// The service area is either the contractor's city (case-insensitive match)
// or, when both sides have coordinates, a circle of ServiceRadiusKm around
// the contractor's location.
func Eligible(p model.ContractorProfile, job model.Job) bool {
	if !HasTrade(p.Trades, job.Trade) {
		return false
	}
	if p.ServiceCity != "" && sameText(p.ServiceCity, job.City) {
		return true
	}
	if p.ServiceRadiusKm <= 0 || p.Latitude == nil || p.Longitude == nil ||
		job.Latitude == nil || job.Longitude == nil {
		return false
	}
	return DistanceKm(*p.Latitude, *p.Longitude, *job.Latitude, *job.Longitude) <= p.ServiceRadiusKm
}

// HasTrade reports whether trade appears in trades, ignoring case and
// surrounding whitespace.
func HasTrade(trades []string, trade string) bool {
	if strings.TrimSpace(trade) == "" {
		return false
	}
	for _, t := range trades {
		if sameText(t, trade) {
			return true
		}
	}
	return false
}

// DistanceKm is the great-circle distance between two points.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

func sameText(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}
