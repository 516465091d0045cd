package matching_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"builderpulse/notification-service/internal/matching"
	"builderpulse/notification-service/internal/model"
)

func ptr(f float64) *float64 { return &f }

func TestHasTrade(t *testing.T) {
	trades := []string{"Roofing", " plumbing "}

	assert.True(t, matching.HasTrade(trades, "roofing"))
	assert.True(t, matching.HasTrade(trades, "PLUMBING"))
	assert.False(t, matching.HasTrade(trades, "Carpentry"))
	assert.False(t, matching.HasTrade(trades, ""))
	assert.False(t, matching.HasTrade(nil, "Roofing"))
}

func TestEligible_SameCity(t *testing.T) {
	p := model.ContractorProfile{Trades: []string{"Plumbing"}, ServiceCity: "Leeds"}
	job := model.Job{Trade: "plumbing", City: "leeds"}

	assert.True(t, matching.Eligible(p, job))
}

func TestEligible_WrongTrade(t *testing.T) {
	p := model.ContractorProfile{Trades: []string{"Roofing"}, ServiceCity: "Leeds"}
	job := model.Job{Trade: "Plumbing", City: "Leeds"}

	assert.False(t, matching.Eligible(p, job))
}

// Leeds to York is roughly 35 km.
func TestEligible_Radius(t *testing.T) {
	p := model.ContractorProfile{
		Trades:    []string{"Carpentry"},
		Latitude:  ptr(53.8008),
		Longitude: ptr(-1.5491),
	}
	job := model.Job{Trade: "Carpentry", City: "York", Latitude: ptr(53.9600), Longitude: ptr(-1.0873)}

	p.ServiceRadiusKm = 50
	assert.True(t, matching.Eligible(p, job))

	p.ServiceRadiusKm = 20
	assert.False(t, matching.Eligible(p, job))
}

func TestEligible_MissingCoordinates(t *testing.T) {
	p := model.ContractorProfile{Trades: []string{"Carpentry"}, ServiceRadiusKm: 100, Latitude: ptr(53.8), Longitude: ptr(-1.5)}
	job := model.Job{Trade: "Carpentry", City: "York"}

	assert.False(t, matching.Eligible(p, job))
}

func TestEligible_BlankCityNeverMatches(t *testing.T) {
	p := model.ContractorProfile{Trades: []string{"Carpentry"}}
	job := model.Job{Trade: "Carpentry"}

	assert.False(t, matching.Eligible(p, job))
}

func TestDistanceKm(t *testing.T) {
	assert.InDelta(t, 0, matching.DistanceKm(51.5, -0.12, 51.5, -0.12), 1e-9)
	// London to Paris, ~344 km.
	assert.InDelta(t, 344, matching.DistanceKm(51.5074, -0.1278, 48.8566, 2.3522), 5)
}
