package providers

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedGeocoder wraps a Geocoder with a per-process token-bucket
// limiter, applied before the retry wrapper so a provider never burns
// retry attempts against a limit it already knows it will hit.
type RateLimitedGeocoder struct {
	Geocoder
	Limiter *rate.Limiter
}

func (r RateLimitedGeocoder) ForwardGeocode(ctx context.Context, normalizedAddress map[string]any) (GeocodeResult, error) {
	if err := r.Limiter.Wait(ctx); err != nil {
		return GeocodeResult{}, err
	}
	return r.Geocoder.ForwardGeocode(ctx, normalizedAddress)
}

// RateLimitedParcelProvider is the ParcelProvider analogue.
type RateLimitedParcelProvider struct {
	ParcelProvider
	Limiter *rate.Limiter
}

func (r RateLimitedParcelProvider) ParcelLookup(ctx context.Context, lat, lon float64) (ParcelResult, error) {
	if err := r.Limiter.Wait(ctx); err != nil {
		return ParcelResult{}, err
	}
	return r.ParcelProvider.ParcelLookup(ctx, lat, lon)
}

// RateLimitedCharacteristicsProvider is the CharacteristicsProvider analogue.
type RateLimitedCharacteristicsProvider struct {
	CharacteristicsProvider
	Limiter *rate.Limiter
}

func (r RateLimitedCharacteristicsProvider) GetCharacteristics(ctx context.Context, addressFingerprint string) (CharacteristicsResult, error) {
	if err := r.Limiter.Wait(ctx); err != nil {
		return CharacteristicsResult{}, err
	}
	return r.CharacteristicsProvider.GetCharacteristics(ctx, addressFingerprint)
}
