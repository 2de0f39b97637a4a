package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/meridianrisk/exposure-engine/internal/apperrors"
)

// FieldMapping maps a provider's logical field names (lat, lon, confidence,
// elevation_m, ...) to gjson paths into its raw JSON response, the Go
// analogue of the JSON-pointer mapping app/services/providers/base.py uses.
type FieldMapping map[string]string

// HTTPClient is satisfied by *http.Client; defined so tests can substitute
// a fake transport.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPConfig is shared by all three HTTP provider implementations.
type HTTPConfig struct {
	BaseURL      string
	APIKey       string
	APIKeyHeader string
	Mapping      FieldMapping
	Timeout      time.Duration
	Retry        RetryConfig
	Client       HTTPClient
}

func (c HTTPConfig) client() HTTPClient {
	if c.Client != nil {
		return c.Client
	}
	return &http.Client{Timeout: c.Timeout}
}

func (c HTTPConfig) headers() map[string]string {
	headers := map[string]string{}
	if c.APIKey != "" {
		header := c.APIKeyHeader
		if header == "" {
			header = "Authorization"
		}
		headers[header] = c.APIKey
	}
	return headers
}

// requestJSON posts payload and returns the raw response body, classifying
// transport/status failures into apperrors.Provider with the same
// retryable/non-retryable split as the original timeout/429/4xx/5xx table.
func requestJSON(ctx context.Context, cfg HTTPConfig, payload any) ([]byte, error) {
	if cfg.BaseURL == "" {
		return nil, apperrors.Provider(false, "provider base URL not configured", nil)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.Provider(false, "provider request encode failed", err)
	}

	var result []byte
	err = Retry(ctx, cfg.Retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL, bytes.NewReader(body))
		if err != nil {
			return apperrors.Provider(false, "provider request build failed", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range cfg.headers() {
			req.Header.Set(k, v)
		}

		resp, err := cfg.client().Do(req)
		if err != nil {
			return apperrors.Provider(true, "provider request failed", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return apperrors.Provider(true, "provider response read failed", err)
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return apperrors.Provider(true, "provider rate limited", nil)
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return apperrors.Provider(false, "provider auth error", nil)
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return apperrors.Provider(false, fmt.Sprintf("provider bad request (%d)", resp.StatusCode), nil)
		case resp.StatusCode >= 500:
			return apperrors.Provider(true, fmt.Sprintf("provider upstream error (%d)", resp.StatusCode), nil)
		}

		result = respBody
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func extract(body []byte, mapping FieldMapping, key string) gjson.Result {
	path, ok := mapping[key]
	if !ok {
		return gjson.Result{}
	}
	return gjson.GetBytes(body, path)
}

// HTTPGeocoder calls an external geocoding API and maps its JSON response
// via FieldMapping, grounded on app/services/providers/http_geocoder.py.
type HTTPGeocoder struct{ Config HTTPConfig }

func (g HTTPGeocoder) ForwardGeocode(ctx context.Context, normalizedAddress map[string]any) (GeocodeResult, error) {
	if len(g.Config.Mapping) == 0 {
		return GeocodeResult{}, apperrors.Provider(false, "geocoder mapping not configured", nil)
	}
	body, err := requestJSON(ctx, g.Config, map[string]any{"address": normalizedAddress})
	if err != nil {
		return GeocodeResult{}, err
	}

	lat := extract(body, g.Config.Mapping, "lat")
	lon := extract(body, g.Config.Mapping, "lon")
	if !lat.Exists() || !lon.Exists() {
		return GeocodeResult{}, apperrors.Provider(false, "geocoder response missing lat/lon", nil)
	}

	var raw map[string]any
	_ = json.Unmarshal(body, &raw)

	result := GeocodeResult{
		Lat:        lat.Float(),
		Lon:        lon.Float(),
		Confidence: extract(body, g.Config.Mapping, "confidence").Float(),
		Provider:   "http",
		Raw:        raw,
	}
	if elevation := extract(body, g.Config.Mapping, "elevation_m"); elevation.Exists() {
		v := elevation.Float()
		result.ElevationM = &v
	}
	return result, nil
}

// HTTPParcelProvider calls an external parcel lookup API, grounded on
// app/services/providers/http_parcel.py.
type HTTPParcelProvider struct{ Config HTTPConfig }

func (p HTTPParcelProvider) ParcelLookup(ctx context.Context, lat, lon float64) (ParcelResult, error) {
	if len(p.Config.Mapping) == 0 {
		return ParcelResult{}, apperrors.Provider(false, "parcel mapping not configured", nil)
	}
	body, err := requestJSON(ctx, p.Config, map[string]any{"lat": lat, "lon": lon})
	if err != nil {
		return ParcelResult{}, err
	}

	var raw map[string]any
	_ = json.Unmarshal(body, &raw)

	result := ParcelResult{
		Confidence: extract(body, p.Config.Mapping, "confidence").Float(),
		Provider:   "http",
		Raw:        raw,
	}
	if elevation := extract(body, p.Config.Mapping, "elevation_m"); elevation.Exists() {
		v := elevation.Float()
		result.ElevationM = &v
	}
	if veg := extract(body, p.Config.Mapping, "vegetation_proximity_m"); veg.Exists() {
		v := veg.Float()
		result.VegetationProximityM = &v
	}
	return result, nil
}

// HTTPCharacteristicsProvider calls an external characteristics API,
// grounded on app/services/providers/http_characteristics.py.
type HTTPCharacteristicsProvider struct{ Config HTTPConfig }

func (c HTTPCharacteristicsProvider) GetCharacteristics(ctx context.Context, addressFingerprint string) (CharacteristicsResult, error) {
	if len(c.Config.Mapping) == 0 {
		return CharacteristicsResult{}, apperrors.Provider(false, "characteristics mapping not configured", nil)
	}
	body, err := requestJSON(ctx, c.Config, map[string]any{"address_fingerprint": addressFingerprint})
	if err != nil {
		return CharacteristicsResult{}, err
	}

	roof := extract(body, c.Config.Mapping, "roof_material")
	veg := extract(body, c.Config.Mapping, "vegetation_proximity_m")
	if !roof.Exists() && !veg.Exists() {
		return CharacteristicsResult{}, apperrors.Provider(false, "characteristics mapping returned no fields", nil)
	}

	var raw map[string]any
	_ = json.Unmarshal(body, &raw)

	result := CharacteristicsResult{
		RoofMaterial: roof.String(),
		Provider:     "http",
		Raw:          raw,
		FieldConfidence: map[string]float64{
			"roof_material": extract(body, c.Config.Mapping, "confidence").Float(),
		},
	}
	if veg.Exists() {
		v := veg.Float()
		result.VegetationProximityM = &v
	}
	return result, nil
}
