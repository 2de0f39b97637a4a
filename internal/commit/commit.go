// Package commit implements the commit engine (C8): canonicalizes validated
// rows into Location records sorted by external_location_id and totals their
// TIV. It does not decide whether a prior commit already satisfies a
// re-commit request; that check lives in the COMMIT run handler.
package commit

import (
	"sort"
	"strconv"
	"strings"

	"github.com/meridianrisk/exposure-engine/internal/domain"
)

// MappedRow is one row after mapping-template application, keyed by
// canonical field name (the same keys internal/validation checks).
type MappedRow = map[string]string

func trimmed(row MappedRow, key string) string {
	return strings.TrimSpace(row[key])
}

func parseFloatPtr(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// BuildLocation projects one mapped row into a Location shaped struct. Lat
// may arrive under "lat" or "latitude", lon under "lon" or "longitude" —
// the same fallback key names the original ingestion supports.
func BuildLocation(row MappedRow, exposureVersionID, tenantID, defaultCurrency string) *domain.Location {
	lat := row["lat"]
	if lat == "" {
		lat = row["latitude"]
	}
	lon := row["lon"]
	if lon == "" {
		lon = row["longitude"]
	}

	currency := trimmed(row, "currency")
	if currency == "" {
		currency = defaultCurrency
	}

	return &domain.Location{
		TenantID:           tenantID,
		ExposureVersionID:  exposureVersionID,
		ExternalLocationID: trimmed(row, "external_location_id"),
		AddressLine1:       trimmed(row, "address_line1"),
		City:               trimmed(row, "city"),
		StateRegion:        strings.ToUpper(trimmed(row, "state_region")),
		PostalCode:         strings.ToUpper(strings.ReplaceAll(trimmed(row, "postal_code"), " ", "")),
		Country:            strings.ToUpper(trimmed(row, "country")),
		Latitude:           parseFloatPtr(lat),
		Longitude:          parseFloatPtr(lon),
		Currency:           currency,
		LOB:                trimmed(row, "lob"),
		ProductCode:        trimmed(row, "product_code"),
		TIV:                parseFloatPtr(row["tiv"]),
		Limit:              parseFloatPtr(row["limit"]),
		Premium:            parseFloatPtr(row["premium"]),
	}
}

// CanonicalizeRows maps and sorts rows by external_location_id, the
// ordering the commit engine persists Locations in so that bulk inserts and
// downstream diffs are deterministic regardless of upload row order.
func CanonicalizeRows(rows []MappedRow, exposureVersionID, tenantID, defaultCurrency string) []*domain.Location {
	locations := make([]*domain.Location, 0, len(rows))
	for _, row := range rows {
		locations = append(locations, BuildLocation(row, exposureVersionID, tenantID, defaultCurrency))
	}
	sort.SliceStable(locations, func(i, j int) bool {
		return locations[i].ExternalLocationID < locations[j].ExternalLocationID
	})
	return locations
}

// TIVSum totals TIV across locations, treating a nil TIV as zero.
func TIVSum(locations []*domain.Location) float64 {
	var sum float64
	for _, loc := range locations {
		if loc.TIV != nil {
			sum += *loc.TIV
		}
	}
	return sum
}
