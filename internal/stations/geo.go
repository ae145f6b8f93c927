package stations

import "math"

// earthRadiusMeters is the mean Earth radius.
const earthRadiusMeters = 6371010.0

// distanceMeters returns the great-circle distance between two points. Station
// lookups are short range, so an equirectangular approximation is used below
// ~20km and the spherical law of cosines otherwise.
func distanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	dLat := lat2Rad - lat1Rad
	dLon := (lon2 - lon1) * math.Pi / 180

	if math.Abs(lat2-lat1) < 0.2 && math.Abs(lon2-lon1) < 0.2 {
		x := dLon * math.Cos((lat1Rad+lat2Rad)/2)
		return earthRadiusMeters * math.Sqrt(x*x+dLat*dLat)
	}

	cos := math.Sin(lat1Rad)*math.Sin(lat2Rad) + math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Cos(dLon)
	return earthRadiusMeters * math.Acos(math.Max(-1, math.Min(1, cos)))
}

// boundingBox returns the [lon, lat] corners of a box that contains every
// point within radius meters of (lat, lon).
func boundingBox(lat, lon, radius float64) (lo, hi [2]float64) {
	latOffset := radius / earthRadiusMeters * 180 / math.Pi
	lonRadius := math.Cos(lat*math.Pi/180) * earthRadiusMeters
	lonOffset := 180.0
	if lonRadius > 1 {
		lonOffset = radius / lonRadius * 180 / math.Pi
	}
	return [2]float64{lon - lonOffset, lat - latOffset}, [2]float64{lon + lonOffset, lat + latOffset}
}
