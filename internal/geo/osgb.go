// Package geo converts Ordnance Survey National Grid references to WGS84.
package geo

import (
	"errors"
	"math"
)

// ErrInvalidCoordinate is returned when a grid reference lies outside the
// National Grid envelope or does not project to a point within the UK.
var ErrInvalidCoordinate = errors.New("invalid grid coordinate")

// National Grid envelope in metres.
const (
	MaxEasting  = 700000
	MaxNorthing = 1300000
)

// Plausible WGS84 bounds for any UK grid reference.
const (
	MinLat = 49.0
	MaxLat = 61.0
	MinLng = -9.0
	MaxLng = 2.0
)

// LatLng is a WGS84 position in decimal degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the position falls inside the UK bounds.
func (p LatLng) Valid() bool {
	return p.Lat >= MinLat && p.Lat <= MaxLat && p.Lng >= MinLng && p.Lng <= MaxLng
}

type ellipsoid struct {
	a, b float64
}

func (e ellipsoid) e2() float64 {
	return 1 - (e.b*e.b)/(e.a*e.a)
}

var (
	airy1830 = ellipsoid{a: 6377563.396, b: 6356256.909}
	grs80    = ellipsoid{a: 6378137.000, b: 6356752.3142}
)

// Transverse Mercator parameters of the National Grid.
const (
	scaleF0  = 0.9996012717
	originE0 = 400000.0
	originN0 = -100000.0
)

var (
	originLat0 = 49 * math.Pi / 180
	originLon0 = -2 * math.Pi / 180
)

// helmert holds a 7-parameter similarity transform. Translations are in
// metres, scale in ppm and rotations in arc-seconds.
type helmert struct {
	tx, ty, tz float64
	s          float64
	rx, ry, rz float64
}

var osgb36ToWGS84 = helmert{
	tx: 446.448, ty: -125.157, tz: 542.060,
	s:  -20.4894,
	rx: 0.1502, ry: 0.2470, rz: 0.8421,
}

const maxIterations = 100

// InEnvelope reports whether (easting, northing) is a finite point inside the
// National Grid envelope.
func InEnvelope(easting, northing float64) bool {
	if math.IsNaN(easting) || math.IsNaN(northing) || math.IsInf(easting, 0) || math.IsInf(northing, 0) {
		return false
	}
	return easting >= 0 && easting <= MaxEasting && northing >= 0 && northing <= MaxNorthing
}

// ToWGS84 converts an OSGB36 National Grid easting/northing to WGS84.
func ToWGS84(easting, northing float64) (LatLng, error) {
	if !InEnvelope(easting, northing) {
		return LatLng{}, ErrInvalidCoordinate
	}

	lat, lon, err := inverseMercator(easting, northing)
	if err != nil {
		return LatLng{}, err
	}

	x, y, z := toCartesian(lat, lon, airy1830)
	x, y, z = osgb36ToWGS84.apply(x, y, z)
	lat, lon, err = toGeodetic(x, y, z, grs80)
	if err != nil {
		return LatLng{}, err
	}

	p := LatLng{Lat: lat * 180 / math.Pi, Lng: lon * 180 / math.Pi}
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || !p.Valid() {
		return LatLng{}, ErrInvalidCoordinate
	}
	return p, nil
}

// inverseMercator projects grid metres back to OSGB36 latitude/longitude
// (radians) following the Ordnance Survey formulae.
func inverseMercator(easting, northing float64) (float64, float64, error) {
	a, b := airy1830.a, airy1830.b
	e2 := airy1830.e2()
	n := (a - b) / (a + b)
	n2, n3 := n*n, n*n*n

	lat := originLat0
	m := 0.0
	converged := false
	for i := 0; i < maxIterations; i++ {
		lat = (northing-originN0-m)/(a*scaleF0) + lat

		dLat := lat - originLat0
		sLat := lat + originLat0
		m = b * scaleF0 * ((1+n+1.25*n2+1.25*n3)*dLat -
			(3*n+3*n2+21.0/8*n3)*math.Sin(dLat)*math.Cos(sLat) +
			(15.0/8*n2+15.0/8*n3)*math.Sin(2*dLat)*math.Cos(2*sLat) -
			35.0/24*n3*math.Sin(3*dLat)*math.Cos(3*sLat))

		if math.Abs(northing-originN0-m) < 0.00001 {
			converged = true
			break
		}
	}
	if !converged {
		return 0, 0, ErrInvalidCoordinate
	}

	sinLat, cosLat := math.Sincos(lat)
	if cosLat == 0 {
		return 0, 0, ErrInvalidCoordinate
	}
	nu := a * scaleF0 / math.Sqrt(1-e2*sinLat*sinLat)
	rho := a * scaleF0 * (1 - e2) / math.Pow(1-e2*sinLat*sinLat, 1.5)
	eta2 := nu/rho - 1

	tan := math.Tan(lat)
	tan2 := tan * tan
	tan4 := tan2 * tan2
	tan6 := tan4 * tan2
	sec := 1 / cosLat
	nu3 := nu * nu * nu
	nu5 := nu3 * nu * nu
	nu7 := nu5 * nu * nu

	vii := tan / (2 * rho * nu)
	viii := tan / (24 * rho * nu3) * (5 + 3*tan2 + eta2 - 9*tan2*eta2)
	ix := tan / (720 * rho * nu5) * (61 + 90*tan2 + 45*tan4)
	x := sec / nu
	xi := sec / (6 * nu3) * (nu/rho + 2*tan2)
	xii := sec / (120 * nu5) * (5 + 28*tan2 + 24*tan4)
	xiia := sec / (5040 * nu7) * (61 + 662*tan2 + 1320*tan4 + 720*tan6)

	dE := easting - originE0
	dE2 := dE * dE
	dE3 := dE2 * dE
	dE4 := dE3 * dE
	dE5 := dE4 * dE
	dE6 := dE5 * dE
	dE7 := dE6 * dE

	outLat := lat - vii*dE2 + viii*dE4 - ix*dE6
	outLon := originLon0 + x*dE - xi*dE3 + xii*dE5 - xiia*dE7
	return outLat, outLon, nil
}

func toCartesian(lat, lon float64, el ellipsoid) (float64, float64, float64) {
	e2 := el.e2()
	sinLat, cosLat := math.Sincos(lat)
	sinLon, cosLon := math.Sincos(lon)
	nu := el.a / math.Sqrt(1-e2*sinLat*sinLat)
	return nu * cosLat * cosLon, nu * cosLat * sinLon, (1 - e2) * nu * sinLat
}

func (h helmert) apply(x, y, z float64) (float64, float64, float64) {
	const arcsec = math.Pi / (180 * 3600)
	s1 := 1 + h.s/1e6
	rx, ry, rz := h.rx*arcsec, h.ry*arcsec, h.rz*arcsec

	return h.tx + x*s1 - y*rz + z*ry,
		h.ty + x*rz + y*s1 - z*rx,
		h.tz - x*ry + y*rx + z*s1
}

func toGeodetic(x, y, z float64, el ellipsoid) (float64, float64, error) {
	e2 := el.e2()
	p := math.Hypot(x, y)
	if p == 0 {
		return 0, 0, ErrInvalidCoordinate
	}

	lat := math.Atan2(z, p*(1-e2))
	for i := 0; i < maxIterations; i++ {
		sinLat := math.Sin(lat)
		nu := el.a / math.Sqrt(1-e2*sinLat*sinLat)
		next := math.Atan2(z+e2*nu*sinLat, p)
		if math.Abs(next-lat) < 1e-12 {
			return next, math.Atan2(y, x), nil
		}
		lat = next
	}
	return 0, 0, ErrInvalidCoordinate
}
