package geo

import (
	"errors"
	"math"
	"testing"
)

func TestToWGS84_KnownPoints(t *testing.T) {
	tests := []struct {
		name     string
		e, n     float64
		lat, lng float64
	}{
		// Ordnance Survey worked example (Caister water tower).
		{name: "caister", e: 651409.903, n: 313177.270, lat: 52.657979, lng: 1.716052},
		{name: "westminster", e: 530268, n: 179640, lat: 51.500694, lng: -0.124628},
		{name: "aberdeenshire", e: 385000, n: 801000, lat: 57.099728, lng: -2.249211},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ToWGS84(tc.e, tc.n)
			if err != nil {
				t.Fatalf("ToWGS84(%v, %v) error: %v", tc.e, tc.n, err)
			}
			if math.Abs(got.Lat-tc.lat) > 1e-5 || math.Abs(got.Lng-tc.lng) > 1e-5 {
				t.Errorf("ToWGS84(%v, %v) = %+v, want (%v, %v)", tc.e, tc.n, got, tc.lat, tc.lng)
			}
		})
	}
}

func TestToWGS84_OutsideEnvelope(t *testing.T) {
	bad := [][2]float64{
		{-1, 100000},
		{999999, 100000},
		{100000, -5},
		{100000, 1300001},
		{math.NaN(), 100000},
		{100000, math.Inf(1)},
	}
	for _, p := range bad {
		if _, err := ToWGS84(p[0], p[1]); !errors.Is(err, ErrInvalidCoordinate) {
			t.Errorf("ToWGS84(%v, %v) err = %v, want ErrInvalidCoordinate", p[0], p[1], err)
		}
	}
}

// Every point in the envelope either converts into UK bounds or is rejected;
// none may come back outside the bounds.
func TestToWGS84_ResultsStayInUKBounds(t *testing.T) {
	ok := 0
	for e := 0.0; e <= MaxEasting; e += 25000 {
		for n := 0.0; n <= MaxNorthing; n += 25000 {
			p, err := ToWGS84(e, n)
			if err != nil {
				if !errors.Is(err, ErrInvalidCoordinate) {
					t.Fatalf("ToWGS84(%v, %v) unexpected error: %v", e, n, err)
				}
				continue
			}
			ok++
			if !p.Valid() {
				t.Fatalf("ToWGS84(%v, %v) = %+v outside UK bounds", e, n, p)
			}
		}
	}
	if ok == 0 {
		t.Fatal("expected some conversions to succeed")
	}
}

func TestToWGS84_RejectsSeaCorners(t *testing.T) {
	// The south-east and north-east corners of the grid lie east of 2°E.
	for _, p := range [][2]float64{{700000, 0}, {700000, 1300000}} {
		if _, err := ToWGS84(p[0], p[1]); !errors.Is(err, ErrInvalidCoordinate) {
			t.Errorf("ToWGS84(%v, %v) err = %v, want ErrInvalidCoordinate", p[0], p[1], err)
		}
	}
}

func TestInEnvelope(t *testing.T) {
	if !InEnvelope(0, 0) || !InEnvelope(MaxEasting, MaxNorthing) {
		t.Error("envelope bounds should be inclusive")
	}
	if InEnvelope(MaxEasting+1, 0) {
		t.Error("easting beyond envelope accepted")
	}
}
