package source

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

const wardCollection = `{
  "type": "FeatureCollection",
  "name": "WD_MAY_2025_UK_BFC",
  "crs": {"type": "name", "properties": {"name": "urn:ogc:def:crs:EPSG::27700"}},
  "features": [
    {"type": "Feature", "properties": {"WD25CD": "E05000001", "Shape__Area": 1234.5},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,0]]]}},
    42,
    {"type": "Feature", "properties": {"WD25CD": "E05000002"}, "geometry": null}
  ]
}`

func TestGeoJSON_MembersAndCRS(t *testing.T) {
	p := writeFile(t, "wards.geojson", wardCollection)
	g, err := OpenGeoJSON(p, Options{})
	if err != nil {
		t.Fatalf("OpenGeoJSON: %v", err)
	}

	m := g.Members()
	var name string
	if err := json.Unmarshal(m["name"], &name); err != nil || name != "WD_MAY_2025_UK_BFC" {
		t.Errorf("name member = %q (%v)", name, err)
	}
	if srid, ok := g.CRS(); !ok || srid != 27700 {
		t.Errorf("CRS() = %d, %v", srid, ok)
	}
}

func TestGeoJSON_FeaturesStreamAndRestart(t *testing.T) {
	p := writeFile(t, "wards.geojson", wardCollection)
	g, err := OpenGeoJSON(p, Options{})
	if err != nil {
		t.Fatalf("OpenGeoJSON: %v", err)
	}

	for pass := 0; pass < 2; pass++ {
		var feats []Feature
		rowErrs := 0
		for f, err := range g.Features() {
			if err != nil {
				if !IsRowError(err) {
					t.Fatalf("unexpected error: %v", err)
				}
				rowErrs++
				continue
			}
			feats = append(feats, f)
		}
		if len(feats) != 2 || rowErrs != 1 {
			t.Fatalf("pass %d: features=%d rowErrs=%d", pass, len(feats), rowErrs)
		}
		if feats[0].Index != 1 || feats[1].Index != 3 {
			t.Errorf("indexes = %d, %d", feats[0].Index, feats[1].Index)
		}
		if !feats[0].HasGeometry() || feats[1].HasGeometry() {
			t.Error("HasGeometry mismatch")
		}
		if _, ok := feats[0].Properties["Shape__Area"].(json.Number); !ok {
			t.Errorf("numbers should decode as json.Number, got %T", feats[0].Properties["Shape__Area"])
		}
	}

	n, err := g.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Errorf("Count = %d, want 3", n)
	}
	if len(g.Fingerprint()) != 64 {
		t.Errorf("Fingerprint = %q", g.Fingerprint())
	}
}

func TestGeoJSON_DefaultCRS(t *testing.T) {
	p := writeFile(t, "plain.geojson", `{"type":"FeatureCollection","features":[]}`)
	g, err := OpenGeoJSON(p, Options{})
	if err != nil {
		t.Fatalf("OpenGeoJSON: %v", err)
	}
	if srid, ok := g.CRS(); !ok || srid != 4326 {
		t.Errorf("CRS() = %d, %v", srid, ok)
	}
	n, err := g.Count(context.Background())
	if err != nil || n != 0 {
		t.Errorf("Count = %d, %v", n, err)
	}
}

func TestOpenGeoJSON_NoFeatures(t *testing.T) {
	for name, body := range map[string]string{
		"no-array":  `{"type":"FeatureCollection"}`,
		"not-array": `{"features": {}}`,
		"root-list": `[1,2]`,
	} {
		p := writeFile(t, name+".geojson", body)
		if _, err := OpenGeoJSON(p, Options{}); !errors.Is(err, ErrNoFeatures) {
			t.Errorf("%s: err = %v, want ErrNoFeatures", name, err)
		}
	}
}

func TestGeoJSON_SyntaxErrorEndsSequence(t *testing.T) {
	p := writeFile(t, "broken.geojson", `{"features":[{"type":"Feature","properties":{}}, {"type": }]}`)
	g, err := OpenGeoJSON(p, Options{})
	if err != nil {
		t.Fatalf("OpenGeoJSON: %v", err)
	}
	var fatal error
	ok := 0
	for _, err := range g.Features() {
		if err != nil {
			fatal = err
			continue
		}
		ok++
	}
	if ok != 1 || fatal == nil || IsRowError(fatal) {
		t.Errorf("ok=%d fatal=%v", ok, fatal)
	}
}
