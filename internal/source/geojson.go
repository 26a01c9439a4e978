package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"regexp"
	"strconv"
)

// GeoJSON streams the members of a FeatureCollection's top-level "features"
// array one at a time.
type GeoJSON struct {
	path        string
	opts        Options
	members     map[string]json.RawMessage
	fingerprint string
}

// Feature is one element of the features array.
type Feature struct {
	// Index is the 1-based position of the feature in the array.
	Index      int
	Type       string
	ID         json.RawMessage
	Geometry   json.RawMessage
	Properties map[string]any
}

// HasGeometry reports whether the feature carries a non-null geometry.
func (f Feature) HasGeometry() bool {
	g := bytes.TrimSpace(f.Geometry)
	return len(g) > 0 && !bytes.Equal(g, []byte("null"))
}

type featureWire struct {
	Type       string          `json:"type"`
	ID         json.RawMessage `json:"id"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

// OpenGeoJSON validates that path holds an object with a features array and
// captures the members that precede it.
func OpenGeoJSON(path string, opts Options) (*GeoJSON, error) {
	g := &GeoJSON{path: path, opts: opts}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := decodeReader(f, opts.Encoding)
	if err != nil {
		return nil, err
	}
	members, err := seekFeatures(json.NewDecoder(r))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	g.members = members
	return g, nil
}

// seekFeatures advances dec to just inside the top-level features array and
// returns the members read on the way.
func seekFeatures(dec *json.Decoder) (map[string]json.RawMessage, error) {
	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, ErrNoFeatures
	}

	members := map[string]json.RawMessage{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		if key == "features" {
			tok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			if d, ok := tok.(json.Delim); !ok || d != '[' {
				return nil, ErrNoFeatures
			}
			return members, nil
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("member %q: %w", key, err)
		}
		members[key] = raw
	}
	return nil, ErrNoFeatures
}

// Path is the file this source reads.
func (g *GeoJSON) Path() string { return g.path }

// Members returns the top-level members that appear before "features".
func (g *GeoJSON) Members() map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(g.members))
	for k, v := range g.members {
		out[k] = v
	}
	return out
}

var epsgRe = regexp.MustCompile(`EPSG:{1,2}(\d+)`)

// CRS returns the EPSG code named by the document's crs member, or 4326 when
// there is none. ok is false when a crs member exists but cannot be read.
func (g *GeoJSON) CRS() (int, bool) {
	raw, found := g.members["crs"]
	if !found {
		return 4326, true
	}
	var crs struct {
		Properties struct {
			Name string `json:"name"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(raw, &crs); err != nil {
		return 4326, false
	}
	if crs.Properties.Name == "urn:ogc:def:crs:OGC:1.3:CRS84" {
		return 4326, true
	}
	m := epsgRe.FindStringSubmatch(crs.Properties.Name)
	if m == nil {
		return 4326, false
	}
	srid, err := strconv.Atoi(m[1])
	if err != nil {
		return 4326, false
	}
	return srid, true
}

// Features yields each feature in document order. An element that is not a
// Feature object is yielded as *RowError; a syntax error ends the sequence.
func (g *GeoJSON) Features() iter.Seq2[Feature, error] {
	return func(yield func(Feature, error) bool) {
		f, err := os.Open(g.path)
		if err != nil {
			yield(Feature{}, err)
			return
		}
		defer f.Close()

		r, err := decodeReader(f, g.opts.Encoding)
		if err != nil {
			yield(Feature{}, err)
			return
		}
		dec := json.NewDecoder(r)
		if _, err := seekFeatures(dec); err != nil {
			yield(Feature{}, fmt.Errorf("%s: %w", g.path, err))
			return
		}

		idx := 0
		for dec.More() {
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				yield(Feature{}, fmt.Errorf("%s: feature %d: %w", g.path, idx+1, err))
				return
			}
			idx++

			feat, err := parseFeature(raw)
			if err != nil {
				if !yield(Feature{}, &RowError{Line: idx, Err: err}) {
					return
				}
				continue
			}
			feat.Index = idx
			if !yield(feat, nil) {
				return
			}
		}
	}
}

func parseFeature(raw json.RawMessage) (Feature, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var w featureWire
	if err := dec.Decode(&w); err != nil {
		return Feature{}, err
	}
	if w.Type != "Feature" {
		return Feature{}, fmt.Errorf("expected Feature, got %q", w.Type)
	}
	return Feature{
		Type:       w.Type,
		ID:         w.ID,
		Geometry:   w.Geometry,
		Properties: w.Properties,
	}, nil
}

// Count walks the features array once, returning the number of elements and
// recording a fingerprint of the file's bytes.
func (g *GeoJSON) Count(ctx context.Context) (int64, error) {
	f, err := os.Open(g.path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := newFingerprint()
	r, err := decodeReader(io.TeeReader(f, h), g.opts.Encoding)
	if err != nil {
		return 0, err
	}
	dec := json.NewDecoder(r)
	if _, err := seekFeatures(dec); err != nil {
		return 0, fmt.Errorf("%s: %w", g.path, err)
	}

	var n int64
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return n, fmt.Errorf("%s: feature %d: %w", g.path, n+1, err)
		}
		n++
		if n%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return n, err
			}
		}
	}
	// Drain the rest so the fingerprint covers the whole file.
	if _, err := io.Copy(io.Discard, r); err != nil {
		return n, err
	}
	g.fingerprint = sum(h)
	return n, nil
}

// Fingerprint is the hex BLAKE2b-256 of the file as read by the last Count.
func (g *GeoJSON) Fingerprint() string { return g.fingerprint }
