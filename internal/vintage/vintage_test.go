package vintage

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestFromFilename(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Wards_December_2024_Boundaries_EN_BFC.geojson", "2024-12-01"},
		{"WD_MAY_2025_UK_BFC_V2.geojson", "2025-05-01"},
		{"Police_Force_Areas_December_2023_EW_BUC.geojson", "2023-12-01"},
		{"/data/raw/ONSUD_MAY_2025_EE.csv", "2025-05-01"},
		{"NSPL21_FEB_2025_UK.csv", "2025-02-01"},
		{"Local_Authority_Districts_sept_2022_Boundaries_UK_BGC.geojson", "2022-09-01"},
		{"Counties_May_2023_EN_BFC.geojson", "2023-05-01"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := FromFilename(tc.name)
			if err != nil {
				t.Fatalf("FromFilename(%q) error: %v", tc.name, err)
			}
			if got.Format(time.DateOnly) != tc.want {
				t.Errorf("FromFilename(%q) = %s, want %s", tc.name, got.Format(time.DateOnly), tc.want)
			}
		})
	}
}

func TestFromFilename_NoMatch(t *testing.T) {
	for _, name := range []string{
		"boundaries.geojson",
		"wards_2024.csv",
		"WD_XYZ_2025_UK.geojson",
		"",
	} {
		if _, err := FromFilename(name); !errors.Is(err, ErrNoVersion) {
			t.Errorf("FromFilename(%q) err = %v, want ErrNoVersion", name, err)
		}
	}
}

func TestResolve_Fallback(t *testing.T) {
	log := zerolog.New(io.Discard)
	fallback := time.Date(2026, 3, 17, 15, 4, 5, 0, time.UTC)

	got := Resolve("unversioned.csv", fallback, log)
	if want := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("Resolve fallback = %v, want %v", got, want)
	}

	got = Resolve("WD_MAY_2025_UK_BFC_V2.geojson", fallback, log)
	if got.Format(time.DateOnly) != "2025-05-01" {
		t.Errorf("Resolve = %v, want 2025-05-01", got)
	}
}
