package device

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateDetails(t *testing.T) {
	tests := []struct {
		name    string
		d       Details
		wantErr bool
	}{
		{"empty", Details{}, false},
		{"typical", Details{Name: "Van 3", VehicleNumber: "KA-01-1234", DriverContact: "+44 7700 900123"}, false},
		{"long name", Details{Name: strings.Repeat("a", maxNameLength+1)}, true},
		{"long contact", Details{DriverContact: strings.Repeat("1", maxContactLength+1)}, true},
		{"long other", Details{DriverOtherDetails: strings.Repeat("x", maxOtherLength+1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDetails(tt.d)
			if tt.wantErr != (err != nil) {
				t.Fatalf("ValidateDetails() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidDetails) {
				t.Errorf("error = %v, want ErrInvalidDetails", err)
			}
		})
	}
}

func TestValidateMaxFence(t *testing.T) {
	for _, n := range []int{-1, 0, 1, 50, 100} {
		if err := ValidateMaxFence(n); err != nil {
			t.Errorf("ValidateMaxFence(%d) error = %v", n, err)
		}
	}
	for _, n := range []int{-2, 101, 1000} {
		if err := ValidateMaxFence(n); !errors.Is(err, ErrInvalidMaxFence) {
			t.Errorf("ValidateMaxFence(%d) error = %v, want ErrInvalidMaxFence", n, err)
		}
	}
}

func TestValidateStatus(t *testing.T) {
	if err := ValidateStatus(StatusActive); err != nil {
		t.Errorf("ValidateStatus(active) error = %v", err)
	}
	if err := ValidateStatus("paused"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("ValidateStatus(paused) error = %v, want ErrInvalidStatus", err)
	}
}

func TestTrimDetails(t *testing.T) {
	got := TrimDetails(Details{Name: "  Van  ", DriverName: "\tSam "})
	if got.Name != "Van" || got.DriverName != "Sam" {
		t.Errorf("TrimDetails() = %+v", got)
	}
}

func TestNormalizeSerial(t *testing.T) {
	if got := NormalizeSerial("  vt-abc "); got != "VT-ABC" {
		t.Errorf("NormalizeSerial() = %q, want VT-ABC", got)
	}
}

func TestDevice_Clone(t *testing.T) {
	d := &Device{Serial: "VT-1", AttachedGeoFences: []string{"f1"}}
	c := d.Clone()
	c.AttachedGeoFences[0] = "changed"
	if d.AttachedGeoFences[0] != "f1" {
		t.Error("Clone() shares the fence slice")
	}
	if !d.HasGeoFence("f1") || d.HasGeoFence("changed") {
		t.Error("HasGeoFence() wrong")
	}
}
