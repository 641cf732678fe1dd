package loader

import (
	"reflect"
	"testing"
)

func TestSortVersionsDesc(t *testing.T) {
	versions := []string{"1.9.4", "1.21", "1.20.4", "1.21.1", "1.8.9", "1.20"}
	sortVersionsDesc(versions)

	want := []string{"1.21.1", "1.21", "1.20.4", "1.20", "1.9.4", "1.8.9"}
	if !reflect.DeepEqual(versions, want) {
		t.Errorf("sorted = %v, want %v", versions, want)
	}
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.21", "1.20.4", 1},
		{"1.20.4", "1.21", -1},
		{"1.21", "1.21", 0},
		{"1.21.1", "1.21", 1},
		{"1.9", "1.10", -1},
	}
	for _, tt := range tests {
		if got := compareVersions(tt.a, tt.b); got != tt.want {
			t.Errorf("compareVersions(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestGetLoader(t *testing.T) {
	if _, err := GetLoader("vanilla"); err != nil {
		t.Errorf("vanilla loader: %v", err)
	}
	if _, err := GetLoader("paper"); err != nil {
		t.Errorf("paper loader: %v", err)
	}
	if _, err := GetLoader("forge"); err == nil {
		t.Error("expected error for unsupported type")
	}
}
