package main

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestViolationReason(t *testing.T) {
	tests := []struct {
		name     string
		importer string
		imported string
		want     string
	}{
		{
			name:     "public contracts importing internal",
			importer: "bgwatch/pkg/bgservice",
			imported: "bgwatch/internal/kernel",
			want:     "pkg/* must not import internal/*",
		},
		{
			name:     "kernel importing driver",
			importer: "bgwatch/internal/kernel",
			imported: "bgwatch/internal/driver/cdp",
			want:     "internal/kernel must not import internal/driver/*",
		},
		{
			name:     "kernel importing module",
			importer: "bgwatch/internal/kernel",
			imported: "bgwatch/modules/eventcache",
			want:     "internal/kernel must not import modules/*",
		},
		{
			name:     "module importing kernel",
			importer: "bgwatch/modules/eventcache",
			imported: "bgwatch/internal/kernel",
			want:     "modules/* must not import internal/*",
		},
		{
			name:     "driver tests wiring kernel and module",
			importer: "bgwatch/internal/driver/cdp",
			imported: "bgwatch/modules/eventcache",
		},
		{
			name:     "command wiring everything",
			importer: "bgwatch/cmd/bgwatch",
			imported: "bgwatch/internal/driver/cdp",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			if got := violationReason(testCase.importer, testCase.imported); got != testCase.want {
				t.Fatalf("reason = %q, want %q", got, testCase.want)
			}
		})
	}
}

func TestCollectViolationsDeduplicatesAndSorts(t *testing.T) {
	t.Parallel()

	packages := []listedPackage{
		{
			ImportPath:  "bgwatch/modules/eventcache",
			Imports:     []string{"bgwatch/pkg/bgservice", "bgwatch/internal/kernel"},
			TestImports: []string{"bgwatch/internal/kernel"},
		},
		{
			ImportPath:   "bgwatch/internal/kernel",
			XTestImports: []string{"bgwatch/internal/driver/cdp"},
		},
	}

	want := []string{
		"bgwatch/internal/kernel -> bgwatch/internal/driver/cdp (internal/kernel must not import internal/driver/*)",
		"bgwatch/modules/eventcache -> bgwatch/internal/kernel (modules/* must not import internal/*)",
	}
	if diff := cmp.Diff(want, collectViolations(packages)); diff != "" {
		t.Fatalf("violations mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodePackagesNormalizesTestVariants(t *testing.T) {
	t.Parallel()

	output := []byte(`{"ImportPath":"bgwatch/internal/kernel [bgwatch/internal/kernel.test]","Imports":["bgwatch/internal/driver/cdp [bgwatch/internal/kernel.test]"]}
{"ImportPath":""}
{"ImportPath":"bgwatch/cmd/bgwatch","Imports":["bgwatch/internal/driver/cdp"]}`)

	packages, err := decodePackages(output)
	if err != nil {
		t.Fatalf("decode packages failed: %v", err)
	}
	if len(packages) != 2 {
		t.Fatalf("packages = %d, want 2", len(packages))
	}

	want := []string{
		"bgwatch/internal/kernel -> bgwatch/internal/driver/cdp (internal/kernel must not import internal/driver/*)",
	}
	if diff := cmp.Diff(want, collectViolations(packages)); diff != "" {
		t.Fatalf("violations mismatch (-want +got):\n%s", diff)
	}
}
