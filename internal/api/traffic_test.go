package api

import "testing"

func TestFormatTraffic(t *testing.T) {
	testCases := []struct {
		name  string
		bytes int64
		want  string
	}{
		{"Zero", 0, "0.00 B"},
		{"Bytes", 512, "512.00 B"},
		{"Boundary below KB", 1023, "1023.00 B"},
		{"Exactly 1 KB", 1024, "1.00 KB"},
		{"Megabytes", 5 * 1024 * 1024, "5.00 MB"},
		{"Gigabytes", 1536 * 1024 * 1024, "1.50 GB"},
		{"Terabytes", 1024 * 1024 * 1024 * 1024, "1.00 TB"},
		{"Petabytes spill", 1024 * 1024 * 1024 * 1024 * 1024, "1.00 PB"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := FormatTraffic(tc.bytes)
			if got != tc.want {
				t.Errorf("FormatTraffic(%d) = %s, want %s", tc.bytes, got, tc.want)
			}
		})
	}
}
