package domain

import "testing"

func TestSupportedContentType(t *testing.T) {
	tests := []struct {
		ct   string
		want bool
	}{
		{"image/png", true},
		{"image/jpeg", true},
		{"image/jpg", true},
		{"image/svg", true},
		{"image/gif", true},
		{"video/mp4", true},
		{"video/ogv", true},
		{"audio/mp3", true},
		{"IMAGE/PNG", true},
		{"image/png; charset=binary", true},
		{" image/gif ", true},
		{"text/html", false},
		{"image/webp", false},
		{"video/webm", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := SupportedContentType(tt.ct); got != tt.want {
			t.Errorf("SupportedContentType(%q) = %v, want %v", tt.ct, got, tt.want)
		}
	}
}

func TestCompressionPercent(t *testing.T) {
	tests := []struct {
		fraction float64
		want     int
	}{
		{1.0, 100},
		{0.5, 50},
		{1.2, 120},
		{0, 0},
	}

	for _, tt := range tests {
		s := UploadSession{Compression: tt.fraction}
		if got := s.CompressionPercent(); got != tt.want {
			t.Errorf("CompressionPercent(%v) = %d, want %d", tt.fraction, got, tt.want)
		}
	}
}
