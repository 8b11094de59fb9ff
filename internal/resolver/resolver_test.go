package resolver

import "testing"

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "imgur single image rewritten",
			in:   "http://imgur.com/abc123",
			want: "http://i.imgur.com/abc123.png",
		},
		{
			name: "imgur album passes through",
			in:   "http://imgur.com/a/abc123",
			want: "http://imgur.com/a/abc123",
		},
		{
			name: "https imgur rewritten",
			in:   "https://imgur.com/xyz789",
			want: "http://i.imgur.com/xyz789.png",
		},
		{
			name: "direct imgur passes through",
			in:   "http://i.imgur.com/abc123.gif",
			want: "http://i.imgur.com/abc123.gif",
		},
		{
			name: "other host passes through",
			in:   "http://example.com/cat.gif",
			want: "http://example.com/cat.gif",
		},
		{
			name: "unparseable passes through",
			in:   "http://%zz",
			want: "http://%zz",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.in); got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
