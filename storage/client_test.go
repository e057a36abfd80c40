package storage

import "testing"

func TestPublicURL(t *testing.T) {
	tests := []struct {
		name   string
		client Client
		key    string
		want   string
	}{
		{
			name:   "direct http",
			client: Client{endpoint: "minio.local:9000", bucket: "audio", useSSL: false},
			key:    "sources/a.flac",
			want:   "http://minio.local:9000/audio/sources/a.flac",
		},
		{
			name:   "direct https",
			client: Client{endpoint: "s3.example.com", bucket: "audio", useSSL: true},
			key:    "sources/a.flac",
			want:   "https://s3.example.com/audio/sources/a.flac",
		},
		{
			name:   "cdn prefixed",
			client: Client{endpoint: "s3.example.com", bucket: "audio", cdnBase: "https://cdn.example.com"},
			key:    "sources/a.flac",
			want:   "https://cdn.example.com/sources/a.flac",
		},
		{
			name:   "cdn trailing slash stripped",
			client: Client{cdnBase: "https://cdn.example.com//"},
			key:    "covers/1.jpg",
			want:   "https://cdn.example.com/covers/1.jpg",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.client.PublicURL(tt.key); got != tt.want {
				t.Errorf("PublicURL = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 << 20, "5.0 MB"},
		{3 << 30, "3.0 GB"},
	}
	for _, tt := range tests {
		if got := formatSize(tt.size); got != tt.want {
			t.Errorf("formatSize(%d) = %q, want %q", tt.size, got, tt.want)
		}
	}
}
