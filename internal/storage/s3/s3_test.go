package s3

import "testing"

func TestKeyMapping(t *testing.T) {
	tests := []struct {
		prefix, key, want string
	}{
		{"", "/data/a.pdf", "data/a.pdf"},
		{"", "pdf-index.json", "pdf-index.json"},
		{"archive", "/data/a.pdf", "archive/data/a.pdf"},
		{"/archive/", "pdf-index.json", "archive/pdf-index.json"},
	}
	for _, tt := range tests {
		b := &S3Backend{prefix: normalizePrefix(tt.prefix)}
		if got := b.key(tt.key); got != tt.want {
			t.Errorf("key(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
		}
	}
}

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		endpoint string
		ssl      bool
		want     string
	}{
		{"", false, ""},
		{"localhost:9000", false, "http://localhost:9000"},
		{"minio.internal:9000", true, "https://minio.internal:9000"},
		{"https://s3.example.com", false, "https://s3.example.com"},
	}
	for _, tt := range tests {
		if got := endpointURL(tt.endpoint, tt.ssl); got != tt.want {
			t.Errorf("endpointURL(%q, %v) = %q, want %q", tt.endpoint, tt.ssl, got, tt.want)
		}
	}
}

func TestContentType(t *testing.T) {
	if got := contentType("pdf-index.json"); got != "application/json" {
		t.Errorf("json: %s", got)
	}
	if got := contentType("data/A.PDF"); got != "application/pdf" {
		t.Errorf("pdf: %s", got)
	}
	if got := contentType("about.html"); got != "application/octet-stream" {
		t.Errorf("other: %s", got)
	}
}
