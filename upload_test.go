package go_bridgeclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// TestUploadRoundTrip tests the multipart shape, that the file bytes are
// recoverable only via the metadata envelope's key material, and the
// parsed relay response.
func TestUploadRoundTrip(t *testing.T) {
	original := []byte{0x00, 0x01, 0xFE, 0xFF, 0x42, 0x00, 0x10}
	sc := testCrypto(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != BRIDGE_ENDPOINT_UPLOAD {
			t.Errorf("Expected POST %s, got %s %s", BRIDGE_ENDPOINT_UPLOAD, r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("Failed to parse multipart form: %v", err)
			return
		}

		// Metadata envelope decrypts independently with its own key/iv
		metaEnv, err := ParseEnvelope([]byte(r.FormValue("metadata")))
		if err != nil {
			t.Errorf("Failed to parse metadata envelope: %v", err)
			return
		}
		metaPlain, err := sc.DecryptEnvelope(metaEnv)
		if err != nil {
			t.Errorf("Failed to decrypt metadata: %v", err)
			return
		}
		var meta struct {
			FileName string `json:"fileName"`
			Password string `json:"password"`
			Expiry   string `json:"expiry"`
			MaxViews int    `json:"maxViews"`
		}
		if err := json.Unmarshal(metaPlain, &meta); err != nil {
			t.Errorf("Failed to decode metadata: %v", err)
		}
		if meta.FileName != "photo.webp" || meta.Password != "s3cret" || meta.Expiry != "24h" || meta.MaxViews != 3 {
			t.Errorf("Unexpected metadata %+v", meta)
		}

		if r.FormValue("password") != "s3cret" || r.FormValue("max_views") != "3" || r.FormValue("expiry") != "24h" {
			t.Error("Expected password, max_views, and expiry form fields")
		}

		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("Failed to read file part: %v", err)
			return
		}
		defer file.Close()
		ctB64, _ := io.ReadAll(file)
		ciphertext, err := base64.StdEncoding.DecodeString(string(ctB64))
		if err != nil {
			t.Errorf("Expected base64 file part: %v", err)
			return
		}
		key, _ := base64.StdEncoding.DecodeString(metaEnv.Key)
		iv, _ := base64.StdEncoding.DecodeString(metaEnv.IV)
		plain, err := cbcDecrypt(ciphertext, key, iv)
		if err != nil {
			t.Errorf("Failed to decrypt file: %v", err)
			return
		}
		if !bytes.Equal(plain, original) {
			t.Errorf("Expected byte-exact file round trip, got %x", plain)
		}

		w.Write([]byte(`{"url":"http://bridge.example.i2p/f/abc123","id":"abc123"}`))
	}))
	defer server.Close()

	cfg, err := DefaultConfig(server.URL)
	if err != nil {
		t.Fatalf("Failed to build config: %v", err)
	}
	p, err := NewPipeline(cfg, sc, nil)
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	result, err := p.Upload(context.Background(), "photo.webp", original,
		UploadOptions{Password: "s3cret", Expiry: "24h", MaxViews: 3})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if result.URL != "http://bridge.example.i2p/f/abc123" {
		t.Errorf("Unexpected share URL %q", result.URL)
	}
	if result.ID != "abc123" {
		t.Errorf("Unexpected id %q", result.ID)
	}
}

// TestUploadRetriesRebuildBody tests that a retried upload carries a full
// multipart body again rather than a consumed reader.
func TestUploadRetriesRebuildBody(t *testing.T) {
	var hits int
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		n := hits
		mu.Unlock()
		if n == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("Retried request had no parseable body: %v", err)
		}
		if r.FormValue("metadata") == "" {
			t.Error("Expected metadata field on retried request")
		}
		w.Write([]byte(`{"url":"http://bridge.example.i2p/f/xyz"}`))
	}))
	defer server.Close()

	p, delays, _ := newTestPipeline(t, server.URL)
	result, err := p.Upload(context.Background(), "doc.txt", []byte("contents"), UploadOptions{})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if result.URL == "" {
		t.Error("Expected share URL")
	}
	mu.Lock()
	n := hits
	mu.Unlock()
	if n != 2 {
		t.Errorf("Expected 2 attempts, got %d", n)
	}
	if len(*delays) != 1 {
		t.Errorf("Expected 1 backoff delay, got %v", *delays)
	}
}

// TestUploadValidation tests rejection of empty input before any network
// traffic.
func TestUploadValidation(t *testing.T) {
	p, _, _ := newTestPipeline(t, "http://bridge.example.i2p")

	var ce *CryptoError
	if _, err := p.Upload(context.Background(), "", []byte("data"), UploadOptions{}); !errors.As(err, &ce) {
		t.Errorf("Expected CryptoError for empty name, got %v", err)
	}
	if _, err := p.Upload(context.Background(), "file.txt", nil, UploadOptions{}); !errors.As(err, &ce) {
		t.Errorf("Expected CryptoError for empty file, got %v", err)
	}
}
