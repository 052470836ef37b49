package go_bridgeclient

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"
)

// TestClassifyBinaryByContentType tests that image responses classify as
// binary and survive byte-exact through the data URL.
func TestClassifyBinaryByContentType(t *testing.T) {
	// Deliberately invalid UTF-8: a text decode would corrupt these bytes
	payload := []byte{0x89, 0x50, 0x4E, 0x47, 0xFF, 0xFE, 0x00, 0x9C}

	content := Classify(payload, "image/png", "http://pics.example.i2p/logo")
	if content.Kind != ContentBinary {
		t.Fatalf("Expected binary classification, got %s", content.Kind)
	}
	if content.MIME != "image/png" {
		t.Errorf("Expected mime image/png, got %s", content.MIME)
	}

	prefix := "data:image/png;base64,"
	if !strings.HasPrefix(content.DataURL, prefix) {
		t.Fatalf("Expected data url prefix %q, got %q", prefix, content.DataURL)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(content.DataURL, prefix))
	if err != nil {
		t.Fatalf("Data url payload is not base64: %v", err)
	}
	if !bytes.Equal(decoded, payload) {
		t.Error("Expected byte-exact binary payload through data url")
	}
}

// TestClassifyBinaryByExtension tests extension-based detection when the
// relay strips the Content-Type header.
func TestClassifyBinaryByExtension(t *testing.T) {
	urls := []string{
		"http://pics.example.i2p/photo.webp",
		"http://pics.example.i2p/photo.PNG",
		"http://pics.example.i2p/a/b/photo.jpeg?size=full",
		"http://pics.example.i2p/anim.gif",
	}
	for _, u := range urls {
		content := Classify([]byte{0x01, 0x02}, "", u)
		if content.Kind != ContentBinary {
			t.Errorf("Expected binary for %s, got %s", u, content.Kind)
		}
	}

	// Empty header defaults the mime type
	content := Classify([]byte{0x01}, "", "http://pics.example.i2p/photo.webp")
	if content.MIME != defaultBinaryMime {
		t.Errorf("Expected default mime %s, got %s", defaultBinaryMime, content.MIME)
	}
}

// TestClassifyJSONWrappedHTML tests unwrapping of the relay's JSON
// envelope around textual responses.
func TestClassifyJSONWrappedHTML(t *testing.T) {
	body := []byte(`{"content":"<p>hi</p>"}`)

	content := Classify(body, "application/json", "http://news.example.i2p/")
	if content.Kind != ContentHTML {
		t.Fatalf("Expected html classification, got %s", content.Kind)
	}
	if content.Text != "<p>hi</p>" {
		t.Errorf("Expected unwrapped text, got %q", content.Text)
	}
}

// TestClassifyJSONDataField tests the alternate data wrapper field.
func TestClassifyJSONDataField(t *testing.T) {
	body := []byte(`{"data":"plain words","content_type":"text/plain"}`)

	content := Classify(body, "application/json", "http://news.example.i2p/")
	if content.Kind != ContentRaw {
		t.Fatalf("Expected raw classification for text/plain hint, got %s", content.Kind)
	}
	if content.Text != "plain words" {
		t.Errorf("Expected unwrapped text, got %q", content.Text)
	}
	if content.MIME != "text/plain" {
		t.Errorf("Expected mime text/plain, got %s", content.MIME)
	}
}

// TestClassifyRawFallback tests that non-JSON bodies pass through whole.
func TestClassifyRawFallback(t *testing.T) {
	body := []byte("<p>hi</p>")

	content := Classify(body, "text/html; charset=utf-8", "http://news.example.i2p/")
	if content.Kind != ContentRaw {
		t.Fatalf("Expected raw classification, got %s", content.Kind)
	}
	if content.Text != "<p>hi</p>" {
		t.Errorf("Expected whole body as text, got %q", content.Text)
	}
	if content.MIME != "text/html" {
		t.Errorf("Expected media type without parameters, got %s", content.MIME)
	}
}

// TestClassifyJSONWithoutWrapper tests that JSON without a recognized
// wrapper field is treated as the textual payload itself.
func TestClassifyJSONWithoutWrapper(t *testing.T) {
	body := []byte(`{"unrelated":"object"}`)

	content := Classify(body, "application/json", "http://api.example.i2p/")
	if content.Kind != ContentRaw {
		t.Fatalf("Expected raw classification, got %s", content.Kind)
	}
	if content.Text != string(body) {
		t.Errorf("Expected whole body as text, got %q", content.Text)
	}
}

// TestClassifyPrecedence tests that the content-type check wins over the
// JSON unwrap: an image body that happens to parse as JSON stays binary.
func TestClassifyPrecedence(t *testing.T) {
	body := []byte(`{"content":"looks textual"}`)

	content := Classify(body, "image/gif", "http://pics.example.i2p/x")
	if content.Kind != ContentBinary {
		t.Errorf("Expected binary to take precedence, got %s", content.Kind)
	}
}
