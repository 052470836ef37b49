package go_bridgeclient

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"
)

// Response content classification.
//
// The relay wraps textual responses in a JSON envelope ({"content": ...} or
// {"data": ...}) but serves binary payloads (images) as raw bytes. Older
// relay builds answer with unwrapped text bodies. Classification follows a
// strict precedence rather than nested fallthrough:
//
//  1. Content-Type image/* or an image extension on the request path → Binary
//  2. Body parses as a JSON object with a content/data string field → the
//     unwrapped text, HTML or Raw per the nested content_type hint
//  3. Anything else → Raw, the whole body as text
//
// Binary bytes must come from the raw byte path. Decoding a non-UTF8 image
// through a text step corrupts it (observed production defect), so binary
// content is surfaced only as a data: URL built from the original bytes.

// ContentKind identifies the classified shape of a relay response.
type ContentKind string

const (
	// ContentHTML is renderable HTML text (possibly unwrapped from the
	// relay's JSON envelope).
	ContentHTML ContentKind = "html"

	// ContentBinary is a non-text payload surfaced as a data: URL.
	ContentBinary ContentKind = "binary"

	// ContentRaw is non-HTML text passed through unmodified.
	ContentRaw ContentKind = "raw"
)

// Content is the final classified payload of one relay response.
type Content struct {
	Kind ContentKind
	MIME string

	// Text holds the payload for ContentHTML and ContentRaw.
	Text string

	// DataURL holds a data:<mime>;base64,<payload> string for
	// ContentBinary, renderable without further network access.
	DataURL string
}

// imageExtensions are request-path suffixes treated as binary regardless of
// the response header. The relay strips Content-Type from some image
// fetches.
var imageExtensions = []string{".webp", ".png", ".jpg", ".jpeg", ".gif"}

// relayTextWrapper is the JSON envelope the relay wraps textual responses
// in.
type relayTextWrapper struct {
	Content     *string `json:"content"`
	Data        *string `json:"data"`
	ContentType string  `json:"content_type"`
}

// Classify decides whether a response is binary, JSON-wrapped text, or a
// raw text body, per the precedence documented above.
func Classify(body []byte, contentTypeHeader, requestedURL string) *Content {
	if isBinaryResponse(contentTypeHeader, requestedURL) {
		return binaryContent(body, contentTypeHeader)
	}

	var wrapper relayTextWrapper
	if err := json.Unmarshal(body, &wrapper); err == nil {
		text := wrapper.Content
		if text == nil {
			text = wrapper.Data
		}
		if text != nil {
			return textContent(*text, wrapper.ContentType)
		}
	}

	// Not JSON, or JSON without a recognized wrapper field: the whole body
	// is the textual payload.
	return &Content{
		Kind: ContentRaw,
		MIME: mediaType(contentTypeHeader, "text/plain"),
		Text: string(body),
	}
}

// isBinaryResponse applies the header and extension checks.
func isBinaryResponse(contentTypeHeader, requestedURL string) bool {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentTypeHeader)), "image/") {
		return true
	}

	path := requestedURL
	if u, err := url.Parse(requestedURL); err == nil && u.Path != "" {
		path = u.Path
	}
	path = strings.ToLower(path)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// binaryContent wraps raw bytes as a data: URL. The bytes are used exactly
// as received, never routed through a text decode.
func binaryContent(body []byte, contentTypeHeader string) *Content {
	mime := mediaType(contentTypeHeader, defaultBinaryMime)
	return &Content{
		Kind:    ContentBinary,
		MIME:    mime,
		DataURL: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(body),
	}
}

// textContent classifies unwrapped relay text per the nested content-type
// hint. An absent hint means HTML: the relay only annotates non-HTML text.
func textContent(text, hint string) *Content {
	mime := mediaType(hint, "text/html")
	if strings.HasPrefix(mime, "text/html") {
		return &Content{Kind: ContentHTML, MIME: mime, Text: text}
	}
	return &Content{Kind: ContentRaw, MIME: mime, Text: text}
}

// mediaType extracts the bare media type from a Content-Type header value,
// falling back to def when the header is empty.
func mediaType(header, def string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return def
	}
	if i := strings.IndexByte(header, ';'); i >= 0 {
		header = strings.TrimSpace(header[:i])
	}
	return strings.ToLower(header)
}
