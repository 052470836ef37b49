package go_bridgeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
)

// Encrypted file upload.
//
// The file bytes are AES-encrypted under the session key before they leave
// the process; the relay stores ciphertext plus an independently encrypted
// metadata envelope and returns a share link. Upload goes through the same
// pipeline machinery as browsing, so the retry budget, auth refresh, and
// circuit breaker all apply.

// UploadResult is the relay's response to a stored upload.
type UploadResult struct {
	// URL is the share link for the stored file.
	URL string `json:"url"`

	// ID is the relay-side identifier of the stored file.
	ID string `json:"id,omitempty"`
}

// Upload encrypts the file and posts it to the relay's upload endpoint as
// a multipart form with fields file, metadata, password, max_views, and
// expiry.
func (p *Pipeline) Upload(ctx context.Context, fileName string, file []byte, opts UploadOptions) (*UploadResult, error) {
	if p.crypto == nil {
		return nil, ErrNotInitialized
	}

	env, err := p.crypto.CreateEncryptedUpload(fileName, file, opts)
	if err != nil {
		return nil, err
	}
	metaJSON, err := env.Metadata.Marshal()
	if err != nil {
		return nil, err
	}

	// The multipart body is rebuilt per attempt: a retried request must
	// not reuse a consumed reader.
	build := func(ctx context.Context) (*http.Request, error) {
		return p.buildUploadRequest(ctx, fileName, env.File, metaJSON, opts)
	}

	resp, err := p.execute(ctx, BRIDGE_ENDPOINT_UPLOAD, build)
	if err != nil {
		return nil, err
	}

	var result UploadResult
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, fmt.Errorf("bridge: malformed upload response: %w", err)
	}
	return &result, nil
}

// buildUploadRequest assembles one multipart upload attempt.
func (p *Pipeline) buildUploadRequest(ctx context.Context, fileName, fileCiphertext string, metaJSON []byte, opts UploadOptions) (*http.Request, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write([]byte(fileCiphertext)); err != nil {
		return nil, err
	}

	if err := writer.WriteField("metadata", string(metaJSON)); err != nil {
		return nil, err
	}
	if opts.Password != "" {
		if err := writer.WriteField("password", opts.Password); err != nil {
			return nil, err
		}
	}
	if opts.MaxViews > 0 {
		if err := writer.WriteField("max_views", strconv.Itoa(opts.MaxViews)); err != nil {
			return nil, err
		}
	}
	if err := writer.WriteField("expiry", opts.Expiry); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+BRIDGE_ENDPOINT_UPLOAD, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set(HEADER_SESSION_TOKEN, p.crypto.GenerateChannelID())
	req.Header.Set(HEADER_PRIVACY_MODE, PRIVACY_MODE_ENABLED)
	req.Header.Set("User-Agent", p.userAgent)
	if err := p.mergeAuthHeaders(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}
