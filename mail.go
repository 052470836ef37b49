package go_bridgeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Mail operations.
//
// Mail envelopes use the mail-scoped key material derived from the session
// key (see SessionCrypto). Credentials and outgoing messages are encrypted
// client-side; inbound message envelopes are decrypted with the key/IV
// they carry. A random mail session identifier correlates the login with
// subsequent fetch/send calls; it is not a cryptographic secret.

// MailMessage is one decrypted inbound message.
type MailMessage struct {
	From    string `json:"from"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// mailbox is the relay's fetch response shape.
type mailbox struct {
	Messages []json.RawMessage `json:"messages"`
}

// MailClient performs mail operations through a Pipeline.
type MailClient struct {
	pipeline  *Pipeline
	crypto    *SessionCrypto
	sessionID string
}

// NewMailClient creates a mail client sharing the pipeline's retry and
// auth machinery. A fresh mail session identifier is generated per client.
func NewMailClient(p *Pipeline) (*MailClient, error) {
	if p == nil || p.crypto == nil {
		return nil, ErrInvalidArgument
	}
	return &MailClient{
		pipeline:  p,
		crypto:    p.crypto,
		sessionID: p.crypto.GenerateMailSessionID(),
	}, nil
}

// SessionID returns the mail session correlation token.
func (m *MailClient) SessionID() string {
	return m.sessionID
}

// Login encrypts the credentials under the mail-scoped key material and
// posts them to the relay.
func (m *MailClient) Login(ctx context.Context, user, pass string) error {
	env, err := m.crypto.EncryptMailCredentials(user, pass)
	if err != nil {
		return err
	}
	_, err = m.postEnvelope(ctx, BRIDGE_ENDPOINT_MAIL_LOGIN, env)
	return err
}

// Send encrypts a whole outgoing message as one unit and posts it. The
// recipient stays in plaintext on the envelope for relay-side routing.
func (m *MailClient) Send(ctx context.Context, to, subject, body string) error {
	if to == "" {
		return ErrInvalidArgument
	}
	env, err := m.crypto.EncryptOutgoingEmail(to, subject, body)
	if err != nil {
		return err
	}
	_, err = m.postEnvelope(ctx, BRIDGE_ENDPOINT_MAIL_SEND, env)
	return err
}

// Fetch retrieves the mailbox and decrypts each message envelope. Each
// envelope carries its own key and IV; a non-encrypted envelope passes
// through as its serialized fields.
func (m *MailClient) Fetch(ctx context.Context) ([]MailMessage, error) {
	build := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			m.pipeline.baseURL+BRIDGE_ENDPOINT_MAIL_FETCH, nil)
		if err != nil {
			return nil, err
		}
		m.setMailHeaders(req)
		return req, m.pipeline.mergeAuthHeaders(ctx, req)
	}

	resp, err := m.pipeline.execute(ctx, BRIDGE_ENDPOINT_MAIL_FETCH, build)
	if err != nil {
		return nil, err
	}

	var box mailbox
	if err := json.Unmarshal(resp.Body, &box); err != nil {
		return nil, fmt.Errorf("bridge: malformed mailbox response: %w", err)
	}

	messages := make([]MailMessage, 0, len(box.Messages))
	for i, raw := range box.Messages {
		env, err := ParseEnvelope(raw)
		if err != nil {
			return nil, fmt.Errorf("bridge: mailbox message %d: %w", i, err)
		}
		plaintext, err := m.crypto.DecryptEnvelope(env)
		if err != nil {
			return nil, fmt.Errorf("bridge: mailbox message %d: %w", i, err)
		}

		var msg MailMessage
		if jerr := json.Unmarshal(plaintext, &msg); jerr != nil {
			// Old relay builds send bare text bodies
			msg = MailMessage{Body: string(plaintext)}
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// postEnvelope sends an envelope as a JSON body through the pipeline's
// attempt loop.
func (m *MailClient) postEnvelope(ctx context.Context, endpoint string, env *Envelope) (*BridgeResponse, error) {
	payload, err := env.Marshal()
	if err != nil {
		return nil, err
	}

	build := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			m.pipeline.baseURL+endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		m.setMailHeaders(req)
		return req, m.pipeline.mergeAuthHeaders(ctx, req)
	}

	return m.pipeline.execute(ctx, endpoint, build)
}

// setMailHeaders applies the mail session correlation headers.
func (m *MailClient) setMailHeaders(req *http.Request) {
	req.Header.Set(HEADER_MAIL_SESSION_ID, m.sessionID)
	req.Header.Set(HEADER_PRIVACY_MODE, PRIVACY_MODE_ENABLED)
	req.Header.Set("User-Agent", m.pipeline.userAgent)
}
