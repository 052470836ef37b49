package go_bridgeclient

import (
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

// decryptEnvelopeField decodes and decrypts one base64 ciphertext field
// using the key and IV the envelope carries.
func decryptEnvelopeField(t *testing.T, env *Envelope, field string) string {
	t.Helper()
	key, err := base64.StdEncoding.DecodeString(env.Key)
	if err != nil {
		t.Fatalf("Failed to decode envelope key: %v", err)
	}
	iv, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil {
		t.Fatalf("Failed to decode envelope iv: %v", err)
	}
	ct, err := base64.StdEncoding.DecodeString(field)
	if err != nil {
		t.Fatalf("Failed to decode ciphertext field: %v", err)
	}
	plain, err := cbcDecrypt(ct, key, iv)
	if err != nil {
		t.Fatalf("Failed to decrypt field: %v", err)
	}
	return string(plain)
}

// TestMailLogin tests that credentials reach the relay encrypted under the
// mail-scoped key, each field independently decryptable.
func TestMailLogin(t *testing.T) {
	var mu sync.Mutex
	var sessionHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != BRIDGE_ENDPOINT_MAIL_LOGIN {
			t.Errorf("Expected POST %s, got %s %s", BRIDGE_ENDPOINT_MAIL_LOGIN, r.Method, r.URL.Path)
		}
		mu.Lock()
		sessionHeader = r.Header.Get(HEADER_MAIL_SESSION_ID)
		mu.Unlock()

		body, _ := io.ReadAll(r.Body)
		env, err := ParseEnvelope(body)
		if err != nil {
			t.Errorf("Failed to parse login envelope: %v", err)
			return
		}
		if !env.Encrypted {
			t.Error("Expected encrypted login envelope")
		}
		if got := decryptEnvelopeField(t, env, env.User); got != "alice" {
			t.Errorf("Expected user 'alice', got %q", got)
		}
		if got := decryptEnvelopeField(t, env, env.Pass); got != "hunter2" {
			t.Errorf("Expected pass 'hunter2', got %q", got)
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	p, _, _ := newTestPipeline(t, server.URL)
	client, err := NewMailClient(p)
	if err != nil {
		t.Fatalf("Failed to create mail client: %v", err)
	}

	if err := client.Login(context.Background(), "alice", "hunter2"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if sessionHeader != client.SessionID() {
		t.Errorf("Expected mail session header %q, got %q", client.SessionID(), sessionHeader)
	}
}

// TestMailSend tests that the whole outgoing message is encrypted as one
// unit with the recipient left plaintext for routing.
func TestMailSend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != BRIDGE_ENDPOINT_MAIL_SEND {
			t.Errorf("Expected path %s, got %s", BRIDGE_ENDPOINT_MAIL_SEND, r.URL.Path)
		}

		body, _ := io.ReadAll(r.Body)
		env, err := ParseEnvelope(body)
		if err != nil {
			t.Errorf("Failed to parse send envelope: %v", err)
			return
		}
		if env.To != "bob@mail.example.i2p" {
			t.Errorf("Expected plaintext recipient, got %q", env.To)
		}

		var msg struct {
			To      string `json:"to"`
			Subject string `json:"subject"`
			Body    string `json:"body"`
		}
		if err := json.Unmarshal([]byte(decryptEnvelopeField(t, env, env.Data)), &msg); err != nil {
			t.Errorf("Failed to decode message plaintext: %v", err)
		}
		if msg.To != "bob@mail.example.i2p" || msg.Subject != "greetings" || msg.Body != "hello bob" {
			t.Errorf("Unexpected decrypted message %+v", msg)
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	p, _, _ := newTestPipeline(t, server.URL)
	client, err := NewMailClient(p)
	if err != nil {
		t.Fatalf("Failed to create mail client: %v", err)
	}

	if err := client.Send(context.Background(), "bob@mail.example.i2p", "greetings", "hello bob"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
}

// TestMailSendValidation tests that an empty recipient is rejected before
// any network traffic.
func TestMailSendValidation(t *testing.T) {
	p, _, _ := newTestPipeline(t, "http://bridge.example.i2p")
	client, err := NewMailClient(p)
	if err != nil {
		t.Fatalf("Failed to create mail client: %v", err)
	}

	if err := client.Send(context.Background(), "", "subject", "body"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
}

// TestMailFetch tests decrypting a mixed mailbox: an encrypted envelope
// from a foreign key, a plain JSON message, and an encrypted bare-text
// body.
func TestMailFetch(t *testing.T) {
	relayCrypto, err := NewSessionCrypto()
	if err != nil {
		t.Fatalf("Failed to create relay crypto: %v", err)
	}

	encMsg, err := relayCrypto.EncryptEnvelope([]byte(`{"from":"carol@mail.example.i2p","subject":"hi","body":"first"}`))
	if err != nil {
		t.Fatalf("Failed to encrypt message: %v", err)
	}
	encJSON, err := encMsg.Marshal()
	if err != nil {
		t.Fatalf("Failed to marshal envelope: %v", err)
	}

	bareText, err := relayCrypto.EncryptEnvelope([]byte("plain text body"))
	if err != nil {
		t.Fatalf("Failed to encrypt bare text: %v", err)
	}
	bareJSON, err := bareText.Marshal()
	if err != nil {
		t.Fatalf("Failed to marshal envelope: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != BRIDGE_ENDPOINT_MAIL_FETCH {
			t.Errorf("Expected GET %s, got %s %s", BRIDGE_ENDPOINT_MAIL_FETCH, r.Method, r.URL.Path)
		}
		box := map[string][]json.RawMessage{
			"messages": {
				encJSON,
				json.RawMessage(`{"from":"dave@mail.example.i2p","subject":"plain","body":"second"}`),
				bareJSON,
			},
		}
		json.NewEncoder(w).Encode(box)
	}))
	defer server.Close()

	p, _, _ := newTestPipeline(t, server.URL)
	client, err := NewMailClient(p)
	if err != nil {
		t.Fatalf("Failed to create mail client: %v", err)
	}

	messages, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(messages))
	}
	if messages[0].From != "carol@mail.example.i2p" || messages[0].Body != "first" {
		t.Errorf("Unexpected first message %+v", messages[0])
	}
	if messages[1].From != "dave@mail.example.i2p" || messages[1].Body != "second" {
		t.Errorf("Unexpected second message %+v", messages[1])
	}
	if messages[2].Body != "plain text body" {
		t.Errorf("Expected bare text fallback into Body, got %+v", messages[2])
	}
}

// TestMailFetchMalformedMailbox tests that a non-JSON mailbox response is
// an error, not a panic or empty result.
func TestMailFetchMalformedMailbox(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>gateway error</html>"))
	}))
	defer server.Close()

	p, _, _ := newTestPipeline(t, server.URL)
	client, err := NewMailClient(p)
	if err != nil {
		t.Fatalf("Failed to create mail client: %v", err)
	}

	if _, err := client.Fetch(context.Background()); err == nil {
		t.Error("Expected error for malformed mailbox response")
	}
}

// TestNewMailClientValidation tests constructor argument checks.
func TestNewMailClientValidation(t *testing.T) {
	if _, err := NewMailClient(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
}
