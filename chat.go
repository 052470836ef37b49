package go_bridgeclient

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// Encrypted chat over a relay WebSocket.
//
// Each connection carries a random channel identifier as its correlation
// token. Messages travel as envelope JSON text frames: the plaintext is
// wrapped as {message}, encrypted under the session key, and serialized.
// Inbound frames are decrypted with the key/IV their envelope carries.

// ChatCallbacks provides callback functions for chat session events. Any
// field may be nil.
type ChatCallbacks struct {
	// OnMessage is invoked per decrypted inbound message.
	OnMessage func(session *ChatSession, message string)

	// OnError is invoked for decrypt failures and read errors that do not
	// close the session.
	OnError func(session *ChatSession, err error)

	// OnClosed is invoked once when the session ends, whether by Close or
	// by the transport failing.
	OnClosed func(session *ChatSession)
}

// ChatSession is one live chat connection to the relay.
type ChatSession struct {
	conn      *websocket.Conn
	crypto    *SessionCrypto
	channelID string
	callbacks *ChatCallbacks

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// DialChat connects to the relay's chat endpoint and starts the receive
// loop. The WebSocket URL is derived from the configured bridge URL
// (http→ws, https→wss).
func DialChat(ctx context.Context, cfg *Config, crypto *SessionCrypto, auth AuthProvider, callbacks *ChatCallbacks) (*ChatSession, error) {
	if cfg == nil || crypto == nil {
		return nil, ErrInvalidArgument
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	channelID := crypto.GenerateChannelID()

	wsURL := strings.TrimRight(cfg.Bridge.URL, "/") + BRIDGE_ENDPOINT_CHAT
	wsURL = "ws" + strings.TrimPrefix(wsURL, "http")

	header := http.Header{}
	header.Set(HEADER_SESSION_TOKEN, channelID)
	header.Set(HEADER_PRIVACY_MODE, PRIVACY_MODE_ENABLED)
	header.Set("User-Agent", cfg.Bridge.UserAgent)
	if auth != nil {
		authHeaders, err := auth.AuthHeaders(ctx)
		if err != nil {
			return nil, &TransportError{URL: wsURL, Err: err}
		}
		for k, v := range authHeaders {
			header.Set(k, v)
		}
	}

	Debug("Dialing chat endpoint %s", wsURL)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}
		return nil, &TransportError{URL: wsURL, Err: err}
	}
	if resp != nil {
		resp.Body.Close()
	}

	session := &ChatSession{
		conn:      conn,
		crypto:    crypto,
		channelID: channelID,
		callbacks: callbacks,
		done:      make(chan struct{}),
	}
	go session.readLoop()
	return session, nil
}

// ChannelID returns the session's correlation token.
func (s *ChatSession) ChannelID() string {
	return s.channelID
}

// Send encrypts and transmits one chat message.
func (s *ChatSession) Send(message string) error {
	select {
	case <-s.done:
		return ErrChatClosed
	default:
	}

	text, err := s.crypto.EncryptChatMessage(message)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return &TransportError{URL: s.conn.RemoteAddr().String(), Err: err}
	}
	return nil
}

// Close shuts the session down. Safe to call more than once.
func (s *ChatSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)

		s.writeMu.Lock()
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()

		err = s.conn.Close()
		if s.callbacks != nil && s.callbacks.OnClosed != nil {
			s.callbacks.OnClosed(s)
		}
	})
	return err
}

// readLoop decrypts inbound frames until the connection ends.
func (s *ChatSession) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				// Closed locally; already reported via OnClosed
			default:
				Debug("Chat read failed: %v", err)
				if s.callbacks != nil && s.callbacks.OnError != nil {
					s.callbacks.OnError(s, &TransportError{URL: s.conn.RemoteAddr().String(), Err: err})
				}
				s.Close()
			}
			return
		}

		message, err := s.crypto.DecryptChatMessage(string(data))
		if err != nil {
			Warning("Dropping undecryptable chat frame: %v", err)
			if s.callbacks != nil && s.callbacks.OnError != nil {
				s.callbacks.OnError(s, err)
			}
			continue
		}
		if s.callbacks != nil && s.callbacks.OnMessage != nil {
			s.callbacks.OnMessage(s, message)
		}
	}
}
