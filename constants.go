package go_bridgeclient

import "time"

// Bridge Protocol Constants
//
// This file contains constants defined by the bridge relay protocol: the
// HTTP surface the relay exposes, the headers it expects, and the error
// codes it returns. The relay itself (I2P proxying, persistence, token
// issuance) is an external service; only the client-side contract is
// defined here.

// Bridge client constants
const (
	BRIDGE_CLIENT_VERSION = "0.3.1"

	// Session key material sizes (AES-256-CBC)
	BRIDGE_SESSION_KEY_SIZE = 32
	BRIDGE_SESSION_IV_SIZE  = 16

	// Correlation token size (X-Session-Token, mail session id)
	BRIDGE_CHANNEL_ID_SIZE = 16
)

// Relay HTTP surface
// The browse endpoint accepts both the encrypted form POST and the plain
// GET-with-query variants. Chat is upgraded to a WebSocket on the same host.
const (
	BRIDGE_ENDPOINT_BROWSE     = "/browse"
	BRIDGE_ENDPOINT_UPLOAD     = "/upload"
	BRIDGE_ENDPOINT_CHAT       = "/chat"
	BRIDGE_ENDPOINT_MAIL_LOGIN = "/mail/login"
	BRIDGE_ENDPOINT_MAIL_SEND  = "/mail/send"
	BRIDGE_ENDPOINT_MAIL_FETCH = "/mail/messages"
)

// Request headers consumed by the relay
const (
	HEADER_SESSION_TOKEN   = "X-Session-Token"
	HEADER_PRIVACY_MODE    = "X-Privacy-Mode"
	HEADER_MAIL_SESSION_ID = "X-Mail-Session-Id"
	HEADER_BRIDGE_VERSION  = "X-Bridge-Version"

	PRIVACY_MODE_ENABLED = "enabled"
)

// Distinguished body codes on 401/403 responses. TOKEN_OUTDATED means the
// bearer credential must be refreshed before retrying; any other code on a
// 401/403 is a terminal authentication failure.
const (
	AUTH_CODE_TOKEN_OUTDATED = "TOKEN_OUTDATED"
)

// Key derivation contexts for mail-scoped material. These strings are part
// of the wire contract: the relay derives the same keys on its side.
const (
	DERIVE_CONTEXT_MAIL_KEY = "mail_key"
	DERIVE_CONTEXT_MAIL_IV  = "mail_iv"
)

// Retry and timeout budget per logical operation. Three attempts total with
// linear backoff between non-auth failures (1s after the first failure, 2s
// after the second). Each attempt is bounded by the request timeout.
const (
	BRIDGE_MAX_RETRIES             = 2
	BRIDGE_DEFAULT_REQUEST_TIMEOUT = 30 * time.Second
	BRIDGE_BACKOFF_UNIT            = time.Second
)

const defaultUserAgent = "go-bridgeclient/" + BRIDGE_CLIENT_VERSION

// Default MIME type for binary responses whose Content-Type header is
// empty. The relay strips headers from some image fetches.
const defaultBinaryMime = "image/webp"

// Log level constants
// Moved from: logger.go
const (
	DEBUG   = 1 << 4
	INFO    = 1 << 5
	WARNING = 1 << 6
	ERROR   = 1 << 7
	FATAL   = 1 << 8
)
