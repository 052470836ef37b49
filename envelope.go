package go_bridgeclient

import (
	"encoding/json"
	"fmt"
)

// Envelope is the JSON wire structure wrapping every payload exchanged with
// the relay: an encryption flag, base64 AES-256-CBC ciphertext, and the IV
// and key that produced it. Feature variants add fields (mail credentials,
// mail content, outgoing mail recipient, upload file/metadata).
//
// The symmetric key travels inside the same envelope as the ciphertext it
// unlocks. This provides obfuscation from intermediaries that cannot see
// the envelope body (transport middleboxes, passive observers in front of
// the relay), NOT end-to-end secrecy from the relay itself. The format is
// fixed on both ends; a stronger scheme is a separate wire-format redesign.
type Envelope struct {
	Encrypted bool      `json:"encrypted"`
	Data      string    `json:"data,omitempty"`
	IV        string    `json:"iv,omitempty"`
	Key       string    `json:"key,omitempty"`
	User      string    `json:"user,omitempty"`
	Pass      string    `json:"pass,omitempty"`
	Body      string    `json:"body,omitempty"`
	HTMLBody  string    `json:"htmlBody,omitempty"`
	Subject   string    `json:"subject,omitempty"`
	To        string    `json:"to,omitempty"`
	File      string    `json:"file,omitempty"`
	Metadata  *Envelope `json:"metadata,omitempty"`

	// raw preserves the JSON object this envelope was parsed from so that
	// the non-encrypted pass-through branch re-serializes fields the struct
	// does not model. Nil for envelopes constructed locally.
	raw map[string]json.RawMessage
}

// ParseEnvelope parses a JSON envelope from the wire. The original object
// is retained for pass-through serialization of unknown fields.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, NewCryptoError("parse envelope", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, NewCryptoError("parse envelope", err)
	}
	env.raw = raw
	return &env, nil
}

// Marshal serializes the envelope for transmission.
func (e *Envelope) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, NewCryptoError("marshal envelope", err)
	}
	return data, nil
}

// String returns the envelope as its JSON wire text. Used for the
// text-framed transports (chat messages travel as envelope JSON strings).
func (e *Envelope) String() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf("Envelope{marshal error: %v}", err)
	}
	return string(data)
}

// passthroughPayload re-serializes every envelope field except the
// encrypted flag. This is the plaintext of an envelope whose encrypted flag
// is false or absent: the relay sends some control payloads unencrypted and
// the client must hand them through byte-faithfully. A non-encrypted
// envelope may still carry data/iv/key as ordinary plaintext fields, so
// only the flag itself is stripped.
func (e *Envelope) passthroughPayload() ([]byte, error) {
	if e.raw != nil {
		fields := make(map[string]json.RawMessage, len(e.raw))
		for k, v := range e.raw {
			if k == "encrypted" {
				continue
			}
			fields[k] = v
		}
		data, err := json.Marshal(fields)
		if err != nil {
			return nil, NewCryptoError("serialize pass-through", err)
		}
		return data, nil
	}

	// Locally constructed envelope: serialize the modeled fields.
	fields := make(map[string]json.RawMessage)
	data, err := json.Marshal(e)
	if err != nil {
		return nil, NewCryptoError("serialize pass-through", err)
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, NewCryptoError("serialize pass-through", err)
	}
	delete(fields, "encrypted")
	out, err := json.Marshal(fields)
	if err != nil {
		return nil, NewCryptoError("serialize pass-through", err)
	}
	return out, nil
}
