// Package wsframe adapts a WebSocket connection into the byte-stream shape
// the tunnel dispatcher wants: one Upgrade call, one slice of "early data"
// decoded from the handshake itself, and a ReadChunk/WriteChunk pair over
// the live connection afterward.
package wsframe

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// EarlyDataHeader is the request header carrying base64url-encoded 0-RTT
// payload bytes, alongside the WebSocket handshake itself.
const EarlyDataHeader = "Sec-WebSocket-Protocol"

// writeTimeout bounds a single WebSocket message send.
const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Conn wraps one upgraded WebSocket connection plus whatever early-data
// payload accompanied the handshake.
type Conn struct {
	ws        *websocket.Conn
	EarlyData []byte
}

// Upgrade upgrades r into a WebSocket connection and decodes any early-data
// payload carried on the Sec-WebSocket-Protocol header. A header present but
// undecodable is a hard failure: the handshake is aborted rather than
// silently dropping the 0-RTT bytes.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	protoHeader := r.Header.Get(EarlyDataHeader)

	var early []byte
	var responseHeader http.Header
	if protoHeader != "" {
		decoded, err := decodeEarlyData(protoHeader)
		if err != nil {
			return nil, fmt.Errorf("wsframe: decode early data: %w", err)
		}
		early = decoded
		// Gorilla requires echoing back a selected subprotocol when the
		// client offers one, or the browser-side handshake rejects it.
		responseHeader = http.Header{"Sec-WebSocket-Protocol": []string{protoHeader}}
	}

	ws, err := upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		return nil, fmt.Errorf("wsframe: upgrade: %w", err)
	}

	return &Conn{ws: ws, EarlyData: early}, nil
}

// decodeEarlyData reverses the URL-safe-without-padding base64 substitution
// VLESS-style clients apply to the early-data header value ('-' for '+',
// '_' for '/').
func decodeEarlyData(header string) ([]byte, error) {
	standard := strings.NewReplacer("-", "+", "_", "/").Replace(header)
	return base64.StdEncoding.WithPadding(base64.NoPadding).DecodeString(standard)
}

// ReadChunk blocks for the next WebSocket message and returns its payload.
// Only binary and text messages carry tunnel data; control frames are
// handled transparently by the underlying library.
func (c *Conn) ReadChunk() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("wsframe: read: %w", err)
	}
	return data, nil
}

// WriteChunk sends data as one binary WebSocket message.
func (c *Conn) WriteChunk(data []byte) error {
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("wsframe: write: %w", err)
	}
	return nil
}

// Close closes the underlying WebSocket connection.
func (c *Conn) Close() error {
	return c.ws.Close()
}
