package lrdnet

import (
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn adapts a WebSocket connection to the net.Conn byte-stream
// interface the bridge pumps expect. Outbound bytes are framed as
// binary messages; inbound message payloads are concatenated back into
// a raw byte stream. A clean close from the peer reads as io.EOF, the
// same as a TCP FIN.
type wsConn struct {
	ws *websocket.Conn

	// reader is the payload reader of the message currently being
	// consumed, nil between messages.
	reader io.Reader
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws}
}

func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if c.reader == nil {
			t, r, err := c.ws.NextReader()
			if err != nil {
				return 0, wsReadError(err)
			}
			if t != websocket.BinaryMessage && t != websocket.TextMessage {
				continue
			}
			c.reader = r
		}
		n, err := c.reader.Read(p)
		if err == io.EOF {
			// End of this message, not of the stream.
			c.reader = nil
			if n == 0 {
				continue
			}
			err = nil
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	w, err := c.ws.NextWriter(websocket.BinaryMessage)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(p)
	if err != nil {
		w.Close()
		return n, err
	}
	return n, w.Close()
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

func (c *wsConn) LocalAddr() net.Addr {
	return c.ws.LocalAddr()
}

func (c *wsConn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *wsConn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

func (c *wsConn) SetWriteDeadline(t time.Time) error {
	return c.ws.SetWriteDeadline(t)
}

// SetReadBuffer and SetWriteBuffer delegate the configured socket
// buffer sizes to the underlying TCP socket.
func (c *wsConn) SetReadBuffer(bytes int) error {
	if tc, ok := c.ws.UnderlyingConn().(*net.TCPConn); ok {
		return tc.SetReadBuffer(bytes)
	}
	return nil
}

func (c *wsConn) SetWriteBuffer(bytes int) error {
	if tc, ok := c.ws.UnderlyingConn().(*net.TCPConn); ok {
		return tc.SetWriteBuffer(bytes)
	}
	return nil
}

// wsReadError maps a clean WebSocket close to io.EOF so the inbound
// pump treats it like a TCP FIN.
func wsReadError(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return io.EOF
	}
	return err
}
