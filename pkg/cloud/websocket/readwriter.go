package websocket

import "golang.org/x/net/websocket"

// ReadWriter exchanges whole frames over a websocket.Conn.
type ReadWriter websocket.Conn

// New wraps websocket.Conn.
func New(conn *websocket.Conn) *ReadWriter {
	return (*ReadWriter)(conn)
}

// ReadFrame receives the next frame.
func (p *ReadWriter) ReadFrame() (f Frame, err error) {
	err = websocket.JSON.Receive((*websocket.Conn)(p), &f)
	return
}

// WriteFrame sends a frame.
func (p *ReadWriter) WriteFrame(f Frame) error {
	return websocket.JSON.Send((*websocket.Conn)(p), f)
}

// Close closes the underlying connection.
func (p *ReadWriter) Close() error {
	return (*websocket.Conn)(p).Close()
}
