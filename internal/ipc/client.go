package ipc

import (
	"bufio"
	"fmt"
	"net"
	"time"
)

// Client is a thin synchronous control-socket client, used by accentctl
// and by the popup process to talk to the daemon.
type Client struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
}

// Dial connects to the control socket at path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", path, err)
	}
	return &Client{
		conn: conn,
		r:    bufio.NewReader(conn),
		w:    bufio.NewWriter(conn),
	}, nil
}

// Send writes msg as one line to the daemon.
func (c *Client) Send(msg Message) error {
	if err := Encode(c.w, msg); err != nil {
		return err
	}
	return c.w.Flush()
}

// Receive reads and decodes the next line from the daemon.
func (c *Client) Receive() (Message, error) {
	return Decode(c.r)
}

// Call sends msg and returns the daemon's single-line reply.
func (c *Client) Call(msg Message) (Message, error) {
	if err := c.Send(msg); err != nil {
		return Message{}, err
	}
	return c.Receive()
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
