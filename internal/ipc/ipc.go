// Package ipc streams wallet notifications to local processes, such as a
// desktop panel, over a unix socket (a TCP loopback port on Windows).
package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"runtime"
	"time"

	"github.com/Maphikza/sip-privacy-wallet/internal/logger"
)

const (
	DefaultSocketPath    = "/tmp/sip-wallet.sock"
	DefaultWindowsSocket = "127.0.0.1:7070"
	writeTimeout         = 2 * time.Second
)

func endpoint(path string) (string, string) {
	if runtime.GOOS == "windows" {
		if path == "" {
			path = DefaultWindowsSocket
		}
		return "tcp", path
	}
	if path == "" {
		path = DefaultSocketPath
	}
	return "unix", path
}

// NewServer listens on path. A stale unix socket file left by a crashed
// process is removed first.
func NewServer(path string) (*Server, error) {
	network, addr := endpoint(path)
	if network == "unix" {
		if _, err := os.Stat(addr); err == nil {
			if err := os.Remove(addr); err != nil {
				return nil, fmt.Errorf("failed to remove existing socket file: %v", err)
			}
		}
	}

	listener, err := net.Listen(network, addr)
	if err != nil {
		return nil, err
	}

	server := &Server{
		listener:    listener,
		network:     network,
		path:        addr,
		subscribers: make(map[net.Conn]bool),
		done:        make(chan struct{}),
	}
	go server.accept()
	return server, nil
}

// Addr is the address clients dial.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

func (s *Server) accept() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			logger.Warn("Failed to accept ipc connection", "error", err)
			continue
		}
		go s.handleConnection(conn)
	}
}

// handleConnection subscribes conn until the client hangs up. Clients only
// listen; anything they send is discarded.
func (s *Server) handleConnection(conn net.Conn) {
	s.AddSubscriber(conn)
	defer func() {
		s.RemoveSubscriber(conn)
		conn.Close()
	}()

	buffer := make([]byte, 512)
	for {
		if _, err := conn.Read(buffer); err != nil {
			return
		}
	}
}

// Notify broadcasts a notification to every subscriber. Subscribers that
// cannot keep up are dropped.
func (s *Server) Notify(_ context.Context, title, body string, data map[string]string) {
	s.Broadcast(Event{Title: title, Body: body, Data: data, At: time.Now()})
}

func (s *Server) Broadcast(ev Event) {
	line, err := json.Marshal(ev)
	if err != nil {
		logger.Error("Failed to marshal ipc event", "error", err)
		return
	}
	line = append(line, '\n')

	s.mutex.Lock()
	defer s.mutex.Unlock()

	for conn := range s.subscribers {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := conn.Write(line); err != nil {
			logger.Warn("Dropping ipc subscriber", "error", err)
			delete(s.subscribers, conn)
			conn.Close()
		}
	}
}

func (s *Server) AddSubscriber(conn net.Conn) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.subscribers[conn] = true
}

func (s *Server) RemoveSubscriber(conn net.Conn) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.subscribers, conn)
}

// Subscribers reports how many clients are connected.
func (s *Server) Subscribers() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.subscribers)
}

func (s *Server) Close() error {
	close(s.done)
	err := s.listener.Close()

	s.mutex.Lock()
	for conn := range s.subscribers {
		conn.Close()
	}
	s.subscribers = map[net.Conn]bool{}
	s.mutex.Unlock()
	return err
}

// NewClient dials the server at path.
func NewClient(ctx context.Context, path string) (*Client, error) {
	network, addr := endpoint(path)
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// Next blocks until the next event arrives or the connection closes.
func (c *Client) Next() (Event, error) {
	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return Event{}, err
	}
	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return Event{}, fmt.Errorf("error unmarshaling event: %v", err)
	}
	return ev, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
