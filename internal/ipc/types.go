package ipc

import (
	"bufio"
	"net"
	"sync"
	"time"
)

// Event is one line on the socket.
type Event struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
	At    time.Time         `json:"at"`
}

type Server struct {
	listener    net.Listener
	network     string
	path        string
	mutex       sync.Mutex
	subscribers map[net.Conn]bool
	done        chan struct{}
}

type Client struct {
	conn   net.Conn
	reader *bufio.Reader
}
