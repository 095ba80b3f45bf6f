package transport_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/pvaccess-protocol/pva-go/pkg/transport"
)

// TestClientConnect verifies the client establishes a TCP connection.
func TestClientConnect(t *testing.T) {
	listener := startEchoServer(t)
	defer listener.Close()

	client, err := transport.NewClient(transport.ClientConfig{})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := client.Connect(ctx, listener.Addr().String())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	if conn.LocalAddr() == nil || conn.RemoteAddr() == nil {
		t.Error("Expected non-nil local and remote addresses")
	}
}

// TestClientConnectTimeout verifies the connect timeout is honored.
func TestClientConnectTimeout(t *testing.T) {
	client, err := transport.NewClient(transport.ClientConfig{
		ConnectTimeout: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	// Unroutable address (TEST-NET-1) so the dial hangs until timeout.
	_, err = client.Connect(context.Background(), "192.0.2.1:5075")
	if err == nil {
		t.Fatal("Expected connect to fail")
	}
}

// TestClientReconnection verifies the client can reconnect after disconnection.
func TestClientReconnection(t *testing.T) {
	listener := startEchoServer(t)
	defer listener.Close()

	client, err := transport.NewClient(transport.ClientConfig{})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// First connection
	conn1, err := client.Connect(ctx, listener.Addr().String())
	if err != nil {
		t.Fatalf("First connection failed: %v", err)
	}

	// Close connection
	conn1.Close()

	// Second connection - should work
	conn2, err := client.Connect(ctx, listener.Addr().String())
	if err != nil {
		t.Fatalf("Reconnection failed: %v", err)
	}
	defer conn2.Close()

	// Verify it's a new connection
	if conn1 == conn2 {
		t.Error("Expected new connection object")
	}
}

// TestClientSendReceive verifies the client can send and receive messages.
func TestClientSendReceive(t *testing.T) {
	listener := startEchoServer(t)
	defer listener.Close()

	client, err := transport.NewClient(transport.ClientConfig{})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := client.Connect(ctx, listener.Addr().String())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	// Send message
	testMsg := []byte("Hello, pva!")
	if err := conn.Send(testMsg); err != nil {
		t.Fatalf("Failed to send: %v", err)
	}

	// Receive echo
	response, err := conn.Receive(2 * time.Second)
	if err != nil {
		t.Fatalf("Failed to receive: %v", err)
	}

	if string(response) != string(testMsg) {
		t.Errorf("Expected %q, got %q", testMsg, response)
	}
}

// TestClientReceiveTimeout verifies Receive returns an error on timeout.
func TestClientReceiveTimeout(t *testing.T) {
	listener := startSilentServer(t)
	defer listener.Close()

	client, err := transport.NewClient(transport.ClientConfig{})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := client.Connect(ctx, listener.Addr().String())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	_, err = conn.Receive(200 * time.Millisecond)
	if err == nil {
		t.Fatal("Expected receive timeout error")
	}
}

// TestClientSendAfterClose verifies Send fails on a closed connection.
func TestClientSendAfterClose(t *testing.T) {
	listener := startEchoServer(t)
	defer listener.Close()

	client, err := transport.NewClient(transport.ClientConfig{})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := client.Connect(ctx, listener.Addr().String())
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}

	conn.Close()

	if err := conn.Send([]byte("late")); err != transport.ErrConnectionClosed {
		t.Errorf("Expected ErrConnectionClosed, got %v", err)
	}
}

// Helper functions

// startEchoServer starts a TCP server that echoes back framed messages.
func startEchoServer(t *testing.T) net.Listener {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to start test server: %v", err)
	}

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				framer := transport.NewFramer(c)
				for {
					msg, err := framer.ReadFrame()
					if err != nil {
						return
					}
					if err := framer.WriteFrame(msg); err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	return listener
}

// startSilentServer starts a TCP server that accepts but never responds.
func startSilentServer(t *testing.T) net.Listener {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to start test server: %v", err)
	}

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				buf := make([]byte, 1024)
				for {
					if _, err := c.Read(buf); err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	return listener
}
