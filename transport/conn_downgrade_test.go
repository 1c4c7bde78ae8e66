package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/scylladb/cql-native-driver/frame"
	"github.com/scylladb/cql-native-driver/frame/response"
)

// fakeVersionGatedServer accepts connections on ln and answers every STARTUP
// with a PROTOCOL_ERROR unless the request's protocol version is exactly
// accepted, in which case it answers READY. Each rejected STARTUP forces a
// fresh dial (the real server would otherwise have no well-defined framing
// state to resume from), mirroring how OpenConn retries one rung down
// frame.SupportedVersions.
func fakeVersionGatedServer(t *testing.T, ln net.Listener, accepted frame.ProtocolVersion) {
	t.Helper()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go func(conn net.Conn) {
			defer func() {
				if r := recover(); r != nil {
					_ = conn.Close()
				}
			}()
			serveOneStartup(conn, accepted)
		}(conn)
	}
}

func serveOneStartup(conn net.Conn, accepted frame.ProtocolVersion) {
	var scratch frame.Buffer
	header := make([]byte, frame.HeaderSize)
	if _, err := readFull(conn, header); err != nil {
		_ = conn.Close()
		return
	}
	scratch.Reset()
	_, _ = scratch.Write(header)
	h := frame.ParseHeader(&scratch)

	if h.Length > 0 {
		body := make([]byte, h.Length)
		if _, err := readFull(conn, body); err != nil {
			_ = conn.Close()
			return
		}
	}

	var resp frame.Buffer
	if h.Version != accepted {
		rh := frame.Header{Version: h.Version, Response: true, StreamID: h.StreamID, OpCode: frame.OpError}
		rh.WriteTo(&resp)
		resp.WriteInt(int32(response.ErrProtocolError))
		resp.WriteString("Invalid or unsupported protocol version")
		frame.PatchLength(resp.Bytes())
		_, _ = conn.Write(resp.Bytes())
		_ = conn.Close()
		return
	}

	rh := frame.Header{Version: h.Version, Response: true, StreamID: h.StreamID, OpCode: frame.OpReady}
	rh.WriteTo(&resp)
	frame.PatchLength(resp.Bytes())
	_, _ = conn.Write(resp.Bytes())
	// Leave the connection open; the caller's Conn is now Ready and the
	// test closes it (and the listener) on cleanup.
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := conn.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func TestOpenConn_DowngradesProtocolVersion(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	const serverVersion = frame.ProtocolVersion3
	go fakeVersionGatedServer(t, ln, serverVersion)

	cfg := DefaultConnConfig("")
	cfg.HeartBeatInterval = 0
	cfg.ConnectTimeout = 2 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := OpenConn(ctx, ln.Addr().String(), nil, cfg)
	if err != nil {
		t.Fatalf("OpenConn() error = %v, want a successful downgrade to protocol v%d", err, serverVersion)
	}
	t.Cleanup(conn.Close)

	if conn.Version() != serverVersion {
		t.Fatalf("negotiated version = %v, want %v", conn.Version(), serverVersion)
	}
}

func TestOpenConn_FailsWhenNoVersionIsAccepted(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	// No version in frame.SupportedVersions matches this, so every
	// STARTUP attempt is rejected and OpenConn must exhaust the ladder.
	go fakeVersionGatedServer(t, ln, frame.ProtocolVersion(0x7f))

	cfg := DefaultConnConfig("")
	cfg.HeartBeatInterval = 0
	cfg.ConnectTimeout = 2 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := OpenConn(ctx, ln.Addr().String(), nil, cfg); err == nil {
		t.Fatal("OpenConn() = nil error, want failure once every supported version is rejected")
	}
}

func TestIsProtocolVersionMismatch(t *testing.T) {
	t.Parallel()
	if !isProtocolVersionMismatch(&response.Error{ErrCode: response.ErrProtocolError}) {
		t.Fatal("isProtocolVersionMismatch(ErrProtocolError) = false, want true")
	}
	if isProtocolVersionMismatch(&response.Error{ErrCode: response.ErrUnavailable}) {
		t.Fatal("isProtocolVersionMismatch(ErrUnavailable) = true, want false")
	}
	if isProtocolVersionMismatch(&SocketError{}) {
		t.Fatal("isProtocolVersionMismatch(SocketError) = true, want false")
	}
}
