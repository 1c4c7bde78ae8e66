package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"runtime"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/scylladb/cql-native-driver/frame"
	"github.com/scylladb/cql-native-driver/frame/request"
	"github.com/scylladb/cql-native-driver/frame/response"
)

// TODO request coalescing currently only batches whatever is already queued
// when the timer fires; it does not grow the batch past the channel's
// instantaneous backlog.

// connState tracks the linear handshake progression: Init → Starting →
// Authenticating → Ready → Defunct/Closed. Ready is the only state in
// which user requests are accepted.
type connState int32

const (
	stateInit connState = iota
	stateStarting
	stateAuthenticating
	stateReady
	stateDefunct
	stateClosed
)

// ConnConfig bundles the configuration surface that applies at the level
// of a single Connection.
type ConnConfig struct {
	Keyspace string

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	TCPNoDelay     bool
	KeepAlive      time.Duration

	DefaultConsistency frame.Consistency
	Compression        frame.Compressor
	CQLVersion         string

	TLSConfig *tls.Config

	AuthProvider AuthProvider

	// HeartBeatInterval governs the OPTIONS heartbeat. Zero disables
	// heartbeating (used by short-lived diagnostic connections).
	HeartBeatInterval time.Duration

	// CoalesceWaitTime bounds how long the write path waits to batch
	// further requests into one socket write.
	CoalesceWaitTime time.Duration

	// DefunctReadTimeoutThreshold is the number of simultaneous stream
	// timeouts that causes the Connection to close itself eagerly.
	DefunctReadTimeoutThreshold int

	Logger Logger
}

// DefaultConnConfig returns conservative defaults, extended with the
// ambient knobs (heartbeat, coalescing, defunct threshold) the connection
// pooling and retry layers call for.
func DefaultConnConfig(keyspace string) ConnConfig {
	return ConnConfig{
		Keyspace:                    keyspace,
		ConnectTimeout:              600 * time.Millisecond,
		ReadTimeout:                 12 * time.Second,
		TCPNoDelay:                  true,
		DefaultConsistency:          frame.QUORUM,
		CQLVersion:                  "3.0.0",
		HeartBeatInterval:           30 * time.Second,
		CoalesceWaitTime:            200 * time.Microsecond,
		DefunctReadTimeoutThreshold: 16,
		Logger:                      DefaultLogger{},
	}
}

type rawResponse struct {
	Header   frame.Header
	Response frame.Response
	Err      error
}

type responseHandler chan rawResponse

type pendingRequest struct {
	handler  responseHandler
	deadline time.Time
}

type outboundRequest struct {
	req      frame.Request
	streamID frame.StreamID
	compress bool
	result   responseHandler
}

const (
	requestChanSize = 1024
	ioBufferSize    = 8192
)

// connWriter owns the socket's write half. Requests are coalesced: writes
// accumulate in a Buffer until either the channel briefly drains (the event
// loop "yields") or coalesceWait elapses, then one socket write flushes
// everything at once, trading a little added latency for fewer syscalls.
type connWriter struct {
	conn         io.Writer
	codec        *frame.Codec
	version      frame.ProtocolVersion
	buf          frame.Buffer
	requestCh    chan outboundRequest
	coalesceWait time.Duration
}

func (w *connWriter) loop() {
	runtime.LockOSThread()

	for {
		r, ok := <-w.requestCh
		if !ok {
			return
		}

		w.buf.Reset()
		if err := w.encode(r); err != nil {
			r.result <- rawResponse{Err: fmt.Errorf("encode request: %w", err)}
			continue
		}

		pending := []outboundRequest{r}
		timer := time.NewTimer(w.coalesceWait)
	coalesce:
		for {
			select {
			case next, ok := <-w.requestCh:
				if !ok {
					break coalesce
				}
				if err := w.encode(next); err != nil {
					next.result <- rawResponse{Err: fmt.Errorf("encode request: %w", err)}
					continue
				}
				pending = append(pending, next)
			case <-timer.C:
				break coalesce
			default:
				if len(pending) > 0 {
					break coalesce
				}
			}
		}
		timer.Stop()

		if _, err := frame.CopyBuffer(&w.buf, w.conn); err != nil {
			for _, p := range pending {
				p.result <- rawResponse{Err: fmt.Errorf("write: %w", err)}
			}
		}
	}
}

func (w *connWriter) encode(r outboundRequest) error {
	return w.codec.Encode(&w.buf, w.version, r.streamID, r.req, r.compress)
}

// connReader owns the socket's read half and the stream-id table.
type connReader struct {
	conn    *bufio.Reader
	codec   *frame.Codec
	version frame.ProtocolVersion
	host    string

	mu sync.Mutex
	h  map[frame.StreamID]*pendingRequest
	s  streamIDAllocator

	onEvent   func(*response.Event)
	onDefunct func(error)
}

func (c *connReader) setHandler(h responseHandler, timeout time.Duration) (frame.StreamID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	streamID, err := c.s.Alloc()
	if err != nil {
		return 0, &BusyConnection{Host: c.host}
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	c.h[streamID] = &pendingRequest{handler: h, deadline: deadline}
	return streamID, nil
}

func (c *connReader) freeHandler(streamID frame.StreamID) {
	c.mu.Lock()
	delete(c.h, streamID)
	c.s.Free(streamID)
	c.mu.Unlock()
}

func (c *connReader) takeHandler(streamID frame.StreamID) responseHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.h[streamID]
	if !ok {
		return nil
	}
	delete(c.h, streamID)
	c.s.Free(streamID)
	return p.handler
}

// inFlight returns the current pending-request count, used by the Host Pool
// to pick the least-busy Connection.
func (c *connReader) inFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.h)
}

// failAll resolves every pending request with err, used on socket failure
// and when the defunct threshold trips.
func (c *connReader) failAll(err error) {
	c.mu.Lock()
	pending := c.h
	c.h = make(map[frame.StreamID]*pendingRequest)
	c.mu.Unlock()

	for id, p := range pending {
		c.s.Free(id)
		p.handler <- rawResponse{Err: err}
	}
}

func (c *connReader) loop() {
	runtime.LockOSThread()

	var scratch frame.Buffer
	for {
		h, err := c.codec.ReadFrame(c.conn, &scratch)
		if err != nil {
			c.onDefunct(err)
			return
		}
		if err := frame.ValidateFlags(h.Flags); err != nil {
			c.onDefunct(err)
			return
		}

		if h.StreamID == frame.EventStreamID {
			ev := response.ParseEvent(&scratch)
			if c.onEvent != nil {
				c.onEvent(ev)
			}
			continue
		}

		handler := c.takeHandler(h.StreamID)
		if handler == nil {
			// Stream with no registered waiter: either it already timed
			// out (and the caller gave up) or the peer misbehaved. Either
			// way, the frame is simply discarded.
			continue
		}

		var resp rawResponse
		resp.Header = h
		if h.OpCode == frame.OpError {
			resp.Err = responseAsError(response.ParseError(&scratch))
		} else {
			resp.Response = parseBody(h.OpCode, &scratch)
		}
		handler <- resp
	}
}

func parseBody(op frame.OpCode, b *frame.Buffer) frame.Response {
	switch op {
	case frame.OpReady:
		return response.ParseReady(b)
	case frame.OpAuthenticate:
		return response.ParseAuthenticate(b)
	case frame.OpAuthChallenge:
		return response.ParseAuthChallenge(b)
	case frame.OpAuthSuccess:
		return response.ParseAuthSuccess(b)
	case frame.OpSupported:
		return response.ParseSupported(b)
	case frame.OpResult:
		return response.ParseResult(b)
	default:
		return nil
	}
}

// checkTimeouts scans pending requests for expired deadlines, failing each
// with a client-timeout SocketError. The caller compares the return value
// against DefunctReadTimeoutThreshold.
func (c *connReader) checkTimeouts() (timedOut int) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, p := range c.h {
		if p.deadline.IsZero() || now.Before(p.deadline) {
			continue
		}
		delete(c.h, id)
		c.s.Free(id)
		p.handler <- rawResponse{Err: &SocketError{Host: c.host, Err: fmt.Errorf("client timeout waiting for stream %d", id)}}
		timedOut++
	}
	return timedOut
}

// Conn is one multiplexed TCP (optionally TLS) connection to a Host.
type Conn struct {
	conn    net.Conn
	host    string
	version frame.ProtocolVersion
	w       connWriter
	r       connReader
	cfg     ConnConfig

	state        atomic.Int32
	lastActivity atomic.Int64 // unix nanos
	closeOnce    sync.Once
	closed       chan struct{}
}

// OpenConn dials addr and negotiates the protocol version, walking
// frame.SupportedVersions highest-first and falling back to the next lower
// version whenever the server rejects STARTUP with a protocol-error ERROR
// frame, stopping at the first version both sides support. It then
// authenticates if requested and optionally issues `USE <keyspace>`. The
// returned Conn is in the Ready state and accepts requests. No REGISTER is
// issued here; the Control Connection does that itself after bootstrap.
func OpenConn(ctx context.Context, addr string, provider AuthProvider, cfg ConnConfig) (*Conn, error) {
	var lastErr error
	for _, version := range frame.SupportedVersions {
		c, err := dialAndHandshake(ctx, addr, version, provider, cfg)
		if err == nil {
			return c, nil
		}
		lastErr = err
		if !isProtocolVersionMismatch(err) {
			return nil, err
		}
		cfg.Logger.Printf("connecting to %s: server rejected protocol version %v, trying the next lower version", addr, version)
	}
	return nil, lastErr
}

// isProtocolVersionMismatch reports whether err is the server's ERROR
// response to an unsupported STARTUP version, the signal to retry the
// handshake one rung down frame.SupportedVersions.
func isProtocolVersionMismatch(err error) bool {
	coded, ok := err.(response.CodedError)
	return ok && coded.Code() == response.ErrProtocolError
}

func dialAndHandshake(ctx context.Context, addr string, version frame.ProtocolVersion, provider AuthProvider, cfg ConnConfig) (*Conn, error) {
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &SocketError{Host: addr, Err: fmt.Errorf("dial: %w", err)}
	}

	if cfg.TLSConfig != nil {
		tlsConn := tls.Client(raw, cfg.TLSConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = raw.Close()
			return nil, &SocketError{Host: addr, Err: fmt.Errorf("tls handshake: %w", err)}
		}
		raw = tlsConn
	} else if tcpConn, ok := raw.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(cfg.TCPNoDelay)
		if cfg.KeepAlive > 0 {
			_ = tcpConn.SetKeepAlive(true)
			_ = tcpConn.SetKeepAlivePeriod(cfg.KeepAlive)
		}
	}

	c := wrapConn(raw, addr, version, cfg)
	if err := c.handshake(ctx, provider); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func wrapConn(conn net.Conn, host string, version frame.ProtocolVersion, cfg ConnConfig) *Conn {
	c := &Conn{
		conn:    conn,
		host:    host,
		version: version,
		cfg:     cfg,
		closed:  make(chan struct{}),
	}
	c.w = connWriter{
		conn:         conn,
		codec:        &frame.Codec{Compressor: cfg.Compression},
		version:      version,
		requestCh:    make(chan outboundRequest, requestChanSize),
		coalesceWait: cfg.CoalesceWaitTime,
	}
	c.r = connReader{
		conn:    bufio.NewReaderSize(conn, ioBufferSize),
		codec:   &frame.Codec{Compressor: cfg.Compression},
		version: version,
		host:    host,
		h:       make(map[frame.StreamID]*pendingRequest),
		s:       newStreamIDAllocator(version),
	}
	c.r.onDefunct = func(err error) { c.markDefunct(err) }

	go c.w.loop()
	go c.r.loop()
	if cfg.HeartBeatInterval > 0 {
		go c.heartbeatLoop()
	}
	return c
}

func (c *Conn) handshake(ctx context.Context, provider AuthProvider) error {
	c.state.Store(int32(stateStarting))

	options := map[string]string{"CQL_VERSION": c.cfg.CQLVersion}
	if options["CQL_VERSION"] == "" {
		options["CQL_VERSION"] = "3.0.0"
	}
	if c.cfg.Compression != nil {
		options["COMPRESSION"] = c.cfg.Compression.Name()
	}

	resp, err := c.sendRequestCtx(ctx, &request.Startup{Options: options}, false)
	if err != nil {
		return err
	}

	switch r := resp.(type) {
	case *response.Ready:
		// no auth required
	case *response.Authenticate:
		c.state.Store(int32(stateAuthenticating))
		if err := c.authenticate(ctx, provider, r.Class); err != nil {
			return err
		}
	default:
		return &DriverInternalError{Err: fmt.Errorf("unexpected STARTUP response %T", resp)}
	}

	if c.cfg.Keyspace != "" {
		q := &request.Query{Statement: fmt.Sprintf("USE %s", c.cfg.Keyspace), Params: request.QueryParams{Consistency: frame.ONE}}
		if _, err := c.sendRequestCtx(ctx, q, false); err != nil {
			return fmt.Errorf("USE %s: %w", c.cfg.Keyspace, err)
		}
	}

	c.state.Store(int32(stateReady))
	return nil
}

func (c *Conn) authenticate(ctx context.Context, provider AuthProvider, class string) error {
	if provider == nil {
		return &AuthenticationError{Host: c.host, Err: fmt.Errorf("remote requires authentication (class %s) but no AuthProvider was configured", class)}
	}

	authenticator, err := provider.NewAuthenticator(c.host, class)
	if err != nil {
		return &AuthenticationError{Host: c.host, Err: err}
	}

	token, err := authenticator.InitialResponse()
	if err != nil {
		return &AuthenticationError{Host: c.host, Err: err}
	}

	for {
		resp, err := c.sendRequestCtx(ctx, &request.AuthResponse{Token: token}, false)
		if err != nil {
			return &AuthenticationError{Host: c.host, Err: err}
		}

		switch r := resp.(type) {
		case *response.AuthChallenge:
			token, err = authenticator.EvaluateChallenge(r.Token)
			if err != nil {
				return &AuthenticationError{Host: c.host, Err: err}
			}
		case *response.AuthSuccess:
			// Fire-and-forget: the handshake has already succeeded from
			// the server's perspective.
			if err := authenticator.OnAuthenticationSuccess(r.Token); err != nil {
				c.cfg.Logger.Printf("auth: on-success callback failed for %s: %v", c.host, err)
			}
			return nil
		default:
			return &DriverInternalError{Err: fmt.Errorf("unexpected auth response %T", resp)}
		}
	}
}

// Host returns the endpoint this Connection talks to.
func (c *Conn) Host() string { return c.host }

// Version returns the negotiated protocol version.
func (c *Conn) Version() frame.ProtocolVersion { return c.version }

// InFlight returns the number of currently outstanding requests, used by
// the Host Pool to pick the least-busy Connection.
func (c *Conn) InFlight() int {
	return c.r.inFlight()
}

// IsReady reports whether the Connection currently accepts user requests.
func (c *Conn) IsReady() bool {
	return connState(c.state.Load()) == stateReady
}

// SetEventHandler installs the callback invoked for EVENT frames (stream-id
// -1); only the Control Connection should call this.
func (c *Conn) SetEventHandler(f func(*response.Event)) {
	c.r.onEvent = f
}

// Send submits req and blocks until a response arrives, the context is
// canceled, or the connection becomes defunct.
func (c *Conn) Send(ctx context.Context, req frame.Request) (frame.Response, error) {
	if connState(c.state.Load()) != stateReady {
		return nil, &SocketError{Host: c.host, Err: fmt.Errorf("connection not ready")}
	}
	return c.sendRequestCtx(ctx, req, c.cfg.Compression != nil)
}

func (c *Conn) sendRequestCtx(ctx context.Context, req frame.Request, compress bool) (frame.Response, error) {
	h := make(responseHandler, 1)

	streamID, err := c.r.setHandler(h, c.cfg.ReadTimeout)
	if err != nil {
		return nil, err
	}

	select {
	case c.w.requestCh <- outboundRequest{req: req, streamID: streamID, compress: compress, result: h}:
	case <-ctx.Done():
		c.r.freeHandler(streamID)
		return nil, ctx.Err()
	case <-c.closed:
		c.r.freeHandler(streamID)
		return nil, &SocketError{Host: c.host, Err: fmt.Errorf("connection closed")}
	}

	c.touch()

	select {
	case resp := <-h:
		return resp.Response, resp.Err
	case <-ctx.Done():
		c.r.freeHandler(streamID)
		return nil, ctx.Err()
	}
}

func (c *Conn) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// heartbeatLoop sends OPTIONS when the connection has been idle for
// HeartBeatInterval; a failure to get a response marks the Connection
// defunct, and a count of simultaneous stream timeouts reaching
// DefunctReadTimeoutThreshold does the same.
func (c *Conn) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.HeartBeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if connState(c.state.Load()) != stateReady {
				continue
			}
			if c.cfg.DefunctReadTimeoutThreshold > 0 {
				if timedOut := c.r.checkTimeouts(); timedOut >= c.cfg.DefunctReadTimeoutThreshold {
					c.markDefunct(fmt.Errorf("defunct threshold reached: %d simultaneous stream timeouts", timedOut))
					return
				}
			}

			idle := time.Since(time.Unix(0, c.lastActivity.Load()))
			if idle < c.cfg.HeartBeatInterval {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ReadTimeout)
			_, err := c.sendRequestCtx(ctx, &request.Options{}, false)
			cancel()
			if err != nil {
				c.markDefunct(fmt.Errorf("heartbeat: %w", err))
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *Conn) markDefunct(err error) {
	c.state.Store(int32(stateDefunct))
	c.r.failAll(&SocketError{Host: c.host, Err: err})
	c.Close()
}

// Close tears down the Connection: pending requests fail with SocketError,
// the write/read goroutines exit, and the socket is closed.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(stateClosed))
		close(c.closed)
		close(c.w.requestCh)
		_ = c.conn.Close()
		c.r.failAll(&SocketError{Host: c.host, Err: fmt.Errorf("connection closed")})
	})
}

// Closed reports whether Close has been called or the connection went defunct.
func (c *Conn) Closed() bool {
	s := connState(c.state.Load())
	return s == stateClosed || s == stateDefunct
}
