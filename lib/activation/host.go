// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package activation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/loopback/lib/codec"
	"github.com/bureau-foundation/loopback/lib/lifecycle"
)

// readTimeout is how long the host waits for the client to send its
// request after connecting.
const readTimeout = 30 * time.Second

// writeTimeout bounds writing the response.
const writeTimeout = 10 * time.Second

// maxRequestSize bounds a single CBOR request. An exemption list of a
// few thousand SIDs is well under this.
const maxRequestSize = 1024 * 1024

// liveDialTimeout bounds the dial used to tell a live socket from a stale
// file.
const liveDialTimeout = time.Second

// Host serves registered classes on per-class Unix sockets. It
// implements lifecycle.Module.
type Host struct {
	runDir string
	logger *slog.Logger

	mu      sync.Mutex
	next    lifecycle.Token
	classes map[lifecycle.Token]*classListener
}

// NewHost returns a Host that creates sockets in runDir.
func NewHost(runDir string, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Host{
		runDir:  runDir,
		logger:  logger,
		classes: make(map[lifecycle.Token]*classListener),
	}
}

// classListener serves one class registration.
type classListener struct {
	classID    uuid.UUID
	object     lifecycle.ClassObject
	socketPath string
	listener   net.Listener
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// activeConnections tracks in-flight requests so Revoke can wait
	// for them.
	activeConnections sync.WaitGroup
	accepting         sync.WaitGroup

	mu        sync.Mutex
	instances map[uuid.UUID]*lifecycle.Activation
}

// Register starts listening for classID. A socket file left by a dead
// process is removed; a socket that still accepts connections means
// another process serves the class and fails with ErrAlreadyRegistered.
func (h *Host) Register(classID uuid.UUID, object lifecycle.ClassObject) (lifecycle.Token, error) {
	socketPath := SocketPath(h.runDir, classID)

	if err := os.MkdirAll(h.runDir, 0o700); err != nil {
		return 0, fmt.Errorf("creating run directory %s: %w", h.runDir, err)
	}
	if conn, err := net.DialTimeout("unix", socketPath, liveDialTimeout); err == nil {
		conn.Close()
		return 0, fmt.Errorf("%s: %w", socketPath, ErrAlreadyRegistered)
	}
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return 0, fmt.Errorf("removing stale socket %s: %w", socketPath, err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return 0, fmt.Errorf("listening on %s: %w", socketPath, err)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		listener.Close()
		return 0, fmt.Errorf("restricting socket %s: %w", socketPath, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	class := &classListener{
		classID:    classID,
		object:     object,
		socketPath: socketPath,
		listener:   listener,
		logger:     h.logger.With("class_id", classID),
		ctx:        ctx,
		cancel:     cancel,
		instances:  make(map[uuid.UUID]*lifecycle.Activation),
	}

	h.mu.Lock()
	h.next++
	token := h.next
	h.classes[token] = class
	h.mu.Unlock()

	class.accepting.Add(1)
	go class.acceptLoop()

	class.logger.Info("class socket listening", "path", socketPath)
	return token, nil
}

// Revoke stops accepting activations for the registration, waits for
// in-flight requests, releases instances clients never released, and
// removes the socket file.
func (h *Host) Revoke(token lifecycle.Token) error {
	h.mu.Lock()
	class, ok := h.classes[token]
	delete(h.classes, token)
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("activation: unknown registration token %d", token)
	}
	return class.close()
}

// Close revokes every remaining registration.
func (h *Host) Close() error {
	h.mu.Lock()
	classes := h.classes
	h.classes = make(map[lifecycle.Token]*classListener)
	h.mu.Unlock()

	var errs []error
	for _, class := range classes {
		errs = append(errs, class.close())
	}
	return errors.Join(errs...)
}

func (c *classListener) close() error {
	c.listener.Close()
	c.accepting.Wait()
	c.activeConnections.Wait()
	c.cancel()

	c.mu.Lock()
	orphans := c.instances
	c.instances = make(map[uuid.UUID]*lifecycle.Activation)
	c.mu.Unlock()
	for id, activation := range orphans {
		c.logger.Warn("releasing instance left active at revocation", "instance", id)
		activation.Release()
	}

	if err := os.Remove(c.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing socket %s: %w", c.socketPath, err)
	}
	c.logger.Info("class socket closed", "path", c.socketPath)
	return nil
}

func (c *classListener) acceptLoop() {
	defer c.accepting.Done()
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			c.logger.Error("accept failed", "error", err)
			continue
		}

		c.activeConnections.Add(1)
		go func() {
			defer c.activeConnections.Done()
			c.handleConnection(conn)
		}()
	}
}

// handleConnection processes one request-response cycle.
func (c *classListener) handleConnection(conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		c.writeError(conn, invalidRequest("invalid request: %v", err))
		return
	}

	var header struct {
		Action   string `cbor:"action"`
		Instance string `cbor:"instance"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		c.writeError(conn, invalidRequest("invalid request: %v", err))
		return
	}
	if header.Action == "" {
		c.writeError(conn, invalidRequest("missing required field: action"))
		return
	}

	result, err := c.dispatch(header.Action, header.Instance, []byte(raw))
	if err != nil {
		c.logger.Debug("action failed",
			"action", header.Action,
			"error", err,
		)
		c.writeError(conn, err)
		return
	}
	c.writeSuccess(conn, result)
}

func (c *classListener) dispatch(action, instance string, raw []byte) (any, error) {
	switch action {
	case ActionActivate:
		return c.activate()

	case ActionLockServer:
		var request struct {
			Lock bool `cbor:"lock"`
		}
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, invalidRequest("invalid lock_server request: %v", err)
		}
		c.object.LockServer(request.Lock)
		return nil, nil

	case ActionRelease:
		activation, err := c.take(instance)
		if err != nil {
			return nil, err
		}
		activation.Release()
		c.logger.Debug("instance released", "instance", activation.ID)
		return nil, nil

	case ActionPing:
		if _, err := c.lookup(instance); err != nil {
			return nil, err
		}
		return PingResult{PID: os.Getpid()}, nil

	default:
		activation, err := c.lookup(instance)
		if err != nil {
			return nil, err
		}
		return activation.Instance.Invoke(c.ctx, action, raw)
	}
}

func (c *classListener) activate() (any, error) {
	activation, err := c.object.CreateInstance(c.ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.instances[activation.ID] = activation
	c.mu.Unlock()

	return ActivateResult{
		Instance: activation.ID.String(),
		ClassID:  c.classID.String(),
		PID:      os.Getpid(),
	}, nil
}

func (c *classListener) lookup(instance string) (*lifecycle.Activation, error) {
	id, err := parseInstance(instance)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	activation, ok := c.instances[id]
	if !ok {
		return nil, &protocolError{code: CodeNotFound, message: fmt.Sprintf("no active instance %s", id)}
	}
	return activation, nil
}

func (c *classListener) take(instance string) (*lifecycle.Activation, error) {
	id, err := parseInstance(instance)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	activation, ok := c.instances[id]
	if !ok {
		return nil, &protocolError{code: CodeNotFound, message: fmt.Sprintf("no active instance %s", id)}
	}
	delete(c.instances, id)
	return activation, nil
}

func parseInstance(instance string) (uuid.UUID, error) {
	if instance == "" {
		return uuid.Nil, invalidRequest("missing required field: instance")
	}
	id, err := uuid.Parse(instance)
	if err != nil {
		return uuid.Nil, invalidRequest("invalid instance %q: %v", instance, err)
	}
	return id, nil
}

// writeError sends {ok: false, error, code}. Write failures are logged
// at debug level; the connection is closing regardless.
func (c *classListener) writeError(conn net.Conn, err error) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if writeErr := codec.NewEncoder(conn).Encode(Response{
		OK:    false,
		Error: err.Error(),
		Code:  errorCode(err),
	}); writeErr != nil {
		c.logger.Debug("failed to write error response", "error", writeErr)
	}
}

// writeSuccess sends {ok: true} with the result, if any, CBOR-encoded
// in data.
func (c *classListener) writeSuccess(conn net.Conn, result any) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	response := Response{OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			c.writeError(conn, fmt.Errorf("marshaling response: %w", err))
			return
		}
		response.Data = data
	}

	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		c.logger.Debug("failed to write success response", "error", err)
	}
}
