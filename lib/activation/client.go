// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package activation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/loopback/lib/codec"
	"github.com/bureau-foundation/loopback/lib/process"
)

// dialTimeout covers only the connect phase.
const dialTimeout = 5 * time.Second

// responseReadTimeout is how long the client waits for a response after
// writing the request. It allows for the host's read and write timeouts
// plus handler time, which includes an elevation prompt.
const responseReadTimeout = 2 * time.Minute

// maxResponseSize matches the host's maxRequestSize.
const maxResponseSize = 1024 * 1024

// Client activates classes served under one run directory.
type Client struct {
	runDir string
}

// NewClient returns a Client for the sockets in runDir.
func NewClient(runDir string) *Client {
	return &Client{runDir: runDir}
}

// Activate creates an instance of classID in the serving process.
// Returns an error wrapping ErrNotServed when no process serves the
// class.
func (c *Client) Activate(ctx context.Context, classID uuid.UUID) (*Object, error) {
	socketPath := SocketPath(c.runDir, classID)

	var result ActivateResult
	if err := call(ctx, socketPath, ActionActivate, nil, &result); err != nil {
		return nil, err
	}
	instance, err := uuid.Parse(result.Instance)
	if err != nil {
		return nil, fmt.Errorf("activate returned invalid instance %q: %w", result.Instance, err)
	}
	return &Object{
		classID:    classID,
		instance:   instance,
		pid:        result.PID,
		socketPath: socketPath,
	}, nil
}

// LockServer adds or drops a server reference on the process serving
// classID without activating an instance.
func (c *Client) LockServer(ctx context.Context, classID uuid.UUID, lock bool) error {
	return call(ctx, SocketPath(c.runDir, classID), ActionLockServer, map[string]any{"lock": lock}, nil)
}

// Object is one activated instance.
type Object struct {
	classID    uuid.UUID
	instance   uuid.UUID
	pid        int
	socketPath string
}

// ClassID returns the class the object was activated from.
func (o *Object) ClassID() uuid.UUID { return o.classID }

// Instance returns the activation id.
func (o *Object) Instance() uuid.UUID { return o.instance }

// PID returns the serving process id reported at activation.
func (o *Object) PID() int { return o.pid }

// Call invokes method on the instance. fields holds the method's
// arguments; the client adds "action" and "instance". On success, if
// result is non-nil and the response carries data, the data is decoded
// into result. A failure reported by the server is a *RemoteError.
func (o *Object) Call(ctx context.Context, method string, fields map[string]any, result any) error {
	request := make(map[string]any, len(fields)+1)
	maps.Copy(request, fields)
	request["instance"] = o.instance.String()
	return call(ctx, o.socketPath, method, request, result)
}

// Running reports whether the serving process is alive and still holds
// this instance.
func (o *Object) Running(ctx context.Context) bool {
	if !process.IsAlive(o.pid) {
		return false
	}
	return o.Call(ctx, ActionPing, nil, nil) == nil
}

// Release drops the instance and its server reference.
func (o *Object) Release(ctx context.Context) error {
	return o.Call(ctx, ActionRelease, nil, nil)
}

func call(ctx context.Context, socketPath, action string, fields map[string]any, result any) error {
	request := make(map[string]any, len(fields)+1)
	maps.Copy(request, fields)
	request["action"] = action

	response, err := send(ctx, socketPath, request)
	if err != nil {
		return fmt.Errorf("calling %q on %s: %w", action, socketPath, err)
	}

	if !response.OK {
		return &RemoteError{
			Action:  action,
			Code:    response.Code,
			Message: response.Error,
		}
	}

	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding response data for %q: %w", action, err)
		}
	}
	return nil
}

// send connects, writes the request, and reads the response. Each call
// uses a new connection.
func send(ctx context.Context, socketPath string, request any) (*Response, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) {
			return nil, fmt.Errorf("%w: %v", ErrNotServed, err)
		}
		return nil, fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}

	// Half-close so the host's decoder sees a clean EOF after the
	// request.
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	if _, ok := ctx.Deadline(); !ok {
		conn.SetReadDeadline(time.Now().Add(responseReadTimeout))
	}
	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &response, nil
}
