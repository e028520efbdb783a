// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package activation carries class activation and method calls between
// processes over Unix sockets.
//
// A [Host] is a [lifecycle.Module]: each registered class id listens on
// its own socket, <run-dir>/<class-id>.sock. Every connection carries
// exactly one CBOR request and one CBOR response, then closes:
//
//	request:  {action: "...", instance: "<activation id>", ...fields}
//	response: {ok: bool, error: "...", code: "...", data: <cbor>}
//
// The actions activate, release, lock_server, and ping are handled by
// the host itself. Any other action is a method call on the instance
// named by the instance field. Failed responses carry a machine-readable
// code taken from the handler error's ErrorCode method, "internal" when
// it has none.
//
// [Client] is the calling side. [Client.Activate] returns an [Object]
// bound to one activated instance; the object holds a server reference
// until [Object.Release].
package activation
