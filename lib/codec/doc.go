// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration shared by the activation
// socket protocol. Requests and responses on a class socket are single
// self-delimiting CBOR values, so no framing layer is needed.
//
// Types that only travel over the socket use `cbor` tags. Types that are
// also printed as JSON by the command-line client (app container
// records, admin server descriptors) use `json` tags; fxamacker/cbor
// falls back to them when no `cbor` tag is present. Never put both tags
// on one field.
package codec
