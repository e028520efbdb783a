// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package binhash computes BLAKE3 content digests of binary files.
//
// The elevation handoff records the digest of the executable a
// non-elevated server asked the OS to relaunch. The elevated server
// hashes its own executable on start and compares: a mismatch means the
// binary on disk changed between the request and the launch, or a
// different binary answered the request.
//
//   - [HashFile] streams a file through BLAKE3 with constant memory.
//   - [FormatDigest] and [ParseDigest] convert to and from the
//     lowercase hex form used in handoff files and logs.
package binhash
