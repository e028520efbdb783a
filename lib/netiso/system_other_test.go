// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package netiso

import (
	"errors"
	"testing"
)

func TestOpenSystemUnavailable(t *testing.T) {
	gateway, err := OpenSystem(nil)
	if gateway != nil {
		t.Fatal("OpenSystem returned a gateway off Windows")
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("OpenSystem error = %v, want ErrUnavailable", err)
	}
	var queryErr *QueryError
	if !errors.As(err, &queryErr) || queryErr.Op != "load" {
		t.Fatalf("OpenSystem error = %#v, want load QueryError", err)
	}
}
