// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package orchestrator

import (
	"fmt"
)

// Status is the decryption state of one handle
type Status int

const (
	StatusIdle Status = iota
	StatusDecrypting
	StatusDecrypted
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusDecrypting:
		return "decrypting"
	case StatusDecrypted:
		return "decrypted"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
