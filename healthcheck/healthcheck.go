// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package healthcheck

import (
	"context"
	"net/http"
	"time"

	"github.com/alexliesenfeld/health"

	"github.com/luxfi/decrypt/store"
)

const (
	Path = "/health"

	checkTimeout = 5 * time.Second
)

// NewHandler serves the aggregated status of checks
func NewHandler(checks ...health.Check) http.Handler {
	opts := make([]health.CheckerOption, 0, len(checks))
	for _, check := range checks {
		opts = append(opts, health.WithCheck(check))
	}
	return health.NewHandler(health.NewChecker(opts...))
}

// StoreCheck reports the signature store as down when it cannot be reached.
// Stores without a remote end are always up.
func StoreCheck(st store.Store) health.Check {
	return health.Check{
		Name:    "decrypt-signature-store",
		Timeout: checkTimeout,
		Check: func(ctx context.Context) error {
			pinger, ok := st.(store.Pinger)
			if !ok {
				return nil
			}
			return pinger.Ping(ctx)
		},
	}
}
