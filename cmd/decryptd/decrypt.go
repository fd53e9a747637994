// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luxfi/decrypt"
	"github.com/luxfi/decrypt/orchestrator"
)

const (
	contractFlag = "contract"
	handleFlag   = "handle"
)

var decryptCmd = &cobra.Command{
	Use:   "decrypt --contract 0x... --handle 0x... [--handle 0x...]",
	Short: "Decrypt handles of one contract and print the results",
	RunE: func(cmd *cobra.Command, _ []string) error {
		contract, err := cmd.Flags().GetString(contractFlag)
		if err != nil {
			return err
		}
		handles, err := cmd.Flags().GetStringSlice(handleFlag)
		if err != nil {
			return err
		}
		if len(handles) == 0 {
			return fmt.Errorf("at least one --%s is required", handleFlag)
		}
		pairs := make([]decrypt.HandleContractPair, len(handles))
		for i, h := range handles {
			if pairs[i], err = decrypt.NewHandleContractPair(h, contract); err != nil {
				return err
			}
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		defer func() { _ = logger.Sync() }()

		ctx := cmd.Context()
		svc, err := newService(ctx, logger, cfg, nil)
		if err != nil {
			return err
		}
		defer func() {
			if err := svc.Close(); err != nil {
				logger.Warn("Failed to close service", zap.Error(err))
			}
		}()

		if err := svc.orchestrator.Decrypt(ctx, pairs); err != nil {
			return err
		}
		return printResults(cmd.OutOrStdout(), svc.orchestrator, pairs)
	},
}

func init() {
	decryptCmd.Flags().String(contractFlag, "", "Contract the handles belong to")
	decryptCmd.Flags().StringSlice(handleFlag, nil, "Handle to decrypt, repeatable")
	_ = decryptCmd.MarkFlagRequired(contractFlag)
}

type result struct {
	Handle decrypt.Handle      `json:"handle"`
	Status orchestrator.Status `json:"status"`
	Value  *decrypt.Value      `json:"value,omitempty"`
	Error  string              `json:"error,omitempty"`
}

// printResults writes one JSON line per pair
func printResults(w io.Writer, o *orchestrator.Orchestrator, pairs []decrypt.HandleContractPair) error {
	enc := json.NewEncoder(w)
	for _, p := range pairs {
		r := result{
			Handle: p.Handle,
			Status: o.GetStatus(p.Handle),
		}
		if v, ok := o.GetResult(p.Handle); ok {
			r.Value = &v
		}
		if err := o.GetError(p.Handle); err != nil {
			r.Error = err.Error()
		}
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
