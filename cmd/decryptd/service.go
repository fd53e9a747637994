// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"

	"github.com/luxfi/geth/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/luxfi/decrypt/config"
	"github.com/luxfi/decrypt/coordinator"
	"github.com/luxfi/decrypt/fhe"
	"github.com/luxfi/decrypt/metrics"
	"github.com/luxfi/decrypt/orchestrator"
	"github.com/luxfi/decrypt/sigcache"
	"github.com/luxfi/decrypt/signer"
	"github.com/luxfi/decrypt/store"
)

const inProcessInstanceID = "in-process"

type service struct {
	store        store.Store
	metrics      *metrics.DecryptMetrics
	orchestrator *orchestrator.Orchestrator
	closers      []func() error
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevelValue())
	return zapCfg.Build()
}

// newService wires the store, signature cache, FHE instance, wallet signer,
// coordinator and orchestrator described by cfg
func newService(
	ctx context.Context,
	logger *zap.Logger,
	cfg config.Config,
	registerer prometheus.Registerer,
) (*service, error) {
	s := &service{
		metrics: metrics.NewDecryptMetrics(registerer),
	}

	switch cfg.StoreBackend {
	case config.StoreBackendRedis:
		redisStore, err := store.DialRedis(ctx, cfg.RedisURL, cfg.RedisKeyPrefix, cfg.RedisKeyTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		s.store = redisStore
		s.closers = append(s.closers, redisStore.Close)
	default:
		memoryStore, err := store.NewMemoryStore(cfg.MemoryStoreSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create memory store: %w", err)
		}
		s.store = memoryStore
	}
	sigs := sigcache.New(logger.Named("sigcache"), s.store, s.metrics)

	builder := fhe.EIP712Builder{
		ChainID:           cfg.GatewayChain(),
		VerifyingContract: cfg.VerifyingContractAddress(),
	}
	var (
		instance   fhe.Instance
		instanceID string
	)
	if cfg.RelayerURL != "" {
		relayer, err := fhe.NewRelayer(logger.Named("relayer"), fhe.RelayerConfig{
			URL:     cfg.RelayerURL,
			ChainID: cfg.ChainID,
			Timeout: cfg.RelayerTimeout,
			EIP712:  builder,
		})
		if err != nil {
			return nil, err
		}
		instance, instanceID = relayer, cfg.RelayerURL
	} else {
		logger.Warn("No relayer configured, using the in-process instance")
		fake := fhe.NewFake(cfg.ChainID)
		fake.EIP712 = builder
		instance, instanceID = fake, inProcessInstanceID
	}

	var (
		wallet signer.Signer
		user   common.Address
	)
	if cfg.SignerPrivateKey != "" {
		local, err := signer.NewLocalSignerFromHex(cfg.SignerPrivateKey)
		if err != nil {
			return nil, err
		}
		wallet = local
		if user, err = local.Address(ctx); err != nil {
			return nil, err
		}
	} else {
		logger.Warn("No signer configured, only cached signatures can be used")
	}

	coord := coordinator.New(
		logger.Named("coordinator"),
		s.metrics,
		sigs,
		instance,
		wallet,
		coordinator.WithDurationDays(cfg.SignatureDurationDays),
	)
	s.orchestrator = orchestrator.New(logger.Named("orchestrator"), s.metrics, sigs, coord, instance)
	s.orchestrator.SetContext(user, cfg.ChainID, instanceID)
	return s, nil
}

func (s *service) Close() error {
	s.orchestrator.Close()
	var err error
	for _, closer := range s.closers {
		if cerr := closer(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
