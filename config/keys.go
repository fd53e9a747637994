// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

const (
	// Command line option keys
	ConfigFileKey = "config-file"
	VersionKey    = "version"
	HelpKey       = "help"

	// Environment variable keys
	ConfigFileEnvKey = "CONFIG_FILE"

	// Top-level configuration keys
	LogLevelKey              = "log-level"
	APIPortKey               = "api-port"
	MetricsPortKey           = "metrics-port"
	StoreBackendKey          = "store-backend"
	MemoryStoreSizeKey       = "memory-store-size"
	RedisURLKey              = "redis-url"
	RedisKeyPrefixKey        = "redis-key-prefix"
	RedisKeyTTLKey           = "redis-key-ttl"
	RelayerURLKey            = "relayer-url"
	RelayerTimeoutKey        = "relayer-timeout"
	ChainIDKey               = "chain-id"
	GatewayChainIDKey        = "gateway-chain-id"
	VerifyingContractKey     = "verifying-contract"
	SignatureDurationDaysKey = "signature-duration-days"
	SignerPrivateKeyKey      = "signer-private-key"
)
