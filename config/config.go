// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"

	"github.com/luxfi/decrypt"
)

const (
	StoreBackendMemory = "memory"
	StoreBackendRedis  = "redis"

	defaultLogLevel              = "info"
	defaultAPIPort               = uint16(8080)
	defaultMetricsPort           = uint16(8081)
	defaultStoreBackend          = StoreBackendMemory
	DefaultMemoryStoreSize       = uint64(4096)
	defaultRedisKeyPrefix        = "decryptd:"
	defaultRelayerTimeout        = 30 * time.Second
	defaultChainID               = uint64(1)
	DefaultSignatureDurationDays = int64(10)
)

var errInvalidStoreBackend = errors.New("invalid store backend")

// Config is the decryptd configuration
type Config struct {
	LogLevel              string        `mapstructure:"log-level" json:"log-level"`
	APIPort               uint16        `mapstructure:"api-port" json:"api-port"`
	MetricsPort           uint16        `mapstructure:"metrics-port" json:"metrics-port"`
	StoreBackend          string        `mapstructure:"store-backend" json:"store-backend"`
	MemoryStoreSize       uint64        `mapstructure:"memory-store-size" json:"memory-store-size"`
	RedisURL              string        `mapstructure:"redis-url" json:"redis-url"`
	RedisKeyPrefix        string        `mapstructure:"redis-key-prefix" json:"redis-key-prefix"`
	RedisKeyTTL           time.Duration `mapstructure:"redis-key-ttl" json:"redis-key-ttl"`
	RelayerURL            string        `mapstructure:"relayer-url" json:"relayer-url"`
	RelayerTimeout        time.Duration `mapstructure:"relayer-timeout" json:"relayer-timeout"`
	ChainID               uint64        `mapstructure:"chain-id" json:"chain-id"`
	GatewayChainID        uint64        `mapstructure:"gateway-chain-id" json:"gateway-chain-id"`
	VerifyingContract     string        `mapstructure:"verifying-contract" json:"verifying-contract"`
	SignatureDurationDays int64         `mapstructure:"signature-duration-days" json:"signature-duration-days"`
	// Hex secp256k1 key of the local wallet. Without one, signing requests
	// fail and only already cached signatures can be used.
	SignerPrivateKey string `mapstructure:"signer-private-key" json:"-"`
}

func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	if c.APIPort == 0 {
		return errors.New("api-port must be set")
	}
	switch c.StoreBackend {
	case StoreBackendMemory:
	case StoreBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("%s is required for the redis store backend", RedisURLKey)
		}
	default:
		return fmt.Errorf("%w: %q", errInvalidStoreBackend, c.StoreBackend)
	}
	if c.RedisKeyTTL < 0 {
		return fmt.Errorf("%s must not be negative", RedisKeyTTLKey)
	}
	if c.RelayerTimeout <= 0 {
		return fmt.Errorf("%s must be positive", RelayerTimeoutKey)
	}
	if c.SignatureDurationDays <= 0 {
		return fmt.Errorf("%s must be positive", SignatureDurationDaysKey)
	}
	if c.SignatureDurationDays > decrypt.MaxDurationDays {
		return fmt.Errorf("%s must not exceed %d", SignatureDurationDaysKey, decrypt.MaxDurationDays)
	}
	if c.VerifyingContract != "" && !common.IsHexAddress(c.VerifyingContract) {
		return fmt.Errorf("invalid %s %q", VerifyingContractKey, c.VerifyingContract)
	}
	return nil
}

// LogLevelValue returns the parsed log level
func (c *Config) LogLevelValue() zapcore.Level {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}

// GatewayChain returns the chain of the decryption gateway, defaulting to the
// contracts' chain
func (c *Config) GatewayChain() uint64 {
	if c.GatewayChainID == 0 {
		return c.ChainID
	}
	return c.GatewayChainID
}

func (c *Config) VerifyingContractAddress() common.Address {
	return common.HexToAddress(c.VerifyingContract)
}

// AddFlags registers every configuration key on fs, defaulting to the
// configuration defaults
func AddFlags(fs *pflag.FlagSet) {
	fs.String(ConfigFileKey, "", "Specifies the JSON config file")
	fs.String(LogLevelKey, defaultLogLevel, "Log level: debug, info, warn, error")
	fs.Uint16(APIPortKey, defaultAPIPort, "Port of the HTTP API")
	fs.Uint16(MetricsPortKey, defaultMetricsPort, "Port of the prometheus metrics server, 0 disables it")
	fs.String(StoreBackendKey, defaultStoreBackend, "Signature store backend: memory or redis")
	fs.Uint64(MemoryStoreSizeKey, DefaultMemoryStoreSize, "Capacity of the memory signature store")
	fs.String(RedisURLKey, "", "Redis URL of the redis signature store")
	fs.String(RedisKeyPrefixKey, defaultRedisKeyPrefix, "Prefix of every redis key")
	fs.Duration(RedisKeyTTLKey, 0, "TTL of redis keys, 0 keeps them until removed")
	fs.String(RelayerURLKey, "", "Base URL of the relayer gateway, empty runs the in-process instance")
	fs.Duration(RelayerTimeoutKey, defaultRelayerTimeout, "Total time spent retrying one relayer request")
	fs.Uint64(ChainIDKey, defaultChainID, "Chain ID of the decrypted contracts")
	fs.Uint64(GatewayChainIDKey, 0, "Chain ID of the decryption gateway, defaults to chain-id")
	fs.String(VerifyingContractKey, "", "Address of the gateway verifying contract")
	fs.Int64(SignatureDurationDaysKey, DefaultSignatureDurationDays, "Validity of new decryption signatures in days")
	fs.String(SignerPrivateKeyKey, "", "Hex private key of the local signer")
}

// BuildFlagSet returns a standalone flag set with every configuration key
// plus version and help
func BuildFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("decryptd", pflag.ContinueOnError)
	AddFlags(fs)
	fs.Bool(VersionKey, false, "Display version and exit")
	fs.Bool(HelpKey, false, "Display help and exit")
	return fs
}

func DisplayUsageText() {
	fmt.Printf(
		"Usage: decryptd [command] --%s path-to-config [flags]\n%s",
		ConfigFileKey,
		BuildFlagSet().FlagUsages(),
	)
}
