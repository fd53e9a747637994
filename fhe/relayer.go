// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/luxfi/geth/signer/core/apitypes"
	"go.uber.org/zap"
	"golang.org/x/crypto/curve25519"

	"github.com/luxfi/decrypt"
	"github.com/luxfi/decrypt/utils"
)

const (
	UserDecryptPath = "/v1/user-decrypt"

	defaultRelayerTimeout = 30 * time.Second
	maxResponseBytes      = 4 << 20
)

var (
	_ Instance = (*Relayer)(nil)

	errRelayerStatus = errors.New("relayer returned error status")
)

// RelayerConfig configures a Relayer
type RelayerConfig struct {
	URL string
	// ChainID is the chain the contracts live on
	ChainID uint64
	// Timeout bounds the total time spent retrying one request
	Timeout time.Duration
	EIP712  EIP712Builder
	Client  *http.Client
}

// Relayer is an Instance backed by a relayer gateway over HTTP
type Relayer struct {
	log     *zap.Logger
	url     string
	chainID uint64
	timeout time.Duration
	builder EIP712Builder
	client  *http.Client
}

func NewRelayer(log *zap.Logger, cfg RelayerConfig) (*Relayer, error) {
	if cfg.URL == "" {
		return nil, errors.New("relayer url is required")
	}
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRelayerTimeout
	}
	return &Relayer{
		log:     log,
		url:     strings.TrimRight(cfg.URL, "/"),
		chainID: cfg.ChainID,
		timeout: timeout,
		builder: cfg.EIP712,
		client:  client,
	}, nil
}

// GenerateKeypair returns a fresh X25519 keypair, hex encoded
func (r *Relayer) GenerateKeypair() (Keypair, error) {
	return GenerateX25519Keypair()
}

func GenerateX25519Keypair() (Keypair, error) {
	priv := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(priv); err != nil {
		return Keypair{}, fmt.Errorf("failed to read randomness: %w", err)
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return Keypair{}, fmt.Errorf("failed to derive public key: %w", err)
	}
	return Keypair{
		PublicKey:  hexutil.Encode(pub),
		PrivateKey: hexutil.Encode(priv),
	}, nil
}

func (r *Relayer) CreateEIP712(
	publicKey string,
	contracts []common.Address,
	startTimestamp int64,
	durationDays int64,
) (apitypes.TypedData, error) {
	return r.builder.Build(publicKey, contracts, startTimestamp, durationDays)
}

type userDecryptPair struct {
	Handle          string `json:"handle"`
	ContractAddress string `json:"contractAddress"`
}

type requestValidity struct {
	StartTimestamp string `json:"startTimestamp"`
	DurationDays   string `json:"durationDays"`
}

type userDecryptBody struct {
	HandleContractPairs []userDecryptPair `json:"handleContractPairs"`
	RequestValidity     requestValidity   `json:"requestValidity"`
	ContractsChainID    string            `json:"contractsChainId"`
	ContractAddresses   []string          `json:"contractAddresses"`
	UserAddress         string            `json:"userAddress"`
	Signature           string            `json:"signature"`
	PublicKey           string            `json:"publicKey"`
}

type userDecryptResult struct {
	Handle string          `json:"handle"`
	Type   string          `json:"type"`
	Value  json.RawMessage `json:"value"`
}

type userDecryptResponse struct {
	Results []userDecryptResult `json:"results"`
	Message string              `json:"message,omitempty"`
}

// UserDecrypt posts the batch to the gateway. Transport failures and 5xx
// responses are retried until the configured timeout; 4xx responses are not.
func (r *Relayer) UserDecrypt(ctx context.Context, req UserDecryptRequest) (map[decrypt.Handle]decrypt.Value, error) {
	if len(req.Pairs) == 0 {
		return map[decrypt.Handle]decrypt.Value{}, nil
	}
	if !req.Authorized() {
		return nil, ErrUnauthorized
	}

	body, err := json.Marshal(r.newBody(req))
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var resp userDecryptResponse
	operation := func() error {
		return r.post(ctx, body, &resp)
	}
	if err := utils.WithRetriesTimeout(ctx, r.log, operation, r.timeout); err != nil {
		return nil, fmt.Errorf("user decrypt failed: %w", err)
	}

	values := make(map[decrypt.Handle]decrypt.Value, len(resp.Results))
	for _, res := range resp.Results {
		handle, err := decrypt.ParseHandle(res.Handle)
		if err != nil {
			return nil, fmt.Errorf("relayer returned bad handle %q: %w", res.Handle, err)
		}
		value, err := decrypt.ParseValue(res.Type, res.Value)
		if err != nil {
			return nil, fmt.Errorf("relayer returned bad value for %s: %w", handle, err)
		}
		values[handle] = value
	}
	r.log.Debug("user decrypt succeeded",
		zap.Int("requested", len(req.Pairs)),
		zap.Int("returned", len(values)),
	)
	return values, nil
}

func (r *Relayer) newBody(req UserDecryptRequest) userDecryptBody {
	pairs := make([]userDecryptPair, len(req.Pairs))
	for i, p := range req.Pairs {
		pairs[i] = userDecryptPair{
			Handle:          p.Handle.Hex(),
			ContractAddress: p.ContractAddress.Hex(),
		}
	}
	contracts := make([]string, len(req.ContractAddresses))
	for i, c := range req.ContractAddresses {
		contracts[i] = c.Hex()
	}
	return userDecryptBody{
		HandleContractPairs: pairs,
		RequestValidity: requestValidity{
			StartTimestamp: strconv.FormatInt(req.StartTimestamp, 10),
			DurationDays:   strconv.FormatInt(req.DurationDays, 10),
		},
		ContractsChainID:  strconv.FormatUint(r.chainID, 10),
		ContractAddresses: contracts,
		UserAddress:       req.UserAddress.Hex(),
		Signature:         strings.TrimPrefix(req.Signature, "0x"),
		PublicKey:         strings.TrimPrefix(req.PublicKey, "0x"),
	}
}

func (r *Relayer) post(ctx context.Context, body []byte, out *userDecryptResponse) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url+UserDecryptPath, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := r.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return err
	}

	if httpResp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("%w: %d %s", errRelayerStatus, httpResp.StatusCode, strings.TrimSpace(string(raw)))
		if httpResp.StatusCode >= http.StatusInternalServerError {
			return statusErr
		}
		return backoff.Permanent(statusErr)
	}
	*out = userDecryptResponse{}
	if err := json.Unmarshal(raw, out); err != nil {
		return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}
