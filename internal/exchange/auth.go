// Package exchange implements the venue adapter: a REST order client, a
// WebSocket market-data feed, EIP-712/HMAC action signing, rate limiting,
// a circuit breaker, and the paper-trading short-circuit described in the
// venue's external interface.
package exchange

import (
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"perp-engine/internal/config"
)

// Auth signs every outbound order action with an EOA private key (EIP-712
// typed data over the order's symbol/side/size/price/nonce) and, when
// L2-style API credentials are configured, additionally attaches an
// HMAC-SHA256 signed header set. HMAC is optional; EIP-712 signing is not.
type Auth struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int

	apiKey     string
	secret     string
	passphrase string
}

// NewAuth builds an Auth from the wallet and venue configuration sections.
func NewAuth(wallet config.WalletConfig, venue config.VenueConfig) (*Auth, error) {
	keyHex := wallet.PrivateKey
	if len(keyHex) >= 2 && keyHex[:2] == "0x" {
		keyHex = keyHex[2:]
	}
	privateKey, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return &Auth{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		chainID:    big.NewInt(int64(wallet.ChainID)),
		apiKey:     venue.ApiKey,
		secret:     venue.Secret,
		passphrase: venue.Passphrase,
	}, nil
}

// Address returns the signer's Ethereum address.
func (a *Auth) Address() common.Address {
	return a.address
}

// HasHMACCredentials reports whether L2-style API credentials are
// configured for venues that require a second signing layer on top of
// EIP-712.
func (a *Auth) HasHMACCredentials() bool {
	return a.apiKey != "" && a.secret != "" && a.passphrase != ""
}

// SignOrderAction produces an EIP-712 signature attesting to one order's
// exact symbol/side/size/price/nonce, mirroring how the venue this adapter
// targets authenticates trading actions.
func (a *Auth) SignOrderAction(symbol, side, size, price string, nonce int64) (string, error) {
	domain := apitypes.TypedDataDomain{
		Name:    "PerpEngineAction",
		Version: "1",
		ChainId: (*ethmath.HexOrDecimal256)(new(big.Int).Set(a.chainID)),
	}
	typesDef := apitypes.Types{
		"EIP712Domain": {
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
		},
		"OrderAction": {
			{Name: "symbol", Type: "string"},
			{Name: "side", Type: "string"},
			{Name: "size", Type: "string"},
			{Name: "price", Type: "string"},
			{Name: "nonce", Type: "uint256"},
		},
	}
	message := apitypes.TypedDataMessage{
		"symbol": symbol,
		"side":   side,
		"size":   size,
		"price":  price,
		"nonce":  fmt.Sprintf("%d", nonce),
	}

	typedData := apitypes.TypedData{
		Types:       typesDef,
		PrimaryType: "OrderAction",
		Domain:      domain,
		Message:     message,
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return "", fmt.Errorf("typed data hash: %w", err)
	}

	sig, err := crypto.Sign(hash, a.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign typed data: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return "0x" + common.Bytes2Hex(sig), nil
}

// HMACHeaders signs "timestamp + method + path [+ body]" with the
// configured API secret. Returns nil when no HMAC credentials are
// configured, since some venues authenticate with EIP-712 alone.
func (a *Auth) HMACHeaders(method, path, body string) map[string]string {
	if !a.HasHMACCredentials() {
		return nil
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	message := timestamp + method + path + body

	secretBytes, err := base64.StdEncoding.DecodeString(a.secret)
	if err != nil {
		secretBytes = []byte(a.secret)
	}

	mac := hmac.New(sha256.New, secretBytes)
	mac.Write([]byte(message))
	sig := base64.URLEncoding.EncodeToString(mac.Sum(nil))

	return map[string]string{
		"X-API-KEY":    a.apiKey,
		"X-PASSPHRASE": a.passphrase,
		"X-TIMESTAMP":  timestamp,
		"X-SIGNATURE":  sig,
	}
}
