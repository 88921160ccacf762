package wallet

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// KeypairSigner signs with a local keypair. Only the CLI uses it; servers
// receive transactions already signed by the holder's wallet.
type KeypairSigner struct {
	priv solana.PrivateKey
	pub  solana.PublicKey
}

// NewKeypairSigner accepts a base58-encoded 64-byte key or a solana-keygen JSON array.
func NewKeypairSigner(secret string) (*KeypairSigner, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("wallet: private key is required")
	}
	priv, err := parsePrivateKey(secret)
	if err != nil {
		return nil, err
	}
	return &KeypairSigner{priv: priv, pub: priv.PublicKey()}, nil
}

func NewKeypairSignerFromEnv() (*KeypairSigner, error) {
	return NewKeypairSigner(os.Getenv("WALLET_PRIVATE_KEY"))
}

func (s *KeypairSigner) Address() string             { return s.pub.String() }
func (s *KeypairSigner) PublicKey() solana.PublicKey { return s.pub }

// SignTransaction adds this key's signature. It refuses transactions that do
// not list the key as a required signer.
func (s *KeypairSigner) SignTransaction(ctx context.Context, tx *solana.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if tx == nil {
		return fmt.Errorf("wallet: transaction is nil")
	}

	required := int(tx.Message.Header.NumRequiredSignatures)
	keys := tx.Message.AccountKeys
	if required > len(keys) {
		return fmt.Errorf("wallet: malformed message header")
	}
	found := false
	for _, k := range keys[:required] {
		if k.Equals(s.pub) {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("wallet: transaction does not require a signature from %s", s.pub)
	}

	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(s.pub) {
			return &s.priv
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("wallet: sign: %w", err)
	}
	return nil
}

func parsePrivateKey(s string) (solana.PrivateKey, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(s), &ints); err != nil {
			return nil, fmt.Errorf("wallet: invalid JSON private key: %w", err)
		}
		b := make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("wallet: invalid byte at %d: %d", i, v)
			}
			b[i] = byte(v)
		}
		return checkKeyLen(b)
	}

	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("wallet: invalid base58 private key: %w", err)
	}
	return checkKeyLen(raw)
}

func checkKeyLen(b []byte) (solana.PrivateKey, error) {
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("wallet: expected %d bytes, got %d", ed25519.PrivateKeySize, len(b))
	}
	return solana.PrivateKey(ed25519.PrivateKey(b)), nil
}
