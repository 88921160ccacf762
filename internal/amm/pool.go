package amm

import (
	"errors"
	"fmt"

	"github.com/aman-zulfiqar/solana-amm-client/internal/constants"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

var (
	ErrPoolNotFound    = errors.New("no pool for token pair")
	ErrPricingOverflow = errors.New("pricing overflow")
	ErrInvalidLayout   = errors.New("invalid account layout")
)

// Pool is a decoded pool account plus its derived addresses.
type Pool struct {
	Address   solana.PublicKey
	ProgramID solana.PublicKey
	Amm       solana.PublicKey
	MintA     solana.PublicKey
	MintB     solana.PublicKey

	Authority solana.PublicKey
	ReserveA  solana.PublicKey
	ReserveB  solana.PublicKey
}

// poolLayout mirrors the on-chain pool account: discriminator | amm | mintA | mintB.
type poolLayout struct {
	Discriminator [constants.PoolDiscriminatorSize]byte
	Amm           solana.PublicKey
	MintA         solana.PublicKey
	MintB         solana.PublicKey
}

// DecodePool parses pool account data and derives the authority and reserve
// addresses. It rejects short buffers and pools whose two mints are equal.
func DecodePool(programID, address solana.PublicKey, data []byte) (Pool, error) {
	if len(data) < constants.PoolAccountSize {
		return Pool{}, fmt.Errorf("%w: pool data too short: expected %d bytes, got %d",
			ErrInvalidLayout, constants.PoolAccountSize, len(data))
	}

	var layout poolLayout
	if err := bin.NewBinDecoder(data[:constants.PoolAccountSize]).Decode(&layout); err != nil {
		return Pool{}, fmt.Errorf("%w: %v", ErrInvalidLayout, err)
	}

	if layout.MintA.Equals(layout.MintB) {
		return Pool{}, fmt.Errorf("%w: pool mints are identical (%s)", ErrInvalidLayout, layout.MintA)
	}

	pool := Pool{
		Address:   address,
		ProgramID: programID,
		Amm:       layout.Amm,
		MintA:     layout.MintA,
		MintB:     layout.MintB,
	}

	authority, _, err := FindPoolAuthority(programID, layout.Amm, layout.MintA, layout.MintB)
	if err != nil {
		return Pool{}, fmt.Errorf("derive pool authority: %w", err)
	}
	pool.Authority = authority

	if pool.ReserveA, _, err = FindAssociatedTokenAddress(authority, layout.MintA); err != nil {
		return Pool{}, fmt.Errorf("derive reserve A: %w", err)
	}
	if pool.ReserveB, _, err = FindAssociatedTokenAddress(authority, layout.MintB); err != nil {
		return Pool{}, fmt.Errorf("derive reserve B: %w", err)
	}

	return pool, nil
}

// EncodePool builds pool account bytes. The discriminator is left zeroed.
func EncodePool(ammAddr, mintA, mintB solana.PublicKey) []byte {
	data := make([]byte, constants.PoolAccountSize)
	copy(data[constants.PoolAmmOffset:], ammAddr[:])
	copy(data[constants.PoolMintAOffset:], mintA[:])
	copy(data[constants.PoolMintBOffset:], mintB[:])
	return data
}

// Has reports whether mint is one side of the pool.
func (p Pool) Has(mint solana.PublicKey) bool {
	return p.MintA.Equals(mint) || p.MintB.Equals(mint)
}

// Matches reports whether the pool trades x against y in either order.
func (p Pool) Matches(x, y solana.PublicKey) bool {
	return (p.MintA.Equals(x) && p.MintB.Equals(y)) ||
		(p.MintA.Equals(y) && p.MintB.Equals(x))
}

// Direction returns true when input is the pool's first mint (A -> B).
func (p Pool) Direction(input solana.PublicKey) (bool, error) {
	if p.MintA.Equals(input) {
		return true, nil
	}
	if p.MintB.Equals(input) {
		return false, nil
	}
	return false, fmt.Errorf("input mint %s does not match pool %s", input, p.Address)
}

// Other returns the opposite mint of the pair.
func (p Pool) Other(mint solana.PublicKey) solana.PublicKey {
	if p.MintA.Equals(mint) {
		return p.MintB
	}
	return p.MintA
}
