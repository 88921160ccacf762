package amm

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/aman-zulfiqar/solana-amm-client/internal/constants"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Discriminator returns the Anchor instruction discriminator: sha256("global:<name>")[:8].
func Discriminator(name string) [8]byte {
	var d [8]byte
	sum := sha256.Sum256([]byte("global:" + name))
	copy(d[:], sum[:8])
	return d
}

var swapDiscriminator = Discriminator(constants.IxSwap)

// SwapArgs is the payload of the swap instruction.
type SwapArgs struct {
	AToB         bool
	AmountIn     uint64
	MinAmountOut uint64
}

// Encode writes discriminator | aToB | amountIn | minAmountOut.
func (a SwapArgs) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if _, err := buf.Write(swapDiscriminator[:]); err != nil {
		return nil, fmt.Errorf("failed to write discriminator: %w", err)
	}

	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteBool(a.AToB); err != nil {
		return nil, fmt.Errorf("failed to encode direction: %w", err)
	}
	if err := enc.WriteUint64(a.AmountIn, binary.LittleEndian); err != nil {
		return nil, fmt.Errorf("failed to encode amount in: %w", err)
	}
	if err := enc.WriteUint64(a.MinAmountOut, binary.LittleEndian); err != nil {
		return nil, fmt.Errorf("failed to encode min amount out: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeSwapArgs parses swap instruction data.
func DecodeSwapArgs(data []byte) (SwapArgs, error) {
	if len(data) != 8+1+8+8 {
		return SwapArgs{}, fmt.Errorf("%w: swap data must be 25 bytes, got %d", ErrInvalidLayout, len(data))
	}
	if !bytes.Equal(data[:8], swapDiscriminator[:]) {
		return SwapArgs{}, fmt.Errorf("%w: not a swap instruction", ErrInvalidLayout)
	}
	return SwapArgs{
		AToB:         data[8] != 0,
		AmountIn:     binary.LittleEndian.Uint64(data[9:17]),
		MinAmountOut: binary.LittleEndian.Uint64(data[17:25]),
	}, nil
}

// BuildSwapInstruction constructs the pool swap instruction for trader.
// traderA and traderB are the trader's token accounts for the pool's mints.
func BuildSwapInstruction(
	pool Pool,
	trader solana.PublicKey,
	traderA solana.PublicKey,
	traderB solana.PublicKey,
	args SwapArgs,
) (solana.Instruction, error) {

	if pool.ProgramID.IsZero() {
		return nil, fmt.Errorf("pool %s has no program id", pool.Address)
	}

	data, err := args.Encode()
	if err != nil {
		return nil, err
	}

	// Account order:
	// 0. amm
	// 1. pool
	// 2. pool authority
	// 3. trader (signer)
	// 4. mint A
	// 5. mint B
	// 6. pool reserve A
	// 7. pool reserve B
	// 8. trader token account A
	// 9. trader token account B
	// 10. payer (trader, writable signer)
	// 11. token program
	// 12. associated token program
	// 13. system program
	accounts := solana.AccountMetaSlice{
		{PublicKey: pool.Amm, IsWritable: false, IsSigner: false},
		{PublicKey: pool.Address, IsWritable: false, IsSigner: false},
		{PublicKey: pool.Authority, IsWritable: false, IsSigner: false},
		{PublicKey: trader, IsWritable: false, IsSigner: true},
		{PublicKey: pool.MintA, IsWritable: false, IsSigner: false},
		{PublicKey: pool.MintB, IsWritable: false, IsSigner: false},
		{PublicKey: pool.ReserveA, IsWritable: true, IsSigner: false},
		{PublicKey: pool.ReserveB, IsWritable: true, IsSigner: false},
		{PublicKey: traderA, IsWritable: true, IsSigner: false},
		{PublicKey: traderB, IsWritable: true, IsSigner: false},
		{PublicKey: trader, IsWritable: true, IsSigner: true},
		{PublicKey: TokenProgramID, IsWritable: false, IsSigner: false},
		{PublicKey: AssociatedTokenProgramID, IsWritable: false, IsSigner: false},
		{PublicKey: SystemProgramID, IsWritable: false, IsSigner: false},
	}

	return solana.NewInstruction(pool.ProgramID, accounts, data), nil
}
