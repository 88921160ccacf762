package amm

import (
	"encoding/binary"
	"fmt"

	"github.com/aman-zulfiqar/solana-amm-client/internal/constants"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

var (
	AssociatedTokenProgramID = solana.MustPublicKeyFromBase58(constants.AssociatedTokenProgram)
	TokenProgramID           = solana.MustPublicKeyFromBase58(constants.TokenProgram)
	SystemProgramID          = solana.MustPublicKeyFromBase58(constants.SystemProgram)
)

// FindPoolAuthority derives the PDA that owns a pool's reserve accounts.
func FindPoolAuthority(programID, ammAddr, mintA, mintB solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(
		[][]byte{
			ammAddr.Bytes(),
			mintA.Bytes(),
			mintB.Bytes(),
			[]byte(constants.SeedAuthority),
		},
		programID,
	)
}

// FindAssociatedTokenAddress derives the canonical token account of owner for mint.
func FindAssociatedTokenAddress(owner, mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(
		[][]byte{
			owner.Bytes(),
			TokenProgramID.Bytes(),
			mint.Bytes(),
		},
		AssociatedTokenProgramID,
	)
}

// CreateAssociatedTokenAccount opens owner's canonical account for mint,
// paid for by payer. The create instruction carries no data.
func CreateAssociatedTokenAccount(payer, owner, mint solana.PublicKey) (solana.Instruction, solana.PublicKey, error) {
	ata, _, err := FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	metas := solana.AccountMetaSlice{
		solana.Meta(payer).WRITE().SIGNER(),
		solana.Meta(ata).WRITE(),
		solana.Meta(owner),
		solana.Meta(mint),
		solana.Meta(SystemProgramID),
		solana.Meta(TokenProgramID),
		solana.Meta(solana.SysVarRentPubkey),
	}
	return solana.NewInstruction(AssociatedTokenProgramID, metas, nil), ata, nil
}

// TokenAccount is the prefix of an SPL token account we care about.
type TokenAccount struct {
	Mint   solana.PublicKey
	Owner  solana.PublicKey
	Amount uint64
}

// DecodeTokenAccount reads mint, owner and amount from token account data.
func DecodeTokenAccount(data []byte) (TokenAccount, error) {
	if len(data) < constants.TokenAccountMinSize {
		return TokenAccount{}, fmt.Errorf("%w: token account too short: expected at least %d bytes, got %d",
			ErrInvalidLayout, constants.TokenAccountMinSize, len(data))
	}

	var acct TokenAccount
	if err := bin.NewBinDecoder(data[:constants.TokenAccountMinSize]).Decode(&acct); err != nil {
		return TokenAccount{}, fmt.Errorf("%w: %v", ErrInvalidLayout, err)
	}
	return acct, nil
}

// EncodeTokenAccount builds the 165-byte SPL token account image used by fixtures and fakes.
func EncodeTokenAccount(mint, owner solana.PublicKey, amount uint64) []byte {
	data := make([]byte, 165)
	copy(data[constants.TokenAccountMintOffset:], mint[:])
	copy(data[constants.TokenAccountOwnerOffset:], owner[:])
	binary.LittleEndian.PutUint64(data[constants.TokenAccountAmountOffset:], amount)
	data[108] = 1 // initialized
	return data
}
