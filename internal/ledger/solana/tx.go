package solana

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"

	"github.com/polygens/wagerd/internal/crypto"
)

// systemProgramAddress is the native system program, owner of plain wallet
// accounts and home of the transfer instruction.
const systemProgramAddress = "11111111111111111111111111111111"

// transferInstructionIndex is the system program's Transfer instruction tag.
const transferInstructionIndex = 2

// appendCompactU16 appends n in the compact-u16 ("shortvec") encoding used
// throughout the transaction wire format.
func appendCompactU16(buf []byte, n int) []byte {
	for {
		if n < 0x80 {
			return append(buf, byte(n))
		}
		buf = append(buf, byte(n&0x7f)|0x80)
		n >>= 7
	}
}

// buildTransferMessage serializes a legacy transaction message containing a
// single system-program transfer of the given lamports from fromAddr to
// toAddr. The caller signs the returned bytes and prepends the signature to
// form the full transaction.
func buildTransferMessage(fromAddr, toAddr, blockhash string, lamports uint64) ([]byte, error) {
	if fromAddr == toAddr {
		return nil, fmt.Errorf("solana: transfer from and to address are the same (%s)", fromAddr)
	}

	from, err := decodePubkey(fromAddr)
	if err != nil {
		return nil, fmt.Errorf("solana: from address: %w", err)
	}
	to, err := decodePubkey(toAddr)
	if err != nil {
		return nil, fmt.Errorf("solana: to address: %w", err)
	}
	program, err := decodePubkey(systemProgramAddress)
	if err != nil {
		return nil, fmt.Errorf("solana: system program address: %w", err)
	}
	hash, err := decodePubkey(blockhash)
	if err != nil {
		return nil, fmt.Errorf("solana: blockhash: %w", err)
	}

	// Instruction data: u32 LE instruction tag, u64 LE lamports.
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], transferInstructionIndex)
	binary.LittleEndian.PutUint64(data[4:12], lamports)

	msg := make([]byte, 0, 256)

	// Message header: one required signature, no read-only signed accounts,
	// one read-only unsigned account (the system program).
	msg = append(msg, 1, 0, 1)

	// Account keys: fee payer first, then writables, then read-only.
	msg = appendCompactU16(msg, 3)
	msg = append(msg, from...)
	msg = append(msg, to...)
	msg = append(msg, program...)

	msg = append(msg, hash...)

	// Single instruction referencing accounts by index.
	msg = appendCompactU16(msg, 1)
	msg = append(msg, 2) // program id index
	msg = appendCompactU16(msg, 2)
	msg = append(msg, 0, 1)
	msg = appendCompactU16(msg, len(data))
	msg = append(msg, data...)

	return msg, nil
}

// assembleTransaction prepends the signature list to a serialized message.
func assembleTransaction(signature, message []byte) ([]byte, error) {
	if len(signature) != ed25519.SignatureSize {
		return nil, fmt.Errorf("solana: signature must be %d bytes, got %d",
			ed25519.SignatureSize, len(signature))
	}
	tx := make([]byte, 0, 1+len(signature)+len(message))
	tx = appendCompactU16(tx, 1)
	tx = append(tx, signature...)
	tx = append(tx, message...)
	return tx, nil
}

func decodePubkey(s string) ([]byte, error) {
	raw, err := crypto.Base58Decode(s)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("expected %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	return raw, nil
}
