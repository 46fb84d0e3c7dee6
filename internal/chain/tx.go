package chain

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
)

// LamportsPerToken is the minor-unit precision of the chain's native token.
const LamportsPerToken = 1_000_000_000

// systemTransferIndex is the system program's Transfer instruction tag.
const systemTransferIndex = 2

var systemProgramID = make([]byte, 32)

// ToLamports floors a token-unit amount to whole lamports.
func ToLamports(amount decimal.Decimal) (uint64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("amount %s is negative", amount.String())
	}
	lamports := amount.Shift(9).Truncate(0)
	if !lamports.IsInteger() || lamports.BigInt().BitLen() > 63 {
		return 0, fmt.Errorf("amount %s out of lamport range", amount.String())
	}
	return lamports.BigInt().Uint64(), nil
}

// FromLamports converts whole lamports to token units.
func FromLamports(lamports uint64) decimal.Decimal {
	return decimal.NewFromUint64(lamports).Shift(-9)
}

// BuildTransfer constructs and signs a single system-program transfer of
// lamports from the keypair to the recipient, bound to recentBlockhash.
// It returns the base64 wire transaction and the base58 signature that
// serves as the transaction reference.
func BuildTransfer(from *Keypair, to string, lamports uint64, recentBlockhash string) (wireBase64 string, signature string, err error) {
	if from == nil {
		return "", "", fmt.Errorf("keypair is nil")
	}
	toKey, err := DecodeAddress(to)
	if err != nil {
		return "", "", fmt.Errorf("recipient: %w", err)
	}
	blockhash, err := base58.Decode(recentBlockhash)
	if err != nil || len(blockhash) != 32 {
		return "", "", fmt.Errorf("recent blockhash %q is not a 32-byte base58 value", recentBlockhash)
	}

	// Message: header, static account keys, blockhash, one instruction.
	// Header: 1 required signature, 0 readonly signed, 1 readonly unsigned
	// (the system program).
	msg := make([]byte, 0, 256)
	msg = append(msg, 1, 0, 1)
	msg = appendCompactU16(msg, 3)
	msg = append(msg, from.pub...)
	msg = append(msg, toKey...)
	msg = append(msg, systemProgramID...)
	msg = append(msg, blockhash...)

	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], systemTransferIndex)
	binary.LittleEndian.PutUint64(data[4:12], lamports)

	msg = appendCompactU16(msg, 1)
	msg = append(msg, 2) // program id index
	msg = appendCompactU16(msg, 2)
	msg = append(msg, 0, 1) // funder, recipient
	msg = appendCompactU16(msg, len(data))
	msg = append(msg, data...)

	sig := from.Sign(msg)

	wire := make([]byte, 0, len(sig)+len(msg)+1)
	wire = appendCompactU16(wire, 1)
	wire = append(wire, sig...)
	wire = append(wire, msg...)

	return base64.StdEncoding.EncodeToString(wire), base58.Encode(sig), nil
}

// appendCompactU16 writes the wire format's shortvec length prefix.
func appendCompactU16(b []byte, v int) []byte {
	for {
		if v < 0x80 {
			return append(b, byte(v))
		}
		b = append(b, byte(v&0x7f)|0x80)
		v >>= 7
	}
}
