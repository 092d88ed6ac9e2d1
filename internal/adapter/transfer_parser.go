package adapter

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

const instructionTransferChecked = "transferChecked"

// ExtractTransfers decodes the transferChecked instructions of a parsed
// transaction, outer instructions first and then inner instructions in
// the order the runtime reported them. Plain "transfer" instructions carry
// no mint and are not returned.
func ExtractTransfers(signature string, tx *rpc.GetParsedTransactionResult) []TokenTransfer {
	if tx == nil || tx.Transaction == nil {
		return nil
	}

	var ts time.Time
	if tx.BlockTime != nil {
		ts = tx.BlockTime.Time().UTC()
	}

	var out []TokenTransfer
	collect := func(ix *rpc.ParsedInstruction) {
		if t, ok := decodeTransferChecked(ix); ok {
			t.Signature = signature
			t.Slot = tx.Slot
			t.Timestamp = ts
			out = append(out, t)
		}
	}

	for _, ix := range tx.Transaction.Message.Instructions {
		collect(ix)
	}
	if tx.Meta != nil {
		for _, inner := range tx.Meta.InnerInstructions {
			for _, ix := range inner.Instructions {
				collect(ix)
			}
		}
	}
	return out
}

func isTokenProgram(ix *rpc.ParsedInstruction) bool {
	switch ix.Program {
	case "spl-token", "spl-token-2022":
		return true
	}
	return ix.ProgramId.Equals(solana.TokenProgramID) || ix.ProgramId.Equals(solana.Token2022ProgramID)
}

func decodeTransferChecked(ix *rpc.ParsedInstruction) (TokenTransfer, bool) {
	if ix == nil || ix.Parsed == nil || !isTokenProgram(ix) {
		return TokenTransfer{}, false
	}

	info, ok := instructionInfo(ix)
	if !ok || info.InstructionType != instructionTransferChecked {
		return TokenTransfer{}, false
	}

	t := TokenTransfer{
		Source:      stringField(info.Info, "source"),
		Destination: stringField(info.Info, "destination"),
		Mint:        stringField(info.Info, "mint"),
		Authority:   stringField(info.Info, "authority"),
	}
	if t.Authority == "" {
		t.Authority = stringField(info.Info, "multisigAuthority")
	}

	tokenAmount, _ := info.Info["tokenAmount"].(map[string]interface{})
	if tokenAmount == nil {
		return TokenTransfer{}, false
	}
	amount, err := strconv.ParseUint(stringField(tokenAmount, "amount"), 10, 64)
	if err != nil {
		return TokenTransfer{}, false
	}
	t.Amount = amount
	if d, ok := tokenAmount["decimals"].(float64); ok && d >= 0 && d <= 255 {
		t.Decimals = uint8(d)
	}

	if t.Destination == "" || t.Mint == "" {
		return TokenTransfer{}, false
	}
	return t, true
}

// instructionInfo round-trips the envelope through JSON; its decoded
// contents are not exported by the rpc package.
func instructionInfo(ix *rpc.ParsedInstruction) (*rpc.InstructionInfo, bool) {
	raw, err := json.Marshal(ix.Parsed)
	if err != nil || len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var info rpc.InstructionInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, false
	}
	return &info, true
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}
