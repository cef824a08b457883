package swap

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/wire"
)

// Finalize finalizes every input of the packet and extracts the fully
// signed transaction, returning it with its raw hex serialization and
// txid. It fails if any input still lacks the signatures finalization
// needs.
func Finalize(p *psbt.Packet) (*wire.MsgTx, string, string, error) {
	if err := psbt.MaybeFinalizeAll(p); err != nil {
		return nil, "", "", fmt.Errorf("finalize psbt: %w", err)
	}
	tx, err := psbt.Extract(p)
	if err != nil {
		return nil, "", "", fmt.Errorf("extract transaction: %w", err)
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, "", "", fmt.Errorf("serialize transaction: %w", err)
	}
	return tx, hex.EncodeToString(buf.Bytes()), tx.TxHash().String(), nil
}
