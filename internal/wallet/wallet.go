// Package wallet holds the store wallet: the taproot key that owns every
// inscription offered for sale. Its only signing duty is completing the
// inscription input of a swap the buyer has already committed to.
package wallet

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/cimillas/ordswap/internal/swap"
)

type Wallet struct {
	priv    *btcec.PrivateKey
	params  *chaincfg.Params
	address string
}

// New builds a wallet from a 32-byte hex-encoded private key. The taproot
// address is the BIP86 key-spend-only address for the key.
func New(privKeyHex string, params *chaincfg.Params) (*Wallet, error) {
	raw, err := hex.DecodeString(privKeyHex)
	if err != nil || len(raw) != 32 {
		return nil, fmt.Errorf("wallet: private key must be 32 hex-encoded bytes")
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)

	outputKey := txscript.ComputeTaprootKeyNoScript(priv.PubKey())
	addr, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(outputKey), params)
	if err != nil {
		return nil, fmt.Errorf("wallet: derive taproot address: %w", err)
	}

	return &Wallet{priv: priv, params: params, address: addr.EncodeAddress()}, nil
}

// TaprootAddress returns the store's inscription-holding address.
func (w *Wallet) TaprootAddress() string {
	return w.address
}

// SignInscriptionInput attaches the store's key-spend signature to input
// idx, committing under swap.RequiredSigHashType. Every input must carry a
// witness utxo so the taproot sighash can be computed.
func (w *Wallet) SignInscriptionInput(p *psbt.Packet, idx int) error {
	if idx >= len(p.Inputs) || idx >= len(p.UnsignedTx.TxIn) {
		return fmt.Errorf("wallet: input %d out of range", idx)
	}

	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, in := range p.Inputs {
		if in.WitnessUtxo == nil {
			return fmt.Errorf("wallet: input %d has no witness utxo", i)
		}
		fetcher.AddPrevOut(p.UnsignedTx.TxIn[i].PreviousOutPoint, in.WitnessUtxo)
	}

	prev := p.Inputs[idx].WitnessUtxo
	sigHashes := txscript.NewTxSigHashes(p.UnsignedTx, fetcher)
	sig, err := txscript.RawTxInTaprootSignature(
		p.UnsignedTx, sigHashes, idx,
		prev.Value, prev.PkScript,
		nil, swap.RequiredSigHashType, w.priv,
	)
	if err != nil {
		return fmt.Errorf("wallet: sign input %d: %w", idx, err)
	}

	p.Inputs[idx].TaprootInternalKey = schnorr.SerializePubKey(w.priv.PubKey())
	p.Inputs[idx].SighashType = swap.RequiredSigHashType
	p.Inputs[idx].TaprootKeySpendSig = sig
	return nil
}
