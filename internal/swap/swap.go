// Package swap holds the transaction-level rules of the escrow-free
// inscription swap: a fixed shape where input 0 spends the inscription
// from the store wallet, output 0 carries the inscription to the buyer and
// output 1 pays the collection price to the payment address. The buyer
// constructs and partially signs the transaction; the store completes the
// signature on input 0 only if every rule here holds.
package swap

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/cimillas/ordswap/internal/domain"
)

const (
	// InscriptionInputIndex is the input spending the inscription outpoint.
	InscriptionInputIndex = 0
	// InscriptionOutputIndex is the output delivering the inscription to
	// the buyer.
	InscriptionOutputIndex = 0
	// PaymentOutputIndex is the output paying the collection price.
	PaymentOutputIndex = 1

	// MaxInscriptionAmount caps the witness amount of the inscription
	// input. Inscriptions sit on dust-sized outputs; anything larger in
	// that slot means the transaction is not the swap it claims to be.
	MaxInscriptionAmount = 10_000
)

// RequiredSigHashType commits the store's signature to its own input and
// all outputs. The buyer's inputs stay outside the commitment, so the
// store can complete input 0 after the buyer has signed without
// invalidating anything, and no output can be altered afterwards.
const RequiredSigHashType = txscript.SigHashAll | txscript.SigHashAnyOneCanPay

// ParseSignedPSBT decodes a base64 PSBT.
func ParseSignedPSBT(signedPSBT string) (*psbt.Packet, error) {
	p, err := psbt.NewFromRawBytes(strings.NewReader(signedPSBT), true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPSBT, err)
	}
	return p, nil
}

// NormalizeAddress decodes and re-encodes a Bitcoin address, returning its
// canonical form. The second return is false for addresses that do not
// parse or belong to another network.
func NormalizeAddress(value string, params *chaincfg.Params) (string, bool) {
	addr, err := btcutil.DecodeAddress(value, params)
	if err != nil || !addr.IsForNet(params) {
		return "", false
	}
	return addr.EncodeAddress(), true
}

// OutputAddress extracts the canonical address from an output script. The
// second return is false for non-standard scripts.
func OutputAddress(pkScript []byte, params *chaincfg.Params) (string, bool) {
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(pkScript, params)
	if err != nil || len(addrs) != 1 {
		return "", false
	}
	return addrs[0].EncodeAddress(), true
}

// BuyerAddress returns the address receiving the inscription.
func BuyerAddress(p *psbt.Packet, params *chaincfg.Params) (string, error) {
	if len(p.UnsignedTx.TxOut) <= InscriptionOutputIndex {
		return "", fmt.Errorf("%w: missing inscription output", domain.ErrNotEligible)
	}
	addr, ok := OutputAddress(p.UnsignedTx.TxOut[InscriptionOutputIndex].PkScript, params)
	if !ok {
		return "", fmt.Errorf("%w: inscription output has no address", domain.ErrNotEligible)
	}
	return addr, nil
}

// Validate checks the structural and economic shape of the partially
// signed transaction against the collection policy and the inscription's
// known location. Every failure wraps domain.ErrNotEligible.
func Validate(p *psbt.Packet, policy domain.CollectionPolicy, insc domain.Inscription, params *chaincfg.Params) error {
	if len(p.UnsignedTx.TxIn) <= InscriptionInputIndex || len(p.Inputs) <= InscriptionInputIndex {
		return fmt.Errorf("%w: missing inscription input", domain.ErrNotEligible)
	}
	in := p.Inputs[InscriptionInputIndex]

	if in.WitnessUtxo == nil {
		return fmt.Errorf("%w: inscription input has no witness utxo", domain.ErrNotEligible)
	}
	if !txscript.IsPayToTaproot(in.WitnessUtxo.PkScript) {
		return fmt.Errorf("%w: inscription input is not taproot", domain.ErrNotEligible)
	}
	if in.SighashType != RequiredSigHashType {
		return fmt.Errorf("%w: inscription input sighash type must be ALL|ANYONECANPAY", domain.ErrNotEligible)
	}
	if in.WitnessUtxo.Value <= 0 || in.WitnessUtxo.Value > MaxInscriptionAmount {
		return fmt.Errorf("%w: inscription input amount out of range", domain.ErrNotEligible)
	}

	prev := p.UnsignedTx.TxIn[InscriptionInputIndex].PreviousOutPoint
	vout, ok := insc.LocationVout()
	if !ok {
		return fmt.Errorf("%w: inscription has no known location", domain.ErrNotEligible)
	}
	if prev.Hash.String() != insc.LocationTxid() || prev.Index != vout {
		return fmt.Errorf("%w: inscription input does not spend the inscription location", domain.ErrNotEligible)
	}

	if len(p.UnsignedTx.TxOut) <= PaymentOutputIndex {
		return fmt.Errorf("%w: missing payment output", domain.ErrNotEligible)
	}
	payment := p.UnsignedTx.TxOut[PaymentOutputIndex]
	if payment.Value != policy.PriceSats {
		return fmt.Errorf("%w: payment output amount does not match price", domain.ErrNotEligible)
	}
	payAddr, ok := OutputAddress(payment.PkScript, params)
	if !ok || payAddr != policy.PaymentAddress {
		return fmt.Errorf("%w: payment output does not pay the payment address", domain.ErrNotEligible)
	}

	if _, err := BuyerAddress(p, params); err != nil {
		return err
	}
	return nil
}

// MatchOptionalPayments returns the declared optional payments that the
// transaction actually includes, matched one-to-one by address and exact
// amount. Outputs beyond the two designated ones that match nothing are
// treated as the buyer's change and ignored.
func MatchOptionalPayments(p *psbt.Packet, policy domain.CollectionPolicy, params *chaincfg.Params) []domain.OptionalPayment {
	if len(policy.OptionalPayments) == 0 {
		return nil
	}

	var matched []domain.OptionalPayment
	for i, out := range p.UnsignedTx.TxOut {
		if i == InscriptionOutputIndex || i == PaymentOutputIndex {
			continue
		}
		addr, ok := OutputAddress(out.PkScript, params)
		if !ok {
			continue
		}
		for _, op := range policy.OptionalPayments {
			if op.Address == addr && op.Amount == out.Value {
				matched = append(matched, op)
				break
			}
		}
	}
	return matched
}
