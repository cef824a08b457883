package testutil

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// PSBTOptions describes the swap transaction a test wants built: input 0
// spends the inscription outpoint, output 0 delivers to the buyer and
// output 1 pays the collection price. Zero values fall back to a
// well-formed swap so tests only set the field they are breaking.
type PSBTOptions struct {
	Params *chaincfg.Params

	InscriptionTxid  string
	InscriptionVout  uint32
	InscriptionValue int64
	StorePkScript    []byte
	SighashType      txscript.SigHashType

	BuyerAddress        string
	InscriptionOutValue int64

	PaymentAddress string
	PaymentValue   int64

	ExtraOutputs []*wire.TxOut
}

// BuildSwapPSBT assembles an unsigned swap PSBT from opt.
func BuildSwapPSBT(t *testing.T, opt PSBTOptions) *psbt.Packet {
	t.Helper()

	hash, err := chainhash.NewHashFromStr(opt.InscriptionTxid)
	if err != nil {
		t.Fatalf("parse inscription txid: %v", err)
	}

	tx := wire.NewMsgTx(2)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(hash, opt.InscriptionVout), nil, nil))
	if opt.InscriptionOutValue == 0 {
		opt.InscriptionOutValue = opt.InscriptionValue
	}
	tx.AddTxOut(wire.NewTxOut(opt.InscriptionOutValue, PkScript(t, opt.BuyerAddress, opt.Params)))
	tx.AddTxOut(wire.NewTxOut(opt.PaymentValue, PkScript(t, opt.PaymentAddress, opt.Params)))
	for _, out := range opt.ExtraOutputs {
		tx.AddTxOut(out)
	}

	p, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		t.Fatalf("build psbt: %v", err)
	}
	p.Inputs[0].WitnessUtxo = wire.NewTxOut(opt.InscriptionValue, opt.StorePkScript)
	p.Inputs[0].SighashType = opt.SighashType
	return p
}

// EncodePSBT returns the packet's base64 wire form.
func EncodePSBT(t *testing.T, p *psbt.Packet) string {
	t.Helper()
	s, err := p.B64Encode()
	if err != nil {
		t.Fatalf("encode psbt: %v", err)
	}
	return s
}

// PkScript returns the output script paying addr.
func PkScript(t *testing.T, addr string, params *chaincfg.Params) []byte {
	t.Helper()
	a, err := btcutil.DecodeAddress(addr, params)
	if err != nil {
		t.Fatalf("decode address %q: %v", addr, err)
	}
	script, err := txscript.PayToAddrScript(a)
	if err != nil {
		t.Fatalf("build pk script: %v", err)
	}
	return script
}

// TaprootAddress derives the BIP86 key-spend address for a hex private
// key, matching the store wallet's derivation.
func TaprootAddress(t *testing.T, privKeyHex string, params *chaincfg.Params) string {
	t.Helper()
	raw, err := hex.DecodeString(privKeyHex)
	if err != nil {
		t.Fatalf("decode private key: %v", err)
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	outputKey := txscript.ComputeTaprootKeyNoScript(priv.PubKey())
	addr, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(outputKey), params)
	if err != nil {
		t.Fatalf("derive taproot address: %v", err)
	}
	return addr.EncodeAddress()
}
