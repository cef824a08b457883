package swap_test

import (
	"strings"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cimillas/ordswap/internal/domain"
	"github.com/cimillas/ordswap/internal/swap"
	"github.com/cimillas/ordswap/internal/testutil"
)

var (
	params = &chaincfg.MainNetParams

	storeKeyHex = strings.Repeat("11", 32)
	buyerKeyHex = strings.Repeat("22", 32)
	payKeyHex   = strings.Repeat("33", 32)

	inscTxid = strings.Repeat("4e", 32)
)

type fixture struct {
	storeAddr string
	buyerAddr string
	payAddr   string
	insc      domain.Inscription
	policy    domain.CollectionPolicy
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	f := fixture{
		storeAddr: testutil.TaprootAddress(t, storeKeyHex, params),
		buyerAddr: testutil.TaprootAddress(t, buyerKeyHex, params),
		payAddr:   testutil.TaprootAddress(t, payKeyHex, params),
	}
	f.insc = domain.Inscription{
		ID:       inscTxid + "i0",
		Number:   7,
		Satpoint: inscTxid + ":1:0",
		Address:  f.storeAddr,
	}
	f.policy = domain.CollectionPolicy{
		Slug:           "runes-of-old",
		Title:          "Runes of Old",
		PriceSats:      25_000,
		PaymentAddress: f.payAddr,
	}
	return f
}

func (f fixture) validOptions(t *testing.T) testutil.PSBTOptions {
	return testutil.PSBTOptions{
		Params:           params,
		InscriptionTxid:  inscTxid,
		InscriptionVout:  1,
		InscriptionValue: 546,
		StorePkScript:    testutil.PkScript(t, f.storeAddr, params),
		SighashType:      swap.RequiredSigHashType,
		BuyerAddress:     f.buyerAddr,
		PaymentAddress:   f.payAddr,
		PaymentValue:     25_000,
	}
}

func TestParseSignedPSBT(t *testing.T) {
	f := newFixture(t)
	p := testutil.BuildSwapPSBT(t, f.validOptions(t))

	parsed, err := swap.ParseSignedPSBT(testutil.EncodePSBT(t, p))
	require.NoError(t, err)
	assert.Len(t, parsed.UnsignedTx.TxOut, 2)

	_, err = swap.ParseSignedPSBT("not a psbt")
	assert.ErrorIs(t, err, domain.ErrInvalidPSBT)
}

func TestValidateAcceptsWellFormedSwap(t *testing.T) {
	f := newFixture(t)
	p := testutil.BuildSwapPSBT(t, f.validOptions(t))

	require.NoError(t, swap.Validate(p, f.policy, f.insc, params))

	buyer, err := swap.BuyerAddress(p, params)
	require.NoError(t, err)
	assert.Equal(t, f.buyerAddr, buyer)
}

func TestValidateRejections(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		mutate func(t *testing.T, opt *testutil.PSBTOptions)
	}{
		{
			name: "wrong sighash type",
			mutate: func(t *testing.T, opt *testutil.PSBTOptions) {
				opt.SighashType = txscript.SigHashAll
			},
		},
		{
			name: "inscription input amount above ceiling",
			mutate: func(t *testing.T, opt *testutil.PSBTOptions) {
				opt.InscriptionValue = swap.MaxInscriptionAmount + 1
			},
		},
		{
			name: "spends the wrong outpoint",
			mutate: func(t *testing.T, opt *testutil.PSBTOptions) {
				opt.InscriptionVout = 0
			},
		},
		{
			name: "payment amount below price",
			mutate: func(t *testing.T, opt *testutil.PSBTOptions) {
				opt.PaymentValue = 24_999
			},
		},
		{
			name: "payment sent to the wrong address",
			mutate: func(t *testing.T, opt *testutil.PSBTOptions) {
				opt.PaymentAddress = f.buyerAddr
			},
		},
		{
			name: "inscription input is not taproot",
			mutate: func(t *testing.T, opt *testutil.PSBTOptions) {
				// v0 segwit program in the witness utxo slot.
				opt.StorePkScript = append([]byte{0x00, 0x14}, make([]byte, 20)...)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt := f.validOptions(t)
			tt.mutate(t, &opt)
			p := testutil.BuildSwapPSBT(t, opt)
			assert.ErrorIs(t, swap.Validate(p, f.policy, f.insc, params), domain.ErrNotEligible)
		})
	}
}

func TestValidateRequiresWitnessUtxo(t *testing.T) {
	f := newFixture(t)
	p := testutil.BuildSwapPSBT(t, f.validOptions(t))
	p.Inputs[0].WitnessUtxo = nil

	assert.ErrorIs(t, swap.Validate(p, f.policy, f.insc, params), domain.ErrNotEligible)
}

func TestValidateBoundaryAmountAllowed(t *testing.T) {
	f := newFixture(t)
	opt := f.validOptions(t)
	opt.InscriptionValue = swap.MaxInscriptionAmount

	p := testutil.BuildSwapPSBT(t, opt)
	assert.NoError(t, swap.Validate(p, f.policy, f.insc, params))
}

func TestNormalizeAddress(t *testing.T) {
	f := newFixture(t)

	got, ok := swap.NormalizeAddress(f.buyerAddr, params)
	require.True(t, ok)
	assert.Equal(t, f.buyerAddr, got)

	_, ok = swap.NormalizeAddress("definitely-not-an-address", params)
	assert.False(t, ok)

	// Testnet address on mainnet params.
	_, ok = swap.NormalizeAddress("tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx", params)
	assert.False(t, ok)
}

func TestMatchOptionalPayments(t *testing.T) {
	f := newFixture(t)
	tip := domain.OptionalPayment{
		Title:   "Creator tip",
		Amount:  5_000,
		Address: f.payAddr,
	}
	f.policy.OptionalPayments = []domain.OptionalPayment{tip}

	t.Run("matching extra output is reported", func(t *testing.T) {
		opt := f.validOptions(t)
		opt.ExtraOutputs = []*wire.TxOut{
			wire.NewTxOut(5_000, testutil.PkScript(t, f.payAddr, params)),
		}
		p := testutil.BuildSwapPSBT(t, opt)

		matched := swap.MatchOptionalPayments(p, f.policy, params)
		require.Len(t, matched, 1)
		assert.Equal(t, "Creator tip", matched[0].Title)
	})

	t.Run("change outputs are ignored", func(t *testing.T) {
		opt := f.validOptions(t)
		opt.ExtraOutputs = []*wire.TxOut{
			wire.NewTxOut(123_456, testutil.PkScript(t, f.buyerAddr, params)),
		}
		p := testutil.BuildSwapPSBT(t, opt)

		assert.Empty(t, swap.MatchOptionalPayments(p, f.policy, params))
	})

	t.Run("amount mismatch does not match", func(t *testing.T) {
		opt := f.validOptions(t)
		opt.ExtraOutputs = []*wire.TxOut{
			wire.NewTxOut(4_999, testutil.PkScript(t, f.payAddr, params)),
		}
		p := testutil.BuildSwapPSBT(t, opt)

		assert.Empty(t, swap.MatchOptionalPayments(p, f.policy, params))
	})
}
