package bitcoin

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/rawblock/coinjoin-composer/pkg/models"
)

// Estimated vbyte cost model for a P2WPKH coinjoin: fixed overhead plus
// per-input and per-output weight. The same constants are baked into the
// solver's txsize constraint, so the two views of the fee never diverge.
const (
	vbyteOverhead  = 11
	vbytePerInput  = 68
	vbytePerOutput = 31
)

// EstimateVsize returns the estimated virtual size of a composed layout.
func EstimateVsize(numInputs, numOutputs int) int64 {
	return int64(vbyteOverhead + vbytePerInput*numInputs + vbytePerOutput*numOutputs)
}

// p2wpkhPlaceholder is a v0 witness program with a zeroed key hash. The
// composer emits a layout, not a signed transaction; the per-party delivery
// scripts are substituted by whoever signs.
func p2wpkhPlaceholder() []byte {
	script := make([]byte, 22)
	script[0] = 0x00 // OP_0
	script[1] = 0x14 // 20-byte push
	return script
}

// BuildTemplate assembles an unsigned wire.MsgTx skeleton from a composed
// transaction. Inputs without a declared outpoint reference the zero hash;
// they still reserve correct weight in the template.
func BuildTemplate(tx *models.Transaction) (*wire.MsgTx, error) {
	msg := wire.NewMsgTx(2)

	for i, in := range tx.Inputs {
		var hash chainhash.Hash
		if in.Txid != "" {
			parsed, err := chainhash.NewHashFromStr(in.Txid)
			if err != nil {
				return nil, fmt.Errorf("input %d: invalid txid %q: %w", i, in.Txid, err)
			}
			hash = *parsed
		}
		outpoint := wire.NewOutPoint(&hash, in.Vout)
		msg.AddTxIn(wire.NewTxIn(outpoint, nil, nil))
	}

	for j, out := range tx.Outputs {
		if out.Amount <= 0 {
			return nil, fmt.Errorf("output %d: non-positive amount %d", j, out.Amount)
		}
		msg.AddTxOut(wire.NewTxOut(out.Amount, p2wpkhPlaceholder()))
	}

	return msg, nil
}

// FormatAmount renders satoshis as a BTC string for log and harness output.
func FormatAmount(sats int64) string {
	return btcutil.Amount(sats).String()
}
