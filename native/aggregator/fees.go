package aggregator

import "math/big"

var basisPoints = big.NewInt(10_000)

// MaxPlatformFeeBps bounds the platform fee to the whole withdrawal.
const MaxPlatformFeeBps = 10_000

// Fee splits amount into the platform fee and the net amount returned to the
// user. The fee is floor(amount * bps / 10000).
func Fee(amount *big.Int, bps uint64) (fee *big.Int, net *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0), big.NewInt(0)
	}
	if bps > MaxPlatformFeeBps {
		bps = MaxPlatformFeeBps
	}
	fee = new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	fee.Quo(fee, basisPoints)
	net = new(big.Int).Sub(amount, fee)
	return fee, net
}
