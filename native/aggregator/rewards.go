package aggregator

import "math/big"

// Accrue returns the reward earned by position since its accrual height under
// a simple linear model: floor(amount * elapsed * apy / 10000). Remainders
// are dropped on every computation. A height earlier than the accrual height
// yields zero.
func Accrue(position *Position, apy uint64, height uint64) *big.Int {
	if position == nil || position.Amount == nil || position.Amount.Sign() <= 0 || apy == 0 {
		return big.NewInt(0)
	}
	if height <= position.AccrualHeight {
		return big.NewInt(0)
	}
	elapsed := height - position.AccrualHeight
	reward := new(big.Int).Mul(position.Amount, new(big.Int).SetUint64(elapsed))
	reward.Mul(reward, new(big.Int).SetUint64(apy))
	return reward.Quo(reward, basisPoints)
}

// Claimable is the folded reward snapshot plus anything accrued since.
func Claimable(position *Position, apy uint64, height uint64) *big.Int {
	total := Accrue(position, apy, height)
	if position != nil && position.Rewards != nil {
		total.Add(total, position.Rewards)
	}
	return total
}

// settle folds pending accrual into the snapshot and restarts accrual at
// height. It returns the amount folded.
func settle(position *Position, apy uint64, height uint64) *big.Int {
	position.ensureDefaults()
	pending := Accrue(position, apy, height)
	position.Rewards = new(big.Int).Add(position.Rewards, pending)
	if height > position.AccrualHeight {
		position.AccrualHeight = height
	}
	return pending
}

// finalizeClaim empties the snapshot and returns the claimed amount. Callers
// settle first so the snapshot already includes pending accrual.
func finalizeClaim(position *Position, height uint64) *big.Int {
	claimed := cloneAmount(position.Rewards)
	position.Rewards = big.NewInt(0)
	position.LastClaimHeight = height
	if height > position.AccrualHeight {
		position.AccrualHeight = height
	}
	return claimed
}
