package transfer

import (
	"math/big"

	"github.com/saveio/paychan/common"
)

// EndBalances are the derived amounts of one channel end.
type EndBalances struct {
	Deposit           *big.Int
	Withdraw          *big.Int
	Transferred       *big.Int
	Locked            *big.Int
	Balance           *big.Int
	Capacity          *big.Int
	OnchainUnlocked   *big.Int
	PendingWithdraw   *big.Int
	TotalWithdrawable *big.Int
	Withdrawable      *big.Int
}

type Balances struct {
	Own     EndBalances
	Partner EndBalances
}

func zeroEndBalances() EndBalances {
	return EndBalances{
		Deposit:           new(big.Int),
		Withdraw:          new(big.Int),
		Transferred:       new(big.Int),
		Locked:            new(big.Int),
		Balance:           new(big.Int),
		Capacity:          new(big.Int),
		OnchainUnlocked:   new(big.Int),
		PendingWithdraw:   new(big.Int),
		TotalWithdrawable: new(big.Int),
		Withdrawable:      new(big.Int),
	}
}

// ComputeBalances derives both ends' amounts. Channels which are not open
// have all-zero balances.
func ComputeBalances(channel *NettingChannelState) *Balances {
	if channel == nil || channel.Status == nil || channel.Status.Name() != ChannelStateOpened {
		return &Balances{Own: zeroEndBalances(), Partner: zeroEndBalances()}
	}
	return &Balances{
		Own:     endBalances(channel.OurState, channel.PartnerState),
		Partner: endBalances(channel.PartnerState, channel.OurState),
	}
}

func endBalances(end *NettingChannelEndState, other *NettingChannelEndState) EndBalances {
	deposit := common.BigCopy(end.Deposit)
	withdraw := common.BigCopy(end.Withdraw)
	transferred := end.TransferredAmount()
	locked := end.LockedAmount()
	balance := new(big.Int).Sub(other.TransferredAmount(), transferred)

	capacity := new(big.Int).Sub(deposit, withdraw)
	capacity.Sub(capacity, locked)
	capacity.Add(capacity, balance)

	pending := getPendingWithdraw(end)
	totalWithdrawable := new(big.Int).Add(capacity, withdraw)

	// A withdraw request reserves the amount above the confirmed withdraw.
	withdrawable := new(big.Int).Sub(capacity, new(big.Int).Sub(common.BigMax(pending, withdraw), withdraw))
	if withdrawable.Sign() < 0 {
		withdrawable.SetInt64(0)
	}

	return EndBalances{
		Deposit:           deposit,
		Withdraw:          withdraw,
		Transferred:       transferred,
		Locked:            locked,
		Balance:           balance,
		Capacity:          capacity,
		OnchainUnlocked:   getAmountUnlockedOnChain(end),
		PendingWithdraw:   pending,
		TotalWithdrawable: totalWithdrawable,
		Withdrawable:      withdrawable,
	}
}

func getPendingWithdraw(end *NettingChannelEndState) *big.Int {
	pending := new(big.Int)
	for _, w := range end.PendingWithdraws {
		if w.Kind == WithdrawRequest && w.TotalWithdraw.Cmp(pending) > 0 {
			pending.Set(w.TotalWithdraw)
		}
	}
	return pending
}

// getAmountUnlockedOnChain sums the locks sent by end whose secret was
// registered on chain.
func getAmountUnlockedOnChain(end *NettingChannelEndState) *big.Int {
	sum := new(big.Int)
	for _, lock := range end.Locks {
		if lock.Registered {
			sum.Add(sum, lock.Amount)
		}
	}
	return sum
}

// GetDistributable is what our end can still send.
func GetDistributable(channel *NettingChannelState) *big.Int {
	return ComputeBalances(channel).Own.Capacity
}
