package transfer

import (
	"math/big"

	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/errors"
	"github.com/saveio/themis/common/log"
)

func GetStatus(channelState *NettingChannelState) string {
	if channelState == nil || channelState.Status == nil {
		return ""
	}
	return channelState.Status.Name()
}

// GetCloseInfo returns the close data of a channel which went through a
// confirmed close.
func GetCloseInfo(status ChannelStatus) (CloseInfo, bool) {
	switch s := status.(type) {
	case StatusClosed:
		return s.CloseInfo, true
	case StatusSettleable:
		return s.CloseInfo, true
	case StatusSettling:
		return s.CloseInfo, true
	case StatusSettled:
		return s.CloseInfo, s.CloseBlock != 0
	}
	return CloseInfo{}, false
}

// IsSettleable only depends on the block height.
func IsSettleable(channelState *NettingChannelState, blockHeight common.BlockHeight) bool {
	closed, ok := channelState.Status.(StatusClosed)
	if !ok {
		return false
	}
	return blockHeight >= closed.CloseBlock+channelState.SettleTimeout
}

func getNextNonce(endState *NettingChannelEndState) common.Nonce {
	nonce := endState.NextNonce
	endState.NextNonce++
	return nonce
}

func updateContractBalance(endState *NettingChannelEndState, deposit *big.Int) bool {
	if deposit.Cmp(endState.Deposit) > 0 {
		endState.Deposit = common.BigCopy(deposit)
		return true
	}
	return false
}

func updateWithdraw(endState *NettingChannelEndState, totalWithdraw *big.Int) bool {
	if totalWithdraw.Cmp(endState.Withdraw) <= 0 {
		return false
	}
	endState.Withdraw = common.BigCopy(totalWithdraw)
	var pending []*PendingWithdrawState
	for _, w := range endState.PendingWithdraws {
		if w.TotalWithdraw.Cmp(totalWithdraw) > 0 {
			pending = append(pending, w)
		}
	}
	endState.PendingWithdraws = pending
	return true
}

func getEndState(channelState *NettingChannelState, participant common.Address) *NettingChannelEndState {
	if participant == channelState.OurState.Address {
		return channelState.OurState
	} else if participant == channelState.PartnerState.Address {
		return channelState.PartnerState
	}
	return nil
}

func getLock(endState *NettingChannelEndState, secretHash common.SecretHash) (int, *HashTimeLockState) {
	for i, lock := range endState.Locks {
		if lock.SecretHash == secretHash {
			return i, lock
		}
	}
	return -1, nil
}

func locksWithout(locks []*HashTimeLockState, index int) []*HashTimeLockState {
	result := make([]*HashTimeLockState, 0, len(locks))
	result = append(result, locks[:index]...)
	return append(result, locks[index+1:]...)
}

func invalid(channelState *NettingChannelState, err error) TransitionResult {
	log.Debugf("[StateTransitionForChannel] %s: %s", channelState.Key(), err)
	return TransitionResult{channelState, []Event{&EventInvalidStateChange{Key: channelState.Key(), Reason: err}}}
}

func newOurBalanceProof(channelState *NettingChannelState, transferred *big.Int, locked *big.Int,
	locksroot common.Locksroot) *BalanceProofSignedState {
	return &BalanceProofSignedState{
		Nonce:             getNextNonce(channelState.OurState),
		TransferredAmount: transferred,
		LockedAmount:      locked,
		LocksRoot:         locksroot,
		ChainId:           channelState.ChainId,
		TokenNetwork:      channelState.TokenNetwork,
		ChannelIdentifier: channelState.Identifier,
		Sender:            channelState.OurState.Address,
	}
}

func eventsForSentBalanceProof(channelState *NettingChannelState, lock *HashTimeLockState,
	secretHash *common.SecretHash) []Event {
	bp := channelState.OurState.BalanceProof
	return []Event{
		&SendBalanceProof{Key: channelState.Key(), BalanceProof: bp, Lock: lock, SecretHash: secretHash},
		&EventBalanceProofSent{Channel: channelState, BalanceProof: bp},
		&EventChannelCapacityChanged{Channel: channelState},
	}
}

func handleSendDirectTransfer(channelState *NettingChannelState, stateChange *ActionTransferDirect) TransitionResult {
	if GetStatus(channelState) != ChannelStateOpened {
		return invalid(channelState, errors.ErrChannelNotOpen.New("direct transfer"))
	}
	amount := stateChange.Amount
	if amount == nil || amount.Sign() <= 0 {
		return invalid(channelState, errors.ErrInvalidInput.New("transfer amount must be positive"))
	}
	distributable := GetDistributable(channelState)
	if amount.Cmp(distributable) > 0 {
		return invalid(channelState, errors.ErrInsufficientCapacity.Newf(
			"capacity %s, transfer %s", distributable, amount))
	}

	our := channelState.OurState
	transferred := new(big.Int).Add(our.TransferredAmount(), amount)
	our.BalanceProof = newOurBalanceProof(channelState, transferred, our.LockedAmount(), ComputeLocksroot(our.Locks))
	return TransitionResult{channelState, eventsForSentBalanceProof(channelState, nil, nil)}
}

func handleSendLockedTransfer(channelState *NettingChannelState, stateChange *ActionSendLockedTransfer) TransitionResult {
	if GetStatus(channelState) != ChannelStateOpened {
		return invalid(channelState, errors.ErrChannelNotOpen.New("locked transfer"))
	}
	lock := stateChange.Lock
	if lock == nil || lock.Amount == nil || lock.Amount.Sign() <= 0 {
		return invalid(channelState, errors.ErrInvalidInput.New("lock amount must be positive"))
	}
	if _, existing := getLock(channelState.OurState, lock.SecretHash); existing != nil {
		return invalid(channelState, errors.ErrInvalidInput.New("lock already pending"))
	}
	if lock.Amount.Cmp(GetDistributable(channelState)) > 0 {
		return invalid(channelState, errors.ErrInsufficientCapacity.New("locked transfer"))
	}

	our := channelState.OurState
	our.Locks = append(our.Locks, lock.Copy())
	locked := new(big.Int).Add(our.LockedAmount(), lock.Amount)
	our.BalanceProof = newOurBalanceProof(channelState, our.TransferredAmount(), locked, ComputeLocksroot(our.Locks))
	return TransitionResult{channelState, eventsForSentBalanceProof(channelState, lock, nil)}
}

func handleSendUnlock(channelState *NettingChannelState, stateChange *ActionUnlock) TransitionResult {
	if GetStatus(channelState) != ChannelStateOpened {
		return invalid(channelState, errors.ErrChannelNotOpen.New("unlock"))
	}
	our := channelState.OurState
	index, lock := getLock(our, stateChange.SecretHash)
	if lock == nil {
		return invalid(channelState, errors.ErrInvalidInput.Newf("unknown lock %s", stateChange.SecretHash.Hex()))
	}
	our.Locks = locksWithout(our.Locks, index)
	transferred := new(big.Int).Add(our.TransferredAmount(), lock.Amount)
	locked := new(big.Int).Sub(our.LockedAmount(), lock.Amount)
	our.BalanceProof = newOurBalanceProof(channelState, transferred, locked, ComputeLocksroot(our.Locks))
	secretHash := stateChange.SecretHash
	return TransitionResult{channelState, eventsForSentBalanceProof(channelState, nil, &secretHash)}
}

func handleWithdrawRequest(channelState *NettingChannelState, stateChange *ActionWithdrawRequest,
	blockHeight common.BlockHeight) TransitionResult {
	if GetStatus(channelState) != ChannelStateOpened {
		return invalid(channelState, errors.ErrChannelNotOpen.New("withdraw"))
	}
	balances := ComputeBalances(channelState)
	total := stateChange.TotalWithdraw
	if total == nil || total.Cmp(balances.Own.Withdraw) <= 0 || total.Cmp(balances.Own.TotalWithdrawable) > 0 {
		return invalid(channelState, errors.ErrInvalidInput.Newf("invalid total withdraw %v", total))
	}
	if stateChange.Expiration <= blockHeight {
		return invalid(channelState, errors.ErrInvalidInput.New("withdraw already expired"))
	}
	withdraw := &PendingWithdrawState{
		Kind:          WithdrawRequest,
		TotalWithdraw: common.BigCopy(total),
		Expiration:    stateChange.Expiration,
		Nonce:         getNextNonce(channelState.OurState),
		Participant:   channelState.OurState.Address,
	}
	channelState.OurState.PendingWithdraws = append(channelState.OurState.PendingWithdraws, withdraw)
	return TransitionResult{channelState, []Event{
		&SendWithdrawRequest{Key: channelState.Key(), ChannelId: channelState.Identifier, Withdraw: withdraw},
		&EventChannelCapacityChanged{Channel: channelState},
	}}
}

// IsValidBalanceProof checks a received partner balance proof against the
// partner end. The signature must already be verified.
func IsValidBalanceProof(channelState *NettingChannelState, received *ReceiveBalanceProof) error {
	if GetStatus(channelState) != ChannelStateOpened {
		return errors.ErrChannelNotOpen.New("receive balance proof")
	}
	partner := channelState.PartnerState
	bp := received.BalanceProof
	switch {
	case bp == nil || bp.TransferredAmount == nil || bp.LockedAmount == nil:
		return errors.ErrInvalidBalanceProof.New("incomplete balance proof")
	case bp.Sender != partner.Address:
		return errors.ErrInvalidBalanceProof.Newf("sender %s is not the partner", bp.Sender.Hex())
	case bp.ChannelIdentifier != channelState.Identifier || bp.TokenNetwork != channelState.TokenNetwork ||
		bp.ChainId != channelState.ChainId:
		return errors.ErrInvalidBalanceProof.New("balance proof for another channel")
	case bp.Nonce != partner.NextNonce:
		return errors.ErrInvalidBalanceProof.Newf("nonce %d, expected %d", bp.Nonce, partner.NextNonce)
	}
	if err := common.CheckUInt256(bp.TransferredAmount); err != nil {
		return err
	}
	if err := common.CheckUInt256(bp.LockedAmount); err != nil {
		return err
	}

	oldTransferred := partner.TransferredAmount()
	oldLocked := partner.LockedAmount()
	capacity := ComputeBalances(channelState).Partner.Capacity
	locks := partner.Locks

	switch {
	case received.Lock != nil:
		if received.Lock.Amount == nil || received.Lock.Amount.Sign() <= 0 {
			return errors.ErrInvalidBalanceProof.New("lock amount must be positive")
		}
		if _, existing := getLock(partner, received.Lock.SecretHash); existing != nil {
			return errors.ErrInvalidBalanceProof.New("lock already pending")
		}
		if received.Lock.Amount.Cmp(capacity) > 0 {
			return errors.ErrInsufficientCapacity.New("received lock exceeds partner capacity")
		}
		locks = append(append([]*HashTimeLockState{}, locks...), received.Lock)
		if bp.TransferredAmount.Cmp(oldTransferred) != 0 ||
			bp.LockedAmount.Cmp(new(big.Int).Add(oldLocked, received.Lock.Amount)) != 0 {
			return errors.ErrInvalidBalanceProof.New("locked transfer amounts mismatch")
		}
	case received.SecretHash != nil:
		index, lock := getLock(partner, *received.SecretHash)
		if lock == nil {
			return errors.ErrInvalidBalanceProof.New("unlock of unknown lock")
		}
		locks = locksWithout(locks, index)
		if bp.TransferredAmount.Cmp(new(big.Int).Add(oldTransferred, lock.Amount)) != 0 ||
			bp.LockedAmount.Cmp(new(big.Int).Sub(oldLocked, lock.Amount)) != 0 {
			return errors.ErrInvalidBalanceProof.New("unlock amounts mismatch")
		}
	default:
		amount := new(big.Int).Sub(bp.TransferredAmount, oldTransferred)
		if amount.Sign() <= 0 || bp.LockedAmount.Cmp(oldLocked) != 0 {
			return errors.ErrInvalidBalanceProof.New("direct transfer amounts mismatch")
		}
		if amount.Cmp(capacity) > 0 {
			return errors.ErrInsufficientCapacity.New("direct transfer exceeds partner capacity")
		}
	}

	if bp.LocksRoot != ComputeLocksroot(locks) {
		return errors.ErrInvalidBalanceProof.New("locksroot mismatch")
	}
	return nil
}

func handleReceiveBalanceProof(channelState *NettingChannelState, stateChange *ReceiveBalanceProof) TransitionResult {
	if err := IsValidBalanceProof(channelState, stateChange); err != nil {
		return invalid(channelState, err)
	}
	partner := channelState.PartnerState
	switch {
	case stateChange.Lock != nil:
		partner.Locks = append(partner.Locks, stateChange.Lock.Copy())
	case stateChange.SecretHash != nil:
		index, _ := getLock(partner, *stateChange.SecretHash)
		partner.Locks = locksWithout(partner.Locks, index)
	}
	partner.BalanceProof = stateChange.BalanceProof.Copy()
	partner.NextNonce = stateChange.BalanceProof.Nonce + 1

	return TransitionResult{channelState, []Event{
		&EventBalanceProofReceived{Channel: channelState, BalanceProof: partner.BalanceProof},
		&EventChannelCapacityChanged{Channel: channelState},
	}}
}

// handleReceiveWithdraw records a partner withdraw request, or drops it
// again when the partner reports it expired. Both consume a partner nonce.
func handleReceiveWithdraw(channelState *NettingChannelState, stateChange *ReceiveWithdraw,
	blockHeight common.BlockHeight) TransitionResult {
	if GetStatus(channelState) != ChannelStateOpened {
		return invalid(channelState, errors.ErrChannelNotOpen.New("receive withdraw"))
	}
	partner := channelState.PartnerState
	w := stateChange.Withdraw
	switch {
	case w == nil || w.TotalWithdraw == nil:
		return invalid(channelState, errors.ErrInvalidInput.New("incomplete withdraw"))
	case w.Participant != partner.Address:
		return invalid(channelState, errors.ErrInvalidInput.Newf("withdraw of %s", w.Participant.Hex()))
	case w.Nonce != partner.NextNonce:
		return invalid(channelState, errors.ErrInvalidInput.Newf("nonce %d, expected %d", w.Nonce, partner.NextNonce))
	}

	if w.Kind == WithdrawExpired {
		var pending []*PendingWithdrawState
		for _, p := range partner.PendingWithdraws {
			if p.TotalWithdraw.Cmp(w.TotalWithdraw) != 0 || p.Expiration != w.Expiration {
				pending = append(pending, p)
			}
		}
		partner.PendingWithdraws = pending
	} else {
		balances := ComputeBalances(channelState)
		if w.TotalWithdraw.Cmp(balances.Partner.Withdraw) <= 0 ||
			w.TotalWithdraw.Cmp(balances.Partner.TotalWithdrawable) > 0 {
			return invalid(channelState, errors.ErrInvalidInput.Newf("invalid total withdraw %s", w.TotalWithdraw))
		}
		if w.Expiration <= blockHeight {
			return invalid(channelState, errors.ErrInvalidInput.New("withdraw already expired"))
		}
		request := w.Copy()
		request.Kind = WithdrawRequest
		partner.PendingWithdraws = append(partner.PendingWithdraws, request)
	}
	partner.NextNonce = w.Nonce + 1
	return TransitionResult{channelState, []Event{&EventChannelCapacityChanged{Channel: channelState}}}
}

func handleActionClose(channelState *NettingChannelState) TransitionResult {
	if GetStatus(channelState) != ChannelStateOpened {
		return invalid(channelState, errors.ErrChannelNotOpen.New("close"))
	}
	channelState.Status = StatusClosing{}
	return TransitionResult{channelState, []Event{&EventChannelClosing{Channel: channelState}}}
}

func handleActionCloseFailed(channelState *NettingChannelState) TransitionResult {
	if _, ok := channelState.Status.(StatusClosing); ok {
		channelState.Status = StatusOpen{}
	}
	return TransitionResult{channelState, nil}
}

func handleActionSettle(channelState *NettingChannelState) TransitionResult {
	switch s := channelState.Status.(type) {
	case StatusSettleable:
		channelState.Status = StatusSettling{s.CloseInfo}
		return TransitionResult{channelState, []Event{&EventChannelSettling{Channel: channelState}}}
	case StatusSettling:
		return TransitionResult{channelState, nil}
	}
	return invalid(channelState, errors.ErrNoSettleableChannel.Newf("channel is %s", GetStatus(channelState)))
}

func handleActionSettleFailed(channelState *NettingChannelState) TransitionResult {
	if s, ok := channelState.Status.(StatusSettling); ok {
		channelState.Status = StatusSettleable{s.CloseInfo}
	}
	return TransitionResult{channelState, nil}
}

func handleBlock(channelState *NettingChannelState, stateChange *Block) TransitionResult {
	var events []Event

	if IsSettleable(channelState, stateChange.BlockHeight) {
		closed := channelState.Status.(StatusClosed)
		channelState.Status = StatusSettleable{closed.CloseInfo}
		events = append(events, &EventChannelSettleable{Channel: channelState})
	}

	if GetStatus(channelState) == ChannelStateOpened {
		our := channelState.OurState
		var pending []*PendingWithdrawState
		for _, w := range our.PendingWithdraws {
			if w.Kind == WithdrawRequest && w.Expiration < stateChange.BlockHeight {
				expired := w.Copy()
				expired.Kind = WithdrawExpired
				expired.Nonce = getNextNonce(our)
				events = append(events, &SendWithdrawExpired{
					Key: channelState.Key(), ChannelId: channelState.Identifier, Withdraw: expired})
				continue
			}
			pending = append(pending, w)
		}
		if len(pending) != len(our.PendingWithdraws) {
			our.PendingWithdraws = pending
			events = append(events, &EventChannelCapacityChanged{Channel: channelState})
		}
	}
	return TransitionResult{channelState, events}
}

func handleChannelNewDeposit(channelState *NettingChannelState, stateChange *ContractReceiveChannelNewDeposit) TransitionResult {
	endState := getEndState(channelState, stateChange.Participant)
	if endState == nil || !updateContractBalance(endState, stateChange.TotalDeposit) {
		return TransitionResult{channelState, nil}
	}
	return TransitionResult{channelState, []Event{
		&EventChannelDeposit{Channel: channelState, Participant: stateChange.Participant,
			TotalDeposit: common.BigCopy(stateChange.TotalDeposit)},
		&EventChannelCapacityChanged{Channel: channelState},
	}}
}

func handleChannelWithdraw(channelState *NettingChannelState, stateChange *ContractReceiveChannelWithdraw) TransitionResult {
	endState := getEndState(channelState, stateChange.Participant)
	if endState == nil || !updateWithdraw(endState, stateChange.TotalWithdraw) {
		return TransitionResult{channelState, nil}
	}
	return TransitionResult{channelState, []Event{
		&EventChannelWithdraw{Channel: channelState, Participant: stateChange.Participant,
			TotalWithdraw: common.BigCopy(stateChange.TotalWithdraw)},
		&EventChannelCapacityChanged{Channel: channelState},
	}}
}

func handleChannelClosed(channelState *NettingChannelState, stateChange *ContractReceiveChannelClosed,
	blockHeight common.BlockHeight) TransitionResult {
	switch channelState.Status.(type) {
	case StatusOpen, StatusClosing:
	default:
		return TransitionResult{channelState, nil}
	}

	channelState.Status = StatusClosed{CloseInfo{CloseBlock: stateChange.BlockHeight, CloseParticipant: stateChange.Closer}}
	events := []Event{&EventChannelClosed{Channel: channelState}}

	balanceProof := channelState.PartnerState.BalanceProof
	if stateChange.Closer != channelState.OurState.Address && balanceProof != nil {
		events = append(events, &ContractSendChannelUpdateTransfer{
			Key:          channelState.Key(),
			ChannelId:    channelState.Identifier,
			BalanceProof: balanceProof,
			Expiration:   stateChange.BlockHeight + channelState.SettleTimeout,
		})
	}

	if IsSettleable(channelState, blockHeight) {
		iteration := handleBlock(channelState, &Block{BlockHeight: blockHeight})
		events = append(events, iteration.Events...)
	}
	return TransitionResult{channelState, events}
}

func handleChannelUpdatedTransfer(channelState *NettingChannelState, stateChange *ContractReceiveUpdateTransfer) TransitionResult {
	log.Debugf("[handleChannelUpdatedTransfer] channel %d participant %s nonce %d",
		channelState.Identifier, stateChange.Participant.Hex(), stateChange.Nonce)
	return TransitionResult{channelState, nil}
}

func handleChannelSettled(channelState *NettingChannelState, stateChange *ContractReceiveChannelSettled) TransitionResult {
	if GetStatus(channelState) == ChannelStateSettled {
		return TransitionResult{channelState, nil}
	}
	info, _ := GetCloseInfo(channelState.Status)
	channelState.Status = StatusSettled{CloseInfo: info, SettleBlock: stateChange.BlockHeight}
	events := []Event{&EventChannelSettled{Channel: channelState}}

	var claimable []*HashTimeLockState
	for _, lock := range channelState.PartnerState.Locks {
		if lock.Registered {
			claimable = append(claimable, lock)
		}
	}
	if len(claimable) > 0 {
		events = append(events, &ContractSendChannelUnlock{
			Key:       channelState.Key(),
			ChannelId: channelState.Identifier,
			Locks:     channelState.PartnerState.Locks,
		})
	}
	return TransitionResult{channelState, events}
}

func registerOnChainSecret(channelState *NettingChannelState, secretHash common.SecretHash,
	blockHeight common.BlockHeight) bool {
	changed := false
	for _, end := range []*NettingChannelEndState{channelState.OurState, channelState.PartnerState} {
		for _, lock := range end.Locks {
			if lock.SecretHash == secretHash && lock.Expiration > blockHeight && !lock.Registered {
				lock.Registered = true
				changed = true
			}
		}
	}
	return changed
}

// StateTransitionForChannel works on a copy owned by the caller.
func StateTransitionForChannel(channelState *NettingChannelState, stateChange StateChange,
	blockHeight common.BlockHeight) TransitionResult {

	switch sc := stateChange.(type) {
	case *Block:
		return handleBlock(channelState, sc)
	case *ActionChannelClose:
		return handleActionClose(channelState)
	case *ActionChannelCloseFailed:
		return handleActionCloseFailed(channelState)
	case *ActionChannelSettle:
		return handleActionSettle(channelState)
	case *ActionChannelSettleFailed:
		return handleActionSettleFailed(channelState)
	case *ActionTransferDirect:
		return handleSendDirectTransfer(channelState, sc)
	case *ActionSendLockedTransfer:
		return handleSendLockedTransfer(channelState, sc)
	case *ActionUnlock:
		return handleSendUnlock(channelState, sc)
	case *ActionWithdrawRequest:
		return handleWithdrawRequest(channelState, sc, blockHeight)
	case *ReceiveBalanceProof:
		return handleReceiveBalanceProof(channelState, sc)
	case *ReceiveWithdraw:
		return handleReceiveWithdraw(channelState, sc, blockHeight)
	case *ContractReceiveChannelNewDeposit:
		return handleChannelNewDeposit(channelState, sc)
	case *ContractReceiveChannelWithdraw:
		return handleChannelWithdraw(channelState, sc)
	case *ContractReceiveChannelClosed:
		return handleChannelClosed(channelState, sc, blockHeight)
	case *ContractReceiveUpdateTransfer:
		return handleChannelUpdatedTransfer(channelState, sc)
	case *ContractReceiveChannelSettled:
		return handleChannelSettled(channelState, sc)
	case *ContractReceiveSecretReveal:
		if registerOnChainSecret(channelState, sc.SecretHash, sc.BlockHeight) {
			return TransitionResult{channelState, []Event{&EventChannelCapacityChanged{Channel: channelState}}}
		}
	}
	return TransitionResult{channelState, nil}
}
