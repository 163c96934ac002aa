package channelservice

import (
	"context"

	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/errors"
	"github.com/saveio/paychan/network/proxies"
	"github.com/saveio/paychan/transfer"
	"github.com/saveio/paychan/utils"
	"github.com/saveio/themis/common/log"
)

// CloseChannel closes the channel with partner using the partner's latest
// balance proof and waits until the close is confirmed.
func (self *ChannelService) CloseChannel(ctx context.Context, tokenNetwork common.TokenNetworkID,
	partner common.Address) error {
	key := common.ChannelKey{TokenNetwork: tokenNetwork, Partner: partner}
	channelState := transfer.GetChannelByKey(self.StateFromChannel(), key)
	if channelState == nil {
		return errors.ErrChannelNotFound.Newf("no channel with %s on %s", partner.Hex(), tokenNetwork.Hex())
	}
	if transfer.GetStatus(channelState) != transfer.ChannelStateOpened {
		return errors.ErrChannelNotOpen.Newf("channel %d is %s", channelState.Identifier,
			transfer.GetStatus(channelState))
	}
	channelId := channelState.Identifier

	sub, err := self.subscribe(TopicResult)
	if err != nil {
		return err
	}
	defer self.unsubscribe(sub)

	id, done, err := self.submitChannelOp(transfer.OpClose, key.String(), func(id string) error {
		return self.closeChannel(key)
	})
	if err != nil {
		return err
	}
	return self.awaitOperation(ctx, sub, done, transfer.OpClose, id, func(result *transfer.OperationResult) bool {
		closed, ok := result.Payload.(*transfer.NettingChannelState)
		return result.Op == transfer.OpClose && result.Key == key.String() && ok && closed.Identifier == channelId
	})
}

func (self *ChannelService) closeChannel(key common.ChannelKey) error {
	events := self.HandleStateChange(&transfer.ActionChannelClose{Key: key})
	if err := invalidReason(events); err != nil {
		if errors.ErrChannelNotOpen.Is(err) {
			return errors.ErrStateConflict.Newf("close %s: %s", key, err)
		}
		return err
	}
	channelState := transfer.GetChannelByKey(self.StateFromChannel(), key)
	if channelState == nil {
		return errors.ErrStateConflict.Newf("channel %s is gone", key)
	}

	ctx := self.ctx
	payment := self.chain.PaymentChannel(channelState)
	partnerBalanceProof := channelState.PartnerState.BalanceProof
	err := utils.Retry(ctx, self.txPolicy(), "closeChannel", func() error {
		return payment.Close(ctx, partnerBalanceProof)
	})
	if err != nil && !errors.IsStateConflict(err) {
		self.HandleStateChange(&transfer.ActionChannelCloseFailed{Key: key})
	}
	return err
}

// SettleChannel settles a settleable channel with partner and waits until
// the settlement is confirmed.
func (self *ChannelService) SettleChannel(ctx context.Context, tokenNetwork common.TokenNetworkID,
	partner common.Address) error {
	key := common.ChannelKey{TokenNetwork: tokenNetwork, Partner: partner}
	channelState := transfer.GetChannelByKey(self.StateFromChannel(), key)
	if channelState == nil {
		return errors.ErrNoSettleableChannel.Newf("no channel with %s on %s", partner.Hex(), tokenNetwork.Hex())
	}
	switch transfer.GetStatus(channelState) {
	case transfer.ChannelStateSettleable, transfer.ChannelStateSettling:
	default:
		return errors.ErrNoSettleableChannel.Newf("channel %d is %s", channelState.Identifier,
			transfer.GetStatus(channelState))
	}

	sub, err := self.subscribe(TopicResult)
	if err != nil {
		return err
	}
	defer self.unsubscribe(sub)

	id, done, err := self.settleAsync(channelState.HistoryKey())
	if err != nil {
		return err
	}
	return self.awaitOperation(ctx, sub, done, transfer.OpSettle, id, settledMatcher(channelState.HistoryKey()))
}

func settledMatcher(historyKey common.HistoryKey) func(*transfer.OperationResult) bool {
	return func(result *transfer.OperationResult) bool {
		settled, ok := result.Payload.(*transfer.NettingChannelState)
		return result.Op == transfer.OpSettle && result.Key == historyKey.ChannelKey.String() &&
			ok && settled.Identifier == historyKey.ChannelId
	}
}

func (self *ChannelService) settleAsync(historyKey common.HistoryKey) (string, <-chan error, error) {
	return self.submitChannelOp(transfer.OpSettle, historyKey.ChannelKey.String(), func(id string) error {
		return self.settle(historyKey)
	})
}

func (self *ChannelService) settle(historyKey common.HistoryKey) error {
	key := historyKey.ChannelKey
	channelState := transfer.GetChannelByKey(self.StateFromChannel(), key)
	if channelState == nil || channelState.Identifier != historyKey.ChannelId {
		return errors.ErrStateConflict.Newf("channel %d with %s already settled", historyKey.ChannelId,
			key.Partner.Hex())
	}
	if err := invalidReason(self.HandleStateChange(&transfer.ActionChannelSettle{Key: key})); err != nil {
		return err
	}
	channelState = transfer.GetChannelByKey(self.StateFromChannel(), key)
	if channelState == nil || channelState.Identifier != historyKey.ChannelId {
		return errors.ErrStateConflict.Newf("channel %d settled meanwhile", historyKey.ChannelId)
	}

	err := self.submitSettle(self.ctx, channelState)
	if err != nil && !errors.IsStateConflict(err) {
		self.HandleStateChange(&transfer.ActionChannelSettleFailed{Key: key})
	}
	return err
}

func (self *ChannelService) submitSettle(ctx context.Context, channelState *transfer.NettingChannelState) error {
	payment := self.chain.PaymentChannel(channelState)
	var details *proxies.ParticipantsDetails
	err := utils.Retry(ctx, self.txPolicy(), "channelDetails", func() error {
		var err error
		details, err = payment.Detail(ctx)
		return err
	})
	if err != nil {
		return err
	}

	ourBalanceProof, err := self.resolveBalanceProof(channelState, channelState.OurState, details.OurDetails)
	if err != nil {
		return err
	}
	partnerBalanceProof, err := self.resolveBalanceProof(channelState, channelState.PartnerState,
		details.PartnerDetails)
	if err != nil {
		return err
	}
	our := settleParticipant(channelState.OurState.Address, ourBalanceProof)
	partner := settleParticipant(channelState.PartnerState.Address, partnerBalanceProof)

	historyKey := channelState.HistoryKey()
	return utils.Retry(ctx, self.txPolicy(), "settleChannel", func() error {
		if self.isSettled(historyKey) {
			return errors.ErrStateConflict.Newf("channel %d settled meanwhile", historyKey.ChannelId)
		}
		return payment.Settle(ctx, our, partner)
	})
}

func (self *ChannelService) isSettled(historyKey common.HistoryKey) bool {
	channelState := transfer.GetChannelHistory(self.StateFromChannel(), historyKey)
	return channelState == nil || transfer.GetStatus(channelState) == transfer.ChannelStateSettled
}

// resolveBalanceProof finds the proof of end matching its on-chain balance
// hash: the empty proof, the cached latest one, or one from the history.
func (self *ChannelService) resolveBalanceProof(channelState *transfer.NettingChannelState,
	end *transfer.NettingChannelEndState, onchain *proxies.ParticipantDetails) (*transfer.BalanceProofSignedState, error) {
	if onchain.BalanceHash == common.EmptyBalanceHash {
		return transfer.EmptyBalanceProof(channelState, end.Address), nil
	}
	if local := end.BalanceProof; local != nil && local.BalanceHash() == onchain.BalanceHash {
		return local, nil
	}
	bp, err := self.storage.GetBalanceProofByHash(channelState.TokenNetwork, channelState.Identifier,
		end.Address, onchain.BalanceHash)
	if err != nil {
		return nil, errors.Wrap(err, "look up balance proof history")
	}
	if bp == nil {
		return nil, errors.ErrInvalidBalanceHash.Newf("no balance proof of %s matches %s",
			end.Address.Hex(), onchain.BalanceHash.Hex())
	}
	log.Infof("[resolveBalanceProof] use stored nonce %d of %s for on-chain hash %s", bp.Nonce,
		end.Address.Hex(), onchain.BalanceHash.Hex())
	return bp, nil
}

func settleParticipant(address common.Address, bp *transfer.BalanceProofSignedState) *proxies.SettleParticipant {
	return &proxies.SettleParticipant{
		Address:           address,
		TransferredAmount: common.BigCopy(bp.TransferredAmount),
		LockedAmount:      common.BigCopy(bp.LockedAmount),
		Locksroot:         bp.LocksRoot,
	}
}

// CooperativeSettle settles an open or closing channel with both
// participants' withdraw consents and waits until it is confirmed.
func (self *ChannelService) CooperativeSettle(ctx context.Context, tokenNetwork common.TokenNetworkID,
	partner common.Address, our *proxies.WithdrawPair, theirs *proxies.WithdrawPair) error {
	if our == nil || theirs == nil || our.Participant != self.address || theirs.Participant != partner {
		return errors.ErrInvalidInput.New("withdraw pairs must be ours and the partner's")
	}
	key := common.ChannelKey{TokenNetwork: tokenNetwork, Partner: partner}
	channelState := transfer.GetChannelByKey(self.StateFromChannel(), key)
	if channelState == nil || !cooperativeSettleable(channelState) {
		return errors.ErrNoSettleableChannel.Newf("no open channel with %s on %s", partner.Hex(), tokenNetwork.Hex())
	}
	historyKey := channelState.HistoryKey()

	sub, err := self.subscribe(TopicResult)
	if err != nil {
		return err
	}
	defer self.unsubscribe(sub)

	id, done, err := self.submitChannelOp(transfer.OpCooperativeSettle, key.String(), func(id string) error {
		return self.cooperativeSettle(historyKey, our, theirs)
	})
	if err != nil {
		return err
	}
	return self.awaitOperation(ctx, sub, done, transfer.OpCooperativeSettle, id, settledMatcher(historyKey))
}

func cooperativeSettleable(channelState *transfer.NettingChannelState) bool {
	switch transfer.GetStatus(channelState) {
	case transfer.ChannelStateOpened, transfer.ChannelStateClosing:
		return true
	}
	return false
}

func (self *ChannelService) cooperativeSettle(historyKey common.HistoryKey, our *proxies.WithdrawPair,
	theirs *proxies.WithdrawPair) error {
	channelState := transfer.GetChannelHistory(self.StateFromChannel(), historyKey)
	if channelState == nil || transfer.GetStatus(channelState) == transfer.ChannelStateSettled {
		return errors.ErrStateConflict.Newf("channel %d already settled", historyKey.ChannelId)
	}
	if !cooperativeSettleable(channelState) {
		return errors.ErrNoSettleableChannel.Newf("channel %d is %s", channelState.Identifier,
			transfer.GetStatus(channelState))
	}

	first, second := our, theirs
	if !channelState.IsFirstParticipant {
		first, second = theirs, our
	}
	ctx := self.ctx
	payment := self.chain.PaymentChannel(channelState)
	return utils.Retry(ctx, self.txPolicy(), "cooperativeSettle", func() error {
		if self.isSettled(historyKey) {
			return errors.ErrStateConflict.Newf("channel %d settled meanwhile", historyKey.ChannelId)
		}
		return payment.CooperativeSettle(ctx, first, second)
	})
}

// updateTransferAsync submits the partner's closing balance proof with our
// countersignature.
func (self *ChannelService) updateTransferAsync(event *transfer.ContractSendChannelUpdateTransfer) {
	historyKey := common.HistoryKey{ChannelKey: event.Key, ChannelId: event.ChannelId}
	bp := event.BalanceProof.Copy()
	_, _, err := self.submitChannelOp(transfer.OpUpdateTransfer, event.Key.String(), func(id string) error {
		channelState := transfer.GetChannelHistory(self.StateFromChannel(), historyKey)
		if channelState == nil {
			return errors.ErrStateConflict.Newf("channel %d is gone", historyKey.ChannelId)
		}
		signature, err := self.signer.Sign(transfer.PackBalanceProofUpdate(bp))
		if err != nil {
			return errors.Wrap(err, "sign balance proof update")
		}
		ctx := self.ctx
		payment := self.chain.PaymentChannel(channelState)
		err = utils.Retry(ctx, self.txPolicy(), "updateNonClosingBalanceProof", func() error {
			return payment.UpdateTransfer(ctx, bp, signature)
		})
		if err == nil {
			self.publishResult(transfer.NewSucceeded(transfer.OpUpdateTransfer, event.Key.String(), id, bp.Nonce))
		}
		return err
	})
	if err != nil {
		log.Errorf("[updateTransferAsync] channel %d: %s", event.ChannelId, err)
	}
}

// unlockAsync claims the partner's registered locks of a settled channel.
func (self *ChannelService) unlockAsync(event *transfer.ContractSendChannelUnlock) {
	historyKey := common.HistoryKey{ChannelKey: event.Key, ChannelId: event.ChannelId}
	locks := append([]*transfer.HashTimeLockState(nil), event.Locks...)
	_, _, err := self.submitChannelOp(transfer.OpUnlock, event.Key.String(), func(id string) error {
		channelState := transfer.GetChannelHistory(self.StateFromChannel(), historyKey)
		if channelState == nil {
			return errors.ErrChannelNotFound.Newf("channel %d", historyKey.ChannelId)
		}
		ctx := self.ctx
		payment := self.chain.PaymentChannel(channelState)
		err := utils.Retry(ctx, self.txPolicy(), "unlock", func() error {
			return payment.Unlock(ctx, locks)
		})
		if err == nil {
			self.publishResult(transfer.NewSucceeded(transfer.OpUnlock, event.Key.String(), id, len(locks)))
		}
		return err
	})
	if err != nil {
		log.Errorf("[unlockAsync] channel %d: %s", event.ChannelId, err)
	}
}
