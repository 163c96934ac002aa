package channelservice

import (
	"reflect"

	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/network/transport/messages"
	"github.com/saveio/paychan/storage"
	"github.com/saveio/paychan/transfer"
	"github.com/saveio/themis/common/log"
)

// ChannelEventHandler turns state machine events into side effects. It runs
// under the publish lock, so anything blocking is queued on a serializer.
type ChannelEventHandler struct {
}

func (self ChannelEventHandler) OnChannelEvent(channel *ChannelService, event transfer.Event) {
	log.Debug("[OnChannelEvent] type: ", reflect.TypeOf(event).String())
	switch e := event.(type) {
	case *transfer.SendBalanceProof:
		self.HandleSendBalanceProof(channel, e)
	case *transfer.SendWithdrawRequest:
		self.HandleSendWithdraw(channel, e.Key, e.Withdraw)
	case *transfer.SendWithdrawExpired:
		self.HandleSendWithdraw(channel, e.Key, e.Withdraw)
	case *transfer.EventBalanceProofReceived:
		self.HandleBalanceProofReceived(channel, e)
	case *transfer.ContractSendChannelUpdateTransfer:
		channel.updateTransferAsync(e)
	case *transfer.ContractSendChannelUnlock:
		channel.unlockAsync(e)
	case *transfer.EventChannelCapacityChanged:
		channel.sendPfsUpdates(e.Channel)
	case *transfer.EventChannelDeposit:
		if e.Participant == channel.address {
			channel.publishResult(transfer.NewSucceeded(transfer.OpDeposit, e.Channel.Key().String(), "",
				common.BigCopy(e.TotalDeposit)))
		}
	case *transfer.EventChannelClosed:
		channel.publishResult(transfer.NewSucceeded(transfer.OpClose, e.Channel.Key().String(), "", e.Channel))
	case *transfer.EventChannelSettled:
		channel.publishResult(transfer.NewSucceeded(transfer.OpSettle, e.Channel.Key().String(), "", e.Channel))
	case *transfer.EventInvalidStateChange:
		log.Warnf("[OnChannelEvent] invalid state change on %s: %s", e.Key, e.Reason)
	}
}

// HandleSendBalanceProof signs our new balance proof, records it and queues
// the transfer message behind the earlier ones of the channel.
func (self ChannelEventHandler) HandleSendBalanceProof(channel *ChannelService, event *transfer.SendBalanceProof) {
	bp := event.BalanceProof.Copy()
	signature, err := channel.signer.Sign(transfer.PackBalanceProof(bp))
	if err != nil {
		log.Errorf("[HandleSendBalanceProof] sign balance proof for %s: %s", event.Key, err)
		return
	}
	bp.Signature = signature
	bp.Sender = channel.address
	if err = channel.storage.PutBalanceProof(storage.DirectionSent, bp); err != nil {
		log.Errorf("[HandleSendBalanceProof] store balance proof for %s: %s", event.Key, err)
	}
	channel.sendMessage(event.Key, messages.NewTransfer(bp, event.Lock, event.SecretHash))
}

func (self ChannelEventHandler) HandleSendWithdraw(channel *ChannelService, key common.ChannelKey,
	withdraw *transfer.PendingWithdrawState) {
	channelState := transfer.GetChannelByKey(channel.StateFromChannel(), key)
	if channelState == nil {
		log.Warnf("[HandleSendWithdraw] channel %s is gone", key)
		return
	}
	msg := messages.NewWithdrawRequest(channelState, withdraw)
	if err := messages.Sign(channel.signer, msg); err != nil {
		log.Errorf("[HandleSendWithdraw] sign withdraw for %s: %s", key, err)
		return
	}
	channel.sendMessage(key, msg)
}

func (self ChannelEventHandler) HandleBalanceProofReceived(channel *ChannelService, event *transfer.EventBalanceProofReceived) {
	if err := channel.storage.PutBalanceProof(storage.DirectionReceived, event.BalanceProof); err != nil {
		log.Errorf("[HandleBalanceProofReceived] store balance proof of %s: %s",
			event.Channel.PartnerState.Address.Hex(), err)
	}
}
