package channelservice

import (
	"time"

	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/network/transport/messages"
	"github.com/saveio/paychan/transfer"
	"github.com/saveio/themis/common/log"
)

// sendPfsUpdates queues a capacity update for channelState and, while the
// channel is open, its current fee schedule.
func (self *ChannelService) sendPfsUpdates(channelState *transfer.NettingChannelState) {
	key := channelState.Key().String()
	_, err := self.notifyOps.Submit("pfs/"+key, string(transfer.OpFeeUpdate), func() error {
		err := self.broadcastPfsUpdates(channelState)
		if err != nil {
			log.Errorf("[sendPfsUpdates] channel %d: %s", channelState.Identifier, err)
			self.publishResult(transfer.NewFailed(transfer.OpFeeUpdate, key, "", err))
			return err
		}
		self.publishResult(transfer.NewSucceeded(transfer.OpFeeUpdate, key, "", channelState.Identifier))
		return nil
	})
	if err != nil {
		log.Warnf("[sendPfsUpdates] channel %d not queued: %s", channelState.Identifier, err)
	}
}

func (self *ChannelService) broadcastPfsUpdates(channelState *transfer.NettingChannelState) error {
	room := self.config.PathFinding.Room
	capacity := messages.NewPFSCapacityUpdate(channelState)
	if err := messages.Sign(self.signer, capacity); err != nil {
		return err
	}
	if err := self.transport.Broadcast(self.ctx, room, capacity); err != nil {
		return err
	}
	if transfer.GetStatus(channelState) != transfer.ChannelStateOpened {
		return nil
	}
	schedule := self.getFeeModel().FeeSchedule(channelState)
	fee := messages.NewPFSFeeUpdate(channelState, schedule, time.Now().Unix())
	if err := messages.Sign(self.signer, fee); err != nil {
		return err
	}
	return self.transport.Broadcast(self.ctx, room, fee)
}

// UpdateFeeConfig replaces the mediation fee configuration and announces
// the new schedules of all open channels. The engine config keeps the
// startup value, the live one is read through FeeConfig.
func (self *ChannelService) UpdateFeeConfig(config common.MediationFeeConfig) {
	model := transfer.NewMediationFeeModel(config)
	self.feeLock.Lock()
	self.feeModel = model
	self.feeLock.Unlock()

	channels := transfer.ListChannelsByStatus(self.StateFromChannel(), transfer.ChannelStateOpened)
	for _, channelState := range channels {
		self.sendPfsUpdates(channelState)
	}
	log.Infof("[UpdateFeeConfig] fee schedules of %d channels announced", len(channels))
}

func (self *ChannelService) FeeConfig() common.MediationFeeConfig {
	return self.getFeeModel().Config()
}
