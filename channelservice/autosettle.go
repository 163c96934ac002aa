package channelservice

import (
	"sync"

	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/network/transport"
	"github.com/saveio/paychan/transfer"
	"github.com/saveio/themis/common/log"
)

// AutoSettle requests settlement of every settleable channel once its
// dispute window and the extra wait have passed.
type AutoSettle struct {
	channel   *ChannelService
	lock      sync.Mutex
	requested map[common.HistoryKey]struct{}
}

func NewAutoSettle(channel *ChannelService) *AutoSettle {
	return &AutoSettle{
		channel:   channel,
		requested: make(map[common.HistoryKey]struct{}),
	}
}

func (self *AutoSettle) Start() error {
	sub, err := self.channel.subscribe(TopicBlock)
	if err != nil {
		return err
	}
	self.channel.wg.Add(1)
	go func() {
		defer self.channel.wg.Done()
		defer self.channel.unsubscribe(sub)
		for {
			select {
			case <-self.channel.ctx.Done():
				return
			case msg, ok := <-sub:
				if !ok {
					return
				}
				if chainState, isState := msg.(*transfer.ChainState); isState {
					self.OnBlock(chainState)
				}
			}
		}
	}()
	return nil
}

// OnBlock submits settlement for the channels which became due at the
// block of chainState.
func (self *AutoSettle) OnBlock(chainState *transfer.ChainState) {
	for _, channelState := range self.ChannelsToSettle(chainState) {
		historyKey := channelState.HistoryKey()
		if _, _, err := self.channel.settleAsync(historyKey); err != nil {
			log.Errorf("[AutoSettle] settle channel %d: %s", channelState.Identifier, err)
			continue
		}
		log.Infof("[AutoSettle] settle channel %d with %s at block %d", channelState.Identifier,
			channelState.PartnerState.Address.Hex(), chainState.BlockHeight)
	}
}

// ChannelsToSettle returns the settleable channels due at chainState's
// block which were not requested before, and marks them requested. Marks of
// channels which left the live set are dropped.
func (self *AutoSettle) ChannelsToSettle(chainState *transfer.ChainState) []*transfer.NettingChannelState {
	self.lock.Lock()
	defer self.lock.Unlock()

	for historyKey := range self.requested {
		live, ok := chainState.Channels[historyKey.ChannelKey]
		if !ok || live.Identifier != historyKey.ChannelId {
			delete(self.requested, historyKey)
		}
	}

	var due []*transfer.NettingChannelState
	for _, channelState := range transfer.ListChannelsByStatus(chainState, transfer.ChannelStateSettleable) {
		historyKey := channelState.HistoryKey()
		if _, done := self.requested[historyKey]; done {
			continue
		}
		closeInfo, ok := transfer.GetCloseInfo(channelState.Status)
		if !ok {
			continue
		}
		presence := self.channel.transport.Presence(channelState.PartnerState.Address)
		wait := RequiredSettleWait(chainState, channelState, closeInfo.CloseParticipant == chainState.Our, presence)
		if chainState.BlockHeight < closeInfo.CloseBlock+channelState.SettleTimeout+wait {
			continue
		}
		self.requested[historyKey] = struct{}{}
		due = append(due, channelState)
	}
	return due
}

// RequiredSettleWait is the number of blocks to wait after the dispute
// window. Only an online light client partner of a channel we closed is
// trusted to wait the confirmation blocks before settling on its own.
func RequiredSettleWait(chainState *transfer.ChainState, channelState *transfer.NettingChannelState,
	weClosed bool, partner transport.Presence) common.BlockHeight {
	if weClosed && partner.Online && partner.Caps.LightClient {
		return chainState.ConfirmationBlocks
	}
	return channelState.RevealTimeout
}
