package channelservice

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/errors"
	"github.com/saveio/paychan/network/transport/messages"
	"github.com/saveio/paychan/transfer"
	"github.com/saveio/paychan/utils"
	"github.com/saveio/themis/common/log"
)

// rates in MonitoringConfig.RateToSvt are scaled by 1e18
var rateScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Monitor pays a monitoring service to defend the partner balance proofs
// we received, when what we would lose is worth more than the reward.
type Monitor struct {
	channel *ChannelService

	lock       sync.Mutex
	lockCounts map[common.ChannelKey]int
	timers     map[common.ChannelKey]*time.Timer
}

func NewMonitor(channel *ChannelService) *Monitor {
	return &Monitor{
		channel:    channel,
		lockCounts: make(map[common.ChannelKey]int),
		timers:     make(map[common.ChannelKey]*time.Timer),
	}
}

func (self *Monitor) Start() error {
	sub, err := self.channel.subscribe(TopicEvent)
	if err != nil {
		return err
	}
	self.channel.wg.Add(1)
	go func() {
		defer self.channel.wg.Done()
		defer self.channel.unsubscribe(sub)
		defer self.stopTimers()
		for {
			select {
			case <-self.channel.ctx.Done():
				return
			case msg, ok := <-sub:
				if !ok {
					return
				}
				if received, isReceived := msg.(*transfer.EventBalanceProofReceived); isReceived {
					self.OnBalanceProof(received)
				}
			}
		}
	}()
	return nil
}

// OnBalanceProof schedules a monitoring request for the channel of event.
// While the partner keeps adding locks the request is held back until the
// updates stop for the debounce interval.
func (self *Monitor) OnBalanceProof(event *transfer.EventBalanceProofReceived) {
	key := event.Channel.Key()
	locks := len(event.Channel.PartnerState.Locks)
	debounce := self.channel.config.Monitoring.Debounce

	self.lock.Lock()
	previous := self.lockCounts[key]
	self.lockCounts[key] = locks
	if timer, ok := self.timers[key]; ok {
		timer.Stop()
		delete(self.timers, key)
	}
	if debounce > 0 && locks > previous {
		self.timers[key] = time.AfterFunc(debounce, func() {
			self.lock.Lock()
			delete(self.timers, key)
			self.lock.Unlock()
			self.submit(key)
		})
		self.lock.Unlock()
		return
	}
	self.lock.Unlock()
	self.submit(key)
}

func (self *Monitor) stopTimers() {
	self.lock.Lock()
	defer self.lock.Unlock()
	for key, timer := range self.timers {
		timer.Stop()
		delete(self.timers, key)
	}
}

func (self *Monitor) submit(key common.ChannelKey) {
	_, err := self.channel.monitorOps.Submit(key.String(), string(transfer.OpMonitor), func() error {
		if err := self.RequestMonitoring(self.channel.ctx, key); err != nil {
			log.Warnf("[Monitor] request for %s not sent: %s", key, err)
			self.channel.publishResult(transfer.NewFailed(transfer.OpMonitor, key.String(), "", err))
		}
		return nil
	})
	if err != nil {
		log.Warnf("[Monitor] request for %s not queued: %s", key, err)
	}
}

// RequestMonitoring sends a monitoring request with the latest balance
// proof of the partner in the channel with key, once our collateral covers
// the reward. Nothing is sent when the proof is not worth the reward.
func (self *Monitor) RequestMonitoring(ctx context.Context, key common.ChannelKey) error {
	channelState := transfer.GetChannelByKey(self.channel.StateFromChannel(), key)
	if channelState == nil || channelState.PartnerState.BalanceProof == nil {
		return nil
	}
	bp := channelState.PartnerState.BalanceProof.Copy()
	atRisk := common.BigCopy(bp.TransferredAmount)
	if atRisk.Sign() == 0 {
		return nil
	}

	config := self.channel.config.Monitoring
	reward := common.BigCopy(config.Reward)
	rate, hasRate := config.RateToSvt[channelState.TokenAddress]
	if !hasRate {
		rate = nil
	}
	if !ShouldMonitor(atRisk, rate, reward) {
		log.Debugf("[RequestMonitoring] %s at risk on %s is not worth reward %s", atRisk, key, reward)
		return nil
	}
	if err := self.waitForCollateral(ctx, reward); err != nil {
		return err
	}

	msg, err := messages.NewMonitorRequest(self.channel.signer, bp, reward, config.MonitoringServiceAddress)
	if err != nil {
		return err
	}
	if err = messages.Sign(self.channel.signer, msg); err != nil {
		return err
	}
	if err = self.channel.transport.Broadcast(ctx, config.Room, msg); err != nil {
		return err
	}
	self.channel.metrics.MonitorRequestSent()
	self.channel.publishResult(transfer.NewSucceeded(transfer.OpMonitor, key.String(), "", bp.Nonce))
	log.Infof("[RequestMonitoring] balance proof %d of %s sent to %s", bp.Nonce, key, config.Room)
	return nil
}

// ShouldMonitor reports whether atRisk token units, valued with rate, are
// worth more than reward. A token without a rate is always monitored.
func ShouldMonitor(atRisk *big.Int, rate *big.Int, reward *big.Int) bool {
	if rate == nil {
		return true
	}
	value := new(big.Int).Mul(common.BigCopy(atRisk), rate)
	threshold := new(big.Int).Mul(common.BigCopy(reward), rateScale)
	return value.Cmp(threshold) > 0
}

// waitForCollateral blocks until our user deposit covers reward, checking
// again on every new block.
func (self *Monitor) waitForCollateral(ctx context.Context, reward *big.Int) error {
	if reward.Sign() == 0 {
		return nil
	}
	udcAddress := self.channel.config.Monitoring.UserDepositAddress
	if udcAddress == common.EmptyAddress {
		return errors.ErrInvalidInput.New("no user deposit contract configured")
	}
	udc := self.channel.chain.UserDeposit(udcAddress)
	policy := utils.NewRetryPolicy(self.channel.config.PollingInterval, self.channel.config.HttpTimeout,
		self.channel.config.HttpRetries)
	for {
		var balance *big.Int
		err := utils.Retry(ctx, policy, "effectiveBalance", func() error {
			var err error
			balance, err = udc.EffectiveBalance(ctx, self.channel.address)
			return err
		})
		if err != nil {
			return err
		}
		if balance.Cmp(reward) >= 0 {
			return nil
		}
		height := transfer.GetBlockHeight(self.channel.StateFromChannel())
		log.Infof("[waitForCollateral] deposit %s below reward %s at block %d", balance, reward, height)
		if err = WaitForBlock(ctx, self.channel, height+1); err != nil {
			return err
		}
	}
}
