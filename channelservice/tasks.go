package channelservice

import (
	"context"
	"sync"
	"time"

	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/errors"
	"github.com/saveio/paychan/network"
	"github.com/saveio/themis/common/log"
)

type AlarmTaskCallback func(blockHeight common.BlockHeight)

// AlarmTask polls the chain head and runs the callbacks for every new height.
type AlarmTask struct {
	callbacks       []AlarmTaskCallback
	chain           *network.BlockchainService
	lastBlockHeight common.BlockHeight
	interval        time.Duration
	stopEvent       chan struct{}
	stopOnce        sync.Once
	done            chan struct{}
	started         bool
}

func NewAlarmTask(chain *network.BlockchainService, interval time.Duration) *AlarmTask {
	return &AlarmTask{
		chain:     chain,
		interval:  interval,
		stopEvent: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (self *AlarmTask) Start() {
	self.started = true
	go self.LoopUntilStop()
}

// RegisterCallback must be called before Start.
func (self *AlarmTask) RegisterCallback(callback AlarmTaskCallback) {
	self.callbacks = append(self.callbacks, callback)
}

func (self *AlarmTask) LoopUntilStop() {
	defer close(self.done)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-self.stopEvent:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-self.stopEvent:
			return
		case <-time.After(self.interval):
			latestBlockHeight, err := self.GetLatestBlock(ctx)
			if err != nil {
				log.Errorf("[AlarmTask] poll block height: %s", err)
				continue
			}
			if latestBlockHeight > self.lastBlockHeight {
				if latestBlockHeight > self.lastBlockHeight+1 {
					log.Infof("[AlarmTask] missing block(s), latest block %d, last block %d",
						latestBlockHeight, self.lastBlockHeight)
				}
				self.runCallbacks(latestBlockHeight)
			}
		}
	}
}

func (self *AlarmTask) GetLatestBlock(ctx context.Context) (common.BlockHeight, error) {
	ctx, cancel := context.WithTimeout(ctx, self.interval+time.Second)
	defer cancel()
	height, err := self.chain.BlockHeight(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "get chain block height")
	}
	return height, nil
}

// FirstRun synchronously processes the current head before the loop starts.
func (self *AlarmTask) FirstRun(ctx context.Context) error {
	latestBlock, err := self.GetLatestBlock(ctx)
	if err != nil {
		return err
	}
	self.runCallbacks(latestBlock)
	return nil
}

func (self *AlarmTask) runCallbacks(latestBlockHeight common.BlockHeight) {
	log.Debugf("[AlarmTask] process block %d", latestBlockHeight)
	for _, f := range self.callbacks {
		f(latestBlockHeight)
	}
	self.lastBlockHeight = latestBlockHeight
}

func (self *AlarmTask) Stop() {
	self.stopOnce.Do(func() { close(self.stopEvent) })
	if self.started {
		<-self.done
	}
}
