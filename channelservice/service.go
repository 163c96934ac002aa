package channelservice

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cskr/pubsub"
	"github.com/gogo/protobuf/proto"
	"github.com/google/uuid"
	"github.com/saveio/paychan/actor/server"
	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/errors"
	"github.com/saveio/paychan/metrics"
	"github.com/saveio/paychan/network"
	"github.com/saveio/paychan/network/pfs"
	"github.com/saveio/paychan/network/transport"
	"github.com/saveio/paychan/network/transport/messages"
	"github.com/saveio/paychan/storage"
	"github.com/saveio/paychan/transfer"
	"github.com/saveio/paychan/utils"
	"github.com/saveio/themis/common/log"
)

// Bus topics. TopicBlock carries *transfer.ChainState snapshots after every
// block, TopicEvent the state machine events and TopicResult the
// *transfer.OperationResult of every workflow.
const (
	TopicBlock  = "block"
	TopicEvent  = "event"
	TopicResult = "result"
)

type ChannelService struct {
	chain     *network.BlockchainService
	signer    common.Signer
	address   common.Address
	transport transport.Transport
	storage   *storage.SQLiteStorage
	pfsClient *pfs.Client
	metrics   *metrics.Metrics
	config    *common.EngineConfig

	feeLock  sync.RWMutex
	feeModel *transfer.MediationFeeModel

	dispatchEventsLock sync.Mutex
	publishLock        sync.Mutex
	stateManager       *transfer.StateManager
	currentState       atomic.Value

	busLock   sync.RWMutex
	busClosed bool
	bus       *pubsub.PubSub

	channelEventHandler *ChannelEventHandler
	alarm               *AlarmTask
	channelOps          *server.KeyedSerializer
	notifyOps           *server.KeyedSerializer
	monitorOps          *server.KeyedSerializer
	pathFinder          *PathFinder
	monitor             *Monitor
	autoSettle          *AutoSettle

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewChannelService(chain *network.BlockchainService, signer common.Signer, transport transport.Transport,
	storage *storage.SQLiteStorage, config *common.EngineConfig, m *metrics.Metrics) (*ChannelService, error) {
	if chain == nil || signer == nil || transport == nil || storage == nil {
		log.Error("[NewChannelService] chain, signer, transport and storage are required")
		return nil, errors.ErrInvalidInput.New("channel service dependencies not available")
	}
	if config == nil {
		config = common.Config
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if chain.Address != signer.Address() {
		return nil, errors.ErrInvalidInput.Newf("signer %s does not match node %s",
			signer.Address().Hex(), chain.Address.Hex())
	}

	self := &ChannelService{
		chain:     chain,
		signer:    signer,
		address:   signer.Address(),
		transport: transport,
		storage:   storage,
		metrics:   m,
		config:    config,
		feeModel:  transfer.NewMediationFeeModel(config.MediationFeeConfig),
		bus:       pubsub.New(config.MaxMsgQueue),

		channelEventHandler: new(ChannelEventHandler),
		channelOps:          server.NewKeyedSerializer("channel"),
		notifyOps:           server.NewKeyedSerializer("notify"),
		monitorOps:          server.NewKeyedSerializer("monitor"),
	}
	policy := utils.NewRetryPolicy(config.PollingInterval, config.HttpTimeout, config.HttpRetries)
	self.pfsClient = pfs.NewClient(config.HttpTimeout, policy, m)
	self.stateManager = transfer.NewStateManager(transfer.StateTransition,
		transfer.NewChainState(self.address, config.ChainId, 0, config.ConfirmationBlocks, config.RevealTimeout))
	self.currentState.Store(self.stateManager.CurrentState)
	self.ctx, self.cancel = context.WithCancel(context.Background())

	self.alarm = NewAlarmTask(chain, config.PollingInterval)
	self.pathFinder = NewPathFinder(self)
	self.monitor = NewMonitor(self)
	self.autoSettle = NewAutoSettle(self)
	return self, nil
}

// Start syncs the state to the current block and starts the block poller,
// the settle controller and the monitoring controller.
func (self *ChannelService) Start() error {
	self.alarm.RegisterCallback(func(blockHeight common.BlockHeight) {
		self.HandleStateChange(&transfer.Block{BlockHeight: blockHeight})
	})
	if self.config.AutoSettle {
		if err := self.autoSettle.Start(); err != nil {
			return err
		}
	}
	if self.config.Monitoring.Enabled {
		if err := self.monitor.Start(); err != nil {
			return err
		}
	}
	if err := self.alarm.FirstRun(self.ctx); err != nil {
		log.Errorf("[Start] first block poll failed: %s", err)
		return err
	}
	self.alarm.Start()
	log.Infof("[Start] channel service of %s started at block %d", self.address.Hex(),
		transfer.GetBlockHeight(self.StateFromChannel()))
	return nil
}

func (self *ChannelService) Stop() {
	self.cancel()
	self.alarm.Stop()
	self.channelOps.Stop()
	self.notifyOps.Stop()
	self.monitorOps.Stop()
	self.wg.Wait()

	self.busLock.Lock()
	closed := self.busClosed
	self.busClosed = true
	self.busLock.Unlock()
	if !closed {
		self.bus.Shutdown()
	}
	log.Infof("[Stop] channel service of %s stopped", self.address.Hex())
}

func (self *ChannelService) Address() common.Address {
	return self.address
}

// StateFromChannel returns the latest chain state. It must not be modified.
func (self *ChannelService) StateFromChannel() *transfer.ChainState {
	return self.currentState.Load().(*transfer.ChainState)
}

// HandleStateChange applies stateChange and hands the events to the event
// handler and the bus in dispatch order.
func (self *ChannelService) HandleStateChange(stateChange transfer.StateChange) []transfer.Event {
	self.dispatchEventsLock.Lock()
	events := self.stateManager.Dispatch(stateChange)
	chainState := self.stateManager.CurrentState
	self.currentState.Store(chainState)
	self.publishLock.Lock()
	self.dispatchEventsLock.Unlock()
	defer self.publishLock.Unlock()

	for _, event := range events {
		self.channelEventHandler.OnChannelEvent(self, event)
		self.publish(event, TopicEvent)
	}
	if _, ok := stateChange.(*transfer.Block); ok {
		self.publish(chainState, TopicBlock)
	}
	return events
}

func (self *ChannelService) publish(msg interface{}, topic string) {
	self.busLock.RLock()
	defer self.busLock.RUnlock()
	if self.busClosed {
		return
	}
	self.bus.Pub(msg, topic)
}

func (self *ChannelService) publishResult(result *transfer.OperationResult) {
	log.Debugf("[publishResult] %s", result)
	self.publish(result, TopicResult)
}

func (self *ChannelService) subscribe(topics ...string) (chan interface{}, error) {
	self.busLock.RLock()
	defer self.busLock.RUnlock()
	if self.busClosed || self.ctx.Err() != nil {
		return nil, errors.ErrStopped.New("channel service")
	}
	return self.bus.Sub(topics...), nil
}

// unsubscribe drains ch so a pending publish never blocks on it.
func (self *ChannelService) unsubscribe(ch chan interface{}) {
	go func() {
		self.busLock.RLock()
		defer self.busLock.RUnlock()
		if !self.busClosed {
			self.bus.Unsub(ch)
		}
	}()
	for range ch {
	}
}

// submitChannelOp runs job behind the other operations on key. State
// conflicts abandon the operation silently, other failures are published.
// The returned channel yields the job's own error, conflicts included.
func (self *ChannelService) submitChannelOp(op transfer.Operation, key string,
	job func(id string) error) (string, <-chan error, error) {
	id := uuid.New().String()
	self.publishResult(transfer.NewRequested(op, key, id))
	done, err := self.channelOps.Submit(key, string(op), func() error {
		err := job(id)
		switch {
		case err == nil:
		case errors.IsStateConflict(err):
			log.Infof("[%s] %s abandoned: %s", op, key, err)
		default:
			log.Errorf("[%s] %s failed: %s", op, key, err)
			self.publishResult(transfer.NewFailed(op, key, id, err))
		}
		return err
	})
	if err != nil {
		return "", nil, err
	}
	return id, done, nil
}

func (self *ChannelService) txPolicy() utils.RetryPolicy {
	return utils.NewRetryPolicy(self.config.PollingInterval, self.config.HttpTimeout, self.config.TxRetries)
}

func (self *ChannelService) unboundedPolicy() utils.RetryPolicy {
	return utils.NewRetryPolicy(self.config.PollingInterval, self.config.HttpTimeout, 0)
}

func (self *ChannelService) getFeeModel() *transfer.MediationFeeModel {
	self.feeLock.RLock()
	defer self.feeLock.RUnlock()
	return self.feeModel
}

func invalidReason(events []transfer.Event) error {
	for _, event := range events {
		if invalid, ok := event.(*transfer.EventInvalidStateChange); ok {
			return invalid.Reason
		}
	}
	return nil
}

// OnMessage handles a message received from a partner through the transport.
func (self *ChannelService) OnMessage(from common.Address, message proto.Message) error {
	switch msg := message.(type) {
	case *messages.Transfer:
		return self.handleTransfer(from, msg)
	case *messages.WithdrawRequest:
		return self.handleWithdrawRequest(from, msg)
	default:
		log.Warnf("[OnMessage] unsupported message %T from %s", message, from.Hex())
		return errors.ErrInvalidInput.Newf("unsupported message %T", message)
	}
}

func (self *ChannelService) handleTransfer(from common.Address, msg *messages.Transfer) error {
	bp, err := msg.BalanceProof()
	if err != nil {
		return err
	}
	if bp.Sender != from {
		return errors.ErrInvalidSignature.Newf("transfer from %s signed by %s", from.Hex(), bp.Sender.Hex())
	}
	lock, err := msg.HashTimeLock()
	if err != nil {
		return err
	}
	secretHash, err := msg.UnlockedSecretHash()
	if err != nil {
		return err
	}
	key := common.ChannelKey{TokenNetwork: bp.TokenNetwork, Partner: from}
	return invalidReason(self.HandleStateChange(&transfer.ReceiveBalanceProof{
		Key:          key,
		BalanceProof: bp,
		Lock:         lock,
		SecretHash:   secretHash,
	}))
}

func (self *ChannelService) handleWithdrawRequest(from common.Address, msg *messages.WithdrawRequest) error {
	withdraw, err := msg.PendingWithdraw()
	if err != nil {
		return err
	}
	if withdraw.Participant != from {
		return errors.ErrInvalidSignature.Newf("withdraw of %s sent by %s", withdraw.Participant.Hex(), from.Hex())
	}
	key := common.ChannelKey{
		TokenNetwork: common.BytesToAddress(msg.CanonicalIdentifier.GetTokenNetworkAddress()),
		Partner:      from,
	}
	channelState := transfer.GetChannelByKey(self.StateFromChannel(), key)
	if channelState == nil || uint64(channelState.Identifier) != msg.CanonicalIdentifier.GetChannelIdentifier() {
		return errors.ErrChannelNotFound.Newf("channel %d with %s", msg.CanonicalIdentifier.GetChannelIdentifier(),
			from.Hex())
	}
	return invalidReason(self.HandleStateChange(&transfer.ReceiveWithdraw{Key: key, Withdraw: withdraw}))
}

// sendMessage queues msg for partner behind the earlier messages of the
// channel so the partner receives them in nonce order.
func (self *ChannelService) sendMessage(key common.ChannelKey, msg proto.Message) {
	_, err := self.notifyOps.Submit(key.String(), "send", func() error {
		policy := utils.NewRetryPolicy(self.config.PollingInterval, self.config.HttpTimeout, self.config.HttpRetries)
		err := utils.Retry(self.ctx, policy, "send to "+key.Partner.Hex(), func() error {
			return self.transport.Send(self.ctx, key.Partner, msg)
		})
		if err != nil {
			log.Errorf("[sendMessage] %T to %s: %s", msg, key.Partner.Hex(), err)
		}
		return err
	})
	if err != nil {
		log.Warnf("[sendMessage] %T to %s not queued: %s", msg, key.Partner.Hex(), err)
	}
}
