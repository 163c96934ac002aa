package network

import (
	"context"
	"sync"

	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/metrics"
	"github.com/saveio/paychan/network/proxies"
	"github.com/saveio/paychan/network/rpc"
	"github.com/saveio/paychan/transfer"
)

// BlockchainService creates and caches the contract proxies of one node.
type BlockchainService struct {
	Address common.Address
	config  *proxies.ProxyConfig

	mutex                      sync.Mutex
	tokens                     map[common.TokenAddress]*proxies.Token
	tokenNetworks              map[common.TokenNetworkID]*proxies.TokenNetwork
	userDeposit                *proxies.UserDeposit
	identifierToPaymentChannel map[common.HistoryKey]*proxies.PaymentChannel
}

func NewBlockchainService(address common.Address, service rpc.TxService, confirmations common.BlockHeight,
	m *metrics.Metrics) *BlockchainService {
	return &BlockchainService{
		Address: address,
		config: &proxies.ProxyConfig{
			NodeAddress:   address,
			Service:       service,
			Confirmations: confirmations,
			Metrics:       m,
		},
		tokens:                     make(map[common.TokenAddress]*proxies.Token),
		tokenNetworks:              make(map[common.TokenNetworkID]*proxies.TokenNetwork),
		identifierToPaymentChannel: make(map[common.HistoryKey]*proxies.PaymentChannel),
	}
}

func (this *BlockchainService) BlockHeight(ctx context.Context) (common.BlockHeight, error) {
	return this.config.Service.BlockHeight(ctx)
}

func (this *BlockchainService) Token(address common.TokenAddress) *proxies.Token {
	this.mutex.Lock()
	defer this.mutex.Unlock()
	return this.token(address)
}

func (this *BlockchainService) token(address common.TokenAddress) *proxies.Token {
	token, exist := this.tokens[address]
	if !exist {
		token = proxies.NewToken(address, this.config)
		this.tokens[address] = token
	}
	return token
}

func (this *BlockchainService) NewTokenNetwork(token common.TokenAddress, address common.TokenNetworkID) *proxies.TokenNetwork {
	this.mutex.Lock()
	defer this.mutex.Unlock()

	tokenNetwork, exist := this.tokenNetworks[address]
	if !exist {
		tokenNetwork = proxies.NewTokenNetwork(address, this.token(token), this.config)
		this.tokenNetworks[address] = tokenNetwork
	}
	return tokenNetwork
}

func (this *BlockchainService) UserDeposit(address common.Address) *proxies.UserDeposit {
	this.mutex.Lock()
	defer this.mutex.Unlock()

	if this.userDeposit == nil || this.userDeposit.Address() != address {
		this.userDeposit = proxies.NewUserDeposit(address, this.config)
	}
	return this.userDeposit
}

func (this *BlockchainService) PaymentChannel(channelState *transfer.NettingChannelState) *proxies.PaymentChannel {
	tokenNetwork := this.NewTokenNetwork(channelState.TokenAddress, channelState.TokenNetwork)

	this.mutex.Lock()
	defer this.mutex.Unlock()

	key := channelState.HistoryKey()
	if channel, exist := this.identifierToPaymentChannel[key]; exist {
		return channel
	}
	channel := proxies.NewPaymentChannel(tokenNetwork, channelState)
	this.identifierToPaymentChannel[key] = channel
	return channel
}
