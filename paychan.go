package paychan

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	ch "github.com/saveio/paychan/channelservice"
	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/errors"
	"github.com/saveio/paychan/metrics"
	"github.com/saveio/paychan/network"
	"github.com/saveio/paychan/network/rpc"
	"github.com/saveio/paychan/network/transport"
	"github.com/saveio/paychan/storage"
	"github.com/saveio/themis/common/log"

	prom "github.com/prometheus/client_golang/prometheus"
)

var Version = "0.1"

type ChannelConfig struct {
	DBPath        string
	SettleTimeout string
	RevealTimeout string

	// Engine defaults to common.Config when nil.
	Engine *common.EngineConfig
	// Registry receives the engine metrics, nothing is registered when nil.
	Registry prom.Registerer
}

type Channel struct {
	Config  *ChannelConfig
	Service *ch.ChannelService

	storage *storage.SQLiteStorage
}

func DefaultChannelConfig() *ChannelConfig {
	config := &ChannelConfig{
		DBPath: ".",
		Engine: common.DefaultConfig(),
	}
	return config
}

// NewChannelService builds the engine of the node signing with signer on top
// of the given chain client and message transport.
func NewChannelService(config *ChannelConfig, signer common.Signer, txService rpc.TxService,
	trans transport.Transport) (*Channel, error) {
	if config == nil || signer == nil || txService == nil || trans == nil {
		log.Error("[NewChannelService] config, signer, tx service and transport are required")
		return nil, errors.ErrInvalidInput.New("channel dependencies not available")
	}
	engineConfig := config.Engine
	if engineConfig == nil {
		engineConfig = common.Config
	}
	settleTimeout, revealTimeout, err := getTimeout(config, engineConfig)
	if err != nil {
		return nil, err
	}
	engineConfig.SettleTimeout = settleTimeout
	engineConfig.RevealTimeout = revealTimeout

	m, err := metrics.New(config.Registry)
	if err != nil {
		log.Errorf("[NewChannelService] register metrics error: %s", err)
		return nil, err
	}

	if err = os.MkdirAll(config.DBPath, 0755); err != nil {
		return nil, err
	}
	dbFile := filepath.Join(config.DBPath, fmt.Sprintf("channel_%s.db", signer.Address().Hex()))
	db, err := storage.NewSQLiteStorage(dbFile)
	if err != nil {
		log.Errorf("[NewChannelService] open storage %s error: %s", dbFile, err)
		return nil, err
	}

	chain := network.NewBlockchainService(signer.Address(), txService, engineConfig.ConfirmationBlocks, m)
	service, err := ch.NewChannelService(chain, signer, trans, db, engineConfig, m)
	if err != nil {
		db.Close()
		return nil, err
	}
	log.Info("channel service created, use account ", signer.Address().Hex())

	channel := &Channel{Config: config, Service: service, storage: db}
	return channel, nil
}

func getTimeout(config *ChannelConfig, engine *common.EngineConfig) (settle common.BlockHeight,
	reveal common.BlockHeight, err error) {
	settleTimeout := uint64(engine.SettleTimeout)
	if config.SettleTimeout != "" {
		settleTimeout, err = strconv.ParseUint(config.SettleTimeout, 10, 64)
		if err != nil {
			log.Error("invalid settle timeout")
			return 0, 0, errors.ErrInvalidInput.Newf("settle timeout %q: %s", config.SettleTimeout, err)
		}
	}

	revealTimeout := uint64(engine.RevealTimeout)
	if config.RevealTimeout != "" {
		revealTimeout, err = strconv.ParseUint(config.RevealTimeout, 10, 64)
		if err != nil {
			log.Error("invalid reveal timeout")
			return 0, 0, errors.ErrInvalidInput.Newf("reveal timeout %q: %s", config.RevealTimeout, err)
		}
	}

	if settleTimeout < 2*revealTimeout {
		log.Errorf("settle timeout(%d) should be at least double of revealTimeout(%d)",
			settleTimeout, revealTimeout)
		return 0, 0, errors.ErrInvalidInput.New("settle timeout should be at least double of reveal timeout")
	}

	return common.BlockHeight(settleTimeout), common.BlockHeight(revealTimeout), nil
}

func (this *Channel) StartService() error {
	return this.Service.Start()
}

func (this *Channel) Stop() {
	this.Service.Stop()
	if err := this.storage.Close(); err != nil {
		log.Errorf("[Stop] close storage error: %s", err)
	}
}

func (this *Channel) GetVersion() string {
	return Version
}
