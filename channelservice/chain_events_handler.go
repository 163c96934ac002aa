package channelservice

import (
	"math/big"

	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/errors"
	"github.com/saveio/paychan/transfer"
	"github.com/saveio/themis/common/log"
)

// Chain event names as delivered by the chain filter.
const (
	EventTokenNetworkCreated           = "TokenNetworkCreated"
	EventChannelOpened                 = "ChannelOpened"
	EventChannelNewDeposit             = "ChannelNewDeposit"
	EventChannelWithdraw               = "ChannelWithdraw"
	EventChannelClosed                 = "ChannelClosed"
	EventNonClosingBalanceProofUpdated = "NonClosingBalanceProofUpdated"
	EventChannelSettled                = "ChannelSettled"
	EventSecretRevealed                = "SecretRevealed"
)

// eventDecoder reads typed fields out of a raw chain event and keeps the
// first decoding error.
type eventDecoder struct {
	event map[string]interface{}
	err   error
}

func (self *eventDecoder) value(name string) interface{} {
	if self.err != nil {
		return nil
	}
	value, ok := self.event[name]
	if !ok {
		self.err = errors.ErrInvalidInput.Newf("chain event %v without %s", self.event["eventName"], name)
	}
	return value
}

func (self *eventDecoder) address(name string) common.Address {
	value := self.value(name)
	if self.err != nil {
		return common.EmptyAddress
	}
	address, err := common.DecodeAddress(value)
	if err != nil {
		self.err = errors.Wrapf(err, "decode %s", name)
	}
	return address
}

func (self *eventDecoder) hash(name string) common.Hash {
	value := self.value(name)
	if self.err != nil {
		return common.EmptyHash
	}
	hash, err := common.DecodeHash(value)
	if err != nil {
		self.err = errors.Wrapf(err, "decode %s", name)
	}
	return hash
}

func (self *eventDecoder) uint64(name string) uint64 {
	value := self.value(name)
	if self.err != nil {
		return 0
	}
	v, err := common.DecodeUInt64(value)
	if err != nil {
		self.err = errors.Wrapf(err, "decode %s", name)
	}
	return v
}

func (self *eventDecoder) amount(name string) *big.Int {
	value := self.value(name)
	if self.err != nil {
		return nil
	}
	v, err := common.DecodeUInt256(value)
	if err != nil {
		self.err = errors.Wrapf(err, "decode %s", name)
	}
	return v
}

func (self *eventDecoder) contractReceive() transfer.ContractReceive {
	receive := transfer.ContractReceive{BlockHeight: common.BlockHeight(self.uint64("blockHeight"))}
	if _, ok := self.event["transactionHash"]; ok {
		receive.TransactionHash = self.hash("transactionHash")
	}
	if value, ok := self.event["confirmed"]; ok && self.err == nil {
		confirmed, err := common.DecodeBool(value)
		if err != nil {
			self.err = errors.Wrap(err, "decode confirmed")
		}
		receive.Confirmed = confirmed
	}
	return receive
}

// DecodeChainEvent turns a raw chain event into a state change. Amounts and
// heights outside their on-chain ranges are rejected with ErrOutOfRange.
func DecodeChainEvent(event map[string]interface{}) (transfer.StateChange, error) {
	name, _ := event["eventName"].(string)
	d := &eventDecoder{event: event}

	var stateChange transfer.StateChange
	switch name {
	case EventTokenNetworkCreated:
		stateChange = &transfer.ContractReceiveNewTokenNetwork{
			ContractReceive: d.contractReceive(),
			TokenNetwork:    d.address("tokenNetwork"),
			TokenAddress:    d.address("tokenAddress"),
		}
	case EventChannelOpened:
		stateChange = &transfer.ContractReceiveChannelOpened{
			ContractReceive: d.contractReceive(),
			TokenNetwork:    d.address("tokenNetwork"),
			ChannelId:       common.ChannelID(d.uint64("channelID")),
			Participant1:    d.address("participant1"),
			Participant2:    d.address("participant2"),
			SettleTimeout:   common.BlockHeight(d.uint64("settleTimeout")),
		}
	case EventChannelNewDeposit:
		stateChange = &transfer.ContractReceiveChannelNewDeposit{
			ContractReceive: d.contractReceive(),
			TokenNetwork:    d.address("tokenNetwork"),
			ChannelId:       common.ChannelID(d.uint64("channelID")),
			Participant:     d.address("participant"),
			TotalDeposit:    d.amount("totalDeposit"),
		}
	case EventChannelWithdraw:
		stateChange = &transfer.ContractReceiveChannelWithdraw{
			ContractReceive: d.contractReceive(),
			TokenNetwork:    d.address("tokenNetwork"),
			ChannelId:       common.ChannelID(d.uint64("channelID")),
			Participant:     d.address("participant"),
			TotalWithdraw:   d.amount("totalWithdraw"),
		}
	case EventChannelClosed:
		stateChange = &transfer.ContractReceiveChannelClosed{
			ContractReceive: d.contractReceive(),
			TokenNetwork:    d.address("tokenNetwork"),
			ChannelId:       common.ChannelID(d.uint64("channelID")),
			Closer:          d.address("closingParticipant"),
		}
	case EventNonClosingBalanceProofUpdated:
		stateChange = &transfer.ContractReceiveUpdateTransfer{
			ContractReceive: d.contractReceive(),
			TokenNetwork:    d.address("tokenNetwork"),
			ChannelId:       common.ChannelID(d.uint64("channelID")),
			Participant:     d.address("closingParticipant"),
			Nonce:           common.Nonce(d.uint64("nonce")),
		}
	case EventChannelSettled:
		stateChange = &transfer.ContractReceiveChannelSettled{
			ContractReceive: d.contractReceive(),
			TokenNetwork:    d.address("tokenNetwork"),
			ChannelId:       common.ChannelID(d.uint64("channelID")),
		}
	case EventSecretRevealed:
		stateChange = &transfer.ContractReceiveSecretReveal{
			ContractReceive: d.contractReceive(),
			SecretHash:      d.hash("secretHash"),
		}
	default:
		return nil, errors.ErrInvalidInput.Newf("unknown chain event %q", name)
	}
	if d.err != nil {
		return nil, d.err
	}
	return stateChange, nil
}

// OnBlockchainEvent feeds a raw chain event into the state machine.
func (self *ChannelService) OnBlockchainEvent(event map[string]interface{}) error {
	stateChange, err := DecodeChainEvent(event)
	if err != nil {
		log.Warnf("[OnBlockchainEvent] drop event %v: %s", event["eventName"], err)
		return err
	}
	log.Debugf("[OnBlockchainEvent] %s at block %v", event["eventName"], event["blockHeight"])
	self.HandleStateChange(stateChange)
	return nil
}
