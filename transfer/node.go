package transfer

import (
	"sort"

	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/errors"
	"github.com/saveio/themis/common/log"
)

func isConfirmed(chainState *ChainState, stateChange ContractReceiveStateChange) bool {
	return stateChange.IsConfirmed() ||
		stateChange.TxBlockHeight()+chainState.ConfirmationBlocks <= chainState.BlockHeight
}

func handleBlockForNode(chainState *ChainState, block *Block) []Event {
	if block.BlockHeight > chainState.BlockHeight {
		chainState.BlockHeight = block.BlockHeight
	}

	var events []Event
	var confirmed, pending []ContractReceiveStateChange
	for _, sc := range chainState.PendingChanges {
		if isConfirmed(chainState, sc) {
			confirmed = append(confirmed, sc)
		} else {
			pending = append(pending, sc)
		}
	}
	chainState.PendingChanges = pending
	sort.SliceStable(confirmed, func(i, j int) bool {
		return confirmed[i].TxBlockHeight() < confirmed[j].TxBlockHeight()
	})
	for _, sc := range confirmed {
		events = append(events, handleContractReceive(chainState, sc)...)
	}

	for key, channelState := range chainState.Channels {
		iteration := StateTransitionForChannel(channelState.Copy(), block, chainState.BlockHeight)
		if len(iteration.Events) > 0 {
			chainState.Channels[key] = iteration.NewState.(*NettingChannelState)
			events = append(events, iteration.Events...)
		}
	}
	return events
}

func handleNewTokenNetwork(chainState *ChainState, stateChange *ContractReceiveNewTokenNetwork) []Event {
	if _, ok := chainState.TokenNetworks[stateChange.TokenNetwork]; ok {
		return nil
	}
	chainState.TokenNetworks[stateChange.TokenNetwork] = stateChange.TokenAddress
	return []Event{&EventTokenNetworkCreated{TokenNetwork: stateChange.TokenNetwork, TokenAddress: stateChange.TokenAddress}}
}

func handleChannelOpened(chainState *ChainState, stateChange *ContractReceiveChannelOpened) []Event {
	var partner common.Address
	switch chainState.Our {
	case stateChange.Participant1:
		partner = stateChange.Participant2
	case stateChange.Participant2:
		partner = stateChange.Participant1
	default:
		return nil
	}

	key := common.ChannelKey{TokenNetwork: stateChange.TokenNetwork, Partner: partner}
	if existing, ok := chainState.Channels[key]; ok {
		log.Warnf("[handleChannelOpened] channel %d with %s still live, ignore channel %d",
			existing.Identifier, partner.Hex(), stateChange.ChannelId)
		return nil
	}

	channelState := &NettingChannelState{
		Identifier:         stateChange.ChannelId,
		TokenAddress:       chainState.TokenNetworks[stateChange.TokenNetwork],
		TokenNetwork:       stateChange.TokenNetwork,
		ChainId:            chainState.ChainId,
		SettleTimeout:      stateChange.SettleTimeout,
		RevealTimeout:      chainState.RevealTimeout,
		IsFirstParticipant: stateChange.Participant1 == chainState.Our,
		OpenBlock:          stateChange.BlockHeight,
		OurState:           NewNettingChannelEndState(chainState.Our),
		PartnerState:       NewNettingChannelEndState(partner),
		Status:             StatusOpen{},
	}
	chainState.Channels[key] = channelState
	log.Infof("[handleChannelOpened] channel %d with %s opened at block %d",
		channelState.Identifier, partner.Hex(), stateChange.BlockHeight)
	return []Event{&EventChannelOpened{Channel: channelState}, &EventChannelCapacityChanged{Channel: channelState}}
}

func getChannelByIdentifier(chainState *ChainState, tokenNetwork common.TokenNetworkID,
	channelId common.ChannelID) *NettingChannelState {
	for key, channelState := range chainState.Channels {
		if key.TokenNetwork == tokenNetwork && channelState.Identifier == channelId {
			return channelState
		}
	}
	return nil
}

func subdispatchToChannel(chainState *ChainState, channelState *NettingChannelState, stateChange StateChange) []Event {
	key := channelState.Key()
	iteration := StateTransitionForChannel(channelState.Copy(), stateChange, chainState.BlockHeight)
	newState := iteration.NewState.(*NettingChannelState)

	if GetStatus(newState) == ChannelStateSettled {
		delete(chainState.Channels, key)
		chainState.OldChannels[newState.HistoryKey()] = newState
	} else {
		chainState.Channels[key] = newState
	}
	return iteration.Events
}

func handleContractReceive(chainState *ChainState, stateChange ContractReceiveStateChange) []Event {
	var tokenNetwork common.TokenNetworkID
	var channelId common.ChannelID

	switch sc := stateChange.(type) {
	case *ContractReceiveNewTokenNetwork:
		return handleNewTokenNetwork(chainState, sc)
	case *ContractReceiveChannelOpened:
		return handleChannelOpened(chainState, sc)
	case *ContractReceiveSecretReveal:
		var events []Event
		for _, channelState := range chainState.Channels {
			events = append(events, subdispatchToChannel(chainState, channelState, sc)...)
		}
		return events
	case *ContractReceiveChannelNewDeposit:
		tokenNetwork, channelId = sc.TokenNetwork, sc.ChannelId
	case *ContractReceiveChannelWithdraw:
		tokenNetwork, channelId = sc.TokenNetwork, sc.ChannelId
	case *ContractReceiveChannelClosed:
		tokenNetwork, channelId = sc.TokenNetwork, sc.ChannelId
	case *ContractReceiveUpdateTransfer:
		tokenNetwork, channelId = sc.TokenNetwork, sc.ChannelId
	case *ContractReceiveChannelSettled:
		tokenNetwork, channelId = sc.TokenNetwork, sc.ChannelId
	default:
		log.Warnf("[handleContractReceive] unknown state change %T", stateChange)
		return nil
	}

	channelState := getChannelByIdentifier(chainState, tokenNetwork, channelId)
	if channelState == nil {
		log.Debugf("[handleContractReceive] %T for unknown channel %d", stateChange, channelId)
		return nil
	}
	return subdispatchToChannel(chainState, channelState, stateChange)
}

func channelKeyOf(stateChange StateChange) (common.ChannelKey, bool) {
	switch sc := stateChange.(type) {
	case *ActionChannelClose:
		return sc.Key, true
	case *ActionChannelCloseFailed:
		return sc.Key, true
	case *ActionChannelSettle:
		return sc.Key, true
	case *ActionChannelSettleFailed:
		return sc.Key, true
	case *ActionTransferDirect:
		return sc.Key, true
	case *ActionSendLockedTransfer:
		return sc.Key, true
	case *ActionUnlock:
		return sc.Key, true
	case *ActionWithdrawRequest:
		return sc.Key, true
	case *ReceiveBalanceProof:
		return sc.Key, true
	case *ReceiveWithdraw:
		return sc.Key, true
	}
	return common.ChannelKey{}, false
}

// StateTransition is the pure transition of the whole node. chainState is
// never modified.
func StateTransition(chainState *ChainState, stateChange StateChange) TransitionResult {
	next := chainState.Copy()
	var events []Event

	switch sc := stateChange.(type) {
	case *Block:
		events = handleBlockForNode(next, sc)
	case ContractReceiveStateChange:
		if !isConfirmed(next, sc) {
			next.PendingChanges = append(next.PendingChanges, sc)
			log.Debugf("[StateTransition] %T at block %d waits for confirmation", sc, sc.TxBlockHeight())
			break
		}
		events = handleContractReceive(next, sc)
	default:
		key, ok := channelKeyOf(stateChange)
		if !ok {
			log.Warnf("[StateTransition] unknown state change %T", stateChange)
			break
		}
		channelState, exists := next.Channels[key]
		if !exists {
			events = append(events, &EventInvalidStateChange{Key: key,
				Reason: errors.ErrChannelNotFound.Newf("no channel %s", key)})
			break
		}
		events = subdispatchToChannel(next, channelState, stateChange)
	}

	return TransitionResult{next, events}
}
