package transfer

import (
	"sort"

	"github.com/saveio/paychan/common"
)

func GetBlockHeight(chainState *ChainState) common.BlockHeight {
	return chainState.BlockHeight
}

func GetChannelByKey(chainState *ChainState, key common.ChannelKey) *NettingChannelState {
	if chainState == nil {
		return nil
	}
	return chainState.Channels[key]
}

// GetChannelHistory returns the live channel or the settled one with the given id.
func GetChannelHistory(chainState *ChainState, key common.HistoryKey) *NettingChannelState {
	if channelState, ok := chainState.Channels[key.ChannelKey]; ok && channelState.Identifier == key.ChannelId {
		return channelState
	}
	return chainState.OldChannels[key]
}

func GetTokenAddress(chainState *ChainState, tokenNetwork common.TokenNetworkID) (common.TokenAddress, bool) {
	token, ok := chainState.TokenNetworks[tokenNetwork]
	return token, ok
}

// ListChannelsByStatus returns channels in a stable order.
func ListChannelsByStatus(chainState *ChainState, status string) []*NettingChannelState {
	var result []*NettingChannelState
	for _, channelState := range chainState.Channels {
		if status == "" || GetStatus(channelState) == status {
			result = append(result, channelState)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Key().String() < result[j].Key().String()
	})
	return result
}

func GetNeighbours(chainState *ChainState) []common.Address {
	var neighbours []common.Address
	seen := make(map[common.Address]struct{})
	for _, channelState := range ListChannelsByStatus(chainState, ChannelStateOpened) {
		partner := channelState.PartnerState.Address
		if _, ok := seen[partner]; !ok {
			seen[partner] = struct{}{}
			neighbours = append(neighbours, partner)
		}
	}
	return neighbours
}
