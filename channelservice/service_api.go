package channelservice

import (
	"math/big"

	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/errors"
	"github.com/saveio/paychan/transfer"
	"github.com/saveio/themis/common/log"
)

func (self *ChannelService) GetChannel(tokenNetwork common.TokenNetworkID,
	partner common.Address) *transfer.NettingChannelState {
	return transfer.GetChannelByKey(self.StateFromChannel(),
		common.ChannelKey{TokenNetwork: tokenNetwork, Partner: partner})
}

// GetChannelList returns the live channels of tokenNetwork, or of every
// token network when it is empty.
func (self *ChannelService) GetChannelList(tokenNetwork common.TokenNetworkID) []*transfer.NettingChannelState {
	var result []*transfer.NettingChannelState
	for _, channelState := range transfer.ListChannelsByStatus(self.StateFromChannel(), "") {
		if tokenNetwork == common.EmptyAddress || channelState.TokenNetwork == tokenNetwork {
			result = append(result, channelState)
		}
	}
	return result
}

func (self *ChannelService) GetTokenNetworks() map[common.TokenNetworkID]common.TokenAddress {
	chainState := self.StateFromChannel()
	result := make(map[common.TokenNetworkID]common.TokenAddress, len(chainState.TokenNetworks))
	for tokenNetwork, token := range chainState.TokenNetworks {
		result[tokenNetwork] = token
	}
	return result
}

func (self *ChannelService) GetBalances(tokenNetwork common.TokenNetworkID,
	partner common.Address) (*transfer.Balances, error) {
	channelState, err := self.getChannel(tokenNetwork, partner)
	if err != nil {
		return nil, err
	}
	return transfer.ComputeBalances(channelState), nil
}

func (self *ChannelService) getChannel(tokenNetwork common.TokenNetworkID,
	partner common.Address) (*transfer.NettingChannelState, error) {
	channelState := self.GetChannel(tokenNetwork, partner)
	if channelState == nil {
		return nil, errors.ErrChannelNotFound.Newf("no channel with %s on %s", partner.Hex(), tokenNetwork.Hex())
	}
	return channelState, nil
}

// TransferDirect pays amount to partner with a new balance proof.
func (self *ChannelService) TransferDirect(tokenNetwork common.TokenNetworkID, partner common.Address,
	amount *big.Int) error {
	if err := common.CheckUInt256(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return errors.ErrInvalidInput.New("transfer amount is zero")
	}
	if _, err := self.getChannel(tokenNetwork, partner); err != nil {
		return err
	}
	key := common.ChannelKey{TokenNetwork: tokenNetwork, Partner: partner}
	if err := invalidReason(self.HandleStateChange(&transfer.ActionTransferDirect{Key: key, Amount: amount})); err != nil {
		log.Errorf("[TransferDirect] %s to %s: %s", amount, partner.Hex(), err)
		return err
	}
	return nil
}

// SendLockedTransfer locks lock.Amount of our balance in favour of partner.
func (self *ChannelService) SendLockedTransfer(tokenNetwork common.TokenNetworkID, partner common.Address,
	lock *transfer.HashTimeLockState) error {
	if lock == nil {
		return errors.ErrInvalidInput.New("no lock")
	}
	if err := common.CheckUInt256(lock.Amount); err != nil {
		return err
	}
	if _, err := self.getChannel(tokenNetwork, partner); err != nil {
		return err
	}
	key := common.ChannelKey{TokenNetwork: tokenNetwork, Partner: partner}
	if err := invalidReason(self.HandleStateChange(&transfer.ActionSendLockedTransfer{Key: key, Lock: lock.Copy()})); err != nil {
		log.Errorf("[SendLockedTransfer] %s to %s: %s", lock.Amount, partner.Hex(), err)
		return err
	}
	return nil
}

// Unlock releases our lock with secretHash to partner.
func (self *ChannelService) Unlock(tokenNetwork common.TokenNetworkID, partner common.Address,
	secretHash common.SecretHash) error {
	if _, err := self.getChannel(tokenNetwork, partner); err != nil {
		return err
	}
	key := common.ChannelKey{TokenNetwork: tokenNetwork, Partner: partner}
	if err := invalidReason(self.HandleStateChange(&transfer.ActionUnlock{Key: key, SecretHash: secretHash})); err != nil {
		log.Errorf("[Unlock] %s with %s: %s", secretHash.Hex(), partner.Hex(), err)
		return err
	}
	return nil
}

// WithdrawRequest asks partner to sign our withdraw of totalWithdraw,
// valid until expiration.
func (self *ChannelService) WithdrawRequest(tokenNetwork common.TokenNetworkID, partner common.Address,
	totalWithdraw *big.Int, expiration common.BlockHeight) error {
	if err := common.CheckUInt256(totalWithdraw); err != nil {
		return err
	}
	if _, err := self.getChannel(tokenNetwork, partner); err != nil {
		return err
	}
	key := common.ChannelKey{TokenNetwork: tokenNetwork, Partner: partner}
	action := &transfer.ActionWithdrawRequest{Key: key, TotalWithdraw: common.BigCopy(totalWithdraw), Expiration: expiration}
	if err := invalidReason(self.HandleStateChange(action)); err != nil {
		log.Errorf("[WithdrawRequest] %s from channel with %s: %s", totalWithdraw, partner.Hex(), err)
		return err
	}
	return nil
}
