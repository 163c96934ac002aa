package channelservice

import (
	"context"
	"math/big"

	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/errors"
	"github.com/saveio/paychan/transfer"
)

// waitUntil re-evaluates cond on every published event and block until it
// holds. The state is stored before its events are published, so no change
// is missed between the check and the wait.
func (self *ChannelService) waitUntil(ctx context.Context, cond func(*transfer.ChainState) bool) (*transfer.ChainState, error) {
	sub, err := self.subscribe(TopicEvent, TopicBlock)
	if err != nil {
		return nil, err
	}
	defer self.unsubscribe(sub)

	for {
		chainState := self.StateFromChannel()
		if cond(chainState) {
			return chainState, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-self.ctx.Done():
			return nil, errors.ErrStopped.New("channel service")
		case _, ok := <-sub:
			if !ok {
				return nil, errors.ErrStopped.New("channel service")
			}
		}
	}
}

// awaitOperation waits for the outcome of the job id of op. A job which
// was abandoned because the outcome already happened elsewhere counts as a
// success, a job which submitted its transaction waits for the result that
// succeeded accepts.
func (self *ChannelService) awaitOperation(ctx context.Context, sub chan interface{}, done <-chan error,
	op transfer.Operation, id string, succeeded func(*transfer.OperationResult) bool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-self.ctx.Done():
			return errors.ErrStopped.New("channel service")
		case err := <-done:
			if err != nil {
				if errors.IsStateConflict(err) {
					return nil
				}
				return err
			}
			done = nil
		case msg, ok := <-sub:
			if !ok {
				return errors.ErrStopped.New("channel service")
			}
			result, isResult := msg.(*transfer.OperationResult)
			if !isResult {
				continue
			}
			if result.Kind == transfer.Failed && result.Op == op && result.Id == id {
				return result.Err
			}
			if result.Kind == transfer.Succeeded && succeeded(result) {
				return nil
			}
		}
	}
}

func WaitForBlock(ctx context.Context, channel *ChannelService, blockHeight common.BlockHeight) error {
	_, err := channel.waitUntil(ctx, func(chainState *transfer.ChainState) bool {
		return transfer.GetBlockHeight(chainState) >= blockHeight
	})
	return err
}

func WaitForNewChannel(ctx context.Context, channel *ChannelService,
	key common.ChannelKey) (*transfer.NettingChannelState, error) {
	chainState, err := channel.waitUntil(ctx, func(chainState *transfer.ChainState) bool {
		return transfer.GetChannelByKey(chainState, key) != nil
	})
	if err != nil {
		return nil, err
	}
	return transfer.GetChannelByKey(chainState, key), nil
}

// WaitForChannelStatus waits until the live channel with key has status.
func WaitForChannelStatus(ctx context.Context, channel *ChannelService, key common.ChannelKey,
	status string) (*transfer.NettingChannelState, error) {
	chainState, err := channel.waitUntil(ctx, func(chainState *transfer.ChainState) bool {
		channelState := transfer.GetChannelByKey(chainState, key)
		return channelState != nil && transfer.GetStatus(channelState) == status
	})
	if err != nil {
		return nil, err
	}
	return transfer.GetChannelByKey(chainState, key), nil
}

// WaitForParticipantNewBalance waits until participant's deposit in the
// channel reached targetBalance.
func WaitForParticipantNewBalance(ctx context.Context, channel *ChannelService, key common.ChannelKey,
	participant common.Address, targetBalance *big.Int) error {
	if participant != channel.address && participant != key.Partner {
		return errors.ErrInvalidInput.Newf("%s is not a participant of %s", participant.Hex(), key)
	}
	_, err := channel.waitUntil(ctx, func(chainState *transfer.ChainState) bool {
		channelState := transfer.GetChannelByKey(chainState, key)
		if channelState == nil {
			return false
		}
		end := channelState.OurState
		if participant != channel.address {
			end = channelState.PartnerState
		}
		return common.BigCopy(end.Deposit).Cmp(targetBalance) >= 0
	})
	return err
}

// WaitForSettle waits until the channel generation is settled.
func WaitForSettle(ctx context.Context, channel *ChannelService, key common.HistoryKey) error {
	_, err := channel.waitUntil(ctx, func(chainState *transfer.ChainState) bool {
		channelState := transfer.GetChannelHistory(chainState, key)
		return channelState != nil && transfer.GetStatus(channelState) == transfer.ChannelStateSettled
	})
	return err
}
