package proxies

import (
	"context"
	"math/big"
	"testing"

	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/errors"
	"github.com/saveio/paychan/network/rpc/rpctest"
	"github.com/saveio/paychan/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	nodeAddress    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	partnerAddress = common.HexToAddress("0x2222222222222222222222222222222222222222")
	tokenNetworkId = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	tokenAddress   = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

const channelId = common.ChannelID(7)

func newTestTokenNetwork() (*TokenNetwork, *rpctest.FakeChain) {
	chain := rpctest.NewFakeChain()
	config := &ProxyConfig{NodeAddress: nodeAddress, Service: chain}
	chain.SetResult("getChannelInfo", rpctest.ChannelInfo(channelId, 0, ChannelStateOpened))
	chain.SetResult("balanceOf", map[string]interface{}{"balance": big.NewInt(10000)})
	chain.SetParticipant(nodeAddress, rpctest.Participant(100, 0, false, common.EmptyBalanceHash, 0, common.EmptyLocksroot, 0))
	chain.SetParticipant(partnerAddress, rpctest.Participant(50, 0, false, common.EmptyBalanceHash, 0, common.EmptyLocksroot, 0))
	return NewTokenNetwork(tokenNetworkId, NewToken(tokenAddress, config), config), chain
}

func settleParticipant(address common.Address, transferred int64, locked int64) *SettleParticipant {
	return &SettleParticipant{
		Address:           address,
		TransferredAmount: big.NewInt(transferred),
		LockedAmount:      big.NewInt(locked),
		Locksroot:         common.EmptyLocksroot,
	}
}

func TestOrderSettleParticipants(t *testing.T) {
	tests := []struct {
		name      string
		our       *SettleParticipant
		partner   *SettleParticipant
		wantFirst common.Address
	}{
		{"our smaller", settleParticipant(nodeAddress, 5, 0), settleParticipant(partnerAddress, 10, 0), nodeAddress},
		{"partner smaller", settleParticipant(nodeAddress, 10, 5), settleParticipant(partnerAddress, 3, 11), partnerAddress},
		{"locked counts", settleParticipant(nodeAddress, 10, 0), settleParticipant(partnerAddress, 5, 6), nodeAddress},
		{"tie uses address", settleParticipant(partnerAddress, 10, 0), settleParticipant(nodeAddress, 5, 5), nodeAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, second := OrderSettleParticipants(tt.our, tt.partner)
			assert.Equal(t, tt.wantFirst, first.Address)

			swappedFirst, swappedSecond := OrderSettleParticipants(tt.partner, tt.our)
			assert.Equal(t, first, swappedFirst)
			assert.Equal(t, second, swappedSecond)
		})
	}
}

func TestSetTotalDeposit(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		total   int64
		prepare func(chain *rpctest.FakeChain)
		wantErr *errors.Error
	}{
		{"deposit", 300, func(*rpctest.FakeChain) {}, nil},
		{"already deposited", 100, func(*rpctest.FakeChain) {}, errors.ErrStateConflict},
		{"insufficient balance", 20000, func(*rpctest.FakeChain) {}, errors.ErrInsufficientBalance},
		{"outdated channel", 300, func(chain *rpctest.FakeChain) {
			chain.SetResult("getChannelInfo", rpctest.ChannelInfo(channelId+1, 0, ChannelStateOpened))
		}, errors.ErrStateConflict},
		{"reverted on open channel", 300, func(chain *rpctest.FakeChain) {
			chain.RevertNext("setTotalDeposit", 1)
		}, errors.ErrTransactionFailed},
		{"reverted on closed channel", 300, func(chain *rpctest.FakeChain) {
			chain.RevertNext("setTotalDeposit", 1)
			chain.SetResult("getChannelInfo", rpctest.ChannelInfo(channelId, 0, ChannelStateClosed))
		}, errors.ErrStateConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokenNetwork, chain := newTestTokenNetwork()
			tt.prepare(chain)
			err := tokenNetwork.SetTotalDeposit(ctx, channelId, big.NewInt(tt.total), partnerAddress)
			if tt.wantErr != nil {
				assert.True(t, tt.wantErr.Is(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			calls := chain.Sent("setTotalDeposit")
			require.Len(t, calls, 1)
			assert.Equal(t, []interface{}{channelId, nodeAddress, big.NewInt(tt.total), partnerAddress}, calls[0].Args)
		})
	}
}

func TestDetailParticipantsRangeChecked(t *testing.T) {
	tokenNetwork, chain := newTestTokenNetwork()
	details, err := tokenNetwork.DetailParticipants(context.Background(), channelId, partnerAddress)
	require.NoError(t, err)
	assert.Equal(t, int64(100), details.OurDetails.Deposit.Int64())
	assert.Equal(t, int64(50), details.PartnerDetails.Deposit.Int64())

	bad := rpctest.Participant(0, 0, false, common.EmptyBalanceHash, 0, common.EmptyLocksroot, 0)
	bad["deposit"] = new(big.Int).Lsh(big.NewInt(1), 256)
	chain.SetParticipant(partnerAddress, bad)
	_, err = tokenNetwork.DetailParticipants(context.Background(), channelId, partnerAddress)
	assert.True(t, errors.ErrOutOfRange.Is(err))

	delete(bad, "nonce")
	bad["deposit"] = big.NewInt(1)
	chain.SetParticipant(partnerAddress, bad)
	_, err = tokenNetwork.DetailParticipants(context.Background(), channelId, partnerAddress)
	assert.True(t, errors.ErrInvalidResponse.Is(err))
}

func TestSettleOrdering(t *testing.T) {
	tokenNetwork, chain := newTestTokenNetwork()
	chain.SetResult("getChannelInfo", rpctest.ChannelInfo(channelId, 600, ChannelStateClosed))

	err := tokenNetwork.Settle(context.Background(), channelId,
		settleParticipant(nodeAddress, 10, 0), settleParticipant(partnerAddress, 0, 0))
	require.NoError(t, err)
	calls := chain.Sent("settleChannel")
	require.Len(t, calls, 1)
	assert.Equal(t, partnerAddress, calls[0].Args[1])
	assert.Equal(t, nodeAddress, calls[0].Args[5])
	assert.Equal(t, big.NewInt(10), calls[0].Args[6])
}

func TestSettleAlreadySettled(t *testing.T) {
	tokenNetwork, chain := newTestTokenNetwork()
	chain.SetResult("getChannelInfo", rpctest.ChannelInfo(channelId, 600, ChannelStateSettled))
	chain.RevertNext("settleChannel", 1)

	err := tokenNetwork.Settle(context.Background(), channelId,
		settleParticipant(nodeAddress, 10, 0), settleParticipant(partnerAddress, 0, 0))
	assert.True(t, errors.IsStateConflict(err))
}

func TestCloseAndUnlock(t *testing.T) {
	tokenNetwork, chain := newTestTokenNetwork()
	ctx := context.Background()

	require.NoError(t, tokenNetwork.Close(ctx, channelId, partnerAddress, nil))
	calls := chain.Sent("closeChannel")
	require.Len(t, calls, 1)
	assert.Equal(t, common.EmptyBalanceHash, calls[0].Args[2])

	require.NoError(t, tokenNetwork.Unlock(ctx, channelId, nodeAddress, partnerAddress, nil))
	assert.Empty(t, chain.Sent("unlock"))

	lock := &transfer.HashTimeLockState{Amount: big.NewInt(5), Expiration: 10, SecretHash: common.Hash{1}}
	require.NoError(t, tokenNetwork.Unlock(ctx, channelId, nodeAddress, partnerAddress, []*transfer.HashTimeLockState{lock}))
	require.Len(t, chain.Sent("unlock"), 1)
	assert.Equal(t, transfer.EncodeLocks([]*transfer.HashTimeLockState{lock}), chain.Sent("unlock")[0].Args[3])
}
