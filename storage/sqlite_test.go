package storage

import (
	"math/big"
	"path/filepath"
	"testing"

	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/errors"
	"github.com/saveio/paychan/network/pfs"
	"github.com/saveio/paychan/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tokenNetwork = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	receiver     = common.HexToAddress("0x5555555555555555555555555555555555555555")
	partner      = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "channel.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStorageVersion(t *testing.T) {
	assert.Equal(t, ChannelDbVersion, newTestStorage(t).GetVersion())
}

func TestIOUStore(t *testing.T) {
	s := newTestStorage(t)
	signer, err := common.GenerateKeySigner()
	require.NoError(t, err)

	iou, err := s.GetIOU(tokenNetwork, receiver)
	require.NoError(t, err)
	assert.Nil(t, iou)

	first, err := pfs.NextIOU(signer, nil, receiver, big.NewInt(10), common.EmptyAddress, 337, 100)
	require.NoError(t, err)
	require.NoError(t, s.PutIOU(tokenNetwork, first))
	second, err := pfs.NextIOU(signer, first, receiver, big.NewInt(10), common.EmptyAddress, 337, 100)
	require.NoError(t, err)
	require.NoError(t, s.PutIOU(tokenNetwork, second))

	err = s.PutIOU(tokenNetwork, first)
	assert.True(t, errors.ErrIOUDecrease.Is(err))

	stored, err := s.GetIOU(tokenNetwork, receiver)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, int64(20), stored.Amount.Int64())
	assert.NoError(t, stored.Verify())

	require.NoError(t, s.ClearIOU(tokenNetwork, receiver))
	stored, err = s.GetIOU(tokenNetwork, receiver)
	require.NoError(t, err)
	assert.Nil(t, stored)

	require.NoError(t, s.PutIOU(tokenNetwork, first))
}

func TestBalanceProofHistory(t *testing.T) {
	s := newTestStorage(t)
	proof := func(nonce common.Nonce, transferred int64) *transfer.BalanceProofSignedState {
		return &transfer.BalanceProofSignedState{
			Nonce:             nonce,
			TransferredAmount: big.NewInt(transferred),
			LockedAmount:      new(big.Int),
			ChainId:           337,
			TokenNetwork:      tokenNetwork,
			ChannelIdentifier: 7,
			Signature:         common.Signature{1, 2, 3},
			Sender:            partner,
		}
	}
	old := proof(1, 5)
	latest := proof(2, 9)
	require.NoError(t, s.PutBalanceProof(DirectionReceived, old))
	require.NoError(t, s.PutBalanceProof(DirectionReceived, latest))
	require.NoError(t, s.PutBalanceProof(DirectionReceived, latest))

	found, err := s.GetBalanceProofByHash(tokenNetwork, 7, partner, old.BalanceHash())
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, common.Nonce(1), found.Nonce)
	assert.Equal(t, int64(5), found.TransferredAmount.Int64())
	assert.Equal(t, common.Signature{1, 2, 3}, found.Signature)

	tests := []struct {
		name      string
		channelId common.ChannelID
		sender    common.Address
	}{
		{"other channel", 8, partner},
		{"other sender", 7, receiver},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := s.GetBalanceProofByHash(tokenNetwork, tt.channelId, tt.sender, old.BalanceHash())
			require.NoError(t, err)
			assert.Nil(t, found)
		})
	}
}
