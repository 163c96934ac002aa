package messages

import (
	"math/big"
	"testing"

	proto "github.com/gogo/protobuf/proto"
	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	partner      = common.HexToAddress("0x2222222222222222222222222222222222222222")
	tokenNetwork = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	msContract   = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
)

func testChannel(our common.Address) *transfer.NettingChannelState {
	ourEnd := transfer.NewNettingChannelEndState(our)
	ourEnd.Deposit = big.NewInt(100)
	partnerEnd := transfer.NewNettingChannelEndState(partner)
	partnerEnd.Deposit = big.NewInt(50)
	return &transfer.NettingChannelState{
		Identifier:    7,
		TokenNetwork:  tokenNetwork,
		ChainId:       337,
		SettleTimeout: 500,
		RevealTimeout: 50,
		OurState:      ourEnd,
		PartnerState:  partnerEnd,
		Status:        transfer.StatusOpen{},
	}
}

func TestMonitorRequestSignature(t *testing.T) {
	signer, err := common.GenerateKeySigner()
	require.NoError(t, err)
	bp := &transfer.BalanceProofSignedState{
		Nonce:             3,
		TransferredAmount: big.NewInt(20),
		LockedAmount:      big.NewInt(0),
		ChainId:           337,
		TokenNetwork:      tokenNetwork,
		ChannelIdentifier: 7,
		Signature:         make(common.Signature, 65),
		Sender:            partner,
	}
	msg, err := NewMonitorRequest(signer, bp, big.NewInt(5), msContract)
	require.NoError(t, err)
	require.NoError(t, Sign(signer, msg))

	assert.NoError(t, common.VerifySignature(signer.Address(), transfer.PackBalanceProofUpdate(bp),
		msg.NonClosingSignature))
	assert.NoError(t, common.VerifySignature(signer.Address(), msg.DataToSign(), msg.Signature))
	assert.Equal(t, "5", msg.RewardAmount)
	assert.Equal(t, uint64(3), msg.BalanceProof.Nonce)

	data, err := proto.Marshal(msg)
	require.NoError(t, err)
	decoded := new(MonitorRequest)
	require.NoError(t, proto.Unmarshal(data, decoded))
	assert.Equal(t, msg.DataToSign(), decoded.DataToSign())
	assert.NoError(t, common.VerifySignature(signer.Address(), decoded.DataToSign(), decoded.Signature))
}

func TestPFSCapacityUpdate(t *testing.T) {
	signer, err := common.GenerateKeySigner()
	require.NoError(t, err)
	msg := NewPFSCapacityUpdate(testChannel(signer.Address()))
	assert.Equal(t, "100", msg.UpdatingCapacity)
	assert.Equal(t, "50", msg.OtherCapacity)
	assert.Equal(t, uint64(50), msg.RevealTimeout)

	require.NoError(t, Sign(signer, msg))
	assert.NoError(t, common.VerifySignature(signer.Address(), msg.DataToSign(), msg.Signature))

	msg.UpdatingCapacity = "101"
	assert.Error(t, common.VerifySignature(signer.Address(), msg.DataToSign(), msg.Signature))
}

func TestPFSFeeUpdate(t *testing.T) {
	signer, err := common.GenerateKeySigner()
	require.NoError(t, err)
	schedule := &transfer.FeeScheduleState{
		CapFees:      true,
		Flat:         big.NewInt(4),
		Proportional: 100,
		ImbalancePenalty: []transfer.ImbalancePoint{
			{Capacity: big.NewInt(0), Fee: big.NewInt(10)},
			{Capacity: big.NewInt(150), Fee: big.NewInt(10)},
		},
	}
	msg := NewPFSFeeUpdate(testChannel(signer.Address()), schedule, 1700000000)
	require.NoError(t, Sign(signer, msg))

	data, err := proto.Marshal(msg)
	require.NoError(t, err)
	decoded := new(PFSFeeUpdate)
	require.NoError(t, proto.Unmarshal(data, decoded))
	require.Len(t, decoded.FeeSchedule.ImbalancePenalty, 2)
	assert.Equal(t, "150", decoded.FeeSchedule.ImbalancePenalty[1].Capacity)
	assert.Equal(t, "4", decoded.FeeSchedule.Flat)
	assert.NoError(t, common.VerifySignature(signer.Address(), decoded.DataToSign(), decoded.Signature))
}

func TestTransferRoundTrip(t *testing.T) {
	signer, err := common.GenerateKeySigner()
	require.NoError(t, err)
	lock := &transfer.HashTimeLockState{Amount: big.NewInt(20), Expiration: 300, SecretHash: common.Hash{9}}
	bp := &transfer.BalanceProofSignedState{
		Nonce:             3,
		TransferredAmount: big.NewInt(10),
		LockedAmount:      big.NewInt(20),
		LocksRoot:         transfer.ComputeLocksroot([]*transfer.HashTimeLockState{lock}),
		ChainId:           337,
		TokenNetwork:      tokenNetwork,
		ChannelIdentifier: 7,
		Sender:            signer.Address(),
	}
	bp.Signature, err = signer.Sign(transfer.PackBalanceProof(bp))
	require.NoError(t, err)

	data, err := proto.Marshal(NewTransfer(bp, lock, nil))
	require.NoError(t, err)
	decoded := new(Transfer)
	require.NoError(t, proto.Unmarshal(data, decoded))

	received, err := decoded.BalanceProof()
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), received.Sender)
	assert.Equal(t, bp.BalanceHash(), received.BalanceHash())
	assert.Equal(t, bp.Nonce, received.Nonce)

	receivedLock, err := decoded.HashTimeLock()
	require.NoError(t, err)
	assert.Equal(t, lock.SecretHash, receivedLock.SecretHash)
	secretHash, err := decoded.UnlockedSecretHash()
	require.NoError(t, err)
	assert.Nil(t, secretHash)

	t.Run("oversized amount", func(t *testing.T) {
		bad := *decoded
		bad.TransferredAmount = new(big.Int).Lsh(big.NewInt(1), 256).String()
		_, err := bad.BalanceProof()
		assert.Error(t, err)
	})
	t.Run("tampered amount", func(t *testing.T) {
		bad := *decoded
		bad.TransferredAmount = "11"
		tampered, err := bad.BalanceProof()
		require.NoError(t, err)
		assert.NotEqual(t, signer.Address(), tampered.Sender)
	})
}

func TestWithdrawRequestSignature(t *testing.T) {
	signer, err := common.GenerateKeySigner()
	require.NoError(t, err)
	channel := testChannel(partner)
	w := &transfer.PendingWithdrawState{Kind: transfer.WithdrawExpired, TotalWithdraw: big.NewInt(30),
		Expiration: 150, Nonce: 4, Participant: signer.Address()}

	msg := NewWithdrawRequest(channel, w)
	require.NoError(t, Sign(signer, msg))
	decoded, err := msg.PendingWithdraw()
	require.NoError(t, err)
	assert.Equal(t, transfer.WithdrawExpired, decoded.Kind)
	assert.Equal(t, int64(30), decoded.TotalWithdraw.Int64())

	msg.Nonce = 5
	_, err = msg.PendingWithdraw()
	assert.Error(t, err)
}
