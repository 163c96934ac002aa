package pfs

import (
	"bytes"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/common/constants"
	"github.com/saveio/paychan/errors"
)

// IOU is a signed promise of Sender to pay Receiver up to Amount, claimable
// through the OneToN contract until ExpirationBlock.
type IOU struct {
	Sender          common.Address
	Receiver        common.Address
	Amount          *big.Int
	ExpirationBlock common.BlockHeight
	OneToNAddress   common.Address
	ChainId         common.ChainID
	Signature       common.Signature
}

type iouJSON struct {
	Sender          common.Address `json:"sender"`
	Receiver        common.Address `json:"receiver"`
	Amount          common.UInt256 `json:"amount"`
	ExpirationBlock uint64         `json:"expiration_block"`
	OneToNAddress   common.Address `json:"one_to_n_address"`
	ChainId         uint64         `json:"chain_id"`
	Signature       hexutil.Bytes  `json:"signature"`
}

func (self *IOU) MarshalJSON() ([]byte, error) {
	return json.Marshal(&iouJSON{
		Sender:          self.Sender,
		Receiver:        self.Receiver,
		Amount:          common.NewUInt256(self.Amount),
		ExpirationBlock: uint64(self.ExpirationBlock),
		OneToNAddress:   self.OneToNAddress,
		ChainId:         uint64(self.ChainId),
		Signature:       hexutil.Bytes(self.Signature),
	})
}

func (self *IOU) UnmarshalJSON(data []byte) error {
	var v iouJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return errors.Wrap(errors.ErrInvalidIOU, err.Error())
	}
	if v.Amount.Int == nil {
		return errors.ErrInvalidIOU.New("missing amount")
	}
	*self = IOU{
		Sender:          v.Sender,
		Receiver:        v.Receiver,
		Amount:          v.Amount.Int,
		ExpirationBlock: common.BlockHeight(v.ExpirationBlock),
		OneToNAddress:   v.OneToNAddress,
		ChainId:         common.ChainID(v.ChainId),
		Signature:       common.Signature(v.Signature),
	}
	return nil
}

func (self *IOU) Copy() *IOU {
	if self == nil {
		return nil
	}
	iou := *self
	iou.Amount = common.BigCopy(self.Amount)
	iou.Signature = common.Signature(common.BytesCopy(self.Signature))
	return &iou
}

func (self *IOU) DataToSign() []byte {
	var buf bytes.Buffer
	buf.Write(self.OneToNAddress[:])
	buf.Write(math.PaddedBigBytes(new(big.Int).SetUint64(uint64(self.ChainId)), 32))
	buf.Write(math.PaddedBigBytes(big.NewInt(constants.MessageTypeIOU), 32))
	buf.Write(self.Sender[:])
	buf.Write(self.Receiver[:])
	buf.Write(math.PaddedBigBytes(common.BigCopy(self.Amount), 32))
	buf.Write(math.PaddedBigBytes(new(big.Int).SetUint64(uint64(self.ExpirationBlock)), 32))
	return buf.Bytes()
}

func (self *IOU) Sign(signer common.Signer) error {
	if signer.Address() != self.Sender {
		return errors.ErrInvalidIOU.Newf("iou sender %s is not the signer", self.Sender.Hex())
	}
	sig, err := signer.Sign(self.DataToSign())
	if err != nil {
		return errors.Wrap(err, "sign iou")
	}
	self.Signature = sig
	return nil
}

// Verify fails unless the IOU was signed by its sender.
func (self *IOU) Verify() error {
	if err := common.CheckUInt256(self.Amount); err != nil {
		return errors.Wrap(errors.ErrInvalidIOU, err.Error())
	}
	if err := common.VerifySignature(self.Sender, self.DataToSign(), self.Signature); err != nil {
		return errors.Wrap(errors.ErrInvalidIOU, err.Error())
	}
	return nil
}

// NextIOU returns a signed IOU paying price more than last. Without a last
// IOU a new one starting at price is created.
func NextIOU(signer common.Signer, last *IOU, receiver common.Address, price *big.Int,
	oneToN common.Address, chainId common.ChainID, expiration common.BlockHeight) (*IOU, error) {
	var iou *IOU
	if last == nil {
		iou = &IOU{
			Sender:          signer.Address(),
			Receiver:        receiver,
			Amount:          new(big.Int),
			ExpirationBlock: expiration,
			OneToNAddress:   oneToN,
			ChainId:         chainId,
		}
	} else {
		iou = last.Copy()
	}
	iou.Amount.Add(iou.Amount, common.BigCopy(price))
	if err := common.CheckUInt256(iou.Amount); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidIOU, err.Error())
	}
	if err := iou.Sign(signer); err != nil {
		return nil, err
	}
	return iou, nil
}
