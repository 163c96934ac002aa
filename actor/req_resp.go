package actor

import (
	"context"
	"math/big"

	ch "github.com/saveio/paychan/channelservice"
	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/transfer"
)

type VersionRet struct {
	Version string
	Done    chan bool
	Err     error
}

type VersionReq struct {
	Ret *VersionRet
}

type GetChannelRet struct {
	Channel  *transfer.NettingChannelState
	Balances *transfer.Balances
	Done     chan bool
	Err      error
}

type GetChannelReq struct {
	TokenNetwork common.TokenNetworkID
	Partner      common.Address
	Ret          *GetChannelRet
}

type SetTotalChannelDepositRet struct {
	Done chan bool
	Err  error
}

type SetTotalChannelDepositReq struct {
	Ctx          context.Context
	TokenNetwork common.TokenNetworkID
	Partner      common.Address
	TotalDeposit *big.Int
	WaitOpen     bool
	Ret          *SetTotalChannelDepositRet
}

type CloseChannelRet struct {
	Done chan bool
	Err  error
}

type CloseChannelReq struct {
	Ctx          context.Context
	TokenNetwork common.TokenNetworkID
	Partner      common.Address
	Ret          *CloseChannelRet
}

type SettleChannelRet struct {
	Done chan bool
	Err  error
}

type SettleChannelReq struct {
	Ctx          context.Context
	TokenNetwork common.TokenNetworkID
	Partner      common.Address
	Ret          *SettleChannelRet
}

type DirectTransferRet struct {
	Done chan bool
	Err  error
}

type DirectTransferReq struct {
	TokenNetwork common.TokenNetworkID
	Partner      common.Address
	Amount       *big.Int
	Ret          *DirectTransferRet
}

type FindRoutesRet struct {
	Routes []ch.Route
	Done   chan bool
	Err    error
}

type FindRoutesReq struct {
	Ctx     context.Context
	Request *ch.RouteRequest
	Ret     *FindRoutesRet
}

type UdcWithdrawRet struct {
	Done chan bool
	Err  error
}

type UdcWithdrawReq struct {
	Ctx    context.Context
	Amount *big.Int
	Ret    *UdcWithdrawRet
}
