package actor

import (
	"context"
	"math/big"
	"time"

	ch "github.com/saveio/paychan/channelservice"
	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/common/constants"
	"github.com/saveio/paychan/errors"
	"github.com/saveio/paychan/transfer"
	"github.com/saveio/themis/common/log"
)

// withTimeout bounds ctx by the request timeout unless it already has a deadline.
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, constants.RequestTimeout*time.Second)
}

func tell(ctx context.Context, name string, req interface{}, done chan bool) error {
	if ChannelServerPid == nil {
		log.Errorf("[%s] channel server not started", name)
		return errors.ErrStopped.New("channel server not started")
	}
	ChannelServerPid.Tell(req)
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		log.Errorf("[%s] request timeout: %s", name, ctx.Err())
		return errors.ErrTimeout.Newf("%s: %s", name, ctx.Err())
	}
}

func GetVersion() (string, error) {
	ctx, cancel := withTimeout(context.Background())
	defer cancel()
	ret := &VersionRet{Done: make(chan bool, 1)}
	if err := tell(ctx, "GetVersion", &VersionReq{Ret: ret}, ret.Done); err != nil {
		return "", err
	}
	return ret.Version, ret.Err
}

func GetChannel(tokenNetwork common.TokenNetworkID, partner common.Address) (*transfer.NettingChannelState,
	*transfer.Balances, error) {
	ctx, cancel := withTimeout(context.Background())
	defer cancel()
	ret := &GetChannelRet{Done: make(chan bool, 1)}
	req := &GetChannelReq{TokenNetwork: tokenNetwork, Partner: partner, Ret: ret}
	if err := tell(ctx, "GetChannel", req, ret.Done); err != nil {
		return nil, nil, err
	}
	return ret.Channel, ret.Balances, ret.Err
}

func SetTotalChannelDeposit(ctx context.Context, tokenNetwork common.TokenNetworkID, partner common.Address,
	totalDeposit *big.Int, waitOpen bool) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	ret := &SetTotalChannelDepositRet{Done: make(chan bool, 1)}
	req := &SetTotalChannelDepositReq{Ctx: ctx, TokenNetwork: tokenNetwork, Partner: partner,
		TotalDeposit: totalDeposit, WaitOpen: waitOpen, Ret: ret}
	if err := tell(ctx, "SetTotalChannelDeposit", req, ret.Done); err != nil {
		return err
	}
	return ret.Err
}

func CloseChannel(ctx context.Context, tokenNetwork common.TokenNetworkID, partner common.Address) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	ret := &CloseChannelRet{Done: make(chan bool, 1)}
	req := &CloseChannelReq{Ctx: ctx, TokenNetwork: tokenNetwork, Partner: partner, Ret: ret}
	if err := tell(ctx, "CloseChannel", req, ret.Done); err != nil {
		return err
	}
	return ret.Err
}

func SettleChannel(ctx context.Context, tokenNetwork common.TokenNetworkID, partner common.Address) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	ret := &SettleChannelRet{Done: make(chan bool, 1)}
	req := &SettleChannelReq{Ctx: ctx, TokenNetwork: tokenNetwork, Partner: partner, Ret: ret}
	if err := tell(ctx, "SettleChannel", req, ret.Done); err != nil {
		return err
	}
	return ret.Err
}

func DirectTransfer(tokenNetwork common.TokenNetworkID, partner common.Address, amount *big.Int) error {
	ctx, cancel := withTimeout(context.Background())
	defer cancel()
	ret := &DirectTransferRet{Done: make(chan bool, 1)}
	req := &DirectTransferReq{TokenNetwork: tokenNetwork, Partner: partner, Amount: amount, Ret: ret}
	if err := tell(ctx, "DirectTransfer", req, ret.Done); err != nil {
		return err
	}
	return ret.Err
}

func FindRoutes(ctx context.Context, request *ch.RouteRequest) ([]ch.Route, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	ret := &FindRoutesRet{Done: make(chan bool, 1)}
	if err := tell(ctx, "FindRoutes", &FindRoutesReq{Ctx: ctx, Request: request, Ret: ret}, ret.Done); err != nil {
		return nil, err
	}
	return ret.Routes, ret.Err
}

func UdcWithdraw(ctx context.Context, amount *big.Int) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	ret := &UdcWithdrawRet{Done: make(chan bool, 1)}
	if err := tell(ctx, "UdcWithdraw", &UdcWithdrawReq{Ctx: ctx, Amount: amount, Ret: ret}, ret.Done); err != nil {
		return err
	}
	return ret.Err
}
