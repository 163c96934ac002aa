package actor

import (
	"github.com/ontio/ontology-eventbus/actor"
	oc "github.com/saveio/paychan"
	"github.com/saveio/paychan/common"
	"github.com/saveio/paychan/network/rpc"
	"github.com/saveio/paychan/network/transport"
	"github.com/saveio/themis/common/log"
)

var ChannelServerPid *actor.PID

// ChannelActorServer serves channel requests sent to ChannelServerPid.
// Every request runs on its own goroutine and reports through its Ret.
type ChannelActorServer struct {
	props    *actor.Props
	localPID *actor.PID
	chSrv    *oc.Channel
}

func NewChannelActor(config *oc.ChannelConfig, signer common.Signer, txService rpc.TxService,
	trans transport.Transport) (*ChannelActorServer, error) {
	var err error
	channelActorServer := &ChannelActorServer{}
	if channelActorServer.chSrv, err = oc.NewChannelService(config, signer, txService, trans); err != nil {
		return nil, err
	}
	channelActorServer.props = actor.FromProducer(func() actor.Actor { return channelActorServer })
	channelActorServer.localPID, err = actor.SpawnNamed(channelActorServer.props, "channel_server")
	if err != nil {
		channelActorServer.chSrv.Stop()
		return nil, err
	}
	ChannelServerPid = channelActorServer.localPID
	return channelActorServer, nil
}

func (this *ChannelActorServer) Start() error {
	err := this.chSrv.StartService()
	if err != nil {
		log.Error("[ChannelActorServer] ChannelService Start error: ", err.Error())
	}
	return err
}

func (this *ChannelActorServer) Stop() {
	this.localPID.Stop()
	this.chSrv.Stop()
}

func (this *ChannelActorServer) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Restarting:
		log.Warn("[ChannelActorServer] Actor restarting")
	case *actor.Stopping:
		log.Warn("[ChannelActorServer] Actor stopping")
	case *actor.Stopped:
		log.Warn("[ChannelActorServer] Actor stopped")
	case *actor.Started:
		log.Debug("[ChannelActorServer] Actor started")
	case *actor.Restart:
		log.Warn("[ChannelActorServer] Actor restart")
	case *VersionReq:
		go func() {
			msg.Ret.Version = this.chSrv.GetVersion()
			msg.Ret.Done <- true
		}()
	case *GetChannelReq:
		go func() {
			msg.Ret.Balances, msg.Ret.Err = this.chSrv.Service.GetBalances(msg.TokenNetwork, msg.Partner)
			if msg.Ret.Err == nil {
				msg.Ret.Channel = this.chSrv.Service.GetChannel(msg.TokenNetwork, msg.Partner)
			}
			msg.Ret.Done <- true
		}()
	case *SetTotalChannelDepositReq:
		go func() {
			msg.Ret.Err = this.chSrv.Service.SetTotalChannelDeposit(msg.Ctx, msg.TokenNetwork, msg.Partner,
				msg.TotalDeposit, msg.WaitOpen)
			msg.Ret.Done <- true
		}()
	case *CloseChannelReq:
		go func() {
			msg.Ret.Err = this.chSrv.Service.CloseChannel(msg.Ctx, msg.TokenNetwork, msg.Partner)
			msg.Ret.Done <- true
		}()
	case *SettleChannelReq:
		go func() {
			msg.Ret.Err = this.chSrv.Service.SettleChannel(msg.Ctx, msg.TokenNetwork, msg.Partner)
			msg.Ret.Done <- true
		}()
	case *DirectTransferReq:
		go func() {
			msg.Ret.Err = this.chSrv.Service.TransferDirect(msg.TokenNetwork, msg.Partner, msg.Amount)
			msg.Ret.Done <- true
		}()
	case *FindRoutesReq:
		go func() {
			msg.Ret.Routes, msg.Ret.Err = this.chSrv.Service.FindRoutes(msg.Ctx, msg.Request)
			msg.Ret.Done <- true
		}()
	case *UdcWithdrawReq:
		go func() {
			msg.Ret.Err = this.chSrv.Service.UdcWithdraw(msg.Ctx, msg.Amount)
			msg.Ret.Done <- true
		}()
	default:
		log.Errorf("[ChannelActorServer] receive unknown message type %T", msg)
	}
}

func (this *ChannelActorServer) GetLocalPID() *actor.PID {
	return this.localPID
}

func (this *ChannelActorServer) GetChannel() *oc.Channel {
	return this.chSrv
}
