package transport

import (
	"context"

	"github.com/gogo/protobuf/proto"
	"github.com/saveio/paychan/common"
)

// Capabilities a peer announces together with its presence.
type Capabilities struct {
	Receive     bool
	LightClient bool
	Delivery    bool
}

type Presence struct {
	Online bool
	Caps   Capabilities
}

// Transport delivers signed messages to peers and service rooms.
type Transport interface {
	Send(ctx context.Context, recipient common.Address, message proto.Message) error
	// Broadcast publishes message to every service listening on room.
	Broadcast(ctx context.Context, room string, message proto.Message) error
	Presence(address common.Address) Presence
}
