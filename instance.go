// SPDX-FileCopyrightText: © 2026 cyphalgo contributors
// SPDX-License-Identifier: MIT

package cyphalcan

import (
	"gitlab.com/yawning/avl.git"

	"github.com/charmbracelet/log"
)

// Instance holds this node's identity and its RX subscriptions, indexed
// by transfer kind and port-ID. It is not safe for concurrent use.
type Instance struct {
	NodeID uint8 // NodeIDUnset if this node is anonymous

	memory        MemoryResource
	subscriptions [transferKindCount]*avl.Tree

	Logger *log.Logger
	Rec    Recorder
}

// NewInstance constructs an Instance with no subscriptions, defaulting to
// an anonymous node-ID.
func NewInstance(memory MemoryResource) *Instance {
	ins := &Instance{
		NodeID: NodeIDUnset,
		memory: memory,
	}
	for i := range ins.subscriptions {
		ins.subscriptions[i] = newSubscriptionTree()
	}
	return ins
}

// Subscribe registers interest in transfers of the given kind and
// port-ID. A prior subscription for the same (kind, port-ID) is replaced
// and its sessions released, since a wider extent could otherwise
// overrun buffers sized for the old one. The returned bool is true if this
// call created a fresh subscription, false if it replaced an existing one.
func (ins *Instance) Subscribe(kind TransferKind, portID uint16, extent int, transferIDTimeout int64) (*Subscription, bool, error) {
	if int(kind) >= transferKindCount {
		return nil, false, ErrInvalidArgument
	}
	replaced := ins.Unsubscribe(kind, portID)

	sub := &Subscription{
		PortID:            portID,
		Extent:            extent,
		TransferIDTimeout: transferIDTimeout,
	}
	sub.treeNode = ins.subscriptions[kind].Insert(sub)
	return sub, !replaced, nil
}

// Unsubscribe removes the subscription for (kind, port-ID), releasing any
// live reassembly sessions. Returns true if a subscription was removed.
func (ins *Instance) Unsubscribe(kind TransferKind, portID uint16) bool {
	if int(kind) >= transferKindCount {
		return false
	}
	tree := ins.subscriptions[kind]
	sub := findSubscription(tree, portID)
	if sub == nil {
		return false
	}
	tree.Remove(sub.treeNode)
	for i, rxs := range sub.sessions {
		if rxs != nil {
			ins.memory.deallocate(rxs.payload)
			sub.sessions[i] = nil
		}
	}
	return true
}

// GetSubscription returns the subscription for (kind, port-ID), if any.
func (ins *Instance) GetSubscription(kind TransferKind, portID uint16) *Subscription {
	if int(kind) >= transferKindCount {
		return nil
	}
	return findSubscription(ins.subscriptions[kind], portID)
}

// RxAccept parses and validates a single incoming CAN frame, routes it to
// the matching subscription (if any), and reassembles it. It returns
// (transfer, true, nil) when a transfer completed, (zero, false, nil)
// when the frame was consumed without completing a transfer or matched no
// subscription or was malformed, and a non-nil error only for a
// caller-supplied argument violation or an allocation failure.
//
// redundantIfaceIndex identifies which of the node's (possibly several)
// redundant CAN interfaces the frame arrived on; pass 0 for a
// single-interface node.
func (ins *Instance) RxAccept(timestamp int64, canID uint32, payload []byte, redundantIfaceIndex uint8) (Transfer, bool, error) {
	if canID > canExtIDMask {
		return Transfer{}, false, ErrInvalidArgument
	}

	model, ok := rxTryParseFrame(timestamp, canID, payload)
	if !ok {
		return Transfer{}, false, nil // not a valid Cyphal/CAN frame
	}
	if model.destinationNodeID != NodeIDUnset && ins.NodeID != model.destinationNodeID {
		return Transfer{}, false, nil // mis-addressed frame
	}

	sub := findSubscription(ins.subscriptions[model.transferKind], model.portID)
	if sub == nil {
		return Transfer{}, false, nil // no matching subscription
	}

	transfer, delivered, err := sub.acceptFrame(ins.memory, ins.Logger, model, redundantIfaceIndex)
	if err != nil {
		return Transfer{}, false, err
	}
	if delivered {
		recordDelivered(ins.Rec, 1)
	}
	return transfer, delivered, nil
}
