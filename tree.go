// SPDX-FileCopyrightText: © 2026 cyphalgo contributors
// SPDX-License-Identifier: MIT

package cyphalcan

import "gitlab.com/yawning/avl.git"

// seq is a monotonically increasing insertion-sequence counter. It is
// folded into the TX queue's priority and deadline comparators as the
// final tiebreaker so that two distinct queue items can never compare equal under avl.Tree's value-equality
// Insert semantics -- this reproduces the reference implementation's
// intrusive-node rule that items inserted later with an otherwise equal
// key always compare greater, guaranteeing FIFO order among ties.
type seq uint64

type seqCounter struct {
	next seq
}

func (c *seqCounter) take() seq {
	c.next++
	return c.next
}

// newPriorityTree orders TX queue items first by CAN identifier (which
// encodes the Cyphal priority in its most significant bits), then by
// insertion order.
func newPriorityTree() *avl.Tree {
	return avl.New(func(a, b interface{}) int {
		x, y := a.(*TxQueueItem), b.(*TxQueueItem)
		switch {
		case x.Frame.ExtendedCANID < y.Frame.ExtendedCANID:
			return -1
		case x.Frame.ExtendedCANID > y.Frame.ExtendedCANID:
			return 1
		case x.prioritySeq < y.prioritySeq:
			return -1
		case x.prioritySeq > y.prioritySeq:
			return 1
		default:
			return 0
		}
	})
}

// newDeadlineTree orders TX queue items by transmission deadline, then by
// insertion order.
func newDeadlineTree() *avl.Tree {
	return avl.New(func(a, b interface{}) int {
		x, y := a.(*TxQueueItem), b.(*TxQueueItem)
		switch {
		case x.TxDeadline < y.TxDeadline:
			return -1
		case x.TxDeadline > y.TxDeadline:
			return 1
		case x.deadlineSeq < y.deadlineSeq:
			return -1
		case x.deadlineSeq > y.deadlineSeq:
			return 1
		default:
			return 0
		}
	})
}

// newSubscriptionTree orders subscriptions of a single transfer kind by
// port-ID. It has no sequence tiebreak: two subscriptions with the same
// port-ID compare equal, which findSubscription relies on.
func newSubscriptionTree() *avl.Tree {
	return avl.New(func(a, b interface{}) int {
		x, y := a.(*Subscription), b.(*Subscription)
		switch {
		case x.PortID < y.PortID:
			return -1
		case x.PortID > y.PortID:
			return 1
		default:
			return 0
		}
	})
}

// findSubscription looks up the subscription for a given port-ID in
// O(log n), or returns nil if none exists. It exploits avl.Tree's
// insert-if-absent semantics: Insert-ing a throwaway probe returns the
// pre-existing node when the key is already present (leaving the tree
// unmodified) or the probe's own node when it is not, in which case the
// probe is immediately removed again.
func findSubscription(tree *avl.Tree, portID uint16) *Subscription {
	probe := &Subscription{PortID: portID}
	node := tree.Insert(probe)
	found := node.Value.(*Subscription)
	if found == probe {
		tree.Remove(node)
		return nil
	}
	return found
}
