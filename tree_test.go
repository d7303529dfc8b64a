// SPDX-FileCopyrightText: © 2026 cyphalgo contributors
// SPDX-License-Identifier: MIT

package cyphalcan

import (
	"testing"

	"gitlab.com/yawning/avl.git"

	"github.com/stretchr/testify/require"
)

func TestFindSubscriptionAbsentReturnsNilAndLeavesTreeEmpty(t *testing.T) {
	tree := newSubscriptionTree()
	require.Nil(t, findSubscription(tree, 7))
	require.Equal(t, 0, tree.Len())
}

func TestFindSubscriptionPresent(t *testing.T) {
	tree := newSubscriptionTree()
	sub := &Subscription{PortID: 42}
	sub.treeNode = tree.Insert(sub)

	got := findSubscription(tree, 42)
	require.Same(t, sub, got)
	require.Equal(t, 1, tree.Len())
}

func TestPriorityTreeOrdersByCANIDThenInsertionOrder(t *testing.T) {
	tree := newPriorityTree()
	var c seqCounter

	low := &TxQueueItem{Frame: Frame{ExtendedCANID: 100}, prioritySeq: c.take()}
	high := &TxQueueItem{Frame: Frame{ExtendedCANID: 50}, prioritySeq: c.take()}
	tieFirst := &TxQueueItem{Frame: Frame{ExtendedCANID: 50}, prioritySeq: c.take()}

	tree.Insert(low)
	tree.Insert(high)
	tree.Insert(tieFirst)

	iter := tree.Iterator(avl.Forward)
	first := iter.First().Value.(*TxQueueItem)
	require.Same(t, high, first, "equal-priority ties must break in FIFO insertion order")
}
