// SPDX-FileCopyrightText: © 2026 cyphalgo contributors
// SPDX-License-Identifier: MIT

package cyphalcan

import (
	"gitlab.com/yawning/avl.git"

	"github.com/charmbracelet/log"
)

// TxQueueItem is one CAN frame awaiting transmission, linked to the rest
// of its transfer's frames via NextInTransfer. Every item lives in both
// the priority tree and the deadline tree of its queue simultaneously.
type TxQueueItem struct {
	Frame          Frame
	TxDeadline     int64 // caller-defined monotonic units, e.g. UnixNano
	NextInTransfer *TxQueueItem

	prioritySeq  seq
	deadlineSeq  seq
	priorityNode *avl.Node
	deadlineNode *avl.Node
}

// TxQueueStats accumulates lifetime counters for a TxQueue, mirroring the
// reference implementation's CanardTxQueueStats.
type TxQueueStats struct {
	DroppedFramesExpiry uint64
	DroppedFramesPoll   uint64
}

// TxQueue holds CAN frames awaiting transmission in both priority order
// (for Peek/Pop) and deadline order (for expiry sweeps). It is not safe
// for concurrent use.
type TxQueue struct {
	Capacity int
	MTUBytes int
	Size     int

	memory MemoryResource
	seqs   seqCounter

	priority *avl.Tree
	deadline *avl.Tree

	stats  TxQueueStats
	Logger *log.Logger
	Rec    Recorder
}

// NewTxQueue constructs an empty TX queue with the given item capacity
// (in frames) and link MTU in bytes (8 for CAN classic, up to 64 for CAN
// FD).
func NewTxQueue(capacity, mtuBytes int, memory MemoryResource) *TxQueue {
	return &TxQueue{
		Capacity: capacity,
		MTUBytes: mtuBytes,
		memory:   memory,
		priority: newPriorityTree(),
		deadline: newDeadlineTree(),
	}
}

// Stats returns a snapshot of the queue's lifetime drop counters.
func (q *TxQueue) Stats() TxQueueStats { return q.stats }

func (q *TxQueue) allocateItem(canID uint32, deadline int64, payloadSize int) (*TxQueueItem, error) {
	buf, err := q.memory.allocate(payloadSize)
	if err != nil {
		return nil, err
	}
	return &TxQueueItem{
		Frame:      Frame{ExtendedCANID: canID, Payload: buf},
		TxDeadline: deadline,
	}, nil
}

func (q *TxQueue) insert(item *TxQueueItem) {
	item.prioritySeq = q.seqs.take()
	item.deadlineSeq = q.seqs.take()
	item.priorityNode = q.priority.Insert(item)
	item.deadlineNode = q.deadline.Insert(item)
	q.Size++
}

func (q *TxQueue) removeFromTrees(item *TxQueueItem) {
	if item.priorityNode != nil {
		q.priority.Remove(item.priorityNode)
		item.priorityNode = nil
	}
	if item.deadlineNode != nil {
		q.deadline.Remove(item.deadlineNode)
		item.deadlineNode = nil
	}
}

func (q *TxQueue) pushSingleFrame(localNodeID uint8, deadline int64, canID uint32, transferID uint8, payload []byte) (int, error) {
	framePayloadSize := txRoundFramePayloadSizeUp(len(payload) + 1)
	paddingSize := framePayloadSize - len(payload) - 1

	if q.Size >= q.Capacity {
		return 0, ErrOutOfMemory
	}
	item, err := q.allocateItem(canID, deadline, framePayloadSize)
	if err != nil {
		return 0, ErrOutOfMemory
	}

	copy(item.Frame.Payload, payload)
	for i := len(payload); i < len(payload)+paddingSize; i++ {
		item.Frame.Payload[i] = paddingByte
	}
	item.Frame.Payload[framePayloadSize-1] = txMakeTailByte(true, true, true, transferID)

	q.insert(item)
	recordEnqueued(q.Rec, 1)
	return 1, nil
}

// generateMultiFrameChain serializes payload into a linked chain of TX
// queue items, folding the CRC over payload+padding (never the tail
// byte). If allocation fails partway through it reports oom=true and
// returns the head of the partial chain (nil if nothing was allocated);
// the caller must then free that chain.
func (q *TxQueue) generateMultiFrameChain(presentationLayerMTU int, deadline int64, canID uint32, transferID uint8, payload []byte) (head, tail *TxQueueItem, oom bool) {
	payloadSizeWithCRC := len(payload) + crcSizeBytes
	offset := 0
	crc := crcAdd(crcInitial, payload)
	toggle := initialToggleState
	payloadPos := 0

	for offset < payloadSizeWithCRC {
		var framePayloadSizeWithTail int
		if (payloadSizeWithCRC - offset) < presentationLayerMTU {
			framePayloadSizeWithTail = txRoundFramePayloadSizeUp(payloadSizeWithCRC - offset + 1)
		} else {
			framePayloadSizeWithTail = presentationLayerMTU + 1
		}

		item, err := q.allocateItem(canID, deadline, framePayloadSizeWithTail)
		if err != nil {
			return head, nil, true
		}
		if head == nil {
			head = item
		} else {
			tail.NextInTransfer = item
		}
		tail = item

		frameBytes := item.Frame.Payload
		framePayloadSize := framePayloadSizeWithTail - 1
		frameOffset := 0

		if offset < len(payload) {
			moveSize := len(payload) - offset
			if moveSize > framePayloadSize {
				moveSize = framePayloadSize
			}
			copy(frameBytes, payload[payloadPos:payloadPos+moveSize])
			frameOffset += moveSize
			offset += moveSize
			payloadPos += moveSize
		}

		if offset >= len(payload) {
			for frameOffset+crcSizeBytes < framePayloadSize {
				frameBytes[frameOffset] = paddingByte
				frameOffset++
				crc = crcAddByte(crc, paddingByte)
			}
			if frameOffset < framePayloadSize && offset == len(payload) {
				frameBytes[frameOffset] = byte(crc >> 8)
				frameOffset++
				offset++
			}
			if frameOffset < framePayloadSize && offset > len(payload) {
				frameBytes[frameOffset] = byte(crc & 0xFF)
				frameOffset++
				offset++
			}
		}

		frameBytes[frameOffset] = txMakeTailByte(head == tail, offset >= payloadSizeWithCRC, toggle, transferID)
		toggle = !toggle
	}
	return head, tail, false
}

func (q *TxQueue) pushMultiFrame(presentationLayerMTU int, deadline int64, canID uint32, transferID uint8, payload []byte) (int, error) {
	payloadSizeWithCRC := len(payload) + crcSizeBytes
	numFrames := (payloadSizeWithCRC + presentationLayerMTU - 1) / presentationLayerMTU
	if q.Size+numFrames > q.Capacity {
		return 0, ErrOutOfMemory
	}

	head, _, oom := q.generateMultiFrameChain(presentationLayerMTU, deadline, canID, transferID, payload)
	if oom {
		q.freeChain(head)
		return 0, ErrOutOfMemory
	}

	count := 0
	for item := head; item != nil; item = item.NextInTransfer {
		q.insert(item)
		count++
	}
	recordEnqueued(q.Rec, count)
	return count, nil
}

func (q *TxQueue) freeChain(head *TxQueueItem) {
	for item := head; item != nil; {
		next := item.NextInTransfer
		q.free(item)
		item = next
	}
}

func (q *TxQueue) free(item *TxQueueItem) {
	if item.Frame.Payload != nil {
		q.memory.deallocate(item.Frame.Payload)
	}
}

// Push serializes transfer metadata and payload into one or more CAN
// frames and enqueues them. It returns the number of frames enqueued, or
// an error. Before enqueuing, any transfers already past their deadline
// relative to nowUnixNano are flushed to make room; pass 0 to skip the
// flush when the current time is not known.
func (q *TxQueue) Push(localNodeID uint8, deadline int64, metadata *TransferMetadata, payload []byte, nowUnixNano int64) (int, uint64, error) {
	var framesExpired uint64
	if nowUnixNano > 0 {
		framesExpired = uint64(q.flushExpiredTransfers(nowUnixNano))
	}

	plMTU := adjustPresentationLayerMTU(q.MTUBytes)
	canID, err := txMakeCANID(metadata, payload, localNodeID, plMTU)
	if err != nil {
		return 0, framesExpired, err
	}

	var n int
	if len(payload) <= plMTU {
		n, err = q.pushSingleFrame(localNodeID, deadline, canID, metadata.TransferID, payload)
	} else {
		n, err = q.pushMultiFrame(plMTU, deadline, canID, metadata.TransferID, payload)
	}
	return n, framesExpired, err
}

// Peek returns the highest-priority frame awaiting transmission, or nil
// if the queue is empty. The item is not removed.
func (q *TxQueue) Peek() *TxQueueItem {
	iter := q.priority.Iterator(avl.Forward)
	node := iter.First()
	if node == nil {
		return nil
	}
	return node.Value.(*TxQueueItem)
}

// Pop removes item from both indices without freeing its payload buffer;
// the caller becomes responsible for eventually calling Free.
func (q *TxQueue) Pop(item *TxQueueItem) *TxQueueItem {
	if item == nil {
		return nil
	}
	q.removeFromTrees(item)
	q.Size--
	recordPopped(q.Rec, 1)
	return item
}

// Free releases a popped item's payload buffer back to the queue's
// memory resource.
func (q *TxQueue) Free(item *TxQueueItem) {
	if item == nil {
		return
	}
	q.free(item)
}

// popAndFreeTransfer pops and frees one frame of item's transfer, or (if
// dropWholeTransfer) every remaining frame belonging to the same
// transfer. Returns the number of frames freed.
func (q *TxQueue) popAndFreeTransfer(item *TxQueueItem, dropWholeTransfer bool) int {
	count := 0
	next := item
	for next != nil {
		popped := q.Pop(next)
		if popped == nil {
			break
		}
		next = popped.NextInTransfer
		q.Free(popped)
		count++
		if !dropWholeTransfer {
			break
		}
	}
	return count
}

// flushExpiredTransfers drops every transfer whose deadline is strictly
// before nowUnixNano, walking the deadline tree ascending and stopping at
// the first non-expired item.
func (q *TxQueue) flushExpiredTransfers(nowUnixNano int64) int {
	count := 0
	for {
		iter := q.deadline.Iterator(avl.Forward)
		node := iter.First()
		if node == nil {
			break
		}
		item := node.Value.(*TxQueueItem)
		if nowUnixNano <= item.TxDeadline {
			break
		}
		n := q.popAndFreeTransfer(item, true)
		count += n
		q.stats.DroppedFramesExpiry += uint64(n)
	}
	if count > 0 {
		recordExpired(q.Rec, count)
	}
	return count
}

// TxFrameHandler transmits a single frame over the underlying media. It
// must return a positive value if the frame was accepted, zero if the
// media is momentarily unable to accept it (try again later, frame stays
// queued), or a negative value on unrecoverable failure (the whole
// transfer is dropped).
type TxFrameHandler func(deadline int64, frame *Frame) int

// Poll flushes expired transfers, then offers the highest-priority frame
// to handler. On acceptance (handler returns >0) or unrecoverable failure
// (handler returns <0) the frame is popped and freed, dropping the whole
// transfer on failure; on a zero return the frame is left in the queue.
// Returns the handler's return value, or 0 if the queue was empty.
func (q *TxQueue) Poll(nowUnixNano int64, handler TxFrameHandler) int {
	if nowUnixNano > 0 {
		q.flushExpiredTransfers(nowUnixNano)
	}

	item := q.Peek()
	if item == nil {
		return 0
	}

	result := handler(item.TxDeadline, &item.Frame)
	if result != 0 {
		failed := result < 0
		n := q.popAndFreeTransfer(item, failed)
		if failed {
			q.stats.DroppedFramesPoll += uint64(n)
			recordFailed(q.Rec, n)
		}
	}
	return result
}
