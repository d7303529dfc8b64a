// SPDX-FileCopyrightText: © 2026 cyphalgo contributors
// SPDX-License-Identifier: MIT

package cyphalcan

import (
	"gitlab.com/yawning/avl.git"

	"github.com/charmbracelet/log"
)

const mftNonLastFramePayloadMin = 7

// rxFrameModel is the parsed, validated form of an incoming CAN frame.
type rxFrameModel struct {
	timestamp         int64
	priority          Priority
	transferKind      TransferKind
	portID            uint16
	sourceNodeID      uint8
	destinationNodeID uint8
	transferID        uint8
	startOfTransfer   bool
	endOfTransfer     bool
	toggle            bool
	payload           []byte
}

// rxTryParseFrame validates and decodes frame, returning ok=false for any
// input that is not a well-formed Cyphal/CAN frame. A malformed frame is
// not an error per the package's taxonomy -- it is silently discarded by
// the caller.
func rxTryParseFrame(timestamp int64, canID uint32, payload []byte) (rxFrameModel, bool) {
	var out rxFrameModel
	if len(payload) == 0 {
		return out, false
	}
	out.timestamp = timestamp
	out.priority = Priority((canID >> offsetPriority) & PriorityMax)
	out.sourceNodeID = uint8(canID & NodeIDMax)

	var valid bool
	if canID&flagServiceNotMessage == 0 {
		out.transferKind = TransferKindMessage
		out.portID = uint16((canID >> offsetSubjectID) & SubjectIDMax)
		if canID&flagAnonymousMessage != 0 {
			out.sourceNodeID = NodeIDUnset
		}
		out.destinationNodeID = NodeIDUnset
		valid = (canID&flagReserved23 == 0) && (canID&flagReserved07 == 0)
	} else {
		if canID&flagRequestNotResponse != 0 {
			out.transferKind = TransferKindRequest
		} else {
			out.transferKind = TransferKindResponse
		}
		out.portID = uint16((canID >> offsetServiceID) & ServiceIDMax)
		out.destinationNodeID = uint8((canID >> offsetDstNodeID) & NodeIDMax)
		valid = (canID&flagReserved23 == 0) && (out.sourceNodeID != out.destinationNodeID)
	}

	tailIndex := len(payload) - 1
	out.payload = payload[:tailIndex]
	tail := payload[tailIndex]
	out.transferID = tail & TransferIDMax
	out.startOfTransfer = tail&tailStartOfTransfer != 0
	out.endOfTransfer = tail&tailEndOfTransfer != 0
	out.toggle = tail&tailToggle != 0

	valid = valid && (!out.startOfTransfer || initialToggleState == out.toggle)
	valid = valid && ((out.startOfTransfer && out.endOfTransfer) || out.sourceNodeID != NodeIDUnset)
	valid = valid && (len(out.payload) >= mftNonLastFramePayloadMin || out.endOfTransfer)
	valid = valid && (len(out.payload) > 0 || (out.startOfTransfer && out.endOfTransfer))
	return out, valid
}

func rxComputeTransferIDDifference(a, b uint8) uint8 {
	diff := int16(a) - int16(b)
	if diff < 0 {
		diff += int16(transferIDModulo)
	}
	return uint8(diff)
}

// rxSession tracks in-progress reassembly of one transfer source within
// one subscription.
type rxSession struct {
	transferTimestamp    int64
	totalPayloadSize     int
	payload              []byte
	calculatedCRC        uint16
	transferID           uint8
	redundantIfaceIndex  uint8
	toggle               bool
}

func newRxSession(frame rxFrameModel, redundantIfaceIndex uint8) *rxSession {
	return &rxSession{
		transferTimestamp:   frame.timestamp,
		calculatedCRC:       crcInitial,
		transferID:          frame.transferID,
		redundantIfaceIndex: redundantIfaceIndex,
		toggle:              initialToggleState,
	}
}

func (rxs *rxSession) restart(memory MemoryResource) {
	memory.deallocate(rxs.payload)
	rxs.totalPayloadSize = 0
	rxs.payload = nil
	rxs.calculatedCRC = crcInitial
	rxs.transferID = (rxs.transferID + 1) & TransferIDMax
	rxs.toggle = initialToggleState
}

func (rxs *rxSession) writePayload(memory MemoryResource, extent int, payload []byte) error {
	rxs.totalPayloadSize += len(payload)

	if rxs.payload == nil && extent > 0 {
		buf, err := memory.allocate(extent)
		if err != nil {
			return ErrOutOfMemory
		}
		rxs.payload = buf[:0]
	}
	if rxs.payload == nil {
		if extent > 0 {
			return ErrOutOfMemory
		}
		return nil
	}

	bytesToCopy := len(payload)
	if len(rxs.payload)+bytesToCopy > extent {
		bytesToCopy = extent - len(rxs.payload)
	}
	rxs.payload = append(rxs.payload, payload[:bytesToCopy]...)
	return nil
}

// Transfer is a fully reassembled transfer delivered to the application.
// Payload is truncated to the subscription's extent even though the CRC
// (for multi-frame transfers) was validated over the full, untruncated
// payload.
type Transfer struct {
	Metadata  TransferMetadata
	Timestamp int64
	Payload   []byte
}

func rxInitTransferMetadataFromFrame(frame rxFrameModel) TransferMetadata {
	return TransferMetadata{
		Priority:     frame.priority,
		TransferKind: frame.transferKind,
		PortID:       frame.portID,
		RemoteNodeID: frame.sourceNodeID,
		TransferID:   frame.transferID,
	}
}

// acceptFrame feeds one validated frame into the session's reassembly
// state machine. Returns (transfer, true, nil) when a transfer completed,
// (zero, false, nil) when more frames are needed, and a non-nil error
// only on allocation failure.
func (rxs *rxSession) acceptFrame(memory MemoryResource, frame rxFrameModel, extent int) (Transfer, bool, error) {
	if frame.startOfTransfer {
		rxs.transferTimestamp = frame.timestamp
	}

	singleFrame := frame.startOfTransfer && frame.endOfTransfer
	if !singleFrame {
		rxs.calculatedCRC = crcAdd(rxs.calculatedCRC, frame.payload)
	}

	err := rxs.writePayload(memory, extent, frame.payload)
	if err != nil {
		rxs.restart(memory)
		return Transfer{}, false, err
	}

	if !frame.endOfTransfer {
		rxs.toggle = !rxs.toggle
		return Transfer{}, false, nil
	}

	var transfer Transfer
	delivered := false
	if singleFrame || rxs.calculatedCRC == crcResidue {
		delivered = true
		transfer.Metadata = rxInitTransferMetadataFromFrame(frame)
		transfer.Timestamp = rxs.transferTimestamp
		transfer.Payload = rxs.payload

		truncatedAmount := rxs.totalPayloadSize - len(rxs.payload)
		if !singleFrame && crcSizeBytes > truncatedAmount {
			transfer.Payload = transfer.Payload[:len(transfer.Payload)-(crcSizeBytes-truncatedAmount)]
		}
		rxs.payload = nil // ownership passed to the caller
	}
	rxs.restart(memory)
	return transfer, delivered, nil
}

// synchronize restarts the reassembler when a new start-of-transfer frame
// arrives under any of the conditions that make a restart safe: a new
// transfer-ID on the same redundant interface, a transfer-ID timeout
// (optionally combined with a transfer-ID jump), or -- the narrow
// cross-interface takeover case -- a timed-out, still-idle session seeing
// the expected transfer-ID arrive on a different interface.
func (rxs *rxSession) synchronize(frame rxFrameModel, redundantIfaceIndex uint8, transferIDTimeout int64) {
	sameTransport := rxs.redundantIfaceIndex == redundantIfaceIndex
	tidMatch := rxs.transferID == frame.transferID
	tidNew := rxComputeTransferIDDifference(rxs.transferID, frame.transferID) > 1
	tidTimeout := frame.timestamp > rxs.transferTimestamp && (frame.timestamp-rxs.transferTimestamp) > transferIDTimeout
	idle := rxs.totalPayloadSize == 0

	restartable := (sameTransport && tidNew) ||
		(sameTransport && tidTimeout) ||
		(tidTimeout && tidNew) ||
		(tidTimeout && tidMatch && idle)

	if frame.startOfTransfer && restartable {
		rxs.totalPayloadSize = 0
		rxs.payload = rxs.payload[:0]
		rxs.calculatedCRC = crcInitial
		rxs.transferID = frame.transferID
		rxs.toggle = initialToggleState
		rxs.redundantIfaceIndex = redundantIfaceIndex
	}
}

// update synchronizes the session against frame, then accepts it only if
// the redundant interface, toggle bit, transfer-ID, and frame-position
// (correctStart) all match the session's expectation. The correctStart
// check guards against a CRC collision letting a stray last-frame of a
// lost multi-frame transfer be misaccepted as a valid one.
func (rxs *rxSession) update(memory MemoryResource, frame rxFrameModel, redundantIfaceIndex uint8, transferIDTimeout int64, extent int) (Transfer, bool, error) {
	rxs.synchronize(frame, redundantIfaceIndex, transferIDTimeout)

	correctIface := rxs.redundantIfaceIndex == redundantIfaceIndex
	correctToggle := frame.toggle == rxs.toggle
	correctTID := frame.transferID == rxs.transferID
	var correctStart bool
	if frame.startOfTransfer {
		correctStart = rxs.totalPayloadSize == 0
	} else {
		correctStart = rxs.totalPayloadSize > 0
	}

	if correctIface && correctToggle && correctTID && correctStart {
		return rxs.acceptFrame(memory, frame, extent)
	}
	return Transfer{}, false, nil
}

// Subscription tracks reassembly sessions for every remote node
// transmitting on one (transfer kind, port-ID) pair.
type Subscription struct {
	PortID            uint16
	Extent            int
	TransferIDTimeout int64

	sessions [NodeIDMax + 1]*rxSession
	treeNode *avl.Node
}

// acceptFrame feeds one validated frame addressed to this subscription
// through the appropriate session, lazily creating the session on a
// start-of-transfer frame from a previously unseen node.
func (sub *Subscription) acceptFrame(memory MemoryResource, logger *log.Logger, frame rxFrameModel, redundantIfaceIndex uint8) (Transfer, bool, error) {
	if frame.sourceNodeID > NodeIDMax {
		// Anonymous transfers are stateless: copy, truncate, deliver.
		payloadSize := len(frame.payload)
		if sub.Extent < payloadSize {
			payloadSize = sub.Extent
		}
		buf, err := memory.allocate(payloadSize)
		if err != nil {
			return Transfer{}, false, ErrOutOfMemory
		}
		copy(buf, frame.payload[:payloadSize])
		return Transfer{
			Metadata:  rxInitTransferMetadataFromFrame(frame),
			Timestamp: frame.timestamp,
			Payload:   buf,
		}, true, nil
	}

	rxs := sub.sessions[frame.sourceNodeID]
	if rxs == nil && frame.startOfTransfer {
		rxs = newRxSession(frame, redundantIfaceIndex)
		sub.sessions[frame.sourceNodeID] = rxs
	}
	if rxs == nil {
		logDebugf(logger, "rx: dropping non-SOT frame from new source node %d", frame.sourceNodeID)
		return Transfer{}, false, nil
	}
	return rxs.update(memory, frame, redundantIfaceIndex, sub.TransferIDTimeout, sub.Extent)
}
