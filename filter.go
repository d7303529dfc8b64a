// SPDX-FileCopyrightText: © 2026 cyphalgo contributors
// SPDX-License-Identifier: MIT

package cyphalcan

const (
	flagReserved23 = uint32(1) << 23
	flagReserved07 = uint32(1) << 7
)

// Filter is a hardware acceptance filter expressed as a CAN identifier and
// mask pair: a frame is accepted when (frame.ID & Mask) == (ExtendedCANID
// & Mask).
type Filter struct {
	ExtendedCANID uint32
	Mask          uint32
}

// FilterForSubject builds an acceptance filter matching every message
// transfer published on subjectID, from any node.
func FilterForSubject(subjectID uint16) Filter {
	return Filter{
		ExtendedCANID: uint32(subjectID) << offsetSubjectID,
		Mask:          flagServiceNotMessage | flagReserved07 | (uint32(SubjectIDMax) << offsetSubjectID),
	}
}

// FilterForService builds an acceptance filter matching service transfers
// (requests and responses) addressed to localNodeID on serviceID.
func FilterForService(serviceID uint16, localNodeID uint8) Filter {
	return Filter{
		ExtendedCANID: flagServiceNotMessage | (uint32(serviceID) << offsetServiceID) | (uint32(localNodeID) << offsetDstNodeID),
		Mask:          flagServiceNotMessage | flagReserved23 | (uint32(ServiceIDMax) << offsetServiceID) | (uint32(NodeIDMax) << offsetDstNodeID),
	}
}

// FilterForServices builds a coarser acceptance filter matching every
// service transfer addressed to localNodeID regardless of service-ID;
// useful when the hardware has too few filter slots to dedicate one per
// service.
func FilterForServices(localNodeID uint8) Filter {
	return Filter{
		ExtendedCANID: flagServiceNotMessage | (uint32(localNodeID) << offsetDstNodeID),
		Mask:          flagServiceNotMessage | flagReserved23 | (uint32(NodeIDMax) << offsetDstNodeID),
	}
}

// ConsolidateFilters merges two filters into one that accepts the union
// of what each would accept on its own, at the cost of also accepting
// some traffic neither original filter would have -- the standard
// technique for fitting more logical filters than a CAN controller has
// hardware slots for.
func ConsolidateFilters(a, b Filter) Filter {
	mask := a.Mask & b.Mask & ^(a.ExtendedCANID ^ b.ExtendedCANID)
	return Filter{
		ExtendedCANID: a.ExtendedCANID & mask,
		Mask:          mask,
	}
}
