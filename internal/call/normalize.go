package call

// NormalizeStatus maps a backend status to the lifecycle event it implies,
// given the local state of this device. Pure function, no side effects.
//
// Returns ok=false when the status implies no event:
//   - voip_rollover is always ignored,
//   - connecting_sip only matters while this device is still ringing; once
//     this device is past Ringing it either caused the connecting state
//     itself or no longer cares that another device answered.
func NormalizeStatus(st Status, local State) (Event, bool) {
	switch st {
	case StatusInitializing:
		return EventCallDialing, true
	case StatusConnectingSIP:
		if local == StateRinging {
			return EventCallAnsweredByOthers, true
		}
		return EventNone, false
	case StatusCanceled:
		return EventCallCanceledByCaller, true
	case StatusVoIPRollover:
		return EventNone, false
	case StatusRejected:
		return EventCallRejected, true
	case StatusTimeoutOnlineSignal:
		return EventCallCanceledByCaller, true
	case StatusOpenedDoor:
		return EventOpenedDoor, true
	default:
		return EventNone, false
	}
}
