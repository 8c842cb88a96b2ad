package synchrophasor

// STAT bit layout (high to low): 2 bits measurement status; 1 bit
// sync-error; 1 bit sort-by-arrival vs sort-by-timestamp; 1 bit trigger
// detected; 1 bit configuration changed; 1 bit data modified; 3 bits
// time-quality code; 2 bits unlocked-time code; 4 bits trigger reason.
const (
	statMeasurementStatusShift = 14
	statMeasurementStatusMask  = 0x3

	statSyncErrorBit      = 1 << 13
	statSortByArrivalBit  = 1 << 12
	statTriggerDetectBit  = 1 << 11
	statConfigChangedBit  = 1 << 10
	statDataModifiedBit   = 1 << 9

	statTimeQualityShift = 6
	statTimeQualityMask  = 0x7

	statUnlockedTimeShift = 4
	statUnlockedTimeMask  = 0x3

	statTriggerReasonMask = 0xF
)

// Measurement status codes (STAT bits 15-14).
const (
	MeasurementOK = iota
	MeasurementError
	MeasurementTest
	MeasurementVError
)

// Unlocked-time codes (STAT bits 5-4).
const (
	UnlockedUnder10s = iota
	UnlockedUnder100s
	UnlockedUnder1000s
	UnlockedOver1000s
)

// StatInfo is the decoded form of a data frame sub-record's STAT word.
type StatInfo struct {
	MeasurementStatus uint8
	SyncError         bool
	SortByArrival     bool
	TriggerDetected   bool
	ConfigChanged     bool
	DataModified      bool
	TimeQuality       uint8
	UnlockedTime      uint8
	TriggerReason     uint8
}

// DecodeStat splits a raw STAT word into its component fields.
func DecodeStat(stat uint16) StatInfo {
	return StatInfo{
		MeasurementStatus: uint8((stat >> statMeasurementStatusShift) & statMeasurementStatusMask),
		SyncError:         stat&statSyncErrorBit != 0,
		SortByArrival:     stat&statSortByArrivalBit != 0,
		TriggerDetected:   stat&statTriggerDetectBit != 0,
		ConfigChanged:     stat&statConfigChangedBit != 0,
		DataModified:      stat&statDataModifiedBit != 0,
		TimeQuality:       uint8((stat >> statTimeQualityShift) & statTimeQualityMask),
		UnlockedTime:      uint8((stat >> statUnlockedTimeShift) & statUnlockedTimeMask),
		TriggerReason:     uint8(stat & statTriggerReasonMask),
	}
}

// EncodeStat packs StatInfo fields into a raw STAT word.
func EncodeStat(info StatInfo) uint16 {
	var stat uint16
	stat |= uint16(info.MeasurementStatus&statMeasurementStatusMask) << statMeasurementStatusShift
	if info.SyncError {
		stat |= statSyncErrorBit
	}
	if info.SortByArrival {
		stat |= statSortByArrivalBit
	}
	if info.TriggerDetected {
		stat |= statTriggerDetectBit
	}
	if info.ConfigChanged {
		stat |= statConfigChangedBit
	}
	if info.DataModified {
		stat |= statDataModifiedBit
	}
	stat |= uint16(info.TimeQuality&statTimeQualityMask) << statTimeQualityShift
	stat |= uint16(info.UnlockedTime&statUnlockedTimeMask) << statUnlockedTimeShift
	stat |= uint16(info.TriggerReason & statTriggerReasonMask)
	return stat
}
