package protocol

import "fmt"

// PropertyID is a Spinel property identifier. Names and value signatures
// live in the schema descriptor table; the constants below cover the
// properties this host reads directly.
type PropertyID uint32

const (
	PropLastStatus      PropertyID = 0
	PropProtocolVersion PropertyID = 1
	PropNCPVersion      PropertyID = 2
	PropInterfaceType   PropertyID = 3
	PropVendorID        PropertyID = 4
	PropCaps            PropertyID = 5
	PropInterfaceCount  PropertyID = 6
	PropHWAddr          PropertyID = 8
	PropLock            PropertyID = 9
	PropHostPowerState  PropertyID = 12
	PropMCUPowerState   PropertyID = 13

	PropPHYEnabled       PropertyID = 0x20
	PropPHYChan          PropertyID = 0x21
	PropPHYChanSupported PropertyID = 0x22
	PropPHYFreq          PropertyID = 0x23
	PropPHYCCAThreshold  PropertyID = 0x24
	PropPHYTxPower       PropertyID = 0x25
	PropPHYRSSI          PropertyID = 0x26
	PropPHYRxSensitivity PropertyID = 0x27

	PropMACScanState        PropertyID = 0x30
	PropMACScanMask         PropertyID = 0x31
	PropMACScanPeriod       PropertyID = 0x32
	PropMAC154LAddr         PropertyID = 0x34
	PropMAC154SAddr         PropertyID = 0x35
	PropMAC154PANID         PropertyID = 0x36
	PropMACRawStreamEnabled PropertyID = 0x37
	PropMACPromiscuousMode  PropertyID = 0x38
	PropMACEnergyScanResult PropertyID = 0x39

	PropNetSaved              PropertyID = 0x40
	PropNetIfUp               PropertyID = 0x41
	PropNetStackUp            PropertyID = 0x42
	PropNetRole               PropertyID = 0x43
	PropNetNetworkName        PropertyID = 0x44
	PropNetXPANID             PropertyID = 0x45
	PropNetNetworkKey         PropertyID = 0x46
	PropNetKeySequenceCounter PropertyID = 0x47
	PropNetPartitionID        PropertyID = 0x48

	PropStreamDebug       PropertyID = 0x70
	PropStreamRaw         PropertyID = 0x71
	PropStreamNet         PropertyID = 0x72
	PropStreamNetInsecure PropertyID = 0x73
	PropStreamLog         PropertyID = 0x74
)

func (p PropertyID) String() string {
	return fmt.Sprintf("prop(0x%x)", uint32(p))
}
