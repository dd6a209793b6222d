package schema

import "github.com/danmuck/spinelctl/internal/protocol"

type entry struct {
	id        protocol.PropertyID
	name      string
	signature string
}

// standard is the core Spinel property table.
var standard = []entry{
	{protocol.PropLastStatus, "LAST_STATUS", "i"},
	{protocol.PropProtocolVersion, "PROTOCOL_VERSION", "ii"},
	{protocol.PropNCPVersion, "NCP_VERSION", "U"},
	{protocol.PropInterfaceType, "INTERFACE_TYPE", "i"},
	{protocol.PropVendorID, "VENDOR_ID", "i"},
	{protocol.PropCaps, "CAPS", "A(i)"},
	{protocol.PropInterfaceCount, "INTERFACE_COUNT", "C"},
	{protocol.PropHWAddr, "HWADDR", "E"},
	{protocol.PropLock, "LOCK", "b"},
	{protocol.PropHostPowerState, "HOST_POWER_STATE", "C"},
	{protocol.PropMCUPowerState, "MCU_POWER_STATE", "C"},

	{protocol.PropPHYEnabled, "PHY_ENABLED", "b"},
	{protocol.PropPHYChan, "PHY_CHAN", "C"},
	{protocol.PropPHYChanSupported, "PHY_CHAN_SUPPORTED", "A(C)"},
	{protocol.PropPHYFreq, "PHY_FREQ", "L"},
	{protocol.PropPHYCCAThreshold, "PHY_CCA_THRESHOLD", "c"},
	{protocol.PropPHYTxPower, "PHY_TX_POWER", "c"},
	{protocol.PropPHYRSSI, "PHY_RSSI", "c"},
	{protocol.PropPHYRxSensitivity, "PHY_RX_SENSITIVITY", "c"},

	{protocol.PropMACScanState, "MAC_SCAN_STATE", "C"},
	{protocol.PropMACScanMask, "MAC_SCAN_MASK", "A(C)"},
	{protocol.PropMACScanPeriod, "MAC_SCAN_PERIOD", "S"},
	{protocol.PropMAC154LAddr, "MAC_15_4_LADDR", "E"},
	{protocol.PropMAC154SAddr, "MAC_15_4_SADDR", "S"},
	{protocol.PropMAC154PANID, "MAC_15_4_PANID", "S"},
	{protocol.PropMACRawStreamEnabled, "MAC_RAW_STREAM_ENABLED", "b"},
	{protocol.PropMACPromiscuousMode, "MAC_PROMISCUOUS_MODE", "C"},
	{protocol.PropMACEnergyScanResult, "MAC_ENERGY_SCAN_RESULT", "Cc"},

	{protocol.PropNetSaved, "NET_SAVED", "b"},
	{protocol.PropNetIfUp, "NET_IF_UP", "b"},
	{protocol.PropNetStackUp, "NET_STACK_UP", "b"},
	{protocol.PropNetRole, "NET_ROLE", "C"},
	{protocol.PropNetNetworkName, "NET_NETWORK_NAME", "U"},
	{protocol.PropNetXPANID, "NET_XPANID", "D"},
	{protocol.PropNetNetworkKey, "NET_NETWORK_KEY", "D"},
	{protocol.PropNetKeySequenceCounter, "NET_KEY_SEQUENCE_COUNTER", "L"},
	{protocol.PropNetPartitionID, "NET_PARTITION_ID", "L"},

	{protocol.PropStreamDebug, "STREAM_DEBUG", "D"},
	{protocol.PropStreamRaw, "STREAM_RAW", "dD"},
	{protocol.PropStreamNet, "STREAM_NET", "dD"},
	{protocol.PropStreamNetInsecure, "STREAM_NET_INSECURE", "dD"},
	{protocol.PropStreamLog, "STREAM_LOG", "UD"},
}

// Default returns a registry holding the standard property table.
func Default() *Registry {
	r := NewRegistry()
	for _, e := range standard {
		if err := r.Register(e.id, e.name, e.signature); err != nil {
			panic(err)
		}
	}
	return r
}
