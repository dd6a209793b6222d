package protocol

import "fmt"

// CommandID is a Spinel command identifier.
type CommandID uint32

const (
	CmdNoop              CommandID = 0
	CmdReset             CommandID = 1
	CmdPropValueGet      CommandID = 2
	CmdPropValueSet      CommandID = 3
	CmdPropValueInsert   CommandID = 4
	CmdPropValueRemove   CommandID = 5
	CmdPropValueIs       CommandID = 6
	CmdPropValueInserted CommandID = 7
	CmdPropValueRemoved  CommandID = 8
	CmdNetSave           CommandID = 9
	CmdNetClear          CommandID = 10
	CmdNetRecall         CommandID = 11
	CmdPeek              CommandID = 18
	CmdPeekRet           CommandID = 19
	CmdPoke              CommandID = 20
	CmdPropValueMultiGet CommandID = 21
	CmdPropValueMultiSet CommandID = 22
	CmdPropValuesAre     CommandID = 23
)

var commandNames = map[CommandID]string{
	CmdNoop:              "NOOP",
	CmdReset:             "RESET",
	CmdPropValueGet:      "PROP_VALUE_GET",
	CmdPropValueSet:      "PROP_VALUE_SET",
	CmdPropValueInsert:   "PROP_VALUE_INSERT",
	CmdPropValueRemove:   "PROP_VALUE_REMOVE",
	CmdPropValueIs:       "PROP_VALUE_IS",
	CmdPropValueInserted: "PROP_VALUE_INSERTED",
	CmdPropValueRemoved:  "PROP_VALUE_REMOVED",
	CmdNetSave:           "NET_SAVE",
	CmdNetClear:          "NET_CLEAR",
	CmdNetRecall:         "NET_RECALL",
	CmdPeek:              "PEEK",
	CmdPeekRet:           "PEEK_RET",
	CmdPoke:              "POKE",
	CmdPropValueMultiGet: "PROP_VALUE_MULTI_GET",
	CmdPropValueMultiSet: "PROP_VALUE_MULTI_SET",
	CmdPropValuesAre:     "PROP_VALUES_ARE",
}

// Known reports whether c is a command this host understands. Unknown
// commands still decode, carrying their raw payload.
func (c CommandID) Known() bool {
	_, ok := commandNames[c]
	return ok
}

// HasProperty reports whether c is followed by a property id on the wire.
func (c CommandID) HasProperty() bool {
	return c >= CmdPropValueGet && c <= CmdPropValueRemoved
}

func (c CommandID) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CMD_UNKNOWN(%d)", uint32(c))
}
