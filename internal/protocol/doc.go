// Package protocol owns the Spinel command layer.
//
// Ownership boundary:
// - header byte layout (flag, interface id, transaction id)
// - command, property and status identifiers
// - command frame encode/decode
//
// HDLC-lite framing lives in frame/, property value packing in pack/,
// descriptor tables in schema/ and transaction correlation in session/.
package protocol
