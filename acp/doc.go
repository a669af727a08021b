// Package acp implements the four protocols overlaid on the Artie CAN
// bus:
//
//   - RTACP: unicast/broadcast short messages with optional acknowledgment
//   - RPCACP: synchronous/asynchronous remote procedure calls
//   - PSACP: topic-addressed publish/subscribe at two priority tiers
//   - BWACP: large block writes with READY/DATA/REPEAT frames
//
// Each layer packs messages into 29-bit extended identifiers and 0-8 byte
// payloads, applying byte stuffing and CRCs where its wire format calls
// for them, and hands frames to the backend owned by an artiecan.Node.
// All buffers are fixed upper-bound arrays; nothing on the send/receive
// path touches the heap.
package acp
