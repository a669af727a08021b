// Package artiecan provides the core frame model and transport backends for
// the Artie CAN protocol stack.
//
// It includes:
//   - A core Frame type with validation and binary marshaling helpers
//   - The Backend contract shared by every transport
//   - An in-process bounded queue backend for deterministic tests
//   - A TCP tunnel backend for multi-container integration tests
//   - A Linux SocketCAN backend and an MCP2515 SPI-controller backend
//
// The four overlaid protocols (RTACP, RPCACP, PSACP, BWACP) live in the
// acp subpackage.
package artiecan
