// Package fpc is a local, connection-oriented IPC transport over
// Unix-domain SEQPACKET sockets. It delivers typed messages with
// optional file-descriptor attachments, correlates requests with
// replies (with timeouts and cancellation), streams unsolicited
// messages, and transparently moves oversized payloads out-of-line
// through anonymous shared memory.
//
// A connection is a pair of endpoints. Dial or a Listener produces an
// unstarted Endpoint; Start spawns its receive loop, after which
// Request, Send, Reply and Incoming are live. The wire format is
// host-endian and fixed-framed: frames never leave the machine and are
// never persisted.
//
//	ep, err := fpc.Dial("/run/app.sock", nil)
//	if err != nil { ... }
//	ep.Start()
//	defer ep.Stop()
//	reply, err := ep.Request(ctx, fpc.NewRequest(fpc.MsgPing, body), 5*time.Second)
package fpc
