// Package wire implements the on-the-wire representation of a call: the
// message envelope, the pluggable codecs that serialize it, and the binary
// frame protocol that carries it over TCP.
//
// Frame layout (fixed 14-byte header, then the body):
//
//	0      3  4  5  6         10        14
//	┌──────┬──┬──┬──┬─────────┬─────────┬───────────────┐
//	│magic │v │ct│mt│   seq   │ bodyLen │    body ...   │
//	│ rbn  │01│  │  │ uint32  │ uint32  │ bodyLen bytes │
//	└──────┴──┴──┴──┴─────────┴─────────┴───────────────┘
//
// The receiver reads the header first, then exactly bodyLen bytes, which
// delimits messages on the TCP byte stream.
package wire

// Message is the envelope for a single request or response.
//
//   - Request:  ServiceMethod set, Payload carries the serialized args.
//   - Response: Payload carries the serialized reply; Error is non-empty
//     when the remote handler failed.
type Message struct {
	ServiceMethod string // "Service.Method", e.g. "Arith.Add"
	Error         string
	Payload       []byte
}
