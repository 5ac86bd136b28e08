package network

// ByteSource is the non-blocking byte interface the protocol layers pull
// from. TryReadByte does not wait for data beyond a short poll (at most
// pollWindow for TCPSource): ok reports whether a byte was available at
// this instant. Write pushes the whole slice to the peer or fails.
//
// A source is owned by a single client instance and is not safe for
// concurrent use.
type ByteSource interface {
	TryReadByte() (b byte, ok bool, err error)
	Write(p []byte) error
	Close() error
}
