package telnet

import (
	"bytes"
	"log/slog"

	"github.com/drake/tether/network"
)

// filterState tracks where the NVT machine is between bytes.
type filterState int

const (
	stateDefault filterState = iota // passing user data
	stateCommand                    // inside an IAC sequence
)

// Filter demultiplexes the Telnet protocol out of a raw byte stream. It
// pulls bytes from a ByteSource one at a time, swallows IAC sequences,
// answers option negotiation on the same source, normalises CR LF to \n and
// hands everything else through as user data.
//
// The machine is interruptible: a partial IAC sequence or a lone CR stays
// pending across calls until the next byte shows up, so the stream can be
// fragmented at any boundary.
type Filter struct {
	src    network.ByteSource
	logger *slog.Logger

	state   filterState
	pending []byte       // bytes accumulated toward the current protocol event
	out     bytes.Buffer // data bytes ready for the caller
}

// NewFilter creates a filter reading from src. Negotiation events are logged
// at debug level; pass nil to discard them.
func NewFilter(src network.ByteSource, logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Filter{src: src, logger: logger}
}

// SetLogger swaps the negotiation logger; nil discards.
func (f *Filter) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	f.logger = logger
}

// Reset returns the machine to its initial state, dropping any pending
// event bytes and buffered output. The client does not call it: attaching
// a source builds a fresh filter instead.
func (f *Filter) Reset() {
	f.state = stateDefault
	f.pending = nil
	f.out.Reset()
}

// Next pops the next ready data byte, if any.
func (f *Filter) Next() (byte, bool) {
	if f.out.Len() == 0 {
		return 0, false
	}
	b, _ := f.out.ReadByte()
	return b, true
}

// Pump polls the source for one raw byte and runs it through the machine.
// consumed reports whether a byte was taken off the source; the byte may or
// may not have produced data retrievable via Next. A negotiation reply that
// cannot be written surfaces as the returned error.
func (f *Filter) Pump() (consumed bool, err error) {
	b, ok, err := f.src.TryReadByte()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return true, f.feed(b)
}

// feed advances the state machine by a single raw byte.
func (f *Filter) feed(b byte) error {
	switch f.state {
	case stateDefault:
		return f.feedDefault(b)
	case stateCommand:
		return f.feedCommand(b)
	}
	return nil
}

func (f *Filter) feedDefault(b byte) error {
	if len(f.pending) == 0 {
		switch b {
		case IAC, '\r':
			// Both need the following byte before we can decide.
			f.pending = append(f.pending, b)
		default:
			f.out.WriteByte(b)
		}
		return nil
	}

	switch f.pending[0] {
	case IAC:
		if b == IAC {
			// IAC IAC escapes a literal 0xFF data byte.
			f.out.WriteByte(IAC)
			f.pending = f.pending[:0]
			return nil
		}
		f.pending = append(f.pending, b)
		f.state = stateCommand
		return nil
	case '\r':
		f.pending = f.pending[:0]
		if b == '\n' {
			f.out.WriteByte('\n')
			return nil
		}
		// Bare CR: keep it and reprocess the follower as a fresh event.
		f.out.WriteByte('\r')
		return f.feedDefault(b)
	}
	return nil
}

func (f *Filter) feedCommand(b byte) error {
	f.pending = append(f.pending, b)

	if f.pending[1] == SB {
		// Subnegotiation runs until the two-byte IAC SE terminator.
		n := len(f.pending)
		if n >= 4 && f.pending[n-2] == IAC && f.pending[n-1] == SE {
			f.logger.Debug("telnet: subnegotiation dropped",
				"option", OptionName(f.pending[2]),
				"len", n-4)
			f.finishCommand()
		}
		return nil
	}

	if len(f.pending) < 3 {
		return nil
	}

	cmd, opt := f.pending[1], f.pending[2]
	defer f.finishCommand()

	switch cmd {
	case DO, DONT:
		return f.reply(WONT, opt, cmd)
	case WILL:
		return f.reply(DONT, opt, cmd)
	case WONT:
		f.logger.Debug("telnet: negotiation ignored",
			"command", CommandName(cmd), "option", OptionName(opt))
		return nil
	default:
		f.logger.Debug("telnet: unknown command ignored",
			"command", CommandName(cmd))
		return nil
	}
}

// reply answers an option offer on the same socket the data arrives on.
// The write happens before any byte after the triggering sequence is
// processed, which keeps negotiation ordered with respect to data.
func (f *Filter) reply(cmd, opt, inResponseTo byte) error {
	f.logger.Debug("telnet: negotiation reply",
		"received", CommandName(inResponseTo),
		"sent", CommandName(cmd),
		"option", OptionName(opt))
	return f.src.Write([]byte{IAC, cmd, opt})
}

func (f *Filter) finishCommand() {
	f.pending = f.pending[:0]
	f.state = stateDefault
}
