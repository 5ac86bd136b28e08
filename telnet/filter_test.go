package telnet

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/drake/tether/network"
)

// pumpAll drives the filter until the source reports nothing available,
// returning the produced data bytes.
func pumpAll(t *testing.T, f *Filter) []byte {
	t.Helper()
	var out []byte
	for {
		for {
			b, ok := f.Next()
			if !ok {
				break
			}
			out = append(out, b)
		}
		consumed, err := f.Pump()
		if err != nil {
			t.Fatalf("pump failed: %v", err)
		}
		if !consumed {
			return out
		}
	}
}

func TestFilterPassesPlainData(t *testing.T) {
	src := network.NewMockSource().FeedString("hello world")
	f := NewFilter(src, nil)

	out := pumpAll(t, f)
	if string(out) != "hello world" {
		t.Fatalf("unexpected output %q", out)
	}
	if len(src.Writes()) != 0 {
		t.Fatalf("unexpected writes %v", src.Writes())
	}
}

// Option offers are refused: DO/DONT answered with WONT, WILL with DONT,
// and none of the negotiation bytes reach the data stream.
func TestFilterRefusesOptions(t *testing.T) {
	src := network.NewMockSource().
		Feed([]byte{IAC, WILL, OptEcho, IAC, DO, OptSGA}).
		FeedString("$ ")
	f := NewFilter(src, nil)

	out := pumpAll(t, f)
	if string(out) != "$ " {
		t.Fatalf("unexpected output %q", out)
	}

	wantWrites := []byte{IAC, DONT, OptEcho, IAC, WONT, OptSGA}
	if !bytes.Equal(src.Writes(), wantWrites) {
		t.Fatalf("unexpected replies: want %v got %v", wantWrites, src.Writes())
	}
}

func TestFilterWontNeedsNoReply(t *testing.T) {
	src := network.NewMockSource().
		Feed([]byte{IAC, WONT, OptEcho}).
		FeedString("ok")
	f := NewFilter(src, nil)

	out := pumpAll(t, f)
	if string(out) != "ok" {
		t.Fatalf("unexpected output %q", out)
	}
	if len(src.Writes()) != 0 {
		t.Fatalf("unexpected writes %v", src.Writes())
	}
}

// IAC IAC in the stream is an escaped literal 0xFF data byte.
func TestFilterIACEscape(t *testing.T) {
	src := network.NewMockSource().
		Feed([]byte{'A', IAC, IAC, 'B', '\r', '\n'}).
		FeedString("$ ")
	f := NewFilter(src, nil)

	out := pumpAll(t, f)
	want := []byte{'A', 0xFF, 'B', '\n', '$', ' '}
	if !bytes.Equal(out, want) {
		t.Fatalf("unexpected output: want %v got %v", want, out)
	}
}

func TestFilterNormalisesCRLF(t *testing.T) {
	src := network.NewMockSource().FeedString("one\r\ntwo\r\n")
	f := NewFilter(src, nil)

	out := pumpAll(t, f)
	if string(out) != "one\ntwo\n" {
		t.Fatalf("unexpected output %q", out)
	}
}

// A bare CR stays in the stream and its follower is reprocessed as a fresh
// event, so CR IAC ... still negotiates.
func TestFilterBareCR(t *testing.T) {
	src := network.NewMockSource().Feed([]byte{'X', '\r', 'Y', '\n'})
	f := NewFilter(src, nil)

	out := pumpAll(t, f)
	if string(out) != "X\rY\n" {
		t.Fatalf("unexpected output %q", out)
	}

	src = network.NewMockSource().Feed([]byte{'\r', IAC, DO, OptNAWS, 'Z'})
	f = NewFilter(src, nil)
	out = pumpAll(t, f)
	if string(out) != "\rZ" {
		t.Fatalf("unexpected output after CR IAC: %q", out)
	}
	wantWrites := []byte{IAC, WONT, OptNAWS}
	if !bytes.Equal(src.Writes(), wantWrites) {
		t.Fatalf("unexpected replies: want %v got %v", wantWrites, src.Writes())
	}
}

// Subnegotiation bodies are consumed whole and never surface as data.
func TestFilterDropsSubnegotiation(t *testing.T) {
	script := []byte{IAC, SB, OptTerminalType, 0}
	script = append(script, []byte("xterm")...)
	script = append(script, IAC, SE)
	script = append(script, []byte("ok\n$ ")...)

	src := network.NewMockSource().Feed(script)
	f := NewFilter(src, nil)

	out := pumpAll(t, f)
	if string(out) != "ok\n$ " {
		t.Fatalf("unexpected output %q", out)
	}
}

// Commands outside the negotiation set are consumed and ignored; the
// machine always takes a full three-byte sequence before deciding.
func TestFilterIgnoresUnknownCommand(t *testing.T) {
	src := network.NewMockSource().Feed([]byte{IAC, GA, 'Z', 'Q'})
	f := NewFilter(src, nil)

	out := pumpAll(t, f)
	if string(out) != "Q" {
		t.Fatalf("unexpected output %q", out)
	}
}

// Chunk boundaries must not matter: an IAC sequence split across arbitrary
// delivery gaps produces the same output and replies as a single delivery.
func TestFilterStreamingIdentity(t *testing.T) {
	script := []byte{'a', IAC, WILL, OptEcho, '\r', '\n', IAC, IAC, 'b'}

	whole := network.NewMockSource().Feed(script)
	wf := NewFilter(whole, nil)
	wantOut := pumpAll(t, wf)
	wantWrites := append([]byte(nil), whole.Writes()...)

	for cut := 1; cut < len(script); cut++ {
		src := network.NewMockSource().
			Feed(script[:cut]).
			FeedAfter(10*time.Millisecond, script[cut:])
		f := NewFilter(src, nil)

		var out []byte
		deadline := time.Now().Add(time.Second)
		for len(out) < len(wantOut) && time.Now().Before(deadline) {
			out = append(out, pumpAll(t, f)...)
		}
		if !bytes.Equal(out, wantOut) {
			t.Fatalf("cut %d: want output %v got %v", cut, wantOut, out)
		}
		if !bytes.Equal(src.Writes(), wantWrites) {
			t.Fatalf("cut %d: want writes %v got %v", cut, wantWrites, src.Writes())
		}
	}
}

// A reply that cannot be written is fatal for the read operation.
func TestFilterReplyWriteFailure(t *testing.T) {
	boom := errors.New("boom")
	src := network.NewMockSource().
		Feed([]byte{IAC, DO, OptEcho}).
		FailWrites(boom)
	f := NewFilter(src, nil)

	var err error
	for i := 0; i < 3 && err == nil; i++ {
		_, err = f.Pump()
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected write failure, got %v", err)
	}
}

func TestFilterReset(t *testing.T) {
	src := network.NewMockSource().Feed([]byte{IAC})
	f := NewFilter(src, nil)
	pumpAll(t, f)

	f.Reset()
	src2 := network.NewMockSource().FeedString("data")
	f2 := NewFilter(src2, nil)
	if out := pumpAll(t, f2); string(out) != "data" {
		t.Fatalf("unexpected output %q", out)
	}
	// The reset filter must not carry the pending IAC into new input.
	if f.state != stateDefault || len(f.pending) != 0 {
		t.Fatalf("filter not reset: state=%v pending=%v", f.state, f.pending)
	}
}

func TestEscapeIAC(t *testing.T) {
	in := []byte{'a', IAC, 'b', IAC, IAC}
	want := []byte{'a', IAC, IAC, 'b', IAC, IAC, IAC, IAC}
	if got := EscapeIAC(in); !bytes.Equal(got, want) {
		t.Fatalf("want %v got %v", want, got)
	}
}

func TestNames(t *testing.T) {
	if got := CommandName(WILL); got != "WILL" {
		t.Errorf("CommandName(WILL) = %q", got)
	}
	if got := OptionName(OptLinemode); got != "Linemode" {
		t.Errorf("OptionName(Linemode) = %q", got)
	}
	if got := CommandName(200); got != "200" {
		t.Errorf("CommandName(200) = %q", got)
	}
	if got := OptionName(99); got != "99" {
		t.Errorf("OptionName(99) = %q", got)
	}
}
