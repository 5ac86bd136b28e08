package network

import (
	"bytes"
	"io"
	"time"
)

type mockChunk struct {
	data  []byte
	after time.Duration // offset from the first read
}

// MockSource implements ByteSource for tests. It replays a scripted byte
// stream, optionally time-staged, and records everything written back, so a
// test can assert on negotiation replies without a real socket.
type MockSource struct {
	chunks   []mockChunk
	started  time.Time
	ci, bi   int
	writes   bytes.Buffer
	writeErr error
	eof      bool
}

// NewMockSource creates an empty scripted source.
func NewMockSource() *MockSource {
	return &MockSource{}
}

// Feed appends bytes that are available immediately.
func (m *MockSource) Feed(data []byte) *MockSource {
	return m.FeedAfter(0, data)
}

// FeedString appends string bytes that are available immediately.
func (m *MockSource) FeedString(s string) *MockSource {
	return m.FeedAfter(0, []byte(s))
}

// FeedAfter appends bytes that become available once d has elapsed from the
// first read attempt.
func (m *MockSource) FeedAfter(d time.Duration, data []byte) *MockSource {
	m.chunks = append(m.chunks, mockChunk{data: data, after: d})
	return m
}

// FinishWithEOF makes the source report io.EOF once the script is drained.
// Without it a drained source just reports "no byte available".
func (m *MockSource) FinishWithEOF() *MockSource {
	m.eof = true
	return m
}

// FailWrites makes every subsequent Write return err.
func (m *MockSource) FailWrites(err error) *MockSource {
	m.writeErr = err
	return m
}

// TryReadByte replays the script one byte at a time.
func (m *MockSource) TryReadByte() (byte, bool, error) {
	if m.started.IsZero() {
		m.started = time.Now()
	}
	for m.ci < len(m.chunks) {
		chunk := m.chunks[m.ci]
		if m.bi >= len(chunk.data) {
			m.ci++
			m.bi = 0
			continue
		}
		if time.Since(m.started) < chunk.after {
			return 0, false, nil
		}
		b := chunk.data[m.bi]
		m.bi++
		return b, true, nil
	}
	if m.eof {
		return 0, false, io.EOF
	}
	return 0, false, nil
}

// Write records the bytes for later inspection.
func (m *MockSource) Write(p []byte) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writes.Write(p)
	return nil
}

// Writes returns everything written to the source so far.
func (m *MockSource) Writes() []byte {
	return m.writes.Bytes()
}

// Close is a no-op for the mock.
func (m *MockSource) Close() error {
	return nil
}
