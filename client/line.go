package client

import (
	"fmt"
	"time"
)

// GetLine returns the next line from the server and whether it matches the
// current prompt. The trailing \n, when present, is included in the
// returned bytes but excluded from the prompt match. With waitFull false
// the call returns a partial line as soon as the stream pauses instead of
// waiting out the full-line budget.
func (c *Client) GetLine(waitFull bool) (line []byte, matchesPrompt bool, err error) {
	line, err = c.nextLine(waitFull)
	if err != nil {
		return nil, false, err
	}
	return line, c.prompt.Match(trimNewline(line)), nil
}

// nextLine pulls bytes through the NVT filter until a \n completes the
// line or a timeout cuts it short.
//
// Two clocks run against a monotonic reference: the socket timeout resets
// on every byte taken off the source (protocol bytes included, so a long
// subnegotiation does not fake a dead peer), and the full-line timeout is
// anchored at the first byte of the current line.
func (c *Client) nextLine(waitFull bool) ([]byte, error) {
	if c.src == nil {
		return nil, fmt.Errorf("%w: not connected", ErrConnection)
	}

	lastByte := time.Now()
	for {
		// Drain whatever the filter already has before polling again.
		for {
			b, ok := c.filter.Next()
			if !ok {
				break
			}
			if c.line.Len() == 0 {
				c.lineStart = time.Now()
			}
			c.line.WriteByte(b)
			if b == '\n' {
				return c.takeLine(), nil
			}
		}

		consumed, err := c.filter.Pump()
		if err != nil {
			return nil, fmt.Errorf("%w: read: %v", ErrConnection, err)
		}
		if consumed {
			lastByte = time.Now()
			continue
		}

		// Nothing available at this instant.
		if c.line.Len() > 0 {
			if !waitFull {
				return c.takeLine(), nil
			}
			if c.fullLineTimeout >= 0 && time.Since(c.lineStart) >= c.fullLineTimeout {
				return c.takeLine(), nil
			}
		}
		if c.socketTimeout > 0 && time.Since(lastByte) >= c.socketTimeout {
			return nil, fmt.Errorf("%w: no data for %s", ErrTimeout, c.socketTimeout)
		}
	}
}

// takeLine hands out the accumulated line and resets the assembler.
func (c *Client) takeLine() []byte {
	line := append([]byte(nil), c.line.Bytes()...)
	c.line.Reset()
	c.lineStart = time.Time{}
	if c.prune {
		c.parser.Parse(line)
		line = c.parser.Text()
	}
	if c.debug {
		c.logger.Debug("telnet: line", "text", string(trimNewline(line)))
	}
	return line
}

func trimNewline(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\n' {
		return line[:n-1]
	}
	return line
}
