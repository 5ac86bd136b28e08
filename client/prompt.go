package client

import (
	"fmt"
	"strings"
	"time"
)

// WaitPrompt accumulates lines until one matches the prompt expression and
// returns them, trailing newlines stripped. The matching line is the last
// element. With drain set, bytes still pending after the match are pulled
// off the connection and appended as extra lines.
func (c *Client) WaitPrompt(drain bool) ([]string, error) {
	var lines []string
	for {
		raw, err := c.nextLine(true)
		if err != nil {
			return lines, err
		}
		line := strings.TrimSuffix(string(raw), "\n")
		lines = append(lines, line)
		if c.prompt.MatchString(line) {
			break
		}
	}
	if drain {
		lines = append(lines, c.drainRemaining()...)
	}
	return lines, nil
}

// drainRemaining consumes the tail of the server's output after a prompt
// match and splits it into lines. It is bounded the same way a normal read
// is: the clock resets on every byte taken off the source, and draining
// stops once the socket timeout passes with nothing new. Errors here are
// not worth failing a matched prompt over; draining just stops.
func (c *Client) drainRemaining() []string {
	var buf []byte
	lastByte := time.Now()
	for {
		for {
			b, ok := c.filter.Next()
			if !ok {
				break
			}
			buf = append(buf, b)
		}
		consumed, err := c.filter.Pump()
		if err != nil {
			break
		}
		if consumed {
			lastByte = time.Now()
			continue
		}
		// With the timeout disabled there is no bound to wait out; take
		// what is already here and stop.
		if c.socketTimeout <= 0 {
			break
		}
		if time.Since(lastByte) >= c.socketTimeout {
			break
		}
	}
	if c.prune {
		c.parser.Parse(buf)
		buf = c.parser.Text()
	}
	if len(buf) == 0 {
		return nil
	}
	lines := strings.Split(string(buf), "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// Login drives a conventional username/password exchange: wait for the
// login prompt, send the user, wait for the password prompt, send the
// password, then wait for the shell prompt that was configured before the
// call. An empty loginPrompt or passPrompt skips that leg, for servers
// that only ask for one of the two. Any failure comes back wrapped in
// ErrLogin with the cause preserved.
func (c *Client) Login(user, pass, loginPrompt, passPrompt string) error {
	saved := c.prompt
	defer func() { c.prompt = saved }()

	if loginPrompt != "" {
		if err := c.SetPromptRegex(loginPrompt); err != nil {
			return fmt.Errorf("%w: %w", ErrLogin, err)
		}
		if _, err := c.WaitPrompt(false); err != nil {
			return fmt.Errorf("%w: waiting for login prompt: %w", ErrLogin, err)
		}
		if err := c.SendCommand(user, true); err != nil {
			return fmt.Errorf("%w: %w", ErrLogin, err)
		}
	}

	if passPrompt != "" {
		if err := c.SetPromptRegex(passPrompt); err != nil {
			return fmt.Errorf("%w: %w", ErrLogin, err)
		}
		if _, err := c.WaitPrompt(false); err != nil {
			return fmt.Errorf("%w: waiting for password prompt: %w", ErrLogin, err)
		}
		if err := c.SendCommand(pass, true); err != nil {
			return fmt.Errorf("%w: %w", ErrLogin, err)
		}
	}

	c.prompt = saved
	if _, err := c.WaitPrompt(false); err != nil {
		return fmt.Errorf("%w: waiting for shell prompt: %w", ErrLogin, err)
	}
	return nil
}
