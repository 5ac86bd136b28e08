package client

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/drake/tether/ansi"
	"github.com/drake/tether/network"
	"github.com/drake/tether/telnet"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultPort           = 23
	DefaultConnectTimeout = 10 * time.Second
	DefaultSocketTimeout  = 10 * time.Second
	DefaultPrompt         = `\$\s*$`
)

// regexCacheSize bounds the compiled prompt cache. Login flows swap the
// prompt several times per session, so recently used patterns stay hot.
const regexCacheSize = 64

// Config carries the connection parameters. The zero value of a field
// selects its default; see the field comments for the exceptions.
type Config struct {
	Host string
	Port int // 1..65535, 0 selects DefaultPort

	// ConnectTimeout bounds the dial. Zero selects DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// SocketTimeout is the per-byte read budget. Zero selects
	// DefaultSocketTimeout; negative disables the timeout entirely.
	SocketTimeout time.Duration

	// FullLineTimeout bounds how long an unterminated line may keep
	// accumulating before it is returned as-is. Zero disables it; use
	// SetFullLineTimeout(0) for the return-after-first-byte mode.
	FullLineTimeout time.Duration

	// Prompt is the regular expression that marks command completion.
	// Empty selects DefaultPrompt.
	Prompt string

	// PruneControlSequences strips ANSI escape and CSI sequences from
	// returned lines.
	PruneControlSequences bool

	// DrainAfterPrompt pulls whatever bytes are still pending after a
	// prompt match and appends them as extra lines.
	DrainAfterPrompt bool

	// Debug enables negotiation and line-level logging on Logger.
	Debug  bool
	Logger *slog.Logger
}

// Client is a Telnet client for scripted command execution: connect, log
// in, send a command, collect the response up to the prompt. One Client
// drives one connection and is not safe for concurrent use; independent
// instances are.
type Client struct {
	host            string
	port            int
	connectTimeout  time.Duration
	socketTimeout   time.Duration
	fullLineTimeout time.Duration // <0 disabled, 0 return after first byte
	prompt          *regexp.Regexp
	prune           bool
	drain           bool
	debug           bool
	logger          *slog.Logger

	src    network.ByteSource
	filter *telnet.Filter
	parser *ansi.Parser

	regexps *lru.Cache[string, *regexp.Regexp]

	// Line assembler state: the unfinished line and the arrival time of
	// its first byte, zero while the line is empty.
	line      bytes.Buffer
	lineStart time.Time
}

// New validates cfg and builds a disconnected client.
func New(cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: host must not be empty", ErrInvalidArgument)
	}
	port := cfg.Port
	if port == 0 {
		port = DefaultPort
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("%w: port %d out of range", ErrInvalidArgument, cfg.Port)
	}
	if cfg.ConnectTimeout < 0 {
		return nil, fmt.Errorf("%w: negative connect timeout", ErrInvalidArgument)
	}

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = DefaultConnectTimeout
	}
	socketTimeout := cfg.SocketTimeout
	switch {
	case socketTimeout == 0:
		socketTimeout = DefaultSocketTimeout
	case socketTimeout < 0:
		socketTimeout = 0 // unbounded
	}
	fullLine := cfg.FullLineTimeout
	if fullLine <= 0 {
		fullLine = -1 // disabled
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cache, err := lru.New[string, *regexp.Regexp](regexCacheSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnimplemented, err)
	}

	c := &Client{
		host:            cfg.Host,
		port:            port,
		connectTimeout:  connectTimeout,
		socketTimeout:   socketTimeout,
		fullLineTimeout: fullLine,
		prune:           cfg.PruneControlSequences,
		drain:           cfg.DrainAfterPrompt,
		debug:           cfg.Debug,
		logger:          logger,
		parser:          ansi.NewParser(),
		regexps:         cache,
	}

	prompt := cfg.Prompt
	if prompt == "" {
		prompt = DefaultPrompt
	}
	if err := c.SetPromptRegex(prompt); err != nil {
		return nil, err
	}
	return c, nil
}

// Connect resolves the host, dials it within the connect timeout and
// prepares the protocol machinery. It must be called before any I/O.
func (c *Client) Connect(ctx context.Context) error {
	host := c.host
	if net.ParseIP(host) == nil {
		addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrNameResolution, c.host, err)
		}
		if len(addrs) == 0 {
			return fmt.Errorf("%w: %q yielded no addresses", ErrNameResolution, c.host)
		}
		host = addrs[0].IP.String()
	}

	dialer := net.Dialer{Timeout: c.connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(c.port)))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	c.UseSource(network.NewTCPSource(conn))
	return nil
}

// UseSource attaches an already-open byte source instead of dialing. Tests
// run the whole client against a scripted source this way; callers with
// their own transport can too. Any previous source is abandoned, not closed.
func (c *Client) UseSource(src network.ByteSource) {
	c.src = src
	c.filter = telnet.NewFilter(src, c.debugLogger())
	c.line.Reset()
	c.lineStart = time.Time{}
}

// Disconnect closes the connection. It is idempotent; calling it while
// already disconnected is a no-op.
func (c *Client) Disconnect() error {
	if c.src == nil {
		return nil
	}
	src := c.src
	c.src = nil
	c.filter = nil
	if err := src.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", ErrUnlikely, err)
	}
	return nil
}

// Connected reports whether a source is attached.
func (c *Client) Connected() bool {
	return c.src != nil
}

// SendCommand writes cmd to the server, by default followed by CR LF.
// The bytes go out verbatim; callers pushing binary data through should
// escape it with telnet.EscapeIAC first.
func (c *Client) SendCommand(cmd string, addNewline bool) error {
	if c.src == nil {
		return fmt.Errorf("%w: not connected", ErrConnection)
	}
	payload := []byte(cmd)
	if addNewline {
		payload = append(payload, '\r', '\n')
	}
	if err := c.src.Write(payload); err != nil {
		return fmt.Errorf("%w: write: %v", ErrConnection, err)
	}
	return nil
}

// Exec sends cmd and collects the response lines up to the next prompt.
func (c *Client) Exec(cmd string) ([]string, error) {
	if err := c.SendCommand(cmd, true); err != nil {
		return nil, err
	}
	return c.WaitPrompt(c.drain)
}

// SetPrompt switches to a literal prompt string.
func (c *Client) SetPrompt(literal string) error {
	return c.SetPromptRegex(regexp.QuoteMeta(literal))
}

// SetPromptRegex switches the prompt to a regular expression. The prompt
// matches anywhere within the most recent line.
func (c *Client) SetPromptRegex(expr string) error {
	re, err := c.compile(expr)
	if err != nil {
		return fmt.Errorf("%w: prompt %q: %v", ErrInvalidArgument, expr, err)
	}
	c.prompt = re
	return nil
}

// Prompt returns the current prompt expression.
func (c *Client) Prompt() string {
	return c.prompt.String()
}

// SetSocketTimeout changes the per-byte read budget. Zero disables it.
func (c *Client) SetSocketTimeout(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%w: negative socket timeout", ErrInvalidArgument)
	}
	c.socketTimeout = d
	return nil
}

// SocketTimeout returns the per-byte read budget; zero means unbounded.
func (c *Client) SocketTimeout() time.Duration {
	return c.socketTimeout
}

// SetFullLineTimeout changes the full-line budget: negative disables it,
// zero returns a partial line as soon as its first byte has arrived.
func (c *Client) SetFullLineTimeout(d time.Duration) {
	c.fullLineTimeout = d
}

// FullLineTimeout returns the full-line budget; negative means disabled.
func (c *Client) FullLineTimeout() time.Duration {
	return c.fullLineTimeout
}

// SetPruneControlSequences toggles ANSI/CSI stripping of returned lines.
func (c *Client) SetPruneControlSequences(on bool) {
	c.prune = on
}

// PruneControlSequences reports whether stripping is enabled.
func (c *Client) PruneControlSequences() bool {
	return c.prune
}

// SetDrainAfterPrompt toggles draining of pending bytes after a match.
func (c *Client) SetDrainAfterPrompt(on bool) {
	c.drain = on
}

// DrainAfterPrompt reports whether post-match draining is enabled.
func (c *Client) DrainAfterPrompt() bool {
	return c.drain
}

// SetDebug toggles debug logging, including on a live connection.
func (c *Client) SetDebug(on bool) {
	c.debug = on
	if c.filter != nil {
		c.filter.SetLogger(c.debugLogger())
	}
}

func (c *Client) debugLogger() *slog.Logger {
	if c.debug {
		return c.logger
	}
	return nil
}

func (c *Client) compile(expr string) (*regexp.Regexp, error) {
	if re, ok := c.regexps.Get(expr); ok {
		return re, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	c.regexps.Add(expr, re)
	return re, nil
}
