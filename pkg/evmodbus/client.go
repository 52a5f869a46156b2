package evmodbus

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/simonvetter/modbus"
)

// ConnState is the Modbus Client's connection state machine:
// Disconnected -> Connecting -> Connected -> Disconnected.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	default:
		return "Disconnected"
	}
}

var backoffSequence = []time.Duration{
	500 * time.Millisecond,
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
}

// Instrument records per-call latency, generalised from
// pkg/sunspec_modbus's ModbusInstrument/RecordTimer.
type Instrument struct {
	RecordTime func(op string, d time.Duration)
}

func recordTimer(op string, instruments []Instrument) func() {
	if len(instruments) == 0 {
		return func() {}
	}
	start := time.Now()
	return func() {
		d := time.Since(start)
		for i := range instruments {
			instruments[i].RecordTime(op, d)
		}
	}
}

// Config is the connection-level configuration for a Client.
type Config struct {
	Host               string
	Port               uint
	SocketSlaveID      uint8
	StationSlaveID     uint8
	ConnectTimeout     time.Duration
	OperationTimeout   time.Duration
	Instruments        []Instrument
}

func DefaultConfig() Config {
	return Config{
		SocketSlaveID:    1,
		StationSlaveID:   200,
		ConnectTimeout:   5 * time.Second,
		OperationTimeout: 3 * time.Second,
	}
}

// Client owns at most one live TCP connection to the charger, multiplexing
// two logical unit-ids (socket and station slave) over it, and implements
// the backoff sequence with reset on a successful request. A mutex
// serialises all calls: concurrent callers wait their turn on the one
// connection, matching original_source/src/modbus.rs's single
// Option<Context> design.
type Client struct {
	cfg Config

	mu        sync.Mutex
	state     ConnState
	conn      *modbus.ModbusClient
	backoffAt int
}

func NewClient(cfg Config) *Client {
	return &Client{cfg: cfg, state: Disconnected}
}

func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect establishes the TCP connection if not already connected.
//
// ClientConfiguration.Timeout is simonvetter/modbus's per-request deadline
// (it is applied via SetDeadline before every read/write on the
// transport), not a connect timeout, so it is fed OperationTimeout here.
// The library itself hardcodes its TCP dial timeout at 5s with no
// configuration hook, so ConnectTimeout is enforced on our side instead:
// Open() runs in a goroutine and is abandoned (reported as a failed
// connect) if it doesn't return within ConnectTimeout.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Connected {
		return nil
	}
	c.state = Connecting
	conn, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s:%d", c.cfg.Host, c.cfg.Port),
		Timeout: c.cfg.OperationTimeout,
	})
	if err != nil {
		c.state = Disconnected
		return newTransportErr("connect", err)
	}

	openErr := make(chan error, 1)
	go func() { openErr <- conn.Open() }()

	select {
	case err := <-openErr:
		if err != nil {
			c.state = Disconnected
			return newTransportErr("open", err)
		}
	case <-time.After(c.cfg.ConnectTimeout):
		c.state = Disconnected
		return newTransportErr("open", fmt.Errorf("connect timed out after %s", c.cfg.ConnectTimeout))
	}

	c.conn = conn
	c.state = Connected
	return nil
}

// Disconnect closes the connection if open. It is idempotent.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnectLocked()
}

func (c *Client) disconnectLocked() error {
	if c.conn == nil {
		c.state = Disconnected
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.state = Disconnected
	return err
}

// nextBackoff returns the wait before the next reconnection attempt and
// advances the sequence; it does not reset on its own (resetBackoff and
// every successful ReadHolding/WriteMultiple do).
func (c *Client) nextBackoff() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.backoffAt
	if idx >= len(backoffSequence) {
		idx = len(backoffSequence) - 1
	}
	d := backoffSequence[idx]
	if c.backoffAt < len(backoffSequence)-1 {
		c.backoffAt++
	}
	return d
}

func (c *Client) resetBackoff() {
	c.mu.Lock()
	c.backoffAt = 0
	c.mu.Unlock()
}

// NextBackoff exposes the backoff delay for a caller's retry loop. The
// Modbus actor does not call it: it reconnects at the start of the next
// poll after a failure, without waiting out a backoff delay.
func (c *Client) NextBackoff() time.Duration { return c.nextBackoff() }

// ReadHolding reads count words starting at address on the given unit-id.
func (c *Client) ReadHolding(unit uint8, address, count uint16) ([]uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer recordTimer("ReadHolding", c.cfg.Instruments)()

	if c.state != Connected || c.conn == nil {
		return nil, newTransportErr("read_holding", fmt.Errorf("not connected"))
	}
	if err := c.conn.SetUnitId(unit); err != nil {
		c.failLocked()
		return nil, newTransportErr("set_unit_id", err)
	}
	words, err := c.conn.ReadRegisters(address, count, modbus.HOLDING_REGISTER)
	if err != nil {
		c.failLocked()
		return nil, classifyErr("read_holding", err)
	}
	c.backoffAt = 0
	return words, nil
}

// WriteMultiple writes words starting at address on the given unit-id.
func (c *Client) WriteMultiple(unit uint8, address uint16, words []uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer recordTimer("WriteMultiple", c.cfg.Instruments)()

	if c.state != Connected || c.conn == nil {
		return newTransportErr("write_multiple", fmt.Errorf("not connected"))
	}
	if err := c.conn.SetUnitId(unit); err != nil {
		c.failLocked()
		return newTransportErr("set_unit_id", err)
	}
	if err := c.conn.WriteRegisters(address, words); err != nil {
		c.failLocked()
		return classifyErr("write_multiple", err)
	}
	c.backoffAt = 0
	return nil
}

// failLocked closes the connection and marks it Disconnected; caller must
// hold c.mu. Matches spec's "on any error the connection is closed and
// marked Disconnected".
func (c *Client) failLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.state = Disconnected
}

func newTransportErr(op string, err error) error {
	return &ClientError{Op: op, Err: err, Timeout: false}
}

// classifyErr maps a simonvetter/modbus error into a Transport/Timeout
// flavoured ClientError; the caller (collector/actor) further maps this
// into domain.ErrorKind. Matched by message substring, the same heuristic
// original_source/src/modbus.rs's is_connection_error uses, since the
// underlying library does not export a dedicated timeout sentinel for
// every failure path.
func classifyErr(op string, err error) error {
	msg := err.Error()
	timeout := strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") || strings.Contains(msg, "deadline")
	return &ClientError{Op: op, Err: err, Timeout: timeout}
}

// ClientError is the error type returned by Client's methods. Timeout
// distinguishes a request timeout from a generic transport failure.
type ClientError struct {
	Op      string
	Err     error
	Timeout bool
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("evmodbus: %s: %v", e.Op, e.Err)
}

func (e *ClientError) Unwrap() error { return e.Err }
