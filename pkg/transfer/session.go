package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/google/uuid"

	"github.com/rescp17/lanTFTP/pkg/packet"
)

// Progress is reported after every acknowledged block.
type Progress struct {
	SessionID string
	Block     uint16
	Blocks    int
	Bytes     int64
	Total     int64 // -1 when unknown
}

// Stats is a point-in-time copy of a session's counters.
type Stats struct {
	ID          string
	Name        string
	Peer        string
	State       State
	Block       uint16
	Blocks      int
	Bytes       int64
	Retransmits int
	Started     time.Time
	Duration    time.Duration
	Err         error
}

type Option func(*Session)

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

func WithProgress(fn func(Progress)) Option {
	return func(s *Session) { s.progress = fn }
}

// WithTotal sets the expected size reported in Progress.
func WithTotal(n int64) Option {
	return func(s *Session) { s.total = n }
}

// WithPeerBinding makes the session learn the peer's port from the first
// reply coming from the peer's host. Initiators need this because a server
// answers from a fresh port, not the one the request was sent to.
func WithPeerBinding() Option {
	return func(s *Session) { s.unbound = true }
}

// Session drives one file transfer over a UDP conversation with a single peer.
// It is not safe to run more than one operation on a Session.
type Session struct {
	ID   string
	Name string

	conn     net.PacketConn
	cfg      *Config
	log      *slog.Logger
	progress func(Progress)
	buf      []byte

	mu          sync.Mutex
	peer        net.Addr
	unbound     bool
	state       State
	err         error
	block       uint16
	blocks      int
	bytes       int64
	total       int64
	retransmits int
	started     time.Time
	finished    time.Time
}

// NewSession binds a session to conn and peer. The caller owns conn.
func NewSession(conn net.PacketConn, peer net.Addr, cfg *Config, opts ...Option) (*Session, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	s := &Session{
		ID:    uuid.NewString(),
		Name:  petname.Generate(2, "-"),
		conn:  conn,
		peer:  peer,
		cfg:   cfg,
		log:   slog.Default(),
		total: -1,
		// one spare byte so oversized datagrams are detected instead of truncated
		buf: make([]byte, packet.MaxDatagramSize+1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("session", s.Name)
	return s, nil
}

// ServeRead answers a read request: DATA blocks from src until a short block is acknowledged.
func (s *Session) ServeRead(ctx context.Context, src io.Reader) error {
	return s.run(ctx, StateSending, func() error {
		return s.sendBlocks(ctx, src)
	})
}

// ServeWrite answers a write request with ACK 0 and stores the DATA blocks that follow in dst.
func (s *Session) ServeWrite(ctx context.Context, dst io.Writer) error {
	return s.run(ctx, StateReceiving, func() error {
		return s.receiveBlocks(ctx, packet.MustEncode(packet.Ack{Block: 0}), dst)
	})
}

// Get sends a read request for filename and writes the received file to dst.
func (s *Session) Get(ctx context.Context, filename string, dst io.Writer) error {
	req, err := packet.Encode(packet.ReadRequest{Filename: filename, Mode: packet.ModeOctet})
	if err != nil {
		return err
	}
	return s.run(ctx, StateReceiving, func() error {
		return s.receiveBlocks(ctx, req, dst)
	})
}

// Put sends a write request for filename, waits for ACK 0 and then sends src.
func (s *Session) Put(ctx context.Context, filename string, src io.Reader) error {
	req, err := packet.Encode(packet.WriteRequest{Filename: filename, Mode: packet.ModeOctet})
	if err != nil {
		return err
	}
	return s.run(ctx, StateAwaitingInitialAck, func() error {
		err := s.exchange(ctx, req, func(d packet.Datagram) (bool, error) {
			ack, ok := d.(packet.Ack)
			if !ok {
				return false, unexpected(d)
			}
			if ack.Block != 0 {
				return false, violation("ACK %d while awaiting ACK 0", ack.Block)
			}
			return true, nil
		})
		if err != nil {
			return err
		}
		s.transition(StateSending)
		return s.sendBlocks(ctx, src)
	})
}

func (s *Session) run(ctx context.Context, initial State, body func() error) error {
	s.mu.Lock()
	s.started = time.Now()
	s.mu.Unlock()
	s.transition(initial)

	// Unblock a pending read as soon as the context ends.
	stop := context.AfterFunc(ctx, func() {
		s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	err := body()
	s.finish(err)
	return err
}

func (s *Session) sendBlocks(ctx context.Context, src io.Reader) error {
	chunk := make([]byte, s.cfg.BlockSize)
	block := uint16(1)
	for {
		n, err := io.ReadFull(src, chunk)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return s.abort(&StorageError{Op: "read", Err: err})
		}
		pkt, err := packet.Encode(packet.Data{Block: block, Payload: chunk[:n]})
		if err != nil {
			return err
		}

		s.setBlock(block)
		err = s.exchange(ctx, pkt, func(d packet.Datagram) (bool, error) {
			ack, ok := d.(packet.Ack)
			if !ok {
				return false, unexpected(d)
			}
			switch ack.Block {
			case block:
				return true, nil
			case block - 1:
				// Resending here would double every later block.
				s.log.Debug("ignoring duplicate ACK", "block", ack.Block)
				return false, nil
			default:
				return false, violation("ACK %d while awaiting ACK %d", ack.Block, block)
			}
		})
		if err != nil {
			return err
		}

		s.advance(n)
		if n < s.cfg.BlockSize {
			return nil
		}
		block++
	}
}

func (s *Session) receiveBlocks(ctx context.Context, first []byte, dst io.Writer) error {
	expected := uint16(1)
	reply := first
	for {
		var data packet.Data
		err := s.exchange(ctx, reply, func(d packet.Datagram) (bool, error) {
			p, ok := d.(packet.Data)
			if !ok {
				return false, unexpected(d)
			}
			switch {
			case p.Block == expected:
				data = p
				return true, nil
			case p.Block == expected-1 && expected != 1:
				// Our last ACK was lost. Acknowledge again, do not store twice.
				s.log.Debug("re-acknowledging duplicate DATA", "block", p.Block)
				return false, s.write(reply)
			default:
				return false, violation("DATA %d while expecting %d", p.Block, expected)
			}
		})
		if err != nil {
			return err
		}

		s.setBlock(expected)
		if _, err := dst.Write(data.Payload); err != nil {
			return s.abort(&StorageError{Op: "write", Err: err})
		}
		s.advance(len(data.Payload))

		reply = packet.MustEncode(packet.Ack{Block: expected})
		if data.IsFinal() {
			return s.write(reply)
		}
		expected++
	}
}

// exchange transmits pkt and waits for a reply accepted by handle,
// retransmitting pkt on timeout as the retry policy allows.
func (s *Session) exchange(ctx context.Context, pkt []byte, handle func(packet.Datagram) (bool, error)) error {
	if err := s.write(pkt); err != nil {
		return err
	}
	for attempt := 0; ; attempt++ {
		err := s.await(ctx, time.Now().Add(s.cfg.waitFor(attempt)), handle)
		if !errors.Is(err, ErrTimeout) {
			return err
		}
		if !s.cfg.Retry.CanRetry(attempt) {
			if attempt > 0 {
				return fmt.Errorf("%w after %d retransmissions", ErrTimeout, attempt)
			}
			return err
		}

		s.mu.Lock()
		s.retransmits++
		block := s.block
		s.mu.Unlock()
		s.log.Debug("retransmitting", "block", block, "attempt", attempt+1)

		if err := s.write(pkt); err != nil {
			return err
		}
	}
}

// await reads datagrams until handle accepts one, the deadline passes, or the transfer fails.
// Datagrams from anyone but the session peer are dropped without a reply.
func (s *Session) await(ctx context.Context, deadline time.Time, handle func(packet.Datagram) (bool, error)) error {
	for {
		if err := s.conn.SetReadDeadline(deadline); err != nil {
			return err
		}
		// Checked after the deadline is set so a cancellation cannot be overwritten.
		if err := ctx.Err(); err != nil {
			return s.abort(fmt.Errorf("transfer canceled: %w", err))
		}
		n, addr, err := s.conn.ReadFrom(s.buf)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return s.abort(fmt.Errorf("transfer canceled: %w", ctxErr))
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return ErrTimeout
			}
			return err
		}

		if !s.fromPeer(addr) {
			s.log.Debug("discarding datagram from unknown source", "source", addr.String())
			continue
		}
		if n > packet.MaxDatagramSize {
			return s.abort(violation("datagram of %d bytes exceeds %d", n, packet.MaxDatagramSize))
		}

		d, err := packet.Decode(s.buf[:n])
		if err != nil {
			return s.abort(err)
		}
		if e, ok := d.(packet.Error); ok {
			return &PeerError{Code: e.Code, Message: e.Message}
		}

		done, err := handle(d)
		if err != nil {
			return s.abort(err)
		}
		if done {
			return nil
		}
	}
}

// abort tells the peer why the transfer is ending and returns err.
// Peer errors and timeouts are not answered.
func (s *Session) abort(err error) error {
	var pe *PeerError
	if errors.As(err, &pe) || errors.Is(err, ErrTimeout) {
		return err
	}
	b, encErr := packet.Encode(ErrorPacket(err))
	if encErr != nil {
		return err
	}
	if werr := s.write(b); werr != nil {
		s.log.Debug("failed to send ERROR to peer", "error", werr)
	}
	return err
}

func (s *Session) write(b []byte) error {
	_, err := s.conn.WriteTo(b, s.Peer())
	return err
}

func (s *Session) fromPeer(addr net.Addr) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unbound {
		if !sameHost(addr, s.peer) {
			return false
		}
		s.peer = addr
		s.unbound = false
		return true
	}
	return sameAddr(addr, s.peer)
}

func (s *Session) transition(next State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.CanTransitionTo(next) {
		s.log.Warn("invalid state transition", "from", s.state, "to", next)
	}
	s.state = next
}

func (s *Session) setBlock(block uint16) {
	s.mu.Lock()
	s.block = block
	s.mu.Unlock()
}

func (s *Session) advance(n int) {
	s.mu.Lock()
	s.blocks++
	s.bytes += int64(n)
	p := Progress{SessionID: s.ID, Block: s.block, Blocks: s.blocks, Bytes: s.bytes, Total: s.total}
	s.mu.Unlock()

	s.log.Debug("block acknowledged", "block", p.Block, "size", n)
	if s.progress != nil {
		s.progress(p)
	}
}

func (s *Session) finish(err error) {
	if err != nil {
		s.transition(StateFailed)
	} else {
		s.transition(StateDone)
	}

	s.mu.Lock()
	s.finished = time.Now()
	s.err = err
	s.mu.Unlock()

	st := s.Stats()
	if err != nil {
		s.log.Warn("transfer aborted",
			"reason", Reason(err),
			"error", err,
			"block", st.Block,
			"bytes", st.Bytes)
		return
	}
	s.log.Info("transfer complete",
		"blocks", st.Blocks,
		"bytes", st.Bytes,
		"retransmits", st.Retransmits,
		"duration", st.Duration)
}

// Peer is the address replies are sent to.
func (s *Session) Peer() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	end := s.finished
	if end.IsZero() {
		end = time.Now()
	}
	var d time.Duration
	if !s.started.IsZero() {
		d = end.Sub(s.started)
	}
	return Stats{
		ID:          s.ID,
		Name:        s.Name,
		Peer:        s.peer.String(),
		State:       s.state,
		Block:       s.block,
		Blocks:      s.blocks,
		Bytes:       s.bytes,
		Retransmits: s.retransmits,
		Started:     s.started,
		Duration:    d,
		Err:         s.err,
	}
}

func unexpected(d packet.Datagram) error {
	return violation("unexpected %s", d.Opcode())
}

func sameAddr(a, b net.Addr) bool {
	ua, okA := a.(*net.UDPAddr)
	ub, okB := b.(*net.UDPAddr)
	if okA && okB {
		return ua.Port == ub.Port && ua.IP.Equal(ub.IP)
	}
	return a.String() == b.String()
}

func sameHost(a, b net.Addr) bool {
	ua, okA := a.(*net.UDPAddr)
	ub, okB := b.(*net.UDPAddr)
	if okA && okB {
		return ua.IP.Equal(ub.IP)
	}
	ha, _, errA := net.SplitHostPort(a.String())
	hb, _, errB := net.SplitHostPort(b.String())
	return errA == nil && errB == nil && ha == hb
}
