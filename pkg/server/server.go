package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"golang.org/x/sync/errgroup"

	"github.com/rescp17/lanTFTP/internal/audit"
	"github.com/rescp17/lanTFTP/pkg/discovery"
	"github.com/rescp17/lanTFTP/pkg/fileInfo"
	"github.com/rescp17/lanTFTP/pkg/packet"
	"github.com/rescp17/lanTFTP/pkg/storage"
	"github.com/rescp17/lanTFTP/pkg/transfer"
)

const (
	opRead  = "read"
	opWrite = "write"
)

type Option func(*Server)

// WithBackend serves from b instead of a directory at Config.Root.
func WithBackend(b storage.Backend) Option {
	return func(s *Server) { s.backend = b }
}

// WithJournal records every finished transfer in j.
func WithJournal(j *audit.Journal) Option {
	return func(s *Server) { s.journal = j }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithAnnouncer replaces the mDNS adapter used when Config.Announce is set.
func WithAnnouncer(a discovery.Adapter) Option {
	return func(s *Server) { s.announcer = a }
}

// Server answers read and write requests arriving on one listening socket.
// Each accepted request is served on its own socket by its own goroutine.
type Server struct {
	cfg       *Config
	backend   storage.Backend
	journal   *audit.Journal
	announcer discovery.Adapter
	registry  *transfer.Registry
	log       *slog.Logger
}

func New(cfg *Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}

	s := &Server{
		cfg:       cfg,
		registry:  transfer.NewRegistry(),
		announcer: &discovery.MDNSAdapter{},
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.backend == nil {
		dir, err := storage.NewDir(cfg.Root)
		if err != nil {
			return nil, err
		}
		s.backend = dir
	}
	if s.journal == nil && cfg.HistoryPath != "" {
		j, err := audit.Open(cfg.HistoryPath)
		if err != nil {
			return nil, err
		}
		s.journal = j
	}
	return s, nil
}

// Registry exposes the sessions currently being served.
func (s *Server) Registry() *transfer.Registry { return s.registry }

// ListenAndServe listens on Config.Addr and serves until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	defer conn.Close()
	return s.Serve(ctx, conn)
}

// Serve reads requests from conn until ctx is canceled, then waits for running
// transfers to end. A failed transfer never stops the loop.
func (s *Server) Serve(ctx context.Context, conn net.PacketConn) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrentTransfers)

	// The announcement also ends when the read loop fails.
	actx, cancelAnnounce := context.WithCancel(ctx)
	defer cancelAnnounce()
	var announce sync.WaitGroup
	if s.cfg.Announce && s.announcer != nil {
		announce.Add(1)
		go func() {
			defer announce.Done()
			s.announce(actx, conn.LocalAddr())
		}()
	}

	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	s.log.Info("TFTP server listening", "addr", conn.LocalAddr().String(), "root", s.root(), "max_transfers", s.cfg.MaxConcurrentTransfers)

	buf := make([]byte, packet.MaxDatagramSize+1)
	var serveErr error
	for ctx.Err() == nil {
		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout)); err != nil {
			serveErr = err
			break
		}
		if ctx.Err() != nil {
			break
		}
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.logActive()
				continue
			}
			if ctx.Err() == nil {
				serveErr = fmt.Errorf("read request: %w", err)
			}
			break
		}
		s.dispatch(gctx, g, conn, addr, buf[:n])
	}

	cancelAnnounce()
	g.Wait()
	announce.Wait()

	t := s.registry.Totals()
	s.log.Info("TFTP server stopped", "served", t.Completed, "failed", t.Failed)
	return serveErr
}

func (s *Server) dispatch(ctx context.Context, g *errgroup.Group, conn net.PacketConn, addr net.Addr, b []byte) {
	if len(b) > packet.MaxDatagramSize {
		s.log.Warn("rejecting oversized datagram", "peer", addr.String(), "size", len(b))
		s.reject(conn, addr, packet.NewError(packet.ErrIllegalOperation, ""))
		return
	}
	d, err := packet.Decode(b)
	if err != nil {
		s.log.Warn("rejecting malformed request", "peer", addr.String(), "error", err)
		s.reject(conn, addr, transfer.ErrorPacket(err))
		return
	}
	if _, ok := d.(packet.Error); ok {
		s.log.Debug("dropping ERROR sent to the listener", "peer", addr.String())
		return
	}
	req, ok := d.(packet.Request)
	if !ok {
		s.log.Warn("rejecting illegal operation", "peer", addr.String(), "opcode", d.Opcode())
		s.reject(conn, addr, packet.NewError(packet.ErrIllegalOperation, ""))
		return
	}

	name := req.File()
	op := opRead
	if req.Opcode() == packet.OpWRQ {
		op = opWrite
	}
	log := s.log.With("peer", addr.String(), "file", name, "op", op)
	log.Info("request received", "mode", req.TransferMode())

	if !packet.IsOctet(req.TransferMode()) {
		log.Warn("rejecting unsupported mode", "mode", req.TransferMode())
		s.reject(conn, addr, packet.NewError(packet.ErrIllegalOperation, "Only octet mode is supported"))
		return
	}

	j := &job{op: op, name: name, peer: addr, log: log}
	if op == opRead {
		j.src, err = s.backend.OpenForRead(name)
	} else {
		j.sink, err = s.backend.OpenForWrite(name)
	}
	if err != nil {
		log.Warn("request rejected", "reason", transfer.Reason(err), "error", err)
		s.reject(conn, addr, transfer.ErrorPacket(err))
		return
	}

	if !g.TryGo(func() error {
		s.serve(ctx, conn.LocalAddr(), j)
		return nil
	}) {
		j.release()
		log.Warn("rejecting request, server busy", "active", s.registry.Active())
		s.reject(conn, addr, packet.NewError(packet.ErrNotDefined, "Server busy"))
	}
}

// job is an accepted request whose storage handle is already open.
type job struct {
	op   string
	name string
	peer net.Addr
	log  *slog.Logger
	src  storage.Source
	sink storage.Sink
}

func (j *job) release() {
	if j.src != nil {
		j.src.Close()
	}
	if j.sink != nil {
		j.sink.Abort()
	}
}

func (s *Server) serve(ctx context.Context, listenAddr net.Addr, j *job) {
	conn, err := net.ListenPacket("udp", sessionAddr(listenAddr))
	if err != nil {
		j.release()
		j.log.Error("failed to open session socket", "error", err)
		return
	}
	defer conn.Close()

	opts := []transfer.Option{transfer.WithLogger(j.log.With("local", conn.LocalAddr().String()))}
	if j.src != nil && j.src.Size() >= 0 {
		opts = append(opts, transfer.WithTotal(j.src.Size()))
	}
	sess, err := transfer.NewSession(conn, j.peer, s.cfg.Transfer, opts...)
	if err != nil {
		j.release()
		j.log.Error("failed to start session", "error", err)
		return
	}
	done := s.registry.Track(sess)

	if j.op == opRead {
		err = sess.ServeRead(ctx, j.src)
		if cerr := j.src.Close(); cerr != nil {
			j.log.Debug("failed to close source", "error", cerr)
		}
	} else {
		err = sess.ServeWrite(ctx, j.sink)
		if err == nil {
			if err = j.sink.Commit(); err != nil {
				j.log.Error("failed to commit upload", "error", err)
			}
		} else if aerr := j.sink.Abort(); aerr != nil {
			j.log.Warn("failed to discard partial upload", "error", aerr)
		}
	}
	done(err)

	s.record(j, sess.Stats(), err)
}

func (s *Server) record(j *job, st transfer.Stats, err error) {
	entry := audit.Entry{
		Session:     st.Name,
		Peer:        j.peer.String(),
		Op:          j.op,
		FileName:    j.name,
		Bytes:       st.Bytes,
		Blocks:      st.Blocks,
		Retransmits: st.Retransmits,
		Status:      audit.StatusSuccess,
		Duration:    st.Duration.Seconds(),
	}
	if err != nil {
		entry.Status = audit.StatusFailed
		entry.Reason = transfer.Reason(err)
		entry.Error = err.Error()
	} else if fi, ok := s.describe(j.name); ok {
		entry.FileHash = fi.Checksum
		entry.MimeType = fi.MimeType
		j.log.Info("file details", "size", fi.Size, "mime", fi.MimeType, "sha256", fi.Checksum)
	}

	if s.journal == nil {
		return
	}
	if werr := s.journal.Write(entry); werr != nil {
		j.log.Warn("failed to write transfer journal", "error", werr)
	}
}

func (s *Server) describe(name string) (fileInfo.FileInfo, bool) {
	dir, ok := s.backend.(*storage.Dir)
	if !ok {
		return fileInfo.FileInfo{}, false
	}
	path, err := dir.Path(name)
	if err != nil {
		return fileInfo.FileInfo{}, false
	}
	fi, err := fileInfo.Describe(path)
	if err != nil {
		s.log.Debug("failed to describe file", "file", name, "error", err)
		return fileInfo.FileInfo{}, false
	}
	return fi, true
}

func (s *Server) logActive() {
	active := s.registry.Snapshot()
	s.log.Debug("idle", "active", len(active))
	for _, st := range active {
		s.log.Debug("transfer in progress", "session", st.Name, "peer", st.Peer, "state", st.State.String(), "block", st.Block, "bytes", st.Bytes)
	}
}

// reject answers a request from the listening socket; no session is created.
func (s *Server) reject(conn net.PacketConn, addr net.Addr, e packet.Error) {
	b, err := packet.Encode(e)
	if err != nil {
		b = packet.MustEncode(packet.NewError(e.Code, ""))
	}
	if _, err := conn.WriteTo(b, addr); err != nil {
		s.log.Debug("failed to send ERROR", "peer", addr.String(), "error", err)
	}
}

func (s *Server) announce(ctx context.Context, addr net.Addr) {
	port := 0
	if ua, ok := addr.(*net.UDPAddr); ok {
		port = ua.Port
	}
	name := s.cfg.Name
	if name == "" {
		name = petname.Generate(2, "-")
	}
	info := discovery.ServiceInfo{
		Name:   name,
		Type:   discovery.DefaultServiceType,
		Domain: discovery.DefaultDomain,
		Port:   port,
	}
	if err := s.announcer.Announce(ctx, info); err != nil {
		s.log.Warn("mDNS announcement failed", "error", err)
	}
}

func (s *Server) root() string {
	if dir, ok := s.backend.(*storage.Dir); ok {
		return dir.Root()
	}
	return "(memory)"
}

// sessionAddr is the listening IP with an ephemeral port.
func sessionAddr(listen net.Addr) string {
	if ua, ok := listen.(*net.UDPAddr); ok && ua.IP != nil {
		return net.JoinHostPort(ua.IP.String(), "0")
	}
	return ":0"
}
