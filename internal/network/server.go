// Package network is the UDP boundary: batch intake into the dispatch queue
// and fire-and-forget responses.
package network

import (
	"context"
	"errors"
	"net"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/nmxmxh/tigerdelta/internal/core"
	"github.com/nmxmxh/tigerdelta/internal/dispatch"
	"github.com/nmxmxh/tigerdelta/internal/metrics"
	"github.com/nmxmxh/tigerdelta/internal/utils"
)

// dropLogEvery rate-limits the overload warning.
const dropLogEvery = 1024

// ServerConfig configures intake.
type ServerConfig struct {
	MaxDatagram int
	BatchSize   int
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		MaxDatagram: core.DefaultMaxDatagram,
		BatchSize:   32,
	}
}

// Listen binds a UDP socket.
func Listen(addr *net.UDPAddr) (*net.UDPConn, error) {
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, utils.WrapCoded(err, utils.ErrCodeBindFailed, "bind "+addr.String())
	}
	return conn, nil
}

// Server reads datagrams, gates them by size, extracts features and hands
// them to the scoring task without ever blocking on it.
type Server struct {
	cfg     ServerConfig
	conn    net.PacketConn
	queue   *dispatch.Queue
	logger  *utils.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewServer creates an intake server over conn. It is the sole producer on queue.
func NewServer(conn net.PacketConn, queue *dispatch.Queue, cfg ServerConfig, logger *utils.Logger, m *metrics.Metrics) *Server {
	def := DefaultServerConfig()
	if cfg.MaxDatagram < core.MinDatagram {
		cfg.MaxDatagram = def.MaxDatagram
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if logger == nil {
		logger = utils.Nop()
	}
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &Server{
		cfg:     cfg,
		conn:    conn,
		queue:   queue,
		logger:  logger.Named("intake"),
		metrics: m,
		now:     time.Now,
	}
}

// Serve runs the intake loop until ctx is done or the socket fails. The
// queue is closed on return so the scorer can drain and stop.
func (s *Server) Serve(ctx context.Context) error {
	defer s.queue.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.conn.SetReadDeadline(time.Now())
		case <-stop:
		}
	}()

	pc := ipv4.NewPacketConn(s.conn)
	msgs := make([]ipv4.Message, s.cfg.BatchSize)
	for i := range msgs {
		// one spare byte exposes oversized datagrams through truncation
		msgs[i].Buffers = [][]byte{make([]byte, s.cfg.MaxDatagram+1)}
	}

	s.logger.Info("Intake started",
		utils.String("addr", s.conn.LocalAddr().String()),
		utils.Int("max_datagram", s.cfg.MaxDatagram),
		utils.Int("batch", s.cfg.BatchSize))

	for {
		n, err := pc.ReadBatch(msgs, 0)
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info("Intake stopped")
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return utils.WrapError(err, "read batch")
		}

		now := s.now()
		for i := 0; i < n; i++ {
			addr, _ := msgs[i].Addr.(*net.UDPAddr)
			s.Ingest(msgs[i].Buffers[0][:msgs[i].N], addr, now)
		}
	}
}

// Ingest applies the size gate and enqueues one datagram. It reports
// whether the datagram reached the queue.
func (s *Server) Ingest(payload []byte, addr *net.UDPAddr, at time.Time) bool {
	s.metrics.Received.Inc()

	switch {
	case len(payload) < core.MinDatagram:
		s.metrics.ObserveDiscard(metrics.ReasonUndersized)
		return false
	case len(payload) > s.cfg.MaxDatagram:
		s.metrics.ObserveDiscard(metrics.ReasonOversized)
		return false
	}

	item := core.Item{
		Attrs:    core.Extract(payload, addr),
		Addr:     addr,
		Digest:   core.Digest(payload),
		Received: at,
	}
	item.Control, item.HasControl = core.ParseControl(payload)

	err := s.queue.TrySend(item)
	s.metrics.QueueDepth.Set(float64(s.queue.Len()))
	if err == nil {
		s.metrics.Enqueued.Inc()
		return true
	}

	s.metrics.Dropped.Inc()
	dropped := s.queue.Dropped()
	if dropped%dropLogEvery == 1 {
		s.logger.Warn("Dispatch queue saturated, dropping newest",
			utils.Uint64("dropped_total", dropped),
			utils.Int("capacity", s.queue.Cap()),
			utils.Err(err))
	} else {
		s.logger.Debug("Dropped datagram", utils.Err(err))
	}
	return false
}
