package gateway

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/moov-io/iso8583"

	"github.com/TFMV/estateflow/logger"
)

// SandboxConfig holds the acquirer sandbox rules
type SandboxConfig struct {
	// Address the sandbox listens on
	Address string `yaml:"address"`

	// Limit is the largest approved amount in minor units
	Limit int64 `yaml:"limit"`

	// NightLimit applies between 23:00 and 05:00 UTC; larger amounts are
	// declined as suspected fraud
	NightLimit int64 `yaml:"night_limit"`

	// ReadTimeout closes idle connections (default: 30s)
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// DefaultSandboxConfig returns the default sandbox rules
func DefaultSandboxConfig() SandboxConfig {
	return SandboxConfig{
		Address:     "0.0.0.0:8583",
		Limit:       50000000, // 5,00,000.00 INR
		NightLimit:  20000000,
		ReadTimeout: 30 * time.Second,
	}
}

// Sandbox is an ISO 8583 acquirer for local runs and tests. It authorizes
// 0200 requests with fixed rules:
//   - a PAN ending in 0 is an invalid card
//   - an amount over Limit is not honored
//   - a PAN ending in 9 has insufficient funds
//   - an amount over NightLimit at night is suspected fraud
type Sandbox struct {
	config SandboxConfig
	logger *logger.Logger
	now    func() time.Time

	outage atomic.Bool
	rrn    atomic.Uint64

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	shutdown bool
	wg       sync.WaitGroup
}

// NewSandbox creates a sandbox acquirer
func NewSandbox(config SandboxConfig, l *logger.Logger) *Sandbox {
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 30 * time.Second
	}
	if l == nil {
		l = logger.Nop()
	}
	return &Sandbox{
		config: config,
		logger: l.With("component", "sandbox-acquirer"),
		now:    time.Now,
		conns:  make(map[net.Conn]struct{}),
	}
}

// SetOutage makes every following request answer 91 until cleared
func (s *Sandbox) SetOutage(down bool) {
	s.outage.Store(down)
}

// Listen binds the listener without serving
func (s *Sandbox) Listen() error {
	l, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to start acquirer sandbox: %w", err)
	}
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
	s.logger.Info("Acquirer sandbox listening", "address", l.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Listen
func (s *Sandbox) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until Shutdown
func (s *Sandbox) Serve() error {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l == nil {
		return errors.New("sandbox is not listening")
	}

	for {
		conn, err := l.Accept()
		if err != nil {
			if s.isShutdown() {
				return nil
			}
			s.logger.Warn("Error accepting connection", "error", err)
			continue
		}

		s.mu.Lock()
		if s.shutdown {
			s.mu.Unlock()
			conn.Close()
			return nil
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go s.handleConnection(conn)
	}
}

// Start listens and serves
func (s *Sandbox) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Shutdown closes the listener and every open connection
func (s *Sandbox) Shutdown() error {
	s.mu.Lock()
	s.shutdown = true
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

func (s *Sandbox) isShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

func (s *Sandbox) handleConnection(conn net.Conn) {
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		s.wg.Done()
	}()

	reader := bufio.NewReader(conn)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout)); err != nil {
			return
		}

		request, err := readMessage(reader)
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.isShutdown() {
				s.logger.Warn("Error reading request", "remote", conn.RemoteAddr().String(), "error", err)
			}
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		response, err := s.HandleMessage(ctx, request)
		cancel()
		if err != nil {
			s.logger.Warn("Error handling request", "error", err)
			return
		}

		if err := writeMessage(conn, response); err != nil {
			s.logger.Warn("Error writing response", "error", err)
			return
		}
	}
}

// HandleMessage authorizes one request and builds its response
func (s *Sandbox) HandleMessage(ctx context.Context, request *iso8583.Message) (*iso8583.Message, error) {
	mti, err := request.GetString(0)
	if err != nil {
		return nil, fmt.Errorf("failed to get MTI: %w", err)
	}
	if len(mti) != 4 {
		return nil, fmt.Errorf("invalid MTI %q", mti)
	}

	code := s.authorize(mti, request)

	response := iso8583.NewMessage(MessageSpec)
	if err := response.Field(0, mti[:2]+"10"); err != nil {
		return nil, fmt.Errorf("failed to set MTI: %w", err)
	}
	for _, id := range []int{2, 3, 4, 7, 11, 41, 48, 49} {
		if value := optionalString(request, id); value != "" {
			if err := response.Field(id, value); err != nil {
				return nil, fmt.Errorf("failed to set field %d: %w", id, err)
			}
		}
	}
	if err := response.Field(39, code); err != nil {
		return nil, fmt.Errorf("failed to set response code: %w", err)
	}
	if code == CodeApproved {
		rrn := s.rrn.Add(1)
		if err := response.Field(37, fmt.Sprintf("%012d", rrn)); err != nil {
			return nil, fmt.Errorf("failed to set RRN: %w", err)
		}
		if err := response.Field(38, fmt.Sprintf("A%05d", rrn%100000)); err != nil {
			return nil, fmt.Errorf("failed to set authorization code: %w", err)
		}
	}

	s.logger.Info("Authorization decided",
		"pan", logger.MaskPAN(optionalString(request, 2)),
		"stan", optionalString(request, 11),
		"response_code", code,
	)
	return response, nil
}

func (s *Sandbox) authorize(mti string, request *iso8583.Message) string {
	if s.outage.Load() {
		return CodeIssuerInoperative
	}
	if mti != MTIFinancialRequest {
		return CodeInvalidTransaction
	}

	amount, err := strconv.ParseInt(optionalString(request, 4), 10, 64)
	if err != nil || amount <= 0 {
		return CodeInvalidAmount
	}

	pan := optionalString(request, 2)
	if optionalString(request, 3) == ProcessingCard {
		if pan == "" {
			return CodeInvalidCard
		}
		switch pan[len(pan)-1] {
		case '0':
			return CodeInvalidCard
		case '9':
			return CodeInsufficientFunds
		}
	}

	if s.config.Limit > 0 && amount > s.config.Limit {
		return CodeDoNotHonor
	}
	if s.config.NightLimit > 0 && amount > s.config.NightLimit && isNight(s.now().UTC()) {
		return CodeSuspectedFraud
	}
	return CodeApproved
}

// isNight reports whether t falls between 23:00 and 05:00
func isNight(t time.Time) bool {
	return t.Hour() >= 23 || t.Hour() < 5
}
