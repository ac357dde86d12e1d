package gateway

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/moov-io/iso8583"

	"github.com/TFMV/estateflow/domain"
	"github.com/TFMV/estateflow/logger"
	"github.com/TFMV/estateflow/workflow"
)

// Config holds gateway client configuration
type Config struct {
	// Address of the acquirer, host:port
	Address string `yaml:"address"`

	// TerminalID identifies this merchant terminal in field 41
	TerminalID string `yaml:"terminal_id"`

	// Timeout bounds one request/response exchange (default: 10s)
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the default gateway configuration
func DefaultConfig() Config {
	return Config{
		Address:    "localhost:8583",
		TerminalID: "ESTFLW01",
		Timeout:    10 * time.Second,
	}
}

// Client charges payments by sending 0200 financial requests to an acquirer.
// Each charge uses its own connection.
type Client struct {
	config Config
	logger *logger.Logger
	stan   atomic.Uint32
	now    func() time.Time
	dialer net.Dialer
}

// NewClient creates a gateway client
func NewClient(config Config, l *logger.Logger) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if l == nil {
		l = logger.Nop()
	}
	c := &Client{
		config: config,
		logger: l.With("component", "gateway"),
		now:    time.Now,
	}
	c.stan.Store(uint32(time.Now().Unix() % 1000000))
	return c
}

// Charge implements workflow.PaymentGateway. A decline comes back as
// Success=false; only exchange failures and acquirer outages are errors.
func (c *Client) Charge(ctx context.Context, req workflow.ChargeRequest) (workflow.ChargeResult, error) {
	request, err := c.buildRequest(req)
	if err != nil {
		return workflow.ChargeResult{}, err
	}

	start := c.now()
	response, err := c.exchange(ctx, request)
	if err != nil {
		return workflow.ChargeResult{}, workflow.Transient(workflow.ActCharge, err)
	}

	mti := optionalString(response, 0)
	if mti != MTIFinancialResponse {
		return workflow.ChargeResult{}, workflow.Transient(workflow.ActCharge, fmt.Errorf("unexpected response MTI %q", mti))
	}

	stan := optionalString(request, 11)
	if got := optionalString(response, 11); got != stan {
		return workflow.ChargeResult{}, workflow.Transient(workflow.ActCharge, fmt.Errorf("response STAN %s does not match request %s", got, stan))
	}

	code := optionalString(response, 39)
	c.logger.Info("Charge processed",
		"order_id", req.OrderID,
		"stan", stan,
		"response_code", code,
		"elapsed", c.now().Sub(start),
	)

	switch {
	case code == CodeApproved:
		return workflow.ChargeResult{
			Success:       true,
			TransactionID: strings.TrimSpace(optionalString(response, 37)),
		}, nil
	case temporary(code):
		return workflow.ChargeResult{}, workflow.Transient(workflow.ActCharge, fmt.Errorf("acquirer answered %s (%s)", code, Describe(code)))
	default:
		return workflow.ChargeResult{Success: false, Error: fmt.Sprintf("%s (%s)", Describe(code), code)}, nil
	}
}

func (c *Client) buildRequest(req workflow.ChargeRequest) (*iso8583.Message, error) {
	var problems []string
	if req.Amount <= 0 || req.Amount > 999999999999 {
		problems = append(problems, "amount must be between 1 and 999999999999 minor units")
	}
	currency, ok := currencyCodes[strings.ToUpper(req.Currency)]
	if !ok {
		problems = append(problems, fmt.Sprintf("currency %q is not supported", req.Currency))
	}
	processing := ProcessingCard
	switch req.Method {
	case domain.MethodCard:
		if req.CardNumber == "" {
			problems = append(problems, "card number is required")
		}
	case domain.MethodUPI:
		processing = ProcessingUPI
	default:
		problems = append(problems, fmt.Sprintf("method %q cannot be charged through the gateway", req.Method))
	}
	if len(problems) > 0 {
		return nil, workflow.ValidationFailed(workflow.ActCharge, problems)
	}

	now := c.now().UTC()
	fields := map[int]string{
		0:  MTIFinancialRequest,
		3:  processing,
		4:  fmt.Sprintf("%012d", req.Amount),
		7:  now.Format("0102150405"), // MMDDhhmmss
		11: c.nextSTAN(),
		41: fmt.Sprintf("%-8.8s", c.config.TerminalID),
		48: truncate(req.OrderID, 64),
		49: currency,
	}
	if req.Method == domain.MethodCard {
		fields[2] = strings.ReplaceAll(req.CardNumber, " ", "")
	}

	message := iso8583.NewMessage(MessageSpec)
	for id, value := range fields {
		if err := message.Field(id, value); err != nil {
			return nil, fmt.Errorf("failed to set field %d: %w", id, err)
		}
	}
	return message, nil
}

func (c *Client) nextSTAN() string {
	return fmt.Sprintf("%06d", c.stan.Add(1)%1000000)
}

func (c *Client) exchange(ctx context.Context, request *iso8583.Message) (*iso8583.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", c.config.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.config.Address, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, err
		}
	}

	if err := writeMessage(conn, request); err != nil {
		return nil, err
	}
	response, err := readMessage(bufio.NewReader(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return response, nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
