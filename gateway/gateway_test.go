package gateway

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/estateflow/domain"
	"github.com/TFMV/estateflow/workflow"
)

var noon = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func startSandbox(t *testing.T, now time.Time) (*Sandbox, *Client) {
	t.Helper()
	cfg := DefaultSandboxConfig()
	cfg.Address = "127.0.0.1:0"

	s := NewSandbox(cfg, nil)
	s.now = func() time.Time { return now }
	require.NoError(t, s.Listen())

	done := make(chan error, 1)
	go func() { done <- s.Serve() }()
	t.Cleanup(func() {
		require.NoError(t, s.Shutdown())
		require.NoError(t, <-done)
	})

	c := NewClient(Config{Address: s.Addr().String(), TerminalID: "TEST0001", Timeout: 2 * time.Second}, nil)
	return s, c
}

func cardCharge(orderID string, amount int64, pan string) workflow.ChargeRequest {
	return workflow.ChargeRequest{
		OrderID:    orderID,
		Amount:     amount,
		Currency:   "INR",
		Method:     domain.MethodCard,
		CardNumber: pan,
	}
}

func TestClient_ChargeApproved(t *testing.T) {
	_, c := startSandbox(t, noon)

	res, err := c.Charge(context.Background(), cardCharge("ord-1", 499900, "4111 1111 1111 1111"))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "000000000001", res.TransactionID)
	assert.Empty(t, res.Error)

	res, err = c.Charge(context.Background(), cardCharge("ord-2", 100, "5555555555554444"))
	require.NoError(t, err)
	assert.Equal(t, "000000000002", res.TransactionID)
}

func TestClient_UPIChargeNeedsNoCard(t *testing.T) {
	_, c := startSandbox(t, noon)

	res, err := c.Charge(context.Background(), workflow.ChargeRequest{
		OrderID:  "ord-upi",
		Amount:   120000,
		Currency: "inr",
		Method:   domain.MethodUPI,
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestClient_DeclinesAreResultsNotErrors(t *testing.T) {
	_, c := startSandbox(t, noon)

	cases := []struct {
		name   string
		req    workflow.ChargeRequest
		reason string
	}{
		{"over limit", cardCharge("ord-1", 50000001, "4111111111111111"), "Do not honor (05)"},
		{"invalid card", cardCharge("ord-2", 1000, "4111111111111110"), "Invalid card number (14)"},
		{"insufficient funds", cardCharge("ord-3", 1000, "4111111111111119"), "Insufficient funds (51)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := c.Charge(context.Background(), tc.req)
			require.NoError(t, err)
			assert.False(t, res.Success)
			assert.Equal(t, tc.reason, res.Error)
			assert.Empty(t, res.TransactionID)
		})
	}
}

func TestClient_NightRule(t *testing.T) {
	_, c := startSandbox(t, time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC))

	res, err := c.Charge(context.Background(), cardCharge("ord-1", 25000000, "4111111111111111"))
	require.NoError(t, err)
	assert.Equal(t, "Suspected fraud (59)", res.Error)

	res, err = c.Charge(context.Background(), cardCharge("ord-2", 1000, "4111111111111111"))
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestClient_OutageIsTransient(t *testing.T) {
	s, c := startSandbox(t, noon)
	s.SetOutage(true)

	_, err := c.Charge(context.Background(), cardCharge("ord-1", 1000, "4111111111111111"))
	require.Error(t, err)
	assert.Equal(t, workflow.KindTransient, workflow.KindOf(err))
	assert.Contains(t, err.Error(), "Issuer or switch inoperative")

	s.SetOutage(false)
	res, err := c.Charge(context.Background(), cardCharge("ord-1", 1000, "4111111111111111"))
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestClient_InvalidRequest(t *testing.T) {
	c := NewClient(Config{Address: "127.0.0.1:1"}, nil)

	_, err := c.Charge(context.Background(), workflow.ChargeRequest{
		OrderID:  "ord-1",
		Amount:   0,
		Currency: "XYZ",
		Method:   domain.MethodCard,
	})
	require.Error(t, err)
	assert.Equal(t, workflow.KindValidation, workflow.KindOf(err))

	_, err = c.Charge(context.Background(), workflow.ChargeRequest{
		OrderID: "ord-1", Amount: 100, Currency: "INR", Method: domain.MethodWallet,
	})
	assert.Equal(t, workflow.KindValidation, workflow.KindOf(err))
}

func TestClient_UnreachableAcquirer(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	c := NewClient(Config{Address: addr, Timeout: time.Second}, nil)
	_, err = c.Charge(context.Background(), cardCharge("ord-1", 1000, "4111111111111111"))
	require.Error(t, err)
	assert.Equal(t, workflow.KindTransient, workflow.KindOf(err))
}

func TestClient_SilentAcquirerTimesOut(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	go func() {
		conn, err := l.Accept()
		if err == nil {
			defer conn.Close()
			time.Sleep(2 * time.Second)
		}
	}()

	c := NewClient(Config{Address: l.Addr().String(), Timeout: 200 * time.Millisecond}, nil)
	start := time.Now()
	_, err = c.Charge(context.Background(), cardCharge("ord-1", 1000, "4111111111111111"))
	require.Error(t, err)
	assert.Equal(t, workflow.KindTransient, workflow.KindOf(err))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSandbox_HandleMessageEchoesFields(t *testing.T) {
	s := NewSandbox(DefaultSandboxConfig(), nil)
	s.now = func() time.Time { return noon }
	c := NewClient(DefaultConfig(), nil)

	req, err := c.buildRequest(cardCharge("ord-echo", 2500, "4111111111111111"))
	require.NoError(t, err)

	resp, err := s.HandleMessage(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, MTIFinancialResponse, optionalString(resp, 0))
	assert.Equal(t, optionalString(req, 11), optionalString(resp, 11))
	assert.Equal(t, "000000002500", optionalString(resp, 4))
	assert.Equal(t, "ord-echo", optionalString(resp, 48))
	assert.Equal(t, "356", optionalString(resp, 49))
	assert.Equal(t, CodeApproved, optionalString(resp, 39))
	assert.Equal(t, "A00001", optionalString(resp, 38))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Approved", Describe("00"))
	assert.Equal(t, "Unknown", Describe("42"))
	assert.True(t, temporary(CodeSystemMalfunction))
	assert.False(t, temporary(CodeDoNotHonor))
}

func TestIsNight(t *testing.T) {
	assert.True(t, isNight(time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)))
	assert.True(t, isNight(time.Date(2026, 1, 1, 4, 59, 0, 0, time.UTC)))
	assert.False(t, isNight(time.Date(2026, 1, 1, 5, 0, 0, 0, time.UTC)))
}
