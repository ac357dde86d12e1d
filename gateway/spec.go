package gateway

import (
	"bufio"
	"fmt"
	"io"

	"github.com/moov-io/iso8583"
	"github.com/moov-io/iso8583/encoding"
	"github.com/moov-io/iso8583/field"
	"github.com/moov-io/iso8583/network"
	"github.com/moov-io/iso8583/prefix"
)

// Message type indicators
const (
	MTIFinancialRequest  = "0200"
	MTIFinancialResponse = "0210"
)

// Processing codes (field 3)
const (
	ProcessingCard = "000000"
	ProcessingUPI  = "260000"
)

// Response codes (field 39)
const (
	CodeApproved           = "00"
	CodeDoNotHonor         = "05"
	CodeInvalidTransaction = "12"
	CodeInvalidAmount      = "13"
	CodeInvalidCard        = "14"
	CodeInsufficientFunds  = "51"
	CodeSuspectedFraud     = "59"
	CodeIssuerInoperative  = "91"
	CodeSystemMalfunction  = "96"
)

var responseDescriptions = map[string]string{
	CodeApproved:           "Approved",
	CodeDoNotHonor:         "Do not honor",
	CodeInvalidTransaction: "Invalid transaction",
	CodeInvalidAmount:      "Invalid amount",
	CodeInvalidCard:        "Invalid card number",
	CodeInsufficientFunds:  "Insufficient funds",
	CodeSuspectedFraud:     "Suspected fraud",
	CodeIssuerInoperative:  "Issuer or switch inoperative",
	CodeSystemMalfunction:  "System malfunction",
}

// Describe returns a readable description for a response code
func Describe(code string) string {
	if desc, ok := responseDescriptions[code]; ok {
		return desc
	}
	return "Unknown"
}

// temporary reports whether a response code means the acquirer could not
// decide, so the charge may be tried again
func temporary(code string) bool {
	return code == CodeIssuerInoperative || code == CodeSystemMalfunction
}

// currencyCodes maps ISO 4217 alphabetic codes to the numeric form of field 49
var currencyCodes = map[string]string{
	"INR": "356",
	"USD": "840",
	"EUR": "978",
	"GBP": "826",
	"AED": "784",
}

// MessageSpec is the subset of ISO 8583:1987 both sides of the gateway speak
var MessageSpec = &iso8583.MessageSpec{
	Name: "EstateFlow ISO 8583 v1987",
	Fields: map[int]field.Field{
		0: field.NewString(field.NewSpec(4, "Message Type Indicator", encoding.ASCII, prefix.None.Fixed)),
		1: field.NewBitmap(&field.Spec{
			Length:      8,
			Description: "Bitmap",
			Enc:         encoding.BytesToASCIIHex,
			Pref:        prefix.Hex.Fixed,
		}),
		2:  field.NewString(field.NewSpec(19, "Primary Account Number", encoding.ASCII, prefix.ASCII.LL)),
		3:  field.NewString(field.NewSpec(6, "Processing Code", encoding.ASCII, prefix.None.Fixed)),
		4:  field.NewString(field.NewSpec(12, "Amount, Transaction", encoding.ASCII, prefix.None.Fixed)),
		7:  field.NewString(field.NewSpec(10, "Transmission Date and Time", encoding.ASCII, prefix.None.Fixed)),
		11: field.NewString(field.NewSpec(6, "System Trace Audit Number", encoding.ASCII, prefix.None.Fixed)),
		37: field.NewString(field.NewSpec(12, "Retrieval Reference Number", encoding.ASCII, prefix.None.Fixed)),
		38: field.NewString(field.NewSpec(6, "Authorization Identification Response", encoding.ASCII, prefix.None.Fixed)),
		39: field.NewString(field.NewSpec(2, "Response Code", encoding.ASCII, prefix.None.Fixed)),
		41: field.NewString(field.NewSpec(8, "Card Acceptor Terminal Identification", encoding.ASCII, prefix.None.Fixed)),
		48: field.NewString(field.NewSpec(64, "Additional Data, Private", encoding.ASCII, prefix.ASCII.LL)),
		49: field.NewString(field.NewSpec(3, "Currency Code, Transaction", encoding.ASCII, prefix.None.Fixed)),
	},
}

// writeMessage packs the message and writes it behind a two byte length header
func writeMessage(w io.Writer, message *iso8583.Message) error {
	packed, err := message.Pack()
	if err != nil {
		return fmt.Errorf("failed to pack message: %w", err)
	}

	header := network.NewBinary2BytesHeader()
	if err := header.SetLength(len(packed)); err != nil {
		return fmt.Errorf("failed to set length header: %w", err)
	}
	if _, err := header.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write length header: %w", err)
	}
	if _, err := w.Write(packed); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// readMessage reads one length-prefixed message
func readMessage(r *bufio.Reader) (*iso8583.Message, error) {
	header := network.NewBinary2BytesHeader()
	if _, err := header.ReadFrom(r); err != nil {
		return nil, err
	}

	raw := make([]byte, header.Length())
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}

	message := iso8583.NewMessage(MessageSpec)
	if err := message.Unpack(raw); err != nil {
		return nil, fmt.Errorf("failed to unpack message: %w", err)
	}
	return message, nil
}

// optionalString returns the field value, or "" when the field is absent
func optionalString(message *iso8583.Message, id int) string {
	v, err := message.GetString(id)
	if err != nil {
		return ""
	}
	return v
}
