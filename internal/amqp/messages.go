package amqp

import (
	"encoding/json"
	"time"
)

// PaymentScheduledMessage announces that a payment was appended to a loan.
// It carries only the identifiers; consumers load the payment from storage.
type PaymentScheduledMessage struct {
	LoanID    int64     `json:"loan_id"`
	Seq       int       `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
}

func NewPaymentScheduledMessage(loanID int64, seq int) *PaymentScheduledMessage {
	return &PaymentScheduledMessage{
		LoanID:    loanID,
		Seq:       seq,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *PaymentScheduledMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func PaymentScheduledMessageFromJSON(data []byte) (*PaymentScheduledMessage, error) {
	var msg PaymentScheduledMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
