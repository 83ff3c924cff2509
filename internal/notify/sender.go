package notify

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrNoRecipients = errors.New("notify: no valid recipients")
	ErrEmptyMessage = errors.New("notify: empty message")
)

// Message is one outbound SMS to one or more recipients in +254 format.
type Message struct {
	To   []string `json:"to"`
	Text string   `json:"message"`
}

// Sender delivers SMS messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

var internationalPhone = regexp.MustCompile(`^\+254\d{9}$`)

// InternationalizePhone converts 07XXXXXXXX, 2547XXXXXXXX and similar local
// forms to +2547XXXXXXXX.
func InternationalizePhone(phone string) (string, bool) {
	p := strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(phone))
	switch {
	case strings.HasPrefix(p, "+254"):
	case strings.HasPrefix(p, "254"):
		p = "+" + p
	case strings.HasPrefix(p, "0"):
		p = "+254" + p[1:]
	case len(p) == 9:
		p = "+254" + p
	}
	if !internationalPhone.MatchString(p) {
		return "", false
	}
	return p, true
}

func (m Message) validate() (Message, error) {
	if strings.TrimSpace(m.Text) == "" {
		return m, ErrEmptyMessage
	}
	out := Message{Text: m.Text}
	for _, to := range m.To {
		if p, ok := InternationalizePhone(to); ok {
			out.To = append(out.To, p)
		}
	}
	if len(out.To) == 0 {
		return m, ErrNoRecipients
	}
	return out, nil
}

// PaymentCompletedText is the SMS sent after a membership payment settles.
func PaymentCompletedText(firstName string, amount decimal.Decimal) string {
	name := strings.TrimSpace(firstName)
	if name == "" {
		name = "Member"
	}
	return fmt.Sprintf("Dear %s, your payment of KES %s has been completed successfully. We're glad you're continuing with us",
		name, amount.StringFixed(2))
}

// Nop drops every message. It is used when SMS is disabled.
type Nop struct{}

func (Nop) Send(context.Context, Message) error { return nil }
