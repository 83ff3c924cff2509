package audit

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) AuditEvent {
	line := buf.String()
	idx := strings.Index(line, "AUDIT: ")
	require.GreaterOrEqual(t, idx, 0)
	var ev AuditEvent
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(line[idx+len("AUDIT: "):])), &ev))
	buf.Reset()
	return ev
}

func TestAuditLogger(t *testing.T) {
	var buf bytes.Buffer
	a := NewAuditLoggerTo(&buf)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return fixed }

	a.LogInitiated("pay-1", "ws_1", 7, decimal.NewFromInt(1500))
	ev := decodeLine(t, &buf)
	assert.Equal(t, EventPaymentInitiated, ev.EventType)
	assert.Equal(t, int64(7), ev.MemberID)
	assert.True(t, ev.Amount.Equal(decimal.NewFromInt(1500)))
	assert.Equal(t, fixed, ev.Timestamp.UTC())

	a.LogTransition("pay-1", "ws_1", "pending", "completed", 0)
	ev = decodeLine(t, &buf)
	assert.Equal(t, "completed", ev.Status)
	assert.Equal(t, "pending", ev.Details["from"])
	assert.Equal(t, "0", ev.Details["result_code"])

	a.LogSettled("pay-1", "ws_1", "mem-1", "je-1", decimal.NewFromInt(1500))
	ev = decodeLine(t, &buf)
	assert.Equal(t, "je-1", ev.Details["journal_entry_id"])

	a.LogError("pay-1", "ws_1", errors.New("boom"))
	ev = decodeLine(t, &buf)
	assert.Equal(t, "boom", ev.Details["error"])
}

func TestNilAuditLoggerIsSafe(t *testing.T) {
	var a *AuditLogger
	assert.NotPanics(t, func() { a.LogError("p", "c", errors.New("x")) })
}
