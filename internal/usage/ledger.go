package usage

import (
	"time"
)

const (
	ledgerNamespace = "usage"

	// costLogNamespace holds one audit document per settled request,
	// keyed by request ID, independent of the monthly roll-up.
	costLogNamespace = "cost-log"

	// maxRequestLog caps the per-month request log so a busy customer
	// cannot grow the ledger document without bound.
	maxRequestLog = 1000
)

// LogEntry is one settled request in a monthly ledger.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
	Model     string    `json:"model"`
	Tokens    int64     `json:"tokens"`
	Cost      float64   `json:"cost"`
	Currency  string    `json:"currency"`
}

// AuditEntry is the standalone cost-log document for one request.
type AuditEntry struct {
	LogEntry
	CustomerID string `json:"customer_id"`
	Plan       string `json:"plan"`
}

// MonthlyLedger accumulates one customer's usage for one calendar month.
// Within/overage splits are settled at write time, so the stored overage
// numbers never need recomputing.
type MonthlyLedger struct {
	CustomerID string `json:"customer_id"`
	Month      string `json:"month"` // YYYY-MM

	Requests     int64 `json:"requests"`
	Tokens       int64 `json:"tokens"`
	Images       int64 `json:"images"`
	AudioMinutes int64 `json:"audio_minutes"`
	VideoSeconds int64 `json:"video_seconds"`

	OverageTokens       int64 `json:"overage_tokens"`
	OverageImages       int64 `json:"overage_images"`
	OverageAudioMinutes int64 `json:"overage_audio_minutes"`
	OverageVideoSeconds int64 `json:"overage_video_seconds"`

	Cost        float64 `json:"cost"`
	OverageCost float64 `json:"overage_cost"`
	Currency    string  `json:"currency"`

	RequestLog []LogEntry `json:"request_log"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// MonthKey addresses a customer's ledger document for one month.
func MonthKey(customerID string, t time.Time) string {
	return customerID + "/" + t.UTC().Format("2006-01")
}

func (l *MonthlyLedger) appendLog(entry LogEntry) {
	l.RequestLog = append(l.RequestLog, entry)
	if len(l.RequestLog) > maxRequestLog {
		l.RequestLog = l.RequestLog[len(l.RequestLog)-maxRequestLog:]
	}
}
