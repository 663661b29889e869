// Package notification delivers alerts about recommendation transitions
// and trade outcomes to external channels (webhooks, Telegram).
package notification

import (
	"context"
	"fmt"
	"log"

	"volatility-systemv1/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// RecommendationAlert builds an alert for a recommendation transition.
// rec == nil means the previous recommendation was withdrawn.
func RecommendationAlert(rec *model.Recommendation) Alert {
	if rec == nil {
		return Alert{
			Level:   AlertInfo,
			Title:   "recommendation withdrawn",
			Message: "no current opportunity",
		}
	}
	return Alert{
		Level:   AlertInfo,
		Title:   fmt.Sprintf("recommendation: %s %s %s", rec.Symbol, rec.Strategy, rec.Barrier),
		Message: rec.Reason,
	}
}

// SettlementAlert builds an alert for a settled contract.
func SettlementAlert(s model.Settlement) Alert {
	level := AlertInfo
	verdict := "won"
	if !s.Won() {
		level = AlertWarning
		verdict = "lost"
	}
	return Alert{
		Level:   level,
		Title:   fmt.Sprintf("trade %s: %s %s %s", verdict, s.Symbol, s.Strategy, s.Barrier),
		Message: fmt.Sprintf("contract %d profit %.2f (stake %s, exit digit %d)", s.ContractID, s.Profit, s.Stake, s.ExitDigit),
	}
}

// LogNotifier logs alerts, useful for development.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// MultiNotifier fans one alert out to several backends. Delivery failures
// are logged, not returned, so one dead backend cannot mute the rest.
type MultiNotifier struct {
	backends []Notifier
}

// NewMultiNotifier creates a fan-out notifier.
func NewMultiNotifier(backends ...Notifier) *MultiNotifier {
	return &MultiNotifier{backends: backends}
}

func (m *MultiNotifier) Send(ctx context.Context, alert Alert) error {
	for _, b := range m.backends {
		if err := b.Send(ctx, alert); err != nil {
			log.Printf("[notify] backend error: %v", err)
		}
	}
	return nil
}
