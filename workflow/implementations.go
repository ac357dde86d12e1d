package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/TFMV/estateflow/domain"
	"github.com/TFMV/estateflow/logger"
)

// LogNotifier writes notifications to the application log
type LogNotifier struct {
	logger *logger.Logger
}

// NewLogNotifier creates a notifier backed by l
func NewLogNotifier(l *logger.Logger) *LogNotifier {
	return &LogNotifier{logger: l}
}

func (n *LogNotifier) NotifyUser(ctx context.Context, userID, subject, body string) error {
	n.logger.Info("Notification", "user_id", userID, "subject", subject, "body", body)
	return nil
}

// OutboxNotifier appends notifications as JSON lines to a daily file that a
// delivery process tails
type OutboxNotifier struct {
	mu      sync.Mutex
	dir     string
	logFile string
	now     func() time.Time
}

// NewOutboxNotifier creates an outbox writing under directory
func NewOutboxNotifier(directory string) (*OutboxNotifier, error) {
	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create outbox directory: %w", err)
	}
	return &OutboxNotifier{dir: directory, now: time.Now}, nil
}

// CurrentFile returns the file notifications are appended to today
func (n *OutboxNotifier) CurrentFile() string {
	return filepath.Join(n.dir, fmt.Sprintf("outbox-%s.jsonl", n.now().Format("2006-01-02")))
}

func (n *OutboxNotifier) NotifyUser(ctx context.Context, userID, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	// Roll over to a new file each day
	n.logFile = n.CurrentFile()

	file, err := os.OpenFile(n.logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open outbox: %w", err)
	}
	defer file.Close()

	line, err := json.Marshal(map[string]interface{}{
		"user_id":   userID,
		"subject":   subject,
		"body":      body,
		"timestamp": n.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write outbox: %w", err)
	}
	return nil
}

// LogFulfillment records fulfillment triggers in the log. Add-on activation
// itself happens downstream of the log stream.
type LogFulfillment struct {
	logger *logger.Logger
}

// NewLogFulfillment creates a fulfillment trigger backed by l
func NewLogFulfillment(l *logger.Logger) *LogFulfillment {
	return &LogFulfillment{logger: l}
}

func (f *LogFulfillment) Trigger(ctx context.Context, orderID string) error {
	f.logger.Info("Fulfillment triggered", "order_id", orderID)
	return nil
}

// MultiIndex publishes to several search indexes. Every index is tried; the
// failures are joined.
type MultiIndex []SearchIndex

func (m MultiIndex) Publish(ctx context.Context, entityKey string, data map[string]interface{}) error {
	var errs []error
	for _, x := range m {
		if err := x.Publish(ctx, entityKey, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiIndex) Remove(ctx context.Context, entityKey string) error {
	var errs []error
	for _, x := range m {
		if err := x.Remove(ctx, entityKey); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SimpleQualityScorer rates listings by completeness, with penalties for
// phrases that usually indicate spam or misleading ads
type SimpleQualityScorer struct {
	flaggedPhrases []string
	minDescription int
}

// NewSimpleQualityScorer creates a scorer with default rules
func NewSimpleQualityScorer() *SimpleQualityScorer {
	return &SimpleQualityScorer{
		flaggedPhrases: []string{
			"guaranteed returns",
			"100% returns",
			"call now for discount",
			"whatsapp only",
		},
		minDescription: 80,
	}
}

// Score returns a value in [0, 1] and a short explanation
func (s *SimpleQualityScorer) Score(ctx context.Context, e *domain.Entity) (float64, string, error) {
	if e == nil {
		return 0, "", fmt.Errorf("no listing to score")
	}

	score := 0.2
	var notes []string

	if len(strings.TrimSpace(e.DisplayName)) >= 5 {
		score += 0.1
	} else {
		notes = append(notes, "short title")
	}

	desc, _ := e.Attributes["description"].(string)
	if len(desc) >= s.minDescription {
		score += 0.2
	} else {
		notes = append(notes, "thin description")
	}

	if _, ok := e.Attributes["latitude"]; ok {
		score += 0.15
	} else if e.Kind != domain.DraftTypeDeveloper {
		notes = append(notes, "no map location")
	}

	if countOf(e.Attributes["amenities"]) >= 3 {
		score += 0.15
	}

	switch e.Kind {
	case domain.DraftTypeDeveloper:
		if _, ok := e.Attributes["establishedYear"]; ok {
			score += 0.15
		}
		if _, ok := e.Attributes["contactEmail"]; ok {
			score += 0.1
		}
	default:
		if priced(e.Attributes) {
			score += 0.2
		} else {
			notes = append(notes, "no price")
		}
	}

	lower := strings.ToLower(desc + " " + e.DisplayName)
	for _, phrase := range s.flaggedPhrases {
		if strings.Contains(lower, phrase) {
			score -= 0.4
			notes = append(notes, fmt.Sprintf("flagged phrase %q", phrase))
		}
	}

	score = math.Max(0, math.Min(1, score))
	score = math.Round(score*100) / 100
	if len(notes) == 0 {
		return score, "complete listing", nil
	}
	return score, strings.Join(notes, ", "), nil
}

// countOf handles lists both before and after a JSON round trip
func countOf(v interface{}) int {
	switch list := v.(type) {
	case []string:
		return len(list)
	case []interface{}:
		return len(list)
	}
	return 0
}

func priced(attrs map[string]interface{}) bool {
	for _, key := range []string{"price", "startingPrice"} {
		if v, ok := attrs[key].(float64); ok && v > 0 {
			return true
		}
	}
	return false
}
