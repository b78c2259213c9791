package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// ExportFormat selects the rendering of exported audit data.
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatCSV  ExportFormat = "csv"
)

var csvHeader = []string{
	"ID", "Customer ID", "Agent ID", "Timestamp", "Type",
	"Previous Balance", "Change Amount", "New Balance",
	"Reason", "Performed By", "Risk Score",
}

// exportRecord renders monetary fields to exactly two decimal places.
type exportRecord struct {
	ID              string                 `json:"id"`
	CustomerID      string                 `json:"customer_id"`
	AgentID         string                 `json:"agent_id"`
	Timestamp       time.Time              `json:"timestamp"`
	ChangeType      ChangeType             `json:"change_type"`
	PreviousBalance string                 `json:"previous_balance"`
	ChangeAmount    string                 `json:"change_amount"`
	NewBalance      string                 `json:"new_balance"`
	Reason          ChangeReason           `json:"reason"`
	PerformedBy     string                 `json:"performed_by"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	RiskScore       int                    `json:"risk_score"`
}

// Export returns the events with timestamps in [start, end], strictly
// ordered oldest to newest, as JSON or CSV.
func (t *Trail) Export(start, end time.Time, format ExportFormat) ([]byte, error) {
	t.mu.RLock()
	var window []*BalanceChangeEvent
	for _, event := range t.events {
		if event.Timestamp.Before(start) || event.Timestamp.After(end) {
			continue
		}
		window = append(window, event)
	}
	t.mu.RUnlock()

	sort.Slice(window, func(i, j int) bool {
		if window[i].Timestamp.Equal(window[j].Timestamp) {
			return window[i].ID.String() < window[j].ID.String()
		}
		return window[i].Timestamp.Before(window[j].Timestamp)
	})

	switch format {
	case FormatJSON:
		return exportJSON(window)
	case FormatCSV:
		return exportCSV(window)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

func exportJSON(events []*BalanceChangeEvent) ([]byte, error) {
	records := make([]exportRecord, 0, len(events))
	for _, event := range events {
		records = append(records, exportRecord{
			ID:              event.ID.String(),
			CustomerID:      event.CustomerID,
			AgentID:         event.AgentID,
			Timestamp:       event.Timestamp,
			ChangeType:      event.ChangeType,
			PreviousBalance: event.PreviousBalance.StringFixed(2),
			ChangeAmount:    event.ChangeAmount.StringFixed(2),
			NewBalance:      event.NewBalance.StringFixed(2),
			Reason:          event.Reason,
			PerformedBy:     event.PerformedBy,
			Metadata:        event.Metadata,
			RiskScore:       event.RiskScore,
		})
	}

	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export: %w", err)
	}
	return data, nil
}

func exportCSV(events []*BalanceChangeEvent) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, event := range events {
		row := []string{
			event.ID.String(),
			event.CustomerID,
			event.AgentID,
			event.Timestamp.Format(time.RFC3339),
			string(event.ChangeType),
			event.PreviousBalance.StringFixed(2),
			event.ChangeAmount.StringFixed(2),
			event.NewBalance.StringFixed(2),
			string(event.Reason),
			event.PerformedBy,
			strconv.Itoa(event.RiskScore),
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
