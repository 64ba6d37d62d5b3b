package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Ramsey-B/juniper/pkg/models"
)

// IncomingMessage wraps a raw Kafka message plus the decoded cleaned record
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// CleanedRecord is populated by ParseCleanedRecord
	CleanedRecord *models.CleanedRecordMessage
}

// ParseCleanedRecord decodes the message payload as a cleaned record from
// the upstream cleaning pipeline and enforces its contract: name, address
// and country_code must be non-empty
func (m *IncomingMessage) ParseCleanedRecord() error {
	var record models.CleanedRecordMessage
	if err := json.Unmarshal(m.Value, &record); err != nil {
		return fmt.Errorf("failed to decode cleaned record: %w", err)
	}

	if record.SourceID == "" {
		return fmt.Errorf("cleaned record missing source_id")
	}
	if record.Name == "" || record.Address == "" || record.CountryCode == "" {
		return fmt.Errorf("cleaned record %s/%d violates upstream contract: name, address and country_code are required", record.SourceID, record.RowIndex)
	}

	m.CleanedRecord = &record
	return nil
}
