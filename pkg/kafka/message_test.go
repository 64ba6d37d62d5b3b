package kafka

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/juniper/pkg/models"
)

func TestParseCleanedRecord(t *testing.T) {
	validRecord := func() models.CleanedRecordMessage {
		return models.CleanedRecordMessage{
			SourceID:    "source-1",
			RowIndex:    7,
			Name:        "Acme Textiles",
			Address:     "12 Mill Rd, Dhaka",
			CountryCode: "BD",
		}
	}

	t.Run("ValidRecord", func(t *testing.T) {
		payload, err := json.Marshal(validRecord())
		require.NoError(t, err)

		msg := &IncomingMessage{Value: payload}
		require.NoError(t, msg.ParseCleanedRecord())

		require.NotNil(t, msg.CleanedRecord)
		assert.Equal(t, "source-1", msg.CleanedRecord.SourceID)
		assert.Equal(t, 7, msg.CleanedRecord.RowIndex)
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		msg := &IncomingMessage{Value: []byte("{not json")}
		assert.Error(t, msg.ParseCleanedRecord())
		assert.Nil(t, msg.CleanedRecord)
	})

	t.Run("MissingSourceID", func(t *testing.T) {
		record := validRecord()
		record.SourceID = ""
		payload, err := json.Marshal(record)
		require.NoError(t, err)

		msg := &IncomingMessage{Value: payload}
		assert.Error(t, msg.ParseCleanedRecord())
	})

	t.Run("ContractViolations", func(t *testing.T) {
		tests := []struct {
			name   string
			mutate func(*models.CleanedRecordMessage)
		}{
			{"EmptyName", func(r *models.CleanedRecordMessage) { r.Name = "" }},
			{"EmptyAddress", func(r *models.CleanedRecordMessage) { r.Address = "" }},
			{"EmptyCountryCode", func(r *models.CleanedRecordMessage) { r.CountryCode = "" }},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				record := validRecord()
				tt.mutate(&record)
				payload, err := json.Marshal(record)
				require.NoError(t, err)

				msg := &IncomingMessage{Value: payload}
				assert.Error(t, msg.ParseCleanedRecord())
				assert.Nil(t, msg.CleanedRecord)
			})
		}
	})
}
