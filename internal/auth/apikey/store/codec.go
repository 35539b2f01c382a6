package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/code-wheel/mcp-http-security/internal/auth/apikey"
	"github.com/code-wheel/mcp-http-security/internal/observability"
)

// encodeRecord returns the JSON document stored for a record.
func encodeRecord(record *apikey.Record) ([]byte, error) {
	if record == nil {
		return nil, errors.New("record is required")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return data, nil
}

// decodeRecord parses a stored document. A JSON null decodes to nil.
func decodeRecord(data []byte) (*apikey.Record, error) {
	var record *apikey.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return record, nil
}

// decodeEach decodes raw documents keyed by id, dropping entries that
// cannot be decoded.
func decodeEach(raw map[string][]byte, logger observability.Logger) map[string]*apikey.Record {
	out := make(map[string]*apikey.Record, len(raw))
	for id, data := range raw {
		record, err := decodeRecord(data)
		if err != nil || record == nil {
			logger.Warn("skipping undecodable API key record", observability.String("key_id", id))
			continue
		}
		out[id] = record
	}
	return out
}
