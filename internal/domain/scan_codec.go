package domain

import (
	"encoding/json"
	"fmt"
)

// ScanRecordVersion is the current persisted layout of ScanRecord.
const ScanRecordVersion = 1

type scanRecordEnvelope struct {
	Version int             `json:"version"`
	Record  json.RawMessage `json:"record"`
}

// EncodeScanRecord serializes a record inside a versioned envelope.
func EncodeScanRecord(record *ScanRecord) ([]byte, error) {
	body, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode scan record: %w", err)
	}
	return json.Marshal(scanRecordEnvelope{Version: ScanRecordVersion, Record: body})
}

// DecodeScanRecord restores a record written by EncodeScanRecord.
func DecodeScanRecord(data []byte) (*ScanRecord, error) {
	var env scanRecordEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode scan record envelope: %w", err)
	}

	switch env.Version {
	case 1:
		var record ScanRecord
		if err := json.Unmarshal(env.Record, &record); err != nil {
			return nil, fmt.Errorf("decode scan record v1: %w", err)
		}
		if record.Findings == nil {
			record.Findings = []Detection{}
		}
		if record.Summary.RiskFactors == nil {
			record.Summary.RiskFactors = []string{}
		}
		return &record, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}
}
