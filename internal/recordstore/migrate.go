package recordstore

import (
	"bytes"
	"encoding/json"
)

const (
	legacyDiagnosisField  = "potentialDiagnosis"
	currentDiagnosisField = "differentialDiagnosis"
)

// MigrateHistory renames result.potentialDiagnosis to
// result.differentialDiagnosis on every record that has the former and
// lacks the latter. Other fields, known or not, are carried over untouched.
// It returns the input unchanged together with zero when nothing needed
// rewriting, so a second pass over its own output is always a no-op.
func MigrateHistory(raw []byte) ([]byte, int, error) {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, 0, err
	}
	if items == nil {
		// stored "null"
		return []byte("[]"), 0, nil
	}

	migrated := 0
	for _, item := range items {
		rawResult, ok := item["result"]
		if !ok || isNull(rawResult) {
			continue
		}
		var result map[string]json.RawMessage
		if err := json.Unmarshal(rawResult, &result); err != nil {
			return nil, 0, err
		}
		legacy, ok := result[legacyDiagnosisField]
		if !ok || isNull(legacy) {
			continue
		}
		if cur, ok := result[currentDiagnosisField]; ok && !isNull(cur) {
			continue
		}
		result[currentDiagnosisField] = legacy
		delete(result, legacyDiagnosisField)
		b, err := json.Marshal(result)
		if err != nil {
			return nil, 0, err
		}
		item["result"] = b
		migrated++
	}
	if migrated == 0 {
		return raw, 0, nil
	}
	out, err := json.Marshal(items)
	if err != nil {
		return nil, 0, err
	}
	return out, migrated, nil
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}
