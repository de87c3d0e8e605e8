package statestore

import (
	"encoding/json"
	"fmt"
)

func encodeSession(session *Session) ([]byte, error) {
	data, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	return data, nil
}

func decodeSession(data []byte) (*Session, error) {
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &session, nil
}

func encodeLiveness(rec *Liveness) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode liveness record: %w", err)
	}
	return data, nil
}

func decodeLiveness(data []byte) (*Liveness, error) {
	var rec Liveness
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode liveness record: %w", err)
	}
	return &rec, nil
}
