package quote

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// StepSelection lists the options chosen for one step.
type StepSelection struct {
	StepID    string   `json:"step_id" validate:"required"`
	OptionIDs []string `json:"option_ids" validate:"dive,required"`
}

// Selections preserves the order in which steps were submitted.
type Selections []StepSelection

// UnmarshalJSON accepts either an array of StepSelection or an object keyed
// by step id whose values are an option id or a list of option ids. Object
// keys keep their document order.
func (s *Selections) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*s = nil
		return nil
	}
	if trimmed[0] == '[' {
		var list []StepSelection
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return err
		}
		*s = list
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("selections: expected object or array")
	}
	var out Selections
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return errors.New("selections: expected step id")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		ids, err := decodeOptionIDs(raw)
		if err != nil {
			return fmt.Errorf("selections: step %s: %w", key, err)
		}
		out = append(out, StepSelection{StepID: key, OptionIDs: ids})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*s = out
	return nil
}

func decodeOptionIDs(raw json.RawMessage) ([]string, error) {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single == "" {
			return nil, nil
		}
		return []string{single}, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, errors.New("expected option id or list of option ids")
	}
	return many, nil
}

// Count returns the number of selected (step, option) pairs.
func (s Selections) Count() int {
	n := 0
	for _, sel := range s {
		n += len(sel.OptionIDs)
	}
	return n
}
