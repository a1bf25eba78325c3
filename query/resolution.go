package query

import (
	"encoding/json"
	"fmt"
)

// Resolution is the outcome of one request. Exactly four values leave
// the orchestrator.
type Resolution int

const (
	ResolutionAnswer Resolution = iota
	ResolutionRefusal
	ResolutionNotEnoughInfo
	ResolutionInvalidOutput
)

var resolutionNames = map[Resolution]string{
	ResolutionAnswer:        "answer",
	ResolutionRefusal:       "refusal",
	ResolutionNotEnoughInfo: "not_enough_info",
	ResolutionInvalidOutput: "invalid_output",
}

func (r Resolution) String() string {
	if name, ok := resolutionNames[r]; ok {
		return name
	}
	return fmt.Sprintf("resolution(%d)", int(r))
}

func (r Resolution) MarshalJSON() ([]byte, error) {
	name, ok := resolutionNames[r]
	if !ok {
		return nil, fmt.Errorf("unknown resolution %d", int(r))
	}
	return json.Marshal(name)
}

func (r *Resolution) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	for v, n := range resolutionNames {
		if n == name {
			*r = v
			return nil
		}
	}
	return fmt.Errorf("unknown resolution %q", name)
}
