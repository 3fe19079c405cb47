package consent

import "encoding/json"

func (r Result) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Extra)+1)
	for k, v := range r.Extra {
		out[k] = v
	}
	out["accepted"] = r.Accepted
	return json.Marshal(out)
}

// UnmarshalJSON keeps every field besides accepted in Extra. A missing
// accepted field decodes as false.
func (r *Result) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	accepted, _ := raw["accepted"].(bool)
	delete(raw, "accepted")
	r.Accepted = accepted
	r.Extra = nil
	if len(raw) > 0 {
		r.Extra = raw
	}
	return nil
}
