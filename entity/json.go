package entity

import jsoniter "github.com/json-iterator/go"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type instanceJSON struct {
	ID    string         `json:"id"`
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

func (i *Instance) view() instanceJSON {
	v := instanceJSON{ID: i.ID, Attrs: i.Attrs}
	if i.Type != nil {
		v.Type = i.Type.Name
	}
	return v
}

// MarshalJSON writes the instance with its type name.
func (i *Instance) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.view())
}

// MarshalJSON writes the record with its nested members.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		instanceJSON
		Derived    map[string]any       `json:"derived,omitempty"`
		Embedded   map[string][]*Record `json:"embedded,omitempty"`
		References map[string][]string  `json:"references,omitempty"`
	}{r.Instance.view(), r.Derived, r.Embedded, r.References})
}
