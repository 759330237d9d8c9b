package permission

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadRole reads a single role document from path. Role documents are
// one of the three declarative permission-file surfaces named in spec
// 6; YAML authoring and loading is an external, out-of-scope concern —
// by the time this package sees a role, it has already been rendered
// to the JSON shape these types deserialize.
func LoadRole(path string) (*Role, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading role document %s: %w", path, err)
	}
	var r Role
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("parsing role document %s: %w", path, err)
	}
	if r.Name == "" {
		return nil, fmt.Errorf("role document %s: missing required \"name\" field", path)
	}
	return &r, nil
}

// LoadRules reads the tenancy-and-pattern rules document from path.
func LoadRules(path string) (*Rules, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules document %s: %w", path, err)
	}
	var r Rules
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("parsing rules document %s: %w", path, err)
	}
	return &r, nil
}
