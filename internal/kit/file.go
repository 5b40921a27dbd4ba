package kit

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Instrument is the YAML form of a single binding.
type Instrument struct {
	Code int    `yaml:"code" json:"code"`
	Name string `yaml:"name" json:"name"`
}

// File is the on-disk form of a Map, keyed by side then finger:
//
//	left:
//	  thumb: {code: 38, name: Snare}
//	right:
//	  thumb: {code: 36, name: Bass}
type File map[string]map[string]Instrument

// LoadFile reads a kit from a YAML file.
func LoadFile(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read kit file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML kit document into a Map.
func Parse(data []byte) (*Map, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal kit yaml: %w", err)
	}
	return f.Map()
}

// Map converts the file form into a validated Map.
func (f File) Map() (*Map, error) {
	var bindings []Binding
	for sideName, fingers := range f {
		side, err := ParseSide(sideName)
		if err != nil {
			return nil, err
		}
		for fingerName, inst := range fingers {
			finger, err := ParseFinger(fingerName)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", side, err)
			}
			bindings = append(bindings, Binding{
				Side:   side,
				Finger: finger,
				Code:   inst.Code,
				Name:   inst.Name,
			})
		}
	}
	return New(bindings)
}

// ToFile converts a Map back into its file form.
func ToFile(m *Map) File {
	f := make(File)
	for _, b := range m.Bindings() {
		side := b.Side.String()
		if f[side] == nil {
			f[side] = make(map[string]Instrument)
		}
		f[side][b.Finger.String()] = Instrument{Code: b.Code, Name: b.Name}
	}
	return f
}

// Marshal encodes a Map as a YAML kit document.
func Marshal(m *Map) ([]byte, error) {
	return yaml.Marshal(ToFile(m))
}
