package dialogue

import (
	"bytes"
	_ "embed"
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed "email.yaml"
var emailScriptYAML []byte

type scriptFile struct {
	Questions   []Question `yaml:"questions"`
	Summary     string     `yaml:"summary"`
	Instruction string     `yaml:"instruction"`
}

// LoadScript reads a script definition (questions, summary template and
// instruction template) from YAML.
func LoadScript(r io.Reader) (*Script, error) {
	var f scriptFile
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, errors.Wrap(err, "could not decode script")
	}
	return NewScript(f.Questions, f.Summary, f.Instruction)
}

func LoadScriptFromFile(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	s, err := LoadScript(f)
	if err != nil {
		return nil, errors.Wrapf(err, "could not load script %s", path)
	}
	return s, nil
}

// EmailScript is the built-in professional email questionnaire.
func EmailScript() *Script {
	s, err := LoadScript(bytes.NewReader(emailScriptYAML))
	if err != nil {
		panic(errors.Wrap(err, "embedded email script is invalid"))
	}
	return s
}
