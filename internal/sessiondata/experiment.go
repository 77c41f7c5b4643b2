package sessiondata

import (
	"os"

	"gopkg.in/yaml.v3"
)

// experimentFile mirrors a YAML-encoded Experiment on disk: a bare list
// under a "phases" key, named by ExperimentFields.ExperimentConfiguration.
type experimentFile struct {
	Phases []ExperimentState `yaml:"phases"`
}

// LoadExperiment reads and parses an experiment configuration file into the
// ordered phase sequence the experiment task controller walks (§4.9).
func LoadExperiment(path string) (Experiment, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc experimentFile
	if err := yaml.Unmarshal(body, &doc); err != nil {
		return nil, err
	}
	return Experiment(doc.Phases), nil
}
