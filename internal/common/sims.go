package common

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"sms-rupee-go/internal/models"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

type SimsConfig struct {
	Sims []models.SimSlot `yaml:"sims"`
}

// DefaultSims is used when no slot file exists: a dual-SIM phone.
var DefaultSims = []models.SimSlot{
	{Id: 0, Name: "SIM 1 - Primary"},
	{Id: 1, Name: "SIM 2 - Secondary"},
}

func LoadSimConfig(simsFile string) ([]models.SimSlot, error) {
	var simsPath string
	if filepath.IsAbs(simsFile) {
		simsPath = simsFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		simsPath = filepath.Join(wd, simsFile)
	}

	data, err := os.ReadFile(simsPath)
	if errors.Is(err, fs.ErrNotExist) {
		zap.L().Info("No SIM slot file, using defaults", zap.String("file", simsFile))
		return DefaultSims, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", simsFile, err)
	}

	return ParseSimConfig(data)
}

// ParseSimConfig validates that slot ids are unique and non-negative.
func ParseSimConfig(data []byte) ([]models.SimSlot, error) {
	var config SimsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unable to parse SIM config: %w", err)
	}
	if len(config.Sims) == 0 {
		return nil, fmt.Errorf("SIM config lists no slots")
	}

	seen := make(map[int]bool)
	for i, sim := range config.Sims {
		if sim.Id < 0 {
			return nil, fmt.Errorf("sim at index %d has negative id %d", i, sim.Id)
		}
		if seen[sim.Id] {
			return nil, fmt.Errorf("sim at index %d reuses id %d", i, sim.Id)
		}
		seen[sim.Id] = true
		if sim.Name == "" {
			config.Sims[i].Name = fmt.Sprintf("SIM %d", sim.Id+1)
		}
	}

	return config.Sims, nil
}

// FindSim returns the configured slot with the given id.
func FindSim(sims []models.SimSlot, id int) (models.SimSlot, bool) {
	for _, s := range sims {
		if s.Id == id {
			return s, true
		}
	}
	return models.SimSlot{}, false
}
