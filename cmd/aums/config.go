package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/aligator/aums/block"
	"github.com/aligator/aums/checkpoint"
	"github.com/aligator/aums/usb"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// config is the content of the configuration file.
// Either Image or USB.Path selects what to open.
type config struct {
	// Image is a raw disk image used instead of a USB device.
	Image     string     `yaml:"image"`
	BlockSize int        `yaml:"blockSize"`
	ReadOnly  bool       `yaml:"readOnly"`
	USB       usb.Config `yaml:"usb"`
	LUN       uint8      `yaml:"lun"`
	// Partition is the index of the mounted filesystem to work on.
	Partition int    `yaml:"partition"`
	Verbose   int    `yaml:"verbose"`
	TimeZone  string `yaml:"timeZone"`
}

func defaultConfig() config {
	return config{
		BlockSize: block.DefaultBlockSize,
		USB: usb.Config{
			InEndpoint:  1,
			OutEndpoint: 2,
			Timeout:     usb.DefaultTimeout,
		},
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "aums", "config.yaml")
}

// loadConfig reads path on top of the defaults.
// A missing file is only an error if mustExist is set.
func loadConfig(fs afero.Fs, path string, mustExist bool) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := afero.ReadFile(fs, path)
	if os.IsNotExist(err) && !mustExist {
		return cfg, nil
	}
	if err != nil {
		return cfg, checkpoint.From(err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, checkpoint.From(err)
	}
	return cfg, nil
}

// location resolves the configured time zone, the local one by default.
func (c config) location() (*time.Location, error) {
	if c.TimeZone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, checkpoint.From(err)
	}
	return loc, nil
}
