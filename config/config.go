// Package config provides YAML configuration loading and validation for
// the netbricks runtime.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/netsys/netbricks/common"
)

// Configuration is the top-level runtime configuration.
type Configuration struct {
	// Name identifies this dataplane instance in logs. Required.
	Name string `yaml:"name"`

	// PrimaryCore names the core of the main thread. It is reported in the
	// startup log; the main thread is not pinned to it.
	PrimaryCore int `yaml:"primary_core"`

	// Cores lists the dataplane cores; one scheduler is pinned to each.
	Cores []int `yaml:"cores"`

	// PoolSize is the number of frames in the packet pool. Defaults to
	// 2048 when omitted.
	PoolSize int `yaml:"pool_size"`

	// CacheSize is the per-core frame cache hint. Defaults to 32.
	CacheSize int `yaml:"cache_size"`

	// Ports lists the devices to bind.
	Ports []PortConfiguration `yaml:"ports"`

	// PciWhitelist lists PCI addresses for device probing. The in-process
	// driver does not probe PCI devices, so the list has no effect.
	PciWhitelist []string `yaml:"pci_whitelist"`

	// Vdevs lists extra virtual device specifications.
	Vdevs []string `yaml:"vdevs"`

	// MetricsAddr is the listen address of the control-plane HTTP
	// endpoint serving /metrics and /healthz. Disabled when empty.
	MetricsAddr string `yaml:"metrics_addr"`

	// Duration makes the runtime exit after this many seconds. Test mode
	// only; normally set from the command line.
	Duration int `yaml:"duration"`
}

// PortConfiguration describes one device and its queue-to-core binding.
type PortConfiguration struct {
	// Name selects the device: "virt", "ring:<name>", or "xdp:<iface>".
	Name string `yaml:"name"`

	// RxQueues maps receive queue indexes to the cores that poll them.
	RxQueues []int `yaml:"rx_queues"`

	// TxQueues maps transmit queue indexes to the cores that send on them.
	TxQueues []int `yaml:"tx_queues"`

	// Loopback wires the port's tx queues back to its rx queues.
	Loopback bool `yaml:"loopback"`

	// Tso requests TCP segmentation offload. It is accepted but not passed
	// to any port backend, so it has no effect.
	Tso bool `yaml:"tso"`

	// Csum requests checksum offload. It is accepted but not passed to any
	// port backend, so it has no effect.
	Csum bool `yaml:"csum"`
}

// LoadConfig reads and validates a configuration file. Unknown keys are
// rejected.
func LoadConfig(path string) (*Configuration, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, common.ConfigurationError{Message: fmt.Sprintf("open %s: %v", path, err)}
	}
	defer f.Close()

	var cfg Configuration
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, common.ConfigurationError{Message: fmt.Sprintf("parse %s: %v", path, err)}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Configuration) applyDefaults() {
	if c.PoolSize == 0 {
		c.PoolSize = 2048
	}
	if c.CacheSize == 0 {
		c.CacheSize = 32
	}
}

// Validate rejects configurations the runtime could not bring up.
func (c *Configuration) Validate() error {
	if c.Name == "" {
		return common.ConfigurationError{Message: "name is required"}
	}
	if len(c.Cores) == 0 {
		return common.ConfigurationError{Message: "at least one core is required"}
	}
	seenCores := make(map[int]bool, len(c.Cores))
	for _, core := range c.Cores {
		if core < 0 {
			return common.ConfigurationError{Message: fmt.Sprintf("bad core %d", core)}
		}
		if seenCores[core] {
			return common.ConfigurationError{Message: fmt.Sprintf("core %d appears twice", core)}
		}
		seenCores[core] = true
	}
	seenPorts := make(map[string]bool, len(c.Ports))
	for _, port := range c.Ports {
		if port.Name == "" {
			return common.ConfigurationError{Message: "port without a name"}
		}
		if seenPorts[port.Name] {
			return common.ConfigurationError{Message: fmt.Sprintf("port %s appears twice", port.Name)}
		}
		seenPorts[port.Name] = true
		if len(port.RxQueues) == 0 || len(port.TxQueues) == 0 {
			return common.ConfigurationError{Message: fmt.Sprintf("port %s needs rx and tx queues", port.Name)}
		}
		for _, core := range port.RxQueues {
			if !seenCores[core] {
				return common.ConfigurationError{Message: fmt.Sprintf("port %s rx queue on unlisted core %d", port.Name, core)}
			}
		}
		for _, core := range port.TxQueues {
			if !seenCores[core] {
				return common.ConfigurationError{Message: fmt.Sprintf("port %s tx queue on unlisted core %d", port.Name, core)}
			}
		}
	}
	return nil
}

func (c *Configuration) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "name: %s, primary core: %d, cores: %v, pool: %d frames", c.Name, c.PrimaryCore, c.Cores, c.PoolSize)
	for _, p := range c.Ports {
		fmt.Fprintf(&sb, "\n  port %s rx %v tx %v loopback=%v", p.Name, p.RxQueues, p.TxQueues, p.Loopback)
	}
	return sb.String()
}
