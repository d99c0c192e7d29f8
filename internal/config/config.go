// Package config loads the declarative camera list that drives
// CameraManager. The core never reads environment variables or flags
// itself; cmd/server resolves the -config path and passes it to Load,
// which reads and parses the file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport is the RTSP transport preference for a camera.
type Transport string

const (
	TransportTCP Transport = "tcp"
	TransportUDP Transport = "udp"
)

// CameraConfig is the immutable per-camera configuration consumed by
// CameraManager, FrameSource and MediaGraph.
type CameraConfig struct {
	Name            string    `yaml:"name"`
	RTSPURL         string    `yaml:"rtsp_url"`
	Transport       Transport `yaml:"transport"`
	ProbeTimeout    Duration  `yaml:"probe_timeout"`
	ProbeAttempts   int       `yaml:"probe_attempts"`
	ProbeDelay      Duration  `yaml:"probe_delay"`
	TargetFPS       int       `yaml:"target_fps"`
	ReconnectDelay  Duration  `yaml:"reconnect_delay"`
	MaxInFlight     int       `yaml:"max_in_flight_frames"`
}

// Duration wraps time.Duration so it can be parsed from YAML strings
// like "2s" instead of raw nanosecond integers.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Value() time.Duration { return time.Duration(d) }

// Defaults fills in the probe/backoff constants from §4.1/§5 of the
// specification wherever the YAML document left them zero.
func (c *CameraConfig) Defaults() {
	if c.Transport == "" {
		c.Transport = TransportTCP
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = Duration(2 * time.Second)
	}
	if c.ProbeAttempts == 0 {
		c.ProbeAttempts = 10
	}
	if c.ProbeDelay == 0 {
		c.ProbeDelay = Duration(2 * time.Second)
	}
	if c.TargetFPS == 0 {
		c.TargetFPS = 25
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = Duration(2 * time.Second)
	}
	if c.MaxInFlight == 0 {
		c.MaxInFlight = 4
	}
}

func (c CameraConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("config: camera entry missing name")
	}
	if c.RTSPURL == "" {
		return fmt.Errorf("config: camera %q missing rtsp_url", c.Name)
	}
	if c.Transport != TransportTCP && c.Transport != TransportUDP {
		return fmt.Errorf("config: camera %q has invalid transport %q", c.Name, c.Transport)
	}
	return nil
}

// Document is the top-level YAML shape: a declarative list of cameras
// plus the ambient listener addresses that are not part of the core
// contract (signaling port, metrics port, health port).
type Document struct {
	Cameras     []CameraConfig `yaml:"cameras"`
	SignalAddr  string         `yaml:"signal_addr"`
	MetricsAddr string         `yaml:"metrics_addr"`
	HealthAddr  string         `yaml:"health_addr"`
}

// Load reads and validates a camera list document from path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if doc.SignalAddr == "" {
		doc.SignalAddr = ":8443"
	}
	if doc.MetricsAddr == "" {
		doc.MetricsAddr = ":9090"
	}
	if doc.HealthAddr == "" {
		doc.HealthAddr = ":8080"
	}

	seen := make(map[string]bool, len(doc.Cameras))
	for i := range doc.Cameras {
		doc.Cameras[i].Defaults()
		if err := doc.Cameras[i].Validate(); err != nil {
			return nil, err
		}
		if seen[doc.Cameras[i].Name] {
			return nil, fmt.Errorf("config: duplicate camera name %q", doc.Cameras[i].Name)
		}
		seen[doc.Cameras[i].Name] = true
	}

	return &doc, nil
}
