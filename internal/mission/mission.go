// Package mission loads declarative flight plans from YAML files. A mission
// names the shared waypoint route, discovery requirements and takeoff/land
// behaviour for a whole swarm; per-drone roles override the route for
// individual vehicles.
package mission

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so mission files can say "30s" or "1500ms".
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("mission: invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Waypoint is one navigation target in the mission frame.
type Waypoint struct {
	X    float64  `yaml:"x"`
	Y    float64  `yaml:"y"`
	Z    float64  `yaml:"z"`
	Yaw  *float64 `yaml:"yaw,omitempty"`  // nil holds the current heading
	Hold Duration `yaml:"hold,omitempty"` // pause after arrival
}

// Role assigns one drone its own route instead of the shared waypoints.
type Role struct {
	Drone     uint8      `yaml:"drone"`
	Waypoints []Waypoint `yaml:"waypoints"`
}

// Mission is a flight plan shared by every drone in the swarm. Fields left
// unset fall back to operational defaults when the mission runs.
type Mission struct {
	Name             string     `yaml:"name"`
	Frame            string     `yaml:"frame,omitempty"`
	TakeoffHeight    float64    `yaml:"takeoff_height,omitempty"`
	Speed            float64    `yaml:"speed,omitempty"`
	WaitForPeers     int        `yaml:"wait_for_peers,omitempty"`
	DiscoveryTimeout Duration   `yaml:"discovery_timeout,omitempty"`
	MasterElection   bool       `yaml:"master_election,omitempty"`
	Waypoints        []Waypoint `yaml:"waypoints,omitempty"`
	Roles            []Role     `yaml:"roles,omitempty"`
	Land             *bool      `yaml:"land,omitempty"`
}

// Load reads and validates a mission file.
func Load(path string) (*Mission, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mission file: %w", err)
	}

	var m Mission
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse mission YAML: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mission: %w", err)
	}

	return &m, nil
}

// Validate checks the mission for structural problems.
func (m *Mission) Validate() error {
	if len(m.Waypoints) == 0 && len(m.Roles) == 0 {
		return errors.New("mission has no waypoints and no roles")
	}
	if m.TakeoffHeight < 0 {
		return fmt.Errorf("takeoff_height must be non-negative, got %f", m.TakeoffHeight)
	}
	if m.Speed < 0 {
		return fmt.Errorf("speed must be non-negative, got %f", m.Speed)
	}
	if m.WaitForPeers < 0 {
		return fmt.Errorf("wait_for_peers must be non-negative, got %d", m.WaitForPeers)
	}
	if m.DiscoveryTimeout < 0 {
		return fmt.Errorf("discovery_timeout must be non-negative, got %s", m.DiscoveryTimeout.Std())
	}

	for i, wp := range m.Waypoints {
		if wp.Hold < 0 {
			return fmt.Errorf("waypoint %d: hold must be non-negative, got %s", i, wp.Hold.Std())
		}
	}

	seen := make(map[uint8]bool)
	for _, r := range m.Roles {
		if r.Drone == 0 {
			return errors.New("role drone id must be nonzero")
		}
		if seen[r.Drone] {
			return fmt.Errorf("duplicate role for drone %d", r.Drone)
		}
		seen[r.Drone] = true

		if len(r.Waypoints) == 0 {
			return fmt.Errorf("role for drone %d has no waypoints", r.Drone)
		}
		for i, wp := range r.Waypoints {
			if wp.Hold < 0 {
				return fmt.Errorf("role for drone %d waypoint %d: hold must be non-negative", r.Drone, i)
			}
		}
	}

	return nil
}

// WaypointsFor returns the route for one drone: its role's waypoints when a
// role names it, the shared waypoints otherwise.
func (m *Mission) WaypointsFor(droneID uint8) []Waypoint {
	for _, r := range m.Roles {
		if r.Drone == droneID {
			return r.Waypoints
		}
	}
	return m.Waypoints
}

// ShouldLand reports whether the mission ends with a landing. Missions land
// unless the file says otherwise.
func (m *Mission) ShouldLand() bool {
	return m.Land == nil || *m.Land
}
