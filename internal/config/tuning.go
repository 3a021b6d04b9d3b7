package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// Every field is a pointer so that a partial JSON file overrides only the
// keys it names; the Get* accessors supply defaults for nil fields.
type TuningConfig struct {
	// Radio link params
	Port        *string `json:"port,omitempty"`
	BaudRate    *int    `json:"baud_rate,omitempty"`
	NetworkID   *int    `json:"network_id,omitempty"`
	WifiChannel *int    `json:"wifi_channel,omitempty"`
	TxPower     *int    `json:"tx_power,omitempty"`

	// Swarm params
	BroadcastRateHz *float64 `json:"broadcast_rate_hz,omitempty"`
	PeerExpiry      *string  `json:"peer_expiry,omitempty"` // duration string like "5s"

	// Navigation params
	NavigationRateHz *float64 `json:"navigation_rate_hz,omitempty"`
	NavigateTimeout  *string  `json:"navigate_timeout,omitempty"` // duration string like "60s"
	TakeoffHeight    *float64 `json:"takeoff_height,omitempty"`

	// Collision avoidance params
	CollisionRadius      *float64 `json:"collision_radius,omitempty"`
	ForceExponent        *float64 `json:"force_exponent,omitempty"`
	MaxSpeed             *float64 `json:"max_speed,omitempty"`
	MaxAcceleration      *float64 `json:"max_acceleration,omitempty"`
	RepulsionStrength    *float64 `json:"repulsion_strength,omitempty"`
	AttractionStrength   *float64 `json:"attraction_strength,omitempty"`
	ArrivalRadius        *float64 `json:"arrival_radius,omitempty"`
	TargetThreshold      *float64 `json:"target_threshold,omitempty"`
	TargetSpeedThreshold *float64 `json:"target_speed_threshold,omitempty"`
	BaseDamping          *float64 `json:"base_damping,omitempty"`
	ForceDampingFactor   *float64 `json:"force_damping_factor,omitempty"`
	MaxDamping           *float64 `json:"max_damping,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/<pkg>/<sub>/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.BaudRate != nil && *c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", *c.BaudRate)
	}

	if c.NetworkID != nil {
		if *c.NetworkID < 0 || *c.NetworkID > 255 {
			return fmt.Errorf("network_id must be between 0 and 255, got %d", *c.NetworkID)
		}
	}

	if c.WifiChannel != nil {
		if *c.WifiChannel < 1 || *c.WifiChannel > 14 {
			return fmt.Errorf("wifi_channel must be between 1 and 14, got %d", *c.WifiChannel)
		}
	}

	if c.TxPower != nil {
		if *c.TxPower < 0 || *c.TxPower > 20 {
			return fmt.Errorf("tx_power must be between 0 and 20, got %d", *c.TxPower)
		}
	}

	if c.BroadcastRateHz != nil && *c.BroadcastRateHz <= 0 {
		return fmt.Errorf("broadcast_rate_hz must be positive, got %f", *c.BroadcastRateHz)
	}

	if c.NavigationRateHz != nil && *c.NavigationRateHz <= 0 {
		return fmt.Errorf("navigation_rate_hz must be positive, got %f", *c.NavigationRateHz)
	}

	// Validate PeerExpiry can be parsed if set
	if c.PeerExpiry != nil && *c.PeerExpiry != "" {
		if _, err := time.ParseDuration(*c.PeerExpiry); err != nil {
			return fmt.Errorf("invalid peer_expiry '%s': %w", *c.PeerExpiry, err)
		}
	}

	// Validate NavigateTimeout can be parsed if set
	if c.NavigateTimeout != nil && *c.NavigateTimeout != "" {
		if _, err := time.ParseDuration(*c.NavigateTimeout); err != nil {
			return fmt.Errorf("invalid navigate_timeout '%s': %w", *c.NavigateTimeout, err)
		}
	}

	if c.CollisionRadius != nil && *c.CollisionRadius <= 0 {
		return fmt.Errorf("collision_radius must be positive, got %f", *c.CollisionRadius)
	}

	if c.MaxSpeed != nil && *c.MaxSpeed <= 0 {
		return fmt.Errorf("max_speed must be positive, got %f", *c.MaxSpeed)
	}

	if c.MaxAcceleration != nil && *c.MaxAcceleration <= 0 {
		return fmt.Errorf("max_acceleration must be positive, got %f", *c.MaxAcceleration)
	}

	return nil
}

// GetPort returns the serial port path or the default.
func (c *TuningConfig) GetPort() string {
	if c.Port == nil || *c.Port == "" {
		return "/dev/ttyAMA1" // default
	}
	return *c.Port
}

// GetBaudRate returns the baud_rate value or the default.
func (c *TuningConfig) GetBaudRate() int {
	if c.BaudRate == nil {
		return 921600 // default
	}
	return *c.BaudRate
}

// GetNetworkID returns the network_id value or the default.
func (c *TuningConfig) GetNetworkID() uint8 {
	if c.NetworkID == nil {
		return 0x12 // default
	}
	return uint8(*c.NetworkID)
}

// GetWifiChannel returns the wifi_channel value or the default.
func (c *TuningConfig) GetWifiChannel() uint8 {
	if c.WifiChannel == nil {
		return 1 // default
	}
	return uint8(*c.WifiChannel)
}

// GetTxPower returns the tx_power value or the default.
func (c *TuningConfig) GetTxPower() uint8 {
	if c.TxPower == nil {
		return 11 // default
	}
	return uint8(*c.TxPower)
}

// GetBroadcastRate returns the broadcast_rate_hz value or the default.
func (c *TuningConfig) GetBroadcastRate() float64 {
	if c.BroadcastRateHz == nil {
		return 20.0 // default
	}
	return *c.BroadcastRateHz
}

// GetPeerExpiry parses and returns the PeerExpiry as a time.Duration.
func (c *TuningConfig) GetPeerExpiry() time.Duration {
	if c.PeerExpiry == nil || *c.PeerExpiry == "" {
		return 5 * time.Second // default
	}
	d, err := time.ParseDuration(*c.PeerExpiry)
	if err != nil {
		return 5 * time.Second // default on parse error
	}
	return d
}

// GetNavigationRate returns the navigation_rate_hz value or the default.
func (c *TuningConfig) GetNavigationRate() float64 {
	if c.NavigationRateHz == nil {
		return 10.0 // default
	}
	return *c.NavigationRateHz
}

// GetNavigateTimeout parses and returns the NavigateTimeout as a time.Duration.
func (c *TuningConfig) GetNavigateTimeout() time.Duration {
	if c.NavigateTimeout == nil || *c.NavigateTimeout == "" {
		return 60 * time.Second // default
	}
	d, err := time.ParseDuration(*c.NavigateTimeout)
	if err != nil {
		return 60 * time.Second // default on parse error
	}
	return d
}

// GetTakeoffHeight returns the takeoff_height value or the default.
func (c *TuningConfig) GetTakeoffHeight() float64 {
	if c.TakeoffHeight == nil {
		return 1.5 // default
	}
	return *c.TakeoffHeight
}

// GetCollisionRadius returns the collision_radius value or the default.
func (c *TuningConfig) GetCollisionRadius() float64 {
	if c.CollisionRadius == nil {
		return 0.15
	}
	return *c.CollisionRadius
}

// GetForceExponent returns the force_exponent value or the default.
func (c *TuningConfig) GetForceExponent() float64 {
	if c.ForceExponent == nil {
		return 1.45
	}
	return *c.ForceExponent
}

// GetMaxSpeed returns the max_speed value or the default.
func (c *TuningConfig) GetMaxSpeed() float64 {
	if c.MaxSpeed == nil {
		return 1.5
	}
	return *c.MaxSpeed
}

// GetMaxAcceleration returns the max_acceleration value or the default.
func (c *TuningConfig) GetMaxAcceleration() float64 {
	if c.MaxAcceleration == nil {
		return 3.0
	}
	return *c.MaxAcceleration
}

// GetRepulsionStrength returns the repulsion_strength value or the default.
func (c *TuningConfig) GetRepulsionStrength() float64 {
	if c.RepulsionStrength == nil {
		return 5000.0
	}
	return *c.RepulsionStrength
}

// GetAttractionStrength returns the attraction_strength value or the default.
func (c *TuningConfig) GetAttractionStrength() float64 {
	if c.AttractionStrength == nil {
		return 50.0
	}
	return *c.AttractionStrength
}

// GetArrivalRadius returns the arrival_radius value or the default.
func (c *TuningConfig) GetArrivalRadius() float64 {
	if c.ArrivalRadius == nil {
		return 0.75
	}
	return *c.ArrivalRadius
}

// GetTargetThreshold returns the target_threshold value or the default.
func (c *TuningConfig) GetTargetThreshold() float64 {
	if c.TargetThreshold == nil {
		return 0.2
	}
	return *c.TargetThreshold
}

// GetTargetSpeedThreshold returns the target_speed_threshold value or the default.
func (c *TuningConfig) GetTargetSpeedThreshold() float64 {
	if c.TargetSpeedThreshold == nil {
		return 0.1
	}
	return *c.TargetSpeedThreshold
}

// GetBaseDamping returns the base_damping value or the default.
func (c *TuningConfig) GetBaseDamping() float64 {
	if c.BaseDamping == nil {
		return 0.1
	}
	return *c.BaseDamping
}

// GetForceDampingFactor returns the force_damping_factor value or the default.
func (c *TuningConfig) GetForceDampingFactor() float64 {
	if c.ForceDampingFactor == nil {
		return 0.05
	}
	return *c.ForceDampingFactor
}

// GetMaxDamping returns the max_damping value or the default.
func (c *TuningConfig) GetMaxDamping() float64 {
	if c.MaxDamping == nil {
		return 0.25
	}
	return *c.MaxDamping
}
