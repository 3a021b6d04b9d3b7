package avoidance

import (
	"github.com/Max-lab10/Dronecraft-archipelago/internal/config"
)

// ConfigFromTuning builds a control-law Config from a loaded TuningConfig.
// Use this in binaries where the TuningConfig is already loaded; keys the
// tuning file does not set fall back to the reference values.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		CollisionRadius:      cfg.GetCollisionRadius(),
		ForceExponent:        cfg.GetForceExponent(),
		MaxSpeed:             cfg.GetMaxSpeed(),
		MaxAcceleration:      cfg.GetMaxAcceleration(),
		RepulsionStrength:    cfg.GetRepulsionStrength(),
		AttractionStrength:   cfg.GetAttractionStrength(),
		ArrivalRadius:        cfg.GetArrivalRadius(),
		TargetThreshold:      cfg.GetTargetThreshold(),
		TargetSpeedThreshold: cfg.GetTargetSpeedThreshold(),
		BaseDamping:          cfg.GetBaseDamping(),
		ForceDampingFactor:   cfg.GetForceDampingFactor(),
		MaxDamping:           cfg.GetMaxDamping(),
	}
}
