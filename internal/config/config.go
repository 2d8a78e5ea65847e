// Package config loads the per-unit monitoring configuration: which
// POIs are watched, how they are grouped, transit service levels, and
// alert thresholds. The configuration is injected explicitly into the
// analytics stages; nothing reads it from package state.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// SLABuffer is the multiplicative tolerance applied to a base service
// level before a transit is flagged as excessive.
const SLABuffer = 1.3

// POI configures one monitored point of interest.
type POI struct {
	Name           string  `json:"name"`
	Group          string  `json:"group"`
	SLAHours       float64 `json:"sla_hours,omitempty"`
	AlertThreshold int     `json:"alert_threshold,omitempty"`
	Active         bool    `json:"active"`
}

// Unit configures one logistics unit: its fleet size, transit SLAs and
// monitored POIs.
type Unit struct {
	Name             string  `json:"name"`
	TotalVehicles    int     `json:"total_vehicles,omitempty"`
	LoadedTransitSLA float64 `json:"loaded_transit_sla_hours"`
	EmptyTransitSLA  float64 `json:"empty_transit_sla_hours"`
	// FocusPOI is the POI whose mean dwell feeds the daily summary.
	FocusPOI string `json:"focus_poi,omitempty"`
	POIs     []POI  `json:"pois"`
	Active   bool   `json:"active"`
}

// Config is the root monitoring configuration.
type Config struct {
	Units []Unit `json:"units"`
}

// Load reads and validates a JSON configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration is usable: at least one active
// unit, and every active unit has at least one active POI.
func (c *Config) Validate() error {
	active := 0
	for _, u := range c.Units {
		if !u.Active {
			continue
		}
		active++
		if u.Name == "" {
			return fmt.Errorf("config: active unit with empty name")
		}
		pois := 0
		for _, p := range u.POIs {
			if p.Active {
				pois++
				if p.Name == "" || p.Group == "" {
					return fmt.Errorf("config: unit %s: POI with empty name or group", u.Name)
				}
			}
		}
		if pois == 0 {
			return fmt.Errorf("config: unit %s has no active POIs", u.Name)
		}
	}
	if active == 0 {
		return fmt.Errorf("config: no active units")
	}
	return nil
}

// ActiveUnits returns units enabled for processing, in config order.
func (c *Config) ActiveUnits() []Unit {
	var out []Unit
	for _, u := range c.Units {
		if u.Active {
			out = append(out, u)
		}
	}
	return out
}

// Unit looks a unit up by name, active or not.
func (c *Config) Unit(name string) (Unit, bool) {
	for _, u := range c.Units {
		if u.Name == name {
			return u, true
		}
	}
	return Unit{}, false
}

// MonitoredPOIs returns the active POI names of the unit.
func (u Unit) MonitoredPOIs() map[string]bool {
	out := make(map[string]bool, len(u.POIs))
	for _, p := range u.POIs {
		if p.Active {
			out[p.Name] = true
		}
	}
	return out
}

// GroupMap returns the POI name to group name lookup for active POIs.
func (u Unit) GroupMap() map[string]string {
	out := make(map[string]string, len(u.POIs))
	for _, p := range u.POIs {
		if p.Active {
			out[p.Name] = p.Group
		}
	}
	return out
}

// LoadedTransitBound returns the loaded-transit service level with the
// buffer applied.
func (u Unit) LoadedTransitBound() float64 {
	return u.LoadedTransitSLA * SLABuffer
}

// EmptyTransitBound returns the empty-transit service level with the
// buffer applied.
func (u Unit) EmptyTransitBound() float64 {
	return u.EmptyTransitSLA * SLABuffer
}

// AlertGroups returns, per group name, the alert threshold to apply
// when consolidating the group's POIs. A group participates only if at
// least one of its active POIs has a positive threshold; the largest
// configured threshold wins.
func (u Unit) AlertGroups() map[string]int {
	out := make(map[string]int)
	for _, p := range u.POIs {
		if !p.Active || p.AlertThreshold <= 0 {
			continue
		}
		if p.AlertThreshold > out[p.Group] {
			out[p.Group] = p.AlertThreshold
		}
	}
	return out
}

// GroupPOIs returns the active POIs of a group that carry a positive
// alert threshold - the POIs the deviation detector consolidates.
func (u Unit) GroupPOIs(group string) []string {
	var out []string
	for _, p := range u.POIs {
		if p.Active && p.Group == group && p.AlertThreshold > 0 {
			out = append(out, p.Name)
		}
	}
	return out
}

// AllGroupPOIs returns every active POI of a group, threshold or not.
// The alert enricher searches arrivals across all of them.
func (u Unit) AllGroupPOIs(group string) []string {
	var out []string
	for _, p := range u.POIs {
		if p.Active && p.Group == group {
			out = append(out, p.Name)
		}
	}
	return out
}
