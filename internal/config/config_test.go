package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("built-in config failed validation: %v", err)
	}

	rrp, ok := cfg.Unit("RRP")
	if !ok {
		t.Fatal("unit RRP missing from built-in config")
	}
	if rrp.TotalVehicles != 91 {
		t.Errorf("RRP TotalVehicles = %d, want 91", rrp.TotalVehicles)
	}
	if got := rrp.LoadedTransitBound(); got != 6.3667*SLABuffer {
		t.Errorf("RRP LoadedTransitBound = %v, want %v", got, 6.3667*SLABuffer)
	}
	if !rrp.MonitoredPOIs()["PA Agua Clara"] {
		t.Error("PA Agua Clara should be monitored for RRP")
	}

	if _, ok := cfg.Unit("TLS"); !ok {
		t.Error("unit TLS missing from built-in config")
	}
}

func TestLoad(t *testing.T) {
	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		body := `{"units":[{"name":"RRP","active":true,"loaded_transit_sla_hours":6.0,
			"empty_transit_sla_hours":5.0,
			"pois":[{"name":"Carregamento RRP","group":"Loading","active":true}]}]}`
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load returned error: %v", err)
		}
		if len(cfg.ActiveUnits()) != 1 {
			t.Errorf("ActiveUnits = %d, want 1", len(cfg.ActiveUnits()))
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("no active units", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		if err := os.WriteFile(path, []byte(`{"units":[]}`), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Error("expected validation error for empty config")
		}
	})
}

func TestUnitLookups(t *testing.T) {
	u := Unit{
		Name: "RRP",
		POIs: []POI{
			{Name: "PA Agua Clara", Group: "OperationalStop", AlertThreshold: 10, Active: true},
			{Name: "PA Velho", Group: "OperationalStop", AlertThreshold: 8, Active: true},
			{Name: "PA Extra", Group: "OperationalStop", Active: true},
			{Name: "Oficina", Group: "Maintenance", AlertThreshold: 8, Active: true},
			{Name: "Desativado", Group: "Maintenance", AlertThreshold: 99, Active: false},
		},
		Active: true,
	}

	t.Run("AlertGroups takes the largest active threshold", func(t *testing.T) {
		groups := u.AlertGroups()
		if groups["OperationalStop"] != 10 {
			t.Errorf("OperationalStop threshold = %d, want 10", groups["OperationalStop"])
		}
		if groups["Maintenance"] != 8 {
			t.Errorf("Maintenance threshold = %d, want 8 (inactive POI ignored)", groups["Maintenance"])
		}
	})

	t.Run("GroupPOIs keeps only thresholded POIs", func(t *testing.T) {
		got := u.GroupPOIs("OperationalStop")
		if len(got) != 2 {
			t.Errorf("GroupPOIs = %v, want the two thresholded POIs", got)
		}
	})

	t.Run("AllGroupPOIs keeps every active POI", func(t *testing.T) {
		got := u.AllGroupPOIs("OperationalStop")
		if len(got) != 3 {
			t.Errorf("AllGroupPOIs = %v, want all three active POIs", got)
		}
	})
}
