package config

// Default returns the built-in configuration for the two production
// units. A config file overrides it entirely; there is no merging.
func Default() *Config {
	return &Config{
		Units: []Unit{
			{
				Name:             "RRP",
				TotalVehicles:    91,
				LoadedTransitSLA: 6.3667,
				EmptyTransitSLA:  6.0833,
				FocusPOI:         "PA Agua Clara",
				Active:           true,
				POIs: []POI{
					{Name: "Carregamento RRP", Group: "Loading", SLAHours: 1.0, Active: true},
					{Name: "Descarga Inocencia", Group: "Unloading", SLAHours: 1.1833, Active: true},
					{Name: "PA Agua Clara", Group: "OperationalStop", AlertThreshold: 10, Active: true},
					{Name: "Oficina JSL", Group: "Maintenance", AlertThreshold: 8, Active: true},
					{Name: "Montanini", Group: "OperationalStop", AlertThreshold: 10, Active: true},
					{Name: "Selviria", Group: "OperationalStop", Active: true},
				},
			},
			{
				Name:             "TLS",
				TotalVehicles:    91,
				LoadedTransitSLA: 3.5,
				EmptyTransitSLA:  2.9733,
				FocusPOI:         "PA Celulose",
				Active:           true,
				POIs: []POI{
					{Name: "Carregamento Fabrica", Group: "FactoryLoading", SLAHours: 1.0, Active: true},
					{Name: "Descarga TAP", Group: "Terminal", SLAHours: 0.9167, Active: true},
					{Name: "PA Celulose", Group: "OperationalStop", AlertThreshold: 10, Active: true},
					{Name: "Manutencao Celulose", Group: "Maintenance", AlertThreshold: 8, Active: true},
					{Name: "Oficina Central JSL", Group: "Maintenance", AlertThreshold: 8, Active: true},
					{Name: "Fila Descarga APT", Group: "OperationalStop", Active: true},
				},
			},
		},
	}
}
