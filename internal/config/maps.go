package config

type MapsConfig struct {
	GoogleMaps *GoogleMapsConfig `yaml:"google_maps"`
}

type GoogleMapsConfig struct {
	APIKey     string `yaml:"api_key"`
	ConsiderIP bool   `yaml:"consider_ip"`
	// Cell and wifi hints are read from the host when available.
	RadioType string `yaml:"radio_type"`
}

func loadMapsConfig() *MapsConfig {
	return &MapsConfig{
		GoogleMaps: &GoogleMapsConfig{
			APIKey:     getEnv("GOOGLE_MAPS_API_KEY", ""),
			ConsiderIP: getEnvAsBool("GOOGLE_MAPS_CONSIDER_IP", true),
			RadioType:  getEnv("GOOGLE_MAPS_RADIO_TYPE", ""),
		},
	}
}
