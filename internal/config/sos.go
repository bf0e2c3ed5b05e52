package config

import (
	"time"
)

type SOSConfig struct {
	AudioLimit           time.Duration `yaml:"audio_limit"`
	AudioTick            time.Duration `yaml:"audio_tick"`
	LocationPushInterval time.Duration `yaml:"location_push_interval"`
	PhotoInterval        time.Duration `yaml:"photo_interval"`
	LocationTimeout      time.Duration `yaml:"location_timeout"`
	LocationMaxAge       time.Duration `yaml:"location_max_age"`
	VoiceSettleDelay     time.Duration `yaml:"voice_settle_delay"`
	NotifyTimeout        time.Duration `yaml:"notify_timeout"`
	DefaultCountryCode   string        `yaml:"default_country_code"`

	// Live location feed for connected UI clients.
	WatchMinDistanceMeters float64       `yaml:"watch_min_distance_meters"`
	WatchMinInterval       time.Duration `yaml:"watch_min_interval"`
	WatchMaxAccuracyMeters float64       `yaml:"watch_max_accuracy_meters"`
}

type DeviceConfig struct {
	// Capabilities the host has granted to the agent.
	GrantedPermissions []string `yaml:"granted_permissions"`

	LocationProvider string  `yaml:"location_provider"` // google, static
	StaticLatitude   float64 `yaml:"static_latitude"`
	StaticLongitude  float64 `yaml:"static_longitude"`

	// Commands use {output} as the placeholder for the artifact path.
	RecorderCommand   []string `yaml:"recorder_command"`
	CameraCommand     []string `yaml:"camera_command"`
	RecognizerCommand []string `yaml:"recognizer_command"`
	CaptureDir        string   `yaml:"capture_dir"`

	PhotoMaxBytes     int64 `yaml:"photo_max_bytes"`
	PhotoMaxDimension uint  `yaml:"photo_max_dimension"`

	PhoneticMatching bool `yaml:"phonetic_matching"`
}

func loadSOSConfig() *SOSConfig {
	return &SOSConfig{
		AudioLimit:             getEnvAsDuration("SOS_AUDIO_LIMIT", 120*time.Second),
		AudioTick:              getEnvAsDuration("SOS_AUDIO_TICK", time.Second),
		LocationPushInterval:   getEnvAsDuration("SOS_LOCATION_PUSH_INTERVAL", 3*time.Minute),
		PhotoInterval:          getEnvAsDuration("SOS_PHOTO_INTERVAL", 2*time.Minute),
		LocationTimeout:        getEnvAsDuration("SOS_LOCATION_TIMEOUT", 15*time.Second),
		LocationMaxAge:         getEnvAsDuration("SOS_LOCATION_MAX_AGE", 10*time.Second),
		VoiceSettleDelay:       getEnvAsDuration("SOS_VOICE_SETTLE_DELAY", 800*time.Millisecond),
		NotifyTimeout:          getEnvAsDuration("SOS_NOTIFY_TIMEOUT", time.Minute),
		DefaultCountryCode:     getEnv("SOS_DEFAULT_COUNTRY_CODE", "+91"),
		WatchMinDistanceMeters: getEnvAsFloat64("SOS_WATCH_MIN_DISTANCE_METERS", 10),
		WatchMinInterval:       getEnvAsDuration("SOS_WATCH_MIN_INTERVAL", 5*time.Second),
		WatchMaxAccuracyMeters: getEnvAsFloat64("SOS_WATCH_MAX_ACCURACY_METERS", 0),
	}
}

func loadDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		GrantedPermissions: getEnvAsSlice("DEVICE_GRANTED_PERMISSIONS",
			[]string{"location", "microphone", "camera", "storage", "contacts", "sms"}),
		LocationProvider: getEnv("DEVICE_LOCATION_PROVIDER", "google"),
		StaticLatitude:   getEnvAsFloat64("DEVICE_STATIC_LATITUDE", 0),
		StaticLongitude:  getEnvAsFloat64("DEVICE_STATIC_LONGITUDE", 0),
		RecorderCommand: getEnvAsSlice("DEVICE_RECORDER_COMMAND",
			[]string{"arecord", "-q", "-f", "S16_LE", "-r", "16000", "-c", "1", "{output}"}),
		CameraCommand: getEnvAsSlice("DEVICE_CAMERA_COMMAND",
			[]string{"fswebcam", "-q", "--no-banner", "-r", "1280x720", "{output}"}),
		RecognizerCommand: getEnvAsSlice("DEVICE_RECOGNIZER_COMMAND", nil),
		CaptureDir:        getEnv("DEVICE_CAPTURE_DIR", "./captures"),
		PhotoMaxBytes:     int64(getEnvAsInt("DEVICE_PHOTO_MAX_BYTES", 10*1024*1024)),
		PhotoMaxDimension: uint(getEnvAsInt("DEVICE_PHOTO_MAX_DIMENSION", 1920)),
		PhoneticMatching:  getEnvAsBool("DEVICE_PHONETIC_MATCHING", false),
	}
}
