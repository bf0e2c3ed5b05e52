package config

const (
	SMSProviderNone   = "none"
	SMSProviderTwilio = "twilio"
	SMSProviderSNS    = "aws"
)

// SMSConfig selects the gateway used for silent alerts. With no gateway the
// agent opens the platform messaging app with the alert prefilled.
type SMSConfig struct {
	Provider    string        `yaml:"provider"`
	SenderName  string        `yaml:"sender_name"`
	Concurrency int           `yaml:"concurrency"`
	Twilio      *TwilioConfig `yaml:"twilio"`
	SNS         *SNSConfig    `yaml:"aws"`
}

type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	FromNumber string `yaml:"from_number"`
}

// SNSConfig falls back to the default AWS credential chain when no static
// keys are set.
type SNSConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

func loadSMSConfig() *SMSConfig {
	return &SMSConfig{
		Provider:    getEnv("SMS_PROVIDER", SMSProviderNone),
		SenderName:  getEnv("SMS_SENDER_NAME", "RAKSHAK"),
		Concurrency: getEnvAsInt("SMS_CONCURRENCY", 4),
		Twilio: &TwilioConfig{
			AccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
			FromNumber: getEnv("TWILIO_FROM_NUMBER", ""),
		},
		SNS: &SNSConfig{
			Region:          getEnv("AWS_SNS_REGION", getEnv("AWS_REGION", "ap-south-1")),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		},
	}
}
