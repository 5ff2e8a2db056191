package config

// NotifxConfig configures outgoing account mail.
type NotifxConfig struct {
	Provider    string
	FromAddress string
	FromName    string
	AWSRegion   string
	// ConfigurationSet is the SES configuration set tagged on every send
	ConfigurationSet string
	// Tags are attached to every message as "key=value" pairs
	Tags map[string]string
}

// From renders the sender as "Name <address>"
func (n NotifxConfig) From() string {
	if n.FromName == "" {
		return n.FromAddress
	}
	return n.FromName + " <" + n.FromAddress + ">"
}

func loadNotifxConfig() NotifxConfig {
	return NotifxConfig{
		Provider:         getEnv("NOTIFX_PROVIDER", "console"),
		FromAddress:      getEnv("NOTIFX_FROM_ADDRESS", getEnv("EMAIL_FROM_ADDRESS", "noreply@keystone.dev")),
		FromName:         getEnv("NOTIFX_FROM_NAME", getEnv("EMAIL_FROM_NAME", "Keystone")),
		AWSRegion:        getEnv("NOTIFX_AWS_REGION", getEnv("AWS_REGION", "us-east-1")),
		ConfigurationSet: getEnv("NOTIFX_SES_CONFIGURATION_SET", ""),
		Tags:             parsePairs(getEnv("NOTIFX_TAGS", "")),
	}
}
