package config

// Viper keys for process configuration. Runtime provider credentials live in
// the settings table, not here.
const (
	KeyWorkspace      = "workspace"
	KeyListenAddr     = "listen_addr"
	KeyBasePath       = "base_path"
	KeyLogLevel       = "log_level"
	KeyGroqBaseURL    = "groq_base_url"
	KeyMaxUploadBytes = "max_upload_bytes"
	KeyWebhookURLs    = "webhook_urls"
)
