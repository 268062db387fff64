package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Init wires viper to the environment and the root command's persistent flags.
func Init(root *cobra.Command) {
	viper.SetEnvPrefix("PLANFORGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = godotenv.Load()
	if root != nil {
		_ = viper.BindPFlags(root.PersistentFlags())
	}
	setDefaults()
}

func setDefaults() {
	viper.SetDefault(KeyWorkspace, ".")
	viper.SetDefault(KeyListenAddr, "127.0.0.1:3001")
	viper.SetDefault(KeyBasePath, "/api")
	viper.SetDefault(KeyLogLevel, "info")
	viper.SetDefault(KeyGroqBaseURL, "https://api.groq.com/openai/v1")
	viper.SetDefault(KeyMaxUploadBytes, 5<<20)
	viper.SetDefault(KeyWebhookURLs, []string{})
}

func Workspace() string      { return viper.GetString(KeyWorkspace) }
func ListenAddr() string     { return viper.GetString(KeyListenAddr) }
func BasePath() string       { return viper.GetString(KeyBasePath) }
func LogLevel() string       { return viper.GetString(KeyLogLevel) }
func GroqBaseURL() string    { return viper.GetString(KeyGroqBaseURL) }
func MaxUploadBytes() int64  { return viper.GetInt64(KeyMaxUploadBytes) }
func WebhookURLs() []string  { return viper.GetStringSlice(KeyWebhookURLs) }
