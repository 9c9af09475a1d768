package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the process configuration, loaded once in main and injected
// everywhere else.
type Config struct {
	Port         string        `envconfig:"PORT" default:"4000"`
	DataDir      string        `envconfig:"DATA_DIR" default:"./data"`
	UploadDir    string        `envconfig:"UPLOAD_DIR" default:"./uploads"`
	JWTSecret    string        `envconfig:"JWT_SECRET" default:"change-me-in-production"`
	TokenTTL     time.Duration `envconfig:"TOKEN_TTL" default:"24h"`
	AMQPURL      string        `envconfig:"AMQP_URL"`
	AMQPExchange string        `envconfig:"AMQP_EXCHANGE" default:"messenger.events"`
	OTLPEndpoint string        `envconfig:"OTLP_ENDPOINT"`
	Environment  string        `envconfig:"ENVIRONMENT" default:"dev"`
	DebugRoutes  bool          `envconfig:"DEBUG_ROUTES" default:"false"`
	SendBuffer   int           `envconfig:"SEND_BUFFER" default:"128"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
