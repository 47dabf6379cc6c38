package env

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Config holds process settings taken from the environment. The archive
// catalog lives in its own properties file, see LoadCatalog.
type Config struct {
	Host         string        `env:"ONDEMAND_HOST,default=0.0.0.0"`
	HTTPAddr     string        `env:"ONDEMAND_HTTP_ADDR,default=:7362"`
	DebugHTTP    bool          `env:"ONDEMAND_DEBUG_HTTP"`
	LogLevel     string        `env:"ONDEMAND_LOG_LEVEL,default=info"`
	WriteTimeout time.Duration `env:"ONDEMAND_WRITE_TIMEOUT,default=500ms"`
	Reuseport    bool          `env:"ONDEMAND_REUSEPORT,default=true"`
}

func LoadConfig(ctx context.Context) (*Config, error) {
	config := Config{}

	if err := godotenv.Load(".env.local"); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
