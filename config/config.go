package config

import (
	"fmt"
	"github.com/hauke96/sigolo/v2"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"os"
	"osm4cities/area"
	"osm4cities/overpass"
	"osm4cities/refresh"
	"osm4cities/storage"
	"time"
)

// ConfigurationError describes an invalid or missing configuration value.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("Invalid configuration '%s': %s", e.Field, e.Message)
}

// Config holds all settings. Each field can be given as flag or as environment variable.
type Config struct {
	DatabaseDriver    string        `help:"Database driver." enum:"postgres,sqlite" default:"postgres" env:"DATABASE_DRIVER"`
	DatabaseDsn       string        `help:"Database connection string." env:"DATABASE_URL"`
	OverpassUrl       string        `help:"URL of the Overpass API interpreter." default:"https://overpass-api.de/api/interpreter" env:"OVERPASS_URL"`
	OverpassTimeout   time.Duration `help:"Timeout of one Overpass query." default:"180s" env:"OVERPASS_TIMEOUT"`
	NominatimUrl      string        `help:"Base URL of the Nominatim service used to look up areas." default:"https://nominatim.openstreetmap.org" env:"NOMINATIM_URL"`
	AreaCacheTtl      time.Duration `help:"Time areas are cached after a lookup." default:"24h" env:"AREA_CACHE_TTL"`
	CronSecret        string        `help:"Bearer token required by the task endpoints." env:"CRON_SECRET"`
	SendgridApiKey    string        `help:"SendGrid API key. Mails are only logged when empty." env:"SENDGRID_API_KEY"`
	MailFrom          string        `help:"Sender address of mails." env:"MAIL_FROM"`
	MailFromName      string        `help:"Sender name of mails." default:"OSM for Cities" env:"MAIL_FROM_NAME"`
	UpdateLimit       int           `help:"Maximum number of datasets refreshed per scheduled run." default:"1" env:"UPDATE_LIMIT"`
	UpdateConcurrency int           `help:"Number of datasets refreshed at the same time (1 to 3)." default:"1" env:"UPDATE_CONCURRENCY"`
	StaleAfter        time.Duration `help:"Age of the last check after which a dataset is refreshed again." default:"24h" env:"STALE_AFTER"`
	BaseUrl           string        `help:"Public URL of the application, used for links in mails." env:"BASE_URL"`
}

// Validate fills unset values with defaults and checks the remaining values.
func (c *Config) Validate() error {
	if c.DatabaseDriver == "" {
		c.DatabaseDriver = storage.DriverPostgres
	}
	if c.DatabaseDriver != storage.DriverPostgres && c.DatabaseDriver != storage.DriverSqlite {
		return &ConfigurationError{Field: "database-driver", Message: fmt.Sprintf("unknown driver '%s'", c.DatabaseDriver)}
	}
	if c.DatabaseDsn == "" {
		return &ConfigurationError{Field: "database-dsn", Message: "not set"}
	}

	if c.OverpassUrl == "" {
		c.OverpassUrl = overpass.DefaultURL
	}
	if c.OverpassTimeout <= 0 {
		c.OverpassTimeout = overpass.DefaultTimeout
	}
	if c.NominatimUrl == "" {
		c.NominatimUrl = area.DefaultURL
	}
	if c.AreaCacheTtl <= 0 {
		c.AreaCacheTtl = area.DefaultCacheTTL
	}

	if c.UpdateLimit == 0 {
		c.UpdateLimit = refresh.DefaultLimit
	}
	if c.UpdateLimit < 0 {
		return &ConfigurationError{Field: "update-limit", Message: fmt.Sprintf("must be at least 1 but was %d", c.UpdateLimit)}
	}
	if c.UpdateConcurrency == 0 {
		c.UpdateConcurrency = refresh.DefaultConcurrency
	}
	if c.UpdateConcurrency < 0 || c.UpdateConcurrency > refresh.MaxConcurrency {
		return &ConfigurationError{Field: "update-concurrency", Message: fmt.Sprintf("must be between 1 and %d but was %d", refresh.MaxConcurrency, c.UpdateConcurrency)}
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = refresh.DefaultStaleAfter
	}

	if c.SendgridApiKey != "" && c.MailFrom == "" {
		return &ConfigurationError{Field: "mail-from", Message: "required when a SendGrid API key is set"}
	}

	return nil
}

func (c *Config) RequireCronSecret() error {
	if c.CronSecret == "" {
		return &ConfigurationError{Field: "cron-secret", Message: "not set"}
	}
	return nil
}

// LoadEnvFiles sets environment variables from the given .env files. Missing files are ignored and variables which
// are already set are not overwritten.
func LoadEnvFiles(files ...string) error {
	for _, file := range files {
		_, err := os.Stat(file)
		if os.IsNotExist(err) {
			sigolo.Tracef("No env file %s", file)
			continue
		}

		err = godotenv.Load(file)
		if err != nil {
			return errors.Wrapf(err, "Unable to load env file %s", file)
		}
		sigolo.Debugf("Loaded env file %s", file)
	}
	return nil
}
