package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	JWTSecret         string        `mapstructure:"JWT_SECRET"`
	JWTTTL            time.Duration `mapstructure:"JWT_TTL"`
	JWTIssuer         string        `mapstructure:"JWT_ISSUER"`
	CookieName        string        `mapstructure:"COOKIE_NAME"`
	CookieSecure      bool          `mapstructure:"COOKIE_SECURE"`
	AllowRegistration bool          `mapstructure:"ALLOW_REGISTRATION"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS      float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst    int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ClinicTimezone    string        `mapstructure:"CLINIC_TIMEZONE"`
	BlobBackend       string        `mapstructure:"BLOB_BACKEND"`
	MongoURI          string        `mapstructure:"MONGO_URI"`
	MongoDatabase     string        `mapstructure:"MONGO_DATABASE"`
	UploadMaxFileSize string        `mapstructure:"UPLOAD_MAX_FILE_SIZE"`
	UploadMaxFiles    int           `mapstructure:"UPLOAD_MAX_FILES"`
	PhotoMaxDimension int           `mapstructure:"PHOTO_MAX_DIMENSION"`
	PhotoJPEGQuality  int           `mapstructure:"PHOTO_JPEG_QUALITY"`
	PhotoMaxPixels    int64         `mapstructure:"PHOTO_MAX_PIXELS"`
	StaticDir         string        `mapstructure:"STATIC_DIR"`
}

var envKeys = []string{
	"PORT", "ENV", "LOG_LEVEL", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"JWT_SECRET", "JWT_TTL", "JWT_ISSUER", "COOKIE_NAME", "COOKIE_SECURE", "ALLOW_REGISTRATION",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT", "CLINIC_TIMEZONE",
	"BLOB_BACKEND", "MONGO_URI", "MONGO_DATABASE",
	"UPLOAD_MAX_FILE_SIZE", "UPLOAD_MAX_FILES", "PHOTO_MAX_DIMENSION", "PHOTO_JPEG_QUALITY",
	"PHOTO_MAX_PIXELS", "STATIC_DIR",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("JWT_TTL", "168h")
	v.SetDefault("JWT_ISSUER", "clinic")
	v.SetDefault("COOKIE_NAME", "token")
	v.SetDefault("ALLOW_REGISTRATION", true)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("CLINIC_TIMEZONE", "Local")
	v.SetDefault("BLOB_BACKEND", "postgres")
	v.SetDefault("MONGO_DATABASE", "clinic")
	v.SetDefault("UPLOAD_MAX_FILE_SIZE", "10M")
	v.SetDefault("UPLOAD_MAX_FILES", 10)
	v.SetDefault("PHOTO_MAX_DIMENSION", 1600)
	v.SetDefault("PHOTO_JPEG_QUALITY", 82)
	v.SetDefault("PHOTO_MAX_PIXELS", 40_000_000)

	for _, key := range envKeys {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = nil
			for _, o := range strings.Split(origins, ",") {
				if o = strings.TrimSpace(o); o != "" {
					cfg.CORSOrigins = append(cfg.CORSOrigins, o)
				}
			}
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Location resolves CLINIC_TIMEZONE. Appointment dates and times are wall-clock
// values in this zone.
func (c *Config) Location() (*time.Location, error) {
	if c.ClinicTimezone == "" || c.ClinicTimezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return nil, fmt.Errorf("CLINIC_TIMEZONE %q: %w", c.ClinicTimezone, err)
	}
	return loc, nil
}

// Validate checks that the configuration is safe to run. Outside development
// JWT_SECRET must be set and at least 32 bytes long.
func (c *Config) Validate() error {
	if !c.IsDev() && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters when ENV=%q", c.Env)
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive, got %s", c.JWTTTL)
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	switch c.BlobBackend {
	case "postgres", "memory":
	case "gridfs":
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required when BLOB_BACKEND is \"gridfs\"")
		}
	default:
		return fmt.Errorf("BLOB_BACKEND must be \"postgres\", \"gridfs\", or \"memory\", got %q", c.BlobBackend)
	}
	if c.IsProduction() && c.BlobBackend == "memory" {
		return fmt.Errorf("BLOB_BACKEND=memory is not allowed in production")
	}

	if c.UploadMaxFiles <= 0 {
		return fmt.Errorf("UPLOAD_MAX_FILES must be positive, got %d", c.UploadMaxFiles)
	}
	if c.PhotoJPEGQuality < 1 || c.PhotoJPEGQuality > 100 {
		return fmt.Errorf("PHOTO_JPEG_QUALITY must be between 1 and 100, got %d", c.PhotoJPEGQuality)
	}
	if c.PhotoMaxDimension <= 0 {
		return fmt.Errorf("PHOTO_MAX_DIMENSION must be positive, got %d", c.PhotoMaxDimension)
	}
	if c.PhotoMaxPixels <= 0 {
		return fmt.Errorf("PHOTO_MAX_PIXELS must be positive, got %d", c.PhotoMaxPixels)
	}
	return nil
}
