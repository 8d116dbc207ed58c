package database

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	appErrors "suite-backup/internal/errors"

	"github.com/go-playground/validator/v10"
	"github.com/go-sql-driver/mysql"
)

// Config holds the configuration parameters for the database connection
type Config struct {
	Host     string        `mapstructure:"host" yaml:"host" json:"host" validate:"required,hostname_rfc1123|ip"`
	Port     int           `mapstructure:"port" yaml:"port" json:"port" validate:"min=1,max=65535"`
	User     string        `mapstructure:"user" yaml:"user" json:"user" validate:"required"`
	Password string        `mapstructure:"password" yaml:"password" json:"-"`
	Database string        `mapstructure:"name" yaml:"name" json:"name" validate:"required"`
	Charset  string        `mapstructure:"charset" yaml:"charset" json:"charset"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

// Configured reports whether enough is set to attempt a connection
func (c Config) Configured() bool {
	return c.Host != "" && c.User != "" && c.Database != ""
}

// SetDefaults fills unset port, charset and timeout
func (c *Config) SetDefaults() {
	if c.Port == 0 {
		c.Port = 3306
	}
	if c.Charset == "" {
		c.Charset = "utf8mb4"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// Validate checks the struct tags and returns a ConfigurationError listing every problem
func (c Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return appErrors.NewConfigurationError("database configuration validation failed", err)
	}

	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, fmt.Sprintf("%s failed '%s'", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return appErrors.NewConfigurationError(
		fmt.Sprintf("database configuration validation failed: %s", strings.Join(problems, ", ")), err)
}

// DSN returns the Data Source Name for the MySQL driver. Values are scanned
// as raw bytes by the dumper, so parseTime stays off.
func (c Config) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = c.Host + ":" + strconv.Itoa(c.Port)
	cfg.DBName = c.Database
	cfg.Timeout = c.Timeout
	cfg.ParseTime = false
	if c.Charset != "" {
		cfg.Params = map[string]string{"charset": c.Charset}
	}
	return cfg.FormatDSN()
}

// Redacted returns a copy safe to print or log
func (c Config) Redacted() Config {
	if c.Password != "" {
		c.Password = "********"
	}
	return c
}
