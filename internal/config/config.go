package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Storage    StorageConfig    `yaml:"storage"`
	Portal     PortalConfig     `yaml:"portal"`
	Vault      VaultConfig      `yaml:"vault"`
	Cache      CacheConfig      `yaml:"cache"`
	Attendance AttendanceConfig `yaml:"attendance"`
	Workers    WorkersConfig    `yaml:"workers"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" validate:"gte=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	Name               string        `yaml:"name"`
	Charset            string        `yaml:"charset"`
	ParseTime          bool          `yaml:"parse_time"`
	Loc                string        `yaml:"loc"`
	MaxConnections     int           `yaml:"max_connections"`
	MaxIdleConnections int           `yaml:"max_idle_connections"`
	ConnectionLifetime time.Duration `yaml:"connection_lifetime"`
}

type RedisConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	PoolSize     int    `yaml:"pool_size"`
	RefreshQueue string `yaml:"refresh_queue"`
	DLQSuffix    string `yaml:"dlq_suffix"`
	KeyPrefix    string `yaml:"key_prefix"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
	Prefix    string `yaml:"prefix"`
}

// PortalConfig describes the dean's-office portal. Paths and markers are
// portal-version specific, so none of them are hard-coded in the client.
type PortalConfig struct {
	BaseURL                  string        `yaml:"base_url" validate:"required,url"`
	UserAgent                string        `yaml:"user_agent"`
	AcceptLanguage           string        `yaml:"accept_language"`
	Timeout                  time.Duration `yaml:"timeout" validate:"gt=0"`
	LoginPath                string        `yaml:"login_path" validate:"required"`
	GradesPath               string        `yaml:"grades_path" validate:"required"`
	TimetablePath            string        `yaml:"timetable_path" validate:"required"`
	AttendancePath           string        `yaml:"attendance_path" validate:"required"`
	WeekParam                string        `yaml:"week_param" validate:"required"`
	IdentifierField          string        `yaml:"identifier_field" validate:"required"`
	SecretField              string        `yaml:"secret_field" validate:"required"`
	TokenField               string        `yaml:"token_field" validate:"required"`
	InvalidLoginMarker       string        `yaml:"invalid_login_marker" validate:"required"`
	MissingCredentialsMarker string        `yaml:"missing_credentials_marker" validate:"required"`
	Location                 string        `yaml:"location"`
}

type VaultConfig struct {
	Backend   string `yaml:"backend" validate:"oneof=file memory redis s3"`
	Dir       string `yaml:"dir"`
	RecordKey string `yaml:"record_key" validate:"required"`
	DeviceKey string `yaml:"device_key" validate:"required"`
}

type CacheConfig struct {
	Backend string        `yaml:"backend" validate:"oneof=memory redis"`
	TTL     time.Duration `yaml:"ttl"`
}

// AttendanceRule matches a label containing any keyword unless it also
// contains one of the Except keywords.
type AttendanceRule struct {
	Category string   `yaml:"category" validate:"required"`
	Keywords []string `yaml:"keywords" validate:"required,min=1"`
	Except   []string `yaml:"except"`
}

// AttendanceConfig holds the ordered classification rules. The first rule
// whose keyword occurs in a label wins.
type AttendanceConfig struct {
	Rules []AttendanceRule `yaml:"rules" validate:"dive"`
}

type WorkersConfig struct {
	Prefetch PoolConfig `yaml:"prefetch"`
	Refresh  PoolConfig `yaml:"refresh"`
}

type PoolConfig struct {
	Count     int `yaml:"count" validate:"gte=1"`
	QueueSize int `yaml:"queue_size"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load() (*Config, error) {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	return LoadFile(configPath)
}

func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse expands ${VAR} references, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.applyDefaults()

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

// Default returns a configuration for the Synergia-style portal layout.
func Default() *Config {
	c := &Config{}
	c.Database.ParseTime = true
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	setString(&c.App.Name, "integration-school-portal")
	setInt(&c.Server.Port, 8080)
	setDuration(&c.Server.ReadTimeout, 15*time.Second)
	setDuration(&c.Server.WriteTimeout, 90*time.Second)
	setDuration(&c.Server.ShutdownTimeout, 10*time.Second)

	setString(&c.Database.Charset, "utf8mb4")
	setString(&c.Database.Loc, "Local")

	setString(&c.Redis.Host, "localhost")
	setInt(&c.Redis.Port, 6379)
	setString(&c.Redis.RefreshQueue, "portal:refresh")
	setString(&c.Redis.DLQSuffix, ":dlq")
	setString(&c.Redis.KeyPrefix, "portal:")

	p := &c.Portal
	setString(&p.BaseURL, "https://synergia.librus.pl")
	setString(&p.UserAgent, "Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1")
	setString(&p.AcceptLanguage, "pl-PL,pl;q=0.9,en;q=0.8")
	setDuration(&p.Timeout, 60*time.Second)
	setString(&p.LoginPath, "/loguj")
	setString(&p.GradesPath, "/przegladaj_oceny/uczen")
	setString(&p.TimetablePath, "/przegladaj_plan_lekcji")
	setString(&p.AttendancePath, "/przegladaj_nb/uczen")
	setString(&p.WeekParam, "tydzien")
	setString(&p.IdentifierField, "login")
	setString(&p.SecretField, "pass")
	setString(&p.TokenField, "_token")
	setString(&p.InvalidLoginMarker, "Błędny login")
	setString(&p.MissingCredentialsMarker, "Podaj login")
	setString(&p.Location, "Europe/Warsaw")

	setString(&c.Vault.Backend, "file")
	setString(&c.Vault.Dir, ".vault")
	setString(&c.Vault.RecordKey, "portal-credentials")
	setString(&c.Vault.DeviceKey, "device-key")

	setString(&c.Cache.Backend, "memory")

	if len(c.Attendance.Rules) == 0 {
		c.Attendance.Rules = DefaultAttendanceRules()
	}

	setInt(&c.Workers.Prefetch.Count, 1)
	setInt(&c.Workers.Prefetch.QueueSize, 8)
	setInt(&c.Workers.Refresh.Count, 2)
	setInt(&c.Workers.Refresh.QueueSize, 16)

	setString(&c.Logging.Level, "info")
	setString(&c.Logging.Format, "json")
}

// DefaultAttendanceRules lists Polish and English labels. Excused must
// precede absence because "nieobecność usprawiedliwiona" contains both;
// the negated forms are kept out of excused by Except.
func DefaultAttendanceRules() []AttendanceRule {
	return []AttendanceRule{
		{
			Category: "excused_absence",
			Keywords: []string{"usprawiedliw", "excused", "zwolnien"},
			Except:   []string{"nieusprawiedliw", "unexcused", "not excused"},
		},
		{Category: "lateness", Keywords: []string{"spoznien", "late", "tardy"}},
		{Category: "absence", Keywords: []string{"nieobecn", "absen"}},
	}
}

// MySQL DSN format: [username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=%s",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port,
		c.Database.Name, c.Database.Charset, c.Database.ParseTime, c.Database.Loc)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}

func setDuration(dst *time.Duration, def time.Duration) {
	if *dst == 0 {
		*dst = def
	}
}
