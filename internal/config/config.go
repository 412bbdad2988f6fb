package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Scan      ScanConfig      `mapstructure:"scan"`
	Retention RetentionConfig `mapstructure:"retention"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // memory, sqlite, postgres
	Path            string        `mapstructure:"path"`   // sqlite file path
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN builds the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	switch c.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	default:
		return c.Path
	}
}

type StorageConfig struct {
	Type      string `mapstructure:"type"` // local, s3
	LocalDir  string `mapstructure:"local_dir"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
}

type EngineConfig struct {
	Provider    string        `mapstructure:"provider"` // scancode, remote
	ScanCodeBin string        `mapstructure:"scancode_bin"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout"` // per-file detection budget
}

type ScanConfig struct {
	Workers          int      `mapstructure:"workers"`
	MaxArchiveBytes  int64    `mapstructure:"max_archive_bytes"`
	MaxTotalBytes    int64    `mapstructure:"max_total_bytes"` // uncompressed budget per archive
	MaxEntries       int      `mapstructure:"max_entries"`
	WorkDir          string   `mapstructure:"work_dir"`
	Recursive        bool     `mapstructure:"recursive"`
	IncludeBinary    bool     `mapstructure:"include_binary"`
	Extensions       []string `mapstructure:"extensions"`
	LicenseFilenames []string `mapstructure:"license_filenames"`
}

type RetentionConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	MaxAge   time.Duration `mapstructure:"max_age"`
}

// defaultExtensions is the allow-list of extensions worth sending to the
// detection engine. Everything else is recorded but not scanned.
var defaultExtensions = []string{
	".py", ".js", ".ts", ".jsx", ".tsx", ".java", ".c", ".h", ".cpp", ".hpp",
	".cc", ".go", ".rs", ".rb", ".php", ".swift", ".kt", ".scala", ".cs",
	".sh", ".pl", ".r", ".m", ".sql", ".html", ".css", ".xml", ".json",
	".yaml", ".yml", ".toml", ".ini", ".cfg", ".md", ".rst", ".txt",
}

// defaultLicenseFilenames are the case-insensitive stems matched as license
// files regardless of extension.
var defaultLicenseFilenames = []string{
	"license", "licence", "copying", "notice", "unlicense", "readme",
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/licenscope.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "licenscope")
	v.SetDefault("database.name", "licenscope")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_dir", "./data/archives")
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.bucket", "licenscope-archives")
	v.SetDefault("engine.provider", "scancode")
	v.SetDefault("engine.scancode_bin", "scancode")
	v.SetDefault("engine.timeout", "30s")
	v.SetDefault("scan.workers", runtime.NumCPU())
	v.SetDefault("scan.max_archive_bytes", int64(100)<<20)
	v.SetDefault("scan.max_total_bytes", int64(1)<<30)
	v.SetDefault("scan.max_entries", 50000)
	v.SetDefault("scan.work_dir", filepath.Join(os.TempDir(), "licenscope"))
	v.SetDefault("scan.recursive", true)
	v.SetDefault("scan.include_binary", false)
	v.SetDefault("scan.extensions", defaultExtensions)
	v.SetDefault("scan.license_filenames", defaultLicenseFilenames)
	v.SetDefault("retention.enabled", false)
	v.SetDefault("retention.interval", "1h")
	v.SetDefault("retention.max_age", "72h")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("storage.use_ssl", "STORAGE_USE_SSL")
	v.BindEnv("engine.provider", "ENGINE_PROVIDER")
	v.BindEnv("engine.base_url", "ENGINE_BASE_URL")
	v.BindEnv("engine.api_key", "ENGINE_API_KEY")
	v.BindEnv("engine.scancode_bin", "SCANCODE_BIN")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
