package core

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config holds the application settings resolved from defaults, config/.env.<env> and the environment.
type Config struct {
	Env          string
	AppName      string
	Build        string
	Debug        bool
	TestMode     bool
	SecretKey    string `validate:"required"`
	RollbarToken string
	WorkDir      string

	Server struct {
		Host               string
		Port               int `validate:"min=0,max=65535"`
		JWTExpirationDelta time.Duration
		ShutdownTimeout    time.Duration
	}

	Database struct {
		Engine          string `validate:"required,oneof=sqlite3 postgres"`
		Path            string `validate:"required_if=Engine sqlite3"`
		Host            string
		Port            int
		Name            string `validate:"required_if=Engine postgres"`
		User            string
		Password        string
		AdminUser       string
		AdminPassword   string
		DisableTLS      bool
		MigrationPolicy string `validate:"required,oneof=versioned destructive"`
	}

	Remote struct {
		Kind            string `validate:"required,oneof=firestore oss b2 dir memory"`
		ProjectID       string `validate:"required_if=Kind firestore"`
		CredentialsFile string
		Root            string `validate:"required"`
		Bucket          string `validate:"required_if=Kind oss,required_if=Kind b2,required_if=Kind dir"` // directory for dir
		Prefix          string
		Endpoint        string `validate:"required_if=Kind oss"`
		AccessKeyID     string
		AccessKeySecret string
		B2Account       string `validate:"required_if=Kind b2"`
		B2Key           string `validate:"required_if=Kind b2"`
	}

	Mirror struct {
		Concurrency int           `validate:"min=1"`
		Timeout     time.Duration
		Schedule    string
		Schools     []string
		Collections []string `validate:"dive,identifier"`
	}
}

// Address returns the host:port the API server listens on.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// DatabaseAddress returns the host:port of a postgres server.
func (c *Config) DatabaseAddress() string {
	return fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port)
}

func newViper() *viper.Viper {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("testMode", false)
	conf.SetDefault("appName", "EduRise")
	conf.SetDefault("build", "dev")
	conf.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	conf.SetDefault("rollbarToken", "")

	conf.SetDefault("server.host", "")
	conf.SetDefault("server.port", 8000)
	conf.SetDefault("server.jwtExpirationDelta", 24*time.Hour)
	conf.SetDefault("server.shutdownTimeout", 10*time.Second)

	conf.SetDefault("database.engine", "sqlite3")
	conf.SetDefault("database.path", "edurise.db")
	conf.SetDefault("database.host", "localhost")
	conf.SetDefault("database.port", 5432)
	conf.SetDefault("database.name", "edurise")
	conf.SetDefault("database.user", "")
	conf.SetDefault("database.password", "")
	conf.SetDefault("database.adminUser", "")
	conf.SetDefault("database.adminPassword", "")
	conf.SetDefault("database.disableTLS", true)
	conf.SetDefault("database.migrationPolicy", "versioned")

	conf.SetDefault("remote.kind", "memory")
	conf.SetDefault("remote.projectID", "")
	conf.SetDefault("remote.credentialsFile", "")
	conf.SetDefault("remote.root", "school")
	conf.SetDefault("remote.bucket", "")
	conf.SetDefault("remote.prefix", "exports")
	conf.SetDefault("remote.endpoint", "")
	conf.SetDefault("remote.accessKeyID", "")
	conf.SetDefault("remote.accessKeySecret", "")
	conf.SetDefault("remote.b2Account", "")
	conf.SetDefault("remote.b2Key", "")

	conf.SetDefault("mirror.concurrency", 1)
	conf.SetDefault("mirror.timeout", 4*time.Minute)
	conf.SetDefault("mirror.schedule", "")
	conf.SetDefault("mirror.schools", "")
	conf.SetDefault("mirror.collections", "")
	return conf
}

// NewConfig loads the Config for the current ENV (DEV by default; TEST, QA, PROD).
func NewConfig() *Config {
	conf, err := LoadConfig(os.Getenv("ENV"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return conf
}

// LoadConfig is NewConfig without the fatal exit.
func LoadConfig(env string) (*Config, error) {
	v := newViper()

	env = strings.ToUpper(strings.TrimSpace(env))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	wd := Getwd()
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "checking %s", dotEnvPath)
	}
	v.AutomaticEnv()

	conf := &Config{
		Env:          env,
		AppName:      v.GetString("appName"),
		Build:        v.GetString("build"),
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		SecretKey:    v.GetString("secretKey"),
		RollbarToken: v.GetString("rollbarToken"),
		WorkDir:      wd,
	}

	conf.Server.Host = v.GetString("server.host")
	conf.Server.Port = v.GetInt("server.port")
	conf.Server.JWTExpirationDelta = v.GetDuration("server.jwtExpirationDelta")
	conf.Server.ShutdownTimeout = v.GetDuration("server.shutdownTimeout")

	conf.Database.Engine = v.GetString("database.engine")
	conf.Database.Path = v.GetString("database.path")
	conf.Database.Host = v.GetString("database.host")
	conf.Database.Port = v.GetInt("database.port")
	conf.Database.Name = v.GetString("database.name")
	conf.Database.User = v.GetString("database.user")
	conf.Database.Password = v.GetString("database.password")
	conf.Database.AdminUser = v.GetString("database.adminUser")
	conf.Database.AdminPassword = v.GetString("database.adminPassword")
	conf.Database.DisableTLS = v.GetBool("database.disableTLS")
	conf.Database.MigrationPolicy = CleanString(v.GetString("database.migrationPolicy"), true /* lower */)

	conf.Remote.Kind = CleanString(v.GetString("remote.kind"), true /* lower */)
	conf.Remote.ProjectID = v.GetString("remote.projectID")
	conf.Remote.CredentialsFile = v.GetString("remote.credentialsFile")
	conf.Remote.Root = v.GetString("remote.root")
	conf.Remote.Bucket = v.GetString("remote.bucket")
	conf.Remote.Prefix = v.GetString("remote.prefix")
	conf.Remote.Endpoint = v.GetString("remote.endpoint")
	conf.Remote.AccessKeyID = v.GetString("remote.accessKeyID")
	conf.Remote.AccessKeySecret = v.GetString("remote.accessKeySecret")
	conf.Remote.B2Account = v.GetString("remote.b2Account")
	conf.Remote.B2Key = v.GetString("remote.b2Key")

	conf.Mirror.Concurrency = v.GetInt("mirror.concurrency")
	conf.Mirror.Timeout = v.GetDuration("mirror.timeout")
	conf.Mirror.Schedule = v.GetString("mirror.schedule")
	conf.Mirror.Schools = SplitList(v.GetString("mirror.schools"))
	conf.Mirror.Collections = SplitList(v.GetString("mirror.collections"))

	if err := Validate.Struct(conf); err != nil {
		return nil, errors.Wrap(err, "validating config")
	}
	return conf, nil
}
