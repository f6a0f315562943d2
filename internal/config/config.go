// Package config loads catalogd settings from an optional YAML file and
// command-line flags. Flags given explicitly win over file values.
package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"catalogd/internal/auth"
	"catalogd/internal/logger"
)

type LogConfig struct {
	Level string `yaml:"level"`
	// File receives a copy of the log in addition to stdout. Empty disables.
	File string `yaml:"file"`
}

type ServerConfig struct {
	Bind          string        `yaml:"bind"`
	Port          int           `yaml:"port"`
	MaxFrameBytes uint32        `yaml:"max_frame_bytes"`
	MaxImageBytes uint32        `yaml:"max_image_bytes"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
}

type DBConfig struct {
	Path string `yaml:"path"`
	// NewDatabase deletes the database file before opening it.
	NewDatabase bool `yaml:"new_database"`
	// RepairOrphans deletes items with dangling lookup references at startup.
	RepairOrphans bool `yaml:"repair_orphans"`
	// RestoreFrom replaces the database with a verified snapshot before opening.
	RestoreFrom string `yaml:"restore_from"`
}

type ImagesConfig struct {
	Root string `yaml:"root"`
}

type WorkerConfig struct {
	QueueDepth  int    `yaml:"queue_depth"`
	SnapshotDir string `yaml:"snapshot_dir"`
}

// Config mirrors the catalogd.yaml schema.
type Config struct {
	Log    LogConfig         `yaml:"log"`
	Server ServerConfig      `yaml:"server"`
	DB     DBConfig          `yaml:"db"`
	Images ImagesConfig      `yaml:"images"`
	Worker WorkerConfig      `yaml:"worker"`
	Argon2 auth.Argon2Params `yaml:"argon2"`
}

// Addr is the listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Server.Bind, strconv.Itoa(c.Server.Port))
}

// Default returns a fully populated configuration.
func Default() Config {
	var c Config
	applyDefaults(&c)
	return c
}

// Load reads a YAML config file, applies defaults and validates it. An empty
// path yields the defaults.
func Load(path string) (Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return c, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return c, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	applyDefaults(&c)
	if err := validate(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Parse builds the configuration from command-line arguments (without the
// program name). --config names the YAML file the other flags override.
func Parse(args []string, stderr io.Writer) (Config, error) {
	fs := pflag.NewFlagSet("catalogd", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("config", "", "path to catalogd.yaml")
	port := fs.Int("port", 0, "TCP port to listen on")
	bind := fs.String("bind", "", "address to bind")
	db := fs.String("db", "", "SQLite database file")
	imagesRoot := fs.String("images", "", "directory holding item images")
	logFile := fs.String("log-file", "", "also write the log to this file")
	quiet := fs.Bool("quiet", false, "log only errors")
	fresh := fs.Bool("new-database", false, "delete the database file before starting")
	repair := fs.Bool("repair", false, "delete items with dangling references at startup")
	restore := fs.String("restore", "", "replace the database with this snapshot before starting")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	c, err := Load(*path)
	if err != nil {
		return Config{}, err
	}
	if fs.Changed("port") {
		c.Server.Port = *port
	}
	if fs.Changed("bind") {
		c.Server.Bind = *bind
	}
	if fs.Changed("db") {
		c.DB.Path = *db
	}
	if fs.Changed("images") {
		c.Images.Root = *imagesRoot
	}
	if fs.Changed("log-file") {
		c.Log.File = *logFile
	}
	if *quiet {
		c.Log.Level = "error"
	}
	if *fresh {
		c.DB.NewDatabase = true
	}
	if *repair {
		c.DB.RepairOrphans = true
	}
	if fs.Changed("restore") {
		c.DB.RestoreFrom = *restore
	}
	if err := validate(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}

func applyDefaults(c *Config) {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.Bind == "" {
		c.Server.Bind = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 10003
	}
	if c.Server.MaxFrameBytes == 0 {
		c.Server.MaxFrameBytes = 1 << 20
	}
	if c.Server.MaxImageBytes == 0 {
		c.Server.MaxImageBytes = 32 << 20
	}
	if c.DB.Path == "" {
		c.DB.Path = "./data/catalog.db"
	}
	if c.Images.Root == "" {
		c.Images.Root = "./data/images"
	}
	if c.Worker.QueueDepth == 0 {
		c.Worker.QueueDepth = 128
	}
	if c.Worker.SnapshotDir == "" {
		c.Worker.SnapshotDir = "./data/snapshots"
	}
	if c.Argon2 == (auth.Argon2Params{}) {
		c.Argon2 = auth.DefaultArgon2Params()
	}
}

func validate(c *Config) error {
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port is invalid")
	}
	if c.Server.MaxFrameBytes < 64 {
		return errors.New("server.max_frame_bytes is too small")
	}
	if c.Server.IdleTimeout < 0 {
		return errors.New("server.idle_timeout must not be negative")
	}
	if strings.TrimSpace(c.DB.Path) == "" {
		return errors.New("db.path is required")
	}
	if c.DB.RestoreFrom != "" && c.DB.NewDatabase {
		return errors.New("db.restore_from and db.new_database are mutually exclusive")
	}
	if strings.TrimSpace(c.Images.Root) == "" {
		return errors.New("images.root is required")
	}
	if c.Worker.QueueDepth < 1 {
		return errors.New("worker.queue_depth must be positive")
	}
	p := c.Argon2
	if p.Memory == 0 || p.Iterations == 0 || p.Parallelism == 0 || p.SaltLen < 8 || p.KeyLen < 16 {
		return errors.New("argon2 parameters are invalid")
	}
	return nil
}
