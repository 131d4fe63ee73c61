//Package config loads the service configuration from config.yaml, .env and POSE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/chenBenjamin97/pose-action/pkg/utils"
)

const EnvPrefix = "POSE"

type Config struct {
	HTTP       HTTP       `mapstructure:"http"`
	Source     Source     `mapstructure:"source"`
	Detector   Detector   `mapstructure:"detector"`
	Classifier Classifier `mapstructure:"classifier"`
	Action     Action     `mapstructure:"action"`
	Redis      Redis      `mapstructure:"redis"`
	Store      Store      `mapstructure:"store"`
	Log        Log        `mapstructure:"log"`
	Directory  Directory  `mapstructure:"directory"`
}

type HTTP struct {
	Port string `mapstructure:"port" validate:"required,numeric"`

	//AllowedOrigins may open /api/ws besides the server's own origin, "*" allows any
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

//Source selects where frames come from. "api" means frames only arrive through POST /api/keypoints
type Source struct {
	Kind      string  `mapstructure:"kind" validate:"oneof=camera file api"`
	Device    int     `mapstructure:"device" validate:"gte=0"`
	Path      string  `mapstructure:"path" validate:"required_if=Kind file"`
	MaxFPS    float64 `mapstructure:"max_fps" validate:"gte=0"`
	InboxSize int     `mapstructure:"inbox_size" validate:"gt=0"`

	//Record writes every detection to a new file in directory.recordings
	Record bool `mapstructure:"record"`
}

type Detector struct {
	Model         string  `mapstructure:"model"`
	MinConfidence float64 `mapstructure:"min_confidence" validate:"gte=0,lte=1"`
	InputWidth    int     `mapstructure:"input_width" validate:"gt=0"`
	InputHeight   int     `mapstructure:"input_height" validate:"gt=0"`
}

type Classifier struct {
	Kind        string  `mapstructure:"kind" validate:"oneof=template python"`
	Templates   string  `mapstructure:"templates" validate:"required_if=Kind template"`
	Python      string  `mapstructure:"python"`
	Script      string  `mapstructure:"script" validate:"required_if=Kind python"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature" validate:"gte=0"`
}

type Action struct {
	Label      string        `mapstructure:"label" validate:"required"`
	Threshold  float64       `mapstructure:"threshold" validate:"gt=0,lte=1"`
	Cooldown   time.Duration `mapstructure:"cooldown" validate:"gt=0"`
	WindowSize int           `mapstructure:"window_size" validate:"gt=0"`
}

//Redis publishing is disabled when Addr is empty
type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
	Channel  string `mapstructure:"channel" validate:"required_with=Addr"`
}

//Store journaling is disabled when Path is empty
type Store struct {
	Path string `mapstructure:"path"`
}

type Log struct {
	Level string `mapstructure:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
	File  string `mapstructure:"file"`
}

type Directory struct {
	Recordings string `mapstructure:"recordings"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", "8080")
	v.SetDefault("http.allowed_origins", []string{})

	v.SetDefault("source.kind", "camera")
	v.SetDefault("source.device", 0)
	v.SetDefault("source.path", "")
	v.SetDefault("source.max_fps", 15)
	v.SetDefault("source.inbox_size", utils.DefaultInboxSize)
	v.SetDefault("source.record", false)

	v.SetDefault("detector.model", "./openpose/graph_opt.pb")
	v.SetDefault("detector.min_confidence", 0.1)
	v.SetDefault("detector.input_width", 368)
	v.SetDefault("detector.input_height", 368)

	v.SetDefault("classifier.kind", "template")
	v.SetDefault("classifier.templates", "./templates.json")
	v.SetDefault("classifier.python", "python3")
	v.SetDefault("classifier.script", "")
	v.SetDefault("classifier.model", "")
	v.SetDefault("classifier.temperature", 1.0)

	v.SetDefault("action.label", utils.DefaultWatchedLabel)
	v.SetDefault("action.threshold", utils.DefaultThreshold)
	v.SetDefault("action.cooldown", utils.DefaultCooldown)
	v.SetDefault("action.window_size", utils.WindowSize)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "pose:actions")

	v.SetDefault("store.path", "./data/actions.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	v.SetDefault("directory.recordings", "./data/recordings")
}

//Load reads .env (when present), then the yaml config at path (or ./config.yaml when path is empty and the
//file exists), then POSE_* environment variables, and validates the result
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config.Load: could not read .env file, got '%w'", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config.Load: could not read config file, got '%w'", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config.Load: could not decode config, got '%w'", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if !utils.InSlice(c.Source.Kind, utils.SourceKinds) {
		return fmt.Errorf("config: unknown source.kind '%s', want one of %v", c.Source.Kind, utils.SourceKinds)
	}
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: invalid configuration, got '%w'", err)
	}

	//frames from a camera or a file need a pose model; api frames carry keypoints already
	if c.Source.Kind != "api" && c.Detector.Model == "" {
		return errors.New("config: missing detector.model for source kind '" + c.Source.Kind + "'")
	}
	return nil
}

//EnsureDirectories creates the data directories the service writes to
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Directory.Recordings}
	if c.Store.Path != "" {
		dirs = append(dirs, filepath.Dir(c.Store.Path))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if _, err := os.Stat(dir); err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("EnsureDirectories: could not stat '%s', got '%w'", dir, err)
			}
			if err := os.MkdirAll(dir, 0766); err != nil {
				return fmt.Errorf("EnsureDirectories: could not create '%s', got '%w'", dir, err)
			}
		}
	}
	return nil
}
