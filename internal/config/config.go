// Package config loads hatseye configuration from defaults, an optional
// YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	Web         WebConfig         `mapstructure:"web"`
	Camera      CameraConfig      `mapstructure:"camera"`
	Detection   DetectionConfig   `mapstructure:"detection"`
	Hazard      HazardConfig      `mapstructure:"hazard"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	Interaction InteractionConfig `mapstructure:"interaction"`
	Vision      VisionConfig      `mapstructure:"vision"`
	TTS         TTSConfig         `mapstructure:"tts"`
	Audio       AudioConfig       `mapstructure:"audio"`
	MQTT        MQTTConfig        `mapstructure:"mqtt"`
}

// LogConfig selects the level and the "text" or "json" format. An empty
// format picks json in production.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type WebConfig struct {
	Addr         string `mapstructure:"addr"`
	AllowOrigins string `mapstructure:"alloworigins"`
	StaticDir    string `mapstructure:"staticdir"`
}

type CameraConfig struct {
	// Device is the capture index. -1 probes indexes 0..MaxProbe.
	Device      int `mapstructure:"device"`
	MaxProbe    int `mapstructure:"maxprobe"`
	Width       int `mapstructure:"width"`
	Height      int `mapstructure:"height"`
	FPS         int `mapstructure:"fps"`
	JPEGQuality int `mapstructure:"jpegquality"`
}

type DetectionConfig struct {
	Active     bool          `mapstructure:"active"`
	Stride     int           `mapstructure:"stride"`
	Wait       time.Duration `mapstructure:"wait"`
	Timeout    time.Duration `mapstructure:"timeout"`
	APIURL     string        `mapstructure:"apiurl"`
	ModelID    string        `mapstructure:"modelid"`
	APIKey     string        `mapstructure:"apikey"`
	Confidence int           `mapstructure:"confidence"`
	Overlap    int           `mapstructure:"overlap"`
	RateLimit  float64       `mapstructure:"ratelimit"`

	// ModelPath selects the local ONNX detector when no API key is set.
	ModelPath string   `mapstructure:"modelpath"`
	Labels    []string `mapstructure:"labels"`
}

type HazardConfig struct {
	Classes        []string      `mapstructure:"classes"`
	Dwell          time.Duration `mapstructure:"dwell"`
	MissTolerance  int           `mapstructure:"misstolerance"`
	ProximityCM    int           `mapstructure:"proximitycm"`
	ProximityClass string        `mapstructure:"proximityclass"`
}

type TelemetryConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Port              string        `mapstructure:"port"`
	Baud              int           `mapstructure:"baud"`
	Sensors           int           `mapstructure:"sensors"`
	MaxIntensity      int           `mapstructure:"maxintensity"`
	ProbeTimeout      time.Duration `mapstructure:"probetimeout"`
	ReadTimeout       time.Duration `mapstructure:"readtimeout"`
	LinkTimeout       time.Duration `mapstructure:"linktimeout"`
	ReconnectAttempts int           `mapstructure:"reconnectattempts"`
	ReconnectBackoff  time.Duration `mapstructure:"reconnectbackoff"`
	MaxBackoff        time.Duration `mapstructure:"maxbackoff"`
}

type InteractionConfig struct {
	ListenTimeout    time.Duration `mapstructure:"listentimeout"`
	CaptureTimeout   time.Duration `mapstructure:"capturetimeout"`
	AnalysisTimeout  time.Duration `mapstructure:"analysistimeout"`
	SynthesisTimeout time.Duration `mapstructure:"synthesistimeout"`
	PlaybackTimeout  time.Duration `mapstructure:"playbacktimeout"`
	WakePhrases      []string      `mapstructure:"wakephrases"`
}

type VisionConfig struct {
	APIKey      string        `mapstructure:"apikey"`
	BaseURL     string        `mapstructure:"baseurl"`
	Models      []string      `mapstructure:"models"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxDim      int           `mapstructure:"maxdim"`
	JPEGQuality int           `mapstructure:"jpegquality"`
}

type TTSConfig struct {
	APIKey   string        `mapstructure:"apikey"`
	Voice    string        `mapstructure:"voice"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cachettl"`
}

type AudioConfig struct {
	Player       string `mapstructure:"player"`
	ClipsDir     string `mapstructure:"clipsdir"`
	WakeClip     string `mapstructure:"wakeclip"`
	QuestionClip string `mapstructure:"questionclip"`
	AlertClip    string `mapstructure:"alertclip"`
}

type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"clientid"`
	Topic    string `mapstructure:"topic"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	QoS      int    `mapstructure:"qos"`
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "")

	v.SetDefault("web.addr", ":8080")
	v.SetDefault("web.alloworigins", "*")
	v.SetDefault("web.staticdir", "public")

	v.SetDefault("camera.device", -1)
	v.SetDefault("camera.maxprobe", 5)
	v.SetDefault("camera.width", 640)
	v.SetDefault("camera.height", 480)
	v.SetDefault("camera.fps", 15)
	v.SetDefault("camera.jpegquality", 80)

	v.SetDefault("detection.active", true)
	v.SetDefault("detection.stride", 5)
	v.SetDefault("detection.wait", 250*time.Millisecond)
	v.SetDefault("detection.timeout", 5*time.Second)
	v.SetDefault("detection.apiurl", "https://detect.roboflow.com")
	v.SetDefault("detection.modelid", "road-damage-lh70u-dk94k/1")
	v.SetDefault("detection.confidence", 40)
	v.SetDefault("detection.overlap", 30)
	v.SetDefault("detection.ratelimit", 4.0)
	v.SetDefault("detection.apikey", "")
	v.SetDefault("detection.modelpath", "")
	v.SetDefault("detection.labels", []string{"crack", "pothole"})

	v.SetDefault("hazard.classes", []string{"pothole"})
	v.SetDefault("hazard.dwell", 250*time.Millisecond)
	v.SetDefault("hazard.misstolerance", 0)
	v.SetDefault("hazard.proximitycm", 30)
	v.SetDefault("hazard.proximityclass", "obstacle")

	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.port", "auto")
	v.SetDefault("telemetry.baud", 9600)
	v.SetDefault("telemetry.sensors", 4)
	v.SetDefault("telemetry.maxintensity", 255)
	v.SetDefault("telemetry.probetimeout", 3*time.Second)
	v.SetDefault("telemetry.readtimeout", 100*time.Millisecond)
	v.SetDefault("telemetry.linktimeout", 3*time.Second)
	v.SetDefault("telemetry.reconnectattempts", 5)
	v.SetDefault("telemetry.reconnectbackoff", 500*time.Millisecond)
	v.SetDefault("telemetry.maxbackoff", 8*time.Second)

	v.SetDefault("interaction.listentimeout", 10*time.Second)
	v.SetDefault("interaction.capturetimeout", 2*time.Second)
	v.SetDefault("interaction.analysistimeout", 20*time.Second)
	v.SetDefault("interaction.synthesistimeout", 15*time.Second)
	v.SetDefault("interaction.playbacktimeout", 60*time.Second)
	v.SetDefault("interaction.wakephrases", []string{})

	v.SetDefault("vision.baseurl", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("vision.models", []string{"gemini-2.0-flash", "gemini-1.5-flash", "gemini-1.5-flash-8b"})
	v.SetDefault("vision.timeout", 20*time.Second)
	v.SetDefault("vision.maxdim", 512)
	v.SetDefault("vision.apikey", "")
	v.SetDefault("vision.jpegquality", 70)

	v.SetDefault("tts.apikey", "")
	v.SetDefault("tts.voice", "bella")
	v.SetDefault("tts.model", "eleven_turbo_v2_5")
	v.SetDefault("tts.timeout", 15*time.Second)
	v.SetDefault("tts.cachettl", 30*time.Minute)

	v.SetDefault("audio.player", "ffplay")
	v.SetDefault("audio.clipsdir", "public")
	v.SetDefault("audio.wakeclip", "wake_word_sound.mp3")
	v.SetDefault("audio.questionclip", "question_received_sound.mp3")
	v.SetDefault("audio.alertclip", "alert_sound.mp3")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.clientid", "")
	v.SetDefault("mqtt.topic", "hatseye")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.qos", 1)
}

// Default returns the built-in defaults without reading files or the
// environment.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		panic(fmt.Sprintf("config: defaults do not unmarshal: %v", err))
	}
	return cfg
}

// Load reads configuration. An empty path searches the default locations;
// a missing file is not an error unless path was given explicitly.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("HATSEYE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else {
		v.SetConfigName("hatseye")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/hatseye")
		}
		v.AddConfigPath("/etc/hatseye")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: read: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.applyKeyEnv()
	return cfg, nil
}

// applyKeyEnv fills API keys from the conventional provider variables when
// the config leaves them empty.
func (c *Config) applyKeyEnv() {
	if c.Vision.APIKey == "" {
		c.Vision.APIKey = firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY")
	}
	if c.TTS.APIKey == "" {
		c.TTS.APIKey = firstEnv("ELEVENLABS_API_KEY")
	}
	if c.Detection.APIKey == "" {
		c.Detection.APIKey = firstEnv("ROBOFLOW_API_KEY")
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return &ConfigError{Field: "log.format", Message: "must be text or json"}
	}
	if c.Detection.Stride < 1 {
		return &ConfigError{Field: "detection.stride", Message: "must be at least 1"}
	}
	if c.Detection.Wait < 0 {
		return &ConfigError{Field: "detection.wait", Message: "must not be negative"}
	}
	if c.Hazard.Dwell < 0 {
		return &ConfigError{Field: "hazard.dwell", Message: "must not be negative"}
	}
	if c.Hazard.MissTolerance < 0 {
		return &ConfigError{Field: "hazard.misstolerance", Message: "must not be negative"}
	}
	if c.Telemetry.Sensors < 1 {
		return &ConfigError{Field: "telemetry.sensors", Message: "must be at least 1"}
	}
	if c.Telemetry.Baud <= 0 {
		return &ConfigError{Field: "telemetry.baud", Message: "must be positive"}
	}
	if c.Camera.JPEGQuality < 1 || c.Camera.JPEGQuality > 100 {
		return &ConfigError{Field: "camera.jpegquality", Message: "must be in 1..100"}
	}
	if c.Vision.APIKey == "" {
		return &ConfigError{Field: "vision.apikey", Message: "GEMINI_API_KEY environment variable is required"}
	}
	if len(c.Vision.Models) == 0 {
		return &ConfigError{Field: "vision.models", Message: "at least one model is required"}
	}
	if c.TTS.APIKey == "" {
		return &ConfigError{Field: "tts.apikey", Message: "ELEVENLABS_API_KEY environment variable is required"}
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return &ConfigError{Field: "mqtt.broker", Message: "broker is required when mqtt is enabled"}
	}
	return nil
}
