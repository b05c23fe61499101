// Package config loads quill settings from flags, environment and config
// files, and builds the streaming client and store they describe.
package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-go-golems/quill/pkg/conversation"
	"github.com/go-go-golems/quill/pkg/dialogue"
	"github.com/go-go-golems/quill/pkg/engine"
	"github.com/go-go-golems/quill/pkg/security"
	"github.com/go-go-golems/quill/pkg/store"
	"github.com/go-go-golems/quill/pkg/stream"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	BackendOllama = "ollama"
	BackendHTTP   = "http"
	BackendOpenAI = "openai"
	BackendEcho   = "echo"

	EnvPrefix = "quill"
)

type Config struct {
	Backend      string  `mapstructure:"backend" yaml:"backend"`
	Endpoint     string  `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Model        string  `mapstructure:"model" yaml:"model"`
	Temperature  float64 `mapstructure:"temperature" yaml:"temperature"`
	SystemPrompt string  `mapstructure:"system-prompt" yaml:"system-prompt,omitempty"`
	OpenAIAPIKey string  `mapstructure:"openai-api-key" yaml:"openai-api-key,omitempty"`
	// Script is an optional dialogue script file replacing the built-in
	// email script.
	Script string `mapstructure:"script" yaml:"script,omitempty"`

	Store     string `mapstructure:"store" yaml:"store"`
	StorePath string `mapstructure:"store-path" yaml:"store-path,omitempty"`

	MetricsAddr string `mapstructure:"metrics-addr" yaml:"metrics-addr,omitempty"`

	LogLevel   string `mapstructure:"log-level" yaml:"log-level"`
	LogFormat  string `mapstructure:"log-format" yaml:"log-format"`
	LogFile    string `mapstructure:"log-file" yaml:"log-file,omitempty"`
	WithCaller bool   `mapstructure:"with-caller" yaml:"with-caller,omitempty"`
	Verbose    bool   `mapstructure:"verbose" yaml:"verbose,omitempty"`
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("backend", BackendOllama)
	v.SetDefault("model", "llama2")
	v.SetDefault("temperature", conversation.DefaultTemperature)
	v.SetDefault("store", store.BackendSQLite)
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "text")
}

// AddFlags registers the persistent flags every quill command understands.
func AddFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to config file (default ~/.quill/config.yaml)")
	flags.String("backend", BackendOllama, "Generation backend (ollama, http, openai, echo)")
	flags.String("endpoint", "", "Endpoint of the http and openai backends")
	flags.String("model", "llama2", "Model used for new conversations")
	flags.Float64("temperature", conversation.DefaultTemperature, "Sampling temperature for new conversations")
	flags.String("system-prompt", "", "System prompt for new conversations")
	flags.String("openai-api-key", "", "OpenAI API key")
	flags.String("script", "", "Dialogue script file (default: built-in email script)")
	flags.String("store", store.BackendSQLite, "Conversation store (sqlite, yaml, memory)")
	flags.String("store-path", "", "Path of the conversation store file")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address")

	flags.Bool("with-caller", false, "Log caller")
	flags.String("log-level", "info", "Log level (debug, info, warn, error, fatal)")
	flags.String("log-format", "text", "Log format (json, text)")
	flags.String("log-file", "", "Log file (default: stderr)")
	flags.Bool("verbose", false, "Verbose output")
}

// Init points v at the config file (or the usual search path), the QUILL_
// environment and the given flags.
func Init(v *viper.Viper, configPath string, flags *pflag.FlagSet) error {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.quill")
		v.AddConfigPath("/etc/quill")

		xdgConfigPath, err := os.UserConfigDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(xdgConfigPath, "quill"))
		}
	}

	err := v.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		// no config file, flags and environment only
	} else if err != nil {
		return errors.Wrap(err, "could not read config file")
	}
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return err
		}
	}

	log.Debug().Str("config", v.ConfigFileUsed()).Msg("Loaded configuration")
	return nil
}

func Load(v *viper.Viper) (*Config, error) {
	ret := &Config{}
	if err := v.Unmarshal(ret); err != nil {
		return nil, errors.Wrap(err, "could not decode configuration")
	}
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendOllama, BackendEcho:
	case BackendHTTP:
		if c.Endpoint == "" {
			return errors.New("the http backend needs --endpoint")
		}
		if err := security.ValidateEndpoint(c.Endpoint, security.EndpointPolicy{AllowHTTP: true}); err != nil {
			return err
		}
	case BackendOpenAI:
		if c.OpenAIAPIKey == "" {
			return errors.New("the openai backend needs --openai-api-key")
		}
		// the API key is not sent in clear text beyond the local network
		if c.Endpoint != "" {
			if err := security.ValidateEndpoint(c.Endpoint, security.EndpointPolicy{AllowLocalHTTP: true}); err != nil {
				return err
			}
		}
	default:
		return errors.Errorf("unknown backend %q", c.Backend)
	}

	switch c.Store {
	case store.BackendMemory, store.BackendYAML, store.BackendSQLite:
	default:
		return errors.Errorf("unknown store %q", c.Store)
	}

	if c.Temperature < 0 || c.Temperature > 2 {
		return errors.Errorf("temperature %v out of range [0, 2]", c.Temperature)
	}
	return nil
}

// Client builds the streaming client of the configured backend.
func (c *Config) Client() (stream.Client, error) {
	switch c.Backend {
	case BackendOllama:
		// the ollama client reads OLLAMA_HOST itself
		return stream.NewOllamaClientFromEnvironment()
	case BackendHTTP:
		return stream.NewHTTPClient(c.Endpoint), nil
	case BackendOpenAI:
		return stream.NewOpenAIClient(c.OpenAIAPIKey, c.Endpoint), nil
	case BackendEcho:
		return stream.NewEchoClient(), nil
	default:
		return nil, errors.Errorf("unknown backend %q", c.Backend)
	}
}

func (c *Config) OpenStore(ctx context.Context) (*store.Store, error) {
	kv, err := store.OpenKV(ctx, c.Store, c.StorePath)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s store", c.Store)
	}
	return store.New(kv), nil
}

func (c *Config) DialogueScript() (*dialogue.Script, error) {
	if c.Script == "" {
		return dialogue.EmailScript(), nil
	}
	return dialogue.LoadScriptFromFile(c.Script)
}

// EngineDefaults are the settings given to newly created conversations.
func (c *Config) EngineDefaults() engine.Defaults {
	return engine.Defaults{
		Model:       conversation.Model{ID: c.Model, Name: c.Model},
		Prompt:      c.SystemPrompt,
		Temperature: c.Temperature,
	}
}

// YAML renders the effective configuration with secrets masked.
func (c *Config) YAML() ([]byte, error) {
	c_ := *c
	if c_.OpenAIAPIKey != "" {
		c_.OpenAIAPIKey = "****"
	}
	return yaml.Marshal(&c_)
}
