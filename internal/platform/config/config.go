package config

import "time"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Model     ModelConfig     `yaml:"model"`
	Folders   FoldersConfig   `yaml:"folders"`
	Streaming StreamingConfig `yaml:"streaming"`
	Cache     CacheConfig     `yaml:"cache"`
	Engine    EngineConfig    `yaml:"engine"`
	Storage   StorageConfig   `yaml:"storage"`
}

type ServerConfig struct {
	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"log_level"`
	Dir   string `yaml:"log_dir"`
	File  string `yaml:"log_file"`
}

// ModelConfig describes which synthesis model the engine should load.
// Source "local" loads from Folder; "api" uses a hosted model and disables
// HTTP streaming.
type ModelConfig struct {
	Folder    string `yaml:"folder"`
	Source    string `yaml:"source"`
	Version   string `yaml:"version"`
	Device    string `yaml:"device"`
	LowVRAM   bool   `yaml:"lowvram"`
	DeepSpeed bool   `yaml:"deepspeed"`
}

type FoldersConfig struct {
	Speaker string `yaml:"speaker"`
	Output  string `yaml:"output"`
	Latent  string `yaml:"latent"`
}

type StreamingConfig struct {
	Enabled  bool `yaml:"enabled"`
	Improved bool `yaml:"improved"`
	PlaySync bool `yaml:"play_sync"`
}

type CacheConfig struct {
	Enabled bool             `yaml:"enabled"`
	Type    string           `yaml:"type"`
	TTL     time.Duration    `yaml:"ttl"`
	Redis   RedisCacheConfig `yaml:"redis,omitempty"`
}

type RedisCacheConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// EngineConfig selects the synthesis collaborator implementation.
type EngineConfig struct {
	Type string           `yaml:"type"`
	Exec ExecEngineConfig `yaml:"exec,omitempty"`
	Edge EdgeEngineConfig `yaml:"edge,omitempty"`
}

// ExecEngineConfig drives the out-of-process model runner. Commands receive
// their inputs as flags; see the exec engine package for the contract.
type ExecEngineConfig struct {
	SynthesizeCommand string        `yaml:"synthesize_command"`
	LatentsCommand    string        `yaml:"latents_command"`
	PlayCommand       string        `yaml:"play_command"`
	SampleRate        int           `yaml:"sample_rate"`
	Timeout           time.Duration `yaml:"timeout"`
}

type EdgeEngineConfig struct {
	Voice      string `yaml:"voice"`
	SampleRate int    `yaml:"sample_rate"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}
