package config

import "time"

// Default returns the configuration used when no file or environment
// overrides are present. Folder names mirror the launcher's bootstrap set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			IP:   "0.0.0.0",
			Port: 8020,
		},
		Log: LogConfig{
			Level: "info",
			Dir:   "logs",
			File:  "server.log",
		},
		Model: ModelConfig{
			Folder:  "xtts_models",
			Source:  "local",
			Version: "v2.0.2",
			Device:  "cuda",
		},
		Folders: FoldersConfig{
			Speaker: "speakers",
			Output:  "output",
			Latent:  "latent_speaker_folder",
		},
		Streaming: StreamingConfig{
			Enabled:  false,
			Improved: false,
			PlaySync: false,
		},
		Cache: CacheConfig{
			Enabled: false,
			Type:    "memory",
			TTL:     24 * time.Hour,
		},
		Engine: EngineConfig{
			Type: "exec",
			Exec: ExecEngineConfig{
				SynthesizeCommand: "xtts-runner synthesize",
				LatentsCommand:    "xtts-runner latents",
				SampleRate:        24000,
				Timeout:           5 * time.Minute,
			},
			Edge: EdgeEngineConfig{
				SampleRate: 24000,
			},
		},
		Storage: StorageConfig{
			DataDir: "data",
		},
	}
}
