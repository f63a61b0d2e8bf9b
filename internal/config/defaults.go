package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/shirabe/data/db/history.db"
	}
	if cfg.Backend.Binary == "" {
		cfg.Backend.Binary = "gemini"
	}
	if cfg.Backend.Model == "" {
		cfg.Backend.Model = "gemini-2.5-pro"
	}
	if cfg.Backend.TimeoutSeconds == 0 {
		cfg.Backend.TimeoutSeconds = 300
	}
	if cfg.Backend.MaxParallel == 0 {
		cfg.Backend.MaxParallel = 4
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".pdf"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
