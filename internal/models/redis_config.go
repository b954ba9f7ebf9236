package models

// RedisConfig configures the optional read-side summary cache.
type RedisConfig struct {
	Enabled         bool   `yaml:"enabled" json:"enabled"`
	Addr            string `yaml:"addr,omitempty" json:"addr,omitzero"`
	Password        string `yaml:"password,omitempty" json:"password,omitzero"`
	DB              int    `yaml:"db,omitempty" json:"db,omitzero"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds,omitempty" json:"cache_ttl_seconds,omitzero"`
}
