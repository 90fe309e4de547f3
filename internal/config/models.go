package config

// EngineConfig represents the triage engine configuration
type EngineConfig struct {
	LabelThreshold float64
	BatchWorkers   int
}

// BundleConfig represents the bundle loading configuration
type BundleConfig struct {
	Dir      string
	Watch    bool
	SyncType string
	S3Bucket string
	S3Prefix string
}

// StoreConfig represents the policy store configuration
type StoreConfig struct {
	Type       string
	SQLitePath string
	MySQLDSN   string
}

// AuditConfig represents the audit sink configuration
type AuditConfig struct {
	Type           string
	MemoryCapacity int
	SQLitePath     string
}

// FeedConfig represents the email feed configuration
type FeedConfig struct {
	Type string
}

// GetEngine returns the engine configuration
func (c *Config) GetEngine() EngineConfig {
	return EngineConfig{
		LabelThreshold: c.GetFloat64("engine.label_threshold"),
		BatchWorkers:   c.GetInt("engine.batch_workers"),
	}
}

// GetBundle returns the bundle configuration
func (c *Config) GetBundle() BundleConfig {
	return BundleConfig{
		Dir:      c.GetString("bundle.dir"),
		Watch:    c.GetBool("bundle.watch"),
		SyncType: c.GetString("bundle.sync.type"),
		S3Bucket: c.GetString("bundle.sync.s3_bucket"),
		S3Prefix: c.GetString("bundle.sync.s3_prefix"),
	}
}

// GetStore returns the store configuration
func (c *Config) GetStore() StoreConfig {
	return StoreConfig{
		Type:       c.GetString("store.type"),
		SQLitePath: c.GetString("store.sqlite_path"),
		MySQLDSN:   c.GetString("store.mysql_dsn"),
	}
}

// GetAudit returns the audit configuration
func (c *Config) GetAudit() AuditConfig {
	return AuditConfig{
		Type:           c.GetString("audit.type"),
		MemoryCapacity: c.GetInt("audit.memory_capacity"),
		SQLitePath:     c.GetString("audit.sqlite_path"),
	}
}

// GetFeed returns the feed configuration
func (c *Config) GetFeed() FeedConfig {
	return FeedConfig{
		Type: c.GetString("feed.type"),
	}
}
