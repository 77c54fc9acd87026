package smgr

import "flag"

// Config carries the remaining §6.4 tunable not owned by prefetch.Config.
type Config struct {
	// MaxClusterSizeMB caps, in megabytes, the size Extend lets a single
	// permanent relation fork reach, judged from that fork's cached
	// size; the sizes of other relations are not counted. Zero disables
	// the limit.
	MaxClusterSizeMB int `yaml:"max_cluster_size_mb"`
}

func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.IntVar(&c.MaxClusterSizeMB, prefix+"max-cluster-size-mb", 0, "Maximum size in MB that extending a single permanent relation fork may reach (0 disables).")
}

func (c *Config) Validate() error {
	if c.MaxClusterSizeMB < 0 {
		return errInvalidConfig("max_cluster_size_mb must be >= 0")
	}
	return nil
}

type configError string

func (e configError) Error() string { return string(e) }

func errInvalidConfig(msg string) error { return configError(msg) }
