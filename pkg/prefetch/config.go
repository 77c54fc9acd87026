package prefetch

import "flag"

// Config carries the §6.4 tunables that govern one backend's
// pipeline. It follows the plain-struct-plus-RegisterFlags pattern
// used throughout the teacher's module configs.
type Config struct {
	// ReadaheadBufferSize is the ring capacity (CAP). Resizable at
	// runtime via Pipeline.Resize, per spec §4.1.6.
	ReadaheadBufferSize int `yaml:"readahead_buffer_size"`

	// FlushEveryNRequests forces a flush after this many requests have
	// been allocated since the last flush. Zero disables the
	// threshold-flush policy of spec §4.1.1 step 4.
	FlushEveryNRequests int `yaml:"flush_every_n_requests"`
}

func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.IntVar(&c.ReadaheadBufferSize, prefix+"readahead-buffer-size", 128, "Number of in-flight prefetch requests a backend may hold.")
	f.IntVar(&c.FlushEveryNRequests, prefix+"flush-every-n-requests", 0, "Force a transport flush after this many requests since the last flush (0 disables).")
}

func (c *Config) Validate() error {
	if c.ReadaheadBufferSize < 2 {
		return errInvalidConfig("readahead_buffer_size must be >= 2")
	}
	if c.FlushEveryNRequests < 0 {
		return errInvalidConfig("flush_every_n_requests must be >= 0")
	}
	return nil
}

type configError string

func (e configError) Error() string { return string(e) }

func errInvalidConfig(msg string) error { return configError(msg) }
