// Command pageclient-smoke drives one backend's worth of this module
// end to end against a running page server: dial, issue exists/
// create/nblocks/read/write/extend calls from the command line, and print what came
// back. It exists to exercise the wiring between every component this
// module implements, the way cmd/frigg-query wires a single backend
// together for its own plugin process.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/riverdb/pagestore-smgr/internal/collab"
	"github.com/riverdb/pagestore-smgr/pkg/blockid"
	"github.com/riverdb/pagestore-smgr/pkg/pageserver"
	"github.com/riverdb/pagestore-smgr/pkg/prefetch"
	"github.com/riverdb/pagestore-smgr/pkg/requestlsn"
	"github.com/riverdb/pagestore-smgr/pkg/smgr"
	"github.com/riverdb/pagestore-smgr/pkg/walevict"
)

// hostConfig aggregates every component's §6.4 tunables plus the bits
// that are this command's alone (server address, cache sizes, log
// level). It is populated from defaults, then a YAML file if -config
// points at one, then pflag overrides, in that order.
type hostConfig struct {
	ServerAddr       string `yaml:"server_addr"`
	LogLevel         string `yaml:"log_level"`
	RelSizeCacheSize int    `yaml:"relsize_cache_size"`
	LFCCacheSize     int    `yaml:"lfc_cache_size"`

	Prefetch prefetch.Config `yaml:",inline"`
	Smgr     smgr.Config     `yaml:",inline"`
}

func (c *hostConfig) initFromViper(v *viper.Viper) {
	c.ServerAddr = v.GetString("server-addr")
	c.LogLevel = v.GetString("log-level")
	c.RelSizeCacheSize = v.GetInt("relsize-cache-size")
	c.LFCCacheSize = v.GetInt("lfc-cache-size")
	c.Prefetch.ReadaheadBufferSize = v.GetInt("readahead-buffer-size")
	c.Prefetch.FlushEveryNRequests = v.GetInt("flush-every-n-requests")
	c.Smgr.MaxClusterSizeMB = v.GetInt("max-cluster-size-mb")
}

func registerFlags(cfg *hostConfig, fs *flag.FlagSet) {
	fs.StringVar(&cfg.ServerAddr, "server-addr", "127.0.0.1:6400", "Page server address to dial.")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "One of debug, info, warn, error.")
	fs.IntVar(&cfg.RelSizeCacheSize, "relsize-cache-size", 1024, "Number of relations tracked by the relation-size cache.")
	fs.IntVar(&cfg.LFCCacheSize, "lfc-cache-size", 4096, "Number of pages held by the local file cache.")
	cfg.Prefetch.RegisterFlagsAndApplyDefaults("", fs)
	cfg.Smgr.RegisterFlagsAndApplyDefaults("", fs)
}

func main() {
	var configPath string
	goFlags := flag.NewFlagSet("pageclient-smoke", flag.ExitOnError)
	goFlags.StringVar(&configPath, "config", "", "Path to a YAML config file; flags below override it.")

	cfg := &hostConfig{}
	registerFlags(cfg, goFlags)

	// Expose the same flags through pflag/viper, per the CLIs in the
	// retrieval pack that load config this way: a stdlib FlagSet feeds
	// the component Config.RegisterFlagsAndApplyDefaults methods
	// unchanged, and pflag.AddGoFlagSet lifts them so viper can bind
	// environment variables and a config file on top, the way
	// tempo-query's Config.InitFromViper reads a viper.Viper.
	pflagSet := pflag.NewFlagSet("pageclient-smoke", pflag.ExitOnError)
	pflagSet.AddGoFlagSet(goFlags)
	if err := pflagSet.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := v.BindPFlags(pflagSet); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "reading %s: %v\n", configPath, err)
			os.Exit(1)
		}
	}
	cfg.initFromViper(v)

	logger := newLogger(cfg.LogLevel)

	args := pflagSet.Args()
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	adaptor, closeFn, err := buildAdaptor(ctx, cfg, logger)
	if err != nil {
		level.Error(logger).Log("msg", "failed to build adaptor", "err", err)
		os.Exit(1)
	}
	defer closeFn()

	if err := runCommand(ctx, adaptor, args); err != nil {
		level.Error(logger).Log("msg", "command failed", "err", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: pageclient-smoke [flags] <command> tablespace database relation fork [block]")
	fmt.Fprintln(os.Stderr, "commands: exists, create, nblocks, read, write, extend")
}

func newLogger(levelName string) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

	var lvl level.Option
	switch levelName {
	case "debug":
		lvl = level.AllowDebug()
	case "warn":
		lvl = level.AllowWarn()
	case "error":
		lvl = level.AllowError()
	default:
		lvl = level.AllowInfo()
	}
	return level.NewFilter(logger, lvl)
}

// buildAdaptor wires every component this module implements into one
// smgr.Adaptor: a TCP transport, the prefetch pipeline on top of it,
// the request-LSN oracle, the eviction WAL-logger, and the in-memory
// collaborator defaults from internal/collab.
func buildAdaptor(ctx context.Context, cfg *hostConfig, logger log.Logger) (*smgr.Adaptor, func(), error) {
	transport, err := pageserver.DialTCP(ctx, cfg.ServerAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("dialing %s: %w", cfg.ServerAddr, err)
	}

	reg := prometheus.NewRegistry()
	client := pageserver.NewClient(transport, log.With(logger, "component", "pageserver"), reg)

	recovery := collab.NewRecoveryState()
	lastLSN := collab.NewLastWrittenLSN()
	wal := collab.NewWAL()
	relsize := collab.NewRelSizeCache(cfg.RelSizeCacheSize)
	lfc := collab.NewLocalFileCache(cfg.LFCCacheSize)
	localDisk := collab.NewLocalDisk()

	oracle := requestlsn.New(recovery, lastLSN, wal, log.With(logger, "component", "requestlsn"))

	pipeline, err := prefetch.NewPipeline(cfg.Prefetch, client, oracle, log.With(logger, "component", "prefetch"), reg)
	if err != nil {
		_ = transport.Close()
		return nil, nil, fmt.Errorf("constructing prefetch pipeline: %w", err)
	}

	evictLogger := walevict.New(recovery, lastLSN, wal, func(walevict.Page) bool {
		// This process never produces heap pages of its own; a smoke
		// client's synthetic writes can never collide with the host
		// engine's empty-heap-page image.
		return false
	})

	adaptor, err := smgr.New(cfg.Smgr, smgr.Deps{
		Pipeline:   pipeline,
		Transport:  client,
		Oracle:     oracle,
		WAL:        wal,
		LastLSN:    lastLSN,
		RelSize:    relsize,
		LFC:        lfc,
		LocalDisk:  localDisk,
		LogNewPage: evictLogger.LogNewPage,
		Evict:      evictLogger.Evict,
	}, log.With(logger, "component", "smgr"))
	if err != nil {
		_ = transport.Close()
		return nil, nil, fmt.Errorf("constructing adaptor: %w", err)
	}

	return adaptor, func() { _ = transport.Close() }, nil
}

// runCommand parses the trailing positional tag arguments and
// dispatches to the matching smgr.Adaptor method, printing the result
// the way a human driving this by hand would want to see it.
func runCommand(ctx context.Context, adaptor *smgr.Adaptor, args []string) error {
	cmd := args[0]
	rest := args[1:]

	switch cmd {
	case "exists":
		rf, err := parseRelFork(rest)
		if err != nil {
			return err
		}
		ok, err := adaptor.Exists(ctx, rf, smgr.Unknown)
		if err != nil {
			return err
		}
		fmt.Printf("%s exists=%v\n", rf, ok)

	case "create":
		rf, err := parseRelFork(rest)
		if err != nil {
			return err
		}
		if err := adaptor.Create(ctx, rf, smgr.Permanent); err != nil {
			return err
		}
		fmt.Printf("%s created\n", rf)

	case "nblocks":
		rf, err := parseRelFork(rest)
		if err != nil {
			return err
		}
		n, err := adaptor.NBlocks(ctx, rf, smgr.Unknown)
		if err != nil {
			return err
		}
		fmt.Printf("%s nblocks=%d\n", rf, n)

	case "read":
		tag, err := parseBlockId(rest)
		if err != nil {
			return err
		}
		page, err := adaptor.Read(ctx, tag, smgr.Unknown)
		if err != nil {
			return err
		}
		fmt.Printf("%s read %d bytes, leading byte=0x%02x\n", tag, len(page), page[0])

	case "write":
		tag, err := parseBlockId(rest)
		if err != nil {
			return err
		}
		var page [8192]byte
		if err := adaptor.Write(ctx, tag, page, smgr.Permanent); err != nil {
			return err
		}
		fmt.Printf("%s written\n", tag)

	case "extend":
		tag, err := parseBlockId(rest)
		if err != nil {
			return err
		}
		var page [8192]byte
		if err := adaptor.Extend(ctx, tag, page, smgr.Permanent, false); err != nil {
			return err
		}
		fmt.Printf("%s extended\n", tag)

	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func parseRelFork(args []string) (blockid.RelFork, error) {
	nums, err := parseUint32s(args, 4)
	if err != nil {
		return blockid.RelFork{}, err
	}
	return blockid.RelFork{
		Tablespace: nums[0],
		Database:   nums[1],
		Relation:   nums[2],
		Fork:       blockid.ForkNumber(nums[3]),
	}, nil
}

func parseBlockId(args []string) (blockid.BlockId, error) {
	nums, err := parseUint32s(args, 5)
	if err != nil {
		return blockid.BlockId{}, err
	}
	return blockid.BlockId{
		Tablespace: nums[0],
		Database:   nums[1],
		Relation:   nums[2],
		Fork:       blockid.ForkNumber(nums[3]),
		Block:      nums[4],
	}, nil
}

func parseUint32s(args []string, want int) ([]uint32, error) {
	if len(args) != want {
		return nil, fmt.Errorf("expected %d numeric arguments, got %d", want, len(args))
	}
	out := make([]uint32, want)
	for i, a := range args {
		n, err := strconv.ParseUint(a, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("argument %d (%q): %w", i, a, err)
		}
		out[i] = uint32(n)
	}
	return out, nil
}
