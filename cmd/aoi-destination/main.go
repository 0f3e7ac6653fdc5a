// Command aoi-destination runs the destination side of the AoI polling
// testbed: it accepts one or more declared sources, runs the scheduler
// loop that decides which source to poll next, and writes the per-source
// age report when the run completes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ccczzc/AOI/frame"
	"github.com/ccczzc/AOI/internal/destnode"
	"github.com/ccczzc/AOI/pkg/config"
	"github.com/ccczzc/AOI/pkg/logging"
	"github.com/ccczzc/AOI/pkg/sched"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "aoi-destination:", err)
		os.Exit(1)
	}
}

type flags struct {
	sources      []string
	listenPort   int
	ageRecordDir string
	transport    string
	policy       string
	pollInterval float64
	windowPeriod float64
	runningSecs  float64
	configPath   string
	metricsAddr  string
	strict       bool
	logLevel     string
	logFile      string
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "aoi-destination",
		Short: "Destination side of the age-of-information polling testbed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(f)
		},
	}

	fs := cmd.Flags()
	fs.StringSliceVar(&f.sources, "sources", nil, "declared source specs: ip:port:type (udp) or source_id:type (stream)")
	fs.IntVar(&f.listenPort, "listen_port", 9999, "UDP/TCP port to listen on")
	fs.StringVar(&f.ageRecordDir, "age_record_dir", ".", "directory to write ages_<N>sources.txt into")
	fs.StringVar(&f.transport, "transport", "udp", "udp or stream")
	fs.StringVar(&f.policy, "policy", "maf", "maf, wifresh, or none")
	fs.Float64Var(&f.pollInterval, "poll_interval", 0, "seconds between polls (0 = use config default)")
	fs.Float64Var(&f.windowPeriod, "window_period", 0, "WiFresh trailing window, seconds (0 = use config default)")
	fs.Float64Var(&f.runningSecs, "running_period", 0, "total run duration, seconds (0 = use config default)")
	fs.StringVar(&f.configPath, "config", "", "optional YAML config file")
	fs.StringVar(&f.metricsAddr, "metrics_listen", "", "address to serve /metrics on (empty disables)")
	fs.BoolVar(&f.strict, "strict", false, "abort the run on any unknown-source frame")
	fs.StringVar(&f.logLevel, "log_level", "info", "debug|info|warn|error")
	fs.StringVar(&f.logFile, "log_file", "", "optional log file (rotated)")
	return cmd
}

func run(f flags) error {
	if len(f.sources) == 0 {
		return fmt.Errorf("--sources is required")
	}

	root, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	proto := root.Protocol
	if f.pollInterval > 0 {
		proto.PollInterval = f.pollInterval
	}
	if f.windowPeriod > 0 {
		proto.WindowPeriod = f.windowPeriod
	}
	if f.runningSecs > 0 {
		proto.RunningPeriod = f.runningSecs
	}
	if f.logLevel != "" {
		root.Logging.Level = f.logLevel
	}
	if f.logFile != "" {
		root.Logging.File = f.logFile
	}
	metricsAddr := f.metricsAddr
	if metricsAddr == "" {
		metricsAddr = root.Metrics.Listen
	}

	log := logging.New(logging.Options{Level: root.Logging.Level, File: root.Logging.File})

	known := make([]string, 0, len(f.sources))
	for _, spec := range f.sources {
		key, err := sourceKey(f.transport, spec)
		if err != nil {
			return err
		}
		known = append(known, key)
	}

	var transport destnode.Transport
	switch f.transport {
	case "udp":
		transport, err = destnode.NewUDPTransport(f.listenPort)
	case "stream":
		transport, err = destnode.NewStreamTransport(f.listenPort, log)
	default:
		return fmt.Errorf("--transport must be udp or stream, got %q", f.transport)
	}
	if err != nil {
		return err
	}

	selector, err := selectorFor(f.policy)
	if err != nil {
		return err
	}

	cfg := destnode.Config{
		PollInterval:  proto.PollInterval,
		WindowPeriod:  proto.WindowPeriod,
		RunningPeriod: proto.RunningPeriod,
		AgeRecordDir:  f.ageRecordDir,
		MetricsListen: metricsAddr,
		KnownSources:  known,
		Strict:        f.strict,
	}
	server := destnode.NewServer(cfg, transport, selector, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.WithField("sources", len(known)).Info("aoi-destination: starting run")
	return server.Run(ctx)
}

func selectorFor(policy string) (sched.Selector, error) {
	switch strings.ToLower(policy) {
	case "maf":
		return sched.MAF{}, nil
	case "wifresh":
		return sched.WiFresh{}, nil
	case "none":
		return sched.None{}, nil
	default:
		return nil, fmt.Errorf("--policy must be maf, wifresh, or none, got %q", policy)
	}
}

// sourceKey derives the Table key a declared --sources entry maps to, so
// it can seed the strict-mode allow-list. UDP specs are ip:port:type,
// matching destnode.keyFor's "<addr>_<type>" shape; stream specs are
// source_id:type, matching "<source_id>_<type>".
func sourceKey(transport, spec string) (string, error) {
	parts := strings.Split(spec, ":")
	switch transport {
	case "udp":
		if len(parts) != 3 {
			return "", fmt.Errorf("--sources entry %q must be ip:port:type", spec)
		}
		dt, err := parseDataType(parts[2])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s:%s_%s", parts[0], parts[1], dt), nil
	case "stream":
		if len(parts) != 2 {
			return "", fmt.Errorf("--sources entry %q must be source_id:type", spec)
		}
		dt, err := parseDataType(parts[1])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s_%s", parts[0], dt), nil
	default:
		return "", fmt.Errorf("--transport must be udp or stream, got %q", transport)
	}
}

func parseDataType(s string) (frame.DataType, error) {
	if n, err := strconv.Atoi(s); err == nil {
		dt := frame.DataType(n)
		if dt.Valid() {
			return dt, nil
		}
		return 0, fmt.Errorf("unknown data_type %q", s)
	}
	switch strings.ToUpper(s) {
	case "TIME_REQUEST":
		return frame.TimeRequest, nil
	case "GENERAL":
		return frame.General, nil
	case "POSITION":
		return frame.Position, nil
	case "INERTIAL":
		return frame.Inertial, nil
	case "IMAGE":
		return frame.Image, nil
	case "AUDIO":
		return frame.Audio, nil
	case "CONTROL":
		return frame.Control, nil
	case "DIAGNOSTIC":
		return frame.Diagnostic, nil
	default:
		return 0, fmt.Errorf("unknown data_type %q", s)
	}
}
