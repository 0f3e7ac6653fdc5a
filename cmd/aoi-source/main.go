// Command aoi-source runs the source side of the AoI polling testbed: one
// or more paced sensor producers feeding a dual LCFS/FCFS queue per
// sensor, driven by the destination's POLLs (or, in push mode, sent on
// its own cadence) over a single connection to the destination.
package main

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/binary"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ccczzc/AOI/frame"
	"github.com/ccczzc/AOI/internal/srcnode"
	"github.com/ccczzc/AOI/pkg/config"
	"github.com/ccczzc/AOI/pkg/logging"
	"github.com/ccczzc/AOI/pkg/queue"
	"github.com/ccczzc/AOI/pkg/sensor"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "aoi-source:", err)
		os.Exit(1)
	}
}

type flags struct {
	destination  string
	sensors      []string
	sourceID     int
	transport    string
	mode         string
	queuePolicy  string
	syncInterval float64
	syncRounds   int
	alpha        float64
	maxPayload   int
	configPath   string
	logLevel     string
	logFile      string
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "aoi-source",
		Short: "Source side of the age-of-information polling testbed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(f)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.destination, "destination", "", "destination ip:port to connect to")
	fs.StringSliceVar(&f.sensors, "sensors", nil, "sensor specs: type:packet_size:rate")
	fs.IntVar(&f.sourceID, "source_id", 0, "numeric source id (stream transport only)")
	fs.StringVar(&f.transport, "transport", "udp", "udp or stream")
	fs.StringVar(&f.mode, "mode", "polled", "polled or push")
	fs.StringVar(&f.queuePolicy, "policy", "maf", "maf or wifresh — must match the destination's scheduler policy")
	fs.Float64Var(&f.syncInterval, "sync_interval", 0, "seconds between clock-sync rounds (0 = use config default)")
	fs.IntVar(&f.syncRounds, "sync_rounds", 0, "back-to-back TIME_REQUESTs per sync round (0 = use config default)")
	fs.Float64Var(&f.alpha, "alpha", 0, "clock offset smoothing factor (0 = use config default)")
	fs.IntVar(&f.maxPayload, "max_payload", 0, "max bytes per frame before fragmenting (0 = use config default)")
	fs.StringVar(&f.configPath, "config", "", "optional YAML config file")
	fs.StringVar(&f.logLevel, "log_level", "info", "debug|info|warn|error")
	fs.StringVar(&f.logFile, "log_file", "", "optional log file (rotated)")
	return cmd
}

func run(f flags) error {
	if f.destination == "" {
		return fmt.Errorf("--destination is required")
	}
	if len(f.sensors) == 0 {
		return fmt.Errorf("--sensors is required")
	}

	root, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	proto := root.Protocol
	if f.syncInterval > 0 {
		proto.SyncInterval = f.syncInterval
	}
	if f.syncRounds > 0 {
		proto.SyncRounds = f.syncRounds
	}
	if f.alpha > 0 {
		proto.Alpha = f.alpha
	}
	if f.maxPayload > 0 {
		proto.MaxPayload = f.maxPayload
	}
	if f.logLevel != "" {
		root.Logging.Level = f.logLevel
	}
	if f.logFile != "" {
		root.Logging.File = f.logFile
	}

	log := logging.New(logging.Options{Level: root.Logging.Level, File: root.Logging.File})

	sensors, err := parseSensors(f.sensors)
	if err != nil {
		return err
	}

	mode, err := modeFor(f.mode)
	if err != nil {
		return err
	}
	queuePolicy, err := queuePolicyFor(f.queuePolicy)
	if err != nil {
		return err
	}

	var transport srcnode.Transport
	switch f.transport {
	case "udp":
		transport, err = srcnode.NewUDPTransport(f.destination)
	case "stream":
		transport, err = srcnode.NewStreamTransport(f.destination, uint8(f.sourceID))
	default:
		return fmt.Errorf("--transport must be udp or stream, got %q", f.transport)
	}
	if err != nil {
		return err
	}

	cfg := srcnode.Config{
		Mode:         mode,
		MaxPayload:   proto.MaxPayload,
		SyncInterval: proto.SyncInterval,
		SyncRounds:   proto.SyncRounds,
		Alpha:        proto.Alpha,
		QueuePolicy:  queuePolicy,
		Sensors:      sensors,
		RNGSeed:      randomSeed(),
	}
	engine := srcnode.NewEngine(cfg, transport, log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.WithField("sensors", len(sensors)).Info("aoi-source: starting run")
	start := time.Now()
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			engine.Step(time.Since(start).Seconds())
		}
	}
}

// randomSeed draws an 8-byte seed from the OS's CSPRNG for the payload
// producer's math/rand/v2 generator; a read failure falls back to the
// wall clock, which is adequate for payload filler but never used for
// anything security-sensitive.
func randomSeed() uint64 {
	var b [8]byte
	if _, err := cryptorand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

func queuePolicyFor(policy string) (queue.Policy, error) {
	switch strings.ToLower(policy) {
	case "maf":
		return queue.PolicyClearOnDrain, nil
	case "wifresh":
		return queue.PolicyKeepHistory, nil
	default:
		return 0, fmt.Errorf("--policy must be maf or wifresh, got %q", policy)
	}
}

func modeFor(mode string) (srcnode.Mode, error) {
	switch strings.ToLower(mode) {
	case "polled":
		return srcnode.ModePolled, nil
	case "push":
		return srcnode.ModePush, nil
	default:
		return 0, fmt.Errorf("--mode must be polled or push, got %q", mode)
	}
}

func parseSensors(specs []string) ([]sensor.Config, error) {
	out := make([]sensor.Config, 0, len(specs))
	for _, spec := range specs {
		parts := strings.Split(spec, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("--sensors entry %q must be type:packet_size:rate", spec)
		}
		dt, err := parseDataType(parts[0])
		if err != nil {
			return nil, err
		}
		size, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("--sensors entry %q: bad packet_size: %w", spec, err)
		}
		rate, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return nil, fmt.Errorf("--sensors entry %q: bad rate: %w", spec, err)
		}
		out = append(out, sensor.Config{DataType: dt, PacketSize: size, Rate: rate})
	}
	return out, nil
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
