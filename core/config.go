package core

import (
	"fmt"
	"net/netip"
	"os"
	"runtime/debug"

	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

// AddFlags registers the CLI flags rtpsd reads a ParticipantConfig from,
// mirroring core/config.go's addFlags shape (SortFlags off, one
// flag-registration call per option) even though this daemon configures
// a single participant rather than a multi-stage pipeline.
func AddFlags(f *pflag.FlagSet) {
	f.SortFlags = false
	f.IntP("domain", "d", 0, "DDS domain id")
	f.IntP("participant-id", "p", 0, "participant id, used to derive unicast ports")
	f.StringP("bind", "b", "0.0.0.0:0", "unicast address to bind the participant's sockets to")
	f.StringP("log", "l", "info", "log level (debug/info/warn/error/disabled)")
	f.BoolP("version", "v", false, "print detailed version info and quit")
	f.String("governance", "", "path to the signed domain governance document")
	f.String("permissions", "", "path to the signed participant permissions document")
	f.String("identity-ca", "", "path to the PEM-encoded identity CA certificate")
	f.String("permissions-ca", "", "path to the PEM-encoded permissions CA certificate")
	f.String("identity-cert", "", "path to this participant's PEM-encoded identity certificate")
	f.String("admin-addr", "", "address for the admin HTTP/WebSocket introspection server (disabled if empty)")
	f.String("capture-file", "", "path to write a capture of every inbound datagram (disabled if empty)")
	f.String("capture-compression", "none", "capture file compression: none/gzip/bzip2/zstd")
	f.String("kafka-broker", "", "Kafka broker address to mirror delivered samples to (disabled if empty)")
	f.String("kafka-topic", "rtpsd", "Kafka topic delivered samples are published to")
}

// LoadConfig parses CLI flags into a ParticipantConfig, the same
// koanf+posflag.Provider wiring core/config.go's parseArgs uses.
func LoadConfig(f *pflag.FlagSet, args []string) (ParticipantConfig, *koanf.Koanf, error) {
	var cfg ParticipantConfig

	if err := f.Parse(args); err != nil {
		return cfg, nil, fmt.Errorf("could not parse CLI flags: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return cfg, nil, fmt.Errorf("could not load flags into config: %w", err)
	}

	if k.Bool("version") {
		if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
			fmt.Fprintf(os.Stderr, "rtpsd build info:\n%s", bi)
		}
		os.Exit(1)
	}

	if ll := k.String("log"); len(ll) > 0 {
		lvl, err := zerolog.ParseLevel(ll)
		if err != nil {
			return cfg, nil, &ConfigurationError{Field: "log", Reason: err.Error()}
		}
		zerolog.SetGlobalLevel(lvl)
	}

	addr, err := netip.ParseAddrPort(k.String("bind"))
	if err != nil {
		return cfg, nil, &ConfigurationError{Field: "bind", Reason: err.Error()}
	}

	cfg.DomainId = k.Int("domain")
	cfg.ParticipantId = k.Int("participant-id")
	cfg.UnicastAddr = addr

	return cfg, k, nil
}
