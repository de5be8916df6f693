package server

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
)

// Options used for starting the cellular daemon. The yaml tags describe
// the optional config file.
type Options struct {
	ConfigFile string `yaml:"-"`
	// ProviderDB is the path of the provider database, empty for none
	ProviderDB string `yaml:"providerDB"`
	StoreFile  string `yaml:"store"`
	// ModemManager selects the services watched: "1", "classic" or "both"
	ModemManager string   `yaml:"modemManager"`
	PPPD         string   `yaml:"pppd"`
	PPPPlugin    string   `yaml:"pppPlugin"`
	PPPOptions   []string `yaml:"pppOptions"`
	AllowRoaming bool     `yaml:"allowRoaming"`
	AutoEnable   bool     `yaml:"autoEnable"`
	NetworkMgr   bool     `yaml:"networkManager"`
	NatsServer   string   `yaml:"natsServer"`
	NatsPort     int      `yaml:"natsPort"`
	AuthToken    string   `yaml:"authToken"`
	NTPServer    string   `yaml:"ntpServer"`
	OSVersionID  string   `yaml:"osVersionField"`
	Syslog       bool     `yaml:"syslog"`
	Debug        bool     `yaml:"debug"`
}

// DefaultOptions returns the built in defaults
func DefaultOptions() Options {
	return Options{
		StoreFile:    "cellular.sqlite",
		ModemManager: "both",
		PPPD:         "/usr/sbin/pppd",
		AutoEnable:   true,
		NetworkMgr:   true,
		NatsServer:   "nats://127.0.0.1:4222",
		OSVersionID:  "VERSION_ID",
	}
}

// LoadFile merges the YAML config file at path into o
func LoadFile(path string, o *Options) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	if err := yaml.Unmarshal(buf, o); err != nil {
		return fmt.Errorf("error parsing config file %v: %w", path, err)
	}
	return nil
}

// env applies SIOT_* environment variables. Flags named in set are left
// alone.
func env(o *Options, set map[string]bool, getenv func(string) string) error {
	str := func(flag, name string, v *string) {
		if e := getenv(name); e != "" && !set[flag] {
			*v = e
		}
	}
	boolean := func(flag, name string, v *bool) error {
		e := getenv(name)
		if e == "" || set[flag] {
			return nil
		}
		b, err := strconv.ParseBool(e)
		if err != nil {
			return fmt.Errorf("error parsing %v: %w", name, err)
		}
		*v = b
		return nil
	}

	str("providers", "SIOT_CELL_PROVIDERS", &o.ProviderDB)
	str("store", "SIOT_CELL_STORE", &o.StoreFile)
	str("mm", "SIOT_CELL_MM", &o.ModemManager)
	str("pppd", "SIOT_CELL_PPPD", &o.PPPD)
	str("natsServer", "SIOT_NATS_SERVER", &o.NatsServer)
	str("token", "SIOT_AUTH_TOKEN", &o.AuthToken)
	str("ntp", "SIOT_CELL_NTP", &o.NTPServer)

	if e := getenv("SIOT_NATS_PORT"); e != "" && !set["natsPort"] {
		n, err := strconv.Atoi(e)
		if err != nil {
			return fmt.Errorf("error parsing SIOT_NATS_PORT: %w", err)
		}
		o.NatsPort = n
	}
	if err := boolean("allowRoaming", "SIOT_CELL_ALLOW_ROAMING", &o.AllowRoaming); err != nil {
		return err
	}
	if err := boolean("autoEnable", "SIOT_CELL_AUTO_ENABLE", &o.AutoEnable); err != nil {
		return err
	}
	return boolean("debug", "SIOT_CELL_DEBUG", &o.Debug)
}

// Args parses command line options. Precedence is flag, then environment,
// then config file, then default.
func Args(args []string, flags *flag.FlagSet) (Options, error) {
	if flags == nil {
		flags = flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	}

	def := DefaultOptions()

	flagConfig := flags.String("config", os.Getenv("SIOT_CELL_CONFIG"), "YAML config file")
	flagProviders := flags.String("providers", def.ProviderDB, "provider database file")
	flagStore := flags.String("store", def.StoreFile, "profile store file")
	flagMM := flags.String("mm", def.ModemManager, "ModemManager services to watch: 1, classic or both")
	flagPPPD := flags.String("pppd", def.PPPD, "pppd binary")
	flagPPPPlugin := flags.String("pppPlugin", "", "pppd plugin reporting connection state")
	flagPPPOptions := flags.String("pppOptions", "", "extra pppd options, comma separated")
	flagAllowRoaming := flags.Bool("allowRoaming", def.AllowRoaming, "allow data connections while roaming")
	flagAutoEnable := flags.Bool("autoEnable", def.AutoEnable, "enable modems when they appear")
	flagNetworkMgr := flags.Bool("networkManager", def.NetworkMgr, "configure IP through NetworkManager")
	flagNatsServer := flags.String("natsServer", def.NatsServer, "NATS Server")
	flagNatsPort := flags.Int("natsPort", 0, "run an embedded NATS server on this port")
	flagAuthToken := flags.String("token", "", "auth token")
	flagNTP := flags.String("ntp", "", "NTP server used to set the clock once connected")
	flagSyslog := flags.Bool("syslog", false, "log to syslog instead of stderr")
	flagDebug := flags.Bool("debug", false, "verbose logging")

	if err := flags.Parse(args); err != nil {
		return Options{}, err
	}

	set := make(map[string]bool)
	flags.Visit(func(f *flag.Flag) { set[f.Name] = true })

	o := def
	o.ConfigFile = *flagConfig
	if o.ConfigFile != "" {
		if err := LoadFile(o.ConfigFile, &o); err != nil {
			return Options{}, err
		}
	}

	if err := env(&o, set, os.Getenv); err != nil {
		return Options{}, err
	}

	if set["providers"] {
		o.ProviderDB = *flagProviders
	}
	if set["store"] {
		o.StoreFile = *flagStore
	}
	if set["mm"] {
		o.ModemManager = *flagMM
	}
	if set["pppd"] {
		o.PPPD = *flagPPPD
	}
	if set["pppPlugin"] {
		o.PPPPlugin = *flagPPPPlugin
	}
	if set["pppOptions"] {
		o.PPPOptions = nil
		for _, opt := range strings.Split(*flagPPPOptions, ",") {
			if opt = strings.TrimSpace(opt); opt != "" {
				o.PPPOptions = append(o.PPPOptions, opt)
			}
		}
	}
	if set["allowRoaming"] {
		o.AllowRoaming = *flagAllowRoaming
	}
	if set["autoEnable"] {
		o.AutoEnable = *flagAutoEnable
	}
	if set["networkManager"] {
		o.NetworkMgr = *flagNetworkMgr
	}
	if set["natsServer"] {
		o.NatsServer = *flagNatsServer
	}
	if set["natsPort"] {
		o.NatsPort = *flagNatsPort
	}
	if set["token"] {
		o.AuthToken = *flagAuthToken
	}
	if set["ntp"] {
		o.NTPServer = *flagNTP
	}
	if set["syslog"] {
		o.Syslog = *flagSyslog
	}
	if set["debug"] {
		o.Debug = *flagDebug
	}

	switch o.ModemManager {
	case "1", "classic", "both":
	default:
		return Options{}, fmt.Errorf("unknown ModemManager selection %q", o.ModemManager)
	}

	return o, nil
}
