package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/simpleiot/cellmgr/nats"
	"github.com/simpleiot/cellmgr/server"
	"github.com/simpleiot/cellmgr/system"
)

// goreleaser will replace version with Git version. You can also pass version
// into the version into the go build:
//   go build -ldflags="-X main.version=1.2.3"
var version = "Development"

func main() {
	// global options
	flags := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	flagVersion := flags.Bool("version", false, "Print app version")
	flags.Usage = func() {
		fmt.Println("usage: siot-cellular [OPTION]... COMMAND [OPTION]...")
		fmt.Println("Global options:")
		flags.PrintDefaults()
		fmt.Println()
		fmt.Println("Available commands:")
		fmt.Println("  - serve (run the connection manager)")
		fmt.Println("  - devices (list devices, requires server to be running)")
		fmt.Println("  - call (send a request to a device, requires server to be running)")
	}

	flags.Parse(os.Args[1:])

	if *flagVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// extract sub command and its arguments
	args := flags.Args()

	if len(args) < 1 {
		// run serve command by default
		args = []string{"serve"}
	}

	switch args[0] {
	case "serve":
		if err := runServer(args[1:]); err != nil {
			log.Println("siot-cellular stopped, reason: ", err)
		}
	case "devices":
		runDevices(args[1:])
	case "call":
		runCall(args[1:])
	default:
		log.Fatal("Unknown command; options: serve, devices, call")
	}
}

func runServer(args []string) error {
	options, err := server.Args(args, nil)
	if err != nil {
		return err
	}

	if options.Syslog {
		if err := system.EnableSyslog("siot-cellular"); err != nil {
			log.Println("Error enabling syslog: ", err)
		}
	}

	log.Printf("siot-cellular %v\n", version)

	var g run.Group

	s := server.NewServer(options)
	g.Add(s.Run, s.Stop)

	g.Add(run.SignalHandler(context.Background(),
		syscall.SIGINT, syscall.SIGTERM))

	return g.Run()
}

func clientFlags(name string) (*flag.FlagSet, *string, *string) {
	defaultNatsServer := "nats://localhost:4222"
	flags := flag.NewFlagSet(name, flag.ExitOnError)
	natsServer := os.Getenv("SIOT_NATS_SERVER")
	if natsServer == "" {
		natsServer = defaultNatsServer
	}
	flagNatsServer := flags.String("natsServer", natsServer, "NATS Server")
	flagAuthToken := flags.String("token", os.Getenv("SIOT_AUTH_TOKEN"), "Auth token")
	return flags, flagNatsServer, flagAuthToken
}

func printJSON(v any) {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatal("Error encoding: ", err)
	}
	fmt.Println(string(buf))
}

func runDevices(args []string) {
	flags, flagNatsServer, flagAuthToken := clientFlags("devices")
	if err := flags.Parse(args); err != nil {
		log.Fatal("error: ", err)
	}

	nc, err := nats.Connect(nats.Options{Server: *flagNatsServer, AuthToken: *flagAuthToken})
	if err != nil {
		log.Fatal("Error connecting to NATS server: ", err)
	}
	defer nc.Close()

	devs, err := nats.ListDevices(nc, 5*time.Second)
	if err != nil {
		log.Fatal("Error listing devices: ", err)
	}
	printJSON(devs)
}

func runCall(args []string) {
	flags, flagNatsServer, flagAuthToken := clientFlags("call")
	flagTimeout := flags.Duration("timeout", nats.RequestTimeout, "request timeout")
	flags.Usage = func() {
		fmt.Println("usage: siot-cellular call [OPTION]... DEVICE OP [JSON REQUEST]")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		log.Fatal("error: ", err)
	}

	rest := flags.Args()
	if len(rest) < 2 {
		flags.Usage()
		os.Exit(-1)
	}

	var req nats.Request
	if len(rest) > 2 {
		if err := json.Unmarshal([]byte(rest[2]), &req); err != nil {
			log.Fatal("Error parsing request: ", err)
		}
	}

	nc, err := nats.Connect(nats.Options{Server: *flagNatsServer, AuthToken: *flagAuthToken})
	if err != nil {
		log.Fatal("Error connecting to NATS server: ", err)
	}
	defer nc.Close()

	resp, err := nats.Call(nc, rest[0], rest[1], req, *flagTimeout)
	printJSON(resp)
	if err != nil {
		nc.Close()
		os.Exit(1)
	}
}
