package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/oklog/run"
	"github.com/simpleiot/cellmgr/cellular"
	"github.com/simpleiot/cellmgr/data"
	"github.com/simpleiot/cellmgr/ipconfig"
	"github.com/simpleiot/cellmgr/loop"
	"github.com/simpleiot/cellmgr/mm"
	"github.com/simpleiot/cellmgr/modem"
	"github.com/simpleiot/cellmgr/nats"
	"github.com/simpleiot/cellmgr/netif"
	"github.com/simpleiot/cellmgr/ppp"
	"github.com/simpleiot/cellmgr/provider"
	"github.com/simpleiot/cellmgr/store"
	"github.com/simpleiot/cellmgr/system"
)

// ErrServerStopped is returned when the server is stopped
var ErrServerStopped = errors.New("Server stopped")

// Server runs the connection manager: the event loop, the ModemManager
// watchers and the NATS API
type Server struct {
	log      *log.Logger
	options  Options
	chStop   chan struct{}
	stopOnce sync.Once
}

// NewServer creates a new server
func NewServer(o Options) *Server {
	return &Server{
		log:     log.New(os.Stderr, "server: ", log.LstdFlags|log.Lmsgprefix),
		options: o,
		chStop:  make(chan struct{}),
	}
}

// Run the server, only returns if there is an error or Stop is called
func (s *Server) Run() error {
	var g run.Group
	o := s.options

	if v, err := system.ReadOSVersion(o.OSVersionID); err == nil {
		s.log.Println("OS version: ", v)
	}

	// ====================================
	// Nats server
	// ====================================
	if o.NatsPort != 0 {
		ns, err := newNatsServer(o.NatsPort, o.AuthToken)
		if err != nil {
			return fmt.Errorf("Error setting up nats server: %v", err)
		}
		if err := startNatsServer(ns); err != nil {
			return err
		}
		defer ns.Shutdown()
		o.NatsServer = fmt.Sprintf("nats://127.0.0.1:%v", o.NatsPort)
	}

	// ====================================
	// Collaborators
	// ====================================
	profiles, err := store.NewProfiles(o.StoreFile)
	if err != nil {
		return fmt.Errorf("Error opening profile store: %v", err)
	}
	defer profiles.Close()

	devCfg := cellular.Config{
		Profiles:     profiles,
		AllowRoaming: o.AllowRoaming,
		Debug:        o.Debug,
	}

	if o.ProviderDB != "" {
		providers, err := provider.Open(o.ProviderDB)
		if err != nil {
			return fmt.Errorf("Error loading provider database: %v", err)
		}
		s.log.Printf("loaded %v providers", providers.Len())
		devCfg.Providers = providers
		g.Add(providers.Run, providers.Stop)
	}

	links := netif.NewMonitor()
	devCfg.Links = links
	g.Add(links.Run, links.Stop)

	if o.NetworkMgr {
		nm, err := ipconfig.NewNetworkManager()
		if err != nil {
			s.log.Println("NetworkManager not available, IP configuration disabled: ", err)
		} else {
			devCfg.IP = nm
		}
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("Error connecting to system bus: %v", err)
	}
	defer conn.Close()

	// ====================================
	// Event loop and bus
	// ====================================
	l := loop.New()
	bus := mm.NewDBus(conn, l, o.Debug)

	devCfg.PPP = ppp.NewBridge(l, ppp.NewExecRunner(), conn, ppp.Options{
		Program:   o.PPPD,
		Plugin:    o.PPPPlugin,
		ExtraArgs: o.PPPOptions,
		Debug:     o.Debug,
	})

	// ====================================
	// NATS API
	// ====================================
	t := &target{}
	var api *nats.API

	nc, err := nats.Connect(nats.Options{
		Server:    o.NatsServer,
		AuthToken: o.AuthToken,
		Connected: func() {
			l.Post(func() { api.PublishAll() })
		},
	})
	if err != nil {
		return fmt.Errorf("Error connecting to NATS: %v", err)
	}
	defer nc.Close()

	api = nats.NewAPI(nc, l, t)
	if err := api.Start(); err != nil {
		return err
	}
	defer api.Stop()

	linked := make(map[string]bool)
	devCfg.OnChange = func(snap data.DeviceSnapshot) {
		api.Publish(snap)
		s.timeSync(linked, snap)
	}

	// ====================================
	// Modem managers
	// ====================================
	mcfg := modem.Config{
		Factory:    bus,
		Dispatcher: l,
		Resolver:   links,
		Device:     devCfg,
		AutoEnable: o.AutoEnable,
		OnDevices:  api.PublishAll,
	}
	if o.ModemManager == "1" || o.ModemManager == "both" {
		t.managers = append(t.managers, modem.NewManager(mcfg))
	}
	if o.ModemManager == "classic" || o.ModemManager == "both" {
		t.managers = append(t.managers, modem.NewClassicManager(mcfg))
	}

	chManagersStop := make(chan struct{})
	g.Add(func() error {
		l.Post(func() {
			for _, m := range t.managers {
				m.Start()
			}
		})
		<-chManagersStop
		return nil
	}, func(_ error) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := l.Invoke(ctx, func() {
			for _, m := range t.managers {
				m.Stop()
			}
		})
		if err != nil {
			s.log.Println("error stopping modem managers: ", err)
		}
		close(chManagersStop)
	})

	// Give us a way to stop the server
	chShutdown := make(chan struct{})
	g.Add(func() error {
		select {
		case <-s.chStop:
			return ErrServerStopped
		case <-chShutdown:
			return nil
		}
	}, func(_ error) {
		close(chShutdown)
	})

	// added last so they are interrupted after the managers have stopped
	g.Add(bus.Run, bus.Stop)
	g.Add(l.Run, l.Stop)

	return g.Run()
}

// timeSync sets the clock from NTP the first time a device links. Called
// on the loop.
func (s *Server) timeSync(linked map[string]bool, snap data.DeviceSnapshot) {
	up := snap.State == data.DeviceLinked.String()
	was := linked[snap.Path]
	linked[snap.Path] = up
	if !up || was || s.options.NTPServer == "" {
		return
	}
	go func() {
		if err := system.UpdateTimeFromNetwork(s.options.NTPServer); err != nil {
			s.log.Println("error updating time from network: ", err)
		}
	}()
}

// Stop the server
func (s *Server) Stop(_ error) {
	s.stopOnce.Do(func() { close(s.chStop) })
}
