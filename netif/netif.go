// Package netif resolves kernel network interfaces and follows their
// up/down flag. Interfaces are read with gopsutil and polled, since the
// interface flags carry no change notification of their own.
package netif

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/net"
	"golang.org/x/sys/unix"
)

// PollInterval is how often interface flags are read by Run
var PollInterval = time.Second

const flagUp = "up"

type watcher struct {
	fn func(bool)
}

// Monitor implements interface lookup and link monitoring
type Monitor struct {
	log  *log.Logger
	list func() (net.InterfaceStatList, error)

	lock     sync.Mutex
	watchers map[int][]*watcher
	last     map[int]bool

	stop chan struct{}
}

// NewMonitor returns a monitor reading the system interfaces
func NewMonitor() *Monitor {
	return &Monitor{
		log:      log.New(os.Stderr, "netif: ", log.LstdFlags|log.Lmsgprefix),
		list:     net.Interfaces,
		watchers: make(map[int][]*watcher),
		last:     make(map[int]bool),
		stop:     make(chan struct{}),
	}
}

func isUp(i net.InterfaceStat) bool {
	for _, f := range i.Flags {
		if f == flagUp {
			return true
		}
	}
	return false
}

// Lookup returns the index and MAC address of the interface called name
func (m *Monitor) Lookup(name string) (int, string, error) {
	ifaces, err := m.list()
	if err != nil {
		return 0, "", fmt.Errorf("error listing interfaces: %w", err)
	}
	for _, i := range ifaces {
		if i.Name == name {
			return i.Index, i.HardwareAddr, nil
		}
	}
	return 0, "", fmt.Errorf("interface %v not found", name)
}

// IsUp returns true if the interface with index has IFF_UP set
func (m *Monitor) IsUp(index int) bool {
	ifaces, err := m.list()
	if err != nil {
		m.log.Println("error listing interfaces: ", err)
		return false
	}
	for _, i := range ifaces {
		if i.Index == index {
			return isUp(i)
		}
	}
	return false
}

// Watch calls fn from the Run goroutine whenever the up flag of the
// interface with index changes
func (m *Monitor) Watch(index int, fn func(up bool)) func() {
	w := &watcher{fn: fn}
	m.lock.Lock()
	if len(m.watchers[index]) == 0 {
		m.last[index] = m.IsUp(index)
	}
	m.watchers[index] = append(m.watchers[index], w)
	m.lock.Unlock()

	return func() {
		m.lock.Lock()
		defer m.lock.Unlock()
		list := m.watchers[index]
		for i, o := range list {
			if o == w {
				m.watchers[index] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(m.watchers[index]) == 0 {
			delete(m.watchers, index)
			delete(m.last, index)
		}
	}
}

// poll reads the interface flags once and notifies watchers of changes
func (m *Monitor) poll() {
	ifaces, err := m.list()
	if err != nil {
		m.log.Println("error listing interfaces: ", err)
		return
	}
	up := make(map[int]bool, len(ifaces))
	for _, i := range ifaces {
		up[i.Index] = isUp(i)
	}

	var notify []func()
	m.lock.Lock()
	for index, ws := range m.watchers {
		now := up[index]
		if now == m.last[index] {
			continue
		}
		m.last[index] = now
		for _, w := range ws {
			fn := w.fn
			notify = append(notify, func() { fn(now) })
		}
	}
	m.lock.Unlock()

	for _, n := range notify {
		n()
	}
}

// Run polls interface flags until Stop is called
func (m *Monitor) Run() error {
	t := time.NewTicker(PollInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			m.poll()
		case <-m.stop:
			return nil
		}
	}
}

// Stop stops Run
func (m *Monitor) Stop(_ error) {
	close(m.stop)
}

// SetUp sets IFF_UP on the interface called name
func (m *Monitor) SetUp(name string) error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("error opening socket: %w", err)
	}
	defer unix.Close(fd)

	ifr, err := unix.NewIfreq(name)
	if err != nil {
		return err
	}
	if err := unix.IoctlIfreq(fd, unix.SIOCGIFFLAGS, ifr); err != nil {
		return fmt.Errorf("error reading flags of %v: %w", name, err)
	}
	flags := ifr.Uint16()
	if flags&unix.IFF_UP != 0 {
		return nil
	}
	ifr.SetUint16(flags | unix.IFF_UP)
	if err := unix.IoctlIfreq(fd, unix.SIOCSIFFLAGS, ifr); err != nil {
		return fmt.Errorf("error setting %v up: %w", name, err)
	}
	m.log.Println("set link up: ", name)
	return nil
}
