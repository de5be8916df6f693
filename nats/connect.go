package nats

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// ExpBackoff returns 2^attempts seconds, capped at max, plus a random
// fraction of a second
func ExpBackoff(attempts int, max time.Duration) time.Duration {
	delay := max
	if attempts < 32 {
		if d := time.Duration(math.Exp2(float64(attempts))) * time.Second; d < max {
			delay = d
		}
	}
	return delay + time.Duration(rand.Float32()*1000)*time.Millisecond
}

// sanitizeURI adds the default port for the scheme if none is given
func sanitizeURI(uri string) (string, error) {
	uri = strings.TrimSpace(uri)
	parts := strings.SplitN(uri, "://", 2)
	if len(parts) < 2 {
		return uri, fmt.Errorf("URI %v does not contain ://", uri)
	}
	proto, server := parts[0], parts[1]
	if strings.Contains(server, ":") {
		return uri, nil
	}

	port := "4222"
	switch proto {
	case "ws":
		port = "80"
	case "wss":
		port = "443"
	}
	return fmt.Sprintf("%v://%v:%v", proto, server, port), nil
}

// Options describes how to reach the NATS server
type Options struct {
	Server    string
	AuthToken string
	// Connected is called on the first connect and every reconnect
	Connected func()
}

// Connect connects to NATS. The connection retries forever with an
// exponential backoff, so the daemon keeps running while the server is
// down.
func Connect(o Options) (*nats.Conn, error) {
	server, err := sanitizeURI(o.Server)
	if err != nil {
		return nil, err
	}

	authEnabled := "no"
	if o.AuthToken != "" {
		authEnabled = "yes"
	}
	log.Printf("NATS connect to: %v, auth enabled: %v", server, authEnabled)

	connected := func(_ *nats.Conn) {
		if o.Connected != nil {
			o.Connected()
		}
	}

	return nats.Connect(server,
		nats.Name("siot-cellular"),
		nats.Timeout(30*time.Second),
		nats.DrainTimeout(10*time.Second),
		nats.PingInterval(2*time.Minute),
		nats.MaxPingsOutstanding(3),
		nats.RetryOnFailedConnect(true),
		nats.ReconnectBufSize(128*1024),
		nats.MaxReconnects(-1),
		nats.SetCustomDialer(&net.Dialer{
			KeepAlive: -1,
		}),
		nats.CustomReconnectDelay(func(attempts int) time.Duration {
			delay := ExpBackoff(attempts, time.Minute)
			log.Printf("NATS reconnect attempts: %v, delay: %v", attempts, delay)
			return delay
		}),
		nats.Token(o.AuthToken),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Printf("NATS Error: %s\n", err)
		}),
		nats.ConnectHandler(connected),
		nats.ReconnectHandler(connected),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Println("NATS disconnected: ", err)
			}
		}),
	)
}
