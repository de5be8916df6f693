package server

import (
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// newNatsServer creates an embedded nats server for systems that do not
// run one of their own
func newNatsServer(port int, auth string) (*server.Server, error) {
	opts := server.Options{
		Host:          "127.0.0.1",
		Port:          port,
		Authorization: auth,
		NoSigs:        true,
		NoLog:         true,
	}

	natsServer, err := server.NewServer(&opts)
	if err != nil {
		return nil, fmt.Errorf("Error create new Nats server: %v", err)
	}

	authEnabled := "no"
	if auth != "" {
		authEnabled = "yes"
	}
	log.Printf("NATS server, port: %v, auth enabled: %v\n", port, authEnabled)

	return natsServer, nil
}

// startNatsServer starts s and waits until it accepts clients
func startNatsServer(s *server.Server) error {
	go s.Start()
	if !s.ReadyForConnections(10 * time.Second) {
		s.Shutdown()
		return fmt.Errorf("NATS server not ready")
	}
	return nil
}
