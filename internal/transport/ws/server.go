package ws

import (
	"fmt"
	"net/http"
	"time"

	"github.com/KStasi/pixel-map/internal/config/serverConfig"
	"github.com/KStasi/pixel-map/internal/service"
)

// RunServer wires the hub and handler together and serves until the listener
// fails. The hub doubles as the engine's whole-server broadcaster.
func RunServer(config serverConfig.ServerConfig, services *service.Service) error {
	hub := NewHub()
	services.SetBroadcaster(hub)

	go keepalive(hub, config.PingInterval)

	mux := http.NewServeMux()
	mux.Handle("/ws", NewHandler(services, hub))

	fmt.Printf("websocket server listening at %s\n", config.Address)

	srv := &http.Server{
		Addr:              config.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

// keepalive pings every connection and refreshes the online-user counter.
// Connections that miss their pong window are reaped by the read deadline.
func keepalive(hub *Hub, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		hub.pingAll()
		hub.announce()
	}
}
