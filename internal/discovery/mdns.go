// ABOUTME: mDNS discovery of Vocalis speech endpoints
// ABOUTME: The dev server advertises _vocalis._tcp; the CLI browses for it
package discovery

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/mdns"

	"github.com/Vocalis-Audio/vocalis-go/pkg/protocol"
)

// ServiceType is the mDNS service type for Vocalis speech endpoints.
const ServiceType = "_vocalis._tcp"

// Endpoint is a discovered speech endpoint.
type Endpoint struct {
	Name string
	Host string
	Port int
	Path string
}

// URL returns the WebSocket endpoint URL.
func (e Endpoint) URL() string {
	path := e.Path
	if path == "" {
		path = protocol.DefaultPath
	}
	return fmt.Sprintf("ws://%s:%d%s", e.Host, e.Port, path)
}

// Advertiser keeps an mDNS announcement alive until Shutdown.
type Advertiser struct {
	server *mdns.Server
}

// Advertise announces a speech endpoint on the local network. The TXT
// record carries the WebSocket path so clients can build the full URL.
func Advertise(name string, port int, log *slog.Logger) (*Advertiser, error) {
	if log == nil {
		log = slog.Default()
	}

	ips, err := localIPs()
	if err != nil {
		return nil, fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		name,
		ServiceType,
		"",
		"",
		port,
		ips,
		[]string{"path=" + protocol.DefaultPath},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mdns service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("failed to create mdns server: %w", err)
	}

	log.Info("advertising speech endpoint", "name", name, "port", port, "type", ServiceType)
	return &Advertiser{server: server}, nil
}

// Shutdown withdraws the announcement.
func (a *Advertiser) Shutdown() error {
	return a.server.Shutdown()
}

// Browse queries the local network for speech endpoints and returns
// everything found within the timeout.
func Browse(timeout time.Duration, log *slog.Logger) ([]Endpoint, error) {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	entries := make(chan *mdns.ServiceEntry, 16)
	done := make(chan []Endpoint)

	go func() {
		var found []Endpoint
		for entry := range entries {
			if entry.AddrV4 == nil {
				log.Debug("skipping endpoint without IPv4 address", "name", entry.Name)
				continue
			}
			ep := Endpoint{
				Name: strings.TrimSuffix(entry.Name, "."+ServiceType+".local."),
				Host: entry.AddrV4.String(),
				Port: entry.Port,
				Path: txtPath(entry.InfoFields),
			}
			log.Info("discovered speech endpoint", "name", ep.Name, "url", ep.URL())
			found = append(found, ep)
		}
		done <- found
	}()

	err := mdns.Query(&mdns.QueryParam{
		Service: ServiceType,
		Domain:  "local",
		Timeout: timeout,
		Entries: entries,
	})
	close(entries)
	found := <-done

	if err != nil {
		return nil, fmt.Errorf("mdns query failed: %w", err)
	}
	return found, nil
}

// txtPath extracts the WebSocket path from TXT fields.
func txtPath(fields []string) string {
	for _, f := range fields {
		if strings.HasPrefix(f, "path=") {
			return strings.TrimPrefix(f, "path=")
		}
	}
	return ""
}

// localIPs returns the non-loopback IPv4 addresses of up interfaces.
func localIPs() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				ips = append(ips, ipnet.IP)
			}
		}
	}
	return ips, nil
}
