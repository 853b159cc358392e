package discovery

import (
	"encoding/json"
	"fmt"
)

const (
	TypeDiscovery       = "discovery"
	TypeServerBroadcast = "server_broadcast"

	DefaultUDPPort     = 4000
	DefaultServicePort = 3001
	Version            = "1.0.0"
	ServerInfoText     = "CASNOS Queue Management Server"
)

type Message struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type Endpoints struct {
	API      string `json:"api"`
	Health   string `json:"health"`
	Services string `json:"services"`
	Tickets  string `json:"tickets"`
}

type Server struct {
	IP        string    `json:"ip"`
	Port      int       `json:"port"`
	UDPPort   int       `json:"udpPort"`
	APIURL    string    `json:"apiUrl"`
	SocketURL string    `json:"socketUrl"`
	Endpoints Endpoints `json:"endpoints"`
}

type Payload struct {
	ServerInfo string `json:"serverInfo"`
	Version    string `json:"version"`
	Server     Server `json:"server"`
}

type ClientInfo struct {
	Type      string `json:"type"`
	Version   string `json:"version"`
	Platform  string `json:"platform"`
	RequestID string `json:"requestId"`
}

type request struct {
	ClientInfo ClientInfo `json:"clientInfo"`
}

func NewServer(ip string, port, udpPort int) Server {
	base := fmt.Sprintf("http://%s:%d", ip, port)
	return Server{
		IP:        ip,
		Port:      port,
		UDPPort:   udpPort,
		APIURL:    base,
		SocketURL: base,
		Endpoints: Endpoints{
			API:      base + "/api",
			Health:   base + "/health",
			Services: base + "/api/services",
			Tickets:  base + "/api/tickets",
		},
	}
}

func encode(kind string, timestamp int64, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: kind, Timestamp: timestamp, Data: raw})
}

// parseAnnouncement accepts a discovery reply or a server broadcast that
// names a reachable server.
func parseAnnouncement(body []byte) (Payload, bool) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return Payload{}, false
	}
	if msg.Type != TypeDiscovery && msg.Type != TypeServerBroadcast {
		return Payload{}, false
	}
	var payload Payload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		return Payload{}, false
	}
	if payload.Server.IP == "" || payload.Server.Port == 0 {
		return Payload{}, false
	}
	return payload, true
}
