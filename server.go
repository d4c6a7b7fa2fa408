package adapt

import "fmt"

// Server holds the endpoints of one adapt deployment.
type Server struct {
	// API is the HTTP REST API, e.g. https://api.adapt.chat.
	API string
	// Harmony is the websocket gateway, e.g. wss://harmony.adapt.chat.
	Harmony string
	// Convey is the file upload and CDN service, e.g. https://convey.adapt.chat.
	Convey string
}

// ProductionServer points at adapt.chat. It is the default.
func ProductionServer() Server {
	return Server{
		API:     "https://api.adapt.chat",
		Harmony: "wss://harmony.adapt.chat",
		Convey:  "https://convey.adapt.chat",
	}
}

// LocalServer points at a server running on host with adapt's default ports.
func LocalServer(host string) Server {
	if host == "" {
		host = "localhost"
	}
	return Server{
		API:     fmt.Sprintf("http://%s:8077", host),
		Harmony: fmt.Sprintf("ws://%s:8076", host),
		Convey:  fmt.Sprintf("http://%s:8078", host),
	}
}
