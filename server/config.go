package server

// Config is the relay server configuration.
type Config struct {
	// Address to listen on (e.g. ":8080")
	ListenAddr string
}
