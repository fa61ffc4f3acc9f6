// Package params holds process configuration for the onbook daemon.
package params

import (
	"os"

	"github.com/joho/godotenv"
)

type API struct {
	Addr string // listen address for the REST/WebSocket server
}

type Node struct {
	DataDir string // event journal and other on-disk state
	LogFile string
}

type Fees struct {
	// Setter is the only principal allowed to change fee configuration.
	Setter string
	// Recipient, when non-empty, enables the settlement fee at startup.
	Recipient string
}

type Config struct {
	API  API
	Node Node
	Fees Fees
}

func Default() Config {
	return Config{
		API:  API{Addr: ":8080"},
		Node: Node{DataDir: "data", LogFile: "data/onbook.log"},
		Fees: Fees{Setter: "0x0000000000000000000000000000000000000001"},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.API.Addr = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Node.DataDir = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Node.LogFile = v
	}
	if v := os.Getenv("FEE_SETTER"); v != "" {
		cfg.Fees.Setter = v
	}
	if v := os.Getenv("FEE_RECIPIENT"); v != "" {
		cfg.Fees.Recipient = v
	}

	return cfg
}
