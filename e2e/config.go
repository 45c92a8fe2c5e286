package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_SERVER_URL points at a running marketplace server; the suite skips
	// entirely when it is empty.
	ServerURL string `envconfig:"E2E_SERVER_URL"`
	SocketURL string `envconfig:"E2E_SOCKET_URL"`

	BuyerToken  string `envconfig:"E2E_BUYER_TOKEN"`
	SellerToken string `envconfig:"E2E_SELLER_TOKEN"`

	Conversation string `envconfig:"E2E_CONVERSATION" default:"conv_e2e_nego"`

	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
