package main

import "time"

type Config struct {
	// JWT issued by the marketplace at login; identity is read client-side
	// without verification, the server is the one holding the key.
	SessionToken string `env:"SESSION_TOKEN,required=true"`

	ServerURL string `env:"SERVER_URL,required=true"`
	SocketURL string `env:"SOCKET_URL"`
	// polling | socket
	Transport string `env:"TRANSPORT,default=polling"`

	PollInterval     time.Duration `env:"POLL_INTERVAL"`
	SendTimeout      time.Duration `env:"SEND_TIMEOUT"`
	ExpiryInterval   time.Duration `env:"EXPIRY_INTERVAL"`
	PresenceInterval time.Duration `env:"PRESENCE_INTERVAL"`
	MetricInterval   time.Duration `env:"METRIC_INTERVAL"`
	LimitMessages    *int          `env:"LIMIT_MESSAGES"`
	CharReplacement  string        `env:"MODERATION_CHARACTER_REPLACEMENT,default=*"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH"`
	LogLevel       string `env:"LOG_LEVEL,required=true"`
	DebugPort      int    `env:"DEBUG_PORT"`
	Colours        bool   `env:"COLOURS,default=true"`
}
