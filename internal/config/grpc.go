package config

import (
	"fmt"
	"time"
)

// GRPCConfig configures the gRPC validation server.
type GRPCConfig struct {
	Enabled bool   `envconfig:"ENABLED" default:"true"`
	Port    string `envconfig:"PORT" default:"50051"`
	Host    string `envconfig:"HOST" default:"0.0.0.0"`

	MaxConcurrentStreams uint32        `envconfig:"MAX_CONCURRENT_STREAMS" default:"100"`
	MaxRecvMsgBytes      int           `envconfig:"MAX_RECV_MSG_BYTES" default:"1048576" validate:"min=1"`
	KeepaliveTime        time.Duration `envconfig:"KEEPALIVE_TIME" default:"120s"`
	KeepaliveTimeout     time.Duration `envconfig:"KEEPALIVE_TIMEOUT" default:"20s"`
	MaxConnectionAge     time.Duration `envconfig:"MAX_CONNECTION_AGE" default:"300s"`
}

// Address returns the listen address in host:port format.
func (c *GRPCConfig) Address() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Validate performs validation on the GRPCConfig.
func (c *GRPCConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if err := validatePort(c.Port, "grpc server"); err != nil {
		return err
	}

	return validateHost(c.Host, "grpc server")
}
