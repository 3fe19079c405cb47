// Package network describes blockchain endpoints and caches one client handle per endpoint.
package network

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	clierr "github.com/ggonzalez94/wallet-cli/internal/errors"
)

// Identity is the value that identifies a blockchain endpoint. Two identities
// address the same endpoint iff their Unique strings match.
type Identity struct {
	Name       string `json:"name" yaml:"name"`
	Protocol   string `json:"protocol" yaml:"protocol" validate:"required,oneof=http https"`
	Host       string `json:"host" yaml:"host" validate:"required,hostname_rfc1123|ip"`
	Port       int    `json:"port" yaml:"port" validate:"gt=0,lte=65535"`
	Blockchain string `json:"blockchain" yaml:"blockchain" validate:"required"`
	ChainID    string `json:"chain_id" yaml:"chain_id"`
	Token      string `json:"token,omitempty" yaml:"token,omitempty"`
}

var validate = validator.New()

// Unique returns the canonical form blockchain:chainID:protocol://host:port.
func (i Identity) Unique() string {
	return fmt.Sprintf("%s:%s:%s://%s:%d",
		strings.ToLower(strings.TrimSpace(i.Blockchain)),
		strings.TrimSpace(i.ChainID),
		strings.ToLower(strings.TrimSpace(i.Protocol)),
		strings.ToLower(strings.TrimSpace(i.Host)),
		i.Port,
	)
}

func (i Identity) Equal(other Identity) bool {
	return i.Unique() == other.Unique()
}

// HostPort returns host:port, used for endorsed-network comparison.
func (i Identity) HostPort() string {
	return net.JoinHostPort(strings.ToLower(strings.TrimSpace(i.Host)), strconv.Itoa(i.Port))
}

// FullHost returns the base URL of the endpoint with default ports elided.
func (i Identity) FullHost() string {
	protocol := strings.ToLower(strings.TrimSpace(i.Protocol))
	host := strings.ToLower(strings.TrimSpace(i.Host))
	if (protocol == "https" && i.Port == 443) || (protocol == "http" && i.Port == 80) || i.Port == 0 {
		return protocol + "://" + host
	}
	return fmt.Sprintf("%s://%s", protocol, net.JoinHostPort(host, strconv.Itoa(i.Port)))
}

func (i Identity) Validate() error {
	if err := validate.Struct(i); err != nil {
		return clierr.Wrap(clierr.CodeUsage, fmt.Sprintf("invalid network %q", i.Name), err)
	}
	return nil
}

func (i Identity) String() string {
	if i.Name != "" {
		return i.Name + " (" + i.Unique() + ")"
	}
	return i.Unique()
}

// Account is a reference to a key on a specific network.
type Account struct {
	PublicKey string   `json:"public_key"`
	Network   Identity `json:"network"`
}
