package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Deployments is the static table mapping a network reference to the
// registry contract address deployed there. Absence of a key for the active
// network is a first-class "undeployed" outcome, not an error.
type Deployments map[string]common.Address

// ParseDeployments validates and converts a raw configuration mapping
func ParseDeployments(raw map[string]string) (Deployments, error) {
	deployments := make(Deployments, len(raw))
	for network, addr := range raw {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid registry address %q for network %s", addr, network)
		}
		deployments[network] = common.HexToAddress(addr)
	}
	return deployments, nil
}

// Resolve returns the registry address for a network reference, if deployed
func (d Deployments) Resolve(network string) (common.Address, bool) {
	addr, ok := d[network]
	return addr, ok
}
