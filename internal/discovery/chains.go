package discovery

// evmChains is the ordered set of platform identifiers accepted as
// tradeable EVM networks. Keys are CoinGecko platform IDs; the first
// eight entries are the preferred networks when a token is deployed on
// several of them.
var evmChains = []string{
	"ethereum",
	"binance-smart-chain",
	"polygon-pos",
	"arbitrum-one",
	"optimistic-ethereum",
	"avalanche",
	"base",
	"polygon-zkevm",
	"fantom",
	"cronos",
	"mantle",
	"linea",
	"scroll",
	"zksync-era",
}

var evmChainSet = func() map[string]bool {
	set := make(map[string]bool, len(evmChains))
	for _, c := range evmChains {
		set[c] = true
	}
	return set
}()

// IsEVMChain reports whether platform is an accepted EVM network.
func IsEVMChain(platform string) bool {
	return evmChainSet[platform]
}

// ResolveAddress picks the contract address to trade for a token given
// its per-platform contract map. Networks are tried in preference
// order, so the same contract map always resolves to the same address.
// Returns empty strings when the token has no contract on any accepted
// network.
func ResolveAddress(contracts map[string]string) (chain, address string) {
	for _, c := range evmChains {
		if addr := contracts[c]; addr != "" {
			return c, addr
		}
	}
	return "", ""
}
