package assetid

// chainFamily captures the asset-standard rules for one family of chains:
// which namespace a fungible token gets and which namespace the native coin
// gets when no contract reference is supplied.
type chainFamily struct {
	tokenNamespace  string
	nativeNamespace string
}

var (
	evmFamily     = chainFamily{tokenNamespace: "erc20", nativeNamespace: "native"}
	splFamily     = chainFamily{tokenNamespace: "spl", nativeNamespace: "native"}
	nearFamily    = chainFamily{tokenNamespace: "nep141", nativeNamespace: "native"}
	tonFamily     = chainFamily{tokenNamespace: "jetton", nativeNamespace: "native"}
	tronFamily    = chainFamily{tokenNamespace: "trc20", nativeNamespace: "native"}
	utxoFamily    = chainFamily{tokenNamespace: "native", nativeNamespace: "native"}
	unknownFamily = chainFamily{tokenNamespace: "token", nativeNamespace: "native"}
)

// chainFamilies maps lower-cased blockchain names to their family rules.
// This table is the only place chain-specific namespace derivation lives.
var chainFamilies = map[string]chainFamily{
	"eth":       evmFamily,
	"ethereum":  evmFamily,
	"arbitrum":  evmFamily,
	"optimism":  evmFamily,
	"base":      evmFamily,
	"polygon":   evmFamily,
	"bsc":       evmFamily,
	"avalanche": evmFamily,
	"gnosis":    evmFamily,
	"linea":     evmFamily,
	"scroll":    evmFamily,
	"zksync":    evmFamily,
	"berachain": evmFamily,
	"aurora":    evmFamily,

	"solana": splFamily,
	"sol":    splFamily,

	"near": nearFamily,

	"ton": tonFamily,

	"tron": tronFamily,

	"btc":      utxoFamily,
	"bitcoin":  utxoFamily,
	"doge":     utxoFamily,
	"litecoin": utxoFamily,
	"zec":      utxoFamily,
}

// familyOf returns the rule set for a blockchain, falling back to the
// generic token namespace for chains the table does not know.
func familyOf(blockchain string) chainFamily {
	if f, ok := chainFamilies[blockchain]; ok {
		return f
	}
	return unknownFamily
}

// FallbackDecimals is the single authoritative table of conservative
// decimals defaults keyed by namespace, applied only when no registry
// resolves an asset. It determines the correctness of all downstream
// amount math, so every namespace the codec can emit has an explicit row:
//
//	erc20, native  18  (EVM token standard and EVM-style native coins)
//	spl             9  (Solana token accounts; SOL itself is 9)
//	nep141         24  (NEAR fungible tokens; NEAR native is 24)
//	jetton          9  (TON jettons)
//	trc20           6  (Tron tokens, USDT-dominated)
//
// Anything else falls back to 18, the least surprising default for the
// EVM-heavy provider set.
func FallbackDecimals(namespace string) int32 {
	switch namespace {
	case "erc20", "native", "token":
		return 18
	case "spl":
		return 9
	case "nep141":
		return 24
	case "jetton":
		return 9
	case "trc20":
		return 6
	default:
		return 18
	}
}
