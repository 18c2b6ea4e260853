// Package assetid implements the canonical cross-chain asset identifier:
// a version-tagged, colon-delimited string uniquely encoding an asset's
// chain, standard namespace, and contract/account reference.
//
// Format: v1:{blockchain}:{namespace}:{reference}[:{selector}]
//
// The codec is pure: no network calls, no store access.
package assetid

import (
	"regexp"
	"strings"

	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Version is the current identifier format version prefix.
const Version = "v1"

// NativeReference marks a chain's native coin when no contract exists.
const NativeReference = "coin"

var hexAddressRegex = regexp.MustCompile(`^0x[0-9a-fA-F]+$`)

// Encode builds a canonical asset id from its parts. Blockchain is
// lower-cased; address-like references (0x-hex) are lower-cased so the same
// contract always encodes to the same id regardless of checksum casing.
func Encode(blockchain, namespace, reference, selector string) (string, error) {
	blockchain = strings.ToLower(strings.TrimSpace(blockchain))
	namespace = strings.ToLower(strings.TrimSpace(namespace))
	reference = normalizeReference(reference)

	if blockchain == "" {
		return "", status.Error(codes.InvalidArgument, "blockchain is required")
	}
	if reference == "" {
		return "", status.Error(codes.InvalidArgument, "reference is required")
	}
	if namespace == "" {
		return "", status.Error(codes.InvalidArgument, "namespace is required")
	}
	// Colons delimit segments; a reference carrying one would decode to the
	// wrong shape. The caller's contract is to escape before encoding.
	for _, part := range []string{blockchain, namespace, reference, selector} {
		if strings.Contains(part, ":") {
			return "", status.Errorf(codes.InvalidArgument, "segment %q contains unescaped ':'", part)
		}
	}

	id := strings.Join([]string{Version, blockchain, namespace, reference}, ":")
	if selector != "" {
		id += ":" + selector
	}
	return id, nil
}

// Decode parses a canonical asset id back into its identity. The inverse of
// Encode: Decode(Encode(x)) == x for all valid, case-normalized x.
func Decode(assetID string) (types.CanonicalIdentity, error) {
	var identity types.CanonicalIdentity

	segments := strings.Split(assetID, ":")
	if segments[0] != Version {
		return identity, status.Errorf(codes.InvalidArgument, "unsupported identity version in %q", assetID)
	}
	// Version plus at least blockchain:namespace:reference.
	if len(segments) < 4 {
		return identity, status.Errorf(codes.InvalidArgument, "malformed identity %q: want at least 3 segments", assetID)
	}

	identity = types.CanonicalIdentity{
		AssetID:    assetID,
		Blockchain: strings.ToLower(segments[1]),
		Namespace:  strings.ToLower(segments[2]),
		Reference:  normalizeReference(segments[3]),
	}
	if identity.Blockchain == "" || identity.Namespace == "" || identity.Reference == "" {
		return types.CanonicalIdentity{}, status.Errorf(codes.InvalidArgument, "malformed identity %q: empty segment", assetID)
	}
	if len(segments) > 4 {
		identity.Selector = strings.Join(segments[4:], ":")
	}
	return identity, nil
}

// IsCanonical reports whether s looks like a canonical asset id rather than
// a bare symbol or contract reference.
func IsCanonical(s string) bool {
	return strings.HasPrefix(s, Version+":")
}

// Derive fills in namespace and reference for a descriptor that supplies
// only (blockchain, optional contract reference), using the per-chain-family
// rule table. Pure lookup, no network.
func Derive(blockchain, reference string) (types.CanonicalIdentity, error) {
	blockchain = strings.ToLower(strings.TrimSpace(blockchain))
	if blockchain == "" {
		return types.CanonicalIdentity{}, status.Error(codes.InvalidArgument, "blockchain is required")
	}

	family := familyOf(blockchain)
	reference = normalizeReference(reference)

	var namespace string
	switch {
	case reference == "":
		namespace = family.nativeNamespace
		reference = NativeReference
	default:
		namespace = family.tokenNamespace
	}

	assetID, err := Encode(blockchain, namespace, reference, "")
	if err != nil {
		return types.CanonicalIdentity{}, err
	}
	return types.CanonicalIdentity{
		AssetID:    assetID,
		Blockchain: blockchain,
		Namespace:  namespace,
		Reference:  reference,
	}, nil
}

// normalizeReference lower-cases address-like references (0x hex). Other
// reference schemes (base58 accounts, named accounts) are case-significant
// and pass through untouched.
func normalizeReference(reference string) string {
	reference = strings.TrimSpace(reference)
	if hexAddressRegex.MatchString(reference) {
		return strings.ToLower(reference)
	}
	return reference
}
