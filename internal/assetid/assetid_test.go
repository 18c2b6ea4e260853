package assetid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name       string
		blockchain string
		namespace  string
		reference  string
		selector   string
		wantID     string
	}{
		{
			name:       "evm token",
			blockchain: "eth",
			namespace:  "erc20",
			reference:  "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
			wantID:     "v1:eth:erc20:0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
		},
		{
			name:       "native coin",
			blockchain: "ETH",
			namespace:  "native",
			reference:  "coin",
			wantID:     "v1:eth:native:coin",
		},
		{
			name:       "near token keeps account casing",
			blockchain: "near",
			namespace:  "nep141",
			reference:  "usdt.tether-token.near",
			wantID:     "v1:near:nep141:usdt.tether-token.near",
		},
		{
			name:       "selector",
			blockchain: "eth",
			namespace:  "erc20",
			reference:  "0xdac17f958d2ee523a2206206994597c13d831ec7",
			selector:   "6",
			wantID:     "v1:eth:erc20:0xdac17f958d2ee523a2206206994597c13d831ec7:6",
		},
		{
			name:       "solana base58 untouched",
			blockchain: "solana",
			namespace:  "spl",
			reference:  "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
			wantID:     "v1:solana:spl:EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id, err := Encode(tc.blockchain, tc.namespace, tc.reference, tc.selector)
			require.NoError(t, err)
			assert.Equal(t, tc.wantID, id)

			decoded, err := Decode(id)
			require.NoError(t, err)
			assert.Equal(t, id, decoded.AssetID)
			assert.Equal(t, tc.namespace, decoded.Namespace)
			assert.Equal(t, tc.selector, decoded.Selector)

			// Round-trip: re-encoding the decoded identity is stable.
			again, err := Encode(decoded.Blockchain, decoded.Namespace, decoded.Reference, decoded.Selector)
			require.NoError(t, err)
			assert.Equal(t, id, again)
		})
	}
}

func TestEncodeInvalidInput(t *testing.T) {
	cases := []struct {
		name       string
		blockchain string
		namespace  string
		reference  string
	}{
		{"empty blockchain", "", "erc20", "0xabc"},
		{"empty reference", "eth", "erc20", ""},
		{"empty namespace", "eth", "", "0xabc"},
		{"colon in reference", "eth", "erc20", "0xabc:0xdef"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Encode(tc.blockchain, tc.namespace, tc.reference, "")
			require.Error(t, err)
			assert.Equal(t, codes.InvalidArgument, status.Code(err))
		})
	}
}

func TestDecodeRejectsBadIdentities(t *testing.T) {
	for _, id := range []string{
		"",
		"eth:erc20:0xabc",                // no version prefix
		"v2:eth:erc20:0xabc",             // unknown version
		"v1:eth:erc20",                   // only 2 segments
		"v1::erc20:0xabc",                // empty blockchain
		"v1:eth:erc20:",                  // empty reference
	} {
		_, err := Decode(id)
		require.Error(t, err, "id %q", id)
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
	}
}

func TestDecodePreservesSelectorColons(t *testing.T) {
	decoded, err := Decode("v1:eth:erc1155:0xabcdef:token:42")
	require.NoError(t, err)
	assert.Equal(t, "token:42", decoded.Selector)
}

func TestDerive(t *testing.T) {
	cases := []struct {
		name          string
		blockchain    string
		reference     string
		wantNamespace string
		wantReference string
	}{
		{"evm contract", "eth", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", "erc20", "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"},
		{"evm native", "arbitrum", "", "native", "coin"},
		{"solana token account", "solana", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", "spl", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"},
		{"near account", "near", "wrap.near", "nep141", "wrap.near"},
		{"bitcoin", "btc", "", "native", "coin"},
		{"unknown chain with reference", "madeupchain", "asset-7", "token", "asset-7"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			identity, err := Derive(tc.blockchain, tc.reference)
			require.NoError(t, err)
			assert.Equal(t, tc.wantNamespace, identity.Namespace)
			assert.Equal(t, tc.wantReference, identity.Reference)
			assert.True(t, IsCanonical(identity.AssetID))
		})
	}

	_, err := Derive("", "0xabc")
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestFallbackDecimalsTable(t *testing.T) {
	assert.Equal(t, int32(18), FallbackDecimals("erc20"))
	assert.Equal(t, int32(18), FallbackDecimals("native"))
	assert.Equal(t, int32(9), FallbackDecimals("spl"))
	assert.Equal(t, int32(24), FallbackDecimals("nep141"))
	assert.Equal(t, int32(9), FallbackDecimals("jetton"))
	assert.Equal(t, int32(6), FallbackDecimals("trc20"))
	assert.Equal(t, int32(18), FallbackDecimals("somethingelse"))
}
