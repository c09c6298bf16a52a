package normalize

import (
	"strings"
	"testing"
)

func f(v float64) *float64 { return &v }

func TestCanonicalSymbol(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"BTC/USDT", "BTC/USDT"},
		{"BTC/USDT:USDT", "BTC/USDT"},
		{"eth/usdt:usdt", "ETH/USDT"},
		{"SOL/USD-PERP", "SOL/USD"},
		{"BTC/USD-SWAP", "BTC/USD"},
		{"BTC/USDT.P", "BTC/USDT"},
		{" BTC/USDT ", "BTC/USDT"},
	}
	for _, c := range cases {
		if got := CanonicalSymbol(c.in); got != c.want {
			t.Errorf("CanonicalSymbol(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalize_Valid(t *testing.T) {
	n := New()
	tick, ok := n.Normalize(RawTicker{
		Symbol:    "BTC/USDT:USDT",
		Timestamp: 1700000000000,
		Last:      f(67000.5),
		Volume:    f(12.5),
		Bid:       f(66999.0),
	})
	if !ok {
		t.Fatal("expected valid tick")
	}
	if tick.Symbol != "BTC/USDT" {
		t.Errorf("symbol = %q, want BTC/USDT", tick.Symbol)
	}
	if tick.Last != 67000.5 {
		t.Errorf("last = %v, want 67000.5", tick.Last)
	}
	if tick.Volume != 12.5 {
		t.Errorf("volume = %v, want 12.5", tick.Volume)
	}
	if tick.Bid == nil || *tick.Bid != 66999.0 {
		t.Errorf("bid not carried through: %v", tick.Bid)
	}
	if tick.Ask != nil {
		t.Errorf("missing ask must stay nil, got %v", *tick.Ask)
	}
}

func TestNormalize_MissingQuoteIsPermitted(t *testing.T) {
	n := New()
	tick, ok := n.Normalize(RawTicker{Symbol: "ETH/USDT", Timestamp: 1, Last: f(3500)})
	if !ok {
		t.Fatal("trade-price-only ticker must be accepted")
	}
	if tick.Bid != nil || tick.Ask != nil {
		t.Error("bid/ask must remain unset")
	}
}

func TestNormalize_RejectsMissingLast(t *testing.T) {
	n := New()
	rejected := 0
	n.OnRejected = func() { rejected++ }

	cases := []RawTicker{
		{Symbol: "BTC/USDT", Timestamp: 1},                // no last
		{Symbol: "BTC/USDT", Timestamp: 1, Last: f(0)},    // zero last
		{Symbol: "BTC/USDT", Timestamp: 1, Last: f(-1.0)}, // negative last
		{Symbol: "", Timestamp: 1, Last: f(100)},          // no symbol
	}
	for i, raw := range cases {
		if _, ok := n.Normalize(raw); ok {
			t.Errorf("case %d: malformed ticker accepted", i)
		}
	}
	if rejected != len(cases) {
		t.Errorf("OnRejected fired %d times, want %d", rejected, len(cases))
	}
}

func TestNormalize_OutputNeverHasContractSuffix(t *testing.T) {
	n := New()
	raws := []string{"BTC/USDT:USDT", "ETH/USD-PERP", "SOL/USDT-SWAP", "XRP/USDT.P", "BTC/USDT"}
	for _, sym := range raws {
		tick, ok := n.Normalize(RawTicker{Symbol: sym, Timestamp: 1, Last: f(10)})
		if !ok {
			t.Fatalf("ticker %q rejected", sym)
		}
		for _, bad := range []string{":", "-PERP", "-SWAP", ".P"} {
			if strings.Contains(tick.Symbol, bad) {
				t.Errorf("normalized symbol %q still contains %q", tick.Symbol, bad)
			}
		}
	}
}
