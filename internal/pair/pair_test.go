package pair

import (
	"testing"
)

func TestParse_Valid(t *testing.T) {
	p, err := Parse("SOL/USDC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Base != "SOL" {
		t.Errorf("expected base=SOL, got %s", p.Base)
	}
	if p.Quote != "USDC" {
		t.Errorf("expected quote=USDC, got %s", p.Quote)
	}
	if p.Ticker != "SOL/USDC" {
		t.Errorf("expected ticker=SOL/USDC, got %s", p.Ticker)
	}
}

func TestParse_InvalidFormat(t *testing.T) {
	tests := []string{
		"",
		"SOLUSDC",
		"sol/usdc",    // lowercase
		"SOL/",        // missing quote
		"/USDC",       // missing base
		"S/USDC",      // base too short
		"SOLANA/USDC", // base too long
		"SOL/USDC/X",  // extra leg
		"SOL-USDC",    // wrong separator
		"SOL/SOL",     // identical legs
	}
	for _, ticker := range tests {
		_, err := Parse(ticker)
		if err == nil {
			t.Errorf("expected error for ticker %q", ticker)
		}
	}
}

func TestSymbolRoundTrip(t *testing.T) {
	p, err := Parse("BTC/USDC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sym := p.Symbol()
	if got := SymbolTicker(sym); got != "BTC" {
		t.Errorf("expected BTC, got %q", got)
	}
}

func TestParseFeedID(t *testing.T) {
	hex64 := "ef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d"

	id, err := ParseFeedID(hex64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id[0] != 0xef || id[31] != 0x6d {
		t.Errorf("unexpected decoded bytes: %x", id)
	}

	prefixed, err := ParseFeedID("0x" + hex64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prefixed != id {
		t.Error("0x prefix should decode to the same id")
	}

	if got := FeedIDString(id); got != "0x"+hex64 {
		t.Errorf("expected round trip, got %s", got)
	}

	for _, bad := range []string{"", "zz", hex64[:62], hex64 + "ff"} {
		if _, err := ParseFeedID(bad); err == nil {
			t.Errorf("expected error for feed id %q", bad)
		}
	}
}
