// Package pair handles trading-pair ticker parsing, validation, and oracle
// feed-ID encoding.
package pair

import (
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// MaxSymbolLen is the fixed width of an encoded pair symbol.
const MaxSymbolLen = 8

// tickerRegex matches: {BASE}/{QUOTE}
// Example: SOL/USDC
var tickerRegex = regexp.MustCompile(`^([A-Z0-9]{2,5})/([A-Z0-9]{2,5})$`)

var (
	ErrInvalidTicker = errors.New("pair: invalid ticker format")
	ErrInvalidFeedID = errors.New("pair: invalid feed id")
)

// Pair represents a parsed trading pair.
type Pair struct {
	Ticker string `json:"ticker"`
	Base   string `json:"base"`
	Quote  string `json:"quote"`
}

// Parse parses and validates a pair ticker string.
// Format: {BASE}/{QUOTE}, both legs 2-5 uppercase alphanumerics.
func Parse(ticker string) (*Pair, error) {
	matches := tickerRegex.FindStringSubmatch(ticker)
	if matches == nil {
		return nil, fmt.Errorf("%w: %s (expected BASE/QUOTE)", ErrInvalidTicker, ticker)
	}
	base := matches[1]
	quote := matches[2]
	if base == quote {
		return nil, fmt.Errorf("%w: identical legs %s", ErrInvalidTicker, ticker)
	}
	return &Pair{Ticker: ticker, Base: base, Quote: quote}, nil
}

// Symbol encodes the pair into the fixed 8-byte form trades carry on disk:
// the base leg, null padded. Tickers whose base exceeds the width are
// rejected by Parse before they get here.
func (p *Pair) Symbol() [MaxSymbolLen]byte {
	var sym [MaxSymbolLen]byte
	copy(sym[:], p.Base)
	return sym
}

// SymbolTicker reconstructs a readable base symbol from its encoded form.
func SymbolTicker(sym [MaxSymbolLen]byte) string {
	return strings.TrimRight(string(sym[:]), "\x00")
}

// ParseFeedID decodes a 64-character hex oracle feed identifier, with or
// without a 0x prefix.
func ParseFeedID(s string) ([32]byte, error) {
	var id [32]byte
	s = strings.TrimPrefix(s, "0x")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("%w: %s", ErrInvalidFeedID, s)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidFeedID, len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// FeedIDString renders a feed identifier as 0x-prefixed hex.
func FeedIDString(id [32]byte) string {
	return "0x" + hex.EncodeToString(id[:])
}
