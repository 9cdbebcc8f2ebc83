package oracle

import (
	"github.com/tyield/engine/internal/safemath"
)

// SourceKind selects the aggregation strategy for a pair.
type SourceKind uint8

const (
	// SourceCustom reads the protocol's own snapshot account.
	SourceCustom SourceKind = iota + 1
	// SourceExternal reads a single external feed record.
	SourceExternal
	// SourceConsensus cross-checks redundant external feeds.
	SourceConsensus
)

// SourceConfig describes where a pair's price comes from and how much it is
// trusted.
type SourceConfig struct {
	FeedID                [32]byte   `json:"feed_id"`
	Kind                  SourceKind `json:"kind"`
	MaxPriceErrorBps      uint64     `json:"max_price_error_bps"`
	MaxPriceAgeSec        int64      `json:"max_price_age_sec"`
	MaxSourceDeviationBps uint64     `json:"max_source_deviation_bps"`
}

// FeedRecord is one observation from an external oracle network.
type FeedRecord struct {
	FeedID      [32]byte `json:"feed_id"`
	Price       uint64   `json:"price"`
	Conf        uint64   `json:"conf"`
	Exponent    int32    `json:"exponent"`
	PublishTime int64    `json:"publish_time"`
}

// TwapRecord is the time-weighted companion of a feed record, used when the
// caller asks for the smoothed (EMA) price.
type TwapRecord struct {
	Price       uint64 `json:"price"`
	Exponent    int32  `json:"exponent"`
	PublishTime int64  `json:"publish_time"`
}

// Input bundles the records available for one price read. Which fields must
// be set depends on the source kind.
type Input struct {
	Snapshot  *Snapshot
	Feed      *FeedRecord
	Twap      *TwapRecord
	Secondary *FeedRecord
	Tertiary  *FeedRecord
}

// GetPrice validates the configured source and returns its price.
//
// Custom sources revalidate the snapshot (staleness and confidence bound).
// External sources additionally enforce the hard feed-age ceiling and can
// serve the smoothed price when useEMA is set. Consensus sources cross-check
// the secondary (and, when present, tertiary) feeds against the primary and
// return the primary price; the redundant feeds only gate it.
func GetPrice(cfg SourceConfig, in Input, now int64, useEMA bool) (Price, error) {
	switch cfg.Kind {
	case SourceCustom:
		return customPrice(cfg, in.Snapshot, now, useEMA)
	case SourceExternal:
		return externalPrice(cfg, in.Feed, in.Twap, now, useEMA)
	case SourceConsensus:
		primary, err := externalPrice(cfg, in.Feed, in.Twap, now, useEMA)
		if err != nil {
			return Price{}, err
		}
		if in.Secondary == nil {
			return Price{}, ErrInvalidAccount
		}
		if err := checkAgainstPrimary(cfg, in.Feed, in.Secondary); err != nil {
			return Price{}, err
		}
		if in.Tertiary != nil {
			if err := checkAgainstPrimary(cfg, in.Feed, in.Tertiary); err != nil {
				return Price{}, err
			}
		}
		return primary, nil
	default:
		return Price{}, ErrUnsupportedSource
	}
}

func customPrice(cfg SourceConfig, s *Snapshot, now int64, useEMA bool) (Price, error) {
	if s == nil || s.FeedID != cfg.FeedID {
		return Price{}, ErrInvalidAccount
	}
	if s.Price == 0 {
		return Price{}, ErrInvalidPrice
	}
	age, err := safemath.Sub(now, s.PublishTime)
	if err != nil {
		return Price{}, err
	}
	if age > cfg.MaxPriceAgeSec {
		return Price{}, ErrStalePrice
	}
	if err := checkConfidence(cfg, s.Price, s.Conf); err != nil {
		return Price{}, err
	}
	mantissa := s.Price
	if useEMA {
		if s.EMA == 0 {
			return Price{}, ErrMissingTwap
		}
		mantissa = s.EMA
	}
	return Price{Mantissa: mantissa, Exponent: s.Exponent}, nil
}

func externalPrice(cfg SourceConfig, feed *FeedRecord, twap *TwapRecord, now int64, useEMA bool) (Price, error) {
	if feed == nil || feed.FeedID != cfg.FeedID {
		return Price{}, ErrInvalidAccount
	}
	if feed.Price == 0 {
		return Price{}, ErrInvalidPrice
	}
	age, err := safemath.Sub(now, feed.PublishTime)
	if err != nil {
		return Price{}, err
	}
	if age > MaxFeedAgeSec || age > cfg.MaxPriceAgeSec {
		return Price{}, ErrStalePrice
	}
	if err := checkConfidence(cfg, feed.Price, feed.Conf); err != nil {
		return Price{}, err
	}
	if useEMA {
		if twap == nil {
			return Price{}, ErrMissingTwap
		}
		if twap.Price == 0 {
			return Price{}, ErrInvalidPrice
		}
		return Price{Mantissa: twap.Price, Exponent: twap.Exponent}, nil
	}
	return Price{Mantissa: feed.Price, Exponent: feed.Exponent}, nil
}

// checkConfidence rejects observations whose confidence interval exceeds the
// configured fraction of the price.
func checkConfidence(cfg SourceConfig, price, conf uint64) error {
	if cfg.MaxPriceErrorBps == 0 {
		return nil
	}
	ratio, err := safemath.MulDiv(conf, safemath.PercentagePrecision, price)
	if err != nil {
		return err
	}
	if ratio > cfg.MaxPriceErrorBps {
		return ErrInvalidPrice
	}
	return nil
}

// checkAgainstPrimary measures deviation between a redundant feed and the
// primary, in both directions, at a common exponent.
func checkAgainstPrimary(cfg SourceConfig, primary, other *FeedRecord) error {
	if other.Price == 0 {
		return ErrInvalidPrice
	}
	p := Price{Mantissa: primary.Price, Exponent: primary.Exponent}
	o := Price{Mantissa: other.Price, Exponent: other.Exponent}
	scaled, err := o.ScaleToExponent(p.Exponent)
	if err != nil {
		return ErrIncomparable
	}

	forward, err := deviationBps(scaled.Mantissa, p.Mantissa)
	if err != nil {
		return err
	}
	backward, err := deviationBps(p.Mantissa, scaled.Mantissa)
	if err != nil {
		return err
	}
	if forward > cfg.MaxSourceDeviationBps || backward > cfg.MaxSourceDeviationBps {
		return ErrDeviationTooHigh
	}
	return nil
}
