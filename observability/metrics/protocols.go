package metrics

import (
	"math/big"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ProtocolMetrics exposes the latest registry view per protocol.
type ProtocolMetrics struct {
	tvl         *prometheus.GaugeVec
	apy         *prometheus.GaugeVec
	active      *prometheus.GaugeVec
	feesAccrued *prometheus.GaugeVec
}

var (
	protocolOnce     sync.Once
	protocolRegistry *ProtocolMetrics
)

func Protocols() *ProtocolMetrics {
	protocolOnce.Do(func() {
		protocolRegistry = &ProtocolMetrics{
			tvl: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "yieldrouter_protocol_tvl",
				Help: "Total value locked per protocol in token units.",
			}, []string{"protocol"}),
			apy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "yieldrouter_protocol_apy_bps",
				Help: "Reported apy per protocol in basis points.",
			}, []string{"protocol"}),
			active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "yieldrouter_protocol_active",
				Help: "1 when the protocol accepts deposits, 0 otherwise.",
			}, []string{"protocol"}),
			feesAccrued: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "yieldrouter_protocol_fees_accrued",
				Help: "Platform fees held in custody awaiting a sweep.",
			}, []string{"protocol"}),
		}
		prometheus.MustRegister(
			protocolRegistry.tvl,
			protocolRegistry.apy,
			protocolRegistry.active,
			protocolRegistry.feesAccrued,
		)
	})
	return protocolRegistry
}

func toFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}

// Record stores the registry view of one protocol.
func (m *ProtocolMetrics) Record(id uint64, tvl *big.Int, apy uint64, active bool) {
	if m == nil {
		return
	}
	label := strconv.FormatUint(id, 10)
	m.tvl.WithLabelValues(label).Set(toFloat(tvl))
	m.apy.WithLabelValues(label).Set(float64(apy))
	if active {
		m.active.WithLabelValues(label).Set(1)
	} else {
		m.active.WithLabelValues(label).Set(0)
	}
}

// RecordFees stores the unswept fee balance of one protocol.
func (m *ProtocolMetrics) RecordFees(id uint64, accrued *big.Int) {
	if m == nil {
		return
	}
	m.feesAccrued.WithLabelValues(strconv.FormatUint(id, 10)).Set(toFloat(accrued))
}
