// Package metrics wires the sender and receiver engines to Prometheus
// counters/gauges, the way runZeroInc-sockstats and runZeroInc-conniver
// expose socket-level counters via github.com/prometheus/client_golang.
// A nil *Recorder is valid everywhere it is accepted — the core protocol
// has no hard dependency on a running exporter.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Recorder implements gbn.Recorder and gbn.AckRecorder, recording endpoint
// events against a caller-supplied Prometheus registry.
type Recorder struct {
	packetsSent          prometheus.Counter
	packetsRetransmitted prometheus.Counter
	packetsAcked         prometheus.Counter
	payloadsDelivered    prometheus.Counter
	packetsDiscarded     prometheus.Counter
	windowOccupancy      prometheus.Gauge
}

// NewRecorder creates and registers the endpoint's metric family on reg.
// label identifies the endpoint instance (e.g. its UUID) in a constant
// label, so multiple endpoints in one process don't collide.
func NewRecorder(reg prometheus.Registerer, label string) *Recorder {
	constLabels := prometheus.Labels{"endpoint": label}
	r := &Recorder{
		packetsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "rdt",
			Name:        "packets_sent_total",
			Help:        "Data packets transmitted (first transmission only).",
			ConstLabels: constLabels,
		}),
		packetsRetransmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "rdt",
			Name:        "packets_retransmitted_total",
			Help:        "Data packets resent by the retransmission timer.",
			ConstLabels: constLabels,
		}),
		packetsAcked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "rdt",
			Name:        "acks_processed_total",
			Help:        "ACKs that advanced send_base.",
			ConstLabels: constLabels,
		}),
		payloadsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "rdt",
			Name:        "payloads_delivered_total",
			Help:        "Payloads appended to the delivered FIFO.",
			ConstLabels: constLabels,
		}),
		packetsDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "rdt",
			Name:        "packets_discarded_total",
			Help:        "Data packets discarded as duplicate or out-of-order.",
			ConstLabels: constLabels,
		}),
		windowOccupancy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "rdt",
			Name:        "send_window_occupancy",
			Help:        "Current next_seq - send_base.",
			ConstLabels: constLabels,
		}),
	}

	if reg != nil {
		reg.MustRegister(
			r.packetsSent,
			r.packetsRetransmitted,
			r.packetsAcked,
			r.payloadsDelivered,
			r.packetsDiscarded,
			r.windowOccupancy,
		)
	}
	return r
}

func (r *Recorder) PacketSent()          { r.packetsSent.Inc() }
func (r *Recorder) PacketRetransmitted() { r.packetsRetransmitted.Inc() }
func (r *Recorder) PacketAcked()         { r.packetsAcked.Inc() }
func (r *Recorder) WindowOccupancy(n int) { r.windowOccupancy.Set(float64(n)) }
func (r *Recorder) PayloadDelivered()    { r.payloadsDelivered.Inc() }
func (r *Recorder) PacketDiscarded()     { r.packetsDiscarded.Inc() }
