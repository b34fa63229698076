package peer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricFramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iax2_frames_received_total",
		Help: "Frames received, by shell.",
	}, []string{"shell"})

	metricFramesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iax2_frames_sent_total",
		Help: "Frames sent, by shell.",
	}, []string{"shell"})

	metricRetransmissions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "iax2_retransmissions_total",
		Help: "Frames sent with the retransmission flag set.",
	})

	metricDecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "iax2_frame_decode_errors_total",
		Help: "Datagrams dropped because they failed to parse.",
	})

	metricActiveDialogs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "iax2_active_dialogs",
		Help: "Dialogs currently in the peer table.",
	})

	metricEventsDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "iax2_events_dispatched_total",
		Help: "Events delivered to application handlers.",
	})

	metricCommandsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "iax2_commands_processed_total",
		Help: "Application commands drained from the command queue.",
	})
)
