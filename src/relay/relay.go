package relay

import (
	"context"

	"signal-relay/src/interfaces"
	"signal-relay/src/logger"
	"signal-relay/src/metrics"
	"signal-relay/src/models"
	"signal-relay/src/utils"
)

// -----------------------------------------------------------------------------
// Relay is the local end of the bridge. Producer sessions hand it their
// envelopes; it queues them for the upstream client and routes each response
// back to whichever session sent the matching request. Heartbeats never get
// here, the session layer answers those on its own.
// -----------------------------------------------------------------------------

type Relay struct {
	Config *models.MConfig
	Logger *logger.Logger

	Correlations *CorrelationMap
	Upstream     *UpstreamClient

	outbound chan models.MEnvelope
}

var _ interfaces.ISignalProcessor = (*Relay)(nil)

// -----------------------------------------------------------------------------

func NewRelay(cfg *models.MConfig, log *logger.Logger) *Relay {
	// 1. Outbound queue shared by all producer sessions and the upstream
	//    drain loop
	capacity := cfg.Bridge.QueueCapacity
	if capacity <= 0 {
		capacity = 1024
	}

	r := &Relay{
		Config:       cfg,
		Logger:       log,
		Correlations: NewCorrelationMap(),
		outbound:     make(chan models.MEnvelope, capacity),
	}

	// 2. Upstream client feeding responses back through the correlation map
	r.Upstream = NewUpstreamClient(cfg, log, r.outbound, r.dispatchResponse)

	return r
}

// -----------------------------------------------------------------------------

// Start launches the upstream connection loop. It returns immediately; the
// loop runs until ctx is cancelled.
func (r *Relay) Start(ctx context.Context) {
	go r.Upstream.Run(ctx)
}

// -----------------------------------------------------------------------------

// Process queues one producer envelope for upstream delivery.
//
// The correlation entry is registered before the frame can possibly go out,
// otherwise a fast upstream answer could arrive before we know who asked.
// While upstream is down the frame still queues, and the producer gets an
// explicit queued ack so it does not sit waiting for a response that will
// only exist after reconnect.
func (r *Relay) Process(sess interfaces.ISession, env models.MEnvelope) *models.MResponse {
	cid := env.CorrelationID()
	if cid != "" {
		r.Correlations.Register(cid, sess)
	}

	select {
	case r.outbound <- env:
		metrics.OutboundQueueDepth.Set(float64(len(r.outbound)))
	default:
		if cid != "" {
			r.Correlations.Take(cid)
		}
		r.Logger.Warning("Outbound queue full, rejecting message from %s", sess.RemoteAddr())
		return &models.MResponse{
			Status:      utils.StatusError,
			Message:     "Bridge queue is full. Try again later.",
			ClientMsgID: cid,
		}
	}

	if !r.Upstream.Connected() {
		return &models.MResponse{
			Status:      utils.StatusQueued,
			Message:     "Upstream unavailable. Signal queued for delivery.",
			ClientMsgID: cid,
			QueueDepth:  len(r.outbound),
		}
	}

	// Upstream will answer; the dispatcher routes it back to sess.
	return nil
}

// -----------------------------------------------------------------------------

// OnSessionClose drops every correlation entry owned by the closed session,
// so responses that arrive afterwards are discarded instead of written to a
// dead connection.
func (r *Relay) OnSessionClose(sess interfaces.ISession) {
	if removed := r.Correlations.PurgeSession(sess); removed > 0 {
		r.Logger.Info("Cleaned up %d message IDs for %s.", removed, sess.RemoteAddr())
	}
}

// -----------------------------------------------------------------------------

func (r *Relay) QueueDepth() int {
	return len(r.outbound)
}

// -----------------------------------------------------------------------------

// dispatchResponse routes one upstream response to the producer waiting on
// its id. Responses whose owner is gone (disconnected, purged) are dropped
// quietly; the upstream has already processed the signal either way.
func (r *Relay) dispatchResponse(env models.MEnvelope) {
	cid := env.CorrelationID()
	if cid == "" {
		r.Logger.Warning("Upstream response carries no message id, dropping it")
		return
	}

	sess, ok := r.Correlations.Take(cid)
	if !ok {
		r.Logger.Debug("Dropping late response for %s", cid)
		return
	}

	if err := sess.WriteMessage(env); err != nil {
		r.Logger.Error("Failed to relay response %s to %s: %v", cid, sess.RemoteAddr(), err)
	}
}
