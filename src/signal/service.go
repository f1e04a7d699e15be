package signal

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"signal-relay/src/helpers"
	"signal-relay/src/interfaces"
	"signal-relay/src/logger"
	"signal-relay/src/metrics"
	"signal-relay/src/models"
	"signal-relay/src/storage"
	"signal-relay/src/utils"
)

// -----------------------------------------------------------------------------

// Service turns validated signal envelopes into database rows, alerts and
// live-feed events. It is the processor behind both the TCP server and the
// HTTP webhook, and doubles as the retry executor for the queue worker.
type Service struct {
	Config    *models.MConfig
	DB        interfaces.IDatabase
	Admission *AdmissionController
	Notifier  interfaces.INotifier
	Publisher interfaces.IEventPublisher
	Logger    *logger.Logger

	queue interfaces.IRetryQueue
}

// -----------------------------------------------------------------------------

func NewService(cfg *models.MConfig, db interfaces.IDatabase, notifier interfaces.INotifier, publisher interfaces.IEventPublisher, log *logger.Logger) *Service {
	return &Service{
		Config:    cfg,
		DB:        db,
		Admission: NewAdmissionController(cfg, db, log),
		Notifier:  notifier,
		Publisher: publisher,
		Logger:    log,
	}
}

// -----------------------------------------------------------------------------

// AttachQueue wires in the retry queue after construction. The queue needs
// the service as its executor and the service needs the queue for transient
// failures, so one of the two references has to arrive late.
func (s *Service) AttachQueue(q interfaces.IRetryQueue) {
	s.queue = q
}

// -----------------------------------------------------------------------------

// Process handles one decoded envelope from an authenticated session and
// returns the response to write back. Admission rejections and validation
// problems come back as definitive errors; transient failures land in the
// retry queue and the producer gets a "queued" acknowledgement instead.
func (s *Service) Process(sess interfaces.ISession, env models.MEnvelope) *models.MResponse {
	action := env.Action()
	symbol := env.Symbol()
	price := env.Price()
	clientID := env.ClientMsgID()

	if action == "" || symbol == "" || price == 0 {
		return &models.MResponse{
			Status:      utils.StatusError,
			Message:     "Missing required fields: action, symbol, price",
			ClientMsgID: clientID,
		}
	}

	switch action {
	case utils.ActionBuy, utils.ActionSell:
		return s.handleNewSignal(env, action, symbol, price, clientID)
	case utils.ActionClose:
		return s.handleCloseSignal(env, symbol, price, clientID)
	default:
		return &models.MResponse{
			Status:      utils.StatusError,
			Message:     "Invalid action",
			ClientMsgID: clientID,
		}
	}
}

// -----------------------------------------------------------------------------

func (s *Service) handleNewSignal(env models.MEnvelope, action, symbol string, price float64, clientID string) *models.MResponse {
	allowed, reason, err := s.Admission.CanAccept(symbol)
	if err != nil {
		s.Logger.Error("Admission check failed for %s %s: %v", action, symbol, err)
		return s.queueForRetry(env, clientID)
	}
	if !allowed {
		s.Logger.Warning("Signal %s %s rejected: %s", action, symbol, reason)
		metrics.SignalsTotal.WithLabelValues(action, "rejected").Inc()
		return &models.MResponse{Status: utils.StatusError, Message: reason, ClientMsgID: clientID}
	}

	signalID, err := s.ProcessNewSignal(env)
	if err != nil {
		s.Logger.Error("Failed to process %s %s: %v", action, symbol, err)
		if helpers.IsNonRetryable(err) {
			metrics.SignalsTotal.WithLabelValues(action, "error").Inc()
			return &models.MResponse{Status: utils.StatusError, Message: "An internal server error occurred.", ClientMsgID: clientID}
		}
		return s.queueForRetry(env, clientID)
	}

	return &models.MResponse{
		Status:      utils.StatusSuccess,
		Message:     fmt.Sprintf("Signal %s processed successfully", action),
		SignalID:    signalID,
		ClientMsgID: clientID,
	}
}

// -----------------------------------------------------------------------------

func (s *Service) handleCloseSignal(env models.MEnvelope, symbol string, price float64, clientID string) *models.MResponse {
	openID, ok := env.OpenSignalID()
	if !ok {
		return &models.MResponse{
			Status:      utils.StatusError,
			Message:     "open_signal_id is required for CLOSE action",
			ClientMsgID: clientID,
		}
	}

	if _, err := s.ProcessCloseSignal(symbol, price, openID); err != nil {
		s.Logger.Error("Failed to close signal #%d: %v", openID, err)
		if helpers.IsNonRetryable(err) {
			metrics.SignalsTotal.WithLabelValues(utils.ActionClose, "error").Inc()
			return &models.MResponse{
				Status:      utils.StatusError,
				Message:     fmt.Sprintf("Signal #%d not found or already closed", openID),
				ClientMsgID: clientID,
			}
		}
		return s.queueForRetry(env, clientID)
	}

	return &models.MResponse{
		Status:      utils.StatusSuccess,
		Message:     fmt.Sprintf("Close signal for #%d processed successfully", openID),
		SignalID:    openID,
		ClientMsgID: clientID,
	}
}

// -----------------------------------------------------------------------------

// ProcessNewSignal persists a BUY/SELL signal and fans out the alert, the
// websocket event and the rate-limit stamp. Callers run the admission check
// first.
func (s *Service) ProcessNewSignal(env models.MEnvelope) (int64, error) {
	action := env.Action()
	symbol := env.Symbol()
	price := env.Price()

	// 1. Persist the signal to get an id
	sig := &models.MSignal{
		Action: action,
		Symbol: symbol,
		Price:  price,
		SL:     env.Float("sl"),
		TP1:    env.Float("tp1"),
		TP2:    env.Float("tp2"),
		TP3:    env.Float("tp3"),
		ATR:    env.Float("atr"),
	}
	signalID, err := s.DB.SaveSignal(sig)
	if err != nil {
		return 0, &helpers.DatabaseError{SignalRelayError: helpers.SignalRelayError{Message: "save signal", Cause: err}}
	}
	s.Logger.Info("Signal saved to DB: ID=%d, %s %s @ %.5f", signalID, action, symbol, price)

	// 2. The row is committed; a retry from here would double-book the
	// trade. Everything below is best-effort.
	s.Admission.RecordAccept()
	metrics.SignalsTotal.WithLabelValues(action, "success").Inc()

	stats := s.todayStats()
	s.notify(s.formatSignalMessage(action, symbol, price, signalID, stats))
	s.publish(&models.MSignalEvent{
		Type:      "signal",
		Action:    action,
		Symbol:    symbol,
		Price:     price,
		SignalID:  signalID,
		Timestamp: time.Now().UTC(),
		Stats:     *stats,
	})

	return signalID, nil
}

// -----------------------------------------------------------------------------

// ProcessCloseSignal closes an open signal and reports the realized P&L.
// An unknown or already-closed id is non-retryable, the position will not
// appear later.
func (s *Service) ProcessCloseSignal(symbol string, price float64, openID int64) (float64, error) {
	pl, err := s.DB.CloseSignal(openID, price)
	if err != nil {
		if errors.Is(err, storage.ErrSignalNotFound) {
			return 0, helpers.NonRetryable(err)
		}
		return 0, &helpers.DatabaseError{SignalRelayError: helpers.SignalRelayError{Message: "close signal", Cause: err}}
	}
	s.Logger.Info("Signal %d closed: P&L=%.5f", openID, pl)

	metrics.SignalsTotal.WithLabelValues(utils.ActionClose, "success").Inc()

	stats := s.todayStats()
	s.notify(s.formatCloseMessage(symbol, price, openID, pl, stats))
	s.publish(&models.MSignalEvent{
		Type:       "close",
		Action:     utils.ActionClose,
		Symbol:     symbol,
		Price:      price,
		SignalID:   openID,
		ProfitLoss: pl,
		Timestamp:  time.Now().UTC(),
		Stats:      *stats,
	})

	return pl, nil
}

// -----------------------------------------------------------------------------

// Retry re-runs one envelope from the retry queue. Admission conditions are
// re-checked on every attempt; when they no longer hold the item is dropped
// quietly rather than counted as a failure.
func (s *Service) Retry(env models.MEnvelope) error {
	action := env.Action()
	symbol := env.Symbol()

	switch action {
	case utils.ActionBuy, utils.ActionSell:
		allowed, reason, err := s.Admission.CanAccept(symbol)
		if err != nil {
			return err
		}
		if !allowed {
			s.Logger.Warning("Retry for %s aborted: %s", symbol, reason)
			return nil
		}
		_, err = s.ProcessNewSignal(env)
		return err

	case utils.ActionClose:
		openID, ok := env.OpenSignalID()
		if !ok {
			return helpers.NonRetryable(fmt.Errorf("close signal without open_signal_id"))
		}
		_, err := s.ProcessCloseSignal(symbol, env.Price(), openID)
		return err

	default:
		return helpers.NonRetryable(fmt.Errorf("invalid action %q", action))
	}
}

// -----------------------------------------------------------------------------

func (s *Service) queueForRetry(env models.MEnvelope, clientID string) *models.MResponse {
	if s.queue == nil || !s.queue.Enqueue(env) {
		metrics.SignalsTotal.WithLabelValues(env.Action(), "dropped").Inc()
		return &models.MResponse{
			Status:      utils.StatusError,
			Message:     "An internal server error occurred.",
			ClientMsgID: clientID,
		}
	}

	return &models.MResponse{
		Status:      utils.StatusQueued,
		Message:     "Processing failed temporarily. Signal queued for retry.",
		ClientMsgID: clientID,
	}
}

// -----------------------------------------------------------------------------

func (s *Service) todayStats() *models.MDailyStats {
	stats, err := s.DB.GetTodayStats()
	if err != nil {
		s.Logger.Warning("Could not load today's stats: %v", err)
		return &models.MDailyStats{}
	}
	return stats
}

// -----------------------------------------------------------------------------

func (s *Service) notify(message string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.Notify(message); err != nil {
		s.Logger.Warning("Notification failed: %v", err)
	}
}

// -----------------------------------------------------------------------------

func (s *Service) publish(ev *models.MSignalEvent) {
	if s.Publisher == nil {
		return
	}
	s.Publisher.Publish(ev)
}

// -----------------------------------------------------------------------------

func (s *Service) formatSignalMessage(action, symbol string, price float64, signalID int64, stats *models.MDailyStats) string {
	emoji := "🟢"
	if action == utils.ActionSell {
		emoji = "🔴"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>%s SIGNAL</b> %s\n\n", emoji, action, emoji)
	fmt.Fprintf(&b, "📊 <b>Symbol:</b> %s\n", symbol)
	fmt.Fprintf(&b, "💰 <b>Price:</b> %.5f\n", price)
	fmt.Fprintf(&b, "🕐 <b>Time:</b> %s UTC\n", time.Now().UTC().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "📝 <b>Signal ID:</b> #%d\n\n", signalID)
	fmt.Fprintf(&b, "📈 <b>Today's Stats:</b>\n")
	fmt.Fprintf(&b, "   • Signals: %d/%s\n", stats.TotalSignals, s.dailyLimitLabel())
	fmt.Fprintf(&b, "   • Buys: %d | Sells: %d\n", stats.Buys, stats.Sells)
	fmt.Fprintf(&b, "   • Closed: %d (W:%d L:%d)\n", stats.Closed, stats.Wins, stats.Losses)
	if stats.TotalPL != 0 {
		fmt.Fprintf(&b, "   • Total P&L: %+.5f\n", stats.TotalPL)
	}
	return b.String()
}

// -----------------------------------------------------------------------------

func (s *Service) formatCloseMessage(symbol string, price float64, signalID int64, pl float64, stats *models.MDailyStats) string {
	plEmoji := "✅"
	if pl < 0 {
		plEmoji = "❌"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "⚪️ <b>CLOSE SIGNAL</b> ⚪️\n\n")
	fmt.Fprintf(&b, "📊 <b>Symbol:</b> %s\n", symbol)
	fmt.Fprintf(&b, "💰 <b>Close Price:</b> %.5f\n", price)
	fmt.Fprintf(&b, "📝 <b>Closed Signal ID:</b> #%d\n", signalID)
	fmt.Fprintf(&b, "%s <b>P&L:</b> %+.5f\n\n", plEmoji, pl)
	fmt.Fprintf(&b, "📈 <b>Today's Stats:</b>\n")
	fmt.Fprintf(&b, "   • Signals: %d/%s\n", stats.TotalSignals, s.dailyLimitLabel())
	fmt.Fprintf(&b, "   • Closed: %d (W:%d L:%d)\n", stats.Closed, stats.Wins, stats.Losses)
	fmt.Fprintf(&b, "   • Total P&L: %+.5f\n", stats.TotalPL)
	return b.String()
}

// -----------------------------------------------------------------------------

func (s *Service) dailyLimitLabel() string {
	if s.Config.Admission.MaxSignalsPerDay == 0 {
		return "Unlimited"
	}
	return strconv.Itoa(s.Config.Admission.MaxSignalsPerDay)
}
