package notify

import (
	"encoding/json"
	"fmt"

	"signal-relay/src/helpers"
	"signal-relay/src/interfaces"
	"signal-relay/src/logger"
	"signal-relay/src/models"
)

const telegramAPIBase = "https://api.telegram.org"

// -----------------------------------------------------------------------------

// TelegramNotifier pushes alerts to a Telegram chat through the Bot API.
// When no token is configured every call is a silent no-op so callers never
// need to special-case disabled deployments.
type TelegramNotifier struct {
	Config  *models.MConfig
	Network interfaces.INetworkManager
	Logger  *logger.Logger
}

// -----------------------------------------------------------------------------

func NewTelegramNotifier(cfg *models.MConfig, network interfaces.INetworkManager, log *logger.Logger) *TelegramNotifier {
	tn := &TelegramNotifier{
		Config:  cfg,
		Network: network,
		Logger:  log,
	}

	if !tn.Enabled() {
		log.Warning("Telegram bot token is not set. Alerts will be disabled.")
	}

	return tn
}

// -----------------------------------------------------------------------------

func (tn *TelegramNotifier) Enabled() bool {
	t := tn.Config.Telegram
	return t.Enabled && t.BotToken != "" && t.ChatID != ""
}

// -----------------------------------------------------------------------------

// Notify sends one HTML-formatted message. The returned error is advisory:
// callers log it and move on, a dead Telegram chat must never stall the
// signal path.
func (tn *TelegramNotifier) Notify(message string) error {
	if !tn.Enabled() {
		return nil
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", telegramAPIBase, tn.Config.Telegram.BotToken)
	payload := map[string]interface{}{
		"chat_id":    tn.Config.Telegram.ChatID,
		"text":       message,
		"parse_mode": "HTML",
	}

	body, err := tn.Network.PostJSON(url, payload)
	if err != nil {
		return &helpers.NotifyError{SignalRelayError: helpers.SignalRelayError{Message: "telegram send failed", Cause: err}}
	}

	var reply struct {
		Ok          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return &helpers.NotifyError{SignalRelayError: helpers.SignalRelayError{Message: "telegram reply unreadable", Cause: err}}
	}
	if !reply.Ok {
		return &helpers.NotifyError{SignalRelayError: helpers.SignalRelayError{Message: fmt.Sprintf("telegram rejected message: %s", reply.Description)}}
	}

	tn.Logger.Debug("Telegram alert sent to chat %s", tn.Config.Telegram.ChatID)
	return nil
}
