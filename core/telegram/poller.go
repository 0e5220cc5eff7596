package telegram

import (
	"net"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/swapbot/core/config"
)

const defaultLongPollTimeout = 10 * time.Second

// BuildPoller picks the update source from cfg. The run mode has already
// been normalized by config validation.
func BuildPoller(cfg *coreconfig.Config) tele.Poller {
	if cfg.Telegram.RunMode == coreconfig.RunModeWebhook {
		return &tele.Webhook{
			Listen:      net.JoinHostPort(cfg.Webhook.Listen, strconv.Itoa(cfg.Webhook.Port)),
			SecretToken: cfg.Webhook.SecretToken,
			Endpoint:    &tele.WebhookEndpoint{PublicURL: cfg.Webhook.URL},
		}
	}
	return &tele.LongPoller{Timeout: longPollTimeout(cfg)}
}

func longPollTimeout(cfg *coreconfig.Config) time.Duration {
	if cfg.Telegram.LongPollTimeoutSeconds > 0 {
		return time.Duration(cfg.Telegram.LongPollTimeoutSeconds) * time.Second
	}
	return defaultLongPollTimeout
}
