package telegram

import (
	"net/http"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// WebhookPath derives a hard to guess path from the bot token.
func WebhookPath(token string) string {
	return "/webhook/" + shortHash(token)
}

func shortHash(s string) string {
	// FNV-1a, 64 bit
	h := uint64(1469598103934665603)
	const prime = 1099511628211
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		out[i] = hexdigits[h&0xF]
		h >>= 4
	}
	return string(out)
}

// WebhookHandler decodes an update with parse and hands it to dispatch.
// Telegram only needs a fast 200; the update is processed in the background.
func WebhookHandler(parse func(*http.Request) (*tgbotapi.Update, error), dispatch func(tgbotapi.Update)) gin.HandlerFunc {
	return func(c *gin.Context) {
		upd, err := parse(c.Request)
		if err != nil {
			log.WithError(err).Warn("webhook: bad update")
			c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
			return
		}
		go dispatch(*upd)
		c.Status(http.StatusOK)
	}
}
