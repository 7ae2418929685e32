// Package telegram exposes the identification pipeline as a chat bot: send a
// cover photo, get the metadata back as JSON.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"comic-vault/api/internal/identify"
	"comic-vault/api/internal/metadata"
	"comic-vault/api/internal/util"
)

// maxMessage stays under Telegram's 4096 character limit with room for the header.
const maxMessage = 3900

// Bot is the part of *tgbotapi.BotAPI the router uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

type Identifier interface {
	Identify(ctx context.Context, data []byte) (metadata.Record, error)
}

type Router struct {
	Bot        Bot
	Identifier Identifier
	HTTPClient *http.Client
	Timeout    time.Duration

	// shown by /health
	EngineName  string
	EngineModel string
}

func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	cid := msg.Chat.ID

	if msg.IsCommand() {
		r.handleCommand(cid, msg.Command())
		return
	}

	if fileID, ok := imageFileID(msg); ok {
		r.acceptImage(ctx, cid, fileID)
		return
	}

	if strings.TrimSpace(msg.Text) != "" {
		r.send(cid, "Send me a photo of a comic cover.")
	}
}

func (r *Router) handleCommand(cid int64, cmd string) {
	switch cmd {
	case "start":
		r.send(cid, "Send a photo of a comic book cover and I will reply with its metadata as JSON.\nCommands: /health")
	case "health":
		s := "✅ OK"
		if r.EngineName != "" {
			s += fmt.Sprintf(" (%s %s)", r.EngineName, r.EngineModel)
		}
		r.send(cid, s)
	default:
		r.send(cid, "Unknown command")
	}
}

// imageFileID picks the largest photo size, or an image sent as a document.
func imageFileID(msg *tgbotapi.Message) (string, bool) {
	if n := len(msg.Photo); n > 0 {
		return msg.Photo[n-1].FileID, true
	}
	if d := msg.Document; d != nil && strings.HasPrefix(strings.ToLower(d.MimeType), "image/") {
		return d.FileID, true
	}
	return "", false
}

func (r *Router) acceptImage(ctx context.Context, cid int64, fileID string) {
	if !acquire(cid) {
		r.send(cid, "Still working on the previous cover, please wait.")
		return
	}
	defer release(cid)

	l := log.WithFields(log.Fields{"chat_id": cid, "user_id": strconv.FormatInt(cid, 10)})
	r.send(cid, "Got it, identifying…")

	url, err := r.Bot.GetFileDirectURL(fileID)
	if err != nil {
		l.WithError(err).Warn("telegram: get file")
		r.SendError(cid, err)
		return
	}
	img, err := download(ctx, r.httpClient(), url)
	if err != nil {
		l.WithError(err).Warn("telegram: download")
		r.SendError(cid, err)
		return
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	ictx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rec, err := r.Identifier.Identify(ictx, img)
	if err != nil {
		l.WithError(err).WithField("kind", identify.KindOf(err)).Warn("telegram: identification failed")
		r.SendError(cid, err)
		return
	}
	r.SendResult(cid, rec)
}

func (r *Router) httpClient() *http.Client {
	if r.HTTPClient != nil {
		return r.HTTPClient
	}
	return http.DefaultClient
}

func (r *Router) send(chatID int64, text string) {
	if _, err := r.Bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Warn("telegram: send")
	}
}

func (r *Router) SendResult(chatID int64, rec metadata.Record) {
	r.send(chatID, FormatRecord(rec))
}

func (r *Router) SendError(chatID int64, err error) {
	r.send(chatID, util.Truncate("Identification error: "+err.Error(), maxMessage))
}

// FormatRecord renders the record as indented JSON, cut to fit one message.
func FormatRecord(rec metadata.Record) string {
	if rec == nil {
		rec = metadata.Record{}
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "Identification error: " + err.Error()
	}
	return util.Truncate(string(b), maxMessage)
}
