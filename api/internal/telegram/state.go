package telegram

import "sync"

// inflight holds chats with an identification in progress, one per chat.
var inflight sync.Map // chatID -> struct{}

func acquire(chatID int64) bool {
	_, busy := inflight.LoadOrStore(chatID, struct{}{})
	return !busy
}

func release(chatID int64) { inflight.Delete(chatID) }
