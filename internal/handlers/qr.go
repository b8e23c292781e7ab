package handlers

import (
	"net/http"

	qrcode "github.com/skip2/go-qrcode"
)

// BotQR serves a PNG QR code that opens a chat with the bot.
func BotQR(botUsername string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if botUsername == "" {
			http.NotFound(w, r)
			return
		}
		png, err := qrcode.Encode("https://t.me/"+botUsername, qrcode.Medium, 256)
		if err != nil {
			http.Error(w, "failed to generate qr", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(png)
	}
}
