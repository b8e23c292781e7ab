package handlers

import "net/http"

const ServiceName = "ai-agent-code-su"

func Home(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "AI Agent Code SU API",
		"status":  "running",
	})
}

func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": isoUTC(now()),
		"service":   ServiceName,
	})
}

func TelegramInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"webhook_endpoint": "/telegram/webhook",
		"method":           "POST",
		"description":      "Endpoint to receive updates from Telegram server",
	})
}
