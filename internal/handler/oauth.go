package handler

import (
	"fmt"
	"log"
	"net/http"

	"meli-stock-audit/internal/service"
)

// OAuthHandler completes the marketplace authorization flow.
type OAuthHandler struct {
	tokens *service.TokenService
}

// NewOAuthHandler creates an OAuth callback handler.
func NewOAuthHandler(tokens *service.TokenService) *OAuthHandler {
	return &OAuthHandler{tokens: tokens}
}

// Callback handles GET /oauth/callback. The marketplace redirects the
// seller's browser here with an authorization code; the response is a
// small human-readable page, not JSON.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		log.Printf("[OAuth] Callback without authorization code")
		writeHTML(w, http.StatusBadRequest,
			"Autorización fallida", "No se recibió el código de autorización. Intentá nuevamente.")
		return
	}

	if err := h.tokens.ExchangeCode(r.Context(), code); err != nil {
		log.Printf("[OAuth] Code exchange failed: %v", err)
		writeHTML(w, http.StatusBadGateway,
			"Autorización fallida", "No se pudieron obtener los tokens. Revisá los logs del servicio.")
		return
	}

	writeHTML(w, http.StatusOK,
		"Autorización exitosa", "Los tokens fueron guardados. Ya podés cerrar esta ventana.")
}

func writeHTML(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, "<html><body><h1>%s</h1><p>%s</p></body></html>", title, detail)
}
