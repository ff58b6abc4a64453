// Package httpx tem utilitários de resposta compartilhados pelos adapters HTTP.
package httpx

import (
	"encoding/json"
	"net/http"
)

// ErrorBody é o corpo de erro usado pelos handlers ({error, details}) e pelo
// rate limiter ({error, message}).
type ErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Message string `json:"message,omitempty"`
}

// WriteJSON escreve v como JSON com o status dado.
// Falha de encode depois do WriteHeader não tem como ser reportada ao cliente.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
