package handler

import "net/http"

// Health はプロセスの稼働状態を返す。外部依存を持たないため常に200。
// GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
