package handler

import (
	"encoding/json"
	"net/http"

	pkgerrors "github.com/stellaide/server/pkg/errors"
)

func writeError(w http.ResponseWriter, err error) {
	e := pkgerrors.From(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	json.NewEncoder(w).Encode(e)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(message))
}
