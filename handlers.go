package main

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/CaeliumHQ/caelium-next/lib/cae"
)

var EBADTOKEN = cae.APIerror{Reason: "Invalid credentials"}
var EUNSUPPORTED = cae.APIerror{Reason: "Method not supported"}
var ENOTFOUND = cae.APIerror{Reason: "404 not found"}

//authenticate resolves the bearer token on a request to a user id.
func authenticate(r *http.Request) (userID cae.UserID, err error) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" {
		token = r.FormValue("token")
	}
	userID, ok := relay.store.ValidateToken(token)
	if !ok {
		return 0, &EBADTOKEN
	}
	return userID, nil
}

func jsonResponse(w http.ResponseWriter, resp interface{}, code int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	marshaled, err := json.Marshal(resp)
	if err != nil {
		marshaled, _ = json.Marshal(cae.APIerror{Reason: err.Error()})
		w.WriteHeader(500)
		w.Write(marshaled)
	} else {
		w.WriteHeader(code)
		w.Write(marshaled)
	}
}

func jsonErr(w http.ResponseWriter, err error, code int) {
	switch err.(type) {
	case cae.APIerror, *cae.APIerror:
		jsonResponse(w, err, code)
	default:
		jsonResponse(w, cae.APIerror{Reason: err.Error()}, code)
	}
}
