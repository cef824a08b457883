package http

import (
	"encoding/json"
	"net/http"
)

// AddressReporter exposes the store wallet's receiving address.
type AddressReporter interface {
	TaprootAddress() string
}

// HandleSellAddress returns the taproot address sellers build their
// transactions against.
func HandleSellAddress(wallet AddressReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"taproot_address": wallet.TaprootAddress(),
		})
	}
}
