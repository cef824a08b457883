package domain

import (
	"strconv"
	"strings"
)

// Inscription is the metadata the asset index holds for one inscription.
// Satpoint is the ordinals "txid:vout:offset" location string.
type Inscription struct {
	ID          string `json:"id"`
	Number      int64  `json:"number"`
	Satpoint    string `json:"satpoint"`
	Address     string `json:"address"`
	ContentType string `json:"content_type"`
}

// LocationTxid returns the txid component of the satpoint, or "" when the
// satpoint is malformed.
func (i Inscription) LocationTxid() string {
	txid, _, ok := splitSatpoint(i.Satpoint)
	if !ok {
		return ""
	}
	return txid
}

// LocationVout returns the output index component of the satpoint.
func (i Inscription) LocationVout() (uint32, bool) {
	_, vout, ok := splitSatpoint(i.Satpoint)
	return vout, ok
}

func splitSatpoint(satpoint string) (string, uint32, bool) {
	parts := strings.Split(satpoint, ":")
	if len(parts) < 2 || parts[0] == "" {
		return "", 0, false
	}
	vout, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return "", 0, false
	}
	return parts[0], uint32(vout), true
}
