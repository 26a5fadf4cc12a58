package httpapi

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"marketpipe-engine/internal/config"
	"marketpipe-engine/internal/secrets"
)

type SecretsHandler struct {
	CfgVal *atomic.Value // stores config.Config
}

type setTokenReq struct {
	Token string `json:"token"`
}

// SetMarketToken stores the API token for the configured marketplace in the
// OS keychain. The token never touches the config file.
func (h SecretsHandler) SetMarketToken(w http.ResponseWriter, r *http.Request) {
	var req setTokenReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", "invalid json")
		return
	}

	cfg := h.CfgVal.Load().(config.Config)
	if err := secrets.SetMarketToken(cfg.Marketplace.Name, req.Token); err != nil {
		WriteError(w, r, http.StatusBadRequest, "keyring_error", "failed to store token: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
