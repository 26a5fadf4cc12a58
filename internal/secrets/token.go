// Package secrets keeps the marketplace API token in the OS keychain so it
// never lands in config files on disk.
package secrets

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyringService groups the engine's secrets in the OS keychain.
const KeyringService = "marketpipe"

func GetMarketToken(marketplace string) (string, error) {
	account := tokenAccount(marketplace)
	if account == "" {
		return "", errors.New("marketplace name is empty")
	}
	tok, err := keyring.Get(KeyringService, account)
	if err != nil || strings.TrimSpace(tok) == "" {
		return "", fmt.Errorf("no API token stored for %s", marketplace)
	}
	return tok, nil
}

func SetMarketToken(marketplace, token string) error {
	account := tokenAccount(marketplace)
	if account == "" {
		return errors.New("marketplace name is empty")
	}
	if strings.TrimSpace(token) == "" {
		return errors.New("token is empty")
	}
	return keyring.Set(KeyringService, account, token)
}

func DeleteMarketToken(marketplace string) error {
	account := tokenAccount(marketplace)
	if account == "" {
		return errors.New("marketplace name is empty")
	}
	return keyring.Delete(KeyringService, account)
}

func tokenAccount(marketplace string) string {
	m := strings.TrimSpace(strings.ToLower(marketplace))
	if m == "" {
		return ""
	}
	return "marketpipe:token:" + m
}
