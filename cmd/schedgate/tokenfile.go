package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/jonwraymond/schedgate/auth"
)

// storedToken is the on-disk form of a token set.
type storedToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	Expiry       time.Time `json:"expiry,omitzero"`
}

// restoreToken installs the token set saved at path. A missing file is not an
// error.
func restoreToken(path string, a *auth.Authority) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read token file: %w", err)
	}

	var st storedToken
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("parse token file %s: %w", path, err)
	}
	if st.AccessToken == "" {
		return nil
	}
	a.SetToken(auth.TokenSet{
		AccessToken:  st.AccessToken,
		RefreshToken: st.RefreshToken,
		TokenType:    st.TokenType,
		IDToken:      st.IDToken,
		Scope:        st.Scope,
		Expiry:       st.Expiry,
	})
	return nil
}

// saveToken writes the authority's token set to path, readable only by the
// owner. Nothing is written when path is empty or no token is held.
func saveToken(path string, a *auth.Authority) error {
	if path == "" {
		return nil
	}
	ts, ok := a.Token()
	if !ok {
		return nil
	}

	data, err := json.MarshalIndent(storedToken{
		AccessToken:  ts.AccessToken,
		RefreshToken: ts.RefreshToken,
		TokenType:    ts.TokenType,
		IDToken:      ts.IDToken,
		Scope:        ts.Scope,
		Expiry:       ts.Expiry,
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}
