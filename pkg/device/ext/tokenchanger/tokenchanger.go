// Package tokenchanger rotates the device token on request of the server.
package tokenchanger

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/renameio/v2/maybe"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"

	"github.com/autopeer-io/denhub/pkg/device/ext"
	"github.com/autopeer-io/denhub/pkg/protocol"
)

// Name is the core extension name.
const Name = "token-changer"

// tokenKey is the configuration key holding the token.
const tokenKey = "deviceToken"

// TokenChanger handles _changeToken: it persists the new token to the
// configuration file and restarts the daemon so that it reconnects with it.
type TokenChanger struct {
	ext.Base

	host ext.Host
}

var _ ext.Extension = (*TokenChanger)(nil)

// New is the extension factory.
func New(h ext.Host) (ext.Extension, error) {
	return &TokenChanger{host: h}, nil
}

func (t *TokenChanger) OnCmdReceive(cmd string, args protocol.Args, _ int64) error {
	if cmd != protocol.CmdChangeToken {
		return nil
	}

	token, _ := args.String(tokenKey)
	if token == "" {
		return nil
	}

	path := t.host.ConfigFile()
	if path == "" {
		return errors.New("configuration was not loaded from a file")
	}

	t.host.Logger().Info("Received new token", "configFile", path, "tokenLength", len(token))

	if err := WriteToken(path, token); err != nil {
		return err
	}

	t.host.Restart()
	return nil
}

// WriteToken replaces deviceToken in the JSON file at path. Other keys and
// their order are preserved and the file is rewritten with two-space
// indentation.
func WriteToken(path, token string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return fmt.Errorf("parse config: %s is not a JSON object", path)
	}

	out, err := sjson.SetBytes(data, tokenKey, token)
	if err != nil {
		return fmt.Errorf("set token: %w", err)
	}
	out = pretty.PrettyOptions(out, &pretty.Options{Width: 80, Indent: "  "})

	mode := os.FileMode(0o600)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}
	if err := maybe.WriteFile(path, out, mode); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
