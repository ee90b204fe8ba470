package dispatch

import (
	"strconv"
	"strings"

	"github.com/KevinKickass/dcscontrol/internal/dcs"
	"github.com/KevinKickass/dcscontrol/internal/types"
)

// Device identity tokens replaced after placeholder substitution.
const (
	TokenDataKey  = "$DATAKEY"
	TokenUniqueID = "$UNIQUEID"
	TokenModemID  = "$MODEMID"
	TokenIMEI     = "$IMEI"
	TokenSerial   = "$SERIAL"
)

// Placeholder is one parsed ${key[:modifier][=default]} site.
type Placeholder struct {
	Key        string
	Modifier   string
	Default    string
	HasDefault bool
}

// ParsePlaceholder parses the text between "${" and "}".
func ParsePlaceholder(body string) Placeholder {
	var ph Placeholder
	if i := strings.IndexByte(body, '='); i >= 0 {
		ph.Default, ph.HasDefault = body[i+1:], true
		body = body[:i]
	}
	ph.Key, ph.Modifier, _ = strings.Cut(body, ":")
	ph.Key = strings.TrimSpace(ph.Key)
	ph.Modifier = strings.TrimSpace(ph.Modifier)
	return ph
}

// RenderTemplate substitutes every placeholder in tmpl. cmd may be nil, in
// which case only the reserved arg/argN names resolve.
func RenderTemplate(tmpl string, cmd *dcs.CommandDefinition, args []string) string {
	if !strings.Contains(tmpl, "${") {
		return tmpl
	}

	var b strings.Builder
	rest := tmpl
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[start+2:], '}')
		if end < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:start])

		ph := ParsePlaceholder(rest[start+2 : start+2+end])
		b.WriteString(ApplyModifier(ph.Modifier, resolve(ph, cmd, args)))

		rest = rest[start+2+end+1:]
	}
	return b.String()
}

// resolve looks up a placeholder value: declared argument name, then
// "arg", then "argN", then the placeholder default.
func resolve(ph Placeholder, cmd *dcs.CommandDefinition, args []string) string {
	at := func(i int) string {
		if i >= 0 && i < len(args) {
			return args[i]
		}
		return ""
	}

	var v string
	if a, ok := declaredArg(cmd, ph.Key); ok {
		v = at(a.Index())
		if v == "" {
			v = a.Default
		}
	} else if ph.Key == "arg" {
		v = at(0)
	} else if n, err := strconv.Atoi(strings.TrimPrefix(ph.Key, "arg")); err == nil &&
		strings.HasPrefix(ph.Key, "arg") && n >= 0 {
		v = at(n)
	}

	if v == "" {
		v = ph.Default
	}
	return v
}

func declaredArg(cmd *dcs.CommandDefinition, name string) (*dcs.CommandArg, bool) {
	if cmd == nil {
		return nil, false
	}
	return cmd.Arg(name)
}

// ReplaceDeviceTokens substitutes the device identity tokens. A nil device
// leaves s unchanged.
func ReplaceDeviceTokens(s string, dev *types.Device) string {
	if dev == nil || !strings.Contains(s, "$") {
		return s
	}
	return strings.NewReplacer(
		TokenDataKey, dev.DataKey,
		TokenUniqueID, dev.UniqueID,
		TokenModemID, dev.ModemID,
		TokenIMEI, dev.IMEI,
		TokenSerial, dev.SerialNumber,
	).Replace(s)
}

// Render produces the literal command string for cmd.
func Render(cmd *dcs.CommandDefinition, args []string, dev *types.Device) string {
	s := cmd.Template
	if cmd.HasArgs {
		s = RenderTemplate(s, cmd, args)
	}
	return ReplaceDeviceTokens(s, dev)
}
