package dcs

import (
	"testing"
	"time"

	"github.com/KevinKickass/dcscontrol/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProtocol(t *testing.T) {
	tests := []struct {
		in      string
		want    Protocol
		handler string
		wantErr bool
	}{
		{"", ProtocolTCP, "", false},
		{"udp", ProtocolUDP, "", false},
		{"SMS", ProtocolSMS, "", false},
		{"sms:gsm7", ProtocolSMS, "gsm7", false},
		{"carrier-pigeon", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, h, err := ParseProtocol(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p)
			assert.Equal(t, tt.handler, h)
		})
	}
}

func TestNewCommand(t *testing.T) {
	off := false
	cmd, err := NewCommand(CommandSpec{
		Name:        "output",
		Enabled:     &off,
		Types:       []string{"map", "admin"},
		Protocol:    "sms:hex",
		String:      "OUT:${port:#}=${state=1}",
		MaxRouteAge: "90",
		AckCode:     "0xF020",
		ResultCode:  "61472",
		State:       &CommandStateSpec{Mask: "0x03", Value: "0x01"},
		Args: []CommandArgSpec{
			{Name: "port", Default: "1", MaxLength: 2},
			{Name: "state"},
		},
	}, "acme.commands", types.AccessWrite)
	require.NoError(t, err)

	assert.False(t, cmd.Enabled)
	assert.True(t, cmd.HasArgs)
	assert.Equal(t, "acme.commands.output", cmd.ACL)
	assert.Equal(t, ProtocolSMS, cmd.Protocol)
	assert.Equal(t, "hex", cmd.Handler)
	assert.Equal(t, 90*time.Second, cmd.MaxRouteAge)
	assert.Equal(t, 0xF020, cmd.AckCode)
	assert.Equal(t, 61472, cmd.AuditCode)
	assert.True(t, cmd.HasState)
	assert.Equal(t, uint64(3), cmd.StateMask)
	assert.Equal(t, uint64(1), cmd.StateValue)

	arg, ok := cmd.Arg("state")
	require.True(t, ok)
	assert.Equal(t, 1, arg.Index())
	assert.Same(t, cmd, arg.Command())

	assert.True(t, cmd.HasType("ADMIN"))
	assert.False(t, cmd.HasType("report"))
	assert.True(t, cmd.HasType(""))
}

func TestNewCommand_Errors(t *testing.T) {
	_, err := NewCommand(CommandSpec{String: "X"}, "", types.AccessWrite)
	assert.Error(t, err)

	_, err = NewCommand(CommandSpec{Name: "x", Protocol: "ftp"}, "", types.AccessWrite)
	assert.Error(t, err)

	_, err = NewCommand(CommandSpec{Name: "x", MaxRouteAge: "soon"}, "", types.AccessWrite)
	assert.Error(t, err)

	_, err = NewCommand(CommandSpec{Name: "x", Args: []CommandArgSpec{{}}}, "", types.AccessWrite)
	assert.Error(t, err)
}

func TestCommandRegistry_List(t *testing.T) {
	r := NewCommandRegistry()
	for _, spec := range []CommandSpec{
		{Name: "ping", String: "PING", Types: []string{"map"}},
		{Name: "reboot", String: "RBT", Enabled: new(bool)},
		{Name: "locate", String: "LOC", Types: []string{"admin"}},
	} {
		cmd, err := NewCommand(spec, "", types.AccessWrite)
		require.NoError(t, err)
		r.Add(cmd)
	}

	names := func(cmds []*CommandDefinition) []string {
		out := make([]string, 0, len(cmds))
		for _, c := range cmds {
			out = append(out, c.Name)
		}
		return out
	}
	assert.Equal(t, []string{"ping", "reboot", "locate"}, names(r.List("", false)))
	assert.Equal(t, []string{"ping", "locate"}, names(r.List("", true)))
	assert.Equal(t, []string{"ping", "reboot"}, names(r.List("map", false)))
	assert.Equal(t, 3, r.Len())
}

func TestEventCodeMap_Translate(t *testing.T) {
	m := NewEventCodeMap()
	m.Add("0x10", "61714", "in1")
	m.Add("17", "", "")
	m.Add("18", "-5", "")
	m.Add("Alarm", "0", "")

	assert.Equal(t, 61714, m.Translate("16", 1))
	ec, ok := m.LookupInt(16)
	require.True(t, ok)
	assert.Equal(t, "in1", ec.Data)
	assert.Equal(t, StatusIgnore, m.Translate("17", 1))
	assert.Equal(t, StatusIgnore, m.Translate("18", 1))
	assert.Equal(t, 7, m.Translate("alarm", 7))
	assert.Equal(t, 7, m.Translate("unknown", 7))
	assert.Equal(t, 4, m.Len())
}

func TestModules_EncoderFallback(t *testing.T) {
	m := NewModules()
	assert.True(t, m.Installed("TEXT"))
	assert.False(t, m.Installed("acme"))

	out, err := m.Encoder("hex").Encode("AB")
	require.NoError(t, err)
	assert.Equal(t, "4142", out)

	out, err = m.Encoder("no-such-module").Encode("AB")
	require.NoError(t, err)
	assert.Equal(t, "AB", out)

	m.Register("acme", nil)
	assert.True(t, m.Installed("acme"))
	out, _ = m.Encoder("acme").Encode("X")
	assert.Equal(t, "X", out)
}
