package dispatch

import (
	"testing"

	"github.com/KevinKickass/dcscontrol/internal/dcs"
	"github.com/KevinKickass/dcscontrol/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyModifier(t *testing.T) {
	tests := []struct {
		mod, in, want string
	}{
		{"hex16", "16", "0x0010"},
		{"h16", "-1", "0xFFFF"},
		{"HEX8", "300", "0x2C"},
		{"h32", "0x1F", "0x0000001F"},
		{"h32", "0XfF", "0x000000FF"},
		{"h16", "010", "0x000A"},
		{"h16", "08", "0x0008"},
		{"h8", "0b11", "0x00"},
		{"h64", "18446744073709551615", "0xFFFFFFFFFFFFFFFF"},
		{"h64", "-1", "0xFFFFFFFFFFFFFFFF"},
		{"hex8", "junk", "0x00"},
		{"#", "42km/h", "42"},
		{"#", "010", "10"},
		{"int", "-7x", "-7"},
		{"long", "none", "0"},
		{"ns", " a b\tc\r\n", "abc"},
		{"q", `say "hi"`, `"say \"hi\""`},
		{"gps", "39.12345/-142.5", "39.12345/-142.50000"},
		{"gp", "39.1,-142.2", "39.10000/-142.20000"},
		{"lat", "39.1 -142.2", "39.10000"},
		{"longitude", "39.1/-142.2", "-142.20000"},
		{"gps", "north", "0.00000/0.00000"},
		{"1", "A,B,C", "B"},
		{"5", "A,B,C", ""},
		{"0", "single", "single"},
		{"1", "single", ""},
		{"2", "x|y|z", "z"},
		{"whatever", "value", "value"},
		{"", "value", "value"},
	}
	for _, tt := range tests {
		t.Run(tt.mod+"_"+tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ApplyModifier(tt.mod, tt.in))
		})
	}
}

func TestParsePlaceholder(t *testing.T) {
	ph := ParsePlaceholder("speed:h16=0x10")
	assert.Equal(t, Placeholder{Key: "speed", Modifier: "h16", Default: "0x10", HasDefault: true}, ph)

	ph = ParsePlaceholder("arg")
	assert.Equal(t, Placeholder{Key: "arg"}, ph)

	ph = ParsePlaceholder("url=http://x:80/a=b")
	assert.Equal(t, "url", ph.Key)
	assert.Equal(t, "http://x:80/a=b", ph.Default)
}

func TestRenderTemplate_LiteralUnchanged(t *testing.T) {
	for _, s := range []string{"", "PING", "AT+GPS=1;$", "unterminated ${arg"} {
		assert.Equal(t, s, RenderTemplate(s, nil, []string{"1", "2"}))
	}
}

func TestRenderTemplate_Resolution(t *testing.T) {
	cmd, err := dcs.NewCommand(dcs.CommandSpec{
		Name:   "output",
		String: "OUT ${port:#} ${state} ${arg} ${arg1} ${arg9=none} ${missing=dflt} ${mode=on}",
		Args: []dcs.CommandArgSpec{
			{Name: "port"},
			{Name: "state", Default: "off"},
		},
	}, "", types.AccessWrite)
	require.NoError(t, err)

	assert.Equal(t, "OUT 3 off 3x  none dflt on", RenderTemplate(cmd.Template, cmd, []string{"3x"}))
	assert.Equal(t, "OUT 3 on 3x on none dflt on", RenderTemplate(cmd.Template, cmd, []string{"3x", "on"}))
}

func TestRender_DeviceTokens(t *testing.T) {
	cmd, err := dcs.NewCommand(dcs.CommandSpec{
		Name:   "id",
		String: "ID ${arg} $UNIQUEID $IMEI $SERIAL $MODEMID $DATAKEY",
	}, "", types.AccessWrite)
	require.NoError(t, err)

	dev := &types.Device{UniqueID: "u1", IMEI: "3520", SerialNumber: "SN9", ModemID: "m2", DataKey: "k"}
	assert.Equal(t, "ID 5 u1 3520 SN9 m2 k", Render(cmd, []string{"5"}, dev))
	assert.Equal(t, "ID 5 $UNIQUEID $IMEI $SERIAL $MODEMID $DATAKEY", Render(cmd, []string{"5"}, nil))
}
