package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name       string
		line       string
		wantCmd    string
		wantParams []string
	}{
		{
			name:       "command with two parameters",
			line:       "LOGIN|alice|pw1",
			wantCmd:    "LOGIN",
			wantParams: []string{"alice", "pw1"},
		},
		{
			name:       "command without parameters",
			line:       "LOGOUT",
			wantCmd:    "LOGOUT",
			wantParams: []string{},
		},
		{
			name:       "trailing delimiter yields no empty parameter",
			line:       "LOGOUT|",
			wantCmd:    "LOGOUT",
			wantParams: []string{},
		},
		{
			name:       "inner empty parameter is kept",
			line:       "LOGIN||pw1",
			wantCmd:    "LOGIN",
			wantParams: []string{"", "pw1"},
		},
		{
			name:       "double trailing delimiter keeps one empty parameter",
			line:       "SET_STRING||",
			wantCmd:    "SET_STRING",
			wantParams: []string{""},
		},
		{
			name:       "delimiter inside a field is mis-split",
			line:       "SET_STRING|a|b",
			wantCmd:    "SET_STRING",
			wantParams: []string{"a", "b"},
		},
		{
			name:       "empty line",
			line:       "",
			wantCmd:    "",
			wantParams: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := ParseMessage(tt.line)
			assert.Equal(t, tt.wantCmd, msg.Command)
			assert.Equal(t, tt.wantParams, msg.Params)
		})
	}
}

func TestSerialize(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{
			name: "response with message",
			msg:  NewMessage(RespSuccess, "login successful"),
			want: "SUCCESS|login successful",
		},
		{
			name: "conflict with three parameters",
			msg:  NewMessage(RespConflict, "already logged in", "abc123", "kick? (Y/N)"),
			want: "CONFLICT|already logged in|abc123|kick? (Y/N)",
		},
		{
			name: "no parameters",
			msg:  NewMessage(CmdLogout),
			want: "LOGOUT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.msg.Serialize())
		})
	}
}

func TestParseSerializeRoundTrip(t *testing.T) {
	lines := []string{
		"REGISTER|alice|pw1",
		"LOGIN|alice|pw1",
		"FORCE_LOGIN|alice|pw1|Y",
		"GET_STRING",
		"SUCCESS|hello world",
	}
	for _, line := range lines {
		assert.Equal(t, line, ParseMessage(line).Serialize())
	}
}
