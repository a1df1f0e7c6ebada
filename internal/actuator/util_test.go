package actuator

import (
	"bufio"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvFromProc(t *testing.T) {
	pid := os.Getpid()

	value, err := getEnvFromProc(pid, "PATH")
	if !assert.NoError(t, err, "Should be able to read PATH from current process") {
		return
	}
	assert.Equal(t, os.Getenv("PATH"), value, "Value from /proc should match os.Getenv")
}

func TestGetEnvFromProc_NotFound(t *testing.T) {
	_, err := getEnvFromProc(os.Getpid(), "NONEXISTENT_VARIABLE_THAT_SHOULD_NOT_EXIST")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestGetEnvFromProc_InvalidPID(t *testing.T) {
	_, err := getEnvFromProc(999999, "PATH")
	assert.Error(t, err)
}

func TestScanNullTerminated(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		atEOF   bool
		wantAdv int
		wantTok []byte
	}{
		{"Single null-terminated string", []byte("FOO=bar\x00"), false, 8, []byte("FOO=bar")},
		{"Multiple null-terminated strings", []byte("FOO=bar\x00BAZ=qux\x00"), false, 8, []byte("FOO=bar")},
		{"EOF without null terminator", []byte("FOO=bar"), true, 7, []byte("FOO=bar")},
		{"EOF with empty input", []byte{}, true, 0, nil},
		{"No null and not EOF", []byte("FOO=bar"), false, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adv, tok, err := scanNullTerminated(tt.input, tt.atEOF)
			assert.NoError(t, err)
			assert.Equal(t, tt.wantAdv, adv)
			assert.Equal(t, tt.wantTok, tok)
		})
	}
}

func TestScanNullTerminated_Environ(t *testing.T) {
	scanner := bufio.NewScanner(strings.NewReader("USER=alice\x00HOME=/home/alice\x00DBUS_SESSION_BUS_ADDRESS=unix:path=/run/user/1000/bus\x00"))
	scanner.Split(scanNullTerminated)

	var tokens []string
	for scanner.Scan() {
		tokens = append(tokens, scanner.Text())
	}
	assert.Equal(t, []string{"USER=alice", "HOME=/home/alice", "DBUS_SESSION_BUS_ADDRESS=unix:path=/run/user/1000/bus"}, tokens)
}

func TestFormatTimeRemaining(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"Less than 1 hour", 45 * time.Minute, "45 minute(s)"},
		{"Exactly 1 hour", time.Hour, "1 hour(s) 0 minute(s)"},
		{"1 hour 30 minutes", 90 * time.Minute, "1 hour(s) 30 minute(s)"},
		{"5 minutes", 5 * time.Minute, "5 minute(s)"},
		{"Less than 1 minute", 30 * time.Second, "30 second(s)"},
		{"Zero", 0, "0 minute(s)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatTimeRemaining(tt.duration))
		})
	}
}
