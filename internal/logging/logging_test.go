package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	l, closeFn, err := New(Options{})
	require.NoError(t, err)
	defer closeFn()
	require.Equal(t, logrus.InfoLevel, l.GetLevel())
	require.IsType(t, &logrus.TextFormatter{}, l.Formatter)
	require.Equal(t, os.Stderr, l.Out)
}

func TestNewFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "privfs.log")
	l, closeFn, err := New(Options{Level: "DEBUG", Format: "json", Output: path})
	require.NoError(t, err)
	l.WithField("label", "abc").Debug("opened")
	require.NoError(t, closeFn())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(b), `"label":"abc"`), string(b))
	require.True(t, strings.Contains(string(b), `"level":"debug"`), string(b))
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, _, err := New(Options{Level: "loud"})
	require.Error(t, err)
	_, _, err = New(Options{Format: "xml"})
	require.Error(t, err)
	_, _, err = New(Options{Output: filepath.Join(t.TempDir(), "missing", "x.log")})
	require.Error(t, err)
}
