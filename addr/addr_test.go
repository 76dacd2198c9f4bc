package addr

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnix(t *testing.T) {
	a, err := Parse("unix:///tmp/rpc-test.sock")
	require.NoError(t, err)
	assert.Equal(t, Unix, a.Family)
	assert.Equal(t, "/tmp/rpc-test.sock", a.Path)
}

func TestParseUnixWithIgnoredSuffix(t *testing.T) {
	a, err := Parse("unix:///tmp/rpc-test.sock:/some/apteryx/path")
	require.NoError(t, err)
	assert.Equal(t, Unix, a.Family)
	assert.Equal(t, "/tmp/rpc-test.sock", a.Path)
}

func TestParseIPv4(t *testing.T) {
	a, err := Parse("tcp://127.0.0.1:8080")
	require.NoError(t, err)
	assert.Equal(t, IPv4, a.Family)
	assert.True(t, a.IP.Equal(net.ParseIP("127.0.0.1")))
	assert.Equal(t, 8080, a.Port)
}

func TestParseIPv4WithIgnoredSuffix(t *testing.T) {
	a, err := Parse("tcp://127.0.0.1:8080:/ignored")
	require.NoError(t, err)
	assert.Equal(t, 8080, a.Port)
}

func TestParseIPv6(t *testing.T) {
	a, err := Parse("tcp://[::1]:9090")
	require.NoError(t, err)
	assert.Equal(t, IPv6, a.Family)
	assert.True(t, a.IP.Equal(net.ParseIP("::1")))
	assert.Equal(t, 9090, a.Port)
}

func TestParseIPv6WithIgnoredSuffix(t *testing.T) {
	a, err := Parse("tcp://[::1]:9090:/ignored")
	require.NoError(t, err)
	assert.Equal(t, 9090, a.Port)
}

func TestParseInvalid(t *testing.T) {
	cases := []string{
		"",
		"http://127.0.0.1:8080",
		"tcp://127.0.0.1",
		"tcp://not-an-ip:8080",
		"tcp://[::1]",
		"unix://",
		"tcp://[::1:9090",
	}
	for _, url := range cases {
		_, err := Parse(url)
		assert.Error(t, err, "url=%q", url)
	}
}

func TestAddressEqual(t *testing.T) {
	a, err := Parse("unix:///tmp/a.sock")
	require.NoError(t, err)
	b, err := Parse("unix:///tmp/a.sock:ignored")
	require.NoError(t, err)
	c, err := Parse("unix:///tmp/b.sock")
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))

	d, err := Parse("tcp://127.0.0.1:80")
	require.NoError(t, err)
	e, err := Parse("tcp://127.0.0.1:81")
	require.NoError(t, err)
	assert.False(t, d.Equal(e))
	assert.False(t, d.Equal(a))
}
