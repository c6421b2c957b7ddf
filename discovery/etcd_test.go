package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitEndpoints(t *testing.T) {
	assert.Equal(t, []string{"http://a:2379", "http://b:2379"}, SplitEndpoints(" http://a:2379, ,http://b:2379 "))
	assert.Nil(t, SplitEndpoints(""))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "/slotchan/arbiters/lab", Key("lab"))
}

func TestAdvertiseAddr(t *testing.T) {
	cases := []struct{ listen, host, want string }{
		{":5000", "", "127.0.0.1:5000"},
		{"0.0.0.0:5000", "", "127.0.0.1:5000"},
		{":5000", "arbiter.lan", "arbiter.lan:5000"},
		{"10.0.0.7:5000", "", "10.0.0.7:5000"},
		{"[::]:5000", "", "127.0.0.1:5000"},
		{"not-an-addr", "host", "not-an-addr"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, AdvertiseAddr(c.listen, c.host), "AdvertiseAddr(%q, %q)", c.listen, c.host)
	}
}
