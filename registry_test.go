package satori

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nonebot/adapter-satori/wire"
)

func TestRegistryLifecycle(t *testing.T) {
	var connected, disconnected []string
	reg := NewRegistry(
		func(b *Bot) { connected = append(connected, b.Identity()) },
		func(b *Bot) { disconnected = append(disconnected, b.Identity()) },
	)
	c := newTestClient(t, nil, nil)
	info := ClientInfo{Host: "localhost", Port: 5140}

	a := testBot(t, c, info, "a")
	got, created := reg.Register("conn1", a)
	assert.True(t, created)
	assert.Same(t, a, got)

	// A second login with the same identity updates in place.
	again := testBot(t, c, info, "a")
	login := again.Login()
	login.Adapter = "renamed"
	again.update(login)
	got, created = reg.Register("conn1", again)
	assert.False(t, created)
	assert.Same(t, a, got)
	assert.Equal(t, "renamed", a.Login().Adapter)
	assert.Equal(t, []string{"test:a"}, connected)

	reg.Register("conn1", testBot(t, c, info, "b"))
	reg.Register("conn2", testBot(t, c, info, "c"))
	assert.Equal(t, []string{"test:a", "test:b"}, reg.Logins("conn1"))
	assert.Equal(t, 3, reg.Len())

	conn, ok := reg.Connection("test:c")
	require.True(t, ok)
	assert.Equal(t, "conn2", conn)

	_, ok = reg.Unregister("conn1", "test:c")
	assert.False(t, ok, "bot owned by another connection")
	bot, ok := reg.Unregister("conn2", "test:c")
	require.True(t, ok)
	assert.Equal(t, "test:c", bot.Identity())

	removed := reg.Clear("conn1")
	assert.Len(t, removed, 2)
	assert.Equal(t, []string{"test:c", "test:a", "test:b"}, disconnected)
	assert.Zero(t, reg.Len())
	assert.Empty(t, reg.Logins("conn1"))
}

func TestRegistryUpdate(t *testing.T) {
	reg := NewRegistry(nil, nil)
	c := newTestClient(t, nil, nil)
	reg.Register("conn", testBot(t, c, ClientInfo{Host: "h", Port: 1}, "a"))

	assert.False(t, reg.Update(wire.Login{}))
	assert.False(t, reg.Update(testLogin("test", "zzz")))

	login := testLogin("test", "a")
	login.Status = wire.StatusReconnect
	assert.True(t, reg.Update(login))
	assert.Equal(t, wire.StatusReconnect, reg.Bot("test:a").Login().Status)
}

func TestRegistryProxyURLs(t *testing.T) {
	reg := NewRegistry(nil, nil)
	c := newTestClient(t, nil, nil)
	info := ClientInfo{Host: "h", Port: 1}
	reg.Register("conn", testBot(t, c, info, "a"))
	reg.Register("other", testBot(t, c, info, "b"))

	reg.SetProxyURLs("conn", []string{"https://cdn.example/"})
	assert.Equal(t, []string{"https://cdn.example/"}, reg.Bot("test:a").ProxyURLs())
	assert.Empty(t, reg.Bot("test:b").ProxyURLs())
}

func TestRegistryResetSkipsHooks(t *testing.T) {
	calls := 0
	reg := NewRegistry(nil, func(*Bot) { calls++ })
	c := newTestClient(t, nil, nil)
	reg.Register("conn", testBot(t, c, ClientInfo{Host: "h", Port: 1}, "a"))
	reg.Reset()
	assert.Zero(t, reg.Len())
	assert.Zero(t, calls)
}
