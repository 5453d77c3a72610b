package cli

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iudanet/confsync/internal/client/iocli"
	"github.com/iudanet/confsync/internal/server"
	"github.com/iudanet/confsync/internal/server/jwt"
	"github.com/iudanet/confsync/internal/server/storage/sqlite"
)

const testPassphrase = "correct horse battery staple"

var seedPattern = regexp.MustCompile(`Seed: ([0-9a-f]{64})`)

func sessionID(n int) string {
	return "05" + fmt.Sprintf("%064x", n)
}

// newSwarm поднимает узел swarm на in-memory SQLite.
func newSwarm(t *testing.T) string {
	t.Helper()

	store, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Storage:  store,
		Verifier: jwt.NewVerifier(jwt.DefaultMaxAge),
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv.URL
}

// device - отдельное устройство клиента со своими базами.
type device struct {
	t *testing.T
	v *viper.Viper
}

func newDevice(t *testing.T, swarmURL string) *device {
	t.Helper()

	dir := t.TempDir()
	v := viper.New()
	v.Set("swarm.url", swarmURL)
	v.Set("storage.path", filepath.Join(dir, "confsync.db"))
	v.Set("projection.path", filepath.Join(dir, "view.db"))
	v.Set("log.level", "error")
	return &device{t: t, v: v}
}

func (d *device) run(args ...string) (string, error) {
	d.t.Helper()

	var out bytes.Buffer
	root := NewRootCommand(d.v, iocli.NewStreams(strings.NewReader(""), &out), BuildInfo{Version: "test"})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (d *device) mustRun(args ...string) string {
	d.t.Helper()

	out, err := d.run(args...)
	require.NoError(d.t, err, "confsync %s\n%s", strings.Join(args, " "), out)
	return out
}

// contactRow возвращает колонки строки контакта из вывода 'contact list'.
func contactRow(t *testing.T, out, id string) []string {
	t.Helper()

	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, id) {
			return strings.Fields(line)
		}
	}
	t.Fatalf("contact %s not listed:\n%s", id, out)
	return nil
}

func TestCli_Version(t *testing.T) {
	d := newDevice(t, "http://127.0.0.1:1")
	out := d.mustRun("version")
	assert.Contains(t, out, "Version:    test")
}

func TestCli_StatusWithoutAccount(t *testing.T) {
	d := newDevice(t, "http://127.0.0.1:1")
	out := d.mustRun("status")
	assert.Contains(t, out, "Status: No account")
}

func TestCli_TwoDevices(t *testing.T) {
	t.Setenv(PassphraseEnv, testPassphrase)
	swarm := newSwarm(t)

	alice, bob, carol := sessionID(1), sessionID(2), sessionID(3)
	readAt := time.Now().Add(-time.Minute).UnixMilli()

	// Первое устройство создает учетную запись и меняет конфигурацию
	first := newDevice(t, swarm)
	out := first.mustRun("init", "--show-seed")
	assert.Contains(t, out, "✓ Account created")
	match := seedPattern.FindStringSubmatch(out)
	require.Len(t, match, 2, out)
	seed := match[1]

	first.mustRun("contact", "set", alice, "--name", "Alice", "--approved")
	out = first.mustRun("group", "create", "Englishmen", "--member", bob, "--member", carol, "--disappearing", "1m")
	groupID := regexp.MustCompile(`Group ID: (05[0-9a-f]{64})`).FindStringSubmatch(out)
	require.Len(t, groupID, 2, out)
	first.mustRun("community", "join", "HTTPS://EXAMPLE.COM/SomeRoom?public_key="+strings.Repeat("01", 32))
	first.mustRun("profile", "set", "--name", "Kallie")
	first.mustRun("read", alice, "--at", strconv.FormatInt(readAt, 10))

	out = first.mustRun("status")
	assert.Contains(t, out, "Pending: 4 object(s) to push")
	assert.Contains(t, out, "Last sync: never")

	out = first.mustRun("sync")
	assert.Contains(t, out, "Pushed:    4 object(s)")
	assert.Contains(t, out, "✓ Synchronization completed")

	out = first.mustRun("status")
	assert.Contains(t, out, "✓ All config synchronized")
	assert.Contains(t, out, "Confirmed pushes recorded: 4")

	// Второе устройство той же учетной записи получает все изменения
	second := newDevice(t, swarm)
	second.mustRun("init", "--seed", seed)

	out = second.mustRun("pull")
	assert.Contains(t, out, "Fetched:   4 message(s)")

	out = second.mustRun("contact", "list")
	assert.Equal(t, []string{alice, "Alice", "yes", "no", "no", "0"}, contactRow(t, out, alice))

	out = second.mustRun("group", "list", "--members")
	assert.Contains(t, out, groupID[1])
	assert.Contains(t, out, "Englishmen")
	assert.Contains(t, out, "members=2 admins=1")
	assert.Contains(t, out, "disappearing=1m0s")
	assert.Contains(t, out, bob+"  member")

	out = second.mustRun("community", "list")
	assert.Contains(t, out, "https://example.com/SomeRoom?public_key="+strings.Repeat("01", 32))

	out = second.mustRun("profile", "show")
	assert.Contains(t, out, "Name:    Kallie")

	// Более раннее прочтение не откатывает состояние
	out = second.mustRun("read", alice, "--at", strconv.FormatInt(readAt-time.Hour.Milliseconds(), 10))
	assert.Contains(t, out, time.UnixMilli(readAt).Format(time.RFC3339))

	// Изменения второго устройства возвращаются на первое
	second.mustRun("contact", "block", alice)
	second.mustRun("group", "remove", groupID[1], carol)
	second.mustRun("community", "leave", "https://example.com", "someroom")
	out = second.mustRun("sync")
	assert.Contains(t, out, "✓ Synchronization completed")

	first.mustRun("pull")

	out = first.mustRun("contact", "list")
	assert.Equal(t, []string{alice, "Alice", "yes", "no", "yes", "0"}, contactRow(t, out, alice))

	out = first.mustRun("group", "list")
	assert.Contains(t, out, "members=1 admins=1")

	out = first.mustRun("community", "list")
	assert.Contains(t, out, "No communities found.")
}

func TestCli_ContactErase(t *testing.T) {
	t.Setenv(PassphraseEnv, testPassphrase)
	d := newDevice(t, newSwarm(t))
	d.mustRun("init")

	id := sessionID(7)
	d.mustRun("contact", "set", id, "--name", "Dave", "--nickname", "D")
	d.mustRun("contact", "erase", id)

	out := d.mustRun("contact", "list")
	assert.Contains(t, out, "No contacts found.")

	out = d.mustRun("contact", "list", "--all")
	assert.Equal(t, []string{id, "D", "no", "no", "no", "-1"}, contactRow(t, out, id))

	// Повторная запись возвращает контакт
	d.mustRun("contact", "set", id)
	out = d.mustRun("contact", "list")
	assert.Contains(t, out, "Total: 1 contact(s)")
}

func TestCli_GroupErase(t *testing.T) {
	t.Setenv(PassphraseEnv, testPassphrase)
	d := newDevice(t, newSwarm(t))
	d.mustRun("init")

	out := d.mustRun("group", "create", "Crew", "--member", sessionID(1))
	groupID := regexp.MustCompile(`Group ID: (05[0-9a-f]{64})`).FindStringSubmatch(out)
	require.Len(t, groupID, 2, out)

	d.mustRun("group", "add", groupID[1], sessionID(2))
	out = d.mustRun("group", "list")
	assert.Contains(t, out, "members=2 admins=1")

	d.mustRun("group", "erase", groupID[1])
	out = d.mustRun("group", "list")
	assert.Contains(t, out, "No groups found.")
}

func TestCli_GroupRenameAndRotateKey(t *testing.T) {
	t.Setenv(PassphraseEnv, testPassphrase)
	swarm := newSwarm(t)

	first := newDevice(t, swarm)
	out := first.mustRun("init", "--show-seed")
	seed := seedPattern.FindStringSubmatch(out)
	require.Len(t, seed, 2, out)

	out = first.mustRun("group", "create", "Crew", "--member", sessionID(1))
	groupID := regexp.MustCompile(`Group ID: (05[0-9a-f]{64})`).FindStringSubmatch(out)
	require.Len(t, groupID, 2, out)

	out = first.mustRun("group", "rename", groupID[1], "Deck hands")
	assert.Contains(t, out, "name_change")
	out = first.mustRun("group", "rotate-key", groupID[1])
	assert.Contains(t, out, "encryption_key_pair")
	first.mustRun("sync")

	// Новое имя доходит до другого устройства
	second := newDevice(t, swarm)
	second.mustRun("init", "--seed", seed[1])
	second.mustRun("pull")
	out = second.mustRun("group", "list")
	assert.Contains(t, out, "Deck hands")
	assert.NotContains(t, out, "Crew")
	assert.Contains(t, out, "members=2 admins=1")

	_, err := first.run("group", "rename", groupID[1], " ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be empty")

	_, err = first.run("group", "rotate-key", sessionID(5))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to apply encryption_key_pair")
}

func TestCli_Reset(t *testing.T) {
	t.Setenv(PassphraseEnv, testPassphrase)
	swarm := newSwarm(t)

	first := newDevice(t, swarm)
	out := first.mustRun("init", "--show-seed")
	seed := seedPattern.FindStringSubmatch(out)
	require.Len(t, seed, 2, out)
	first.mustRun("contact", "set", sessionID(1), "--name", "Alice")
	first.mustRun("sync")

	_, err := first.run("reset")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")

	// Локальный сброс не трогает swarm
	out = first.mustRun("reset", "--yes")
	assert.Contains(t, out, "✓ Account removed from this device")
	out = first.mustRun("status")
	assert.Contains(t, out, "Status: No account")

	first.mustRun("init")
	out = first.mustRun("contact", "list")
	assert.Contains(t, out, "No contacts found.")

	second := newDevice(t, swarm)
	second.mustRun("init", "--seed", seed[1])
	out = second.mustRun("pull")
	assert.Contains(t, out, "Fetched:   1 message(s)")

	// Сброс с --network удаляет сообщения учетной записи из swarm
	out = second.mustRun("reset", "--network", "--yes")
	assert.Contains(t, out, "Deleted:   1 obsolete message(s)")
	assert.Contains(t, out, "✓ Account removed from this device")

	third := newDevice(t, swarm)
	third.mustRun("init", "--seed", seed[1])
	out = third.mustRun("pull")
	assert.Contains(t, out, "Fetched:   0 message(s)")
	out = third.mustRun("contact", "list")
	assert.Contains(t, out, "No contacts found.")
}

func TestCli_Errors(t *testing.T) {
	t.Setenv(PassphraseEnv, testPassphrase)
	d := newDevice(t, newSwarm(t))

	_, err := d.run("contact", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "confsync init")

	d.mustRun("init")

	_, err = d.run("init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "invalid session id", args: []string{"contact", "set", "not-a-session"}, want: "failed to update contact"},
		{name: "negative priority", args: []string{"contact", "set", sessionID(1), "--priority", "-1"}, want: "cannot be negative"},
		{name: "erase unknown contact", args: []string{"contact", "erase", sessionID(9)}, want: "not found"},
		{name: "add to unknown group", args: []string{"group", "add", sessionID(5), sessionID(1)}, want: "failed to add members"},
		{name: "community without key", args: []string{"community", "join", "https://example.com/room"}, want: "public_key"},
		{name: "profile without changes", args: []string{"profile", "set"}, want: "nothing to change"},
		{name: "bad picture key", args: []string{"profile", "set", "--picture-url", "https://x/p", "--picture-key", "zz"}, want: "picture-key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.run(tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Setenv(PassphraseEnv, "another passphrase entirely")
	_, err = d.run("contact", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrong passphrase")
}

func TestCli_SyncUnavailableSwarm(t *testing.T) {
	t.Setenv(PassphraseEnv, testPassphrase)
	srv := httptest.NewServer(nil)
	srv.Close()

	d := newDevice(t, srv.URL)
	d.v.Set("swarm.timeout", time.Second)
	d.mustRun("init")
	d.mustRun("contact", "set", sessionID(1), "--name", "Alice")

	_, err := d.run("sync")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pull failed")

	// Изменение не потеряно
	out := d.mustRun("status")
	assert.Contains(t, out, "Pending: 1 object(s) to push")
}
