package alert

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegram_Notify(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":-100,"type":"group"}}}`))
	}))
	defer srv.Close()

	tg, err := NewTelegram("123:abc", -100, bot.WithServerURL(srv.URL))
	require.NoError(t, err)

	err = tg.Notify(context.Background(), "resolver failed", "2 errors")
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(gotPath, "/sendMessage"), gotPath)
	assert.Contains(t, gotBody, "resolver failed")
	assert.Contains(t, gotBody, "-100")
}

type fakeNotifier struct {
	calls int
	err   error
}

func (f *fakeNotifier) Notify(context.Context, string, string) error {
	f.calls++
	return f.err
}

func TestMulti_CallsEveryNotifier(t *testing.T) {
	boom := errors.New("boom")
	a := &fakeNotifier{err: boom}
	b := &fakeNotifier{}

	err := Multi{a, b, Nop{}}.Notify(context.Background(), "s", "b")

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
}
