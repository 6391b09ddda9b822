package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/liquidbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSender struct {
	mu     sync.Mutex
	titles []string
	bodies []string
	err    error
}

func (s *recordingSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles = append(s.titles, msg.Title)
	s.bodies = append(s.bodies, msg.Body)
	return s.err
}

func (s *recordingSender) Name() string {
	if s.err != nil {
		return "failing"
	}
	return "recording"
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.titles)
}

func TestNotifierFiltersEvents(t *testing.T) {
	s := &recordingSender{}
	n := NewNotifier([]Sender{s}, []string{EventLiquidationSuccess}, testLogger())

	require.NoError(t, n.Notify(context.Background(), Message{Event: EventLiquidationFailed, Title: "t"}))
	assert.Zero(t, s.count())

	require.NoError(t, n.Notify(context.Background(), Message{Event: EventLiquidationSuccess, Title: "t"}))
	assert.Equal(t, 1, s.count())
	assert.False(t, n.Enabled(EventShutdown))

	all := NewNotifier([]Sender{s}, []string{" ", ""}, testLogger())
	assert.True(t, all.Enabled(EventShutdown))
}

func TestNotifierCollectsSenderErrors(t *testing.T) {
	bad := &recordingSender{err: errors.New("boom")}
	good := &recordingSender{}
	n := NewNotifier([]Sender{bad, good}, nil, testLogger())

	err := n.Notify(context.Background(), Message{Event: EventShutdown, Title: "t", Body: "m"})
	require.Error(t, err)
	assert.ErrorIs(t, err, bad.err)
	assert.Contains(t, err.Error(), "failing: boom")
	assert.Equal(t, 1, good.count())
}

func TestTelegramSender(t *testing.T) {
	var got map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "42")
	s.baseURL = srv.URL
	require.NoError(t, s.Send(context.Background(), Message{Title: "Repay <USDC>", Body: "a & b"}))
	assert.Equal(t, "/bottok/sendMessage", path)
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "HTML", got["parse_mode"])
	assert.Equal(t, "<b>Repay &lt;USDC&gt;</b>\n<pre>a &amp; b</pre>", got["text"])
}

func TestDiscordSenderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), Message{Title: "t", Body: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord: unexpected status 400")
}

func TestDiscordSenderEmbed(t *testing.T) {
	var got struct {
		Embeds []discordEmbed `json:"embeds"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	s.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	require.NoError(t, s.Send(context.Background(), Message{Event: EventLiquidationFailed, Title: "Liquidation failed", Body: "reason: reverted"}))

	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "Liquidation failed", got.Embeds[0].Title)
	assert.Equal(t, colorFailure, got.Embeds[0].Color)
	assert.Equal(t, "2024-05-01T12:00:00Z", got.Embeds[0].Timestamp)
	assert.Contains(t, got.Embeds[0].Description, "reason: reverted")

	assert.Equal(t, colorSuccess, embedColor(EventLiquidationSuccess))
	assert.Equal(t, colorInfo, embedColor(EventOpportunity))
}

func TestDedup(t *testing.T) {
	d := NewDedup(time.Minute)
	now := time.Unix(1000, 0)
	d.now = func() time.Time { return now }

	assert.False(t, d.IsDuplicate("a"))
	assert.True(t, d.IsDuplicate("a"))
	assert.False(t, d.IsDuplicate("b"))

	now = now.Add(time.Minute)
	assert.False(t, d.IsDuplicate("a"))
}

func TestObserverDeliversAndDedupsFailures(t *testing.T) {
	s := &recordingSender{}
	n := NewNotifier([]Sender{s}, []string{EventLiquidationSuccess, EventLiquidationFailed}, testLogger())
	o := NewObserver(n, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = o.Run(ctx)
		close(done)
	}()

	opp := domain.LiquidationOpportunity{
		Borrower: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		RepayUSD: 100,
	}
	opp.Borrow.Market.Symbol = "USDC"
	opp.Collateral.Market.Symbol = "ETH"

	o.OnOpportunity(ctx, opp) // filtered out
	o.OnResult(ctx, opp, domain.Failed("insufficient balance"))
	o.OnResult(ctx, opp, domain.Failed("insufficient balance")) // duplicate
	o.OnResult(ctx, opp, domain.ExecutionResult{Success: true, Record: &domain.LiquidationRecord{TxHash: "0xabc"}})

	require.Eventually(t, func() bool { return s.count() == 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Equal(t, []string{"Liquidation failed", "Liquidation confirmed"}, s.titles)
	assert.Contains(t, s.bodies[0], "reason: insufficient balance")
	assert.Contains(t, s.bodies[1], "tx: 0xabc")
}

func TestObserverShutdown(t *testing.T) {
	s := &recordingSender{}
	o := NewObserver(NewNotifier([]Sender{s}, nil, testLogger()), testLogger())
	require.NoError(t, o.Shutdown(context.Background(), "liquidations: 0"))
	assert.Equal(t, 1, s.count())
}
