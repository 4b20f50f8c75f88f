// Package tfagg resamples the live 1-minute candle stream into the full
// timeframe ladder. One aggregation session exists per (symbol,
// timeframe) pair; closed candles are emitted the moment their period
// ends, while forming partials are emitted as interim updates at a
// bounded rate.
package tfagg

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Linkora-Dex/linkora-dex-backend/internal/model"
)

// Emission is one aggregated candle ready for broadcast. Closed marks a
// finished period; otherwise the candle is an interim snapshot of the
// forming period.
type Emission struct {
	Symbol    string
	Timeframe string
	Candle    model.StreamCandle
	Closed    bool
}

type sessionKey struct {
	symbol    string
	timeframe string
}

type session struct {
	agg      *Aggregator
	lastEmit time.Time
}

// Manager owns the aggregation sessions and decides which emissions are
// due. It is fed by the broker subscriber and read by the interim ticker
// and the HTTP price handler, so all access is mutex-guarded.
type Manager struct {
	// InterimEvery is the minimum gap between interim emissions for one
	// session. Closed candles are never held back.
	InterimEvery time.Duration

	mu       sync.Mutex
	sessions map[sessionKey]*session
	log      zerolog.Logger
}

// NewManager creates a manager with the default 5s interim gap.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		InterimEvery: 5 * time.Second,
		sessions:     make(map[sessionKey]*session),
		log:          log.With().Str("component", "tfagg").Logger(),
	}
}

// Feed folds one closed 1-minute candle into every timeframe and returns
// the emissions due at now. Timeframe "1" passes straight through as a
// closed emission. Higher timeframes emit a closed candle on period
// advance and otherwise an interim snapshot, rate-limited per session.
func (m *Manager) Feed(c model.StreamCandle, now time.Time) []Emission {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Emission
	for _, label := range model.TimeframeLabels() {
		minutes, ok := model.TimeframeMinutes(label)
		if !ok {
			continue
		}
		if minutes == 1 {
			out = append(out, Emission{Symbol: c.Symbol, Timeframe: label, Candle: c, Closed: true})
			continue
		}

		key := sessionKey{symbol: c.Symbol, timeframe: label}
		sess, exists := m.sessions[key]
		if !exists {
			sess = &session{agg: NewAggregator(minutes)}
			m.sessions[key] = sess
			m.log.Debug().
				Str("symbol", c.Symbol).
				Str("timeframe", label).
				Msg("aggregation session started")
		}

		accepted := c.Timestamp > sess.agg.Watermark()
		if closed := sess.agg.Add(c); closed != nil {
			out = append(out, Emission{Symbol: c.Symbol, Timeframe: label, Candle: *closed, Closed: true})
			sess.lastEmit = now
			continue
		}
		if accepted && now.Sub(sess.lastEmit) >= m.InterimEvery {
			if cur := sess.agg.Current(); cur != nil {
				out = append(out, Emission{Symbol: c.Symbol, Timeframe: label, Candle: *cur, Closed: false})
				sess.lastEmit = now
			}
		}
	}
	return out
}

// Interims returns the forming partial of every session whose last
// emission is at least InterimEvery old. Called from a periodic ticker
// so quiet sessions still surface their forming candle.
func (m *Manager) Interims(now time.Time) []Emission {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Emission
	for key, sess := range m.sessions {
		if now.Sub(sess.lastEmit) < m.InterimEvery {
			continue
		}
		cur := sess.agg.Current()
		if cur == nil {
			continue
		}
		out = append(out, Emission{Symbol: key.symbol, Timeframe: key.timeframe, Candle: *cur, Closed: false})
		sess.lastEmit = now
	}
	return out
}

// Current returns a copy of the forming candle for the pair, or nil when
// no session has formed one. Timeframe "1" has no forming state.
func (m *Manager) Current(symbol, timeframe string) *model.StreamCandle {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionKey{symbol: symbol, timeframe: timeframe}]
	if !ok {
		return nil
	}
	return sess.agg.Current()
}
