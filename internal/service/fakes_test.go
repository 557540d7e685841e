package service

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/polygens/wagerd/internal/crypto"
	"github.com/polygens/wagerd/internal/domain"
	"github.com/polygens/wagerd/internal/treasury"
)

// ---------------------------------------------------------------------------
// In-memory stores
// ---------------------------------------------------------------------------

type fakeMarketStore struct {
	mu      sync.Mutex
	markets map[string]domain.Market

	updateStakeErr error
	resolveErr     error
}

func newFakeMarketStore() *fakeMarketStore {
	return &fakeMarketStore{markets: make(map[string]domain.Market)}
}

func (s *fakeMarketStore) Create(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[m.ID]; ok {
		return domain.ErrConflict
	}
	s.markets[m.ID] = m
	return nil
}

func (s *fakeMarketStore) GetByID(_ context.Context, id string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s *fakeMarketStore) ListOpen(_ context.Context, _ domain.ListOpts) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Market
	for _, m := range s.markets {
		if !m.Resolved {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeMarketStore) List(_ context.Context, _ domain.ListOpts) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Market
	for _, m := range s.markets {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeMarketStore) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.markets)), nil
}

func (s *fakeMarketStore) UpdateStake(_ context.Context, u domain.StakeUpdate) error {
	if s.updateStakeErr != nil {
		return s.updateStakeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[u.MarketID]
	if !ok {
		return domain.ErrNotFound
	}
	m.Volume += u.VolumeDelta
	if m.Volume < 0 {
		m.Volume = 0
	}
	if u.YesOdds != nil {
		m.YesOdds = *u.YesOdds
	}
	for i := range m.Options {
		if m.Options[i].ID == u.OptionID {
			m.Options[i].Volume += u.VolumeDelta
			if m.Options[i].Volume < 0 {
				m.Options[i].Volume = 0
			}
		}
		if odds, ok := u.OptionOdds[m.Options[i].ID]; ok {
			m.Options[i].Odds = odds
		}
	}
	s.markets[u.MarketID] = m
	return nil
}

func (s *fakeMarketStore) Resolve(_ context.Context, id string, outcome domain.Outcome) error {
	if s.resolveErr != nil {
		return s.resolveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.ErrNotFound
	}
	if m.Resolved {
		return domain.ErrConflict
	}
	m.Resolved = true
	m.Outcome = &outcome
	s.markets[id] = m
	return nil
}

type fakeBetStore struct {
	mu   sync.Mutex
	bets map[string]domain.Bet

	createErr    error
	cashOutErr   error
	setStatusErr error
}

func newFakeBetStore() *fakeBetStore {
	return &fakeBetStore{bets: make(map[string]domain.Bet)}
}

func (s *fakeBetStore) Create(_ context.Context, b domain.Bet) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bets[b.ID] = b
	return nil
}

func (s *fakeBetStore) GetByID(_ context.Context, id string) (domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[id]
	if !ok {
		return domain.Bet{}, domain.ErrNotFound
	}
	return b, nil
}

func (s *fakeBetStore) ListByMarket(_ context.Context, marketID string) ([]domain.Bet, error) {
	return s.list(func(b domain.Bet) bool { return b.MarketID == marketID }), nil
}

func (s *fakeBetStore) ListActiveByMarket(_ context.Context, marketID string) ([]domain.Bet, error) {
	return s.list(func(b domain.Bet) bool {
		return b.MarketID == marketID && b.Status == domain.BetActive
	}), nil
}

func (s *fakeBetStore) ListByUser(_ context.Context, userID string, _ domain.ListOpts) ([]domain.Bet, error) {
	return s.list(func(b domain.Bet) bool { return b.UserID == userID }), nil
}

func (s *fakeBetStore) list(keep func(domain.Bet) bool) []domain.Bet {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Bet
	for _, b := range s.bets {
		if keep(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *fakeBetStore) SetStatus(_ context.Context, id string, from, to domain.BetStatus) error {
	if s.setStatusErr != nil {
		return s.setStatusErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[id]
	if !ok {
		return domain.ErrNotFound
	}
	if b.Status != from {
		return domain.ErrConflict
	}
	b.Status = to
	s.bets[id] = b
	return nil
}

func (s *fakeBetStore) CashOut(_ context.Context, id string, netPaid float64) error {
	if s.cashOutErr != nil {
		return s.cashOutErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bets[id]
	if !ok {
		return domain.ErrNotFound
	}
	if b.Status != domain.BetActive {
		return domain.ErrConflict
	}
	b.Status = domain.BetCashedOut
	b.PotentialWin = netPaid
	s.bets[id] = b
	return nil
}

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]domain.User)}
}

func (s *fakeUserStore) Create(_ context.Context, u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *fakeUserStore) GetByID(_ context.Context, id string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (s *fakeUserStore) SetBalance(_ context.Context, id string, balance float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.Balance = balance
	s.users[id] = u
	return nil
}

func (s *fakeUserStore) Leaderboard(_ context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.LeaderboardEntry
	for _, u := range s.users {
		out = append(out, domain.LeaderboardEntry{Username: u.Username, Balance: u.Balance})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Balance > out[j].Balance })
	if len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

type fakeIntentStore struct {
	mu      sync.Mutex
	intents map[string]domain.TransferIntent
}

func newFakeIntentStore() *fakeIntentStore {
	return &fakeIntentStore{intents: make(map[string]domain.TransferIntent)}
}

func (s *fakeIntentStore) Create(_ context.Context, in domain.TransferIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if in.IdempotencyKey != "" {
		for _, existing := range s.intents {
			// Failed attempts do not block a retry under the same key.
			if existing.IdempotencyKey == in.IdempotencyKey && existing.Status != domain.IntentFailed {
				return domain.ErrConflict
			}
		}
	}
	s.intents[in.ID] = in
	return nil
}

func (s *fakeIntentStore) SetStatus(_ context.Context, id string, status domain.IntentStatus, signature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.intents[id]
	if !ok {
		return domain.ErrNotFound
	}
	in.Status = status
	in.Signature = signature
	s.intents[id] = in
	return nil
}

func (s *fakeIntentStore) GetByIdempotencyKey(_ context.Context, key string) (domain.TransferIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var failed *domain.TransferIntent
	for _, in := range s.intents {
		if in.IdempotencyKey != key {
			continue
		}
		if in.Status != domain.IntentFailed {
			return in, nil
		}
		cp := in
		failed = &cp
	}
	if failed != nil {
		return *failed, nil
	}
	return domain.TransferIntent{}, domain.ErrNotFound
}

func (s *fakeIntentStore) ListByStatus(_ context.Context, status domain.IntentStatus, _ domain.ListOpts) ([]domain.TransferIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TransferIntent
	for _, in := range s.intents {
		if in.Status == status {
			out = append(out, in)
		}
	}
	return out, nil
}

// byStatus counts intents currently in the given status.
func (s *fakeIntentStore) byStatus(status domain.IntentStatus) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, in := range s.intents {
		if in.Status == status {
			n++
		}
	}
	return n
}

type fakeAuditStore struct {
	mu     sync.Mutex
	events []string
}

func (s *fakeAuditStore) Log(_ context.Context, event string, _ map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *fakeAuditStore) List(_ context.Context, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func (s *fakeAuditStore) has(event string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e == event {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Coordination fakes
// ---------------------------------------------------------------------------

type fakeLockManager struct {
	acquireErr error
}

func (l *fakeLockManager) Acquire(_ context.Context, _ string, _ time.Duration) (func(), error) {
	if l.acquireErr != nil {
		return nil, l.acquireErr
	}
	return func() {}, nil
}

func (l *fakeLockManager) AcquireWait(ctx context.Context, key string, ttl, _ time.Duration) (func(), error) {
	return l.Acquire(ctx, key, ttl)
}

type fakeRateLimiter struct {
	denied bool
}

func (r *fakeRateLimiter) Allow(_ context.Context, _ string, _ int, _ time.Duration) (bool, error) {
	return !r.denied, nil
}

type fakeBus struct {
	mu       sync.Mutex
	messages map[string]int
}

func newFakeBus() *fakeBus {
	return &fakeBus{messages: make(map[string]int)}
}

func (b *fakeBus) Publish(_ context.Context, channel string, _ []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages[channel]++
	return nil
}

func (b *fakeBus) Subscribe(_ context.Context, _ string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

type fakeBlob struct {
	mu   sync.Mutex
	puts []string
}

func (b *fakeBlob) Put(_ context.Context, path string, _ io.Reader, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.puts = append(b.puts, path)
	return nil
}

// ---------------------------------------------------------------------------
// Ledger fakes
// ---------------------------------------------------------------------------

type fakeLedger struct {
	mu        sync.Mutex
	balances  map[string]float64
	transfers int

	// failFor makes transfers to the given address fail.
	failFor map[string]bool
	// failAll makes every transfer fail.
	failAll bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		balances: make(map[string]float64),
		failFor:  make(map[string]bool),
	}
}

func (l *fakeLedger) Balance(_ context.Context, address string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[address], nil
}

func (l *fakeLedger) Transfer(_ context.Context, from domain.KeyHandle, toAddress string, amount float64) (domain.TransferResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failAll || l.failFor[toAddress] {
		return domain.TransferResult{}, fmt.Errorf("ledger unavailable")
	}
	l.balances[from.Address()] -= amount
	l.balances[toAddress] += amount
	l.transfers++
	return domain.TransferResult{Signature: fmt.Sprintf("sig-%d", l.transfers)}, nil
}

// ---------------------------------------------------------------------------
// Fixture helpers
// ---------------------------------------------------------------------------

type fixture struct {
	markets  *fakeMarketStore
	bets     *fakeBetStore
	users    *fakeUserStore
	intents  *fakeIntentStore
	audit    *fakeAuditStore
	locks    *fakeLockManager
	limiter  *fakeRateLimiter
	bus      *fakeBus
	ledger   *fakeLedger
	blob     *fakeBlob
	keyring  *crypto.Keyring
	treasury *treasury.Treasury
	logger   *slog.Logger
}

const treasuryStartBalance = 1000.0

func newFixture(t *testing.T) *fixture {
	t.Helper()

	kr, err := crypto.NewKeyring("test-secret")
	if err != nil {
		t.Fatalf("NewKeyring: %v", err)
	}

	ledger := newFakeLedger()
	treasuryHandle := newTestHandle(t)
	ledger.balances[treasuryHandle.Address()] = treasuryStartBalance

	return &fixture{
		markets:  newFakeMarketStore(),
		bets:     newFakeBetStore(),
		users:    newFakeUserStore(),
		intents:  newFakeIntentStore(),
		audit:    &fakeAuditStore{},
		locks:    &fakeLockManager{},
		limiter:  &fakeRateLimiter{},
		bus:      newFakeBus(),
		ledger:   ledger,
		blob:     &fakeBlob{},
		keyring:  kr,
		treasury: treasury.New(treasuryHandle, ledger),
		logger:   slog.New(slog.DiscardHandler),
	}
}

// newTestKey generates a fresh signing key, returning its base58 secret and
// the handle over it.
func newTestKey(t *testing.T) (string, *crypto.Handle) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	secret := crypto.Base58Encode(priv)
	h, err := crypto.NewHandle(secret)
	if err != nil {
		t.Fatalf("NewHandle: %v", err)
	}
	return secret, h
}

func newTestHandle(t *testing.T) *crypto.Handle {
	t.Helper()
	_, h := newTestKey(t)
	return h
}

// addUser creates a funded user whose custodial key the keyring can open.
func (f *fixture) addUser(t *testing.T, id string, balance float64) domain.User {
	t.Helper()
	secret, handle := newTestKey(t)
	encrypted, err := f.keyring.Encrypt(secret)
	if err != nil {
		t.Fatalf("encrypt user key: %v", err)
	}
	u := domain.User{
		ID:            id,
		Username:      "user-" + id,
		LedgerAddress: handle.Address(),
		EncryptedKey:  encrypted,
		Balance:       balance,
		CreatedAt:     time.Now().UTC(),
	}
	if err := f.users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	f.ledger.balances[handle.Address()] = balance
	return u
}

func (f *fixture) addBinaryMarket(t *testing.T, id string, yesOdds int) domain.Market {
	t.Helper()
	m := domain.Market{
		ID:        id,
		Question:  "test market " + id,
		Type:      domain.MarketBinary,
		YesOdds:   yesOdds,
		EndDate:   time.Now().Add(24 * time.Hour),
		CreatedAt: time.Now().UTC(),
	}
	if err := f.markets.Create(context.Background(), m); err != nil {
		t.Fatalf("create market: %v", err)
	}
	return m
}

func (f *fixture) addMultiMarket(t *testing.T, id string, labels []string, oddsSet []int) domain.Market {
	t.Helper()
	m := domain.Market{
		ID:        id,
		Question:  "test market " + id,
		Type:      domain.MarketMultipleChoice,
		EndDate:   time.Now().Add(24 * time.Hour),
		CreatedAt: time.Now().UTC(),
	}
	for i, label := range labels {
		m.Options = append(m.Options, domain.Option{
			ID:       fmt.Sprintf("%s-opt-%d", id, i),
			MarketID: id,
			Label:    label,
			Odds:     oddsSet[i],
		})
	}
	if err := f.markets.Create(context.Background(), m); err != nil {
		t.Fatalf("create market: %v", err)
	}
	return m
}

func (f *fixture) wagerService() *WagerService {
	return NewWagerService(
		f.markets, f.bets, f.users, f.intents, f.audit,
		f.locks, f.limiter, f.bus, f.ledger, f.keyring, f.treasury, nil,
		WagerConfig{
			MinStake:        0.001,
			LockTTL:         time.Second,
			LockWait:        time.Second,
			PlaceRateLimit:  10,
			PlaceRateWindow: time.Second,
		},
		f.logger,
	)
}

func (f *fixture) cashOutService() *CashOutService {
	return NewCashOutService(
		f.markets, f.bets, f.users, f.intents, f.audit,
		f.locks, f.bus, f.ledger, f.treasury, nil,
		time.Second, time.Second, f.logger,
	)
}

func (f *fixture) settlementService() *SettlementService {
	return NewSettlementService(
		f.markets, f.bets, f.users, f.intents, f.audit,
		f.locks, f.bus, f.ledger, f.treasury, f.blob, nil,
		time.Second, time.Second, f.logger,
	)
}

func (f *fixture) marketService() *MarketService {
	return NewMarketService(f.markets, f.bets, f.users, f.treasury, f.bus, f.logger)
}
