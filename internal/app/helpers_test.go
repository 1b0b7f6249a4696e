package app

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/kudipay/settlement-service/internal/domain"
	"github.com/kudipay/settlement-service/internal/store"
	"github.com/kudipay/settlement-service/pkg/paystackclient"
	"github.com/kudipay/settlement-service/pkg/rabbitmq"
)

const testPIN = "1234"

func testPINHash() string {
	hash, err := bcrypt.GenerateFromPassword([]byte(testPIN), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return string(hash)
}

// fakeRepository is an in-memory store.Repository. Mutations run against a
// copy of the aggregate and are swapped in only on success, mirroring the
// rollback semantics of the real transaction.
type fakeRepository struct {
	mu            sync.Mutex
	accounts      map[uuid.UUID]*domain.Account
	users         map[uuid.UUID]*domain.User
	ledger        []domain.Transaction
	getAccountErr error
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		accounts: make(map[uuid.UUID]*domain.Account),
		users:    make(map[uuid.UUID]*domain.User),
	}
}

func (r *fakeRepository) addAccount(balanceKobo int64) *domain.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner := &domain.User{ID: uuid.New(), Email: "owner@example.com", FullName: "Test Owner"}
	account := domain.HydrateAccount(uuid.New(), owner.ID, "0123456789", domain.NGN(balanceKobo), testPINHash(), true)
	r.accounts[account.ID] = account
	r.users[owner.ID] = owner
	return account
}

func (r *fakeRepository) balance(accountID uuid.UUID) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accounts[accountID].Balance.Amount
}

func (r *fakeRepository) GetAccount(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getAccountErr != nil {
		return nil, r.getAccountErr
	}
	account, ok := r.accounts[accountID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	clone := *account
	clone.Transactions = nil
	return &clone, nil
}

func (r *fakeRepository) GetAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, account := range r.accounts {
		if account.AccountNumber == accountNumber {
			clone := *account
			clone.Transactions = nil
			return &clone, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (r *fakeRepository) AccountNumberExists(ctx context.Context, accountNumber string) (bool, error) {
	_, err := r.GetAccountByNumber(ctx, accountNumber)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *fakeRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

func (r *fakeRepository) MutateAccount(ctx context.Context, accountID uuid.UUID, fn store.MutateFn) (*domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[accountID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	working := *account
	working.Transactions = nil
	entry, err := fn(&working)
	if err != nil {
		return nil, err
	}
	for _, tx := range working.Transactions {
		r.ledger = append(r.ledger, *tx)
	}
	working.Transactions = nil
	r.accounts[accountID] = &working
	return entry, nil
}

func (r *fakeRepository) MutateAccountPair(ctx context.Context, fromID, toID uuid.UUID, fn store.MutatePairFn) ([]*domain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	from, ok := r.accounts[fromID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	to, ok := r.accounts[toID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	workingFrom, workingTo := *from, *to
	workingFrom.Transactions, workingTo.Transactions = nil, nil
	entries, err := fn(&workingFrom, &workingTo)
	if err != nil {
		return nil, err
	}
	for _, tx := range append(workingFrom.Transactions, workingTo.Transactions...) {
		r.ledger = append(r.ledger, *tx)
	}
	workingFrom.Transactions, workingTo.Transactions = nil, nil
	r.accounts[fromID] = &workingFrom
	r.accounts[toID] = &workingTo
	return entries, nil
}

func (r *fakeRepository) ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Transaction
	for i := len(r.ledger) - 1; i >= 0; i-- {
		if r.ledger[i].AccountID == accountID {
			out = append(out, r.ledger[i])
		}
	}
	if offset < len(out) {
		out = out[offset:]
	} else {
		out = nil
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeRepository) FindTransactionByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.ledger {
		if r.ledger[i].Reference == reference {
			tx := r.ledger[i]
			return &tx, nil
		}
	}
	return nil, domain.ErrOperationExpired
}

func (r *fakeRepository) UpdateTransactionStatus(ctx context.Context, transactionID uuid.UUID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.ledger {
		if r.ledger[i].ID == transactionID {
			return r.ledger[i].TransitionStatus(status)
		}
	}
	return domain.ErrAccountNotFound
}

// fakeGateway scripts gateway responses and records which calls happened.
// VerifyByReference reports the amount of the last initialized payment unless
// verifyAmount overrides it, so confirmation amount checks see the gateway's
// view of the money.
type fakeGateway struct {
	initErr      error
	verifyStatus string
	verifyAmount int64
	verifyErr    error
	resolveErr   error
	recipientErr error
	transferErr  error

	initCalls      int
	lastInitAmount int64
	verifyCalls    int
	transferCalls  int
	bankCalls      int
}

func (g *fakeGateway) InitializePayment(ctx context.Context, email, reference string, amountMinor int64) (*paystackclient.InitializePaymentResult, error) {
	g.initCalls++
	if g.initErr != nil {
		return nil, g.initErr
	}
	g.lastInitAmount = amountMinor
	return &paystackclient.InitializePaymentResult{
		AuthorizationURL: "https://checkout.example/" + reference,
		AccessCode:       "ac_" + reference,
		Reference:        reference,
	}, nil
}

func (g *fakeGateway) VerifyByReference(ctx context.Context, reference string) (*paystackclient.VerifyResult, error) {
	g.verifyCalls++
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	status := g.verifyStatus
	if status == "" {
		status = "success"
	}
	amount := g.verifyAmount
	if amount == 0 {
		amount = g.lastInitAmount
	}
	return &paystackclient.VerifyResult{Status: status, AmountMinor: amount, GatewayStatus: status}, nil
}

func (g *fakeGateway) ResolveAccountName(ctx context.Context, accountNumber, bankCode string) (*paystackclient.ResolvedAccount, error) {
	if g.resolveErr != nil {
		return nil, g.resolveErr
	}
	return &paystackclient.ResolvedAccount{AccountNumber: accountNumber, AccountName: "RESOLVED NAME"}, nil
}

func (g *fakeGateway) ListBanks(ctx context.Context) ([]paystackclient.Bank, error) {
	g.bankCalls++
	return []paystackclient.Bank{{Name: "Test Bank", Code: "058"}}, nil
}

func (g *fakeGateway) CreateRecipient(ctx context.Context, name, accountNumber, bankCode string) (*paystackclient.RecipientResult, error) {
	if g.recipientErr != nil {
		return nil, g.recipientErr
	}
	return &paystackclient.RecipientResult{RecipientCode: "RCP_test"}, nil
}

func (g *fakeGateway) InitiateTransfer(ctx context.Context, amountMinor int64, recipientCode, reference, reason string) (*paystackclient.TransferResult, error) {
	g.transferCalls++
	if g.transferErr != nil {
		return nil, g.transferErr
	}
	return &paystackclient.TransferResult{TransferCode: "TRF_test", Status: "pending"}, nil
}

// fakePendingStore is a map-backed PendingStore. Claim is atomic under the
// mutex, matching the Redis script's guarantee.
type fakePendingStore struct {
	mu      sync.Mutex
	records map[string][]byte
}

func newFakePendingStore() *fakePendingStore {
	return &fakePendingStore{records: make(map[string][]byte)}
}

func (s *fakePendingStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = payload
	return nil
}

func (s *fakePendingStore) Get(ctx context.Context, key string, dest any) (bool, error) {
	s.mu.Lock()
	payload, ok := s.records[key]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(payload, dest)
}

func (s *fakePendingStore) Remove(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[key]
	delete(s.records, key)
	return ok, nil
}

func (s *fakePendingStore) Claim(ctx context.Context, key string, dest any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	payload, ok := s.records[key]
	delete(s.records, key)
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(payload, dest)
}

func (s *fakePendingStore) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for key := range s.records {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (s *fakePendingStore) GetOrCompute(ctx context.Context, key string, ttl time.Duration, dest any, compute func() (any, error)) error {
	if found, err := s.Get(ctx, key, dest); err != nil || found {
		return err
	}
	value, err := compute()
	if err != nil {
		return err
	}
	if err := s.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	_, err = s.Get(ctx, key, dest)
	return err
}

func (s *fakePendingStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[key]
	return ok
}

// cancelOnClaimStore cancels the caller's context the moment a claim
// succeeds, simulating a webhook client that disconnects mid-settlement.
type cancelOnClaimStore struct {
	*fakePendingStore
	cancel context.CancelFunc
}

func (s *cancelOnClaimStore) Claim(ctx context.Context, key string, dest any) (bool, error) {
	claimed, err := s.fakePendingStore.Claim(ctx, key, dest)
	if claimed {
		s.cancel()
	}
	return claimed, err
}

// cancelOnTransferGateway cancels the caller's context the moment the gateway
// accepts a transfer, simulating a disconnect before the local debit lands.
type cancelOnTransferGateway struct {
	*fakeGateway
	cancel context.CancelFunc
}

func (g *cancelOnTransferGateway) InitiateTransfer(ctx context.Context, amountMinor int64, recipientCode, reference, reason string) (*paystackclient.TransferResult, error) {
	result, err := g.fakeGateway.InitiateTransfer(ctx, amountMinor, recipientCode, reference, reason)
	if err == nil {
		g.cancel()
	}
	return result, err
}

// fakeScheduler captures deferred jobs so tests can fire them explicitly.
type fakeScheduler struct {
	mu   sync.Mutex
	jobs []func()
}

func (s *fakeScheduler) Schedule(delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, fn)
}

func (s *fakeScheduler) runAll() {
	s.mu.Lock()
	jobs := s.jobs
	s.jobs = nil
	s.mu.Unlock()
	for _, fn := range jobs {
		fn()
	}
}

// fakePublisher records published settlement events.
type fakePublisher struct {
	mu     sync.Mutex
	events []rabbitmq.SettlementEvent
	routes []string
}

func (p *fakePublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if event, ok := body.(rabbitmq.SettlementEvent); ok {
		p.events = append(p.events, event)
	}
	p.routes = append(p.routes, routingKey)
	return nil
}

func (p *fakePublisher) Close() {}

type testHarness struct {
	repo      *fakeRepository
	gateway   *fakeGateway
	pending   *fakePendingStore
	scheduler *fakeScheduler
	events    *fakePublisher
	service   *Service
}

func newTestHarness() *testHarness {
	h := &testHarness{
		repo:      newFakeRepository(),
		gateway:   &fakeGateway{},
		pending:   newFakePendingStore(),
		scheduler: &fakeScheduler{},
		events:    &fakePublisher{},
	}
	h.service = NewService(h.repo, h.gateway, h.pending, h.scheduler, h.events, DefaultDurations())
	return h
}
