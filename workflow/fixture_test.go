package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/TFMV/estateflow/domain"
	"github.com/TFMV/estateflow/storage"
)

type recordingNotifier struct {
	mu     sync.Mutex
	sent   []Notification
	fail   map[string]error
	onSend func(userID string)
}

func (n *recordingNotifier) NotifyUser(ctx context.Context, userID, subject, body string) error {
	if n.onSend != nil {
		n.onSend(userID)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.fail[userID]; err != nil {
		return err
	}
	n.sent = append(n.sent, Notification{UserID: userID, Subject: subject, Body: body})
	return nil
}

func (n *recordingNotifier) To(userID string) []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Notification
	for _, s := range n.sent {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out
}

type fakeGateway struct {
	mu      sync.Mutex
	calls   int
	decline string
	errs    []error
}

func (g *fakeGateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		return ChargeResult{}, err
	}
	if g.decline != "" {
		return ChargeResult{Success: false, Error: g.decline}, nil
	}
	return ChargeResult{Success: true, TransactionID: "txn-" + req.OrderID}, nil
}

func (g *fakeGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type recordingIndex struct {
	mu   sync.Mutex
	docs map[string]map[string]interface{}
	err  error
}

func (i *recordingIndex) Publish(ctx context.Context, key string, data map[string]interface{}) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.err != nil {
		return i.err
	}
	if i.docs == nil {
		i.docs = make(map[string]map[string]interface{})
	}
	i.docs[key] = data
	return nil
}

func (i *recordingIndex) Remove(ctx context.Context, key string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.docs, key)
	return nil
}

func (i *recordingIndex) Has(key string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.docs[key]
	return ok
}

type recordingFulfillment struct {
	mu     sync.Mutex
	orders []string
}

func (f *recordingFulfillment) Trigger(ctx context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, orderID)
	return nil
}

type fixedScorer struct {
	score float64
}

func (s fixedScorer) Score(ctx context.Context, e *domain.Entity) (float64, string, error) {
	return s.score, "fixed", nil
}

// failingOrders fails SetStatus for one status
type failingOrders struct {
	*storage.MemoryOrders
	failStatus string
}

func (o *failingOrders) SetStatus(ctx context.Context, orderID, status, transactionID string) error {
	if status == o.failStatus {
		return errors.New("orders table locked")
	}
	return o.MemoryOrders.SetStatus(ctx, orderID, status, transactionID)
}

type fixture struct {
	drafts      *storage.MemoryDrafts
	entities    storage.EntityStores
	orders      *storage.MemoryOrders
	inventory   *storage.MemoryInventory
	approvals   *storage.MemoryApprovals
	ledger      *storage.MemoryLedger
	notifier    *recordingNotifier
	gateway     *fakeGateway
	index       *recordingIndex
	fulfillment *recordingFulfillment
	deps        Dependencies
	registry    *Registry
}

func newFixture(t *testing.T, mutate ...func(*Dependencies)) *fixture {
	t.Helper()
	f := &fixture{
		drafts:      storage.NewMemoryDrafts(),
		entities:    storage.NewMemoryEntityStores(),
		orders:      storage.NewMemoryOrders(),
		inventory:   storage.NewMemoryInventory(map[string]int{"featured-pune": 3, "boost-7d": 10}),
		approvals:   storage.NewMemoryApprovals(),
		ledger:      storage.NewMemoryLedger(),
		notifier:    &recordingNotifier{},
		gateway:     &fakeGateway{},
		index:       &recordingIndex{},
		fulfillment: &recordingFulfillment{},
	}
	f.deps = Dependencies{
		Drafts:      f.drafts,
		Entities:    f.entities,
		Orders:      f.orders,
		Inventory:   f.inventory,
		Approvals:   f.approvals,
		Ledger:      f.ledger,
		Notifier:    f.notifier,
		Gateway:     f.gateway,
		SearchIndex: f.index,
		Fulfillment: f.fulfillment,
		Scorer:      fixedScorer{score: 0.5},
		Reviewers:   []string{"reviewer-1", "reviewer-2"},
	}
	for _, m := range mutate {
		m(&f.deps)
	}

	f.registry = NewRegistry(nil, nil)
	NewActivities(f.deps).Register(f.registry)
	RegisterWorkflows(f.registry)
	return f
}

// direct returns an executor that skips backoff waits
func (f *fixture) direct(t *testing.T) *DirectExecutor {
	t.Helper()
	exec := NewDirectExecutor(f.registry, nil, nil).WithSleep(func(context.Context, time.Duration) error { return nil })
	t.Cleanup(exec.Close)
	return exec
}

// durable runs a workflow to completion in the Temporal test environment and
// decodes its result or failure
func (f *fixture) durable(t *testing.T, name string, in, out interface{}, setup ...func(*testsuite.TestWorkflowEnvironment)) error {
	t.Helper()
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	f.registry.Register(env)
	for _, s := range setup {
		s(env)
	}

	env.ExecuteWorkflow(name, in)
	require.True(t, env.IsWorkflowCompleted())
	if err := env.GetWorkflowError(); err != nil {
		return fromTemporal("", err, 0)
	}
	if out != nil {
		require.NoError(t, env.GetWorkflowResult(out))
	}
	return nil
}

// runDirect runs a workflow through the direct executor and waits for its result
func (f *fixture) runDirect(t *testing.T, exec *DirectExecutor, runID, name string, in, out interface{}) (*DirectRun, error) {
	t.Helper()
	run, err := exec.Start(context.Background(), runID, name, in)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return run, exec.Result(ctx, run.ID, out)
}

func (f *fixture) putDraft(t *testing.T, id uint, owner string, kind domain.DraftType, payload interface{}) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	f.drafts.Put(domain.Draft{ID: id, OwnerID: owner, Type: kind, Payload: raw})
}

func (f *fixture) putListing(t *testing.T, owner string, draftID uint) *domain.Entity {
	t.Helper()
	price := 4500000.0
	e, err := f.entities[domain.DraftTypeProperty].Create(context.Background(), owner, draftID, domain.Payload{
		Kind: domain.DraftTypeProperty,
		Property: &domain.PropertyPayload{
			DisplayName:  "Lake View Flat",
			PropertyType: "apartment",
			ListingType:  "sale",
			City:         "Pune",
			Locality:     "Baner",
			Price:        &price,
		},
	})
	require.NoError(t, err)
	return e
}

func lakeViewFlat() map[string]interface{} {
	return map[string]interface{}{
		"displayName":  "Lake View Flat",
		"propertyType": "apartment",
		"listingType":  "rent",
		"city":         "Pune",
		"locality":     "Baner",
		"price":        32000,
		"bedrooms":     2,
		"amenities":    []string{"lift", "parking", "gym"},
	}
}

func modes() []string { return []string{ModeDirect, ModeDurable} }
