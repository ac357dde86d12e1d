package api

import (
	"context"
	"encoding/json"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/TFMV/estateflow/domain"
	"github.com/TFMV/estateflow/logger"
	"github.com/TFMV/estateflow/router"
	"github.com/TFMV/estateflow/storage"
	"github.com/TFMV/estateflow/workflow"
)

type harness struct {
	client   *OrchestratorClient
	drafts   *storage.MemoryDrafts
	entities storage.EntityStores
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		drafts:   storage.NewMemoryDrafts(),
		entities: storage.NewMemoryEntityStores(),
	}

	reg := workflow.NewRegistry(nil, nil)
	workflow.NewActivities(workflow.Dependencies{
		Drafts:      h.drafts,
		Entities:    h.entities,
		Orders:      storage.NewMemoryOrders(),
		Inventory:   storage.NewMemoryInventory(nil),
		Approvals:   storage.NewMemoryApprovals(),
		Ledger:      storage.NewMemoryLedger(),
		Notifier:    workflow.NewLogNotifier(logger.Nop()),
		Fulfillment: workflow.NewLogFulfillment(logger.Nop()),
		Scorer:      workflow.NewSimpleQualityScorer(),
		Reviewers:   []string{"reviewer-1"},
	}).Register(reg)
	workflow.RegisterWorkflows(reg)

	exec := workflow.NewDirectExecutor(reg, nil, nil)
	t.Cleanup(exec.Close)
	r, err := router.NewRouter(router.Config{Mode: router.ModeDirect}, nil, exec, nil, nil)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterOrchestratorServer(srv, NewServer(r, nil))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	h.client = NewOrchestratorClient(conn)
	return h
}

func (h *harness) putDraft(t *testing.T, id uint, owner string, payload map[string]interface{}) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	h.drafts.Put(domain.Draft{ID: id, OwnerID: owner, Type: domain.DraftTypeProperty, Payload: raw})
}

func mustStruct(t *testing.T, m map[string]interface{}) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func TestServer_PublishDraft(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.putDraft(t, 42, "u1", map[string]interface{}{
		"displayName":  "Lake View Flat",
		"propertyType": "apartment",
		"listingType":  "rent",
		"city":         "Pune",
		"price":        32000,
	})

	started, err := h.client.Start(ctx, mustStruct(t, map[string]interface{}{
		"draftType": "PROPERTY",
		"input":     map[string]interface{}{"draftId": 42, "ownerId": "u1"},
	}))
	require.NoError(t, err)
	run := started.AsMap()
	assert.Equal(t, "PublishProperty", run["workflow"])
	assert.Equal(t, router.ModeDirect, run["mode"])

	res, err := h.client.Result(ctx, mustStruct(t, map[string]interface{}{
		"runId": run["runId"], "mode": run["mode"], "workflow": run["workflow"],
	}))
	require.NoError(t, err)
	out := res.AsMap()["output"].(map[string]interface{})
	assert.Equal(t, true, out["success"])
	data := out["data"].(map[string]interface{})
	assert.Equal(t, "Lake View Flat", data["displayName"])
	assert.Equal(t, false, data["isUpdate"])

	step, err := h.client.Step(ctx, mustStruct(t, map[string]interface{}{"runId": run["runId"], "mode": run["mode"]}))
	require.NoError(t, err)
	assert.Equal(t, workflow.StepDone, step.AsMap()["step"])
}

func TestServer_PublishValidationErrorsAreData(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.putDraft(t, 7, "u1", map[string]interface{}{"displayName": "No City", "propertyType": "castle", "listingType": "rent"})

	started, err := h.client.Start(ctx, mustStruct(t, map[string]interface{}{
		"workflow": "PublishProperty",
		"input":    map[string]interface{}{"draftId": 7, "ownerId": "u1"},
	}))
	require.NoError(t, err)
	run := started.AsMap()

	res, err := h.client.Result(ctx, mustStruct(t, map[string]interface{}{
		"runId": run["runId"], "mode": run["mode"], "workflow": "PublishProperty",
	}))
	require.NoError(t, err)
	out := res.AsMap()["output"].(map[string]interface{})
	assert.Equal(t, false, out["success"])
	assert.NotEmpty(t, out["errors"])
}

func TestServer_ApprovalSignal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	price := 4500000.0
	e, err := h.entities[domain.DraftTypeProperty].Create(ctx, "u1", 1, domain.Payload{
		Kind: domain.DraftTypeProperty,
		Property: &domain.PropertyPayload{
			DisplayName:  "Lake View Flat",
			PropertyType: "apartment",
			ListingType:  "sale",
			City:         "Pune",
			Price:        &price,
		},
	})
	require.NoError(t, err)

	started, err := h.client.Start(ctx, mustStruct(t, map[string]interface{}{
		"workflow": workflow.WorkflowListingApproval,
		"input": map[string]interface{}{
			"listingKind": "PROPERTY",
			"listingId":   float64(e.ID),
			"submitterId": "u1",
		},
	}))
	require.NoError(t, err)
	run := started.AsMap()
	assert.Equal(t, false, run["completed"])

	_, err = h.client.Signal(ctx, mustStruct(t, map[string]interface{}{
		"runId":   run["runId"],
		"mode":    run["mode"],
		"signal":  workflow.SignalReviewDecision,
		"payload": map[string]interface{}{"decision": "REJECTED", "comment": "blurry photos", "reviewerId": "reviewer-1"},
	}))
	require.NoError(t, err)

	res, err := h.client.Result(ctx, mustStruct(t, map[string]interface{}{
		"runId": run["runId"], "mode": run["mode"], "workflow": workflow.WorkflowListingApproval,
	}))
	require.NoError(t, err)
	out := res.AsMap()["output"].(map[string]interface{})
	assert.Equal(t, "REJECTED", out["decision"])
	assert.Equal(t, "blurry photos", out["comment"])
	assert.Equal(t, false, out["automatic"])
}

func TestServer_StatusCodes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.client.Start(ctx, mustStruct(t, map[string]interface{}{}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.client.Start(ctx, mustStruct(t, map[string]interface{}{"draftType": "CASTLE"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.client.Start(ctx, mustStruct(t, map[string]interface{}{"workflow": "Nope"}))
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = h.client.Result(ctx, mustStruct(t, map[string]interface{}{"runId": "missing", "mode": "direct", "workflow": "PublishProperty"}))
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = h.client.Signal(ctx, mustStruct(t, map[string]interface{}{"runId": "missing", "mode": "direct"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = h.client.Step(ctx, mustStruct(t, map[string]interface{}{"runId": "x", "mode": "carrier-pigeon"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServer_PaymentFailureStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	started, err := h.client.Start(ctx, mustStruct(t, map[string]interface{}{
		"workflow": workflow.WorkflowPaymentSaga,
		"input":    map[string]interface{}{"orderId": "", "userId": "u1"},
	}))
	require.NoError(t, err)
	run := started.AsMap()

	_, err = h.client.Result(ctx, mustStruct(t, map[string]interface{}{
		"runId": run["runId"], "mode": run["mode"], "workflow": workflow.WorkflowPaymentSaga,
	}))
	st := status.Convert(err)
	require.Equal(t, codes.InvalidArgument, st.Code())
	require.Len(t, st.Details(), 1)
	br, ok := st.Details()[0].(*errdetails.BadRequest)
	require.True(t, ok)
	assert.NotEmpty(t, br.GetFieldViolations())
}

func TestToStatus(t *testing.T) {
	assert.Equal(t, codes.NotFound, status.Code(toStatus(workflow.NotFound("FetchDraft", "draft %d not found", 1))))
	assert.Equal(t, codes.FailedPrecondition, status.Code(toStatus(workflow.Compensatable("Charge", "declined", nil))))
	assert.Equal(t, codes.Unavailable, status.Code(toStatus(workflow.ErrDurableDisabled)))
	assert.Equal(t, codes.FailedPrecondition, status.Code(toStatus(workflow.ErrRunCompleted)))
	assert.Equal(t, codes.Canceled, status.Code(toStatus(context.Canceled)))
}
