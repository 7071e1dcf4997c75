package apicaller_test

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/api3dao/airkeeper-go/internal/apicaller"
	"github.com/api3dao/airkeeper-go/internal/metrics"
	"github.com/api3dao/airkeeper-go/internal/model"
)

type stubAdapter struct {
	attempts int32
	fn       func(ctx context.Context, req apicaller.Request, attempt int32) (*big.Int, error)
}

func (s *stubAdapter) Call(ctx context.Context, req apicaller.Request) (*big.Int, error) {
	n := atomic.AddInt32(&s.attempts, 1)
	return s.fn(ctx, req, n)
}

func subscriptionWithTemplate(templateID common.Hash, chainID string) model.Subscription {
	sub := model.Subscription{
		ChainID:    chainID,
		TemplateID: templateID,
		Sponsor:    common.HexToAddress("0x1"),
	}
	return sub
}

func TestCallPSPDistributesValueToAllSubscriptionsSharingTemplate(t *testing.T) {
	templateID := common.HexToHash("0xaa")
	sub1 := subscriptionWithTemplate(templateID, "1")
	sub2 := subscriptionWithTemplate(templateID, "1")
	sub2.Requester = common.HexToAddress("0x2") // differentiate id

	group := model.GroupedSubscription{
		TemplateID:    templateID,
		Template:      model.Template{EndpointID: common.HexToHash("0xbb")},
		Endpoint:      model.Endpoint{ReservedParameters: map[string]string{"_type": "int256"}},
		Subscriptions: []model.Subscription{sub1, sub2},
	}

	adapter := &stubAdapter{fn: func(ctx context.Context, req apicaller.Request, attempt int32) (*big.Int, error) {
		return big.NewInt(42), nil
	}}

	values := apicaller.CallPSP(context.Background(), adapter, nil, []model.GroupedSubscription{group}, nil)

	id1, err := sub1.ID()
	require.NoError(t, err)
	id2, err := sub2.ID()
	require.NoError(t, err)

	require.Equal(t, big.NewInt(42), values[id1])
	require.Equal(t, big.NewInt(42), values[id2])
}

func TestCallPSPUsesGeneratedMockAdapter(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	templateID := common.HexToHash("0xaa")
	sub := subscriptionWithTemplate(templateID, "1")
	group := model.GroupedSubscription{
		TemplateID:    templateID,
		Template:      model.Template{EndpointID: common.HexToHash("0xbb")},
		Endpoint:      model.Endpoint{ReservedParameters: map[string]string{"_type": "int256"}},
		Subscriptions: []model.Subscription{sub},
	}

	adapter := apicaller.NewMockAdapter(ctrl)
	adapter.EXPECT().Call(gomock.Any(), gomock.Any()).Return(big.NewInt(9), nil).Times(1)

	values := apicaller.CallPSP(context.Background(), adapter, nil, []model.GroupedSubscription{group}, nil)

	id, err := sub.ID()
	require.NoError(t, err)
	require.Equal(t, big.NewInt(9), values[id])
}

func TestCallPSPRetriesOnceOnTransientFailure(t *testing.T) {
	templateID := common.HexToHash("0xaa")
	sub := subscriptionWithTemplate(templateID, "1")
	group := model.GroupedSubscription{
		TemplateID:    templateID,
		Template:      model.Template{EndpointID: common.HexToHash("0xbb")},
		Endpoint:      model.Endpoint{ReservedParameters: map[string]string{"_type": "int256"}},
		Subscriptions: []model.Subscription{sub},
	}

	adapter := &stubAdapter{fn: func(ctx context.Context, req apicaller.Request, attempt int32) (*big.Int, error) {
		if attempt == 1 {
			return nil, errors.New("api call failed")
		}
		return big.NewInt(723), nil
	}}

	values := apicaller.CallPSP(context.Background(), adapter, nil, []model.GroupedSubscription{group}, nil)

	id, err := sub.ID()
	require.NoError(t, err)
	require.Equal(t, big.NewInt(723), values[id])
}

func TestCallPSPDropsWorkUnitOnPersistentFailureWithoutBlockingOthers(t *testing.T) {
	failingTemplate := common.HexToHash("0xaa")
	okTemplate := common.HexToHash("0xcc")

	failingSub := subscriptionWithTemplate(failingTemplate, "1")
	okSub := subscriptionWithTemplate(okTemplate, "1")
	okSub.Requester = common.HexToAddress("0x99")

	groups := []model.GroupedSubscription{
		{
			TemplateID:    failingTemplate,
			Template:      model.Template{EndpointID: common.HexToHash("0xbb")},
			Endpoint:      model.Endpoint{ReservedParameters: map[string]string{"_type": "int256"}, OISTitle: "broken"},
			Subscriptions: []model.Subscription{failingSub},
		},
		{
			TemplateID:    okTemplate,
			Template:      model.Template{EndpointID: common.HexToHash("0xdd")},
			Endpoint:      model.Endpoint{ReservedParameters: map[string]string{"_type": "int256"}, OISTitle: "ok"},
			Subscriptions: []model.Subscription{okSub},
		},
	}

	adapter := &stubAdapter{fn: func(ctx context.Context, req apicaller.Request, attempt int32) (*big.Int, error) {
		if req.Endpoint.OISTitle == "broken" {
			return nil, errors.New("always fails")
		}
		return big.NewInt(1), nil
	}}

	reg := metrics.New()
	values := apicaller.CallPSP(context.Background(), adapter, nil, groups, reg)

	failingID, err := failingSub.ID()
	require.NoError(t, err)
	okID, err := okSub.ID()
	require.NoError(t, err)

	_, hasFailing := values[failingID]
	require.False(t, hasFailing)
	require.Equal(t, big.NewInt(1), values[okID])

	families, err := reg.Gather()
	require.NoError(t, err)
	byName := map[string]float64{}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			byName[f.GetName()] = m.GetCounter().GetValue()
		}
	}
	require.Equal(t, float64(2), byName["airkeeper_templates_attempted_total"])
	require.Equal(t, float64(1), byName["airkeeper_templates_failed_total"])
}
