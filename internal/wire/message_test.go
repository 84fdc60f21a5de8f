package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/tradecore/internal/domain"
)

func TestRequestRoundTrip(t *testing.T) {
	req, err := NewRequest(KindSubmitOrder, 42, SubmitOrderPayload{Order: domain.Order{
		Account:  "ACC-1",
		Symbol:   "ES",
		Side:     domain.SideBuy,
		Type:     domain.OrderTypeEnterLong,
		Quantity: 30,
	}})
	require.NoError(t, err)

	frame, err := EncodeRequest(req)
	require.NoError(t, err)

	decoded, err := DecodeRequest(frame)
	require.NoError(t, err)
	assert.Equal(t, KindSubmitOrder, decoded.Kind)
	assert.Equal(t, uint64(42), decoded.CallbackID)
	assert.False(t, decoded.OneWay())

	var payload SubmitOrderPayload
	require.NoError(t, DecodePayload(decoded, &payload))
	assert.Equal(t, "ACC-1", payload.Order.Account)
	assert.Equal(t, 30.0, payload.Order.Quantity)
}

func TestZeroCallbackIsOneWay(t *testing.T) {
	req, err := NewRequest(KindRegister, 0, RegisterPayload{Account: "A", Mode: "backtest"})
	require.NoError(t, err)
	assert.True(t, req.OneWay())
}

func TestDecodeRejectsMalformedRequest(t *testing.T) {
	_, err := DecodeRequest([]byte(`not json`))
	assert.Error(t, err)

	_, err = DecodeRequest([]byte(`{"callback_id":1}`))
	assert.ErrorIs(t, err, domain.ErrUnknownRequest)
}

func TestDecodePayloadRequiresBody(t *testing.T) {
	req := Request{Kind: KindCancelOrder, CallbackID: 7}

	var payload CancelOrderPayload
	assert.Error(t, DecodePayload(req, &payload))
}

func TestResponseHelpers(t *testing.T) {
	ok, err := OKResponse(9, map[string]string{"order_id": "o-1"})
	require.NoError(t, err)
	assert.True(t, ok.OK)
	assert.Equal(t, uint64(9), ok.CallbackID)
	assert.NotEmpty(t, ok.Payload)

	fail := ErrResponse(9, "No long position to exit")
	assert.False(t, fail.OK)
	assert.Equal(t, "No long position to exit", fail.Reason)
	assert.Empty(t, fail.Payload)
}
