package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reply_engine/internal/engine"
	"reply_engine/internal/models"
	"reply_engine/internal/routing"
)

type fakeResponder struct {
	result *engine.Result
	err    error
	got    *models.Interaction
}

func (f *fakeResponder) RouteAndRespond(ctx context.Context, in *models.Interaction) (*engine.Result, error) {
	f.got = in
	return f.result, f.err
}

func postRespond(t *testing.T, responder Responder, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/respond", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	NewRespondHandler(responder).Respond(rec, req)
	return rec
}

func TestRespondSuccess(t *testing.T) {
	providerID := uuid.New()
	responder := &fakeResponder{
		result: &engine.Result{
			Decision:     models.DecisionSent,
			ResponseText: "Thanks for the kind words!",
			ProviderUsed: &providerID,
			ModelUsed:    "gpt-4o-mini",
		},
	}

	rec := postRespond(t, responder, RespondRequest{
		WorkspaceID: uuid.NewString(),
		ChannelType: "review",
		Sentiment:   "positive",
		Risk:        "low",
		Content:     "Great product, five stars.",
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var result engine.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, models.DecisionSent, result.Decision)
	assert.Equal(t, "Thanks for the kind words!", result.ResponseText)

	require.NotNil(t, responder.got)
	assert.Equal(t, models.ChannelReview, responder.got.ChannelType)
	assert.Equal(t, models.SentimentPositive, responder.got.Sentiment)
}

func TestRespondUnclassifiedFieldsAccepted(t *testing.T) {
	responder := &fakeResponder{
		result: &engine.Result{Decision: models.DecisionDraft},
	}

	rec := postRespond(t, responder, RespondRequest{
		WorkspaceID: uuid.NewString(),
		ChannelType: "dm",
		Content:     "Where is my order?",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, responder.got.Sentiment)
	assert.Empty(t, responder.got.Risk)
}

func TestRespondValidation(t *testing.T) {
	tests := []struct {
		name string
		req  RespondRequest
	}{
		{"bad workspace id", RespondRequest{
			WorkspaceID: "not-a-uuid", ChannelType: "dm", Content: "hi",
		}},
		{"unknown channel", RespondRequest{
			WorkspaceID: uuid.NewString(), ChannelType: "email", Content: "hi",
		}},
		{"unknown sentiment", RespondRequest{
			WorkspaceID: uuid.NewString(), ChannelType: "dm", Sentiment: "angry", Content: "hi",
		}},
		{"unknown risk", RespondRequest{
			WorkspaceID: uuid.NewString(), ChannelType: "dm", Risk: "critical", Content: "hi",
		}},
		{"missing content", RespondRequest{
			WorkspaceID: uuid.NewString(), ChannelType: "dm",
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			responder := &fakeResponder{}
			rec := postRespond(t, responder, tc.req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Nil(t, responder.got, "responder must not be called on invalid input")
		})
	}
}

func TestRespondMalformedBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/respond", bytes.NewReader([]byte("{")))
	rec := httptest.NewRecorder()
	NewRespondHandler(&fakeResponder{}).Respond(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRespondNoDefaultProvider(t *testing.T) {
	responder := &fakeResponder{err: routing.ErrNoDefaultProvider}

	rec := postRespond(t, responder, RespondRequest{
		WorkspaceID: uuid.NewString(),
		ChannelType: "comment",
		Content:     "hello",
	})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRespondEngineError(t *testing.T) {
	responder := &fakeResponder{err: assert.AnError}

	rec := postRespond(t, responder, RespondRequest{
		WorkspaceID: uuid.NewString(),
		ChannelType: "comment",
		Content:     "hello",
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
