package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tutorlink/chat-service/internal/types"
)

func TestNoErrOK(t *testing.T) {
	result := NoErrOK(1, map[string]any{"room_id": "1:2"})

	assert.NotNil(t, result, "expected result to be non-nil")
	assert.NotNil(t, result.Response, "expected response to be non-nil")
	assert.Equal(t, 1, result.Id, "expected Id to match")
	assert.WithinDuration(t, Now(), result.Timestamp, time.Second, "expected Timestamp to be within 1 second")
	assert.Equal(t, http.StatusOK, result.Response.ResponseCode, "expected ResponseCode to match")
	assert.Equal(t, map[string]any{"room_id": "1:2"}, result.Response.Data, "expected Data to match")
}

func TestSentAck(t *testing.T) {
	msg := &types.Message{
		Id:       7,
		Sender:   types.UserRef{Id: 1, Name: "alice"},
		Receiver: types.UserRef{Id: 2, Name: "bob"},
		Content:  "hello",
	}

	result := SentAck(3, msg)

	assert.Equal(t, 3, result.Id, "expected Id to match the request id")
	assert.Equal(t, msg, result.Sent, "expected the stored message to be attached")
	assert.Nil(t, result.Response, "expected no response body on a sent ack")
	assert.Nil(t, result.Message, "expected sent ack to be distinct from the broadcast")
}

func TestErrorMessage(t *testing.T) {
	tcases := []struct {
		name         string
		err          error
		expectedCode int
	}{
		{
			name:         "empty content",
			err:          ErrEmptyContent,
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "self message",
			err:          ErrSelfMessage,
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "invalid conversation",
			err:          ErrInvalidConversation,
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "receiver not found",
			err:          ErrReceiverNotFound,
			expectedCode: http.StatusNotFound,
		},
		{
			name:         "session not found",
			err:          ErrSessionNotFound,
			expectedCode: http.StatusNotFound,
		},
		{
			name:         "session forbidden",
			err:          ErrSessionForbidden,
			expectedCode: http.StatusForbidden,
		},
		{
			name:         "persistence unavailable",
			err:          ErrPersistenceUnavailable,
			expectedCode: http.StatusServiceUnavailable,
		},
		{
			name:         "service unavailable",
			err:          ErrServiceUnavailable,
			expectedCode: http.StatusServiceUnavailable,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			result := ErrorMessage(1, tc.err)

			assert.NotNil(t, result.Response, "expected response to be non-nil")
			assert.Equal(t, 1, result.Id, "expected Id to match")
			assert.Equal(t, tc.expectedCode, result.Response.ResponseCode, "expected ResponseCode to match")
			assert.Equal(t, tc.err.Error(), result.Response.Error, "expected the machine-readable reason")
		})
	}
}

func TestErrInvalidMessage(t *testing.T) {
	t.Run("with id", func(t *testing.T) {
		result := ErrInvalidMessage(5)
		assert.Equal(t, 5, result.Id, "expected Id to be set")
		assert.Equal(t, http.StatusBadRequest, result.Response.ResponseCode, "expected ResponseCode to match")
	})

	t.Run("without id", func(t *testing.T) {
		result := ErrInvalidMessage(-1)
		assert.Zero(t, result.Id, "expected Id to be omitted")
		assert.Equal(t, http.StatusBadRequest, result.Response.ResponseCode, "expected ResponseCode to match")
	})
}
