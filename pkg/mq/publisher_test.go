package mq

import (
	"encoding/json"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONMessage(t *testing.T) {
	msg, err := NewJSONMessage(map[string]interface{}{"bookingId": "b-1", "quantity": 2})
	require.NoError(t, err)

	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.NotEmpty(t, msg.MessageId)
	assert.False(t, msg.Timestamp.IsZero())

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, "b-1", decoded["bookingId"])
}

func TestNewJSONMessage_Unmarshalable(t *testing.T) {
	_, err := NewJSONMessage(make(chan int))
	assert.Error(t, err)
}
