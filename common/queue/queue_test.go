package queue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestChannel(t *testing.T) {
	require.Equal(t, "frequency_analysis_requests", RequestChannel("frequency_analysis"))
	require.Equal(t, "tempo_requests", RequestChannel("tempo"))
}

func TestQueueConfigAddress(t *testing.T) {
	config := QueueConfig{Host: "localhost", Port: "6379"}
	require.Equal(t, "localhost:6379", config.Address())
}
