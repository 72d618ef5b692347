package redis

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestRevocations_Key(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	assert.Equal(t, "storefront:revoked:k1", NewRevocations(client, "").key("k1"))
	assert.Equal(t, "test:k1", NewRevocations(client, "test").key("k1"))
}
