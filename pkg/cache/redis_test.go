package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/lesson-scheduler-api/pkg/config"
)

func TestOptionsFromConfig(t *testing.T) {
	opts := Options(config.RedisConfig{Host: "cache", Port: 6380, Password: "pw", DB: 2})

	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 2*time.Second, opts.ReadTimeout)
}
