package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	t.Parallel()
	r := New()
	r.PlanBuilt(7, 5)
	r.SentToday(2)
	r.Delivered("auto", 3, 1, 200*time.Millisecond)
	r.Delivered("auto", 2, 0, 100*time.Millisecond)
	r.CacheHit()
	r.CacheMiss()
	r.CacheMiss()

	assert.Equal(t, 7.0, testutil.ToFloat64(r.planned))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.sentToday))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.deliveries.WithLabelValues("auto")))
	assert.Equal(t, 5.0, testutil.ToFloat64(r.recipients.WithLabelValues("auto", "delivered")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.cache.WithLabelValues("miss")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	t.Parallel()
	r := New()
	r.Truncated()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "signalbot_caption_truncated_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}
