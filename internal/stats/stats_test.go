package stats

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// expvar names are process-global, so the updater is built once and the
// subtests share it.
func TestStatsUpdater(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	su.Run()
	defer su.Stop()

	su.RegisterMetric("TestCounter")

	t.Run("incr and decr", func(t *testing.T) {
		su.Incr("TestCounter")
		su.Incr("TestCounter")
		su.Decr("TestCounter")

		assert.Eventually(t, func() bool {
			return su.vars.Get("TestCounter").String() == "1"
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("expvar handler", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/debug/vars", nil)
		mux.ServeHTTP(w, r)

		assert.Equal(t, http.StatusOK, w.Code)

		var data map[string]any
		assert.NoError(t, json.NewDecoder(w.Body).Decode(&data))
		assert.Contains(t, data, "TestCounter")
		assert.Contains(t, data, "Uptime")
	})
}
