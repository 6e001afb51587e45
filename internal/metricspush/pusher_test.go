package metricspush

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/prometheus/prompb"
	"github.com/smallbiznis/levy/internal/config"
	paymentdomain "github.com/smallbiznis/levy/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func TestNewPusherSelectsExporter(t *testing.T) {
	logger := zaptest.NewLogger(t)

	cfg := config.Config{AppName: "levy"}
	assert.Nil(t, NewPusher(cfg, logger))

	cfg.MetricsPush = config.MetricsPushConfig{Exporter: ExporterRemoteWrite}
	assert.Nil(t, NewPusher(cfg, logger), "endpoint is required")

	cfg.MetricsPush.Endpoint = "not a url"
	assert.Nil(t, NewPusher(cfg, logger))

	cfg.MetricsPush.Endpoint = "http://collector:9090/api/v1/write"
	assert.IsType(t, &RemoteWritePusher{}, NewPusher(cfg, logger))

	cfg.MetricsPush.Exporter = ExporterPushgateway
	cfg.MetricsPush.Endpoint = "http://pushgateway:9091"
	assert.IsType(t, &PushgatewayPusher{}, NewPusher(cfg, logger))

	cfg.MetricsPush.Exporter = "statsd"
	assert.Nil(t, NewPusher(cfg, logger))
}

func TestRemoteWritePusherSendsSnappyProtobuf(t *testing.T) {
	var (
		mu       sync.Mutex
		received prompb.WriteRequest
		headers  http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		decoded, err := snappy.Decode(nil, body)
		require.NoError(t, err)

		mu.Lock()
		defer mu.Unlock()
		require.NoError(t, received.Unmarshal(decoded))
		headers = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	registry := prometheus.NewRegistry()
	anchors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "levy_ledger_anchor_total",
		Help: "test",
	}, []string{"result"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "levy_ledger_latency_seconds",
		Help: "test",
	})
	registry.MustRegister(anchors, latency)
	anchors.WithLabelValues("anchored").Add(3)
	latency.Observe(0.2)

	pusher := NewRemoteWritePusher(srv.URL, "push-token")
	pusher.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }

	require.NoError(t, pusher.Push(context.Background(), registry))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Bearer push-token", headers.Get("Authorization"))
	assert.Equal(t, "snappy", headers.Get("Content-Encoding"))
	require.Len(t, received.Timeseries, 1, "histograms are skipped")

	series := received.Timeseries[0]
	assert.Equal(t, []prompb.Label{
		{Name: "__name__", Value: "levy_ledger_anchor_total"},
		{Name: "result", Value: "anchored"},
	}, series.Labels)
	require.Len(t, series.Samples, 1)
	assert.Equal(t, float64(3), series.Samples[0].Value)
	assert.Equal(t, int64(1_700_000_000_000), series.Samples[0].Timestamp)
}

func TestRemoteWritePusherReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	registry := prometheus.NewRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "levy_test_gauge", Help: "test"})
	registry.MustRegister(gauge)
	gauge.Set(1)

	err := NewRemoteWritePusher(srv.URL, "").Push(context.Background(), registry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestBuildRemoteWriteSeriesSortsLabels(t *testing.T) {
	name := "levy_payments_unanchored"
	gaugeType := dto.MetricType_GAUGE
	value := 7.0
	families := []*dto.MetricFamily{{
		Name: &name,
		Type: &gaugeType,
		Metric: []*dto.Metric{{
			Label: []*dto.LabelPair{
				{Name: strPtr("zone"), Value: strPtr("b")},
				{Name: strPtr("env"), Value: strPtr("test")},
			},
			Gauge: &dto.Gauge{Value: &value},
		}},
	}}

	series := buildRemoteWriteSeries(families, 10)
	require.Len(t, series, 1)
	assert.Equal(t, "__name__", series[0].Labels[0].Name)
	assert.Equal(t, "env", series[0].Labels[1].Name)
	assert.Equal(t, "zone", series[0].Labels[2].Name)
	assert.Equal(t, 7.0, series[0].Samples[0].Value)
}

func TestBacklogRefreshCountsOpenWork(t *testing.T) {
	db := setupTestDB(t)
	hash := "0xabc"
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	statuses := []paymentdomain.Status{
		paymentdomain.StatusSuccess,
		paymentdomain.StatusSuccess,
		paymentdomain.StatusSuccess,
		paymentdomain.StatusFailed,
	}
	for i, status := range statuses {
		payment := paymentdomain.Payment{
			ID:               snowflake.ID(i + 1),
			PayerID:          "user-1",
			GatewayProvider:  "paystack",
			GatewayReference: fmt.Sprintf("ref-%d", i),
			IdempotencyKey:   fmt.Sprintf("key-%d", i),
			Status:           status,
			CreatedAt:        now,
		}
		if i == 2 {
			payment.LedgerTxHash = &hash
		}
		require.NoError(t, db.Create(&payment).Error)
	}

	intents := []paymentdomain.PaymentIntent{
		{Token: "a", Status: paymentdomain.IntentApproved, CreatedAt: now},
		{Token: "b", Status: paymentdomain.IntentRecordingFailed, CreatedAt: now},
		{Token: "c", Status: paymentdomain.IntentRecordingFailed, CreatedAt: now},
		{Token: "d", Status: paymentdomain.IntentRecorded, CreatedAt: now},
	}
	require.NoError(t, db.Create(&intents).Error)

	backlog := NewBacklog()
	require.NoError(t, backlog.Refresh(context.Background(), db))

	families, err := backlog.Gatherer().Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			key := family.GetName()
			for _, label := range metric.GetLabel() {
				key += "/" + label.GetValue()
			}
			values[key] = metric.GetGauge().GetValue()
		}
	}
	assert.Equal(t, 2.0, values["levy_payments_unanchored"])
	assert.Equal(t, 1.0, values["levy_payment_intents_open/approved"])
	assert.Equal(t, 2.0, values["levy_payment_intents_open/recording_failed"])
	assert.Equal(t, 0.0, values["levy_payment_intents_open/pending"])
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&paymentdomain.Payment{}, &paymentdomain.PaymentIntent{}))
	return db
}

func strPtr(v string) *string { return &v }
